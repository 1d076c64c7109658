// Package directory exposes live, self-refreshing lists of directory items to clients.
package directory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/feed"
)

// State is what a list shows. Items is replaced wholesale on every successful load and
// must not be modified by readers.
type State struct {
	Items   []domain.Item
	Loading bool
	// Err is the last load failure. Items still holds the previous result.
	Err    error
	Loaded bool
	// Version increases every time a load result is applied.
	Version uint64
}

// List is a query result kept fresh by the change feed.
type List struct {
	backend backend.Backend
	logger  *slog.Logger

	mu        sync.Mutex
	query     domain.Query
	queryGen  uint64
	seq       uint64
	applied   uint64
	inflight  int
	state     State
	feed      *feed.Feed
	listeners []func(State)
}

// NewList creates a list for q. Nothing is fetched until Start.
func NewList(b backend.Backend, q domain.Query, logger *slog.Logger) *List {
	if logger == nil {
		logger = slog.Default()
	}
	return &List{
		backend: b,
		query:   q,
		logger:  logger.With(slog.String("resource", string(q.Resource))),
	}
}

// Start subscribes to changes and performs the initial load. A failed initial load is
// returned and also recorded in the state.
func (l *List) Start(ctx context.Context) error {
	l.mu.Lock()
	resource := l.query.Resource
	l.mu.Unlock()

	f, err := feed.Subscribe(ctx, l.backend, resource, l.load, feed.WithLogger(l.logger))
	if err != nil {
		l.fail(err)
		return err
	}

	l.mu.Lock()
	old := l.feed
	l.feed = f
	l.mu.Unlock()
	return old.Close()
}

// Refresh reloads the list now. On failure the previous items are kept.
func (l *List) Refresh(ctx context.Context) error {
	return l.load(ctx)
}

// SetQuery replaces the query and reloads. A different resource resubscribes.
func (l *List) SetQuery(ctx context.Context, q domain.Query) error {
	l.mu.Lock()
	resubscribe := q.Resource != l.query.Resource
	l.query = q
	l.queryGen++
	l.mu.Unlock()

	if resubscribe {
		return l.Start(ctx)
	}
	return l.load(ctx)
}

// Snapshot returns the current state.
func (l *List) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// OnChange registers fn to receive every new state.
func (l *List) OnChange(fn func(State)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Wait blocks until change-driven refetches have settled.
func (l *List) Wait() {
	l.mu.Lock()
	f := l.feed
	l.mu.Unlock()
	f.Wait()
}

// Close stops following changes.
func (l *List) Close() error {
	l.mu.Lock()
	f := l.feed
	l.feed = nil
	l.mu.Unlock()
	return f.Close()
}

func (l *List) load(ctx context.Context) error {
	l.mu.Lock()
	q := l.query
	gen := l.queryGen
	l.seq++
	seq := l.seq
	l.inflight++
	l.state.Loading = true
	l.mu.Unlock()
	l.notify()

	items, err := l.backend.Query(ctx, q)

	l.mu.Lock()
	l.inflight--
	l.state.Loading = l.inflight > 0
	if seq < l.applied || gen != l.queryGen {
		l.mu.Unlock()
		l.logger.Debug("discarding stale list result", slog.Uint64("seq", seq))
		l.notify()
		return nil
	}
	l.applied = seq

	switch {
	case err == nil:
		l.state.Items = items
		l.state.Err = nil
		l.state.Loaded = true
	case errors.Is(err, domainerrors.ErrNotFound):
		l.state.Items = nil
		l.state.Err = nil
		l.state.Loaded = true
		err = nil
	default:
		l.state.Err = err
	}
	l.state.Version++
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("list load failed", slog.String("error", err.Error()))
	}
	l.notify()
	return err
}

func (l *List) fail(err error) {
	l.mu.Lock()
	l.state.Err = err
	l.mu.Unlock()
	l.notify()
}

func (l *List) notify() {
	l.mu.Lock()
	state := l.state
	listeners := append([]func(State){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
