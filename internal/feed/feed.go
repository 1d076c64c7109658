// Package feed keeps a client's copy of a resource fresh by refetching it whenever the
// server reports a change.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/domain"
)

// Loader performs a full fetch of the resource and applies it.
type Loader func(ctx context.Context) error

// Feed ties a change subscription to a loader. At most one load runs at a time;
// notifications that arrive during a load collapse into one trailing load.
type Feed struct {
	resource domain.Resource
	sub      backend.Subscription
	load     Loader
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	idle    *sync.Cond
	running bool
	pending bool
	closed  bool

	closeOnce sync.Once
	closeErr  error
	pumpDone  chan struct{}
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) { f.logger = logger }
}

// Subscribe opens the change stream for resource and then runs the initial load.
//
// The stream is opened first so that no change between the load and the subscription
// can be missed. If the initial load fails, the stream is closed and the error returned.
func Subscribe(ctx context.Context, source backend.ChangeSource, resource domain.Resource, load Loader, opts ...Option) (*Feed, error) {
	fctx, cancel := context.WithCancel(ctx)

	sub, err := source.SubscribeChanges(fctx, resource, domain.OpAll)
	if err != nil {
		cancel()
		return nil, err
	}

	f := &Feed{
		resource: resource,
		sub:      sub,
		load:     load,
		logger:   slog.Default(),
		ctx:      fctx,
		cancel:   cancel,
		pumpDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.idle = sync.NewCond(&f.mu)
	f.logger = f.logger.With(slog.String("resource", string(resource)))

	if err := load(fctx); err != nil {
		cancel()
		_ = sub.Close()
		return nil, err
	}

	go f.pump()
	return f, nil
}

func (f *Feed) pump() {
	defer close(f.pumpDone)
	for change := range f.sub.Changes() {
		f.logger.Debug("change received",
			slog.String("op", string(change.Op)),
			slog.String("item_id", change.ItemID))
		f.Trigger()
	}
	f.logger.Debug("change stream ended")
}

// Trigger requests a refetch. If one is running, a single trailing refetch is queued.
func (f *Feed) Trigger() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.running {
		f.pending = true
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.run()
}

func (f *Feed) run() {
	for {
		if err := f.load(f.ctx); err != nil && f.ctx.Err() == nil {
			f.logger.Warn("refetch failed", slog.String("error", err.Error()))
		}

		f.mu.Lock()
		if !f.pending || f.closed {
			f.running = false
			f.pending = false
			f.idle.Broadcast()
			f.mu.Unlock()
			return
		}
		f.pending = false
		f.mu.Unlock()
	}
}

// Wait blocks until no refetch is running or queued.
func (f *Feed) Wait() {
	if f == nil {
		return
	}
	f.mu.Lock()
	for f.running {
		f.idle.Wait()
	}
	f.mu.Unlock()
}

// Close releases the change stream. Later calls, and calls on a nil Feed, do nothing.
func (f *Feed) Close() error {
	if f == nil || f.sub == nil {
		return nil
	}
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()

		f.cancel()
		f.closeErr = f.sub.Close()
		<-f.pumpDone
	})
	return f.closeErr
}
