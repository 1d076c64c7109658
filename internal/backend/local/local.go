// Package local implements backend.Backend in process, directly over the services and
// the SSE manager. The server uses it to keep its own derived state in sync, and tests
// use it to exercise clients without HTTP.
package local

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/domain"
	"github.com/ceskapp/directory/internal/service"
	"github.com/ceskapp/directory/internal/sse"
)

// Backend serves the backend contract from in-process services.
type Backend struct {
	directory  *service.DirectoryService
	engagement *service.EngagementService
	manager    *sse.Manager
	session    backend.SessionFunc
	logger     *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

// Option configures a local Backend.
type Option func(*Backend)

// WithSession sets the function that reports the signed-in session.
// Without it the backend always reports signed out.
func WithSession(fn backend.SessionFunc) Option {
	return func(b *Backend) { b.session = fn }
}

// New creates a local backend.
func New(directory *service.DirectoryService, engagement *service.EngagementService, manager *sse.Manager, logger *slog.Logger, opts ...Option) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		directory:  directory,
		engagement: engagement,
		manager:    manager,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Query implements backend.Backend.
func (b *Backend) Query(ctx context.Context, q backend.Query) ([]domain.Item, error) {
	return b.directory.ListItems(ctx, q)
}

// EngagementState implements backend.Backend.
func (b *Backend) EngagementState(ctx context.Context, itemID string, viewer domain.Viewer) (domain.EngagementState, error) {
	return b.engagement.State(ctx, viewer, itemID)
}

// Upsert implements backend.Backend.
func (b *Backend) Upsert(ctx context.Context, e domain.Engagement) (backend.Outcome, error) {
	return b.engagement.Record(ctx, e.Viewer, e.ItemID, e.Kind)
}

// Delete implements backend.Backend.
func (b *Backend) Delete(ctx context.Context, key domain.EngagementKey) (backend.Outcome, error) {
	return b.engagement.Unrecord(ctx, key.Viewer, key.ItemID, key.Kind)
}

// SessionIdentity implements backend.Backend.
func (b *Backend) SessionIdentity(ctx context.Context) (*domain.Session, error) {
	if b.session == nil {
		return nil, nil
	}
	return b.session(ctx)
}

// SubscribeChanges registers an in-process SSE client and relays its change events.
func (b *Backend) SubscribeChanges(ctx context.Context, resource domain.Resource, mask domain.OpMask) (backend.Subscription, error) {
	client, err := b.manager.Connect([]domain.Resource{resource}, mask)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		manager:  b.manager,
		clientID: client.ID,
		changes:  make(chan domain.Change, cap(client.EventChan)),
		stop:     make(chan struct{}),
	}
	go sub.relay(ctx, client)

	b.logger.Debug("local change subscription opened",
		slog.String("client_id", client.ID),
		slog.String("resource", string(resource)))
	return sub, nil
}

type subscription struct {
	manager  *sse.Manager
	clientID string
	changes  chan domain.Change
	stop     chan struct{}
	once     sync.Once
}

func (s *subscription) Changes() <-chan domain.Change { return s.changes }

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.manager.Disconnect(s.clientID)
	})
	return nil
}

func (s *subscription) relay(ctx context.Context, client *sse.Client) {
	defer close(s.changes)
	defer s.Close()

	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			change, isChange := event.Data.(domain.Change)
			if event.Type != sse.EventResourceChanged || !isChange {
				continue
			}
			select {
			case s.changes <- change:
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
