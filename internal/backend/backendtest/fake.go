// Package backendtest provides an in-memory backend.Backend for client tests.
package backendtest

import (
	"context"
	"sync"
	"time"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
)

// Hooks run before the fake's own behaviour. A non-nil error is returned instead.
// Hooks may block to simulate slow responses.
type Hooks struct {
	Query   func(ctx context.Context, q backend.Query) error
	State   func(ctx context.Context, itemID string, viewer domain.Viewer) error
	Upsert  func(ctx context.Context, e domain.Engagement) error
	Delete  func(ctx context.Context, key domain.EngagementKey) error
	Session func(ctx context.Context) error
}

// Fake follows the same engagement rules as the server: idempotent outcomes, guest
// bookmarks refused, unknown items not found.
type Fake struct {
	mu      sync.Mutex
	items   []domain.Item
	records map[domain.EngagementKey]time.Time
	session *domain.Session
	subs    map[*subscription]struct{}
	hooks   Hooks
	calls   map[string]int
}

var _ backend.Backend = (*Fake)(nil)

// New creates an empty fake.
func New() *Fake {
	return &Fake{
		records: make(map[domain.EngagementKey]time.Time),
		subs:    make(map[*subscription]struct{}),
		calls:   make(map[string]int),
	}
}

// SetHooks replaces the hooks.
func (f *Fake) SetHooks(h Hooks) {
	f.mu.Lock()
	f.hooks = h
	f.mu.Unlock()
}

// SetSession sets the signed-in session. Nil signs out.
func (f *Fake) SetSession(s *domain.Session) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
}

// AddItem stores an item and publishes an insert for its resource.
func (f *Fake) AddItem(item domain.Item) {
	f.mu.Lock()
	f.items = append(f.items, item)
	f.mu.Unlock()
	f.Publish(domain.Change{Resource: item.Resource, Op: domain.OpInsert, ItemID: item.ID})
}

// RemoveItem deletes an item and publishes a delete for its resource.
func (f *Fake) RemoveItem(itemID string) {
	f.mu.Lock()
	var removed *domain.Item
	for i, it := range f.items {
		if it.ID == itemID {
			removed = &it
			f.items = append(f.items[:i], f.items[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
	if removed != nil {
		f.Publish(domain.Change{Resource: removed.Resource, Op: domain.OpDelete, ItemID: itemID})
	}
}

// Publish delivers a change to matching subscribers.
func (f *Fake) Publish(change domain.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		if s.resource == change.Resource && s.mask.Has(change.Op) {
			select {
			case s.changes <- change:
			default:
			}
		}
	}
}

// Calls reports how many times a method ran, by name ("Query", "Upsert", ...).
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Records counts stored engagements of kind on itemID across all viewers.
func (f *Fake) Records(itemID string, kind domain.EngagementKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.records {
		if k.ItemID == itemID && k.Kind == kind {
			n++
		}
	}
	return n
}

// Subscribers returns the number of open subscriptions.
func (f *Fake) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Fake) enter(method string) Hooks {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.hooks
}

// Query implements backend.Backend.
func (f *Fake) Query(ctx context.Context, q backend.Query) ([]domain.Item, error) {
	if h := f.enter("Query"); h.Query != nil {
		if err := h.Query(ctx, q); err != nil {
			return nil, err
		}
	}

	var ids map[string]bool
	if len(q.IDs) > 0 {
		ids = make(map[string]bool, len(q.IDs))
		for _, id := range q.IDs {
			ids[id] = true
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Item
	for _, it := range f.items {
		if it.Resource != q.Resource || !domain.RegionMatches(it.Region, q.Region) {
			continue
		}
		if ids != nil && !ids[it.ID] {
			continue
		}
		it.LikeCount = f.likeCount(it.ID)
		out = append(out, it)
	}
	return out, nil
}

func (f *Fake) likeCount(itemID string) int {
	n := 0
	for k := range f.records {
		if k.ItemID == itemID && k.Kind == domain.KindLike {
			n++
		}
	}
	return n
}

func (f *Fake) hasItem(itemID string) bool {
	for _, it := range f.items {
		if it.ID == itemID {
			return true
		}
	}
	return false
}

// EngagementState implements backend.Backend.
func (f *Fake) EngagementState(ctx context.Context, itemID string, viewer domain.Viewer) (domain.EngagementState, error) {
	if h := f.enter("State"); h.State != nil {
		if err := h.State(ctx, itemID, viewer); err != nil {
			return domain.EngagementState{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasItem(itemID) {
		return domain.EngagementState{}, domainerrors.NotFound("item not found")
	}
	state := domain.EngagementState{ItemID: itemID, LikeCount: f.likeCount(itemID)}
	for k := range f.records {
		if k.ItemID == itemID && k.Viewer == viewer {
			state = state.With(k.Kind, true)
		}
	}
	return state, nil
}

// Upsert implements backend.Backend.
func (f *Fake) Upsert(ctx context.Context, e domain.Engagement) (backend.Outcome, error) {
	if h := f.enter("Upsert"); h.Upsert != nil {
		if err := h.Upsert(ctx, e); err != nil {
			return "", err
		}
	}

	f.mu.Lock()
	if e.Viewer.IsGuest() && e.Kind.RequiresAccount() {
		f.mu.Unlock()
		return "", domainerrors.PermissionDenied("bookmarks require an account")
	}
	if !f.hasItem(e.ItemID) {
		f.mu.Unlock()
		return "", domainerrors.NotFound("item not found")
	}
	key := e.Key()
	if _, ok := f.records[key]; ok {
		f.mu.Unlock()
		return domain.OutcomeAlreadyExists, nil
	}
	f.records[key] = time.Now()
	f.mu.Unlock()

	f.Publish(domain.Change{Resource: domain.ResourceEngagements, Op: domain.OpInsert, ItemID: e.ItemID})
	return domain.OutcomeApplied, nil
}

// Delete implements backend.Backend.
func (f *Fake) Delete(ctx context.Context, key domain.EngagementKey) (backend.Outcome, error) {
	if h := f.enter("Delete"); h.Delete != nil {
		if err := h.Delete(ctx, key); err != nil {
			return "", err
		}
	}

	f.mu.Lock()
	if _, ok := f.records[key]; !ok {
		f.mu.Unlock()
		return domain.OutcomeNotFound, nil
	}
	delete(f.records, key)
	f.mu.Unlock()

	f.Publish(domain.Change{Resource: domain.ResourceEngagements, Op: domain.OpDelete, ItemID: key.ItemID})
	return domain.OutcomeApplied, nil
}

// SessionIdentity implements backend.Backend.
func (f *Fake) SessionIdentity(ctx context.Context) (*domain.Session, error) {
	if h := f.enter("Session"); h.Session != nil {
		if err := h.Session(ctx); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	s := *f.session
	return &s, nil
}

// SubscribeChanges implements backend.Backend.
func (f *Fake) SubscribeChanges(_ context.Context, resource domain.Resource, mask domain.OpMask) (backend.Subscription, error) {
	f.enter("Subscribe")
	s := &subscription{
		fake:     f,
		resource: resource,
		mask:     mask,
		changes:  make(chan domain.Change, 64),
	}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
	return s, nil
}

type subscription struct {
	fake     *Fake
	resource domain.Resource
	mask     domain.OpMask
	changes  chan domain.Change
	once     sync.Once
}

func (s *subscription) Changes() <-chan domain.Change { return s.changes }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.fake.mu.Lock()
		delete(s.fake.subs, s)
		close(s.changes)
		s.fake.mu.Unlock()
	})
	return nil
}
