// Package engagement records views, likes and bookmarks for the current viewer and
// keeps an optimistic per-item cache of their state.
package engagement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
)

// ViewerSource resolves the viewer that records are keyed by.
type ViewerSource interface {
	Resolve(ctx context.Context) (domain.Viewer, error)
	OnChange(fn func(prev, next domain.Viewer))
}

type lockKey struct {
	itemID string
	kind   domain.EngagementKind
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Recorder is the only writer of the engagement cache. Writes to the same item and
// kind are serialized; the cache is dropped whenever the viewer changes.
type Recorder struct {
	backend backend.Backend
	viewers ViewerSource
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	epoch     uint64
	viewer    domain.Viewer
	cache     map[string]domain.EngagementState
	viewed    map[string]bool
	locks     map[lockKey]*keyLock
	listeners []func(itemID string, state domain.EngagementState)

	views sync.WaitGroup
}

// NewRecorder creates a recorder.
func NewRecorder(b backend.Backend, viewers ViewerSource, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		backend: b,
		viewers: viewers,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]domain.EngagementState),
		viewed:  make(map[string]bool),
		locks:   make(map[lockKey]*keyLock),
	}
	viewers.OnChange(func(_, next domain.Viewer) {
		r.mu.Lock()
		r.switchViewerLocked(next)
		r.mu.Unlock()
	})
	return r
}

func (r *Recorder) switchViewerLocked(next domain.Viewer) {
	if next == r.viewer {
		return
	}
	r.viewer = next
	r.resetLocked()
}

func (r *Recorder) resetLocked() {
	r.epoch++
	r.cache = make(map[string]domain.EngagementState)
	r.viewed = make(map[string]bool)
}

// resolve returns the viewer with the cache epoch it belongs to.
func (r *Recorder) resolve(ctx context.Context) (domain.Viewer, uint64, error) {
	v, err := r.viewers.Resolve(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		return domain.Viewer{}, r.epoch, err
	}
	r.switchViewerLocked(v)
	return v, r.epoch, nil
}

// Invalidate drops every cached state. In-flight results for the old cache are ignored.
func (r *Recorder) Invalidate() {
	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
}

// Snapshot returns the cached state for an item, if it has been loaded.
func (r *Recorder) Snapshot(itemID string) (domain.EngagementState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.cache[itemID]
	return st, ok
}

// OnChange registers fn to run whenever an item's cached state changes.
func (r *Recorder) OnChange(fn func(itemID string, state domain.EngagementState)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Wait blocks until background view writes have finished.
func (r *Recorder) Wait() {
	r.views.Wait()
}

// Load fetches the viewer's state for an item. When the viewer cannot be resolved,
// the state is still fetched anonymously so counts can be shown.
func (r *Recorder) Load(ctx context.Context, itemID string) (domain.EngagementState, error) {
	viewer, epoch, err := r.resolve(ctx)
	if err != nil && !errors.Is(err, domainerrors.ErrUnresolvable) {
		return domain.EngagementState{}, err
	}
	return r.fetch(ctx, viewer, epoch, itemID)
}

func (r *Recorder) fetch(ctx context.Context, viewer domain.Viewer, epoch uint64, itemID string) (domain.EngagementState, error) {
	state, err := r.backend.EngagementState(ctx, itemID, viewer)
	if err != nil {
		return domain.EngagementState{}, err
	}
	r.store(epoch, itemID, state)
	return state, nil
}

// Record stores an engagement. A record that already exists counts as success.
func (r *Recorder) Record(ctx context.Context, itemID string, kind domain.EngagementKind) error {
	return r.write(ctx, itemID, kind, true)
}

// Unrecord removes a like or bookmark. A record that is already gone counts as success.
func (r *Recorder) Unrecord(ctx context.Context, itemID string, kind domain.EngagementKind) error {
	return r.write(ctx, itemID, kind, false)
}

// Toggle flips a like or bookmark and reports whether it is now present. The direction
// is decided after any queued write on the same item and kind has finished.
func (r *Recorder) Toggle(ctx context.Context, itemID string, kind domain.EngagementKind) (bool, error) {
	viewer, epoch, err := r.prepare(ctx, kind, true)
	if err != nil {
		return false, err
	}

	unlock := r.lock(itemID, kind)
	defer unlock()

	state, ok := r.cached(epoch, itemID)
	if !ok {
		if state, err = r.fetch(ctx, viewer, epoch, itemID); err != nil {
			return false, err
		}
	}

	present := !state.Has(kind)
	if err := r.apply(ctx, viewer, epoch, itemID, kind, present); err != nil {
		return !present, err
	}
	return present, nil
}

func (r *Recorder) write(ctx context.Context, itemID string, kind domain.EngagementKind, present bool) error {
	viewer, epoch, err := r.prepare(ctx, kind, !present)
	if err != nil {
		return err
	}

	unlock := r.lock(itemID, kind)
	defer unlock()
	return r.apply(ctx, viewer, epoch, itemID, kind, present)
}

// prepare checks a write before anything is sent or flipped.
func (r *Recorder) prepare(ctx context.Context, kind domain.EngagementKind, removable bool) (domain.Viewer, uint64, error) {
	if _, err := domain.ParseEngagementKind(string(kind)); err != nil {
		return domain.Viewer{}, 0, domainerrors.Validation(err.Error())
	}
	if removable && !kind.Toggleable() {
		return domain.Viewer{}, 0, domainerrors.Validationf("%s records cannot be removed", kind)
	}

	viewer, epoch, err := r.resolve(ctx)
	if err != nil {
		if errors.Is(err, domainerrors.ErrUnresolvable) {
			return domain.Viewer{}, 0, err
		}
		return domain.Viewer{}, 0, domainerrors.Unresolvable("viewer identity unavailable", err)
	}
	if viewer.IsGuest() && kind.RequiresAccount() {
		return domain.Viewer{}, 0, domainerrors.PermissionDenied("sign in to save bookmarks")
	}
	return viewer, epoch, nil
}

// apply runs one write with the key lock held: optimistic flip, backend call, then
// either a fresh read or a rollback.
func (r *Recorder) apply(ctx context.Context, viewer domain.Viewer, epoch uint64, itemID string, kind domain.EngagementKind, present bool) error {
	prev, had := r.flip(epoch, itemID, kind, present)

	var err error
	if present {
		_, err = r.backend.Upsert(ctx, domain.Engagement{ItemID: itemID, Viewer: viewer, Kind: kind, CreatedAt: r.now().UTC()})
		if errors.Is(err, domainerrors.ErrAlreadyExists) {
			err = nil
		}
	} else {
		_, err = r.backend.Delete(ctx, domain.EngagementKey{ItemID: itemID, Viewer: viewer, Kind: kind})
		if errors.Is(err, domainerrors.ErrNotFound) {
			err = nil
		}
	}
	if err != nil {
		r.rollback(epoch, itemID, prev, had)
		r.logger.Warn("engagement write failed",
			slog.String("item_id", itemID),
			slog.String("kind", string(kind)),
			slog.Bool("present", present),
			slog.String("error", err.Error()))
		return err
	}

	// The like count may have moved because of other viewers.
	if _, err := r.fetch(ctx, viewer, epoch, itemID); err != nil {
		r.logger.Debug("engagement re-read failed",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()))
	}
	return nil
}

func (r *Recorder) flip(epoch uint64, itemID string, kind domain.EngagementKind, present bool) (domain.EngagementState, bool) {
	r.mu.Lock()
	prev, had := r.cache[itemID]
	if epoch != r.epoch || !had || prev.Has(kind) == present {
		r.mu.Unlock()
		return prev, had
	}

	next := prev.With(kind, present)
	if kind == domain.KindLike {
		if present {
			next.LikeCount++
		} else if next.LikeCount > 0 {
			next.LikeCount--
		}
	}
	r.cache[itemID] = next
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(itemID, next)
	}
	return prev, had
}

func (r *Recorder) rollback(epoch uint64, itemID string, prev domain.EngagementState, had bool) {
	if !had {
		return
	}
	r.store(epoch, itemID, prev)
}

func (r *Recorder) store(epoch uint64, itemID string, state domain.EngagementState) {
	r.mu.Lock()
	if epoch != r.epoch {
		r.mu.Unlock()
		r.logger.Debug("discarding engagement state from previous viewer", slog.String("item_id", itemID))
		return
	}
	r.cache[itemID] = state
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(itemID, state)
	}
}

func (r *Recorder) cached(epoch uint64, itemID string) (domain.EngagementState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch != r.epoch {
		return domain.EngagementState{}, false
	}
	st, ok := r.cache[itemID]
	return st, ok
}

func (r *Recorder) lock(itemID string, kind domain.EngagementKind) func() {
	k := lockKey{itemID: itemID, kind: kind}

	r.mu.Lock()
	l := r.locks[k]
	if l == nil {
		l = &keyLock{}
		r.locks[k] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, k)
		}
		r.mu.Unlock()
	}
}

// RecordView records that the viewer saw an item, once per item and viewer. It never
// blocks and never reports failure; a failed view is forgotten so the next exposure
// tries again.
func (r *Recorder) RecordView(ctx context.Context, itemID string) {
	viewer, epoch, err := r.resolve(ctx)
	if err != nil {
		r.logger.Debug("skipping view, viewer unresolved", slog.String("item_id", itemID))
		return
	}

	r.mu.Lock()
	if epoch != r.epoch || r.viewed[itemID] {
		r.mu.Unlock()
		return
	}
	r.viewed[itemID] = true
	r.views.Add(1)
	r.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer r.views.Done()

		_, err := r.backend.Upsert(ctx, domain.Engagement{ItemID: itemID, Viewer: viewer, Kind: domain.KindView, CreatedAt: r.now().UTC()})
		if err != nil && !errors.Is(err, domainerrors.ErrAlreadyExists) {
			r.logger.Warn("view not recorded",
				slog.String("item_id", itemID),
				slog.String("error", err.Error()))
			r.mu.Lock()
			if epoch == r.epoch {
				delete(r.viewed, itemID)
			}
			r.mu.Unlock()
			return
		}

		r.mu.Lock()
		st, ok := r.cache[itemID]
		if !ok || epoch != r.epoch || st.Viewed {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
		r.store(epoch, itemID, st.With(domain.KindView, true))
	}()
}
