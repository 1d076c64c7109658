package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/ratelimit"
	"github.com/ceskapp/directory/internal/store"
)

// EngagementService records views, likes and bookmarks.
// Writes are idempotent: repeating one reports an outcome rather than failing.
type EngagementService struct {
	store   EngagementStore
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngagementService creates an engagement service. A nil limiter disables throttling.
func NewEngagementService(s EngagementStore, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) *EngagementService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EngagementService{store: s, limiter: limiter, logger: logger, now: time.Now}
}

func (s *EngagementService) checkWrite(viewer domain.Viewer, kind domain.EngagementKind) error {
	if viewer.IsZero() {
		return domainerrors.Unauthorized("a viewer identity is required")
	}
	if _, err := domain.ParseEngagementKind(string(kind)); err != nil {
		return domainerrors.Validation(err.Error())
	}
	if viewer.IsGuest() && kind.RequiresAccount() {
		return domainerrors.PermissionDenied("sign in to save bookmarks")
	}
	// Views arrive once per listed item and are deduplicated by the store, so only
	// likes and bookmarks draw on the viewer's budget.
	if kind != domain.KindView && s.limiter != nil && !s.limiter.Allow(viewer.ID) {
		return domainerrors.RateLimited("too many engagement writes, slow down")
	}
	return nil
}

// Record stores an engagement. An existing record yields OutcomeAlreadyExists.
func (s *EngagementService) Record(ctx context.Context, viewer domain.Viewer, itemID string, kind domain.EngagementKind) (domain.Outcome, error) {
	if err := s.checkWrite(viewer, kind); err != nil {
		return "", err
	}

	err := s.store.PutEngagement(ctx, domain.Engagement{
		ItemID:    itemID,
		Viewer:    viewer,
		Kind:      kind,
		CreatedAt: s.now().UTC(),
	})
	switch {
	case err == nil:
		s.logger.Debug("engagement recorded",
			slog.String("item_id", itemID),
			slog.String("viewer_id", viewer.ID),
			slog.String("kind", string(kind)))
		return domain.OutcomeApplied, nil
	case errors.Is(err, store.ErrAlreadyExists):
		return domain.OutcomeAlreadyExists, nil
	default:
		return "", fromStore(err, "item not found")
	}
}

// Unrecord removes an engagement. A missing record yields OutcomeNotFound. Views cannot be removed.
func (s *EngagementService) Unrecord(ctx context.Context, viewer domain.Viewer, itemID string, kind domain.EngagementKind) (domain.Outcome, error) {
	if err := s.checkWrite(viewer, kind); err != nil {
		return "", err
	}
	if !kind.Toggleable() {
		return "", domainerrors.Validationf("%s records cannot be removed", kind)
	}

	err := s.store.DeleteEngagement(ctx, domain.EngagementKey{ItemID: itemID, Viewer: viewer, Kind: kind})
	switch {
	case err == nil:
		s.logger.Debug("engagement removed",
			slog.String("item_id", itemID),
			slog.String("viewer_id", viewer.ID),
			slog.String("kind", string(kind)))
		return domain.OutcomeApplied, nil
	case errors.Is(err, store.ErrNotFound):
		return domain.OutcomeNotFound, nil
	default:
		return "", fromStore(err, "")
	}
}

// State returns the viewer's engagement picture for an item. A zero viewer only gets the like count.
func (s *EngagementService) State(ctx context.Context, viewer domain.Viewer, itemID string) (domain.EngagementState, error) {
	var state domain.EngagementState

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.store.ItemResource(gctx, itemID)
		return fromStore(err, "item not found")
	})
	g.Go(func() error {
		var err error
		state, err = s.store.GetEngagementState(gctx, itemID, viewer.ID)
		return fromStore(err, "")
	})
	if err := g.Wait(); err != nil {
		return domain.EngagementState{}, err
	}
	return state, nil
}
