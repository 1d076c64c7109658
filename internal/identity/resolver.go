// Package identity determines which viewer engagement records are keyed by.
//
// A signed-in user is always preferred. Otherwise the device gets a guest id that is
// generated once, persisted, and reused for as long as it is stored.
package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
)

// GuestKey is the storage key holding the device's guest id.
const GuestKey = "guest_id"

// SessionSource reports the signed-in session, or nil when signed out.
type SessionSource interface {
	SessionIdentity(ctx context.Context) (*domain.Session, error)
}

// Resolver resolves the current viewer and reports identity switches.
type Resolver struct {
	sessions SessionSource
	storage  Storage
	logger   *slog.Logger

	mu        sync.Mutex
	current   domain.Viewer
	resolved  bool
	listeners []func(prev, next domain.Viewer)
}

// NewResolver creates a resolver.
func NewResolver(sessions SessionSource, storage Storage, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sessions: sessions, storage: storage, logger: logger}
}

// Resolve returns the authenticated viewer when a session exists, else the device's
// guest viewer. Any lookup failure is reported as CodeUnresolvable and leaves the
// previously resolved identity untouched.
func (r *Resolver) Resolve(ctx context.Context) (domain.Viewer, error) {
	r.mu.Lock()
	next, err := r.lookup(ctx)
	if err != nil {
		r.mu.Unlock()
		r.logger.Warn("viewer identity unresolvable", slog.String("error", err.Error()))
		return domain.Viewer{}, err
	}

	prev, hadPrev := r.current, r.resolved
	r.current, r.resolved = next, true
	var listeners []func(prev, next domain.Viewer)
	if hadPrev && prev != next {
		listeners = append(listeners, r.listeners...)
	}
	r.mu.Unlock()

	if len(listeners) > 0 {
		r.logger.Info("viewer identity changed",
			slog.String("from", string(prev.Kind)),
			slog.String("to", string(next.Kind)))
	}
	for _, fn := range listeners {
		fn(prev, next)
	}
	return next, nil
}

func (r *Resolver) lookup(ctx context.Context) (domain.Viewer, error) {
	if r.sessions != nil {
		session, err := r.sessions.SessionIdentity(ctx)
		if err != nil {
			return domain.Viewer{}, domainerrors.Unresolvable("session lookup failed", err)
		}
		if session != nil && session.UserID != "" {
			return domain.AuthenticatedViewer(session.UserID), nil
		}
	}

	guestID, err := r.storage.LoadOrStore(ctx, GuestKey, newGuestID)
	if err != nil {
		return domain.Viewer{}, domainerrors.Unresolvable("guest id unavailable", err)
	}
	return domain.GuestViewer(guestID), nil
}

func newGuestID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return "guest-" + u.String(), nil
}

// Current returns the last resolved viewer, if any.
func (r *Resolver) Current() (domain.Viewer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.resolved
}

// OnChange registers fn to run whenever a resolve returns a different viewer than the
// one before it, such as on sign-in or sign-out.
func (r *Resolver) OnChange(fn func(prev, next domain.Viewer)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}
