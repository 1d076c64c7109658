// Package backend defines the contract between directory clients and the server
// that stores items and engagement records.
package backend

import (
	"context"

	"github.com/ceskapp/directory/internal/domain"
)

// Query selects directory items. It is an alias so callers need not import domain for it.
type Query = domain.Query

// Outcome reports how an idempotent engagement write resolved.
type Outcome = domain.Outcome

// Backend is everything a client needs from the server.
//
// Upsert returns OutcomeApplied or OutcomeAlreadyExists. Delete returns OutcomeApplied or
// OutcomeNotFound. SessionIdentity returns nil when nobody is signed in.
type Backend interface {
	Query(ctx context.Context, q Query) ([]domain.Item, error)
	EngagementState(ctx context.Context, itemID string, viewer domain.Viewer) (domain.EngagementState, error)
	Upsert(ctx context.Context, e domain.Engagement) (Outcome, error)
	Delete(ctx context.Context, key domain.EngagementKey) (Outcome, error)
	ChangeSource
	SessionIdentity(ctx context.Context) (*domain.Session, error)
}

// ChangeSource opens change streams. It is the part of Backend a feed needs.
type ChangeSource interface {
	SubscribeChanges(ctx context.Context, resource domain.Resource, mask domain.OpMask) (Subscription, error)
}

// Subscription is an open change stream.
//
// Changes is closed when the stream ends, either through Close, context cancellation,
// or the server going away for good. Close is safe to call more than once.
type Subscription interface {
	Changes() <-chan domain.Change
	Close() error
}

// SessionFunc reports the signed-in session, or nil when signed out.
type SessionFunc func(ctx context.Context) (*domain.Session, error)

// GuestIDHeader carries a guest viewer's id on HTTP requests that have no bearer token.
const GuestIDHeader = "X-Guest-ID"
