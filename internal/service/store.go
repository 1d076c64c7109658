package service

import (
	"context"
	"errors"
	"time"

	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/store"
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// DirectoryStore persists trainers and posts.
type DirectoryStore interface {
	UpsertTrainer(ctx context.Context, t *domain.Trainer) (bool, error)
	GetTrainer(ctx context.Context, id string) (*domain.Trainer, error)
	DeleteTrainer(ctx context.Context, id string) error
	ListTrainers(ctx context.Context, filter store.TrainerFilter) ([]*domain.Trainer, error)
	ListTrainerIDs(ctx context.Context) ([]string, error)

	CreatePost(ctx context.Context, p *domain.Post) error
	GetPost(ctx context.Context, id string) (*domain.Post, error)
	DeletePost(ctx context.Context, id string) error
	ListPosts(ctx context.Context, filter store.PostFilter) ([]*domain.Post, error)
}

// EngagementStore persists view, like and bookmark records.
type EngagementStore interface {
	ItemResource(ctx context.Context, itemID string) (domain.Resource, error)
	PutEngagement(ctx context.Context, e domain.Engagement) error
	DeleteEngagement(ctx context.Context, key domain.EngagementKey) error
	GetEngagementState(ctx context.Context, itemID, viewerID string) (domain.EngagementState, error)
	LikeCounts(ctx context.Context, itemIDs []string) (map[string]int, error)
	ListEngagedItemIDs(ctx context.Context, viewerID string, kind domain.EngagementKind) ([]string, error)
}

// Store is everything the services need from persistence.
type Store interface {
	UserStore
	DirectoryStore
	EngagementStore
}

// fromStore translates persistence sentinels into domain errors, keeping the cause.
func fromStore(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	var de *domainerrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFound(notFoundMsg).WithCause(err)
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.AlreadyExists(err.Error()).WithCause(err)
	case errors.Is(err, store.ErrInvalidInput):
		return domainerrors.Validation(err.Error()).WithCause(err)
	default:
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "storage failure")
	}
}
