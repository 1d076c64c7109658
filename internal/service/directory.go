package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ceskapp/directory/internal/content"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/id"
	"github.com/ceskapp/directory/internal/store"
	"github.com/ceskapp/directory/internal/validation"
)

// DirectoryService serves the trainer directory and the community board.
type DirectoryService struct {
	store     Store
	content   *content.Processor
	validator *validation.Validator
	logger    *slog.Logger
}

// NewDirectoryService creates a new directory service.
func NewDirectoryService(s Store, processor *content.Processor, v *validation.Validator, logger *slog.Logger) *DirectoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryService{store: s, content: processor, validator: v, logger: logger}
}

// TrainerDetail is a trainer with its like count.
type TrainerDetail struct {
	*domain.Trainer
	LikeCount int `json:"like_count"`
}

// PostDetail is a post with its like count and a Markdown rendition of its body.
type PostDetail struct {
	*domain.Post
	ContentMarkdown string `json:"content_markdown"`
	LikeCount       int    `json:"like_count"`
}

// CreatePostRequest is the payload for a new board post.
type CreatePostRequest struct {
	Title    string         `json:"title" validate:"notblank,max=120"`
	Category string         `json:"category" validate:"category"`
	Body     string         `json:"body" validate:"notblank,max=20000"`
	Format   content.Format `json:"format,omitempty" validate:"omitempty,oneof=html markdown"`
	ImageURL string         `json:"image_url,omitempty" validate:"omitempty,url,max=2048"`
}

// UpsertTrainerRequest creates or replaces a trainer profile. An empty ID creates a new trainer.
type UpsertTrainerRequest struct {
	ID           string `json:"id,omitempty" yaml:"id"`
	UserID       string `json:"user_id,omitempty" yaml:"user_id"`
	Name         string `json:"name" yaml:"name" validate:"notblank,max=64"`
	Level        string `json:"level,omitempty" yaml:"level" validate:"max=32"`
	Specialty    string `json:"specialty,omitempty" yaml:"specialty" validate:"max=64"`
	Region       string `json:"region" yaml:"region" validate:"region"`
	Experience   string `json:"experience,omitempty" yaml:"experience" validate:"max=64"`
	ImageURL     string `json:"image_url,omitempty" yaml:"image_url" validate:"omitempty,url,max=2048"`
	Introduction string `json:"introduction,omitempty" yaml:"introduction" validate:"max=4000"`
}

// ListItems returns the directory items selected by q, with like counts.
func (s *DirectoryService) ListItems(ctx context.Context, q domain.Query) ([]domain.Item, error) {
	var items []domain.Item

	switch q.Resource {
	case domain.ResourceTrainers:
		trainers, err := s.store.ListTrainers(ctx, store.TrainerFilter{
			Region: q.Region,
			Search: q.Search,
			IDs:    q.IDs,
			Limit:  q.Limit,
		})
		if err != nil {
			return nil, fromStore(err, "trainers not found")
		}
		items = make([]domain.Item, 0, len(trainers))
		for _, t := range trainers {
			items = append(items, t.Item(0))
		}

	case domain.ResourcePosts:
		if q.Category != "" {
			if err := s.validator.Validate(struct {
				Category string `json:"category" validate:"category"`
			}{q.Category}); err != nil {
				return nil, err
			}
		}
		posts, err := s.store.ListPosts(ctx, store.PostFilter{
			Category: q.Category,
			Search:   q.Search,
			AuthorID: q.AuthorID,
			IDs:      q.IDs,
			Limit:    q.Limit,
		})
		if err != nil {
			return nil, fromStore(err, "posts not found")
		}
		items = make([]domain.Item, 0, len(posts))
		for _, p := range posts {
			items = append(items, p.Item(0))
		}

	default:
		return nil, domainerrors.Validationf("resource %q cannot be listed", q.Resource)
	}

	if err := s.fillLikeCounts(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *DirectoryService) fillLikeCounts(ctx context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	counts, err := s.store.LikeCounts(ctx, ids)
	if err != nil {
		return fromStore(err, "")
	}
	for i := range items {
		items[i].LikeCount = counts[items[i].ID]
	}
	return nil
}

// GetTrainer returns one trainer profile.
func (s *DirectoryService) GetTrainer(ctx context.Context, trainerID string) (*TrainerDetail, error) {
	t, err := s.store.GetTrainer(ctx, trainerID)
	if err != nil {
		return nil, fromStore(err, "trainer not found")
	}
	counts, err := s.store.LikeCounts(ctx, []string{t.ID})
	if err != nil {
		return nil, fromStore(err, "")
	}
	return &TrainerDetail{Trainer: t, LikeCount: counts[t.ID]}, nil
}

// GetPost returns one post with its Markdown rendition.
func (s *DirectoryService) GetPost(ctx context.Context, postID string) (*PostDetail, error) {
	p, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, fromStore(err, "post not found")
	}
	counts, err := s.store.LikeCounts(ctx, []string{p.ID})
	if err != nil {
		return nil, fromStore(err, "")
	}
	return &PostDetail{
		Post:            p,
		ContentMarkdown: content.ToMarkdown(p.ContentHTML),
		LikeCount:       counts[p.ID],
	}, nil
}

// CreatePost publishes a post authored by userID.
func (s *DirectoryService) CreatePost(ctx context.Context, userID string, req CreatePostRequest) (*domain.Post, error) {
	if userID == "" {
		return nil, domainerrors.Unauthorized("sign in to post")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	author, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fromStore(err, "author not found")
	}

	body, err := s.content.Prepare(req.Body, req.Format)
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}
	if content.PlainText(body) == "" {
		return nil, domainerrors.ValidationWithDetails("invalid body", map[string]string{"body": "is required"})
	}

	postID, err := id.Generate(domain.PostIDPrefix)
	if err != nil {
		return nil, fmt.Errorf("generate post ID: %w", err)
	}

	post := &domain.Post{
		UserID:      author.ID,
		AuthorName:  author.Name(),
		Title:       strings.TrimSpace(req.Title),
		Category:    req.Category,
		ContentHTML: body,
		Excerpt:     content.Excerpt(body, domain.ExcerptLength),
		ImageURL:    req.ImageURL,
	}
	post.ID = postID
	post.InitTimestamps()

	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, fromStore(err, "")
	}

	s.logger.Info("post created",
		slog.String("post_id", post.ID),
		slog.String("user_id", author.ID),
		slog.String("category", post.Category))
	return post, nil
}

// DeletePost removes a post. Only its author may delete it.
func (s *DirectoryService) DeletePost(ctx context.Context, userID, postID string) error {
	if userID == "" {
		return domainerrors.Unauthorized("sign in to delete posts")
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return fromStore(err, "post not found")
	}
	if post.UserID != userID {
		return domainerrors.PermissionDenied("only the author can delete this post")
	}
	if err := s.store.DeletePost(ctx, postID); err != nil {
		return fromStore(err, "post not found")
	}
	s.logger.Info("post deleted", slog.String("post_id", postID), slog.String("user_id", userID))
	return nil
}

// UpsertTrainer creates or replaces a trainer profile. It reports whether the trainer is new.
func (s *DirectoryService) UpsertTrainer(ctx context.Context, req UpsertTrainerRequest) (*domain.Trainer, bool, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, false, err
	}

	trainerID := req.ID
	if trainerID == "" {
		generated, err := id.Generate(domain.TrainerIDPrefix)
		if err != nil {
			return nil, false, fmt.Errorf("generate trainer ID: %w", err)
		}
		trainerID = generated
	} else if res, ok := domain.ResourceForID(trainerID); !ok || res != domain.ResourceTrainers {
		return nil, false, domainerrors.Validationf("trainer id must start with %q", domain.TrainerIDPrefix+"-")
	}

	now := time.Now().UTC()
	t := &domain.Trainer{
		Entity:       domain.Entity{ID: trainerID, CreatedAt: now, UpdatedAt: now},
		UserID:       req.UserID,
		Name:         strings.TrimSpace(req.Name),
		Level:        strings.TrimSpace(req.Level),
		Specialty:    strings.TrimSpace(req.Specialty),
		Region:       strings.TrimSpace(req.Region),
		Experience:   strings.TrimSpace(req.Experience),
		ImageURL:     req.ImageURL,
		Introduction: strings.TrimSpace(req.Introduction),
	}

	created, err := s.store.UpsertTrainer(ctx, t)
	if err != nil {
		return nil, false, fromStore(err, "")
	}
	return t, created, nil
}

// DeleteTrainer removes a trainer profile and its engagements.
func (s *DirectoryService) DeleteTrainer(ctx context.Context, trainerID string) error {
	return fromStore(s.store.DeleteTrainer(ctx, trainerID), "trainer not found")
}

// TrainerIDs lists every stored trainer ID.
func (s *DirectoryService) TrainerIDs(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListTrainerIDs(ctx)
	return ids, fromStore(err, "")
}

// ListBookmarks returns the items the viewer bookmarked, most recent first.
func (s *DirectoryService) ListBookmarks(ctx context.Context, viewer domain.Viewer) ([]domain.Item, error) {
	if viewer.IsZero() || viewer.IsGuest() {
		return nil, domainerrors.PermissionDenied("bookmarks require an account")
	}

	ids, err := s.store.ListEngagedItemIDs(ctx, viewer.ID, domain.KindBookmark)
	if err != nil {
		return nil, fromStore(err, "")
	}

	byResource := map[domain.Resource][]string{}
	for _, itemID := range ids {
		if res, ok := domain.ResourceForID(itemID); ok {
			byResource[res] = append(byResource[res], itemID)
		}
	}

	found := make(map[string]domain.Item, len(ids))
	for res, resIDs := range byResource {
		items, err := s.ListItems(ctx, domain.Query{Resource: res, IDs: resIDs, Limit: len(resIDs)})
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			found[it.ID] = it
		}
	}

	out := make([]domain.Item, 0, len(found))
	for _, itemID := range ids {
		if it, ok := found[itemID]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}
