package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/service"
)

func (s *Server) registerItemRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listItems",
		Method:      http.MethodGet,
		Path:        "/api/v1/items/{resource}",
		Summary:     "List directory items",
		Description: "Lists trainers or posts, optionally filtered by region, search text, category, author or ids",
		Tags:        []string{"Directory"},
	}, s.handleListItems)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTrainer",
		Method:      http.MethodGet,
		Path:        "/api/v1/trainers/{id}",
		Summary:     "Get trainer",
		Description: "Returns a trainer profile with its like count",
		Tags:        []string{"Directory"},
	}, s.handleGetTrainer)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPost",
		Method:      http.MethodGet,
		Path:        "/api/v1/posts/{id}",
		Summary:     "Get post",
		Description: "Returns a board post with a Markdown rendition of its body",
		Tags:        []string{"Board"},
	}, s.handleGetPost)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createPost",
		Method:        http.MethodPost,
		Path:          "/api/v1/posts",
		Summary:       "Create post",
		Description:   "Publishes a board post as the signed-in user",
		Tags:          []string{"Board"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreatePost)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deletePost",
		Method:        http.MethodDelete,
		Path:          "/api/v1/posts/{id}",
		Summary:       "Delete post",
		Description:   "Deletes a post. Only its author may delete it",
		Tags:          []string{"Board"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleDeletePost)

	huma.Register(s.api, huma.Operation{
		OperationID: "listBookmarks",
		Method:      http.MethodGet,
		Path:        "/api/v1/me/bookmarks",
		Summary:     "My bookmarks",
		Description: "Lists the items the signed-in user bookmarked, most recent first",
		Tags:        []string{"Engagement"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBookmarks)
}

// ListItemsInput contains parameters for listing directory items.
type ListItemsInput struct {
	Resource string `path:"resource" enum:"trainers,posts" doc:"Resource to list"`
	Region   string `query:"region" doc:"Region substring (trainers only)"`
	Search   string `query:"search" doc:"Free text search"`
	Category string `query:"category" doc:"Board category (posts only)"`
	AuthorID string `query:"author_id" doc:"Author user ID (posts only)"`
	IDs      string `query:"ids" doc:"Comma separated item IDs"`
	Limit    int    `query:"limit" minimum:"0" maximum:"200" doc:"Maximum items to return"`
}

// ItemsResponse contains a list of directory items.
type ItemsResponse struct {
	Items []domain.Item `json:"items" doc:"Matching items"`
}

// ItemsOutput wraps the items response for Huma.
type ItemsOutput struct {
	Body ItemsResponse
}

// IDPathInput identifies one entity by path.
type IDPathInput struct {
	ID string `path:"id" doc:"Entity ID"`
}

// TrainerOutput wraps a trainer profile for Huma.
type TrainerOutput struct {
	Body *service.TrainerDetail
}

// PostOutput wraps a post with its rendition for Huma.
type PostOutput struct {
	Body *service.PostDetail
}

// CreatePostInput wraps the create post request for Huma.
type CreatePostInput struct {
	Body service.CreatePostRequest
}

// CreatedPostOutput wraps a newly created post for Huma.
type CreatedPostOutput struct {
	Body *domain.Post
}

func (s *Server) handleListItems(ctx context.Context, input *ListItemsInput) (*ItemsOutput, error) {
	resource, err := domain.ParseResource(input.Resource)
	if err != nil || !resource.Listable() {
		return nil, domainerrors.Validationf("resource %q cannot be listed", input.Resource)
	}

	items, err := s.services.Directory.ListItems(ctx, domain.Query{
		Resource: resource,
		Region:   input.Region,
		Search:   input.Search,
		Category: input.Category,
		AuthorID: input.AuthorID,
		IDs:      splitIDs(input.IDs),
		Limit:    input.Limit,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Item{}
	}
	return &ItemsOutput{Body: ItemsResponse{Items: items}}, nil
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

func (s *Server) handleGetTrainer(ctx context.Context, input *IDPathInput) (*TrainerOutput, error) {
	detail, err := s.services.Directory.GetTrainer(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &TrainerOutput{Body: detail}, nil
}

func (s *Server) handleGetPost(ctx context.Context, input *IDPathInput) (*PostOutput, error) {
	detail, err := s.services.Directory.GetPost(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &PostOutput{Body: detail}, nil
}

func (s *Server) handleCreatePost(ctx context.Context, input *CreatePostInput) (*CreatedPostOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	post, err := s.services.Directory.CreatePost(ctx, userID, input.Body)
	if err != nil {
		return nil, err
	}
	return &CreatedPostOutput{Body: post}, nil
}

func (s *Server) handleDeletePost(ctx context.Context, input *IDPathInput) (*struct{}, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Directory.DeletePost(ctx, userID, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleListBookmarks(ctx context.Context, _ *struct{}) (*ItemsOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.services.Directory.ListBookmarks(ctx, domain.AuthenticatedViewer(userID))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Item{}
	}
	return &ItemsOutput{Body: ItemsResponse{Items: items}}, nil
}
