package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ceskapp/directory/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchTrainers",
		Method:      http.MethodGet,
		Path:        "/api/v1/search/trainers",
		Summary:     "Search trainers",
		Description: "Full-text trainer search over name, level, specialty, region and introduction",
		Tags:        []string{"Search"},
	}, s.handleSearchTrainers)
}

// SearchTrainersInput contains parameters for trainer search.
type SearchTrainersInput struct {
	Query  string `query:"q" doc:"Search text; every word must prefix-match"`
	Region string `query:"region" doc:"Region substring"`
	Sort   string `query:"sort" enum:"relevance,likes,recent" default:"relevance" doc:"Sort order"`
	Limit  int    `query:"limit" minimum:"0" maximum:"100" default:"20" doc:"Page size"`
	Offset int    `query:"offset" minimum:"0" doc:"Results to skip"`
}

// SearchTrainersOutput wraps the search result for Huma.
type SearchTrainersOutput struct {
	Body *search.SearchResult
}

func (s *Server) handleSearchTrainers(ctx context.Context, input *SearchTrainersInput) (*SearchTrainersOutput, error) {
	if s.services.Search == nil {
		return nil, huma.Error503ServiceUnavailable("Trainer search is disabled")
	}
	result, err := s.services.Search.Search(ctx, search.SearchParams{
		Query:  input.Query,
		Region: input.Region,
		Limit:  input.Limit,
		Offset: input.Offset,
		SortBy: input.Sort,
	})
	if err != nil {
		return nil, err
	}
	return &SearchTrainersOutput{Body: result}, nil
}
