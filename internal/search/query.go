package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	domainerrors "github.com/ceskapp/directory/internal/errors"
)

// Sort orders for SearchParams.SortBy.
const (
	SortRelevance = "relevance"
	SortLikes     = "likes"
	SortRecent    = "recent"
)

// MaxLimit caps the page size.
const MaxLimit = 100

// SearchParams configures a trainer search.
type SearchParams struct {
	Query  string // Free text; every term must prefix-match some field
	Region string // Substring of the trainer's region, empty = all

	Limit  int
	Offset int
	SortBy string
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:  20,
		SortBy: SortRelevance,
	}
}

// SearchResult is a page of matching trainers.
type SearchResult struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit is one matching trainer.
type Hit struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Name      string  `json:"name"`
	Subtitle  string  `json:"subtitle,omitempty"`
	Region    string  `json:"region,omitempty"`
	ImageURL  string  `json:"image_url,omitempty"`
	LikeCount int     `json:"like_count"`
}

// Search executes a trainer search.
func (s *TrainerIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultSearchParams().Limit
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	if params.Offset < 0 {
		return nil, domainerrors.Validation("offset must not be negative")
	}

	searchRequest := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	switch params.SortBy {
	case "", SortRelevance:
		searchRequest.SortBy([]string{"-_score", "-like_count", "id"})
	case SortLikes:
		searchRequest.SortBy([]string{"-like_count", "-_score", "id"})
	case SortRecent:
		searchRequest.SortBy([]string{"-updated_at", "id"})
	default:
		return nil, domainerrors.Validationf("unknown sort %q", params.SortBy)
	}
	searchRequest.Fields = []string{
		"display_name", "display_subtitle", "display_region", "image_url", "like_count",
	}

	s.mu.RLock()
	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(searchResult.Hits)),
	}
	for _, hit := range searchResult.Hits {
		result.Hits = append(result.Hits, Hit{
			ID:        hit.ID,
			Score:     hit.Score,
			Name:      stringField(hit.Fields, "display_name"),
			Subtitle:  stringField(hit.Fields, "display_subtitle"),
			Region:    stringField(hit.Fields, "display_region"),
			ImageURL:  stringField(hit.Fields, "image_url"),
			LikeCount: intField(hit.Fields, "like_count"),
		})
	}
	return result, nil
}

// buildSearchQuery combines the text terms and the region filter.
func buildSearchQuery(params SearchParams) query.Query {
	var must []query.Query

	for _, term := range queryTerms(params.Query) {
		must = append(must, termQuery(term))
	}

	if key := normalizeText(params.Region); key != "" {
		wq := bleve.NewWildcardQuery("*" + escapeWildcard(key) + "*")
		wq.SetField("region_key")
		must = append(must, wq)
	}

	switch len(must) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return must[0]
	default:
		return bleve.NewConjunctionQuery(must...)
	}
}

// termQuery matches a term as a word prefix in any text field, with name matches
// ranked highest.
func termQuery(term string) query.Query {
	boosts := []struct {
		field string
		boost float64
	}{
		{"name", 3.0},
		{"subtitle", 1.5},
		{"region", 1.5},
		{"excerpt", 1.0},
	}
	should := make([]query.Query, 0, len(boosts))
	for _, b := range boosts {
		pq := bleve.NewPrefixQuery(term)
		pq.SetField(b.field)
		pq.SetBoost(b.boost)
		should = append(should, pq)
	}
	return bleve.NewDisjunctionQuery(should...)
}

func escapeWildcard(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)
	return r.Replace(s)
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func intField(fields map[string]any, name string) int {
	if v, ok := fields[name].(float64); ok {
		return int(v)
	}
	return 0
}
