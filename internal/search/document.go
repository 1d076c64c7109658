// Package search provides full-text search over the trainer directory using Bleve.
// The index lives in memory and is rebuilt from the directory whenever trainers change.
package search

import (
	"strings"
	"unicode"

	"github.com/ceskapp/directory/internal/domain"
)

// TrainerDocument is the indexed form of a trainer item.
type TrainerDocument struct {
	ID       string
	Name     string
	Subtitle string
	Region   string
	Excerpt  string
	ImageURL string

	// RegionKey is the normalized region, kept whole for region filters.
	RegionKey string
	LikeCount int
	UpdatedAt int64 // Unix millis
}

// NewTrainerDocument builds a document from a directory item.
func NewTrainerDocument(item domain.Item) *TrainerDocument {
	return &TrainerDocument{
		ID:        item.ID,
		Name:      item.Title,
		Subtitle:  item.Subtitle,
		Region:    item.Region,
		Excerpt:   item.Excerpt,
		ImageURL:  item.ImageURL,
		RegionKey: domain.RegionKey(item.Region),
		LikeCount: item.LikeCount,
		UpdatedAt: item.UpdatedAt.UnixMilli(),
	}
}

// ToMap converts the document to a map whose keys match the index mapping.
func (d *TrainerDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"name":       normalizeText(d.Name),
		"region":     normalizeText(d.Region),
		"region_key": d.RegionKey,
		"like_count": d.LikeCount,
		"updated_at": d.UpdatedAt,

		"display_name":   d.Name,
		"display_region": d.Region,
	}
	if d.Subtitle != "" {
		m["subtitle"] = normalizeText(d.Subtitle)
		m["display_subtitle"] = d.Subtitle
	}
	if d.Excerpt != "" {
		m["excerpt"] = normalizeText(d.Excerpt)
	}
	if d.ImageURL != "" {
		m["image_url"] = d.ImageURL
	}
	return m
}

// normalizeText composes and folds text the same way region keys are, so that
// decomposed Hangul typed on some keyboards still matches.
func normalizeText(s string) string {
	return domain.RegionKey(s)
}

// queryTerms splits a user query into terms the way the simple analyzer splits
// indexed text, on anything that is not a letter.
func queryTerms(q string) []string {
	return strings.FieldsFunc(strings.ToLower(normalizeText(q)), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
