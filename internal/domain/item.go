package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ExcerptLength is the maximum number of runes shown in list previews.
const ExcerptLength = 120

// Item is the flattened projection of a trainer or post shown in lists.
// Clients treat it as a cache entry; the server copy is authoritative.
type Item struct {
	ID        string    `json:"id"`
	Resource  Resource  `json:"resource"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle,omitempty"`
	Region    string    `json:"region,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	AuthorID  string    `json:"author_id,omitempty"`
	Excerpt   string    `json:"excerpt,omitempty"`
	LikeCount int       `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResourceForID infers the resource from an item id prefix.
func ResourceForID(itemID string) (Resource, bool) {
	prefix, _, ok := strings.Cut(itemID, "-")
	if !ok {
		return "", false
	}
	switch prefix {
	case TrainerIDPrefix:
		return ResourceTrainers, true
	case PostIDPrefix:
		return ResourcePosts, true
	default:
		return "", false
	}
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "…"
}
