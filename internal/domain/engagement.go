package domain

import (
	"fmt"
	"time"
)

// EngagementKind is the kind of fact recorded for a (viewer, item) pair.
type EngagementKind string

const (
	KindView     EngagementKind = "view"
	KindLike     EngagementKind = "like"
	KindBookmark EngagementKind = "bookmark"
)

// ParseEngagementKind validates a kind name.
func ParseEngagementKind(s string) (EngagementKind, error) {
	switch k := EngagementKind(s); k {
	case KindView, KindLike, KindBookmark:
		return k, nil
	default:
		return "", fmt.Errorf("unknown engagement kind %q", s)
	}
}

// Toggleable reports whether the kind can be unrecorded. Views are permanent.
func (k EngagementKind) Toggleable() bool {
	return k == KindLike || k == KindBookmark
}

// RequiresAccount reports whether guests are barred from recording this kind.
func (k EngagementKind) RequiresAccount() bool {
	return k == KindBookmark
}

// EngagementKey identifies at most one engagement record.
type EngagementKey struct {
	ItemID string         `json:"item_id"`
	Viewer Viewer         `json:"viewer"`
	Kind   EngagementKind `json:"kind"`
}

// Engagement is a recorded view, like or bookmark.
type Engagement struct {
	ItemID    string         `json:"item_id"`
	Viewer    Viewer         `json:"viewer"`
	Kind      EngagementKind `json:"kind"`
	CreatedAt time.Time      `json:"created_at"`
}

// Key returns the record's composite key.
func (e Engagement) Key() EngagementKey {
	return EngagementKey{ItemID: e.ItemID, Viewer: e.Viewer, Kind: e.Kind}
}

// EngagementState is the per-item engagement picture for one viewer.
// LikeCount always reflects the number of distinct like records on the item.
type EngagementState struct {
	ItemID     string `json:"item_id"`
	Viewed     bool   `json:"viewed"`
	Liked      bool   `json:"liked"`
	Bookmarked bool   `json:"bookmarked"`
	LikeCount  int    `json:"like_count"`
}

// Has reports whether the viewer holds a record of the given kind.
func (s EngagementState) Has(kind EngagementKind) bool {
	switch kind {
	case KindView:
		return s.Viewed
	case KindLike:
		return s.Liked
	case KindBookmark:
		return s.Bookmarked
	default:
		return false
	}
}

// With returns a copy with the presence of kind set.
func (s EngagementState) With(kind EngagementKind, present bool) EngagementState {
	switch kind {
	case KindView:
		s.Viewed = present
	case KindLike:
		s.Liked = present
	case KindBookmark:
		s.Bookmarked = present
	}
	return s
}
