// Package domain holds the core types of the trainer directory and community board.
package domain

import "fmt"

// Resource names a collection that can be queried and watched for changes.
type Resource string

const (
	// ResourceTrainers is the trainer directory.
	ResourceTrainers Resource = "trainers"
	// ResourcePosts is the community board.
	ResourcePosts Resource = "posts"
	// ResourceEngagements covers view, like and bookmark records.
	ResourceEngagements Resource = "engagements"
)

// ParseResource validates a resource name.
func ParseResource(s string) (Resource, error) {
	switch r := Resource(s); r {
	case ResourceTrainers, ResourcePosts, ResourceEngagements:
		return r, nil
	default:
		return "", fmt.Errorf("unknown resource %q", s)
	}
}

// Listable reports whether items of this resource can be listed as directory items.
func (r Resource) Listable() bool {
	return r == ResourceTrainers || r == ResourcePosts
}

// ID prefixes for directory entities. The prefix identifies the resource an item belongs to.
const (
	TrainerIDPrefix = "trn"
	PostIDPrefix    = "pst"
	UserIDPrefix    = "usr"
)
