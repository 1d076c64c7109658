// Package store defines the persistence ports shared by the SQLite adapter and the services.
package store

// EventEmitter is the interface for emitting change events.
// Stores use this to broadcast changes without depending on the fanout implementation.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// TrainerFilter narrows trainer listings.
type TrainerFilter struct {
	// Region is matched by substring against the normalized region key.
	Region string
	// Search is matched by substring against name, region and specialty.
	Search string
	IDs    []string
	Limit  int
}

// PostFilter narrows post listings.
type PostFilter struct {
	Category string
	Search   string
	AuthorID string
	IDs      []string
	Limit    int
}

// DefaultListLimit caps listings when no limit is given.
const DefaultListLimit = 200
