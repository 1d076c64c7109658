// Package sse implements Server-Sent Events for directory change notifications.
package sse

import (
	"time"

	"github.com/ceskapp/directory/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventResourceChanged reports that a resource changed. Clients refetch.
	EventResourceChanged EventType = "resource.changed"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"

	// EventConnected is the first event written on every stream.
	EventConnected EventType = "connected"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// Resource is used for per-client filtering and is not sent to clients.
	Resource domain.Resource `json:"-"`
}

// NewChangeEvent creates a resource.changed event from a store change.
func NewChangeEvent(change domain.Change) Event {
	return Event{
		Type:      EventResourceChanged,
		Data:      change,
		Resource:  change.Resource,
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      struct{}{},
		Timestamp: time.Now(),
	}
}
