package models

import (
	"time"
)

// EventType categorizes events in the system.
type EventType string

const (
	// Grid events
	EventTypeGridChanged       EventType = "grid.changed"
	EventTypeGridLayoutChanged EventType = "grid.layout_changed"
	EventTypeGridReset         EventType = "grid.reset"

	// Content events
	EventTypeContentAdded   EventType = "content.added"
	EventTypeContentRemoved EventType = "content.removed"

	// Protocol events
	EventTypeProtocolApplied EventType = "protocol.applied"
	EventTypeProtocolFailed  EventType = "protocol.failed"
	EventTypeProtocolsLoaded EventType = "protocol.loaded"
	EventTypeStageExhausted  EventType = "stage.exhausted"
	EventTypeLayoutRejected  EventType = "layout.rejected"
	EventTypeLayoutDeferred  EventType = "layout.deferred"

	// System events
	EventTypeError   EventType = "error"
	EventTypeWarning EventType = "warning"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeGrid     EntityType = "grid"
	EntityTypeContent  EntityType = "content"
	EntityTypeProtocol EntityType = "protocol"
	EntityTypeSystem   EntityType = "system"
)

// Event is an in-process notification.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload any `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// GridChangedPayload is the payload for grid.* events.
type GridChangedPayload struct {
	State  GridState `json:"state"`
	Reason string    `json:"reason"`
}

// ContentRemovedPayload is the payload for content.removed events.
type ContentRemovedPayload struct {
	DisplaySetUIDs []string `json:"display_set_uids"`
}

// ProtocolAppliedPayload is the payload for protocol.applied and protocol.failed events.
type ProtocolAppliedPayload struct {
	ProtocolID string `json:"protocol_id"`
	StageIndex int    `json:"stage_index"`
	StudyUID   string `json:"study_uid,omitempty"`
	Restored   bool   `json:"restored,omitempty"`
	Error      string `json:"error,omitempty"`
}
