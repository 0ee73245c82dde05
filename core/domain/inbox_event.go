package domain

import "time"

// EventType identifies a realtime event pushed to connected clients.
type EventType string

const (
	EventSyncStarted   EventType = "sync.started"
	EventSyncCompleted EventType = "sync.completed"
	EventSyncFailed    EventType = "sync.failed"
	EventNewEmail      EventType = "email.new"
	EventEmailUpdated  EventType = "email.updated"
	EventWatchExpired  EventType = "watch.expired"
)

// RealtimeEvent is delivered to SSE subscribers of a user.
type RealtimeEvent struct {
	Type      EventType   `json:"type"`
	Seq       int64       `json:"seq"`
	UserID    string      `json:"-"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent builds a realtime event stamped with the current time.
func NewEvent(eventType EventType, userID string, data interface{}) *RealtimeEvent {
	return &RealtimeEvent{
		Type:      eventType,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
