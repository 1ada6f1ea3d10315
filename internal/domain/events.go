package domain

import (
	"time"
)

type EventType string

const (
	// Pipeline events (per file, aggregate_id = fingerprint key or path)
	FileDetected    EventType = "FileDetected"
	FileLinked      EventType = "FileLinked"
	FileUpgraded    EventType = "FileUpgraded"
	FileSkipped     EventType = "FileSkipped"
	ParseFailed     EventType = "ParseFailed"
	PlacementFailed EventType = "PlacementFailed"
	RetryScheduled  EventType = "RetryScheduled"
	PathAbandoned   EventType = "PathAbandoned"

	// Rescan events (aggregate_id = scan run ID)
	ScanStarted   EventType = "ScanStarted"
	ScanCompleted EventType = "ScanCompleted"

	// Janitor events
	JanitorStarted   EventType = "JanitorStarted"
	JanitorCompleted EventType = "JanitorCompleted"

	// Notification delivery events
	NotificationSent   EventType = "NotificationSent"
	NotificationFailed EventType = "NotificationFailed"
)

type Event struct {
	ID            int64                  `json:"id"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	CreatedAt     time.Time              `json:"created_at"`
}

// GetString safely extracts a string field from EventData.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetStringOr extracts a string field or returns the default value.
func (e *Event) GetStringOr(key, defaultVal string) string {
	if v, ok := e.GetString(key); ok {
		return v
	}
	return defaultVal
}

// GetInt64 safely extracts an int64 field from EventData.
// Handles both int64 and float64 (JSON unmarshaling produces float64).
func (e *Event) GetInt64(key string) (int64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetInt64Or extracts an int64 field or returns the default value.
func (e *Event) GetInt64Or(key string, defaultVal int64) int64 {
	if v, ok := e.GetInt64(key); ok {
		return v
	}
	return defaultVal
}
