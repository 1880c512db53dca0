package domain

import "encoding/json"

const (
	TaskCreated       = "task-created"
	TaskUpdated       = "task-updated"
	TaskStatusChanged = "task-status-changed"
	TaskDeleted       = "task-deleted"
)

// Event records a change to a task for downstream consumers of the event
// queue.
type Event struct {
	ID         string          `json:"id"`
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Time       int64           `json:"time"`
	UserID     string          `json:"userId"`
}

type TaskCreatedEventData struct {
	Title    string   `json:"title"`
	Category Category `json:"category"`
	Items    []string `json:"items"`
}

type TaskStatusChangedEventData struct {
	ItemID    string `json:"itemId"`
	Completed bool   `json:"completed"`
}
