package domain

import (
	"strings"
	"time"
)

// Category classifies a task. The set is closed; anything else is rejected
// at the store boundary.
type Category string

const (
	CategoryNone     Category = ""
	CategoryHealth   Category = "health"
	CategoryGrocery  Category = "grocery"
	CategoryPersonal Category = "personal"
	CategoryWork     Category = "work"
)

// Valid reports whether c is one of the known categories. The empty
// category counts as valid: tasks may be left uncategorized.
func (c Category) Valid() bool {
	switch c {
	case CategoryNone, CategoryHealth, CategoryGrocery, CategoryPersonal, CategoryWork:
		return true
	}
	return false
}

// SubItem is one completable line inside a task.
type SubItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Task is a titled, dated unit of work owned by a single user. Items keep
// their insertion order across every read.
type Task struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	Items     []SubItem `json:"items"`
}

// TaskTitle is the flat record returned by title listings and consumed by
// the grouped view.
type TaskTitle struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskUpdate carries a partial task edit. Nil fields keep their prior
// values; a supplied Items slice replaces the task's items wholesale.
type TaskUpdate struct {
	Title    *string   `json:"title,omitempty"`
	Category *Category `json:"category,omitempty"`
	Items    *[]string `json:"items,omitempty"`
}

// Empty reports whether the update carries no fields at all.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Category == nil && u.Items == nil
}

// NormalizeItems trims every description and rejects blanks. Blank line
// items render as empty checkboxes in the dashboard, so they are refused
// here rather than silently stored.
func NormalizeItems(items []string) ([]string, error) {
	if len(items) == 0 {
		return nil, ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	out := make([]string, len(items))
	for i, it := range items {
		trimmed := strings.TrimSpace(it)
		if trimmed == "" {
			return nil, ValidationError{Field: "items", Reason: "item descriptions must not be blank"}
		}
		out[i] = trimmed
	}
	return out, nil
}

// ValidateTitle trims the title and rejects blanks.
func ValidateTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", ValidationError{Field: "title", Reason: "title must not be empty"}
	}
	return trimmed, nil
}
