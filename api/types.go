package api

import (
	"context"

	"github.com/wilhelmusolejr/to-do-list/domain"
)

// Store abstracts task persistence for handlers.
type Store interface {
	CreateTask(ctx context.Context, ownerID, title string, category domain.Category, items []string) (domain.Task, error)
	ListTaskTitles(ctx context.Context, ownerID string) ([]domain.TaskTitle, error)
	GetTask(ctx context.Context, ownerID, taskID string) (domain.Task, error)
	ListTasksFull(ctx context.Context, ownerID string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) (domain.Task, error)
	UpdateSubItemStatus(ctx context.Context, ownerID, taskID, itemID string, completed bool) (domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// Authenticator is implemented by types able to extract owner IDs from
// Authorization headers.
type Authenticator interface {
	OwnerIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, ownerID, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, ownerID, key string) error
}
