package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wilhelmusolejr/to-do-list/domain"
)

// MemStore is an in-memory task store with the same contract and
// validation rules as Storage. It backs tests and local development;
// listings come back in creation order.
type MemStore struct {
	mu    sync.Mutex
	now   func() time.Time
	tasks map[string]map[string]domain.Task
	order map[string][]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		now:   time.Now,
		tasks: map[string]map[string]domain.Task{},
		order: map[string][]string{},
	}
}

// SetNow overrides the clock used for creation timestamps.
func (m *MemStore) SetNow(now func() time.Time) {
	m.now = now
}

func (m *MemStore) CreateTask(_ context.Context, ownerID, title string, category domain.Category, items []string) (domain.Task, error) {
	if ownerID == "" {
		return domain.Task{}, domain.ValidationError{Field: "owner_id", Reason: "owner is required"}
	}
	title, err := domain.ValidateTitle(title)
	if err != nil {
		return domain.Task{}, err
	}
	if !category.Valid() {
		return domain.Task{}, domain.ValidationError{Field: "category", Reason: "unknown category"}
	}
	items, err = domain.NormalizeItems(items)
	if err != nil {
		return domain.Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	task := domain.Task{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Category:  category,
		CreatedAt: m.now().UTC(),
		Items:     make([]domain.SubItem, 0, len(items)),
	}
	for _, desc := range items {
		task.Items = append(task.Items, domain.SubItem{ID: uuid.NewString(), Description: desc})
	}
	if m.tasks[ownerID] == nil {
		m.tasks[ownerID] = map[string]domain.Task{}
	}
	m.tasks[ownerID][task.ID] = cloneTask(task)
	m.order[ownerID] = append(m.order[ownerID], task.ID)
	return task, nil
}

func (m *MemStore) ListTaskTitles(_ context.Context, ownerID string) ([]domain.TaskTitle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	titles := make([]domain.TaskTitle, 0, len(m.order[ownerID]))
	for _, id := range m.order[ownerID] {
		t := m.tasks[ownerID][id]
		titles = append(titles, domain.TaskTitle{ID: t.ID, Title: t.Title, CreatedAt: t.CreatedAt})
	}
	return titles, nil
}

func (m *MemStore) GetTask(_ context.Context, ownerID, taskID string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[ownerID][taskID]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return cloneTask(t), nil
}

func (m *MemStore) ListTasksFull(_ context.Context, ownerID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]domain.Task, 0, len(m.order[ownerID]))
	for _, id := range m.order[ownerID] {
		tasks = append(tasks, cloneTask(m.tasks[ownerID][id]))
	}
	return tasks, nil
}

func (m *MemStore) UpdateTask(_ context.Context, ownerID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	if upd.Empty() {
		return domain.Task{}, domain.ValidationError{Field: "update", Reason: "no fields supplied"}
	}
	var newTitle string
	if upd.Title != nil {
		var err error
		newTitle, err = domain.ValidateTitle(*upd.Title)
		if err != nil {
			return domain.Task{}, err
		}
	}
	if upd.Category != nil && !upd.Category.Valid() {
		return domain.Task{}, domain.ValidationError{Field: "category", Reason: "unknown category"}
	}
	var newItems []string
	if upd.Items != nil {
		var err error
		newItems, err = domain.NormalizeItems(*upd.Items)
		if err != nil {
			return domain.Task{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[ownerID][taskID]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	if upd.Title != nil {
		t.Title = newTitle
	}
	if upd.Category != nil {
		t.Category = *upd.Category
	}
	if upd.Items != nil {
		t.Items = make([]domain.SubItem, 0, len(newItems))
		for _, desc := range newItems {
			t.Items = append(t.Items, domain.SubItem{ID: uuid.NewString(), Description: desc})
		}
	}
	m.tasks[ownerID][taskID] = cloneTask(t)
	return t, nil
}

func (m *MemStore) UpdateSubItemStatus(_ context.Context, ownerID, taskID, itemID string, completed bool) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[ownerID][taskID]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	for i := range t.Items {
		if t.Items[i].ID == itemID {
			t.Items[i].Completed = completed
			m.tasks[ownerID][taskID] = cloneTask(t)
			return cloneTask(t), nil
		}
	}
	return domain.Task{}, domain.ErrNotFound
}

func (m *MemStore) DeleteTask(_ context.Context, ownerID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[ownerID][taskID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.tasks[ownerID], taskID)
	ids := m.order[ownerID]
	for i, id := range ids {
		if id == taskID {
			m.order[ownerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func cloneTask(t domain.Task) domain.Task {
	out := t
	out.Items = make([]domain.SubItem, len(t.Items))
	copy(out.Items, t.Items)
	return out
}
