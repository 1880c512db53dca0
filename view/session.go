package view

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wilhelmusolejr/to-do-list/domain"
)

// ErrPendingMutation is returned when a mutation is issued for a task that
// already has one in flight. Callers disable the triggering control until
// the pending operation resolves.
var ErrPendingMutation = errors.New("mutation already pending for task")

// Store is the slice of the task store contract the session needs.
type Store interface {
	CreateTask(ctx context.Context, ownerID, title string, category domain.Category, items []string) (domain.Task, error)
	ListTaskTitles(ctx context.Context, ownerID string) ([]domain.TaskTitle, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) (domain.Task, error)
	UpdateSubItemStatus(ctx context.Context, ownerID, taskID, itemID string, completed bool) (domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// View is the session-held grouped structure plus its load state. It is
// not safe for concurrent use; the session model is cooperative with one
// mutation in flight at a time.
type View struct {
	loc    *time.Location
	state  State
	groups []DayGroup
	index  map[string]int
}

// NewView creates an empty, unloaded view grouping dates in loc. A nil
// location means UTC.
func NewView(loc *time.Location) *View {
	if loc == nil {
		loc = time.UTC
	}
	return &View{loc: loc, index: map[string]int{}}
}

// State returns the current load-cycle state.
func (v *View) State() State { return v.state }

// Groups returns the grouped view. Only meaningful in the Ready state;
// after a failure the previous groups are retained untouched so the caller
// can decide between last-known-good display and a failure indicator.
func (v *View) Groups() []DayGroup { return v.groups }

func (v *View) transition(to State) error {
	if !allowedTransition(v.state, to) {
		return fmt.Errorf("invalid view transition: %s -> %s", v.state, to)
	}
	v.state = to
	return nil
}

// seed replaces the view contents from a flat listing. Every full reload
// runs this same transform, so a seeded view is always a pure function of
// its input.
func (v *View) seed(titles []domain.TaskTitle) {
	v.groups = Group(titles, v.loc)
	v.index = make(map[string]int, len(v.groups))
	for i, g := range v.groups {
		v.index[g.Date] = i
	}
}

// AppendTask patches the view for a freshly created task: extend the
// task's date bucket if it exists, otherwise append a new bucket at the
// end. Existing buckets are never reordered.
func (v *View) AppendTask(t domain.TaskTitle) {
	key := DateKey(t.CreatedAt, v.loc)
	if i, ok := v.index[key]; ok {
		v.groups[i].Tasks = append(v.groups[i].Tasks, t)
		return
	}
	v.index[key] = len(v.groups)
	v.groups = append(v.groups, DayGroup{Date: key, Tasks: []domain.TaskTitle{t}})
}

// Session keeps one owner's grouped view consistent with store mutations.
// Creates are patched in place; update, delete and toggle paths refetch
// and rebuild, which is the simpler strategy for the rare paths where
// consistent grouping matters more than round-trips.
type Session struct {
	store   Store
	ownerID string
	view    *View
	pending map[string]struct{}
}

// NewSession creates a session for ownerID over the given store, grouping
// dates in loc.
func NewSession(store Store, ownerID string, loc *time.Location) *Session {
	return &Session{
		store:   store,
		ownerID: ownerID,
		view:    NewView(loc),
		pending: map[string]struct{}{},
	}
}

// View exposes the session's held view.
func (s *Session) View() *View { return s.view }

// Load fetches the flat title listing and rebuilds the grouped view. On
// failure the previous contents stay as they were and the view lands in
// Failed, which retries like Unloaded.
func (s *Session) Load(ctx context.Context) error {
	if err := s.view.transition(Loading); err != nil {
		return err
	}
	titles, err := s.store.ListTaskTitles(ctx, s.ownerID)
	if err != nil {
		_ = s.view.transition(Failed)
		return err
	}
	s.view.seed(titles)
	return s.view.transition(Ready)
}

// CreateTask creates a task and patches the held view without a refetch.
// The view is only touched once the store call has succeeded.
func (s *Session) CreateTask(ctx context.Context, title string, category domain.Category, items []string) (domain.Task, error) {
	task, err := s.store.CreateTask(ctx, s.ownerID, title, category, items)
	if err != nil {
		return domain.Task{}, err
	}
	if s.view.state == Ready {
		s.view.AppendTask(domain.TaskTitle{ID: task.ID, Title: task.Title, CreatedAt: task.CreatedAt})
	}
	return task, nil
}

// UpdateTask applies a partial edit and rebuilds the view from a fresh
// listing.
func (s *Session) UpdateTask(ctx context.Context, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	if err := s.acquire(taskID); err != nil {
		return domain.Task{}, err
	}
	defer s.release(taskID)
	task, err := s.store.UpdateTask(ctx, s.ownerID, taskID, upd)
	if err != nil {
		return domain.Task{}, err
	}
	return task, s.Load(ctx)
}

// ToggleItem flips one sub-item's completed flag. The grouped view keys on
// titles and dates only, so no rebuild is needed.
func (s *Session) ToggleItem(ctx context.Context, taskID, itemID string, completed bool) (domain.Task, error) {
	if err := s.acquire(taskID); err != nil {
		return domain.Task{}, err
	}
	defer s.release(taskID)
	return s.store.UpdateSubItemStatus(ctx, s.ownerID, taskID, itemID, completed)
}

// DeleteTask removes a task and rebuilds the view from a fresh listing.
func (s *Session) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.acquire(taskID); err != nil {
		return err
	}
	defer s.release(taskID)
	if err := s.store.DeleteTask(ctx, s.ownerID, taskID); err != nil {
		return err
	}
	return s.Load(ctx)
}

func (s *Session) acquire(taskID string) error {
	if _, ok := s.pending[taskID]; ok {
		return ErrPendingMutation
	}
	s.pending[taskID] = struct{}{}
	return nil
}

func (s *Session) release(taskID string) {
	delete(s.pending, taskID)
}
