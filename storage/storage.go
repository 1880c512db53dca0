package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wilhelmusolejr/to-do-list/domain"
)

type tableClient interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	SubmitTransaction(ctx context.Context, transactionActions []aztables.TransactionAction, options *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage is the authoritative task store. Tasks are partitioned by owner,
// sub-items by their parent task, so every operation stays inside one
// owner's data.
type Storage struct {
	taskTable  tableClient
	itemTable  tableClient
	eventQueue queueClient
	now        func() time.Time
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, itemsTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	tt := svc.NewClient(tasksTable)
	it := svc.NewClient(itemsTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{taskTable: tt, itemTable: it, eventQueue: eq, now: time.Now}, nil
}

type taskEntity struct {
	aztables.Entity
	Title         string `json:"Title"`
	Category      string `json:"Category"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

type taskEntityUpdate struct {
	aztables.Entity
	Title    *string `json:"Title,omitempty"`
	Category *string `json:"Category,omitempty"`
}

type itemEntity struct {
	aztables.Entity
	Description string `json:"Description"`
	Pos         int    `json:"Pos"`
	Completed   bool   `json:"Completed"`
}

type itemEntityUpdate struct {
	aztables.Entity
	Completed *bool `json:"Completed,omitempty"`
}

const edmInt64 = "Edm.Int64"

// CreateTask persists a new task with its sub-items in input order and
// returns the stored task. The creation instant is assigned here, in UTC.
func (s *Storage) CreateTask(ctx context.Context, ownerID, title string, category domain.Category, items []string) (domain.Task, error) {
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

	taskID := uuid.NewString()
	createdAt := s.now().UTC()
	ent := taskEntity{
		Entity:        aztables.Entity{PartitionKey: ownerID, RowKey: taskID},
		Title:         title,
		Category:      string(category),
		CreatedAt:     createdAt.UnixNano(),
		CreatedAtType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}

	task := domain.Task{
		ID:        taskID,
		OwnerID:   ownerID,
		Title:     title,
		Category:  category,
		CreatedAt: createdAt,
		Items:     make([]domain.SubItem, 0, len(items)),
	}
	actions := make([]aztables.TransactionAction, 0, len(items))
	for i, desc := range items {
		item := domain.SubItem{ID: uuid.NewString(), Description: desc}
		ie := itemEntity{
			Entity:      aztables.Entity{PartitionKey: taskID, RowKey: item.ID},
			Description: desc,
			Pos:         i,
		}
		data, err := json.Marshal(ie)
		if err != nil {
			return domain.Task{}, err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: data})
		task.Items = append(task.Items, item)
	}
	if _, err := s.itemTable.SubmitTransaction(ctx, actions, nil); err != nil {
		// Roll the task row back so a half-created task never surfaces.
		if _, delErr := s.taskTable.DeleteEntity(ctx, ownerID, taskID, nil); delErr != nil {
			log.WithError(delErr).WithField("task", taskID).Error("failed to roll back task row after item insert failure")
		}
		return domain.Task{}, err
	}

	s.publishEvent(ctx, ownerID, taskID, domain.TaskCreated, domain.TaskCreatedEventData{
		Title:    title,
		Category: category,
		Items:    items,
	})
	return task, nil
}

// ListTaskTitles returns every task title owned by ownerID in storage
// order. Callers wanting chronological buckets sort before grouping.
func (s *Storage) ListTaskTitles(ctx context.Context, ownerID string) ([]domain.TaskTitle, error) {
	ents, err := s.listTaskRows(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	titles := make([]domain.TaskTitle, 0, len(ents))
	for _, e := range ents {
		titles = append(titles, domain.TaskTitle{
			ID:        e.RowKey,
			Title:     e.Title,
			CreatedAt: time.Unix(0, e.CreatedAt).UTC(),
		})
	}
	return titles, nil
}

// GetTask returns one full task. Missing and non-owned tasks yield the
// same ErrNotFound.
func (s *Storage) GetTask(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	ent, err := s.getTaskRow(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if ent == nil {
		return domain.Task{}, domain.ErrNotFound
	}
	return s.assembleTask(ctx, *ent)
}

// ListTasksFull returns every task owned by ownerID with its sub-items.
func (s *Storage) ListTasksFull(ctx context.Context, ownerID string) ([]domain.Task, error) {
	ents, err := s.listTaskRows(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(ents))
	for _, e := range ents {
		task, err := s.assembleTask(ctx, e)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// UpdateTask applies a partial edit, in full or not at all. Supplied
// fields are validated up front; the task row is written before the item
// batch so an item-write failure can restore the row from the values read
// at the start.
func (s *Storage) UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
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

	ent, err := s.getTaskRow(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if ent == nil {
		return domain.Task{}, domain.ErrNotFound
	}

	rowTouched := upd.Title != nil || upd.Category != nil
	if rowTouched {
		rowUpd := taskEntityUpdate{Entity: aztables.Entity{PartitionKey: ownerID, RowKey: taskID}}
		if upd.Title != nil {
			rowUpd.Title = &newTitle
		}
		if upd.Category != nil {
			cat := string(*upd.Category)
			rowUpd.Category = &cat
		}
		if err := s.mergeTaskRow(ctx, rowUpd); err != nil {
			return domain.Task{}, err
		}
	}
	if upd.Items != nil {
		if err := s.replaceItems(ctx, taskID, newItems); err != nil {
			if rowTouched {
				// Restore the row so the caller never observes half an update.
				if rbErr := s.mergeTaskRow(ctx, revertTaskRow(*ent)); rbErr != nil {
					log.WithError(rbErr).WithField("task", taskID).Error("failed to roll back task row after item replace failure")
				}
			}
			return domain.Task{}, err
		}
	}

	applied := domain.TaskUpdate{Category: upd.Category}
	if upd.Title != nil {
		applied.Title = &newTitle
	}
	if upd.Items != nil {
		applied.Items = &newItems
	}
	s.publishEvent(ctx, ownerID, taskID, domain.TaskUpdated, applied)
	return s.GetTask(ctx, ownerID, taskID)
}

func (s *Storage) mergeTaskRow(ctx context.Context, rowUpd taskEntityUpdate) error {
	payload, err := json.Marshal(rowUpd)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return err
}

// revertTaskRow builds the merge that puts a task row back to the values
// it held before an update attempt.
func revertTaskRow(ent taskEntity) taskEntityUpdate {
	category := ent.Category
	title := ent.Title
	return taskEntityUpdate{
		Entity:   aztables.Entity{PartitionKey: ent.PartitionKey, RowKey: ent.RowKey},
		Title:    &title,
		Category: &category,
	}
}

// UpdateSubItemStatus toggles one sub-item's completed flag. An item ID
// that lives under a different task is ErrNotFound, same as an absent one.
func (s *Storage) UpdateSubItemStatus(ctx context.Context, ownerID, taskID, itemID string, completed bool) (domain.Task, error) {
	ent, err := s.getTaskRow(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if ent == nil {
		return domain.Task{}, domain.ErrNotFound
	}
	if _, err := s.itemTable.GetEntity(ctx, taskID, itemID, nil); err != nil {
		if isNotFound(err) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	itemUpd := itemEntityUpdate{
		Entity:    aztables.Entity{PartitionKey: taskID, RowKey: itemID},
		Completed: &completed,
	}
	payload, err := json.Marshal(itemUpd)
	if err != nil {
		return domain.Task{}, err
	}
	et := azcore.ETagAny
	if _, err := s.itemTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return domain.Task{}, err
	}

	s.publishEvent(ctx, ownerID, taskID, domain.TaskStatusChanged, domain.TaskStatusChangedEventData{
		ItemID:    itemID,
		Completed: completed,
	})
	return s.assembleTask(ctx, *ent)
}

// DeleteTask removes the task and all its sub-items. Deleting a task that
// is already gone is ErrNotFound, never a silent success.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	ent, err := s.getTaskRow(ctx, ownerID, taskID)
	if err != nil {
		return err
	}
	if ent == nil {
		return domain.ErrNotFound
	}
	items, err := s.listItemRows(ctx, taskID)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		actions := make([]aztables.TransactionAction, 0, len(items))
		for _, it := range items {
			data, err := json.Marshal(aztables.Entity{PartitionKey: taskID, RowKey: it.RowKey})
			if err != nil {
				return err
			}
			actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeDelete, Entity: data})
		}
		if _, err := s.itemTable.SubmitTransaction(ctx, actions, nil); err != nil {
			return err
		}
	}
	if _, err := s.taskTable.DeleteEntity(ctx, ownerID, taskID, nil); err != nil {
		return err
	}

	s.publishEvent(ctx, ownerID, taskID, domain.TaskDeleted, nil)
	return nil
}

func (s *Storage) getTaskRow(ctx context.Context, ownerID, taskID string) (*taskEntity, error) {
	resp, err := s.taskTable.GetEntity(ctx, ownerID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &ent, nil
}

func (s *Storage) listTaskRows(ctx context.Context, ownerID string) ([]taskEntity, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	ents := []taskEntity{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			ents = append(ents, ent)
		}
	}
	return ents, nil
}

func (s *Storage) listItemRows(ctx context.Context, taskID string) ([]itemEntity, error) {
	filter := "PartitionKey eq '" + taskID + "'"
	pager := s.itemTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	ents := []itemEntity{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent itemEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			ents = append(ents, ent)
		}
	}
	// Row keys are UUIDs, so listing order says nothing about insertion
	// order. Pos restores it.
	sort.Slice(ents, func(i, j int) bool { return ents[i].Pos < ents[j].Pos })
	return ents, nil
}

func (s *Storage) assembleTask(ctx context.Context, ent taskEntity) (domain.Task, error) {
	itemRows, err := s.listItemRows(ctx, ent.RowKey)
	if err != nil {
		return domain.Task{}, err
	}
	items := make([]domain.SubItem, 0, len(itemRows))
	for _, it := range itemRows {
		items = append(items, domain.SubItem{
			ID:          it.RowKey,
			Description: it.Description,
			Completed:   it.Completed,
		})
	}
	return domain.Task{
		ID:        ent.RowKey,
		OwnerID:   ent.PartitionKey,
		Title:     ent.Title,
		Category:  domain.Category(ent.Category),
		CreatedAt: time.Unix(0, ent.CreatedAt).UTC(),
		Items:     items,
	}, nil
}

// replaceItems swaps the full item set for a task in one same-partition
// transaction, so a failure leaves the previous items intact.
func (s *Storage) replaceItems(ctx context.Context, taskID string, items []string) error {
	existing, err := s.listItemRows(ctx, taskID)
	if err != nil {
		return err
	}
	actions := make([]aztables.TransactionAction, 0, len(existing)+len(items))
	for _, it := range existing {
		data, err := json.Marshal(aztables.Entity{PartitionKey: taskID, RowKey: it.RowKey})
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeDelete, Entity: data})
	}
	for i, desc := range items {
		ie := itemEntity{
			Entity:      aztables.Entity{PartitionKey: taskID, RowKey: uuid.NewString()},
			Description: desc,
			Pos:         i,
		}
		data, err := json.Marshal(ie)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: data})
	}
	_, err = s.itemTable.SubmitTransaction(ctx, actions, nil)
	return err
}

// publishEvent sends a task event to the events queue for downstream
// consumers. The mutation has already committed, so failures are logged
// rather than surfaced.
func (s *Storage) publishEvent(ctx context.Context, ownerID, taskID, eventType string, data any) {
	if s.eventQueue == nil {
		return
	}
	ev := domain.Event{
		ID:         uuid.NewString(),
		EntityID:   taskID,
		EntityType: "task",
		Type:       eventType,
		Time:       s.now().UnixNano(),
		UserID:     ownerID,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.WithError(err).WithField("task", taskID).Error("failed to marshal task event data")
			return
		}
		ev.Data = raw
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).WithField("task", taskID).Error("failed to marshal task event")
		return
	}
	if _, err := s.eventQueue.EnqueueMessage(ctx, string(msg), nil); err != nil {
		log.WithError(err).WithFields(log.Fields{"task": taskID, "event": eventType}).Error("failed to enqueue task event")
	}
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
