package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/wilhelmusolejr/to-do-list/domain"
)

type fakeTable struct {
	getFn    func(ctx context.Context, pk, rk string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	updateFn func(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	submitFn func(ctx context.Context, actions []aztables.TransactionAction, o *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
	listFn   func(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]

	updates     [][]byte
	submitCalls int
	listCalls   int
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, o *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	return aztables.AddEntityResponse{}, errors.New("unexpected AddEntity call")
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	if f.getFn == nil {
		return aztables.GetEntityResponse{}, errors.New("unexpected GetEntity call")
	}
	return f.getFn(ctx, pk, rk, o)
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.updates = append(f.updates, entity)
	if f.updateFn == nil {
		return aztables.UpdateEntityResponse{}, errors.New("unexpected UpdateEntity call")
	}
	return f.updateFn(ctx, entity, o)
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, o *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	return aztables.DeleteEntityResponse{}, errors.New("unexpected DeleteEntity call")
}

func (f *fakeTable) SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, o *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error) {
	f.submitCalls++
	if f.submitFn == nil {
		return aztables.TransactionResponse{}, errors.New("unexpected SubmitTransaction call")
	}
	return f.submitFn(ctx, actions, o)
}

func (f *fakeTable) NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	f.listCalls++
	if f.listFn == nil {
		return singleListPage(nil)
	}
	return f.listFn(o)
}

func singleListPage(entities [][]byte) *runtime.Pager[aztables.ListEntitiesResponse] {
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			return aztables.ListEntitiesResponse{Entities: entities}, nil
		},
	})
}

type fakeEventQueue struct {
	messages []string
}

func (f *fakeEventQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func taskRowPayload(t *testing.T, ownerID, taskID, title, category string) []byte {
	t.Helper()
	payload, err := json.Marshal(taskEntity{
		Entity:        aztables.Entity{PartitionKey: ownerID, RowKey: taskID},
		Title:         title,
		Category:      category,
		CreatedAt:     time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC).UnixNano(),
		CreatedAtType: edmInt64,
	})
	if err != nil {
		t.Fatalf("marshal task row: %v", err)
	}
	return payload
}

func TestUpdateTaskRowWriteFailureLeavesItemsUntouched(t *testing.T) {
	row := taskRowPayload(t, "U1", "t1", "Groceries", "grocery")
	taskTable := &fakeTable{
		getFn: func(ctx context.Context, pk, rk string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
			return aztables.GetEntityResponse{Value: row}, nil
		},
		updateFn: func(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
			return aztables.UpdateEntityResponse{}, errors.New("throttled")
		},
	}
	itemTable := &fakeTable{}
	store := &Storage{taskTable: taskTable, itemTable: itemTable, now: time.Now}

	newTitle := "Weekly shop"
	newItems := []string{"Milk"}
	_, err := store.UpdateTask(context.Background(), "U1", "t1", domain.TaskUpdate{Title: &newTitle, Items: &newItems})
	if err == nil {
		t.Fatal("expected row write failure to surface")
	}
	if itemTable.listCalls != 0 || itemTable.submitCalls != 0 {
		t.Fatalf("items must stay untouched when the row write fails, list=%d submit=%d", itemTable.listCalls, itemTable.submitCalls)
	}
}

func TestUpdateTaskItemFailureRollsBackRow(t *testing.T) {
	row := taskRowPayload(t, "U1", "t1", "Groceries", "grocery")
	taskTable := &fakeTable{
		getFn: func(ctx context.Context, pk, rk string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
			return aztables.GetEntityResponse{Value: row}, nil
		},
		updateFn: func(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
			return aztables.UpdateEntityResponse{}, nil
		},
	}
	itemTable := &fakeTable{
		submitFn: func(ctx context.Context, actions []aztables.TransactionAction, o *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error) {
			return aztables.TransactionResponse{}, errors.New("batch rejected")
		},
	}
	store := &Storage{taskTable: taskTable, itemTable: itemTable, now: time.Now}

	newTitle := "Weekly shop"
	cat := domain.CategoryPersonal
	newItems := []string{"Milk"}
	_, err := store.UpdateTask(context.Background(), "U1", "t1", domain.TaskUpdate{Title: &newTitle, Category: &cat, Items: &newItems})
	if err == nil {
		t.Fatal("expected item batch failure to surface")
	}
	if len(taskTable.updates) != 2 {
		t.Fatalf("expected the row update and its rollback, got %d writes", len(taskTable.updates))
	}
	var rollback taskEntityUpdate
	if err := json.Unmarshal(taskTable.updates[1], &rollback); err != nil {
		t.Fatalf("decode rollback payload: %v", err)
	}
	if rollback.Title == nil || *rollback.Title != "Groceries" {
		t.Fatalf("rollback must restore the title, got %#v", rollback.Title)
	}
	if rollback.Category == nil || *rollback.Category != "grocery" {
		t.Fatalf("rollback must restore the category, got %#v", rollback.Category)
	}
}

func TestUpdateTaskEventCarriesStoredValues(t *testing.T) {
	row := taskRowPayload(t, "U1", "t1", "Groceries", "grocery")
	taskTable := &fakeTable{
		getFn: func(ctx context.Context, pk, rk string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
			return aztables.GetEntityResponse{Value: row}, nil
		},
		updateFn: func(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
			return aztables.UpdateEntityResponse{}, nil
		},
	}
	itemTable := &fakeTable{
		submitFn: func(ctx context.Context, actions []aztables.TransactionAction, o *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error) {
			return aztables.TransactionResponse{}, nil
		},
	}
	queue := &fakeEventQueue{}
	store := &Storage{taskTable: taskTable, itemTable: itemTable, eventQueue: queue, now: time.Now}

	newTitle := "  Weekly shop  "
	newItems := []string{" Milk ", "Eggs"}
	if _, err := store.UpdateTask(context.Background(), "U1", "t1", domain.TaskUpdate{Title: &newTitle, Items: &newItems}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(queue.messages) != 1 {
		t.Fatalf("expected one event, got %d", len(queue.messages))
	}
	var ev domain.Event
	if err := json.Unmarshal([]byte(queue.messages[0]), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != domain.TaskUpdated || ev.UserID != "U1" || ev.EntityID != "t1" {
		t.Fatalf("unexpected event: %#v", ev)
	}
	var applied domain.TaskUpdate
	if err := json.Unmarshal(ev.Data, &applied); err != nil {
		t.Fatalf("decode event data: %v", err)
	}
	if applied.Title == nil || *applied.Title != "Weekly shop" {
		t.Fatalf("event must carry the stored title, got %#v", applied.Title)
	}
	if applied.Items == nil || (*applied.Items)[0] != "Milk" {
		t.Fatalf("event must carry the stored item descriptions, got %#v", applied.Items)
	}
}
