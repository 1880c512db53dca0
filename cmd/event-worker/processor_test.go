package main

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wilhelmusolejr/to-do-list/domain"
)

type fakeEvictor struct {
	ownerID string
	err     error
}

func (f *fakeEvictor) Evict(ctx context.Context, ownerID string) error {
	f.ownerID = ownerID
	return f.err
}

func newWorkerRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestProcessEventEvictsAndPublishes(t *testing.T) {
	rc, _ := newWorkerRedis(t)
	ctx := context.Background()
	evictor := &fakeEvictor{}

	pubsub := rc.Subscribe(ctx, "task-updates")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	done := make(chan string, 1)
	go func() {
		msg := <-pubsub.Channel()
		done <- msg.Payload
	}()

	ev := domain.Event{ID: "e1", EntityType: "task", Type: domain.TaskCreated, UserID: "U1"}
	payload := `{"id":"e1","entityType":"task"}`
	if err := processEvent(ctx, evictor, rc, "task-updates", ev, payload); err != nil {
		t.Fatalf("processEvent: %v", err)
	}
	if evictor.ownerID != "U1" {
		t.Fatalf("expected eviction for U1, got %q", evictor.ownerID)
	}
	select {
	case pl := <-done:
		if pl != payload {
			t.Fatalf("unexpected payload %s", pl)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestProcessEventStopsOnEvictionFailure(t *testing.T) {
	rc, _ := newWorkerRedis(t)
	ctx := context.Background()
	evictor := &fakeEvictor{err: errors.New("redis down")}

	ev := domain.Event{ID: "e1", EntityType: "task", Type: domain.TaskDeleted, UserID: "U1"}
	if err := processEvent(ctx, evictor, rc, "task-updates", ev, `{}`); err == nil {
		t.Fatal("expected eviction failure to surface")
	}
}

func TestRedisEvictorDropsListingKeys(t *testing.T) {
	rc, mr := newWorkerRedis(t)
	ctx := context.Background()

	if err := mr.Set("titles:U1", "cached"); err != nil {
		t.Fatalf("seed titles: %v", err)
	}
	if err := mr.Set("tasks:U1", "cached"); err != nil {
		t.Fatalf("seed tasks: %v", err)
	}

	if err := (redisEvictor{client: rc}).Evict(ctx, "U1"); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if mr.Exists("titles:U1") || mr.Exists("tasks:U1") {
		t.Fatal("expected listing keys to be gone")
	}
}
