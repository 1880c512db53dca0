package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wilhelmusolejr/to-do-list/domain"
)

type backend interface {
	CreateTask(ctx context.Context, ownerID, title string, category domain.Category, items []string) (domain.Task, error)
	ListTaskTitles(ctx context.Context, ownerID string) ([]domain.TaskTitle, error)
	GetTask(ctx context.Context, ownerID, taskID string) (domain.Task, error)
	ListTasksFull(ctx context.Context, ownerID string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) (domain.Task, error)
	UpdateSubItemStatus(ctx context.Context, ownerID, taskID, itemID string, completed bool) (domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// Cache wraps a Storage instance with Redis-backed caching for the listing
// reads. Mutations pass through and evict the owner's cached listings, so
// a stale view never survives a write.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching store wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) CreateTask(ctx context.Context, ownerID, title string, category domain.Category, items []string) (domain.Task, error) {
	task, err := c.base.CreateTask(ctx, ownerID, title, category, items)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, ownerID)
	return task, nil
}

func (c *Cache) ListTaskTitles(ctx context.Context, ownerID string) ([]domain.TaskTitle, error) {
	if titles, ok := loadCached[[]domain.TaskTitle](ctx, c, titlesCacheKey(ownerID)); ok {
		return titles, nil
	}
	titles, err := c.base.ListTaskTitles(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	c.storeCached(ctx, titlesCacheKey(ownerID), titles)
	return titles, nil
}

func (c *Cache) GetTask(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	return c.base.GetTask(ctx, ownerID, taskID)
}

func (c *Cache) ListTasksFull(ctx context.Context, ownerID string) ([]domain.Task, error) {
	if tasks, ok := loadCached[[]domain.Task](ctx, c, tasksCacheKey(ownerID)); ok {
		return tasks, nil
	}
	tasks, err := c.base.ListTasksFull(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	c.storeCached(ctx, tasksCacheKey(ownerID), tasks)
	return tasks, nil
}

func (c *Cache) UpdateTask(ctx context.Context, ownerID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	task, err := c.base.UpdateTask(ctx, ownerID, taskID, upd)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, ownerID)
	return task, nil
}

func (c *Cache) UpdateSubItemStatus(ctx context.Context, ownerID, taskID, itemID string, completed bool) (domain.Task, error) {
	task, err := c.base.UpdateSubItemStatus(ctx, ownerID, taskID, itemID, completed)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, ownerID)
	return task, nil
}

func (c *Cache) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if err := c.base.DeleteTask(ctx, ownerID, taskID); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func loadCached[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c.redis == nil {
		return zero, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return zero, false
	}
	return out, true
}

func (c *Cache) storeCached(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	_ = EvictCachedListings(ctx, c.redis, ownerID)
}

// EvictCachedListings drops an owner's cached listings. Out-of-process
// consumers of the task event queue use this to invalidate entries written
// by other API instances.
func EvictCachedListings(ctx context.Context, client *redis.Client, ownerID string) error {
	return client.Del(ctx, titlesCacheKey(ownerID), tasksCacheKey(ownerID)).Err()
}

func titlesCacheKey(ownerID string) string {
	return "titles:" + ownerID
}

func tasksCacheKey(ownerID string) string {
	return "tasks:" + ownerID
}
