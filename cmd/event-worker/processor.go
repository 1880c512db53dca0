package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/wilhelmusolejr/to-do-list/domain"
	"github.com/wilhelmusolejr/to-do-list/storage"
)

type listingEvictor interface {
	Evict(ctx context.Context, ownerID string) error
}

type redisEvictor struct {
	client *redis.Client
}

func (r redisEvictor) Evict(ctx context.Context, ownerID string) error {
	return storage.EvictCachedListings(ctx, r.client, ownerID)
}

// processEvent invalidates the owner's cached listings and relays the raw
// event payload on the updates channel for live dashboard subscribers. The
// relay is best-effort; a missed publish only delays the next refresh.
func processEvent(ctx context.Context, evictor listingEvictor, rc *redis.Client, channel string, ev domain.Event, payload string) error {
	if ev.UserID != "" {
		if err := evictor.Evict(ctx, ev.UserID); err != nil {
			return err
		}
	}
	if err := rc.Publish(ctx, channel, payload).Err(); err != nil {
		log.Errorf("unable to publish %s update to %s", ev.Type, channel)
	}
	return nil
}
