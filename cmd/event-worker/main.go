package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/wilhelmusolejr/to-do-list/domain"
)

const defaultUpdatesChannel = "task-updates"

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("task event worker starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	eventsQueueName := os.Getenv("TASK_EVENTS_QUEUE")
	if connStr == "" || eventsQueueName == "" {
		log.Fatal("missing storage config")
	}
	queue, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueueName, nil)
	if err != nil {
		log.Fatalf("queue client: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisOptions(redisConn))

	channel := os.Getenv("TASK_UPDATES_CHANNEL")
	if channel == "" {
		channel = defaultUpdatesChannel
	}

	evictor := redisEvictor{client: rc}
	ctx := context.Background()
	for {
		resp, err := queue.DequeueMessage(ctx, nil)
		if err != nil {
			log.Errorf("dequeue: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(resp.Messages) == 0 {
			time.Sleep(time.Second)
			continue
		}
		msg := resp.Messages[0]
		if msg.MessageText != nil {
			var ev domain.Event
			if err := sonic.UnmarshalString(*msg.MessageText, &ev); err != nil {
				log.Errorf("decode event: %v", err)
			} else if err := processEvent(ctx, evictor, rc, channel, ev, *msg.MessageText); err != nil {
				log.Errorf("process event %s: %v", ev.ID, err)
			}
		}
		if msg.MessageID != nil && msg.PopReceipt != nil {
			if _, err := queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil); err != nil {
				log.Errorf("delete message: %v", err)
			}
		}
	}
}

func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
