package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kidcheck/internal/config"
	"kidcheck/internal/queue"
	"kidcheck/internal/store"
)

// Worker consumes attendance events and maintains per-day counters in
// Redis so the dashboard gets open/completed counts without scanning the
// session log.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	if !redisClient.Healthy(ctx) {
		log.Println("WARNING: redis not reachable at startup, will retry on events")
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "kidcheck:events")
	}

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("stats worker started, waiting for events...")
	for evt := range events {
		var field string
		switch evt.Kind {
		case "checkin":
			field = "checkins"
		case "checkout":
			field = "checkouts"
		default:
			continue
		}
		key := "kidcheck:stats:" + evt.Date
		if err := redisClient.Client.HIncrBy(ctx, key, field, 1).Err(); err != nil {
			log.Printf("stats update failed for %s: %v", evt.RecordID, err)
			continue
		}
		// Day counters are only useful for recent reporting.
		_ = redisClient.Client.Expire(ctx, key, 90*24*time.Hour).Err()
		log.Printf("event %s: %s on %s", evt.RecordID, evt.Kind, evt.Date)
	}

	log.Println("worker stopped")
}
