package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dealforge/dealforge-backend/internal/platform/envutil"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
)

// Waker is the low-latency side channel next to the durable outbox: Emit
// publishes a nudge, the dispatcher shortens its next poll when one arrives.
type Waker interface {
	Wake(ctx context.Context) error
	Watch(ctx context.Context, onWake func()) error
	Close() error
}

type redisWaker struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisWaker(log *logger.Logger) (Waker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(envutil.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := envutil.String("REDIS_EVENTS_CHANNEL", "events.wake")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisWaker{
		log:     log.With("component", "RedisWaker"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (w *redisWaker) Wake(ctx context.Context) error {
	if w == nil || w.rdb == nil {
		return fmt.Errorf("redis waker not initialized")
	}
	return w.rdb.Publish(ctx, w.channel, "1").Err()
}

func (w *redisWaker) Watch(ctx context.Context, onWake func()) error {
	if w == nil || w.rdb == nil {
		return fmt.Errorf("redis waker not initialized")
	}
	if onWake == nil {
		return fmt.Errorf("onWake callback required")
	}

	sub := w.rdb.Subscribe(ctx, w.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				onWake()
			}
		}
	}()

	return nil
}

func (w *redisWaker) Close() error {
	if w == nil || w.rdb == nil {
		return nil
	}
	return w.rdb.Close()
}
