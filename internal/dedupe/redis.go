package dedupe

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"coursegate/internal/logger"
)

// Redis shares dedupe state between instances using SET NX with a TTL
type Redis struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedis connects to addr and verifies the connection with a ping
func NewRedis(addr, password string, ttl time.Duration, log *logger.Logger) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{
		rdb:    rdb,
		prefix: "coursegate:webhook:",
		ttl:    ttl,
		log:    log.With("component", "RedisDeduper"),
	}, nil
}

// FirstSeen records key and reports whether it was new
func (r *Redis) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+key, time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Forget drops key so a later delivery is processed again
func (r *Redis) Forget(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *Redis) Close() error {
	return r.rdb.Close()
}
