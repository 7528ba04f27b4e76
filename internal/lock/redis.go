package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "pdfchat:lock:"

	// DefaultTTL bounds how long a crashed holder can block a key.
	DefaultTTL = 2 * time.Minute

	pollInterval = 50 * time.Millisecond
)

// releaseScript only deletes the lock if the caller still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// extendScript only refreshes the TTL if the caller still owns the lock.
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Redis is a Locker shared by every server instance using the same Redis.
// It has no shared mode: RLock is exclusive like Lock.
// A held lock's TTL is refreshed in the background until it is released.
type Redis struct {
	client  *redis.Client
	ownerID string
	ttl     time.Duration
}

var _ Locker = (*Redis)(nil)

// NewRedis creates a Redis-backed locker. A non-positive ttl selects DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client:  client,
		ownerID: generateOwnerID(),
		ttl:     ttl,
	}
}

// generateOwnerID creates a unique identifier for this lock holder.
// Format: hostname:pid:random
func generateOwnerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), randomHex(8))
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Lock polls SET NX until the key is free or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	name := keyPrefix + key
	// Each acquisition gets its own token so two goroutines of one process
	// cannot release each other's lock.
	token := r.ownerID + ":" + randomHex(4)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return r.hold(name, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RLock is exclusive in this backend.
func (r *Redis) RLock(ctx context.Context, key string) (Unlock, error) {
	return r.Lock(ctx, key)
}

// Ping checks if the Redis backend is healthy.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) hold(name, token string) Unlock {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.keepAlive(name, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := releaseScript.Run(ctx, r.client, []string{name}, token).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				slog.Warn("release lock failed", "key", name, "error", err)
			}
		})
	}
}

func (r *Redis) keepAlive(name, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			res, err := extendScript.Run(ctx, r.client, []string{name}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				slog.Warn("extend lock failed", "key", name, "error", err)
				continue
			}
			if res == 0 {
				slog.Warn("lock lost before release", "key", name)
				return
			}
		}
	}
}
