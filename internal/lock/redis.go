package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only while the key still holds the caller's token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every process using the same Redis.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis wraps client. Leases expire after ttl so a crashed holder cannot block a target forever.
func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, prefix: "catalyst:lock:", ttl: ttl, logger: logger.With("component", "lock")}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	if key == "" {
		return Lease{}, fmt.Errorf("lock key cannot be empty")
	}
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, r.ttl).Result()
	if err != nil {
		return Lease{}, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return Lease{}, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	return Lease{Key: key, Token: token}, nil
}

func (r *Redis) Release(ctx context.Context, lease Lease) error {
	if lease.Key == "" {
		return nil
	}
	deleted, err := releaseScript.Run(ctx, r.client, []string{r.prefix + lease.Key}, lease.Token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", lease.Key, err)
	}
	if deleted == 0 {
		r.logger.Warn("lock already expired or taken over", "key", lease.Key)
	}
	return nil
}

func (r *Redis) Refresh(ctx context.Context, lease Lease) error {
	if lease.Key == "" {
		return fmt.Errorf("%w: empty lease", ErrLost)
	}
	extended, err := refreshScript.Run(ctx, r.client, []string{r.prefix + lease.Key}, lease.Token, r.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", lease.Key, err)
	}
	if extended == 0 {
		return fmt.Errorf("%w: %s", ErrLost, lease.Key)
	}
	return nil
}
