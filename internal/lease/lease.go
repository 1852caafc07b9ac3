// Package lease provides short-lived exclusive leases stored in Redis. A
// lease serializes work on one key across processes.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "chorly:"

// ErrHeld is returned by Acquire when another holder owns the lease.
var ErrHeld = errors.New("lease held by another holder")

// releaseScript deletes the key only if it still carries our token, so an
// expired lease re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

func NewLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Locker {
	return &Locker{client: client, ttl: ttl, logger: logger.With("component", "lease")}
}

// Acquire takes the lease for key. The returned release func is safe to
// call once the work is done; the lease also expires on its own after the
// configured TTL.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	k := keyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lease %s: %w", key, ErrHeld)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{k}, token).Err(); err != nil {
			l.logger.Warn("release lease", "key", k, "error", err)
		}
	}
	return release, nil
}
