// Package redislock implements checkout.IntentLock on Redis so that captures
// of one intent are exclusive across service replicas.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

// DefaultTTL bounds how long a crashed holder can block an intent.
const DefaultTTL = 2 * time.Minute

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the subset of the Redis client used by Lock.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

var _ checkout.IntentLock = (*Lock)(nil)

// Lock is a Redis-backed intent lock. Each holder writes a random token with
// SET NX PX and releases with a compare-and-delete script.
type Lock struct {
	client Client
	prefix string
	ttl    time.Duration
}

// New returns a Lock. A non-positive ttl selects DefaultTTL.
func New(client Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lock{client: client, prefix: "kart:capture:", ttl: ttl}
}

func (l *Lock) key(intentID string) string {
	return l.prefix + intentID
}

// Acquire takes the lock for intentID or returns
// checkout.ErrCaptureInProgress when it is held.
func (l *Lock) Acquire(ctx context.Context, intentID string) (func(context.Context), error) {
	key := l.key(intentID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("locking intent %q: %w", intentID, err)
	}
	if !ok {
		return nil, checkout.ErrCaptureInProgress
	}

	return func(ctx context.Context) {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			// The key expires on its own after ttl.
			zctx.From(ctx).Warn("Release intent lock failed",
				zap.String("intent_id", intentID),
				zap.Error(err),
			)
		}
	}, nil
}

// Ping checks connectivity for readiness probes.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// NewClient parses a redis:// URL and returns a client.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
