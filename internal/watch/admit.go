package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Admitter is the pluggable check-and-set guard in front of a stage
// execution. The default deployment runs without one (the in-memory processed
// set plus artifact-absence checks carry the guard); a Redis-backed admitter
// gives multiple watcher processes of the same stage an actual lock.
type Admitter interface {
	TryAdmit(ctx context.Context, key string) (bool, error)
}

// RedisAdmitter claims a key with SET NX under a TTL, so a crashed claimant
// releases the job automatically.
type RedisAdmitter struct {
	Client *redis.Client
	TTL    time.Duration
	owner  string
}

func NewRedisAdmitter(client *redis.Client, ttl time.Duration) *RedisAdmitter {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisAdmitter{Client: client, TTL: ttl, owner: "watch-" + uuid.NewString()[:8]}
}

func (r *RedisAdmitter) TryAdmit(ctx context.Context, key string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, "craigd:admit:"+key, r.owner, r.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("admit %s: %w", key, err)
	}
	return ok, nil
}
