package redis

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const lockPrefix = "attendance_lock:"

// DefaultLockTTL bounds how long an attendance stays locked if the holder
// dies mid-settlement.
const DefaultLockTTL = 30 * time.Second

// Redis serializes order creation and settlement per attendance. The lock is
// owner-checked: only the holder that acquired it can release it, and it
// expires on its own so a crashed process cannot wedge an attendance.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *log.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Redis{
		Client: client,
		TTL:    ttl,
		Logger: log.Default(),
	}
}

// Lock acquires the attendance lock for owner. Returns false when another
// holder has it.
func (r *Redis) Lock(ctx context.Context, attendanceID, owner string) (bool, error) {
	key := lockPrefix + attendanceID
	ok, err := r.Client.SetNX(ctx, key, owner, r.TTL).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		r.Logger.Printf("REDIS: attendance %s already locked", attendanceID)
	}
	return ok, nil
}

// Unlock releases the attendance lock if owner still holds it. Releasing an
// already-expired lock is not an error.
func (r *Redis) Unlock(ctx context.Context, attendanceID, owner string) error {
	key := lockPrefix + attendanceID
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == owner {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
