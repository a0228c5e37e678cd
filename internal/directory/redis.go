package directory

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	memberKeyPrefix   = "chatrelay:member:"
	presenceKeyPrefix = "chatrelay:presence:"
	lastSeenKeyPrefix = "chatrelay:lastseen:"
)

// MembershipLookup resolves a user's durable channel membership. This is
// distinct from live join state: a user is a member of the rooms they
// subscribed to whether or not any of their connections has joined.
type MembershipLookup interface {
	RoomsOf(ctx context.Context, userID string) ([]string, error)
}

// PresenceMirror publishes aggregate presence to a shared store so other
// processes can read it. The in-process tracker stays authoritative: an
// explicit disconnect deletes the key rather than waiting for the TTL,
// which only serves as a crash backstop.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
}

// RedisDirectory implements MembershipLookup and PresenceMirror on a
// shared Redis instance.
type RedisDirectory struct {
	client      *redis.Client
	presenceTTL time.Duration
}

func NewRedisDirectory(client *redis.Client, presenceTTL time.Duration) *RedisDirectory {
	return &RedisDirectory{
		client:      client,
		presenceTTL: presenceTTL,
	}
}

func (d *RedisDirectory) RoomsOf(ctx context.Context, userID string) ([]string, error) {
	return d.client.SMembers(ctx, memberKeyPrefix+userID).Result()
}

func (d *RedisDirectory) SetOnline(ctx context.Context, userID string) error {
	return d.client.Set(ctx, presenceKeyPrefix+userID, "1", d.presenceTTL).Err()
}

func (d *RedisDirectory) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, presenceKeyPrefix+userID)
	pipe.Set(ctx, lastSeenKeyPrefix+userID, lastSeen.UTC().Format(time.RFC3339Nano), 0)
	_, err := pipe.Exec(ctx)
	return err
}

// IsOnline reads the mirrored presence flag. Only other processes need
// this; the local tracker answers locally.
func (d *RedisDirectory) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := d.client.Exists(ctx, presenceKeyPrefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
