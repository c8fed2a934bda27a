package syncjobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSyncInProgress means a sync for the connection is already active; the
// duplicate request is coalesced, never queued in parallel.
var ErrSyncInProgress = errors.New("a sync for this connection is already in progress")

const leasePrefix = "sync:lease:"

// Lease is the keyed mutex enforcing at-most-one-active-sync-per-connection.
// The TTL doubles as crash safety: a worker that dies without releasing
// frees the key on expiry.
type Lease struct {
	Rdb *redis.Client
	TTL time.Duration
}

func (l *Lease) key(connectionID uuid.UUID) string {
	return leasePrefix + connectionID.String()
}

// Acquire takes the lease for connectionID. Returns false when it is held.
func (l *Lease) Acquire(ctx context.Context, connectionID uuid.UUID) (bool, error) {
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return l.Rdb.SetNX(ctx, l.key(connectionID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release frees the lease after the sync completes or fails.
func (l *Lease) Release(ctx context.Context, connectionID uuid.UUID) error {
	return l.Rdb.Del(ctx, l.key(connectionID)).Err()
}

// Held reports whether the lease is currently taken.
func (l *Lease) Held(ctx context.Context, connectionID uuid.UUID) (bool, error) {
	n, err := l.Rdb.Exists(ctx, l.key(connectionID)).Result()
	return n > 0, err
}
