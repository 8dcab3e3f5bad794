package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when a Redis command fails for reasons other
// than a missing key.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSnapshotNotFound is returned by [Store.Load] when no snapshot exists for
// the device.
var ErrSnapshotNotFound = errors.New("session snapshot not found")

// ErrSnapshotCorrupt is returned when a stored blob cannot be decoded. The
// blob is removed so the next sign-in starts clean.
var ErrSnapshotCorrupt = errors.New("session snapshot corrupt")

const defaultPrefix = "civix"

// Store persists the last authenticated session of a device so a restarted
// client can fall back to the last known role and points while the backend
// profile service is unreachable.
//
// Keys have the form <prefix>:dev:<deviceID>. One key per device mirrors the
// one-live-session-per-instance rule.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a snapshot [Store]. A non-positive ttl stores snapshots
// without expiry.
func NewStore(r redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Store{
		redis:  r,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *Store) key(deviceID string) string {
	return s.prefix + ":dev:" + deviceID
}

// Save writes the snapshot for deviceID, replacing any previous one.
//
//	Performance: 1 Redis SET.
func (s *Store) Save(ctx context.Context, deviceID string, sess Session) error {
	if deviceID == "" {
		return errors.New("deviceID required")
	}
	data, err := Encode(&Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		Session:       sess,
		SavedAt:       s.now().Unix(),
	})
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(deviceID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Load returns the stored snapshot for deviceID. Legacy schema blobs are
// rewritten in the current format, keeping their remaining TTL.
//
//	Performance: 1 Redis GET, plus 1 SET when migrating.
func (s *Store) Load(ctx context.Context, deviceID string) (*Snapshot, error) {
	key := s.key(deviceID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	snap, err := Decode(data)
	if err != nil {
		if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	if err := s.maybeMigrateSchema(ctx, key, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// Delete removes the snapshot for deviceID. Deleting a missing key is not an
// error.
//
//	Performance: 1 Redis DEL.
func (s *Store) Delete(ctx context.Context, deviceID string) error {
	if err := s.redis.Del(ctx, s.key(deviceID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) maybeMigrateSchema(ctx context.Context, key string, snap *Snapshot) error {
	if snap.SchemaVersion == CurrentSchemaVersion {
		return nil
	}

	migrated := *snap
	migrated.SchemaVersion = CurrentSchemaVersion
	data, err := Encode(&migrated)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, key, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	snap.SchemaVersion = CurrentSchemaVersion
	return nil
}
