package projection

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// ReadStore holds projection documents keyed by (tenant, aggregate id).
// Documents are never authoritative: the whole store can be rebuilt by
// re-applying events.
type ReadStore interface {
	Put(ctx context.Context, key string, doc []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// DocumentKey is the read-store key for a document projection.
func DocumentKey(tenantID, documentID string) string {
	return fmt.Sprintf("projection:document:%s:%s", tenantID, documentID)
}

// RecordKey is the read-store key for an object-record projection.
func RecordKey(tenantID, recordID string) string {
	return fmt.Sprintf("projection:record:%s:%s", tenantID, recordID)
}

// RedisStore is the Redis-backed read store.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore returns RedisStore.
func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Put(ctx context.Context, key string, doc []byte) error {
	return s.rdb.Set(ctx, key, string(doc), 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return []byte(val), nil
}
