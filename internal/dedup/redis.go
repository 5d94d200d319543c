// Package dedup implements the content fingerprint set used to filter
// duplicate items. Membership is scoped per entity query, so the same
// cross-post can still count toward different analyses.
package dedup

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/brandpulse/internal/domain"
)

// RedisSet is the production fingerprint set. SADD is the atomic
// check-and-record: it returns 1 exactly once per member, no matter how many
// connector tasks race on the same fingerprint. The per-entity key carries a
// TTL that bounds the dedup window.
type RedisSet struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisSet creates a fingerprint set with the given dedup window.
func NewRedisSet(rdb *goredis.Client, ttl time.Duration) *RedisSet {
	return &RedisSet{rdb: rdb, ttl: ttl}
}

// IsNew implements domain.FingerprintSet.
func (s *RedisSet) IsNew(ctx context.Context, entityQuery string, fp domain.Fingerprint) (bool, error) {
	key := dedupKey(entityQuery)

	added, err := s.rdb.SAdd(ctx, key, string(fp)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record fingerprint: %w", err)
	}

	// Refresh the window on every write; an idle entity's set expires as a
	// whole, which is the documented dedup-window semantics.
	if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
		return false, fmt.Errorf("failed to set dedup TTL: %w", err)
	}

	return added == 1, nil
}

func dedupKey(entityQuery string) string {
	return "dedup:" + entityQuery
}
