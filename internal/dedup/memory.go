package dedup

import (
	"context"
	"sync"

	"github.com/pscheid92/brandpulse/internal/domain"
)

// MemorySet is an in-process fingerprint set with the same semantics as
// RedisSet minus the TTL window. It backs tests and redis-less runs.
type MemorySet struct {
	mu   sync.Mutex
	seen map[string]map[domain.Fingerprint]struct{}
}

// NewMemorySet creates an empty in-memory fingerprint set.
func NewMemorySet() *MemorySet {
	return &MemorySet{seen: make(map[string]map[domain.Fingerprint]struct{})}
}

// IsNew implements domain.FingerprintSet.
func (s *MemorySet) IsNew(_ context.Context, entityQuery string, fp domain.Fingerprint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.seen[entityQuery]
	if !ok {
		set = make(map[domain.Fingerprint]struct{})
		s.seen[entityQuery] = set
	}

	if _, dup := set[fp]; dup {
		return false, nil
	}
	set[fp] = struct{}{}
	return true, nil
}
