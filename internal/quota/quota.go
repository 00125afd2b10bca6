// Package quota defines the quota collaborator contract the gateway invokes
// before any upstream call, plus an in-memory implementation used by dev
// deployments and tests. The real billing engine lives elsewhere and plugs
// in behind the Service interface.
package quota

import (
	"context"
	"fmt"
	"sync"
)

// Feature keys the gateway charges against.
const (
	FeatureLookup = "creator_lookup"
	FeatureSearch = "creator_search"
	FeatureReport = "creator_report"
)

// Usage is the account's standing for a feature after a successful charge.
type Usage struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// ExceededError is the denial raised when a charge would pass the limit.
// It is always surfaced to callers as a "limit reached" response, never
// conflated with upstream errors.
type ExceededError struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Requested int `json:"requested"`
	Remaining int `json:"remaining"`
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d/%d used, %d requested, %d remaining",
		e.Used, e.Limit, e.Requested, e.Remaining)
}

// Service authorizes feature usage for an account. Implementations must be
// concurrency-safe; the gateway calls Ensure once per caller-facing
// operation so a denied request never consumes upstream rate-limit budget.
type Service interface {
	Ensure(ctx context.Context, accountID, feature string, amount int) (Usage, error)
}

// MemoryService is a Service with per-(account, feature) counters. Limits
// are fixed at construction; a zero limit means unlimited.
type MemoryService struct {
	mu     sync.Mutex
	limits map[string]int
	used   map[string]int
}

// NewMemoryService creates a MemoryService with per-feature limits.
func NewMemoryService(limits map[string]int) *MemoryService {
	return &MemoryService{
		limits: limits,
		used:   make(map[string]int),
	}
}

// Ensure charges amount against the account's feature counter.
func (s *MemoryService) Ensure(_ context.Context, accountID, feature string, amount int) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := s.limits[feature]
	key := accountID + "\x00" + feature
	used := s.used[key]

	if limit > 0 && used+amount > limit {
		return Usage{}, &ExceededError{
			Limit:     limit,
			Used:      used,
			Requested: amount,
			Remaining: max(limit-used, 0),
		}
	}

	s.used[key] = used + amount
	remaining := 0
	if limit > 0 {
		remaining = limit - s.used[key]
	}
	return Usage{Limit: limit, Used: s.used[key], Remaining: remaining}, nil
}
