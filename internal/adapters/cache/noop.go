package cache

import (
	"context"
	"time"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

// NoopRateCache is the fail-open mediator used when no backing store is
// available. Counters always read zero and the cache never hits, so every
// request is allowed and reaches its adapter.
type NoopRateCache struct{}

func NewNoopRateCache() *NoopRateCache {
	return &NoopRateCache{}
}

var _ ports.RateCache = (*NoopRateCache)(nil)

func (NoopRateCache) CallCount(context.Context, string, domain.ToolID) (int, error) {
	return 0, nil
}

func (NoopRateCache) IncrCall(context.Context, string, domain.ToolID, time.Duration) error {
	return nil
}

func (NoopRateCache) GetCached(context.Context, string) (map[string]any, bool, error) {
	return nil, false, nil
}

func (NoopRateCache) SetCached(context.Context, string, map[string]any, time.Duration) error {
	return nil
}
