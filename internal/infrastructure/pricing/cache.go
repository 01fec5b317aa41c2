package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
)

const (
	DefaultCacheTTL = 15 * time.Minute
	// DefaultFetchTimeout caps a shared oracle call. Callers still give up on
	// their own deadline.
	DefaultFetchTimeout = 10 * time.Second
)

// Cached keeps recent bands in process and collapses concurrent lookups for
// the same market into one oracle call. Failures are not cached.
//
// The shared call is detached from the caller that started it, so one
// caller cancelling does not fail the others waiting on the same key.
type Cached struct {
	next    collaborator.PriceBandOracle
	cache   *cache.Cache
	group   singleflight.Group
	timeout time.Duration
}

var _ collaborator.PriceBandOracle = (*Cached)(nil)

func NewCached(next collaborator.PriceBandOracle, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		next:    next,
		cache:   cache.New(ttl, 2*ttl),
		timeout: DefaultFetchTimeout,
	}
}

func cacheKey(q collaborator.BandQuery) string {
	return strings.ToLower(strings.Join([]string{q.ProductID, q.Location, q.QualityGrade}, "|"))
}

func (c *Cached) GetBand(ctx context.Context, q collaborator.BandQuery) (*collaborator.Band, error) {
	key := cacheKey(q)
	if v, ok := c.cache.Get(key); ok {
		b := v.(collaborator.Band)
		return &b, nil
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(fetchCtx, c.timeout)
		defer cancel()
		b, err := c.next.GetBand(ctx, q)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, *b, cache.DefaultExpiration)
		return *b, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		b := res.Val.(collaborator.Band)
		return &b, nil
	}
}
