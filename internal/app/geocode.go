package app

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"crowdcount/internal/domain"
)

// GeocodeService resolves addresses through a cache-aside lookup. Concurrent
// lookups of the same address share one upstream call.
const sharedLookupTimeout = 15 * time.Second

type GeocodeService struct {
	geo      domain.Geocoder
	cache    domain.Cache
	cacheTTL time.Duration
	group    singleflight.Group
}

func NewGeocodeService(g domain.Geocoder, c domain.Cache, ttl time.Duration) *GeocodeService {
	return &GeocodeService{geo: g, cache: c, cacheTTL: ttl}
}

func (s *GeocodeService) Geocode(ctx context.Context, address string) (domain.Coords, error) {
	addr := clean(address)
	key := "geocode:" + strings.ToLower(addr)

	var hit domain.Coords
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &hit); ok {
			return hit, nil
		}
	}

	// The shared lookup outlives any one caller: a caller that gives up must
	// not fail the others that joined the same flight.
	ch := s.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()
		c, err := s.geo.Geocode(fctx, addr)
		if err != nil {
			return domain.Coords{}, err
		}
		if s.cache != nil {
			_ = s.cache.Set(fctx, key, c, int(s.cacheTTL.Seconds()))
		}
		return c, nil
	})
	select {
	case <-ctx.Done():
		return domain.Coords{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return domain.Coords{}, r.Err
		}
		return r.Val.(domain.Coords), nil
	}
}
