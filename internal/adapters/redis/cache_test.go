package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	redisad "crowdcount/internal/adapters/redis"
	"crowdcount/internal/domain"
)

func TestCache_RoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redisad.New(mr.Addr(), "", 0)
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	var got domain.Coords
	ok, err := c.Get(ctx, "geocode:tokyo", &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "geocode:tokyo", domain.Coords{Lat: 35.68, Lng: 139.76}, 60))
	require.True(t, mr.Exists("crowd:geocode:tokyo"))

	ok, err = c.Get(ctx, "geocode:tokyo", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.Coords{Lat: 35.68, Lng: 139.76}, got)

	mr.FastForward(61 * time.Second)
	ok, err = c.Get(ctx, "geocode:tokyo", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCache_CorruptEntryIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("crowd:geocode:x", "not json"))
	c := redisad.New(mr.Addr(), "", 0)

	var got domain.Coords
	ok, err := c.Get(context.Background(), "geocode:x", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCache_Del(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redisad.New(mr.Addr(), "", 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, 60))
	require.NoError(t, c.Del(ctx, "k"))
	require.False(t, mr.Exists("crowd:k"))
}
