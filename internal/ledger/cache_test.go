package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) (*MappingCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewMappingCache(client, time.Minute), srv
}

func TestMappingCacheReadThrough(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) ([]GLMapping, error) {
		loads++
		return []GLMapping{{ID: 1, TransactionType: "momo_float", MappingType: MappingMain, GLAccountID: 5, BranchID: 10, IsActive: true}}, nil
	}

	first, err := cache.Fetch(ctx, "momo_float", 10, nil, loader)
	require.NoError(t, err)
	second, err := cache.Fetch(ctx, "momo_float", 10, nil, loader)
	require.NoError(t, err)

	assert.Equal(t, 1, loads, "second fetch served from cache")
	assert.Equal(t, first, second)
}

func TestMappingCacheScopesByFloatAccount(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()
	floatID := int64(42)

	_, err := cache.Fetch(ctx, "momo_float", 10, nil, func(context.Context) ([]GLMapping, error) {
		return []GLMapping{{ID: 1}}, nil
	})
	require.NoError(t, err)

	scoped, err := cache.Fetch(ctx, "momo_float", 10, &floatID, func(context.Context) ([]GLMapping, error) {
		return []GLMapping{{ID: 2}}, nil
	})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, int64(2), scoped[0].ID, "float scope must not share the generic key")
}

func TestMappingCacheInvalidate(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) ([]GLMapping, error) {
		loads++
		return []GLMapping{{ID: int64(loads)}}, nil
	}

	_, err := cache.Fetch(ctx, "momo_float", 10, nil, loader)
	require.NoError(t, err)
	cache.Invalidate(ctx, "momo_float", 10, nil)
	refreshed, err := cache.Fetch(ctx, "momo_float", 10, nil, loader)
	require.NoError(t, err)

	assert.Equal(t, 2, loads)
	assert.Equal(t, int64(2), refreshed[0].ID)
}

func TestMappingCacheDegradesWhenRedisDown(t *testing.T) {
	cache, srv := testCache(t)
	srv.Close()

	mappings, err := cache.Fetch(context.Background(), "momo_float", 10, nil, func(context.Context) ([]GLMapping, error) {
		return []GLMapping{{ID: 7}}, nil
	})
	require.NoError(t, err, "cache errors fall through to the loader")
	require.Len(t, mappings, 1)
	assert.Equal(t, int64(7), mappings[0].ID)
}

func TestMappingCacheNilClientPassThrough(t *testing.T) {
	var cache *MappingCache

	wantErr := errors.New("load failed")
	_, err := cache.Fetch(context.Background(), "momo_float", 10, nil, func(context.Context) ([]GLMapping, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
