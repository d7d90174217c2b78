package ledger

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// MappingCache is a read-through Redis cache for mapping lookups, which sit
// on the hot path of every posting. Nil receivers and nil clients are valid
// and make every call a pass-through.
type MappingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMappingCache instantiates the cache helper.
func NewMappingCache(client *redis.Client, ttl time.Duration) *MappingCache {
	return &MappingCache{client: client, ttl: ttl}
}

func mappingKey(txType string, branchID int64, floatAccountID *int64) string {
	return strings.Join([]string{"glmap", txType, strconv.FormatInt(branchID, 10), floatToken(floatAccountID)}, ":")
}

func floatToken(id *int64) string {
	if id == nil {
		return "generic"
	}
	return strconv.FormatInt(*id, 10)
}

// Fetch returns the cached mappings or loads and caches them. Cache errors
// degrade to the loader; a stale or missing cache must never block posting.
func (c *MappingCache) Fetch(ctx context.Context, txType string, branchID int64, floatAccountID *int64, loader func(context.Context) ([]GLMapping, error)) ([]GLMapping, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := mappingKey(txType, branchID, floatAccountID)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var mappings []GLMapping
		if json.Unmarshal(payload, &mappings) == nil {
			return mappings, nil
		}
	}
	mappings, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(mappings); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return mappings, nil
}

// Invalidate drops the cached entry for one mapping scope, called after the
// provisioner writes new mappings.
func (c *MappingCache) Invalidate(ctx context.Context, txType string, branchID int64, floatAccountID *int64) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, mappingKey(txType, branchID, floatAccountID)).Err()
}
