package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
)

const cacheVersionKey = "ledger:version"

// Cache stores built ledgers in Redis under versioned keys. Any ledger write
// bumps the version, orphaning every earlier key until it expires.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// Bump invalidates the cache by incrementing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// fetchRows loads cached rows or populates them using the loader. The boolean
// reports a cache hit.
func (c *Cache) fetchRows(ctx context.Context, key string, loader func(context.Context) ([]ledger.Row, error)) ([]ledger.Row, bool, error) {
	if c == nil || c.client == nil {
		rows, err := loader(ctx)
		return rows, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var rows []ledger.Row
		if err := json.Unmarshal(payload, &rows); err != nil {
			return nil, false, err
		}
		return rows, true, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, false, err
	}
	rows, err := loader(ctx)
	if err != nil {
		return nil, false, err
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, false, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, false, err
	}
	return rows, false, nil
}

func ledgerCacheKey(f ledger.Filters) []string {
	return []string{
		"ledger", "rows",
		f.StartDate.Format(time.DateOnly),
		f.EndDate.Format(time.DateOnly),
		optionalID(f.ChartAccountID),
		optionalID(f.OrganizationID),
		strconv.FormatBool(f.IncludeOpeningStructure),
		strconv.FormatBool(f.IncludeCancelled),
		strings.ToUpper(f.Currency),
	}
}

func optionalID(id *int64) string {
	if id == nil {
		return "*"
	}
	return strconv.FormatInt(*id, 10)
}
