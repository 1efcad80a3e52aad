package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisIdempotencyClaimsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisIdempotency(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "k1", "ledger.entry"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "k1", "ledger.entry"), ErrIdempotencyConflict)
	require.Equal(t, time.Hour, mr.TTL("odyssey:idempotency:k1"))

	require.NoError(t, store.Delete(ctx, "k1"))
	require.NoError(t, store.CheckAndInsert(ctx, "k1", "ledger.entry"))

	mr.FastForward(2 * time.Hour)
	require.NoError(t, store.CheckAndInsert(ctx, "k1", "ledger.entry"))
}

func TestRedisIdempotencyRejectsBlankInput(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisIdempotency(client, 0)

	require.Error(t, store.CheckAndInsert(context.Background(), "", "ledger.entry"))
	require.Error(t, store.CheckAndInsert(context.Background(), "k", ""))
	require.Error(t, store.Delete(context.Background(), ""))
}
