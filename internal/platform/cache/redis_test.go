package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := New(ctx, mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	require.NoError(t, client.Close())

	client, err = New(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	got, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, "v", got)
	require.NoError(t, client.Close())
}

func TestNewFailures(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, "  ")
	require.ErrorIs(t, err, ErrDisabled)

	_, err = New(ctx, "redis://:bad port")
	require.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = New(ctx, addr)
	require.ErrorContains(t, err, "ping")
}
