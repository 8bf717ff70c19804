package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stacklume/fetchguard/internal/common/configtypes"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(&configtypes.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewClient(&configtypes.RedisConfig{Addr: "localhost:6379"}, nil)
	assert.Error(t, err)
}

func TestNewClient_ConnectFailure(t *testing.T) {
	_, err := NewClient(&configtypes.RedisConfig{Addr: "localhost:1"}, zap.NewNop())
	assert.Error(t, err)
}

func TestGetSetEx(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Get(ctx, "missing")
	assert.Equal(t, ErrNotFound, err)

	require.NoError(t, client.SetEx(ctx, "k", "v", 10*time.Second))

	val, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	mr.FastForward(11 * time.Second)

	_, err = client.Get(ctx, "k")
	assert.Equal(t, ErrNotFound, err)
}

func TestPing(t *testing.T) {
	mr, client := newTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))

	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}
