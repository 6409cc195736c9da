package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWrapDefaultsPrefixAndPings(t *testing.T) {
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", zaptest.NewLogger(t))
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, "security", c.KeyPrefix())
	require.NoError(t, c.HealthCheck(context.Background()))
}

func TestHealthCheckReportsOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "fv", nil)
	t.Cleanup(func() { _ = c.Close() })

	mr.SetError("LOADING server is loading the dataset")
	err := c.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
	assert.Equal(t, "fv", c.KeyPrefix())
}
