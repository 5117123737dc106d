package ratelimit

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lootview/wallet-portfolio/internal/adapter"
	"github.com/lootview/wallet-portfolio/internal/config"
	"github.com/lootview/wallet-portfolio/internal/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: true}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func limiterConfig() config.RateLimiterConfig {
	return config.RateLimiterConfig{
		MaxWorkers:          4,
		MaxQueueSize:        32,
		EnableLocalFallback: true,
		Providers: map[string]config.RateLimitConfig{
			"testprovider": {
				RequestsPerSecond: 100,
				Burst:             100,
				MaxQueueTime:      5 * time.Second,
			},
		},
	}
}

func newTestProxy(t *testing.T) Proxy {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := adapter.NewRedisClientFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = redisClient.Close() })

	p, err := NewProxy(limiterConfig(), redisClient, adapter.NewClock())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProxy_ExecutesRequest(t *testing.T) {
	p := newTestProxy(t)

	result, err := p.Request(context.Background(), "testprovider", func(ctx context.Context) (interface{}, error) {
		return "payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", result)
}

func TestProxy_PropagatesRequestError(t *testing.T) {
	p := newTestProxy(t)

	_, err := p.Request(context.Background(), "testprovider", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("upstream 500")
	})
	assert.EqualError(t, err, "upstream 500")
}

func TestProxy_UnknownProvider(t *testing.T) {
	p := newTestProxy(t)

	_, err := p.Request(context.Background(), "unknown", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.Error(t, err)
}

func TestProxy_ClosedProxyRejectsRequests(t *testing.T) {
	p := newTestProxy(t)
	require.NoError(t, p.Close())

	_, err := p.Request(context.Background(), "testprovider", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.Error(t, err)
}

func TestProxy_CloseIsIdempotent(t *testing.T) {
	p := newTestProxy(t)
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}

func TestRequest_TypedHelper(t *testing.T) {
	p := newTestProxy(t)

	value, err := Request(context.Background(), p, "testprovider", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, value)
}

func TestRequest_NilProxyExecutesDirectly(t *testing.T) {
	value, err := Request(context.Background(), nil, "anything", func(ctx context.Context) (string, error) {
		return "direct", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", value)
}

func TestNewProxy_RequiresProviders(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := adapter.NewRedisClientFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = redisClient.Close() })

	_, err := NewProxy(config.RateLimiterConfig{}, redisClient, adapter.NewClock())
	assert.Error(t, err)
}

func TestValidateConfig_Defaults(t *testing.T) {
	cfg := config.RateLimiterConfig{
		Providers: map[string]config.RateLimitConfig{
			"p": {RequestsPerSecond: 10},
		},
	}

	require.NoError(t, validateConfig(&cfg))

	assert.Equal(t, "lootview:limiter:", cfg.RedisKeyPrefix)
	assert.Positive(t, cfg.MaxWorkers)
	assert.Equal(t, 1000, cfg.MaxQueueSize)
	assert.Equal(t, 0.5, cfg.LocalFallbackMultiplier)
	assert.Equal(t, 10, cfg.Providers["p"].Burst)
	assert.Equal(t, 5*time.Minute, cfg.Providers["p"].MaxQueueTime)
}

func TestValidateConfig_RejectsNonPositiveRate(t *testing.T) {
	cfg := config.RateLimiterConfig{
		Providers: map[string]config.RateLimitConfig{
			"p": {RequestsPerSecond: 0},
		},
	}
	assert.Error(t, validateConfig(&cfg))
}
