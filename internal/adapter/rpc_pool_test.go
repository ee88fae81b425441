package adapter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCountingPool(t *testing.T, n int, cooldown time.Duration) (*RPCPool, map[string]int) {
	t.Helper()
	dials := make(map[string]int)
	endpoints := make([]string, n)
	for i := range endpoints {
		endpoints[i] = "http://node" + string(rune('a'+i))
	}
	pool, err := NewRPCPool(&RPCPoolConfig{
		Endpoints:    endpoints,
		CooldownTime: cooldown,
		Dial: func(url string) (EthClient, error) {
			dials[url]++
			return &mockEthClient{}, nil
		},
	})
	require.NoError(t, err)
	return pool, dials
}

func TestNewRPCPoolRequiresEndpoint(t *testing.T) {
	_, err := NewRPCPool(&RPCPoolConfig{})
	assert.Error(t, err)
	_, err = NewRPCPool(nil)
	assert.Error(t, err)
}

func TestNewRPCPoolDialsPrimaryOnly(t *testing.T) {
	pool, dials := newCountingPool(t, 3, time.Minute)

	assert.Equal(t, 3, pool.EndpointCount())
	assert.Equal(t, 0, pool.GetCurrentIndex())
	assert.Equal(t, map[string]int{"http://nodea": 1}, dials)
}

func TestNewRPCPoolPrimaryDialFailure(t *testing.T) {
	_, err := NewRPCPool(&RPCPoolConfig{
		Endpoints: []string{"http://down"},
		Dial:      func(string) (EthClient, error) { return nil, errors.New("connection refused") },
	})
	assert.ErrorContains(t, err, "connection refused")
}

func TestOnRateLimitedRotatesAndCoolsDown(t *testing.T) {
	pool, dials := newCountingPool(t, 2, time.Hour)

	require.NoError(t, pool.OnRateLimited())
	assert.Equal(t, 1, pool.GetCurrentIndex())
	assert.Equal(t, 1, dials["http://nodeb"])

	// node a is still cooling down and node b just got limited
	assert.Error(t, pool.OnRateLimited())
}

func TestOnRateLimitedReusesEndpointAfterCooldown(t *testing.T) {
	pool, dials := newCountingPool(t, 2, time.Nanosecond)

	require.NoError(t, pool.OnRateLimited())
	time.Sleep(time.Millisecond)
	require.NoError(t, pool.OnRateLimited())

	assert.Equal(t, 0, pool.GetCurrentIndex())
	assert.Equal(t, 1, dials["http://nodea"], "existing client is reused")
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("429 Too Many Requests")))
	assert.True(t, IsRateLimitError(errors.New("request throttled")))
	assert.False(t, IsRateLimitError(errors.New("execution reverted")))
	assert.False(t, IsRateLimitError(nil))
}
