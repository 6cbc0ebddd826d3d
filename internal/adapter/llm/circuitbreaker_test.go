package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/config"
)

func TestCircuitBreakerPassesThrough(t *testing.T) {
	cb := NewCircuitBreakerProvider(okProvider("openai", "ok"), config.CircuitBreakerConfig{}, newTestLogger())

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, "openai", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	inner := &mockProvider{
		name: "flaky",
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			calls.Add(1)
			return nil, fmt.Errorf("%w: 503", domain.ErrProviderUnavailable)
		},
	}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     5 * time.Second,
		Interval:    time.Minute,
	}, newTestLogger())

	for range 3 {
		_, err := cb.Chat(context.Background(), domain.ChatRequest{})
		require.ErrorIs(t, err, domain.ErrProviderUnavailable)
		assert.NotErrorIs(t, err, domain.ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, domain.CodeCircuitOpen, domain.ErrorCodeOf(err))
	assert.Equal(t, int32(3), calls.Load(), "open circuit must not reach the provider")
	assert.False(t, cb.IsHealthy(context.Background()))
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	inner := &mockProvider{
		name: "recovering",
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			if fail.Load() {
				return nil, mapHTTPError(http.StatusBadGateway, nil)
			}
			return &domain.ChatResponse{Message: domain.Message{Content: "back"}}, nil
		},
	}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 1,
		Timeout:     50 * time.Millisecond,
	}, newTestLogger())

	_, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, cb.State())

	fail.Store(false)
	time.Sleep(80 * time.Millisecond)

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "back", resp.Message.Content)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresCallerErrors(t *testing.T) {
	errs := []error{
		context.Canceled,
		domain.ErrContextOverflow,
		domain.ErrModelNotFound,
		errors.New("bad request"),
	}
	for _, e := range errs {
		cb := NewCircuitBreakerProvider(failingProvider("p", e), config.CircuitBreakerConfig{MaxFailures: 1}, newTestLogger())
		for range 3 {
			_, err := cb.Chat(context.Background(), domain.ChatRequest{})
			require.ErrorIs(t, err, e)
		}
		assert.Equal(t, gobreaker.StateClosed, cb.State(), "error %v must not trip the breaker", e)
	}
}

func TestCountsAsSuccess(t *testing.T) {
	assert.True(t, countsAsSuccess(nil))
	assert.True(t, countsAsSuccess(context.Canceled))
	assert.True(t, countsAsSuccess(domain.ErrContextOverflow))
	assert.False(t, countsAsSuccess(domain.ErrRateLimit))
	assert.False(t, countsAsSuccess(domain.ErrAuthInvalid))
	assert.False(t, countsAsSuccess(context.DeadlineExceeded))
	assert.False(t, countsAsSuccess(fmt.Errorf("wrapped: %w", domain.ErrTimeout)))
}

func TestCircuitBreakerHealthDelegates(t *testing.T) {
	down := false
	inner := okProvider("p", "ok")
	inner.healthy = &down
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{}, newTestLogger())
	assert.False(t, cb.IsHealthy(context.Background()))
}

func TestNewHTTPClientDefaults(t *testing.T) {
	client := NewHTTPClient(config.ProviderConfig{})
	assert.Equal(t, defaultConnTimeout+defaultRespTimeout, client.Timeout)

	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, defaultRespTimeout, tr.ResponseHeaderTimeout)
}

func TestNewPooledTransportCustom(t *testing.T) {
	tr := NewPooledTransport(time.Second, 2*time.Second, config.PoolConfig{
		MaxIdleConns:        5,
		MaxIdleConnsPerHost: 2,
		MaxConnsPerHost:     3,
		IdleConnTimeout:     time.Minute,
	})
	assert.Equal(t, 5, tr.MaxIdleConns)
	assert.Equal(t, 2, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 3, tr.MaxConnsPerHost)
	assert.Equal(t, time.Minute, tr.IdleConnTimeout)
	assert.Equal(t, 2*time.Second, tr.ResponseHeaderTimeout)
}
