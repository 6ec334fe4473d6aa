package gcal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachingTokenProvider(t *testing.T) {
	ctx := context.Background()

	inner := &staticTokens{token: "tok-1"}
	p := NewCachingTokenProvider(inner, 5*time.Minute)

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	tok, err := p.AccessToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 1, inner.calls)

	// A second call inside the TTL is served from cache.
	tok, err = p.AccessToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 1, inner.calls)

	// Different users never share entries.
	_, err = p.AccessToken(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	// Expired entries are refetched.
	clock = clock.Add(6 * time.Minute)
	inner.token = "tok-2"
	tok, err = p.AccessToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, 3, inner.calls)
}

func TestCachingTokenProvider_ErrorNotCached(t *testing.T) {
	ctx := context.Background()

	inner := &staticTokens{err: errors.New("auth service unavailable")}
	p := NewCachingTokenProvider(inner, 5*time.Minute)

	_, err := p.AccessToken(ctx, "user-1")
	require.Error(t, err)

	inner.err = nil
	inner.token = "tok-1"
	tok, err := p.AccessToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 2, inner.calls)
}
