package gcal

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
)

const tokenCacheSize = 1024

// CachingTokenProvider decorates a [calsync.TokenProvider] with a
// bounded per-user cache so back-to-back feed syncs for the same
// connected user do not hammer the auth service. Entries expire well
// before typical provider token lifetimes.
type CachingTokenProvider struct {
	inner calsync.TokenProvider
	ttl   time.Duration
	cache *lru.Cache[string, cachedToken]
	now   func() time.Time
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

var _ calsync.TokenProvider = (*CachingTokenProvider)(nil)

func NewCachingTokenProvider(inner calsync.TokenProvider, ttl time.Duration) *CachingTokenProvider {
	cache, _ := lru.New[string, cachedToken](tokenCacheSize)

	return &CachingTokenProvider{
		inner: inner,
		ttl:   ttl,
		cache: cache,
		now:   time.Now,
	}
}

func (p *CachingTokenProvider) AccessToken(ctx context.Context, userID string) (string, error) {
	if entry, ok := p.cache.Get(userID); ok && p.now().Before(entry.expiresAt) {
		return entry.token, nil
	}

	token, err := p.inner.AccessToken(ctx, userID)
	if err != nil {
		return "", err
	}

	p.cache.Add(userID, cachedToken{
		token:     token,
		expiresAt: p.now().Add(p.ttl),
	})

	return token, nil
}
