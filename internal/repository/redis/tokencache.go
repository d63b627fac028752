package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ibrahimkhan7059/Edubazaar/internal/auth"
	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

const (
	tokenCacheKey = "fcm:oauth:access_token"

	// tokenCacheLeeway keeps the cache TTL ahead of the token's real
	// expiry so a cached token is never served in its final minute.
	tokenCacheLeeway = time.Minute
)

// TokenCache implements auth.TokenCache using Redis, so access tokens are
// reused across drain invocations and across instances, bounded by expiry.
type TokenCache struct {
	client *Client
}

// NewTokenCache creates a new TokenCache
func NewTokenCache(client *Client) *TokenCache {
	return &TokenCache{client: client}
}

// Get returns the cached access token, or ErrTokenExpired when absent.
func (c *TokenCache) Get(ctx context.Context) (*auth.AccessToken, error) {
	data, err := c.client.client.Get(ctx, tokenCacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to read cached token: %w", err)
	}

	var token auth.AccessToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached token: %w", err)
	}

	return &token, nil
}

// Put stores a minted token with a TTL bounded by the token's expiry.
func (c *TokenCache) Put(ctx context.Context, token *auth.AccessToken) error {
	ttl := time.Until(token.ExpiresAt) - tokenCacheLeeway
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := c.client.client.Set(ctx, tokenCacheKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}

	return nil
}
