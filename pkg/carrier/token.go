package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Token is an OAuth access token with its absolute expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// TokenSource supplies a valid access token for carrier API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// FetchFunc acquires a fresh token from the carrier's OAuth endpoint.
type FetchFunc func(ctx context.Context) (Token, error)

// TokenCache caches a token until it nears expiry and refreshes it lazily on
// demand. The clock is injectable so expiry behavior is testable without
// waiting.
type TokenCache struct {
	fetch FetchFunc
	skew  time.Duration
	clock func() time.Time

	mu    sync.Mutex
	token Token
}

// TokenCacheOption customizes a TokenCache.
type TokenCacheOption func(*TokenCache)

// WithClock substitutes the time source used for expiry checks.
func WithClock(clock func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		c.clock = clock
	}
}

// NewTokenCache builds a lazily-refreshing token cache. skew is subtracted
// from the token expiry so a token is replaced before the carrier would
// reject it mid-request.
func NewTokenCache(fetch FetchFunc, skew time.Duration, opts ...TokenCacheOption) (*TokenCache, error) {
	if fetch == nil {
		return nil, fmt.Errorf("token fetch func required")
	}
	c := &TokenCache{
		fetch: fetch,
		skew:  skew,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the cached access token, refreshing it when missing or within
// the skew window of expiry.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.token.AccessToken != "" && now.Before(c.token.ExpiresAt.Add(-c.skew)) {
		return c.token.AccessToken, nil
	}

	token, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token.AccessToken, nil
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// OAuthFetch returns a FetchFunc performing the carrier's client-credentials
// grant against POST {baseURL}/oauth/token.
func OAuthFetch(httpClient *http.Client, baseURL, clientID, clientSecret string) FetchFunc {
	return func(ctx context.Context) (Token, error) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/oauth/token", strings.NewReader(form.Encode()))
		if err != nil {
			return Token{}, fmt.Errorf("building token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := httpClient.Do(req)
		if err != nil {
			return Token{}, fmt.Errorf("requesting token: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Token{}, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
		}

		var payload oauthResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return Token{}, fmt.Errorf("decoding token response: %w", err)
		}
		if payload.AccessToken == "" {
			return Token{}, fmt.Errorf("token endpoint returned empty access token")
		}

		return Token{
			AccessToken: payload.AccessToken,
			ExpiresAt:   time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
		}, nil
	}
}
