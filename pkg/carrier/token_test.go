package carrier

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenCache_RefreshesOnExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fetches := 0
	fetch := func(ctx context.Context) (Token, error) {
		fetches++
		return Token{
			AccessToken: "token-" + string(rune('0'+fetches)),
			ExpiresAt:   now.Add(time.Hour),
		}, nil
	}

	cache, err := NewTokenCache(fetch, time.Minute, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	ctx := context.Background()
	first, err := cache.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	again, err := cache.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if first != again || fetches != 1 {
		t.Fatalf("expected cached token to be reused, fetches=%d", fetches)
	}

	// Advance to inside the skew window: refresh expected even though the
	// token has not technically expired.
	now = now.Add(time.Hour - 30*time.Second)
	refreshed, err := cache.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if refreshed == first || fetches != 2 {
		t.Fatalf("expected refresh inside skew window, fetches=%d", fetches)
	}
}

func TestTokenCache_FetchErrorPropagates(t *testing.T) {
	boom := errors.New("oauth down")
	cache, err := NewTokenCache(func(ctx context.Context) (Token, error) {
		return Token{}, boom
	}, time.Minute)
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	if _, err := cache.Token(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestNewTokenCache_RequiresFetch(t *testing.T) {
	if _, err := NewTokenCache(nil, time.Minute); err == nil {
		t.Fatalf("expected error for nil fetch func")
	}
}
