package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeStore struct {
	values map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	switch v := value.(type) {
	case string:
		f.values[key] = v
	case []byte:
		f.values[key] = string(v)
	}
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := f.values[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	switch v := value.(type) {
	case string:
		f.values[key] = v
	case []byte:
		f.values[key] = string(v)
	}
	cmd.SetVal(true)
	return cmd
}

func (f *fakeStore) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if v, ok := f.values[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func TestQuoteRoundTrip(t *testing.T) {
	client := NewWithStore(newFakeStore())
	ctx := context.Background()

	quote := CachedQuote{
		ShipmentID: "ship-1",
		Service:    "GROUND",
		WeightLB:   "2",
		Cost:       "18.42",
		Currency:   "USD",
		QuotedAt:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := client.StoreQuote(ctx, quote); err != nil {
		t.Fatalf("StoreQuote: %v", err)
	}

	got, err := client.LastQuote(ctx, "ship-1")
	if err != nil {
		t.Fatalf("LastQuote: %v", err)
	}
	if got == nil || got.Cost != "18.42" || got.Service != "GROUND" {
		t.Fatalf("unexpected cached quote %+v", got)
	}
}

func TestLastQuote_MissIsNil(t *testing.T) {
	client := NewWithStore(newFakeStore())
	got, err := client.LastQuote(context.Background(), "missing")
	if err != nil {
		t.Fatalf("LastQuote miss should not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil on miss, got %+v", got)
	}
}

func TestDropQuote(t *testing.T) {
	store := newFakeStore()
	client := NewWithStore(store)
	ctx := context.Background()

	if err := client.StoreQuote(ctx, CachedQuote{ShipmentID: "ship-2", Cost: "9.99"}); err != nil {
		t.Fatalf("StoreQuote: %v", err)
	}
	if err := client.DropQuote(ctx, "ship-2"); err != nil {
		t.Fatalf("DropQuote: %v", err)
	}
	if got, _ := client.LastQuote(ctx, "ship-2"); got != nil {
		t.Fatalf("expected quote removed, got %+v", got)
	}
}

func TestSetNXFirstWriteWins(t *testing.T) {
	client := NewWithStore(newFakeStore())
	ctx := context.Background()
	key := client.IdempotencyKey("evt:processed:worker", "event-1")

	set, err := client.SetNX(ctx, key, "1", time.Minute)
	if err != nil || !set {
		t.Fatalf("first SetNX should win: set=%v err=%v", set, err)
	}
	set, err = client.SetNX(ctx, key, "1", time.Minute)
	if err != nil || set {
		t.Fatalf("second SetNX should lose: set=%v err=%v", set, err)
	}
}

func TestQuoteKeyNamespace(t *testing.T) {
	client := NewWithStore(newFakeStore())
	if got := client.QuoteKey("abc"); got != "tlink:quote:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}
