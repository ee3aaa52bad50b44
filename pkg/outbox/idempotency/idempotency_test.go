package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeIdempotencyStore struct {
	keys map[string]string
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{keys: map[string]string{}}
}

func (f *fakeIdempotencyStore) SetNX(_ context.Context, key string, value string, _ time.Duration) (bool, error) {
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = value
	return true, nil
}

func (f *fakeIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope string, id string) string {
	return "tlink:idempotency:" + scope + ":" + id
}

func TestCheckAndMarkProcessed(t *testing.T) {
	mgr, err := NewManager(newFakeIdempotencyStore(), time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()
	eventID := uuid.New()

	seen, err := mgr.CheckAndMarkProcessed(ctx, "notification-worker", eventID)
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if seen {
		t.Fatalf("first delivery should not be marked processed")
	}

	seen, err = mgr.CheckAndMarkProcessed(ctx, "notification-worker", eventID)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !seen {
		t.Fatalf("redelivery should be detected")
	}
}

func TestCheckAndMarkProcessedScopedPerConsumer(t *testing.T) {
	mgr, err := NewManager(newFakeIdempotencyStore(), time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()
	eventID := uuid.New()

	if seen, _ := mgr.CheckAndMarkProcessed(ctx, "worker-a", eventID); seen {
		t.Fatalf("worker-a first delivery flagged as duplicate")
	}
	if seen, _ := mgr.CheckAndMarkProcessed(ctx, "worker-b", eventID); seen {
		t.Fatalf("worker-b should track the event independently")
	}
}

func TestDeleteAllowsReprocessing(t *testing.T) {
	mgr, err := NewManager(newFakeIdempotencyStore(), time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()
	eventID := uuid.New()

	if _, err := mgr.CheckAndMarkProcessed(ctx, "worker", eventID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := mgr.Delete(ctx, "worker", eventID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if seen, _ := mgr.CheckAndMarkProcessed(ctx, "worker", eventID); seen {
		t.Fatalf("expected event to be reprocessable after delete")
	}
}

func TestManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatalf("expected error for nil store")
	}
	mgr, err := NewManager(newFakeIdempotencyStore(), time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := mgr.CheckAndMarkProcessed(context.Background(), "", uuid.New()); err == nil {
		t.Fatalf("expected error for empty consumer")
	}
	if _, err := mgr.CheckAndMarkProcessed(context.Background(), "worker", uuid.Nil); err == nil {
		t.Fatalf("expected error for nil event id")
	}
}
