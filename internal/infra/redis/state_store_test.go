package redis

import (
	"context"
	"testing"
	"time"

	"broadcast-quiz-service/internal/domain"
)

func TestStateStoreSetsAndClearsKeys(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewStateStore(client, "spring", time.Hour)

	if state, err := store.Get(ctx, "u1"); err != nil || state != domain.StateNone {
		t.Fatalf("expected no state, got %q (%v)", state, err)
	}

	if err := store.Set(ctx, "u1", domain.StateAnswering); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("quiz:spring:state:u1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz:spring:state:u1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
	if state, _ := store.Get(ctx, "u1"); state != domain.StateAnswering {
		t.Fatalf("expected answering, got %q", state)
	}

	mr.FastForward(2 * time.Hour)
	if state, _ := store.Get(ctx, "u1"); state != domain.StateNone {
		t.Fatalf("expected state to expire, got %q", state)
	}

	_ = store.Set(ctx, "u1", domain.StateRegistration)
	_ = store.Set(ctx, "u1", domain.StateNone)
	if mr.Exists("quiz:spring:state:u1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestStateStoreReportsConnectionErrors(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewStateStore(client, "spring", time.Hour)
	mr.Close()

	if _, err := store.Get(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error with redis down")
	}
}

func TestStateStoreReadRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewStateStore(client, "spring", time.Hour)

	if err := store.Set(ctx, "u1", domain.StateAnswering); err != nil {
		t.Fatalf("set: %v", err)
	}
	for i := 0; i < 3; i++ {
		mr.FastForward(50 * time.Minute)
		if state, err := store.Get(ctx, "u1"); err != nil || state != domain.StateAnswering {
			t.Fatalf("read %d: expected answering while active, got %q (%v)", i, state, err)
		}
		if ttl := mr.TTL("quiz:spring:state:u1"); ttl != time.Hour {
			t.Fatalf("read %d: expected ttl restarted, got %s", i, ttl)
		}
	}
}
