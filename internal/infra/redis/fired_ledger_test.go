package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestFiredLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	ledger := NewFiredLedger(client, "spring")

	for _, id := range []int{3, 1, 3, 100} {
		if err := ledger.MarkFired(ctx, id); err != nil {
			t.Fatalf("mark fired %d: %v", id, err)
		}
	}
	if !mr.Exists("quiz:spring:fired") {
		t.Fatalf("expected redis set to exist")
	}

	ids, err := ledger.FiredIDs(ctx)
	if err != nil {
		t.Fatalf("fired ids: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 100 {
		t.Fatalf("unexpected ids %v", ids)
	}

	// campaigns are isolated
	other, _ := NewFiredLedger(client, "autumn").FiredIDs(ctx)
	if len(other) != 0 {
		t.Fatalf("expected empty ledger for another campaign, got %v", other)
	}

	if err := ledger.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists("quiz:spring:fired") {
		t.Fatalf("expected redis set to be removed")
	}
}

func TestFiredLedgerRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	if _, err := mr.SetAdd("quiz:spring:fired", "not-a-number"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := NewFiredLedger(client, "spring").FiredIDs(ctx); err == nil {
		t.Fatalf("expected parse error")
	}
}
