package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestZonedReportsFixedLocation(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	base := clockwork.NewFakeClockAt(time.Date(2025, 2, 3, 7, 0, 0, 0, time.UTC))
	c := New(base, loc)

	now := c.Now()
	if now.Location() != loc {
		t.Fatalf("expected MSK location, got %v", now.Location())
	}
	if now.Hour() != 10 {
		t.Fatalf("expected 10:00 local, got %v", now)
	}

	base.Advance(90 * time.Second)
	if got := c.Now().Sub(now); got != 90*time.Second {
		t.Fatalf("expected clock to follow base, moved %v", got)
	}
}

func TestLoadLocationEmptyIsUTC(t *testing.T) {
	loc, err := LoadLocation("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loc != time.UTC {
		t.Fatalf("expected UTC, got %v", loc)
	}
}
