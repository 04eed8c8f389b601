package clock

import (
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
)

// Clock supplies the current time in the campaign time zone.
type Clock interface {
	Now() time.Time
}

// Zoned reports the time of an underlying clockwork clock in a fixed location.
type Zoned struct {
	base clockwork.Clock
	loc  *time.Location
}

// New wraps base so every reading is converted to loc. A nil loc means UTC.
func New(base clockwork.Clock, loc *time.Location) *Zoned {
	if loc == nil {
		loc = time.UTC
	}
	return &Zoned{base: base, loc: loc}
}

// Real returns a zoned wall clock.
func Real(loc *time.Location) *Zoned {
	return New(clockwork.NewRealClock(), loc)
}

func (z *Zoned) Now() time.Time {
	return z.base.Now().In(z.loc)
}

// Location returns the zone readings are reported in.
func (z *Zoned) Location() *time.Location {
	return z.loc
}

// Base exposes the underlying clockwork clock, e.g. for gocron.
func (z *Zoned) Base() clockwork.Clock {
	return z.base
}

// LoadLocation resolves a zone name, falling back to UTC for an empty name.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
