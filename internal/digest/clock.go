package digest

import (
	"fmt"
	"time"
)

// DefaultTimezone is the organization's business timezone. Scheduling
// decisions (send-day checks, wall-clock ETAs) are made in this zone for
// every team. Team.Timezone exists in the data model but is intentionally
// not consulted here; making the scheduler honor it is a config decision,
// not a per-team one.
const DefaultTimezone = "Asia/Manila"

// Clock converts instants to the fixed business timezone. Stateless.
type Clock struct {
	loc *time.Location
}

func NewClock(tz string) (Clock, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Clock{}, fmt.Errorf("business timezone %q: %w", tz, err)
	}
	return Clock{loc: loc}, nil
}

// Local converts t to business-local time.
func (c Clock) Local(t time.Time) time.Time {
	if c.loc == nil {
		return t.In(time.UTC)
	}
	return t.In(c.loc)
}

// Location returns the business zone (UTC for a zero Clock).
func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}
