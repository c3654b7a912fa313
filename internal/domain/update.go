package domain

import (
	"fmt"
	"strings"
	"time"
)

// Date is a plain calendar date (no time, no zone). Updates are keyed by the
// business-local date they were submitted for.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf extracts the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

// Update is one member's status report for one calendar date.
//
// Uniqueness per (membership, date) is not enforced by storage; lookups take
// the lowest-id match for the date (see Store.UpdateForDate).
type Update struct {
	ID           int64
	MembershipID int64
	ForDate      Date
	Done         string
	WillDo       string
	Blocker      string
}

func (u Update) DoneList() []string    { return SplitLines(u.Done) }
func (u Update) WillDoList() []string  { return SplitLines(u.WillDo) }
func (u Update) BlockerList() []string { return SplitLines(u.Blocker) }

// SplitLines converts a free-text multi-line field into a list of trimmed,
// non-empty lines. "A\n\nB \n" becomes ["A", "B"].
func SplitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
