package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Team is a group of members that submits daily updates and receives
// scheduled reminder and digest emails.
//
// SendDays holds weekday indexes with Monday=0 .. Sunday=6 (the convention
// the stored data uses; see Weekday). Order and duplicates are meaningless;
// a team with an empty SendDays is never scheduled.
//
// Timezone is carried per team but the scheduler deliberately ignores it and
// uses the process-wide business timezone instead; see digest.Clock.
type Team struct {
	ID              int64
	Name            string
	Description     string
	Email           string
	Active          bool
	SubaccountID    string // external sending-account reference; may be empty
	CreatedBy       int64
	OwnerEmail      string // email of the CreatedBy user, populated by store queries
	Timezone        string
	SendDays        []int
	SendDigestAt    TimeOfDay
	SendRemindersAt TimeOfDay
}

// SendsOn reports whether day (Monday=0 convention) is a configured send day.
func (t Team) SendsOn(day int) bool {
	for _, d := range t.SendDays {
		if d == day {
			return true
		}
	}
	return false
}

// Weekday converts t's weekday to the Monday=0 .. Sunday=6 convention used
// by Team.SendDays.
func Weekday(t time.Time) int {
	// time.Weekday has Sunday=0.
	return (int(t.Weekday()) + 6) % 7
}

// TimeOfDay is a wall-clock send time (hour and minute, no date, no zone).
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On anchors the wall-clock time to day's calendar date in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}
