package rank

import (
	"fmt"
	"strings"
	"time"
)

type Window string

const (
	WindowGlobal  Window = "global"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
)

func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case WindowGlobal, WindowWeekly, WindowMonthly:
		return w, nil
	case "all", "all-time", "":
		return WindowGlobal, nil
	default:
		return "", fmt.Errorf("unknown leaderboard window %q", s)
	}
}

// Start returns the inclusive lower bound of the window containing now, evaluated in loc.
// Weekly windows start Monday 00:00:00, monthly windows on day 1 00:00:00. The global
// window has a zero start.
func (w Window) Start(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	switch w {
	case WindowWeekly:
		// time.Sunday == 0; shift so Monday is day 0.
		daysSinceMonday := (int(local.Weekday()) + 6) % 7
		d := local.AddDate(0, 0, -daysSinceMonday)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	case WindowMonthly:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return time.Time{}
	}
}

// Clock supplies the current time for window boundaries.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }
