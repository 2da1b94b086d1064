// Package schedule implements the weekly auto-end schedule: one window per
// weekday, derived from per-day configuration with fallbacks, including
// windows that span midnight.
package schedule

import (
	"fmt"
	"time"

	"github.com/clambin/go-common/set"
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses a "HH:MM" value.
func ParseClock(value string) (ClockTime, bool) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return ClockTime{}, false
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return ClockTime{}, false
	}
	return ClockTime{Hour: hour, Minute: minute}, true
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// After reports whether c is later in the day than other.
func (c ClockTime) After(other ClockTime) bool {
	return c.Hour > other.Hour || (c.Hour == other.Hour && c.Minute > other.Minute)
}

// Before reports whether c is earlier in the day than other.
func (c ClockTime) Before(other ClockTime) bool {
	return other.After(c)
}

// ClockOf returns the time of day of t, truncated to the minute.
func ClockOf(t time.Time) ClockTime {
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}
}

// On returns the instant at c on t's calendar date, in t's location.
func (c ClockTime) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

// Window is one weekday's schedule entry. Disabled days still carry
// placeholder From/To values.
type Window struct {
	Enabled bool
	From    ClockTime
	To      ClockTime
}

// Overnight reports whether the window spans midnight, i.e. its end clock
// time falls on the next calendar day.
func (w Window) Overnight() bool {
	return w.From.After(w.To)
}

// WeeklySchedule holds one Window per weekday, indexed by time.Weekday.
type WeeklySchedule [7]Window

// DayOptions is the stored per-weekday configuration. From and To are "HH:MM"
// strings; invalid or absent values fall back per field.
type DayOptions struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	From    string `mapstructure:"from" yaml:"from"`
	To      string `mapstructure:"to" yaml:"to"`
}

// Hard defaults, used when the provider reports no zone hours.
var (
	DefaultFrom     = ClockTime{Hour: 9}
	DefaultTo       = ClockTime{Hour: 18}
	DefaultWorkdays = set.Create[time.Weekday](
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	)
)

// Derive builds the weekly schedule. When days is nil (no per-day
// configuration stored at all), each weekday in fallbackWorkdays gets an
// enabled fallbackFrom-fallbackTo window. Otherwise each weekday uses its own
// entry, with absent days disabled and unparseable times replaced by the
// fallback for that field. Derive never fails: a schedule is always
// constructible.
func Derive(days map[time.Weekday]DayOptions, fallbackFrom, fallbackTo ClockTime, fallbackWorkdays set.Set[time.Weekday]) WeeklySchedule {
	var schedule WeeklySchedule

	if days == nil {
		for day := time.Sunday; day <= time.Saturday; day++ {
			schedule[day] = Window{
				Enabled: fallbackWorkdays.Contains(day),
				From:    fallbackFrom,
				To:      fallbackTo,
			}
		}
		return schedule
	}

	for day := time.Sunday; day <= time.Saturday; day++ {
		cfg, ok := days[day]
		if !ok {
			schedule[day] = Window{From: fallbackFrom, To: fallbackTo}
			continue
		}
		from, ok := ParseClock(cfg.From)
		if !ok {
			from = fallbackFrom
		}
		to, ok := ParseClock(cfg.To)
		if !ok {
			to = fallbackTo
		}
		schedule[day] = Window{Enabled: cfg.Enabled, From: from, To: to}
	}
	return schedule
}

// EndTimes returns the distinct end times of all enabled days.
func EndTimes(schedule WeeklySchedule) set.Set[ClockTime] {
	endTimes := set.Create[ClockTime]()
	for _, window := range schedule {
		if window.Enabled {
			endTimes.Add(window.To)
		}
	}
	return endTimes
}

// ScheduledEndForStart returns the schedule boundary that will end a
// reservation starting at start, as the boundary's clock time and its UTC
// instant. Local-time reasoning uses start's own location. Two candidates are
// considered: today's window when it is non-overnight and already closed at
// start, and yesterday's overnight window when start falls in its tail before
// today's own window opens. When both apply, the later one wins. ok is false
// when neither applies.
func ScheduledEndForStart(start time.Time, schedule WeeklySchedule) (ClockTime, time.Time, bool) {
	weekday := start.Weekday()
	today := schedule[weekday]
	yesterday := schedule[(weekday+6)%7]
	startClock := ClockOf(start)

	var (
		bestClock ClockTime
		bestEnd   time.Time
		found     bool
	)

	if today.Enabled && !today.Overnight() && !startClock.Before(today.To) {
		bestClock, bestEnd, found = today.To, today.To.On(start), true
	}

	if yesterday.Enabled && yesterday.Overnight() &&
		!startClock.Before(yesterday.To) &&
		today.Enabled && startClock.Before(today.From) {
		// the overnight window's end rolls to the next calendar date, i.e. today
		if end := yesterday.To.On(start); !found || end.After(bestEnd) {
			bestClock, bestEnd, found = yesterday.To, end, true
		}
	}

	if !found {
		return ClockTime{}, time.Time{}, false
	}
	return bestClock, bestEnd.UTC(), true
}

// LastScheduledEnd returns the most recent schedule boundary at or before
// now, as a UTC instant. It walks up to 8 days back (today included) to cover
// any overnight wrap. ok is false when no enabled day has a boundary in that
// range.
func LastScheduledEnd(now time.Time, schedule WeeklySchedule) (time.Time, bool) {
	var (
		last  time.Time
		found bool
	)
	for daysBack := 0; daysBack < 8; daysBack++ {
		day := now.AddDate(0, 0, -daysBack)
		window := schedule[day.Weekday()]
		if !window.Enabled {
			continue
		}
		endDay := day
		if window.Overnight() {
			endDay = day.AddDate(0, 0, 1)
		}
		end := window.To.On(endDay)
		if end.After(now) {
			continue
		}
		if !found || end.After(last) {
			last, found = end, true
		}
	}
	if !found {
		return time.Time{}, false
	}
	return last.UTC(), true
}
