package autoend

import (
	"context"
	"time"

	"github.com/rhulsman/parking-monitor/internal/schedule"
)

// TriggerScheduler fires a callback every day at a fixed wall-clock time.
// Implementations return a cancel function that stops the trigger.
type TriggerScheduler interface {
	Schedule(at schedule.ClockTime, fire func(schedule.ClockTime)) func()
}

// ClockTriggerScheduler fires triggers on the system clock, in the given
// location.
type ClockTriggerScheduler struct {
	Location *time.Location

	// allow current time to be set during testing
	GetCurrentTime func() time.Time
}

var _ TriggerScheduler = ClockTriggerScheduler{}

func (c ClockTriggerScheduler) Schedule(at schedule.ClockTime, fire func(schedule.ClockTime)) func() {
	now := time.Now
	if c.GetCurrentTime != nil {
		now = c.GetCurrentTime
	}
	location := c.Location
	if location == nil {
		location = time.Local
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(getNextTriggerDelay(now().In(location), at)):
				fire(at)
			}
		}
	}()
	return cancel
}

func getNextTriggerDelay(now time.Time, at schedule.ClockTime) time.Duration {
	next := at.On(now)
	if !next.After(now) {
		// next calendar day, not +24h: keeps the wall-clock time across
		// DST transitions
		next = at.On(now.AddDate(0, 0, 1))
	}
	return next.Sub(now)
}
