package schedule_test

import (
	"testing"
	"time"

	"github.com/clambin/go-common/set"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhulsman/parking-monitor/internal/schedule"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  schedule.ClockTime
		ok    bool
	}{
		{name: "valid", value: "09:30", want: schedule.ClockTime{Hour: 9, Minute: 30}, ok: true},
		{name: "no leading zero", value: "9:05", want: schedule.ClockTime{Hour: 9, Minute: 5}, ok: true},
		{name: "midnight", value: "00:00", want: schedule.ClockTime{}, ok: true},
		{name: "out of range", value: "24:00", ok: false},
		{name: "garbage", value: "not a time", ok: false},
		{name: "empty", value: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := schedule.ParseClock(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestWindow_Overnight(t *testing.T) {
	tests := []struct {
		name   string
		window schedule.Window
		want   bool
	}{
		{
			name:   "regular working day",
			window: schedule.Window{From: schedule.ClockTime{Hour: 9}, To: schedule.ClockTime{Hour: 18}},
			want:   false,
		},
		{
			name:   "spans midnight",
			window: schedule.Window{From: schedule.ClockTime{Hour: 22}, To: schedule.ClockTime{Hour: 6}},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.Overnight())
		})
	}
}

func TestDerive(t *testing.T) {
	fallbackFrom := schedule.ClockTime{Hour: 8}
	fallbackTo := schedule.ClockTime{Hour: 17}

	t.Run("no stored configuration uses fallback workdays", func(t *testing.T) {
		s := schedule.Derive(nil, fallbackFrom, fallbackTo, schedule.DefaultWorkdays)
		for day := time.Sunday; day <= time.Saturday; day++ {
			assert.Equal(t, schedule.DefaultWorkdays.Contains(day), s[day].Enabled, day.String())
			assert.Equal(t, fallbackFrom, s[day].From)
			assert.Equal(t, fallbackTo, s[day].To)
		}
	})

	t.Run("per-day configuration", func(t *testing.T) {
		days := map[time.Weekday]schedule.DayOptions{
			time.Monday:  {Enabled: true, From: "10:00", To: "20:00"},
			time.Tuesday: {Enabled: true, From: "not a time", To: "16:00"},
			time.Friday:  {Enabled: false, From: "09:00", To: "18:00"},
		}
		s := schedule.Derive(days, fallbackFrom, fallbackTo, schedule.DefaultWorkdays)

		assert.Equal(t, schedule.Window{Enabled: true, From: schedule.ClockTime{Hour: 10}, To: schedule.ClockTime{Hour: 20}}, s[time.Monday])
		// unparseable "from" falls back for that field only
		assert.Equal(t, schedule.Window{Enabled: true, From: fallbackFrom, To: schedule.ClockTime{Hour: 16}}, s[time.Tuesday])
		assert.False(t, s[time.Friday].Enabled)
		// absent days are disabled placeholders, not fallback workdays
		assert.Equal(t, schedule.Window{From: fallbackFrom, To: fallbackTo}, s[time.Wednesday])
		assert.Equal(t, schedule.Window{From: fallbackFrom, To: fallbackTo}, s[time.Sunday])
	})

	t.Run("every weekday always has an entry", func(t *testing.T) {
		s := schedule.Derive(map[time.Weekday]schedule.DayOptions{}, fallbackFrom, fallbackTo, set.Create[time.Weekday]())
		for day := time.Sunday; day <= time.Saturday; day++ {
			assert.NotEqual(t, schedule.ClockTime{}, s[day].To)
		}
	})
}

func TestEndTimes(t *testing.T) {
	days := map[time.Weekday]schedule.DayOptions{
		time.Monday:    {Enabled: true, From: "09:00", To: "18:00"},
		time.Tuesday:   {Enabled: true, From: "09:00", To: "18:00"},
		time.Wednesday: {Enabled: true, From: "10:00", To: "20:00"},
		time.Thursday:  {Enabled: false, From: "09:00", To: "23:00"},
	}
	s := schedule.Derive(days, schedule.DefaultFrom, schedule.DefaultTo, schedule.DefaultWorkdays)

	endTimes := schedule.EndTimes(s)
	assert.True(t, endTimes.Equals(set.Create(
		schedule.ClockTime{Hour: 18},
		schedule.ClockTime{Hour: 20},
	)))

	// order-independent: deriving from the same entries yields the same set
	again := schedule.EndTimes(schedule.Derive(days, schedule.DefaultFrom, schedule.DefaultTo, schedule.DefaultWorkdays))
	assert.True(t, endTimes.Equals(again))
}

func TestScheduledEndForStart(t *testing.T) {
	amsterdam, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	days := map[time.Weekday]schedule.DayOptions{
		time.Monday: {Enabled: true, From: "09:00", To: "18:00"},
		time.Sunday: {Enabled: true, From: "23:00", To: "07:00"},
	}
	s := schedule.Derive(days, schedule.DefaultFrom, schedule.DefaultTo, schedule.DefaultWorkdays)

	t.Run("start after a non-overnight close", func(t *testing.T) {
		// Monday 19:00, after Monday's 18:00 close
		start := time.Date(2024, time.November, 4, 19, 0, 0, 0, amsterdam)
		clock, end, ok := schedule.ScheduledEndForStart(start, s)
		require.True(t, ok)
		assert.Equal(t, "18:00", clock.String())
		assert.Equal(t, time.Date(2024, time.November, 4, 18, 0, 0, 0, amsterdam).UTC(), end)
	})

	t.Run("start in the tail of yesterday's overnight window", func(t *testing.T) {
		// Monday 07:30: Sunday's window closed at 07:00, Monday's opens at 09:00
		start := time.Date(2024, time.November, 4, 7, 30, 0, 0, amsterdam)
		clock, end, ok := schedule.ScheduledEndForStart(start, s)
		require.True(t, ok)
		assert.Equal(t, "07:00", clock.String())
		assert.Equal(t, time.Date(2024, time.November, 4, 7, 0, 0, 0, amsterdam).UTC(), end)
	})

	t.Run("start inside the working window", func(t *testing.T) {
		start := time.Date(2024, time.November, 4, 12, 0, 0, 0, amsterdam)
		_, _, ok := schedule.ScheduledEndForStart(start, s)
		assert.False(t, ok)
	})

	t.Run("start on a disabled day", func(t *testing.T) {
		// Wednesday is not configured
		start := time.Date(2024, time.November, 6, 19, 0, 0, 0, amsterdam)
		_, _, ok := schedule.ScheduledEndForStart(start, s)
		assert.False(t, ok)
	})
}

func TestLastScheduledEnd(t *testing.T) {
	amsterdam, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	t.Run("boundary on a previous day", func(t *testing.T) {
		// only Monday enabled; now is Tuesday 08:00
		days := map[time.Weekday]schedule.DayOptions{
			time.Monday: {Enabled: true, From: "09:00", To: "18:00"},
		}
		s := schedule.Derive(days, schedule.DefaultFrom, schedule.DefaultTo, schedule.DefaultWorkdays)

		now := time.Date(2024, time.November, 5, 8, 0, 0, 0, amsterdam)
		last, ok := schedule.LastScheduledEnd(now, s)
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, time.November, 4, 18, 0, 0, 0, amsterdam).UTC(), last)
	})

	t.Run("overnight boundary lands on the next date", func(t *testing.T) {
		// Sunday 23:00-07:00; now is Monday 08:00, so the boundary is Monday 07:00
		days := map[time.Weekday]schedule.DayOptions{
			time.Sunday: {Enabled: true, From: "23:00", To: "07:00"},
		}
		s := schedule.Derive(days, schedule.DefaultFrom, schedule.DefaultTo, schedule.DefaultWorkdays)

		now := time.Date(2024, time.November, 4, 8, 0, 0, 0, amsterdam)
		last, ok := schedule.LastScheduledEnd(now, s)
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, time.November, 4, 7, 0, 0, 0, amsterdam).UTC(), last)
	})

	t.Run("future boundaries are ignored", func(t *testing.T) {
		days := map[time.Weekday]schedule.DayOptions{
			time.Monday: {Enabled: true, From: "09:00", To: "18:00"},
		}
		s := schedule.Derive(days, schedule.DefaultFrom, schedule.DefaultTo, schedule.DefaultWorkdays)

		// Monday 12:00: today's 18:00 close hasn't happened yet
		now := time.Date(2024, time.November, 4, 12, 0, 0, 0, amsterdam)
		last, ok := schedule.LastScheduledEnd(now, s)
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, time.October, 28, 18, 0, 0, 0, amsterdam).UTC(), last)
	})

	t.Run("no enabled days", func(t *testing.T) {
		s := schedule.Derive(map[time.Weekday]schedule.DayOptions{}, schedule.DefaultFrom, schedule.DefaultTo, schedule.DefaultWorkdays)
		_, ok := schedule.LastScheduledEnd(time.Now(), s)
		assert.False(t, ok)
	})
}
