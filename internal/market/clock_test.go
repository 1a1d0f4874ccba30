package market

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// eastern builds a wall-clock time in the clock's own location so the tests
// hold regardless of the host timezone.
func eastern(c *Clock, year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, c.location)
}

func TestIsOpen_TradingHours(t *testing.T) {
	clock := NewClock()

	// Wednesday 2026-01-14, a normal session.
	tests := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"before open", eastern(clock, 2026, time.January, 14, 9, 29), false},
		{"at open", eastern(clock, 2026, time.January, 14, 9, 30), true},
		{"midday", eastern(clock, 2026, time.January, 14, 12, 0), true},
		{"last minute", eastern(clock, 2026, time.January, 14, 15, 59), true},
		{"at close", eastern(clock, 2026, time.January, 14, 16, 0), false},
		{"evening", eastern(clock, 2026, time.January, 14, 20, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.open, clock.IsOpen(tt.at))
		})
	}
}

func TestIsOpen_Weekends(t *testing.T) {
	clock := NewClock()

	assert.False(t, clock.IsOpen(eastern(clock, 2026, time.January, 17, 12, 0)), "Saturday")
	assert.False(t, clock.IsOpen(eastern(clock, 2026, time.January, 18, 12, 0)), "Sunday")
}

func TestIsOpen_Holidays(t *testing.T) {
	clock := NewClock()

	holidays := []struct {
		name string
		at   time.Time
	}{
		{"New Year's Day", eastern(clock, 2026, time.January, 1, 12, 0)},
		{"MLK Day (3rd Monday of January)", eastern(clock, 2026, time.January, 19, 12, 0)},
		{"Good Friday", eastern(clock, 2026, time.April, 3, 12, 0)},
		{"Memorial Day (last Monday of May)", eastern(clock, 2026, time.May, 25, 12, 0)},
		{"Juneteenth", eastern(clock, 2026, time.June, 19, 12, 0)},
		{"Independence Day observed Friday", eastern(clock, 2026, time.July, 3, 12, 0)},
		{"Labor Day", eastern(clock, 2026, time.September, 7, 12, 0)},
		{"Thanksgiving (4th Thursday of November)", eastern(clock, 2026, time.November, 26, 12, 0)},
		{"Christmas", eastern(clock, 2026, time.December, 25, 12, 0)},
	}

	for _, h := range holidays {
		t.Run(h.name, func(t *testing.T) {
			assert.False(t, clock.IsOpen(h.at))
		})
	}

	// The Monday after the observed July 4th is a normal session.
	assert.True(t, clock.IsOpen(eastern(clock, 2026, time.July, 6, 12, 0)))
}

func TestIsOpen_GoodFridayMovesWithEaster(t *testing.T) {
	clock := NewClock()

	// Easter-derived, so the date changes every year: 2025-04-18 and
	// 2026-04-03 are both Good Fridays.
	assert.False(t, clock.IsOpen(eastern(clock, 2025, time.April, 18, 12, 0)))
	assert.False(t, clock.IsOpen(eastern(clock, 2026, time.April, 3, 12, 0)))

	// The preceding Thursday trades normally.
	assert.True(t, clock.IsOpen(eastern(clock, 2026, time.April, 2, 12, 0)))
}

func TestIsOpen_ConcurrentAcrossYears(t *testing.T) {
	clock := NewClock()

	// Scheduler goroutines share one clock; concurrent first touches of
	// multiple years must not race on the holiday cache.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for year := 2024; year <= 2027; year++ {
				clock.IsOpen(eastern(clock, year, time.March, 4+g%3, 12, 0))
			}
		}(g)
	}
	wg.Wait()
}

func TestIsOpen_WeekendHolidayObservance(t *testing.T) {
	clock := NewClock()

	// 2027-01-01 falls on a Friday; 2028-01-01 falls on a Saturday and is
	// observed the Friday before, 2027-12-31.
	assert.False(t, clock.IsOpen(eastern(clock, 2027, time.January, 1, 12, 0)))
	assert.False(t, clock.IsOpen(eastern(clock, 2027, time.December, 31, 12, 0)))
}

func TestIsOpen_ConvertsCallerTimezone(t *testing.T) {
	clock := NewClock()

	// The instant is what matters, not the caller's zone representation.
	midday := eastern(clock, 2026, time.January, 14, 12, 0)
	assert.True(t, clock.IsOpen(midday.UTC()))
}
