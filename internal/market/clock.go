// Package market provides the trading calendar clock used to decide between
// immediate execution and pending-order queueing.
package market

import (
	"sync"
	"time"
)

// Clock reports US equity market hours: weekdays 9:30-16:00 Eastern,
// excluding exchange holidays. It implements domain.MarketClock.
// Safe for concurrent use.
type Clock struct {
	location *time.Location

	mu           sync.Mutex
	holidayCache map[int]map[string]bool
}

// NewClock creates a market clock. Falls back to UTC when the Eastern
// timezone database is unavailable.
func NewClock() *Clock {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Clock{
		location:     loc,
		holidayCache: make(map[int]map[string]bool),
	}
}

// IsOpen reports whether the market is open for trading at t.
func (c *Clock) IsOpen(t time.Time) bool {
	market := t.In(c.location)

	if market.Weekday() == time.Saturday || market.Weekday() == time.Sunday {
		return false
	}
	if c.isHoliday(market) {
		return false
	}

	open := time.Date(market.Year(), market.Month(), market.Day(), 9, 30, 0, 0, c.location)
	close := time.Date(market.Year(), market.Month(), market.Day(), 16, 0, 0, 0, c.location)

	return !market.Before(open) && market.Before(close)
}

func (c *Clock) isHoliday(market time.Time) bool {
	year := market.Year()

	c.mu.Lock()
	holidays, ok := c.holidayCache[year]
	if !ok {
		holidays = computeHolidays(year, c.location)
		c.holidayCache[year] = holidays
	}
	c.mu.Unlock()

	return holidays[market.Format("2006-01-02")]
}

// computeHolidays builds the NYSE holiday set for one year.
func computeHolidays(year int, loc *time.Location) map[string]bool {
	holidays := make(map[string]bool)
	add := func(d time.Time) { holidays[d.Format("2006-01-02")] = true }

	// Fixed-date holidays shift to the nearest weekday when they land on a
	// weekend.
	fixed := []struct {
		month time.Month
		day   int
	}{
		{time.January, 1},   // New Year's Day
		{time.June, 19},     // Juneteenth
		{time.July, 4},      // Independence Day
		{time.December, 25}, // Christmas
	}
	for _, f := range fixed {
		add(observeOnWeekday(time.Date(year, f.month, f.day, 0, 0, 0, 0, loc)))
	}

	// Next year's New Year's Day observed on December 31st of this year when
	// January 1st lands on a Saturday.
	if next := observeOnWeekday(time.Date(year+1, time.January, 1, 0, 0, 0, 0, loc)); next.Year() == year {
		add(next)
	}

	add(nthWeekday(year, time.January, time.Monday, 3, loc))    // MLK Day
	add(nthWeekday(year, time.February, time.Monday, 3, loc))   // Presidents' Day
	add(easterSunday(year, loc).AddDate(0, 0, -2))              // Good Friday
	add(lastWeekday(year, time.May, time.Monday, loc))          // Memorial Day
	add(nthWeekday(year, time.September, time.Monday, 1, loc))  // Labor Day
	add(nthWeekday(year, time.November, time.Thursday, 4, loc)) // Thanksgiving

	return holidays
}

// observeOnWeekday shifts Saturday holidays to Friday and Sunday holidays to
// Monday.
func observeOnWeekday(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

// easterSunday computes Western Easter via the Gregorian computus.
func easterSunday(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451

	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int, loc *time.Location) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	for d.Weekday() != weekday {
		d = d.AddDate(0, 0, 1)
	}
	return d.AddDate(0, 0, 7*(n-1))
}

func lastWeekday(year int, month time.Month, weekday time.Weekday, loc *time.Location) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	for d.Weekday() != weekday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
