package pricing

import (
	"fmt"
	"time"

	"rentacar/internal/bizdate"
)

// NoSeason is the tier used for days no season range covers.
const NoSeason = "no_season"

// MonthDay is a day-of-year without a year.
type MonthDay struct {
	Month time.Month
	Day   int
}

// ParseMonthDay parses "MM-DD". February 29 is accepted.
func ParseMonthDay(s string) (MonthDay, error) {
	t, err := time.Parse("01-02", s)
	if err != nil {
		// time.Parse rejects 02-29 without a year
		if s == "02-29" {
			return MonthDay{Month: time.February, Day: 29}, nil
		}
		return MonthDay{}, fmt.Errorf("invalid month-day %q; expected MM-DD", s)
	}
	return MonthDay{Month: t.Month(), Day: t.Day()}, nil
}

func (m MonthDay) key() int {
	return int(m.Month)*100 + m.Day
}

func (m MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(m.Month), m.Day)
}

// Season is a named day-of-year range. From after To wraps across New Year.
type Season struct {
	Name string
	From MonthDay
	To   MonthDay
}

// Contains reports whether the month-day falls in the season, ends inclusive.
func (s Season) Contains(md MonthDay) bool {
	k, from, to := md.key(), s.From.key(), s.To.key()
	if from <= to {
		return k >= from && k <= to
	}
	return k >= from || k <= to
}

// SeasonTable resolves business days to season names. It is immutable after
// construction and safe for concurrent use.
type SeasonTable struct {
	seasons []Season
}

// NewSeasonTable validates the seasons and builds a table. Earlier entries win
// when ranges overlap.
func NewSeasonTable(seasons []Season) (*SeasonTable, error) {
	seen := make(map[string]bool, len(seasons))
	for i, s := range seasons {
		if s.Name == "" {
			return nil, fmt.Errorf("seasons[%d]: name is required", i)
		}
		if s.Name == NoSeason {
			return nil, fmt.Errorf("seasons[%d]: %q is reserved", i, NoSeason)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("seasons[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		for _, md := range []MonthDay{s.From, s.To} {
			if !validMonthDay(md) {
				return nil, fmt.Errorf("seasons[%d] (%s): invalid month-day %s", i, s.Name, md)
			}
		}
	}
	return &SeasonTable{seasons: append([]Season(nil), seasons...)}, nil
}

func validMonthDay(md MonthDay) bool {
	if md.Month < time.January || md.Month > time.December || md.Day < 1 {
		return false
	}
	// 2024 is a leap year, so Feb 29 is accepted
	return time.Date(2024, md.Month, md.Day, 0, 0, 0, 0, time.UTC).Month() == md.Month
}

// SeasonFor returns the season name for a business day, or NoSeason.
func (t *SeasonTable) SeasonFor(day bizdate.Day) string {
	if t == nil {
		return NoSeason
	}
	md := MonthDay{Month: day.Month(), Day: day.DayOfMonth()}
	for _, s := range t.seasons {
		if s.Contains(md) {
			return s.Name
		}
	}
	return NoSeason
}

// Names returns the configured season names in table order.
func (t *SeasonTable) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.seasons))
	for _, s := range t.seasons {
		names = append(names, s.Name)
	}
	return names
}

// Seasons returns a copy of the configured seasons.
func (t *SeasonTable) Seasons() []Season {
	if t == nil {
		return nil
	}
	return append([]Season(nil), t.seasons...)
}
