// Package bizdate canonicalizes instants to calendar days in the business
// timezone (Europe/Athens), independent of server or client local time.
package bizdate

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // business zone must resolve on hosts without zoneinfo
)

const (
	// Timezone is the IANA name of the business timezone.
	Timezone = "Europe/Athens"

	// DateLayout is the wire format of a business day.
	DateLayout = "2006-01-02"

	// ClockLayout is the wire format of a wall-clock time.
	ClockLayout = "15:04"
)

var location = mustLoad(Timezone)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("bizdate: load %s: %v", name, err))
	}
	return loc
}

// Location returns the business timezone.
func Location() *time.Location {
	return location
}

// Day is a calendar day in the business timezone. The zero value means "unset".
type Day struct {
	t time.Time // UTC midnight of the same Y-M-D, used only for arithmetic
}

// NewDay builds a day from its calendar components. Out-of-range values
// normalize the way time.Date does.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the business day an instant falls on.
func DayOf(instant time.Time) Day {
	y, m, d := instant.In(location).Date()
	return NewDay(y, m, d)
}

// Today returns the business day of now.
func Today(now time.Time) Day {
	return DayOf(now)
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q; expected YYYY-MM-DD", s)
	}
	return NewDay(t.Date()), nil
}

// ParseInstantOrDay accepts either an RFC 3339 instant or a date-only string.
// A date-only string means wall-clock midnight in the business timezone, not
// UTC midnight.
func ParseInstantOrDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := ParseDay(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q; expected RFC3339 or YYYY-MM-DD", s)
	}
	return d.Midnight(), nil
}

// Instant combines a business day and an HH:mm clock time into an absolute instant.
func Instant(day Day, clock string) (time.Time, error) {
	return day.At(clock)
}

// DaysBetween returns the number of business days from the day of start to
// the day of end. It is negative when end falls on an earlier day.
func DaysBetween(start, end time.Time) int {
	return DayOf(end).Sub(DayOf(start))
}

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool {
	return d.t.IsZero()
}

// Date returns the calendar components.
func (d Day) Date() (year int, month time.Month, day int) {
	return d.t.Date()
}

// Month returns the month of the day.
func (d Day) Month() time.Month {
	return d.t.Month()
}

// DayOfMonth returns the day-of-month component.
func (d Day) DayOfMonth() int {
	return d.t.Day()
}

// Midnight returns the instant the day starts in the business timezone.
func (d Day) Midnight() time.Time {
	y, m, dd := d.t.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, location)
}

// At returns the instant of an HH:mm wall-clock time on this day.
func (d Day) At(clock string) (time.Time, error) {
	c, err := time.Parse(ClockLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q; expected HH:MM", clock)
	}
	y, m, dd := d.t.Date()
	return time.Date(y, m, dd, c.Hour(), c.Minute(), 0, 0, location), nil
}

// AddDays returns the day n days later (earlier for negative n).
func (d Day) AddDays(n int) Day {
	return Day{t: d.t.AddDate(0, 0, n)}
}

// Sub returns the number of days from o to d.
func (d Day) Sub(o Day) int {
	return int(d.t.Sub(o.t) / (24 * time.Hour))
}

func (d Day) Before(o Day) bool { return d.t.Before(o.t) }
func (d Day) After(o Day) bool  { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool  { return d.t.Equal(o.t) }

// Between reports whether d lies in [from, to] inclusive.
func (d Day) Between(from, to Day) bool {
	return !d.Before(from) && !d.After(to)
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Day) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the day as TEXT.
func (d Day) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan reads a day stored as TEXT or DATETIME.
func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Day{}
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	case time.Time:
		*d = NewDay(v.Date())
		return nil
	default:
		return fmt.Errorf("bizdate: cannot scan %T into Day", src)
	}
}

func (d *Day) scanString(s string) error {
	if s == "" {
		*d = Day{}
		return nil
	}
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
