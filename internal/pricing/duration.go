package pricing

import (
	"time"

	"rentacar/internal/bizdate"
	"rentacar/internal/models"
)

// RentalDays returns the number of whole business days between pickup and
// return. Pickup and return on the same business day is invalid.
func RentalDays(start, end time.Time) (int, error) {
	days := bizdate.DaysBetween(start, end)
	if days <= 0 || !end.After(start) {
		return 0, &InvalidDurationError{Start: start, End: end}
	}
	return days, nil
}

// BracketFor maps a rental length to its price bracket.
func BracketFor(days int) models.Bracket {
	switch {
	case days <= 4:
		return models.BracketShort
	case days <= 14:
		return models.BracketMedium
	default:
		return models.BracketLong
	}
}
