package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rentacar/internal/bizdate"
	"rentacar/internal/models"
)

var (
	ErrUnknownInsuranceTier = errors.New("unknown insurance tier")
	ErrInvalidAddOns        = errors.New("invalid add-ons")
	ErrInvalidPriceTable    = errors.New("invalid price table")
)

// InvalidDurationError is returned when start and end resolve to the same
// or an inverted business day.
type InvalidDurationError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidDurationError) Error() string {
	startDay, endDay := bizdate.DayOf(e.Start), bizdate.DayOf(e.End)
	if startDay.Equal(endDay) {
		return fmt.Sprintf("invalid rental duration: pickup and return are on the same day (%s)", startDay)
	}
	return fmt.Sprintf("invalid rental duration: return day %s is before pickup day %s", endDay, startDay)
}

// TierGap names a (season, bracket) pair a vehicle has no rate for.
type TierGap struct {
	Season  string         `json:"season"`
	Bracket models.Bracket `json:"bracket"`
}

func (g TierGap) String() string {
	return g.Season + "/" + string(g.Bracket)
}

// MissingPricingDataError is returned when a vehicle has no price table, or,
// in strict mode, lacks a rate for a rental day.
type MissingPricingDataError struct {
	VehicleID int64
	Gaps      []TierGap
}

func (e *MissingPricingDataError) Error() string {
	if len(e.Gaps) == 0 {
		return fmt.Sprintf("vehicle %d has no pricing table", e.VehicleID)
	}
	parts := make([]string, 0, len(e.Gaps))
	for _, g := range e.Gaps {
		parts = append(parts, g.String())
	}
	return fmt.Sprintf("vehicle %d has no rate for %s", e.VehicleID, strings.Join(parts, ", "))
}

// IsInvalidDuration reports whether err is an InvalidDurationError.
func IsInvalidDuration(err error) bool {
	var target *InvalidDurationError
	return errors.As(err, &target)
}

// IsMissingPricingData reports whether err is a MissingPricingDataError.
func IsMissingPricingData(err error) bool {
	var target *MissingPricingDataError
	return errors.As(err, &target)
}
