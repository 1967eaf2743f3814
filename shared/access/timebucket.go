package access

import (
	"errors"
	"fmt"
	"time"

	"rentacar/internal/bizdate"
	"rentacar/internal/models"
)

// TimeBucket places "now" relative to a reservation.
type TimeBucket string

const (
	Past    TimeBucket = "PAST"
	Current TimeBucket = "CURRENT"
	Future  TimeBucket = "FUTURE"
)

// TimeBuckets lists every bucket.
var TimeBuckets = []TimeBucket{Past, Current, Future}

func (b TimeBucket) Valid() bool {
	return b == Past || b == Current || b == Future
}

var ErrTimeBucketRequired = errors.New("time bucket required")

// TimeBucketRequiredError is returned when a bucket is missing or cannot be
// derived. Callers must classify; there is no default bucket.
type TimeBucketRequiredError struct {
	Reason string
}

func (e *TimeBucketRequiredError) Error() string {
	if e.Reason == "" {
		return ErrTimeBucketRequired.Error()
	}
	return fmt.Sprintf("%s: %s", ErrTimeBucketRequired, e.Reason)
}

func (e *TimeBucketRequiredError) Unwrap() error {
	return ErrTimeBucketRequired
}

// Classify buckets today (in business time) against [startDay, endDay].
func Classify(startDay, endDay bizdate.Day, now time.Time) (TimeBucket, error) {
	if startDay.IsZero() || endDay.IsZero() {
		return "", &TimeBucketRequiredError{Reason: "reservation has no business days"}
	}
	if endDay.Before(startDay) {
		return "", &TimeBucketRequiredError{Reason: fmt.Sprintf("end day %s precedes start day %s", endDay, startDay)}
	}
	if now.IsZero() {
		return "", &TimeBucketRequiredError{Reason: "reference time is unset"}
	}

	today := bizdate.Today(now)
	switch {
	case endDay.Before(today):
		return Past, nil
	case startDay.After(today):
		return Future, nil
	default:
		return Current, nil
	}
}

// ClassifyReservation buckets now against a reservation's business days.
func ClassifyReservation(r *models.Reservation, now time.Time) (TimeBucket, error) {
	if r == nil {
		return "", &TimeBucketRequiredError{Reason: "no reservation"}
	}
	return Classify(r.StartDay, r.EndDay, now)
}
