package service

import (
	"errors"
	"fmt"
)

var (
	ErrVehicleNotFound     = errors.New("vehicle not found")
	ErrVehicleInactive     = errors.New("vehicle is not available for rental")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrAlreadyConfirmed    = errors.New("reservation is already confirmed")
	ErrInvalidBooking      = errors.New("invalid booking request")
)

// FieldNotEditableError names the field an edit touched without the
// matching capability.
type FieldNotEditableError struct {
	Field string
}

func (e *FieldNotEditableError) Error() string {
	return fmt.Sprintf("field %s is not editable on this reservation", e.Field)
}

// IsFieldNotEditable reports whether err is a FieldNotEditableError.
func IsFieldNotEditable(err error) bool {
	var target *FieldNotEditableError
	return errors.As(err, &target)
}
