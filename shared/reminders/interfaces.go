package reminders

import (
	"context"
	"time"

	"rentacar/internal/bizdate"
	"rentacar/internal/models"
)

// Kind tells whether the reminder is for handing the car over or taking it back.
type Kind string

const (
	KindPickup Kind = "pickup"
	KindReturn Kind = "return"
)

// Handover is one due pickup or return.
type Handover struct {
	Kind        Kind
	At          time.Time
	Place       string
	Reservation models.Reservation
}

// Store provides confirmed reservations and remembers delivered reminders.
type Store interface {
	// ListConfirmedHandovers returns confirmed reservations starting or
	// ending on a business day within [from, to].
	ListConfirmedHandovers(ctx context.Context, from, to bizdate.Day) ([]models.Reservation, error)

	ReminderSent(ctx context.Context, reservationID, kind string, dueAt time.Time) (bool, error)
	MarkReminderSent(ctx context.Context, reservationID, kind string, dueAt time.Time) error
}

// Publisher delivers reminder events. A returned error is retried and leaves
// the handover unmarked.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}

// Logger interface for logging.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}
