package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ReservationCreated   = "reservation.created"
	ReservationUpdated   = "reservation.updated"
	ReservationConfirmed = "reservation.confirmed"
	ReservationDeleted   = "reservation.deleted"
	SuperadminNotify     = "reservation.superadmin_notify"
	PickupDue            = "reservation.pickup_due"
	ReturnDue            = "reservation.return_due"
)

// ReservationTypes lists every reservation event type.
var ReservationTypes = []string{
	ReservationCreated,
	ReservationUpdated,
	ReservationConfirmed,
	ReservationDeleted,
	SuperadminNotify,
	PickupDue,
	ReturnDue,
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReservationPayload is the body of every reservation.* event.
type ReservationPayload struct {
	ReservationID string   `json:"reservation_id"`
	OrderNumber   string   `json:"order_number"`
	VehicleID     int64    `json:"vehicle_id"`
	StartDay      string   `json:"start_day"`
	EndDay        string   `json:"end_day"`
	Confirmed     bool     `json:"confirmed"`
	ClientOrder   bool     `json:"client_order"`
	ActorID       int64    `json:"actor_id,omitempty"`
	ActorRole     string   `json:"actor_role,omitempty"`
	Fields        []string `json:"fields,omitempty"`
	Superseded    []string `json:"superseded,omitempty"`
}

// HandoverPayload is the body of reservation.pickup_due and
// reservation.return_due events.
type HandoverPayload struct {
	ReservationID string    `json:"reservation_id"`
	OrderNumber   string    `json:"order_number"`
	VehicleID     int64     `json:"vehicle_id"`
	At            time.Time `json:"at"`
	Place         string    `json:"place"`
	ClientName    string    `json:"client_name"`
	ClientPhone   string    `json:"client_phone,omitempty"`
	ClientEmail   string    `json:"client_email,omitempty"`
	Messaging     string    `json:"messaging,omitempty"`
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handler errors are logged
// and never reach the publisher.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Error().Err(err).Str("event_type", event.Type).Str("event_id", event.ID).Msg("Event handler failed")
		}
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}
