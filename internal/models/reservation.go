package models

import (
	"sort"
	"time"

	"rentacar/internal/bizdate"
)

// Ownership tells who created a reservation.
type Ownership string

const (
	OwnershipClient   Ownership = "client"
	OwnershipInternal Ownership = "internal"
)

func (o Ownership) Valid() bool {
	return o == OwnershipClient || o == OwnershipInternal
}

// ClientContact holds the personally identifying fields of a reservation.
type ClientContact struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Messaging string `json:"messaging,omitempty"` // WhatsApp/Viber/Telegram handle
}

// IsEmpty reports whether no contact field is set.
func (c ClientContact) IsEmpty() bool {
	return c.Name == "" && c.Phone == "" && c.Email == "" && c.Messaging == ""
}

// AddOns are the priced extras of a rental.
type AddOns struct {
	InsuranceTier string `json:"insurance_tier"`
	ChildSeats    int    `json:"child_seats"`
	SecondDriver  bool   `json:"second_driver"`
}

// Redaction marks a view from which client PII was removed.
type Redaction struct {
	Hidden bool   `json:"hidden"`
	Reason string `json:"reason"`
}

// Reservation is a rental of one vehicle over [Start, End).
type Reservation struct {
	ID            string        `json:"id"`
	OrderNumber   string        `json:"order_number"`
	VehicleID     int64         `json:"vehicle_id"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	StartDay      bizdate.Day   `json:"business_start_day"` // derived from Start
	EndDay        bizdate.Day   `json:"business_end_day"`   // derived from End
	Days          int           `json:"days"`
	Confirmed     bool          `json:"confirmed"`
	Ownership     Ownership     `json:"ownership"`
	CreatedByRole Role          `json:"created_by_role,omitempty"`
	Conflicts     []string      `json:"conflicting_reservation_ids"`
	AddOns        AddOns        `json:"add_ons"`
	PickupPlace   string        `json:"pickup_place"`
	ReturnPlace   string        `json:"return_place"`
	Franchise     int64         `json:"franchise"`
	TotalPrice    int64         `json:"total_price"`
	OverridePrice *int64        `json:"override_price,omitempty"`
	Client        ClientContact `json:"client"`
	Redacted      *Redaction    `json:"client_redacted,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Version       int64         `json:"version"`
}

// Sync recomputes the business-day fields from the instants.
func (r *Reservation) Sync() {
	r.StartDay = bizdate.DayOf(r.Start)
	r.EndDay = bizdate.DayOf(r.End)
	r.Days = r.EndDay.Sub(r.StartDay)
}

// IsClient reports whether the reservation came from the public booking flow.
func (r *Reservation) IsClient() bool {
	return r.Ownership == OwnershipClient
}

// EffectivePrice is the override when set, otherwise the computed total.
func (r *Reservation) EffectivePrice() int64 {
	if r.OverridePrice != nil {
		return *r.OverridePrice
	}
	return r.TotalPrice
}

// HasConflicts reports whether any pending reservation competes with this one.
func (r *Reservation) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// AddConflict records a competing reservation. The set stays sorted and unique.
func (r *Reservation) AddConflict(id string) bool {
	i := sort.SearchStrings(r.Conflicts, id)
	if i < len(r.Conflicts) && r.Conflicts[i] == id {
		return false
	}
	r.Conflicts = append(r.Conflicts, "")
	copy(r.Conflicts[i+1:], r.Conflicts[i:])
	r.Conflicts[i] = id
	return true
}

// RemoveConflict drops a competing reservation from the set.
func (r *Reservation) RemoveConflict(id string) bool {
	i := sort.SearchStrings(r.Conflicts, id)
	if i >= len(r.Conflicts) || r.Conflicts[i] != id {
		return false
	}
	r.Conflicts = append(r.Conflicts[:i], r.Conflicts[i+1:]...)
	return true
}

// Clone returns a deep copy.
func (r *Reservation) Clone() Reservation {
	c := *r
	if r.Conflicts != nil {
		c.Conflicts = append([]string(nil), r.Conflicts...)
	}
	if r.OverridePrice != nil {
		p := *r.OverridePrice
		c.OverridePrice = &p
	}
	if r.Redacted != nil {
		red := *r.Redacted
		c.Redacted = &red
	}
	return c
}

// ChangeSet is the set of reservation writes that must land atomically.
type ChangeSet struct {
	Upserts []Reservation
	Deletes []string
}

func (c ChangeSet) Empty() bool {
	return len(c.Upserts) == 0 && len(c.Deletes) == 0
}
