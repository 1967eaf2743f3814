package access

import (
	"time"

	"rentacar/internal/models"
)

// RedactionReason is attached to client bookings hidden from the viewer.
const RedactionReason = "client booking is not confirmed yet"

// Viewer is the staff member a response is prepared for.
type Viewer struct {
	Role models.Role
	Now  time.Time
}

// ApplyVisibility returns the reservation as the viewer may see it.
// Applying it to an already filtered record changes nothing.
func ApplyVisibility(r models.Reservation, v Viewer) (models.Reservation, error) {
	d, err := Decide(v.Role, &r, v.Now)
	if err != nil {
		return models.Reservation{}, err
	}
	return Redact(r, d), nil
}

// Redact strips client contact fields when the decision hides PII.
func Redact(r models.Reservation, d Decision) models.Reservation {
	out := r.Clone()
	if d.CanSeeClientPII {
		return out
	}
	out.Client = models.ClientContact{}
	out.Redacted = &models.Redaction{Hidden: true, Reason: RedactionReason}
	return out
}
