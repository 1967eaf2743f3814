// Package access decides what staff may see and do with a reservation and
// scrubs responses accordingly.
package access

import (
	"errors"
	"fmt"
	"time"

	"rentacar/internal/models"
)

var (
	ErrUnknownRole      = errors.New("unknown role")
	ErrInconsistentPast = errors.New("isPast disagrees with time bucket")
)

// Input is everything the policy looks at.
type Input struct {
	Role          models.Role `json:"role"`
	IsClientOrder bool        `json:"is_client_order"`
	Confirmed     bool        `json:"confirmed"`
	IsPast        bool        `json:"is_past"`
	TimeBucket    TimeBucket  `json:"time_bucket"`
}

// Decision is the capability set for one viewer and reservation. It is
// computed per request and never stored.
type Decision struct {
	CanView                bool `json:"can_view"`
	CanEdit                bool `json:"can_edit"`
	CanDelete              bool `json:"can_delete"`
	CanEditPickupDate      bool `json:"can_edit_pickup_date"`
	CanEditReturnDate      bool `json:"can_edit_return_date"`
	CanEditPickupPlace     bool `json:"can_edit_pickup_place"`
	CanEditReturn          bool `json:"can_edit_return"`
	CanEditInsurance       bool `json:"can_edit_insurance"`
	CanEditFranchise       bool `json:"can_edit_franchise"`
	CanEditPricing         bool `json:"can_edit_pricing"`
	CanConfirm             bool `json:"can_confirm"`
	CanSeeClientPII        bool `json:"can_see_client_pii"`
	CanEditClientPII       bool `json:"can_edit_client_pii"`
	NotifySuperadminOnEdit bool `json:"notify_superadmin_on_edit"`
	IsViewOnly             bool `json:"is_view_only"`
}

// InputFor builds the policy input for a role and reservation at now.
func InputFor(role models.Role, r *models.Reservation, now time.Time) (Input, error) {
	bucket, err := ClassifyReservation(r, now)
	if err != nil {
		return Input{}, err
	}
	return Input{
		Role:          role,
		IsClientOrder: r.IsClient(),
		Confirmed:     r.Confirmed,
		IsPast:        bucket == Past,
		TimeBucket:    bucket,
	}, nil
}

// Decide classifies the reservation and applies the policy.
func Decide(role models.Role, r *models.Reservation, now time.Time) (Decision, error) {
	in, err := InputFor(role, r, now)
	if err != nil {
		return Decision{}, err
	}
	return GetAccess(in)
}

// GetAccess maps (role, ownership, confirmed, time bucket) to a decision.
// Tuples outside the table fail instead of falling back to permissive access.
func GetAccess(in Input) (Decision, error) {
	if in.TimeBucket == "" {
		return Decision{}, &TimeBucketRequiredError{Reason: "getAccess called without a time bucket"}
	}
	if !in.TimeBucket.Valid() {
		return Decision{}, &TimeBucketRequiredError{Reason: fmt.Sprintf("unrecognized time bucket %q", in.TimeBucket)}
	}
	if in.IsPast != (in.TimeBucket == Past) {
		return Decision{}, fmt.Errorf("%w: is_past=%t, bucket=%s", ErrInconsistentPast, in.IsPast, in.TimeBucket)
	}

	switch in.Role {
	case models.RoleSuperadmin:
		return superadmin(), nil
	case models.RoleAdmin:
		if in.IsClientOrder {
			return adminClientOrder(in), nil
		}
		return adminInternalOrder(in), nil
	default:
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownRole, in.Role)
	}
}

func superadmin() Decision {
	return Decision{
		CanView:            true,
		CanEdit:            true,
		CanDelete:          true,
		CanEditPickupDate:  true,
		CanEditReturnDate:  true,
		CanEditPickupPlace: true,
		CanEditReturn:      true,
		CanEditInsurance:   true,
		CanEditFranchise:   true,
		CanEditPricing:     true,
		CanConfirm:         true,
		CanSeeClientPII:    true,
		CanEditClientPII:   true,
	}
}

// Internal orders carry no customer data, so PII is always visible.
func adminInternalOrder(in Input) Decision {
	switch in.TimeBucket {
	case Future:
		return superadmin()
	case Current:
		// the car is already out: pickup side is locked
		d := superadmin()
		d.CanDelete = false
		d.CanEditPickupDate = false
		d.CanEditPickupPlace = false
		return d
	default:
		return viewOnly(true)
	}
}

// Franchise and anything price-affecting stay superadmin-only here.
func adminClientOrder(in Input) Decision {
	if !in.Confirmed {
		return viewOnly(false)
	}
	if in.TimeBucket == Past {
		return viewOnly(true)
	}
	return Decision{
		CanView:                true,
		CanEdit:                true,
		CanEditReturnDate:      true,
		CanEditReturn:          true,
		CanSeeClientPII:        true,
		NotifySuperadminOnEdit: true,
	}
}

func viewOnly(pii bool) Decision {
	return Decision{
		CanView:         true,
		CanSeeClientPII: pii,
		IsViewOnly:      true,
	}
}
