package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rentacar/internal/metrics"
	"rentacar/internal/models"
)

// StaffRepository stores staff members. GetStaff returns nil, nil for
// unknown users.
type StaffRepository interface {
	GetStaff(ctx context.Context, userID int64) (*models.Staff, error)
	AddStaff(ctx context.Context, s *models.Staff) error
	RemoveStaff(ctx context.Context, userID int64) error
	ListStaff(ctx context.Context) ([]models.Staff, error)
}

// Action is a capability checked by Authorize.
type Action string

const (
	ActionView        Action = "view"
	ActionEdit        Action = "edit"
	ActionDelete      Action = "delete"
	ActionConfirm     Action = "confirm"
	ActionEditPricing Action = "edit_pricing"
)

// Allows reports whether the decision grants the action.
func (d Decision) Allows(a Action) bool {
	switch a {
	case ActionView:
		return d.CanView
	case ActionEdit:
		return d.CanEdit
	case ActionDelete:
		return d.CanDelete
	case ActionConfirm:
		return d.CanConfirm
	case ActionEditPricing:
		return d.CanEditPricing
	default:
		return false
	}
}

// Service resolves staff roles and enforces the access policy.
type Service struct {
	staff  StaffRepository
	logger zerolog.Logger
}

// NewService creates a new access control service.
func NewService(staff StaffRepository, logger zerolog.Logger) *Service {
	return &Service{
		staff:  staff,
		logger: logger.With().Str("component", "access").Logger(),
	}
}

// Role returns the role of a staff member.
func (s *Service) Role(ctx context.Context, userID int64) (models.Role, error) {
	member, err := s.staff.GetStaff(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("checking staff status: %w", err)
	}
	if member == nil {
		return "", &AccessDeniedError{Reason: fmt.Sprintf("user %d is not staff", userID)}
	}
	if !member.Role.Valid() {
		return "", fmt.Errorf("%w: %q for user %d", ErrUnknownRole, member.Role, userID)
	}
	return member.Role, nil
}

// Authorize computes the decision for a staff member and fails with
// AccessDeniedError unless it grants the action.
func (s *Service) Authorize(ctx context.Context, userID int64, r *models.Reservation, now time.Time, action Action) (Decision, error) {
	role, err := s.Role(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	d, err := Decide(role, r, now)
	if err != nil {
		return Decision{}, err
	}
	if !d.Allows(action) {
		metrics.IncAccessDenied(string(action))
		s.logger.Warn().
			Int64("user_id", userID).
			Str("role", string(role)).
			Str("reservation_id", r.ID).
			Str("action", string(action)).
			Msg("access denied")
		return d, &AccessDeniedError{Reason: fmt.Sprintf("%s not allowed for %s on this reservation", action, role)}
	}
	return d, nil
}

// AddStaff adds a staff member. Only superadmins may add staff.
func (s *Service) AddStaff(ctx context.Context, userID int64, name string, role models.Role, addedBy int64) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if err := s.SuperadminMiddleware(ctx, addedBy); err != nil {
		return err
	}

	member := &models.Staff{UserID: userID, Name: name, Role: role, AddedBy: addedBy}
	if err := s.staff.AddStaff(ctx, member); err != nil {
		return err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("added_by", addedBy).
		Str("role", string(role)).
		Msg("staff added")

	return nil
}

// RemoveStaff removes a staff member.
func (s *Service) RemoveStaff(ctx context.Context, userID, removedBy int64) error {
	if err := s.SuperadminMiddleware(ctx, removedBy); err != nil {
		return err
	}
	if err := s.staff.RemoveStaff(ctx, userID); err != nil {
		return err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("removed_by", removedBy).
		Msg("staff removed")

	return nil
}

// ListStaff returns all staff members. Only superadmins may list staff.
func (s *Service) ListStaff(ctx context.Context, callerID int64) ([]models.Staff, error) {
	if err := s.SuperadminMiddleware(ctx, callerID); err != nil {
		return nil, err
	}
	return s.staff.ListStaff(ctx)
}

// Middleware checks that the caller is staff.
func (s *Service) Middleware(ctx context.Context, userID int64) error {
	_, err := s.Role(ctx, userID)
	return err
}

// SuperadminMiddleware checks that the caller is a superadmin.
func (s *Service) SuperadminMiddleware(ctx context.Context, userID int64) error {
	role, err := s.Role(ctx, userID)
	if err != nil {
		return err
	}
	if role != models.RoleSuperadmin {
		return &AccessDeniedError{Reason: fmt.Sprintf("user %d is not a superadmin", userID)}
	}
	return nil
}

// AccessDeniedError is returned when user access is denied.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var target *AccessDeniedError
	return errors.As(err, &target)
}
