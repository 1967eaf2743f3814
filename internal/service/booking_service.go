package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rentacar/internal/bizdate"
	"rentacar/internal/conflict"
	"rentacar/internal/database"
	"rentacar/internal/events"
	"rentacar/internal/lock"
	"rentacar/internal/metrics"
	"rentacar/internal/models"
	"rentacar/internal/pricing"
	"rentacar/shared/access"
)

const (
	defaultLockWait   = 5 * time.Second
	maxCalendarDays   = 90
	orderNumberTries  = 3
	operationCreate   = "create"
	operationInternal = "create_internal"
	operationEdit     = "edit"
	operationConfirm  = "confirm"
)

// Repository is the persistence the booking service needs.
type Repository interface {
	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	ListVehicleReservations(ctx context.Context, vehicleID int64) ([]models.Reservation, error)
	ListReservationsInRange(ctx context.Context, vehicleID int64, from, to bizdate.Day) ([]models.Reservation, error)
	ApplyChanges(ctx context.Context, cs models.ChangeSet) error
}

// EventPublisher receives reservation events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Authorizer resolves staff roles and checks actions against the policy.
type Authorizer interface {
	Role(ctx context.Context, userID int64) (models.Role, error)
	Authorize(ctx context.Context, userID int64, r *models.Reservation, now time.Time, action access.Action) (access.Decision, error)
}

// Options tune the booking service. Zero values are usable.
type Options struct {
	Buffer   time.Duration
	Tracer   conflict.Tracer
	LockWait time.Duration
	Now      func() time.Time
}

// BookingRequest describes a new reservation.
type BookingRequest struct {
	VehicleID   int64
	Start       time.Time
	End         time.Time
	AddOns      models.AddOns
	PickupPlace string
	ReturnPlace string
	Franchise   int64
	Client      models.ClientContact
	// Confirmed only applies to internal bookings; client bookings always start pending.
	Confirmed bool
}

// BookingUpdate carries the fields an edit changes; nil means unchanged.
type BookingUpdate struct {
	Start       *time.Time
	End         *time.Time
	PickupPlace *string
	ReturnPlace *string
	AddOns      *models.AddOns
	Franchise   *int64
	Client      *models.ClientContact
}

// BookingResult is the outcome of a write. On a hard conflict Reservation is
// nil and Conflict carries the blocking ranges.
type BookingResult struct {
	Reservation *models.Reservation `json:"reservation,omitempty"`
	Conflict    conflict.Result     `json:"conflict"`
	Quote       *pricing.Quote      `json:"quote,omitempty"`
}

// Rejected reports whether the write was refused by a confirmed overlap.
func (r *BookingResult) Rejected() bool {
	return r.Conflict.Outcome == conflict.HardConflict
}

// CalendarEntry is one reservation in a vehicle calendar feed.
type CalendarEntry struct {
	Reservation  models.Reservation `json:"reservation"`
	TimeBucket   access.TimeBucket  `json:"time_bucket"`
	HasConflicts bool               `json:"has_conflicts"`
}

// BookingService runs every reservation write under the vehicle's lock:
// load the schedule, check conflicts, commit reservation and conflict edges
// in one transaction, then publish events.
type BookingService struct {
	repo     Repository
	locker   lock.Locker
	events   EventPublisher
	access   Authorizer
	pricing  *pricing.Engine
	detector conflict.Detector
	lockWait time.Duration
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewBookingService(
	repo Repository,
	locker lock.Locker,
	eventBus EventPublisher,
	authorizer Authorizer,
	engine *pricing.Engine,
	opts Options,
	logger *zerolog.Logger,
) *BookingService {
	if opts.LockWait <= 0 {
		opts.LockWait = defaultLockWait
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := logger.With().Str("component", "booking").Logger()
	return &BookingService{
		repo:     repo,
		locker:   locker,
		events:   eventBus,
		access:   authorizer,
		pricing:  engine,
		detector: conflict.Detector{Buffer: opts.Buffer, Tracer: opts.Tracer},
		lockWait: opts.LockWait,
		now:      opts.Now,
		logger:   &l,
	}
}

// Quote prices a candidate rental without booking it.
func (s *BookingService) Quote(ctx context.Context, vehicleID int64, start, end time.Time, addOns models.AddOns) (*pricing.Quote, error) {
	v, err := s.rentableVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if err := s.pricing.ValidateAddOns(addOns); err != nil {
		return nil, err
	}
	q, err := s.pricing.Compute(ctx, v, start, end, addOns)
	if err != nil {
		return nil, err
	}
	metrics.IncQuote()
	return q, nil
}

// CreateBooking stores a pending client reservation from the public flow.
func (s *BookingService) CreateBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if req.Client.IsEmpty() {
		return nil, fmt.Errorf("%w: client contact is required", ErrInvalidBooking)
	}
	v, err := s.rentableVehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if err := s.pricing.ValidateAddOns(req.AddOns); err != nil {
		return nil, err
	}
	q, err := s.pricing.Compute(ctx, v, req.Start, req.End, req.AddOns)
	if err != nil {
		return nil, err
	}

	r := s.newReservation(req, models.OwnershipClient, "")
	r.Confirmed = false
	r.TotalPrice = q.Total

	res, err := s.place(ctx, operationCreate, r)
	if err != nil {
		return nil, err
	}
	res.Quote = q
	if !res.Rejected() {
		s.publish(events.ReservationCreated, s.payload(res.Reservation, 0, "", nil, nil))
	}
	return res, nil
}

// CreateInternalBooking stores a staff reservation for non-rental use.
// Internal reservations are not priced.
func (s *BookingService) CreateInternalBooking(ctx context.Context, staffID int64, req BookingRequest) (*BookingResult, error) {
	role, err := s.access.Role(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if _, err := s.vehicle(ctx, req.VehicleID); err != nil {
		return nil, err
	}
	if _, err := pricing.RentalDays(req.Start, req.End); err != nil {
		return nil, err
	}
	if err := s.pricing.ValidateAddOns(req.AddOns); err != nil {
		return nil, err
	}

	r := s.newReservation(req, models.OwnershipInternal, role)
	r.Confirmed = req.Confirmed

	res, err := s.place(ctx, operationInternal, r)
	if err != nil {
		return nil, err
	}
	if !res.Rejected() {
		s.publish(events.ReservationCreated, s.payload(res.Reservation, staffID, role, nil, res.Conflict.Superseded))
	}
	return res, nil
}

// GetBooking returns a reservation as the staff member may see it, together
// with the decision used to filter it.
func (s *BookingService) GetBooking(ctx context.Context, staffID int64, id string) (*models.Reservation, access.Decision, error) {
	r, err := s.reservation(ctx, id)
	if err != nil {
		return nil, access.Decision{}, err
	}
	d, err := s.access.Authorize(ctx, staffID, r, s.now(), access.ActionView)
	if err != nil {
		return nil, access.Decision{}, err
	}
	out := access.Redact(*r, d)
	return &out, d, nil
}

// Access returns the decision for a staff member on a reservation.
func (s *BookingService) Access(ctx context.Context, staffID int64, id string) (access.Decision, error) {
	r, err := s.reservation(ctx, id)
	if err != nil {
		return access.Decision{}, err
	}
	role, err := s.access.Role(ctx, staffID)
	if err != nil {
		return access.Decision{}, err
	}
	return access.Decide(role, r, s.now())
}

// UpdateBooking applies a staff edit. Every changed field must be allowed
// by the decision computed on the current record; an interval change is
// re-checked for conflicts and the price is recomputed. The override price
// is never touched here.
func (s *BookingService) UpdateBooking(ctx context.Context, staffID int64, id string, upd BookingUpdate) (*BookingResult, error) {
	current, err := s.reservation(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *BookingResult
	var decision access.Decision
	var role models.Role
	var fields []string
	err = s.withVehicleLock(ctx, current.VehicleID, func(ctx context.Context) error {
		now := s.now()
		schedule, err := s.repo.ListVehicleReservations(ctx, current.VehicleID)
		if err != nil {
			return err
		}
		g := conflict.NewGraph(s.detector, schedule)
		r, ok := g.Get(id)
		if !ok {
			return ErrReservationNotFound
		}
		if decision, err = s.access.Authorize(ctx, staffID, &r, now, access.ActionEdit); err != nil {
			return err
		}
		if role, err = s.access.Role(ctx, staffID); err != nil {
			return err
		}

		fields = changedFields(&r, upd)
		if err := checkFields(decision, fields); err != nil {
			metrics.IncAccessDenied("edit_field")
			return err
		}
		if err := checkReturnDay(decision, &r, upd); err != nil {
			metrics.IncAccessDenied("edit_field")
			return err
		}
		if len(fields) == 0 {
			result = &BookingResult{Reservation: &r, Conflict: conflict.Result{Outcome: conflict.Free}}
			return nil
		}

		start, end := r.Start, r.End
		if upd.Start != nil {
			start = *upd.Start
		}
		if upd.End != nil {
			end = *upd.End
		}
		if _, err := pricing.RentalDays(start, end); err != nil {
			return err
		}
		if upd.AddOns != nil {
			if err := s.pricing.ValidateAddOns(*upd.AddOns); err != nil {
				return err
			}
		}

		res := conflict.Result{Outcome: conflict.Free}
		if !start.Equal(r.Start) || !end.Equal(r.End) {
			if res, err = g.Move(id, start, end); err != nil {
				return err
			}
			if res.Outcome == conflict.HardConflict {
				metrics.IncBookingOutcome(operationEdit, string(res.Outcome))
				result = &BookingResult{Conflict: res}
				return nil
			}
		}

		edited, _ := g.Get(id)
		applyFields(&edited, upd)
		var q *pricing.Quote
		if edited.IsClient() {
			if q, err = s.price(ctx, &edited); err != nil {
				return err
			}
			edited.TotalPrice = q.Total
		}
		if err := g.Touch(id, func(x *models.Reservation) {
			applyFields(x, upd)
			x.TotalPrice = edited.TotalPrice
		}); err != nil {
			return err
		}

		if err := s.repo.ApplyChanges(ctx, g.Changes()); err != nil {
			return err
		}
		metrics.IncBookingOutcome(operationEdit, string(res.Outcome))
		saved, _ := g.Get(id)
		result = &BookingResult{Reservation: &saved, Conflict: res, Quote: q}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Reservation != nil {
		if len(fields) > 0 {
			s.publishEdit(result.Reservation, staffID, role, decision, fields, result.Conflict.Superseded)
		}
		out := access.Redact(*result.Reservation, decision)
		result.Reservation = &out
	}
	return result, nil
}

// ConfirmBooking finalizes a pending reservation. Overlapping pending
// reservations lose their reference to it and are reported as superseded.
func (s *BookingService) ConfirmBooking(ctx context.Context, staffID int64, id string) (*BookingResult, error) {
	current, err := s.reservation(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *BookingResult
	var role models.Role
	err = s.withVehicleLock(ctx, current.VehicleID, func(ctx context.Context) error {
		schedule, err := s.repo.ListVehicleReservations(ctx, current.VehicleID)
		if err != nil {
			return err
		}
		g := conflict.NewGraph(s.detector, schedule)
		r, ok := g.Get(id)
		if !ok {
			return ErrReservationNotFound
		}
		if _, err := s.access.Authorize(ctx, staffID, &r, s.now(), access.ActionConfirm); err != nil {
			return err
		}
		if role, err = s.access.Role(ctx, staffID); err != nil {
			return err
		}
		if r.Confirmed {
			return ErrAlreadyConfirmed
		}

		res, err := g.Confirm(id)
		if err != nil {
			return err
		}
		metrics.IncBookingOutcome(operationConfirm, string(res.Outcome))
		if res.Outcome == conflict.HardConflict {
			result = &BookingResult{Conflict: res}
			return nil
		}
		if err := s.repo.ApplyChanges(ctx, g.Changes()); err != nil {
			return err
		}
		confirmed, _ := g.Get(id)
		result = &BookingResult{Reservation: &confirmed, Conflict: res}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Rejected() {
		s.logger.Info().
			Str("reservation_id", id).
			Str("order_number", result.Reservation.OrderNumber).
			Strs("superseded", result.Conflict.Superseded).
			Msg("Reservation confirmed")
		s.publish(events.ReservationConfirmed, s.payload(result.Reservation, staffID, role, nil, result.Conflict.Superseded))
	}
	return result, nil
}

// SetOverridePrice replaces the computed price. A nil price clears it.
func (s *BookingService) SetOverridePrice(ctx context.Context, staffID int64, id string, price *int64) (*models.Reservation, error) {
	if price != nil && *price < 0 {
		return nil, fmt.Errorf("%w: override price must not be negative", ErrInvalidBooking)
	}
	current, err := s.reservation(ctx, id)
	if err != nil {
		return nil, err
	}

	var saved models.Reservation
	var decision access.Decision
	var role models.Role
	err = s.withVehicleLock(ctx, current.VehicleID, func(ctx context.Context) error {
		schedule, err := s.repo.ListVehicleReservations(ctx, current.VehicleID)
		if err != nil {
			return err
		}
		g := conflict.NewGraph(s.detector, schedule)
		r, ok := g.Get(id)
		if !ok {
			return ErrReservationNotFound
		}
		if decision, err = s.access.Authorize(ctx, staffID, &r, s.now(), access.ActionEditPricing); err != nil {
			return err
		}
		if role, err = s.access.Role(ctx, staffID); err != nil {
			return err
		}
		if err := g.Touch(id, func(x *models.Reservation) {
			if price == nil {
				x.OverridePrice = nil
				return
			}
			p := *price
			x.OverridePrice = &p
		}); err != nil {
			return err
		}
		if err := s.repo.ApplyChanges(ctx, g.Changes()); err != nil {
			return err
		}
		saved, _ = g.Get(id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEdit(&saved, staffID, role, decision, []string{"override_price"}, nil)
	return &saved, nil
}

// ClearOverridePrice drops the override so the computed price applies again.
func (s *BookingService) ClearOverridePrice(ctx context.Context, staffID int64, id string) (*models.Reservation, error) {
	return s.SetOverridePrice(ctx, staffID, id, nil)
}

// DeleteBooking removes a reservation and detaches it from its competitors.
func (s *BookingService) DeleteBooking(ctx context.Context, staffID int64, id string) error {
	current, err := s.reservation(ctx, id)
	if err != nil {
		return err
	}

	var removed models.Reservation
	var role models.Role
	err = s.withVehicleLock(ctx, current.VehicleID, func(ctx context.Context) error {
		schedule, err := s.repo.ListVehicleReservations(ctx, current.VehicleID)
		if err != nil {
			return err
		}
		g := conflict.NewGraph(s.detector, schedule)
		r, ok := g.Get(id)
		if !ok {
			return ErrReservationNotFound
		}
		if _, err := s.access.Authorize(ctx, staffID, &r, s.now(), access.ActionDelete); err != nil {
			return err
		}
		if role, err = s.access.Role(ctx, staffID); err != nil {
			return err
		}
		if err := g.Remove(id); err != nil {
			return err
		}
		removed = r
		return s.repo.ApplyChanges(ctx, g.Changes())
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("reservation_id", id).
		Str("order_number", removed.OrderNumber).
		Int64("staff_id", staffID).
		Msg("Reservation deleted")
	s.publish(events.ReservationDeleted, s.payload(&removed, staffID, role, nil, nil))
	return nil
}

// VehicleCalendar lists reservations overlapping [from, to] with visibility
// applied for the staff member.
func (s *BookingService) VehicleCalendar(ctx context.Context, staffID, vehicleID int64, from, to bizdate.Day) ([]CalendarEntry, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: calendar ends before it starts", ErrInvalidBooking)
	}
	if to.Sub(from) > maxCalendarDays {
		return nil, fmt.Errorf("%w: calendar range exceeds %d days", ErrInvalidBooking, maxCalendarDays)
	}
	role, err := s.access.Role(ctx, staffID)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListReservationsInRange(ctx, vehicleID, from, to)
	if err != nil {
		return nil, err
	}

	now := s.now()
	viewer := access.Viewer{Role: role, Now: now}
	entries := make([]CalendarEntry, 0, len(list))
	for i := range list {
		bucket, err := access.ClassifyReservation(&list[i], now)
		if err != nil {
			return nil, err
		}
		visible, err := access.ApplyVisibility(list[i], viewer)
		if err != nil {
			return nil, err
		}
		entries = append(entries, CalendarEntry{
			Reservation:  visible,
			TimeBucket:   bucket,
			HasConflicts: list[i].HasConflicts(),
		})
	}
	return entries, nil
}

// place inserts r under the vehicle lock. A colliding order number is
// regenerated a few times before giving up.
func (s *BookingService) place(ctx context.Context, operation string, r models.Reservation) (*BookingResult, error) {
	var result *BookingResult
	err := s.withVehicleLock(ctx, r.VehicleID, func(ctx context.Context) error {
		schedule, err := s.repo.ListVehicleReservations(ctx, r.VehicleID)
		if err != nil {
			return err
		}
		g := conflict.NewGraph(s.detector, schedule)
		res, err := g.Place(r)
		if err != nil {
			return err
		}
		metrics.IncBookingOutcome(operation, string(res.Outcome))
		if res.Outcome == conflict.HardConflict {
			s.logger.Info().
				Int64("vehicle_id", r.VehicleID).
				Str("outcome", string(res.Outcome)).
				Int("blocking", len(res.Hard)).
				Msg("Booking rejected")
			result = &BookingResult{Conflict: res}
			return nil
		}

		for try := 1; ; try++ {
			err = s.repo.ApplyChanges(ctx, g.Changes())
			if err == nil {
				break
			}
			if !errors.Is(err, database.ErrDuplicateOrderNumber) || try == orderNumberTries {
				return err
			}
			_ = g.Touch(r.ID, func(x *models.Reservation) {
				x.OrderNumber = orderNumber(x.StartDay)
			})
		}

		saved, _ := g.Get(r.ID)
		result = &BookingResult{Reservation: &saved, Conflict: res}
		s.logger.Info().
			Str("reservation_id", saved.ID).
			Str("order_number", saved.OrderNumber).
			Int64("vehicle_id", saved.VehicleID).
			Str("outcome", string(res.Outcome)).
			Msg("Reservation created")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BookingService) withVehicleLock(ctx context.Context, vehicleID int64, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	release, err := s.locker.Lock(lockCtx, lock.VehicleKey(vehicleID))
	cancel()
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func (s *BookingService) newReservation(req BookingRequest, ownership models.Ownership, role models.Role) models.Reservation {
	now := s.now().UTC()
	r := models.Reservation{
		ID:            uuid.NewString(),
		VehicleID:     req.VehicleID,
		Start:         req.Start,
		End:           req.End,
		Ownership:     ownership,
		CreatedByRole: role,
		AddOns:        req.AddOns,
		PickupPlace:   req.PickupPlace,
		ReturnPlace:   req.ReturnPlace,
		Franchise:     req.Franchise,
		Client:        req.Client,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.Sync()
	r.OrderNumber = orderNumber(r.StartDay)
	return r
}

// orderNumber formats RC-YYMMDD-XXXXXX from the pickup business day.
func orderNumber(pickup bizdate.Day) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("RC-%s-%s", pickup.Midnight().Format("060102"), suffix)
}

func (s *BookingService) vehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	v, err := s.repo.GetVehicle(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrVehicleNotFound, id)
	}
	return v, err
}

func (s *BookingService) rentableVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	v, err := s.vehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrVehicleInactive, v.Name)
	}
	return v, nil
}

func (s *BookingService) reservation(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	return r, err
}

func (s *BookingService) price(ctx context.Context, r *models.Reservation) (*pricing.Quote, error) {
	v, err := s.vehicle(ctx, r.VehicleID)
	if err != nil {
		return nil, err
	}
	return s.pricing.Compute(ctx, v, r.Start, r.End, r.AddOns)
}

func (s *BookingService) payload(r *models.Reservation, actorID int64, role models.Role, fields, superseded []string) events.ReservationPayload {
	return events.ReservationPayload{
		ReservationID: r.ID,
		OrderNumber:   r.OrderNumber,
		VehicleID:     r.VehicleID,
		StartDay:      r.StartDay.String(),
		EndDay:        r.EndDay.String(),
		Confirmed:     r.Confirmed,
		ClientOrder:   r.IsClient(),
		ActorID:       actorID,
		ActorRole:     string(role),
		Fields:        fields,
		Superseded:    superseded,
	}
}

// publishEdit emits the update event, plus the superadmin signal when the
// decision asks for it.
func (s *BookingService) publishEdit(r *models.Reservation, actorID int64, role models.Role, d access.Decision, fields, superseded []string) {
	p := s.payload(r, actorID, role, fields, superseded)
	s.publish(events.ReservationUpdated, p)
	if d.NotifySuperadminOnEdit {
		s.logger.Info().
			Str("reservation_id", r.ID).
			Int64("staff_id", actorID).
			Strs("fields", fields).
			Msg("Edit requires superadmin notification")
		s.publish(events.SuperadminNotify, p)
	}
}

func (s *BookingService) publish(eventType string, payload events.ReservationPayload) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("Failed to publish event")
	}
}

// changedFields lists the fields upd actually changes on r.
func changedFields(r *models.Reservation, upd BookingUpdate) []string {
	var fields []string
	if upd.Start != nil && !upd.Start.Equal(r.Start) {
		fields = append(fields, "start")
	}
	if upd.End != nil && !upd.End.Equal(r.End) {
		fields = append(fields, "end")
	}
	if upd.PickupPlace != nil && *upd.PickupPlace != r.PickupPlace {
		fields = append(fields, "pickup_place")
	}
	if upd.ReturnPlace != nil && *upd.ReturnPlace != r.ReturnPlace {
		fields = append(fields, "return_place")
	}
	if upd.AddOns != nil {
		if upd.AddOns.InsuranceTier != r.AddOns.InsuranceTier {
			fields = append(fields, "insurance")
		}
		if upd.AddOns.ChildSeats != r.AddOns.ChildSeats || upd.AddOns.SecondDriver != r.AddOns.SecondDriver {
			fields = append(fields, "add_ons")
		}
	}
	if upd.Franchise != nil && *upd.Franchise != r.Franchise {
		fields = append(fields, "franchise")
	}
	if upd.Client != nil && *upd.Client != r.Client {
		fields = append(fields, "client")
	}
	return fields
}

// checkFields maps each changed field to the capability guarding it.
func checkFields(d access.Decision, fields []string) error {
	allowed := map[string]bool{
		"start":        d.CanEditPickupDate,
		"end":          d.CanEditReturnDate,
		"pickup_place": d.CanEditPickupPlace,
		"return_place": d.CanEditReturn,
		"insurance":    d.CanEditInsurance,
		"add_ons":      d.CanEditPricing,
		"franchise":    d.CanEditFranchise,
		"client":       d.CanEditClientPII,
	}
	for _, f := range fields {
		if !allowed[f] {
			return &FieldNotEditableError{Field: f}
		}
	}
	return nil
}

// checkReturnDay lets staff without pricing rights move the return clock
// time on a client order but not its business day, which would reprice it.
func checkReturnDay(d access.Decision, r *models.Reservation, upd BookingUpdate) error {
	if d.CanEditPricing || upd.End == nil || !r.IsClient() {
		return nil
	}
	if !bizdate.DayOf(*upd.End).Equal(r.EndDay) {
		return &FieldNotEditableError{Field: "end"}
	}
	return nil
}

func applyFields(r *models.Reservation, upd BookingUpdate) {
	if upd.PickupPlace != nil {
		r.PickupPlace = *upd.PickupPlace
	}
	if upd.ReturnPlace != nil {
		r.ReturnPlace = *upd.ReturnPlace
	}
	if upd.AddOns != nil {
		r.AddOns = *upd.AddOns
	}
	if upd.Franchise != nil {
		r.Franchise = *upd.Franchise
	}
	if upd.Client != nil {
		r.Client = *upd.Client
	}
}
