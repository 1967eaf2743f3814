package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentacar/internal/bizdate"
	"rentacar/internal/config"
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
	superadminID int64 = 1
	adminID      int64 = 2
)

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type fixture struct {
	svc     *BookingService
	db      *database.DB
	bus     *mockEventBus
	vehicle *models.Vehicle
}

func day(m time.Month, d int) time.Time {
	return bizdate.NewDay(2026, m, d).Midnight()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "rentacar.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.AddStaff(ctx, &models.Staff{UserID: superadminID, Name: "Eleni", Role: models.RoleSuperadmin}))
	require.NoError(t, db.AddStaff(ctx, &models.Staff{UserID: adminID, Name: "Nikos", Role: models.RoleAdmin, AddedBy: superadminID}))

	v := &models.Vehicle{
		Name:     "Fiat Panda",
		IsActive: true,
		Pricing: models.PriceTable{
			"high":           {models.BracketShort: 50, models.BracketMedium: 45, models.BracketLong: 40},
			pricing.NoSeason: {models.BracketShort: 30, models.BracketMedium: 25, models.BracketLong: 20},
		},
	}
	require.NoError(t, db.CreateVehicle(ctx, v))

	seasons, err := pricing.NewSeasonTable([]pricing.Season{{
		Name: "high",
		From: pricing.MonthDay{Month: time.June, Day: 1},
		To:   pricing.MonthDay{Month: time.September, Day: 30},
	}})
	require.NoError(t, err)
	engine := pricing.NewEngine(seasons, db, pricing.DefaultConfig(), &logger)

	bus := new(mockEventBus)
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)

	now := bizdate.NewDay(2026, time.May, 1).Midnight().Add(10 * time.Hour)
	svc := NewBookingService(db, lock.NewLocalLocker(), bus, access.NewService(db, logger), engine,
		Options{Now: func() time.Time { return now }}, &logger)

	return &fixture{svc: svc, db: db, bus: bus, vehicle: v}
}

func (f *fixture) clientBooking(t *testing.T, start, end time.Time) *BookingResult {
	t.Helper()
	res, err := f.svc.CreateBooking(context.Background(), BookingRequest{
		VehicleID: f.vehicle.ID,
		Start:     start,
		End:       end,
		Client:    models.ClientContact{Name: "Maria", Phone: "+30 210 000 0000"},
	})
	require.NoError(t, err)
	return res
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.svc.Quote(ctx, f.vehicle.ID, day(time.May, 6), day(time.May, 9), models.AddOns{})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Days)
	assert.Equal(t, int64(90), q.Total)

	q, err = f.svc.Quote(ctx, f.vehicle.ID, day(time.May, 30), day(time.June, 2), models.AddOns{InsuranceTier: "full"})
	require.NoError(t, err)
	assert.Equal(t, int64(30+30+50+3*10), q.Total)

	_, err = f.svc.Quote(ctx, f.vehicle.ID, day(time.May, 9), day(time.May, 9), models.AddOns{})
	assert.True(t, pricing.IsInvalidDuration(err))

	_, err = f.svc.Quote(ctx, f.vehicle.ID, day(time.May, 6), day(time.May, 9), models.AddOns{InsuranceTier: "gold"})
	assert.ErrorIs(t, err, pricing.ErrUnknownInsuranceTier)

	_, err = f.svc.Quote(ctx, 999, day(time.May, 6), day(time.May, 9), models.AddOns{})
	assert.ErrorIs(t, err, ErrVehicleNotFound)
}

func quotesTotal(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.Quotes().Write(&m))
	return m.GetCounter().GetValue()
}

func TestQuote_CountedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := quotesTotal(t)
	_, err := f.svc.Quote(ctx, f.vehicle.ID, day(time.May, 6), day(time.May, 9), models.AddOns{})
	require.NoError(t, err)
	assert.Equal(t, before+1, quotesTotal(t))

	f.clientBooking(t, day(time.May, 6), day(time.May, 9))
	assert.Equal(t, before+1, quotesTotal(t), "bookings are not quotes")
}

func TestCreateBooking_ConfirmedNeighbour(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hold, err := f.svc.CreateInternalBooking(ctx, superadminID, BookingRequest{
		VehicleID: f.vehicle.ID,
		Start:     day(time.May, 6),
		End:       day(time.May, 9),
		Confirmed: true,
	})
	require.NoError(t, err)
	require.NotNil(t, hold.Reservation)
	assert.Equal(t, models.OwnershipInternal, hold.Reservation.Ownership)
	assert.Equal(t, models.RoleSuperadmin, hold.Reservation.CreatedByRole)
	assert.Zero(t, hold.Reservation.TotalPrice)

	t.Run("touching is free", func(t *testing.T) {
		res := f.clientBooking(t, day(time.May, 9), day(time.May, 12))
		assert.Equal(t, conflict.Free, res.Conflict.Outcome)
		require.NotNil(t, res.Reservation)
		assert.False(t, res.Reservation.Confirmed)
		assert.Equal(t, int64(90), res.Reservation.TotalPrice)
		assert.Regexp(t, regexp.MustCompile(`^RC-260509-[0-9A-F]{6}$`), res.Reservation.OrderNumber)
	})

	t.Run("overlap with confirmed is rejected", func(t *testing.T) {
		res := f.clientBooking(t, day(time.May, 8), day(time.May, 10))
		assert.True(t, res.Rejected())
		assert.Nil(t, res.Reservation)
		require.Len(t, res.Conflict.Hard, 1)
		assert.Equal(t, hold.Reservation.ID, res.Conflict.Hard[0].ReservationID)
		assert.True(t, res.Conflict.Hard[0].OverlapStart.Equal(day(time.May, 8)))
		assert.True(t, res.Conflict.Hard[0].OverlapEnd.Equal(day(time.May, 9)))

		stored, err := f.db.ListVehicleReservations(ctx, f.vehicle.ID)
		require.NoError(t, err)
		assert.Len(t, stored, 2)
	})

	f.bus.AssertCalled(t, "PublishJSON", events.ReservationCreated, mock.Anything)
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, BookingRequest{VehicleID: f.vehicle.ID, Start: day(time.May, 6), End: day(time.May, 9)})
	assert.ErrorIs(t, err, ErrInvalidBooking)

	require.NoError(t, f.db.CreateVehicle(ctx, &models.Vehicle{Name: "Retired", IsActive: false, Pricing: f.vehicle.Pricing}))
	list, err := f.db.ListVehicles(ctx)
	require.NoError(t, err)
	var retired int64
	for _, v := range list {
		if !v.IsActive {
			retired = v.ID
		}
	}
	_, err = f.svc.CreateBooking(ctx, BookingRequest{
		VehicleID: retired,
		Start:     day(time.May, 6),
		End:       day(time.May, 9),
		Client:    models.ClientContact{Name: "Maria"},
	})
	assert.ErrorIs(t, err, ErrVehicleInactive)

	_, err = f.svc.CreateInternalBooking(ctx, 42, BookingRequest{VehicleID: f.vehicle.ID, Start: day(time.May, 6), End: day(time.May, 9)})
	assert.True(t, access.IsAccessDenied(err))
}

func TestCreateInternalBooking_ConcurrentOverlapsAdmitOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	var accepted atomic.Int32
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.CreateInternalBooking(ctx, superadminID, BookingRequest{
				VehicleID: f.vehicle.ID,
				Start:     day(time.June, 1).Add(time.Duration(i) * time.Hour),
				End:       day(time.June, 5),
				Confirmed: true,
			})
			if err != nil {
				errs <- err
				return
			}
			if !res.Rejected() {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), accepted.Load())

	stored, err := f.db.ListVehicleReservations(ctx, f.vehicle.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSoftConflictAndConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.clientBooking(t, day(time.June, 1), day(time.June, 3))
	second := f.clientBooking(t, day(time.June, 2), day(time.June, 5))
	assert.Equal(t, conflict.Free, first.Conflict.Outcome)
	assert.Equal(t, conflict.SoftConflict, second.Conflict.Outcome)

	a, err := f.db.GetReservation(ctx, first.Reservation.ID)
	require.NoError(t, err)
	b, err := f.db.GetReservation(ctx, second.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, a.Conflicts)
	assert.Equal(t, []string{a.ID}, b.Conflicts)

	t.Run("admin cannot confirm a pending client booking", func(t *testing.T) {
		_, err := f.svc.ConfirmBooking(ctx, adminID, a.ID)
		assert.True(t, access.IsAccessDenied(err))
	})

	t.Run("confirm supersedes the competitor", func(t *testing.T) {
		res, err := f.svc.ConfirmBooking(ctx, superadminID, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{b.ID}, res.Conflict.Superseded)
		assert.True(t, res.Reservation.Confirmed)
		assert.Empty(t, res.Reservation.Conflicts)

		b, err := f.db.GetReservation(ctx, second.Reservation.ID)
		require.NoError(t, err)
		assert.Empty(t, b.Conflicts)
		f.bus.AssertCalled(t, "PublishJSON", events.ReservationConfirmed, mock.Anything)
	})

	t.Run("competitor can no longer be confirmed", func(t *testing.T) {
		res, err := f.svc.ConfirmBooking(ctx, superadminID, b.ID)
		require.NoError(t, err)
		assert.True(t, res.Rejected())
		assert.Equal(t, a.ID, res.Conflict.Hard[0].ReservationID)
	})

	t.Run("confirming twice fails", func(t *testing.T) {
		_, err := f.svc.ConfirmBooking(ctx, superadminID, a.ID)
		assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	})
}

func TestUpdateBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.clientBooking(t, day(time.June, 10), day(time.June, 13))
	id := created.Reservation.ID
	assert.Equal(t, int64(150), created.Reservation.TotalPrice)

	t.Run("admin is view-only while unconfirmed", func(t *testing.T) {
		end := day(time.June, 14)
		_, err := f.svc.UpdateBooking(ctx, adminID, id, BookingUpdate{End: &end})
		assert.True(t, access.IsAccessDenied(err))
	})

	_, err := f.svc.ConfirmBooking(ctx, superadminID, id)
	require.NoError(t, err)

	t.Run("admin moves the return time and superadmin is notified", func(t *testing.T) {
		end := day(time.June, 13).Add(18 * time.Hour)
		place := "Heraklion airport"
		res, err := f.svc.UpdateBooking(ctx, adminID, id, BookingUpdate{End: &end, ReturnPlace: &place})
		require.NoError(t, err)
		require.NotNil(t, res.Reservation)
		assert.True(t, res.Reservation.End.Equal(end))
		assert.Equal(t, 3, res.Reservation.Days)
		assert.Equal(t, int64(150), res.Reservation.TotalPrice)
		assert.Equal(t, place, res.Reservation.ReturnPlace)
		assert.Equal(t, "Maria", res.Reservation.Client.Name)

		f.bus.AssertCalled(t, "PublishJSON", events.ReservationUpdated, mock.Anything)
		f.bus.AssertCalled(t, "PublishJSON", events.SuperadminNotify, mock.MatchedBy(func(p events.ReservationPayload) bool {
			return p.ReservationID == id && p.ActorID == adminID && len(p.Fields) == 2
		}))
	})

	t.Run("admin cannot move the return to another day", func(t *testing.T) {
		end := day(time.June, 14)
		_, err := f.svc.UpdateBooking(ctx, adminID, id, BookingUpdate{End: &end})
		require.Error(t, err)
		var fe *FieldNotEditableError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "end", fe.Field)

		stored, err := f.db.GetReservation(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(150), stored.TotalPrice)
		assert.Equal(t, bizdate.NewDay(2026, time.June, 13), stored.EndDay)
	})

	t.Run("admin cannot move the pickup", func(t *testing.T) {
		start := day(time.June, 9)
		_, err := f.svc.UpdateBooking(ctx, adminID, id, BookingUpdate{Start: &start})
		require.Error(t, err)
		var fe *FieldNotEditableError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "start", fe.Field)
	})

	t.Run("unchanged values need no capability", func(t *testing.T) {
		start := day(time.June, 10)
		res, err := f.svc.UpdateBooking(ctx, adminID, id, BookingUpdate{Start: &start})
		require.NoError(t, err)
		assert.Equal(t, conflict.Free, res.Conflict.Outcome)
	})

	t.Run("superadmin edit keeps the override", func(t *testing.T) {
		price := int64(120)
		_, err := f.svc.SetOverridePrice(ctx, superadminID, id, &price)
		require.NoError(t, err)

		seats := models.AddOns{ChildSeats: 1}
		res, err := f.svc.UpdateBooking(ctx, superadminID, id, BookingUpdate{AddOns: &seats})
		require.NoError(t, err)
		assert.Equal(t, int64(150+3*3), res.Reservation.TotalPrice)
		require.NotNil(t, res.Reservation.OverridePrice)
		assert.Equal(t, int64(120), res.Reservation.EffectivePrice())
	})

	t.Run("move onto a confirmed booking is rejected", func(t *testing.T) {
		_, err := f.svc.CreateInternalBooking(ctx, superadminID, BookingRequest{
			VehicleID: f.vehicle.ID,
			Start:     day(time.June, 20),
			End:       day(time.June, 22),
			Confirmed: true,
		})
		require.NoError(t, err)

		end := day(time.June, 21)
		res, err := f.svc.UpdateBooking(ctx, superadminID, id, BookingUpdate{End: &end})
		require.NoError(t, err)
		assert.True(t, res.Rejected())

		stored, err := f.db.GetReservation(ctx, id)
		require.NoError(t, err)
		assert.True(t, stored.End.Equal(day(time.June, 13).Add(18*time.Hour)))
	})

	t.Run("end before start", func(t *testing.T) {
		end := day(time.June, 5)
		_, err := f.svc.UpdateBooking(ctx, superadminID, id, BookingUpdate{End: &end})
		assert.True(t, pricing.IsInvalidDuration(err))
	})
}

func TestOverridePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.clientBooking(t, day(time.June, 10), day(time.June, 13)).Reservation.ID

	price := int64(99)
	_, err := f.svc.SetOverridePrice(ctx, adminID, id, &price)
	assert.True(t, access.IsAccessDenied(err))

	negative := int64(-1)
	_, err = f.svc.SetOverridePrice(ctx, superadminID, id, &negative)
	assert.ErrorIs(t, err, ErrInvalidBooking)

	r, err := f.svc.SetOverridePrice(ctx, superadminID, id, &price)
	require.NoError(t, err)
	assert.Equal(t, int64(99), r.EffectivePrice())
	assert.Equal(t, int64(150), r.TotalPrice)

	r, err = f.svc.ClearOverridePrice(ctx, superadminID, id)
	require.NoError(t, err)
	assert.Nil(t, r.OverridePrice)
	assert.Equal(t, int64(150), r.EffectivePrice())
}

func TestDeleteBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.clientBooking(t, day(time.June, 1), day(time.June, 3)).Reservation
	b := f.clientBooking(t, day(time.June, 2), day(time.June, 5)).Reservation

	err := f.svc.DeleteBooking(ctx, adminID, a.ID)
	assert.True(t, access.IsAccessDenied(err))

	require.NoError(t, f.svc.DeleteBooking(ctx, superadminID, a.ID))
	_, err = f.db.GetReservation(ctx, a.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	stored, err := f.db.GetReservation(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Conflicts)

	err = f.svc.DeleteBooking(ctx, superadminID, a.ID)
	assert.ErrorIs(t, err, ErrReservationNotFound)
	f.bus.AssertCalled(t, "PublishJSON", events.ReservationDeleted, mock.Anything)
}

func TestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.clientBooking(t, day(time.June, 1), day(time.June, 3)).Reservation
	internal, err := f.svc.CreateInternalBooking(ctx, adminID, BookingRequest{
		VehicleID:   f.vehicle.ID,
		Start:       day(time.June, 10),
		End:         day(time.June, 11),
		PickupPlace: "depot",
	})
	require.NoError(t, err)

	t.Run("admin sees a pending client booking without PII", func(t *testing.T) {
		r, d, err := f.svc.GetBooking(ctx, adminID, pending.ID)
		require.NoError(t, err)
		assert.True(t, d.IsViewOnly)
		assert.True(t, r.Client.IsEmpty())
		require.NotNil(t, r.Redacted)
		assert.Equal(t, access.RedactionReason, r.Redacted.Reason)
	})

	t.Run("superadmin sees everything", func(t *testing.T) {
		r, _, err := f.svc.GetBooking(ctx, superadminID, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, "Maria", r.Client.Name)
		assert.Nil(t, r.Redacted)
	})

	t.Run("access decision", func(t *testing.T) {
		d, err := f.svc.Access(ctx, adminID, internal.Reservation.ID)
		require.NoError(t, err)
		assert.True(t, d.CanEdit)
		assert.True(t, d.CanDelete)
		assert.False(t, d.NotifySuperadminOnEdit)

		_, err = f.svc.Access(ctx, adminID, "missing")
		assert.ErrorIs(t, err, ErrReservationNotFound)
	})

	t.Run("calendar", func(t *testing.T) {
		entries, err := f.svc.VehicleCalendar(ctx, adminID, f.vehicle.ID, bizdate.NewDay(2026, time.June, 1), bizdate.NewDay(2026, time.June, 30))
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, pending.ID, entries[0].Reservation.ID)
		assert.Equal(t, access.Future, entries[0].TimeBucket)
		assert.True(t, entries[0].Reservation.Client.IsEmpty())
		assert.Equal(t, "depot", entries[1].Reservation.PickupPlace)

		_, err = f.svc.VehicleCalendar(ctx, adminID, f.vehicle.ID, bizdate.NewDay(2026, time.June, 30), bizdate.NewDay(2026, time.June, 1))
		assert.ErrorIs(t, err, ErrInvalidBooking)

		_, err = f.svc.VehicleCalendar(ctx, adminID, f.vehicle.ID, bizdate.NewDay(2026, time.June, 1), bizdate.NewDay(2026, time.August, 30))
		require.NoError(t, err, "90 days is allowed")
		_, err = f.svc.VehicleCalendar(ctx, adminID, f.vehicle.ID, bizdate.NewDay(2026, time.June, 1), bizdate.NewDay(2026, time.August, 31))
		assert.ErrorIs(t, err, ErrInvalidBooking)
	})
}

func TestOrderNumber(t *testing.T) {
	n := orderNumber(bizdate.NewDay(2026, time.January, 15))
	assert.Regexp(t, `^RC-260115-[0-9A-F]{6}$`, n)
	assert.NotEqual(t, n, orderNumber(bizdate.NewDay(2026, time.January, 15)))
}

func TestLogTracer(t *testing.T) {
	tracer, err := NewLogTracer(config.DebugConfig{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, tracer)

	_, err = NewLogTracer(config.DebugConfig{TraceDays: []string{"15/01/2026"}}, zerolog.Nop())
	assert.Error(t, err)

	var buf bytes.Buffer
	tracer, err = NewLogTracer(config.DebugConfig{
		TraceVehicleIDs: []int64{7},
		TraceDays:       []string{"2026-08-15"},
	}, zerolog.New(&buf).Level(zerolog.DebugLevel))
	require.NoError(t, err)

	existing := []models.Reservation{{ID: "r", VehicleID: 7, Start: day(time.May, 1), End: day(time.May, 3), Confirmed: true}}
	conflict.Detector{Tracer: tracer}.Check(existing, day(time.May, 2), day(time.May, 4))
	assert.Contains(t, buf.String(), `"outcome":"HARD_CONFLICT"`)

	buf.Reset()
	other := []models.Reservation{{ID: "x", VehicleID: 8, Start: day(time.May, 1), End: day(time.May, 3)}}
	conflict.Detector{Tracer: tracer}.Check(other, day(time.May, 2), day(time.May, 4))
	assert.Empty(t, buf.String())

	conflict.Detector{Tracer: tracer}.Check(other, day(time.August, 14), day(time.August, 16))
	assert.Contains(t, buf.String(), "conflict decision")
}
