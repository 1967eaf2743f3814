package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"rentacar/internal/bizdate"
	"rentacar/internal/models"
	"rentacar/internal/pricing"
	"rentacar/internal/service"
	"rentacar/shared/access"
)

// Bookings is the booking service as seen by the HTTP layer.
type Bookings interface {
	Quote(ctx context.Context, vehicleID int64, start, end time.Time, addOns models.AddOns) (*pricing.Quote, error)
	CreateBooking(ctx context.Context, req service.BookingRequest) (*service.BookingResult, error)
	CreateInternalBooking(ctx context.Context, staffID int64, req service.BookingRequest) (*service.BookingResult, error)
	GetBooking(ctx context.Context, staffID int64, id string) (*models.Reservation, access.Decision, error)
	Access(ctx context.Context, staffID int64, id string) (access.Decision, error)
	UpdateBooking(ctx context.Context, staffID int64, id string, upd service.BookingUpdate) (*service.BookingResult, error)
	ConfirmBooking(ctx context.Context, staffID int64, id string) (*service.BookingResult, error)
	SetOverridePrice(ctx context.Context, staffID int64, id string, price *int64) (*models.Reservation, error)
	ClearOverridePrice(ctx context.Context, staffID int64, id string) (*models.Reservation, error)
	DeleteBooking(ctx context.Context, staffID int64, id string) error
	VehicleCalendar(ctx context.Context, staffID, vehicleID int64, from, to bizdate.Day) ([]service.CalendarEntry, error)
}

// Fleet manages vehicles and their price tables.
type Fleet interface {
	ListVehicles(ctx context.Context, staffID int64) ([]models.Vehicle, error)
	CreateVehicle(ctx context.Context, staffID int64, v *models.Vehicle) error
	UpdateVehiclePricing(ctx context.Context, staffID, vehicleID int64, p models.PriceTable) (*models.Vehicle, error)
}

// Staff manages staff accounts. Every call is superadmin only.
type Staff interface {
	ListStaff(ctx context.Context, callerID int64) ([]models.Staff, error)
	AddStaff(ctx context.Context, userID int64, name string, role models.Role, addedBy int64) error
	RemoveStaff(ctx context.Context, userID, removedBy int64) error
}

// Config holds the HTTP surface settings.
type Config struct {
	APIKey    string
	RateRPS   float64
	RateBurst int
}

// Server exposes the booking service over HTTP.
type Server struct {
	bookings Bookings
	fleet    Fleet
	staffs   Staff
	apiKey   string
	limiter  *rate.Limiter
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewServer(bookings Bookings, fleet Fleet, staffs Staff, cfg Config, logger zerolog.Logger) *Server {
	var limiter *rate.Limiter
	if cfg.RateRPS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), burst)
	}
	return &Server{
		bookings: bookings,
		fleet:    fleet,
		staffs:   staffs,
		apiKey:   cfg.APIKey,
		limiter:  limiter,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Handler returns the routed handler with rate limiting and API key checks.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/quotes", s.public("quotes", s.handleQuote))
	mux.Handle("POST /api/bookings", s.public("create_booking", s.handleCreateBooking))

	mux.Handle("POST /api/staff/bookings", s.staff("create_internal_booking", s.handleCreateInternalBooking))
	mux.Handle("GET /api/bookings/{id}", s.staff("get_booking", s.handleGetBooking))
	mux.Handle("PATCH /api/bookings/{id}", s.staff("update_booking", s.handleUpdateBooking))
	mux.Handle("DELETE /api/bookings/{id}", s.staff("delete_booking", s.handleDeleteBooking))
	mux.Handle("GET /api/bookings/{id}/access", s.staff("access", s.handleAccess))
	mux.Handle("POST /api/bookings/{id}/confirm", s.staff("confirm_booking", s.handleConfirm))
	mux.Handle("PUT /api/bookings/{id}/override-price", s.staff("set_override_price", s.handleSetOverridePrice))
	mux.Handle("DELETE /api/bookings/{id}/override-price", s.staff("clear_override_price", s.handleClearOverridePrice))
	mux.Handle("GET /api/vehicles/{id}/reservations", s.staff("vehicle_calendar", s.handleVehicleCalendar))

	mux.Handle("GET /api/vehicles", s.staff("list_vehicles", s.handleListVehicles))
	mux.Handle("POST /api/vehicles", s.staff("create_vehicle", s.handleCreateVehicle))
	mux.Handle("PUT /api/vehicles/{id}/pricing", s.staff("update_vehicle_pricing", s.handleUpdateVehiclePricing))

	mux.Handle("GET /api/staff", s.staff("list_staff", s.handleListStaff))
	mux.Handle("POST /api/staff", s.staff("add_staff", s.handleAddStaff))
	mux.Handle("DELETE /api/staff/{user_id}", s.staff("remove_staff", s.handleRemoveStaff))

	return s.rateLimit(s.requireAPIKey(mux))
}
