package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"rentacar/internal/bizdate"
	"rentacar/internal/database"
	"rentacar/internal/lock"
	"rentacar/internal/models"
	"rentacar/internal/pricing"
	"rentacar/internal/service"
	"rentacar/shared/access"
)

const maxBodyBytes = 1 << 20

type addOnsRequest struct {
	InsuranceTier string `json:"insurance_tier"`
	ChildSeats    int    `json:"child_seats" validate:"gte=0"`
	SecondDriver  bool   `json:"second_driver"`
}

func (a addOnsRequest) model() models.AddOns {
	return models.AddOns{InsuranceTier: a.InsuranceTier, ChildSeats: a.ChildSeats, SecondDriver: a.SecondDriver}
}

type clientRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Phone     string `json:"phone" validate:"required_without=Email,max=50"`
	Email     string `json:"email" validate:"omitempty,email"`
	Messaging string `json:"messaging" validate:"max=100"`
}

func (c clientRequest) model() models.ClientContact {
	return models.ClientContact{Name: c.Name, Phone: c.Phone, Email: c.Email, Messaging: c.Messaging}
}

type quoteRequest struct {
	VehicleID int64         `json:"vehicle_id" validate:"required,gt=0"`
	Start     string        `json:"start" validate:"required"`
	End       string        `json:"end" validate:"required"`
	AddOns    addOnsRequest `json:"add_ons"`
}

type bookingRequest struct {
	VehicleID   int64          `json:"vehicle_id" validate:"required,gt=0"`
	Start       string         `json:"start" validate:"required"`
	End         string         `json:"end" validate:"required"`
	AddOns      addOnsRequest  `json:"add_ons"`
	PickupPlace string         `json:"pickup_place" validate:"max=200"`
	ReturnPlace string         `json:"return_place" validate:"max=200"`
	Franchise   int64          `json:"franchise" validate:"gte=0"`
	Client      *clientRequest `json:"client"`
	Confirmed   bool           `json:"confirmed"`
}

type updateRequest struct {
	Start       *string        `json:"start"`
	End         *string        `json:"end"`
	PickupPlace *string        `json:"pickup_place" validate:"omitempty,max=200"`
	ReturnPlace *string        `json:"return_place" validate:"omitempty,max=200"`
	AddOns      *addOnsRequest `json:"add_ons"`
	Franchise   *int64         `json:"franchise" validate:"omitempty,gte=0"`
	Client      *clientRequest `json:"client"`
}

type overridePriceRequest struct {
	Price *int64 `json:"price" validate:"required,gte=0"`
}

type bookingResponse struct {
	Reservation *models.Reservation `json:"reservation"`
	Access      access.Decision     `json:"access"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	start, end, ok := parseInterval(w, req.Start, req.End)
	if !ok {
		return
	}
	q, err := s.bookings.Quote(r.Context(), req.VehicleID, start, end, req.AddOns.model())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Client == nil {
		writeError(w, http.StatusBadRequest, "client is required")
		return
	}
	br, ok := toBookingRequest(w, req)
	if !ok {
		return
	}
	br.Confirmed = false
	res, err := s.bookings.CreateBooking(r.Context(), br)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeResult(w, http.StatusCreated, res)
}

func (s *Server) handleCreateInternalBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !s.decode(w, r, &req) {
		return
	}
	br, ok := toBookingRequest(w, req)
	if !ok {
		return
	}
	res, err := s.bookings.CreateInternalBooking(r.Context(), staffIDFrom(r.Context()), br)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeResult(w, http.StatusCreated, res)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	res, d, err := s.bookings.GetBooking(r.Context(), staffIDFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingResponse{Reservation: res, Access: d})
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	d, err := s.bookings.Access(r.Context(), staffIDFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}
	upd := service.BookingUpdate{
		PickupPlace: req.PickupPlace,
		ReturnPlace: req.ReturnPlace,
		Franchise:   req.Franchise,
	}
	for _, f := range []struct {
		raw *string
		dst **time.Time
	}{{req.Start, &upd.Start}, {req.End, &upd.End}} {
		if f.raw == nil {
			continue
		}
		t, err := bizdate.ParseInstantOrDay(*f.raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		*f.dst = &t
	}
	if req.AddOns != nil {
		a := req.AddOns.model()
		upd.AddOns = &a
	}
	if req.Client != nil {
		c := req.Client.model()
		upd.Client = &c
	}

	res, err := s.bookings.UpdateBooking(r.Context(), staffIDFrom(r.Context()), r.PathValue("id"), upd)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	res, err := s.bookings.ConfirmBooking(r.Context(), staffIDFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (s *Server) handleSetOverridePrice(w http.ResponseWriter, r *http.Request) {
	var req overridePriceRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.bookings.SetOverridePrice(r.Context(), staffIDFrom(r.Context()), r.PathValue("id"), req.Price)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClearOverridePrice(w http.ResponseWriter, r *http.Request) {
	res, err := s.bookings.ClearOverridePrice(r.Context(), staffIDFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := s.bookings.DeleteBooking(r.Context(), staffIDFrom(r.Context()), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVehicleCalendar(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}
	from, err := bizdate.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := bizdate.ParseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	entries, err := s.bookings.VehicleCalendar(r.Context(), staffIDFrom(r.Context()), vehicleID, from, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": entries})
}

func toBookingRequest(w http.ResponseWriter, req bookingRequest) (service.BookingRequest, bool) {
	start, end, ok := parseInterval(w, req.Start, req.End)
	if !ok {
		return service.BookingRequest{}, false
	}
	br := service.BookingRequest{
		VehicleID:   req.VehicleID,
		Start:       start,
		End:         end,
		AddOns:      req.AddOns.model(),
		PickupPlace: req.PickupPlace,
		ReturnPlace: req.ReturnPlace,
		Franchise:   req.Franchise,
		Confirmed:   req.Confirmed,
	}
	if req.Client != nil {
		br.Client = req.Client.model()
	}
	return br, true
}

func parseInterval(w http.ResponseWriter, rawStart, rawEnd string) (time.Time, time.Time, bool) {
	start, err := bizdate.ParseInstantOrDay(rawStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start: "+err.Error())
		return time.Time{}, time.Time{}, false
	}
	end, err := bizdate.ParseInstantOrDay(rawEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end: "+err.Error())
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag()))
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// fail maps service errors to HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case pricing.IsInvalidDuration(err),
		errors.Is(err, service.ErrInvalidBooking),
		errors.Is(err, pricing.ErrInvalidAddOns),
		errors.Is(err, pricing.ErrUnknownInsuranceTier),
		errors.Is(err, pricing.ErrInvalidPriceTable),
		errors.Is(err, access.ErrUnknownRole):
		status = http.StatusBadRequest
	case access.IsAccessDenied(err), service.IsFieldNotEditable(err):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrVehicleNotFound), errors.Is(err, service.ErrReservationNotFound),
		errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyConfirmed), errors.Is(err, service.ErrVehicleInactive),
		errors.Is(err, database.ErrDuplicateVehicle):
		status = http.StatusConflict
	case pricing.IsMissingPricingData(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, lock.ErrLockTimeout):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// writeResult answers 409 with the blocking ranges when a write was rejected.
func writeResult(w http.ResponseWriter, status int, res *service.BookingResult) {
	if res.Rejected() {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
