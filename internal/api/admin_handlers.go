package api

import (
	"net/http"
	"strconv"

	"rentacar/internal/models"
)

type vehicleRequest struct {
	Name     string            `json:"name" validate:"required,max=100"`
	Plate    string            `json:"plate" validate:"max=20"`
	IsActive *bool             `json:"is_active"`
	Pricing  models.PriceTable `json:"pricing" validate:"required"`
}

type pricingRequest struct {
	Pricing models.PriceTable `json:"pricing" validate:"required"`
}

type staffRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Name   string `json:"name" validate:"required,max=200"`
	Role   string `json:"role" validate:"required,oneof=ADMIN SUPERADMIN"`
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	list, err := s.fleet.ListVehicles(r.Context(), staffIDFrom(r.Context()))
	if err != nil {
		s.fail(w, err)
		return
	}
	if list == nil {
		list = []models.Vehicle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": list})
}

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if !s.decode(w, r, &req) {
		return
	}
	v := &models.Vehicle{Name: req.Name, Plate: req.Plate, IsActive: true, Pricing: req.Pricing}
	if req.IsActive != nil {
		v.IsActive = *req.IsActive
	}
	if err := s.fleet.CreateVehicle(r.Context(), staffIDFrom(r.Context()), v); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleUpdateVehiclePricing(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}
	var req pricingRequest
	if !s.decode(w, r, &req) {
		return
	}
	v, err := s.fleet.UpdateVehiclePricing(r.Context(), staffIDFrom(r.Context()), vehicleID, req.Pricing)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleListStaff(w http.ResponseWriter, r *http.Request) {
	list, err := s.staffs.ListStaff(r.Context(), staffIDFrom(r.Context()))
	if err != nil {
		s.fail(w, err)
		return
	}
	if list == nil {
		list = []models.Staff{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": list})
}

func (s *Server) handleAddStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.staffs.AddStaff(r.Context(), req.UserID, req.Name, models.Role(req.Role), staffIDFrom(r.Context()))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveStaff(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := s.staffs.RemoveStaff(r.Context(), userID, staffIDFrom(r.Context())); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
