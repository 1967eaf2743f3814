package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"rentacar/internal/database"
	"rentacar/internal/metrics"
	"rentacar/internal/models"
	"rentacar/internal/pricing"
)

// FleetRepository stores vehicles and their price tables.
type FleetRepository interface {
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	UpdateVehiclePricing(ctx context.Context, id int64, p models.PriceTable) error
}

// StaffGate checks who is calling.
type StaffGate interface {
	Middleware(ctx context.Context, userID int64) error
	SuperadminMiddleware(ctx context.Context, userID int64) error
}

// FleetService manages vehicles. Every price table is validated against the
// current season table before it is stored.
type FleetService struct {
	repo    FleetRepository
	gate    StaffGate
	pricing *pricing.Engine
	logger  *zerolog.Logger
}

func NewFleetService(repo FleetRepository, gate StaffGate, engine *pricing.Engine, logger *zerolog.Logger) *FleetService {
	l := logger.With().Str("component", "fleet").Logger()
	return &FleetService{repo: repo, gate: gate, pricing: engine, logger: &l}
}

// ListVehicles returns the fleet to any staff member.
func (s *FleetService) ListVehicles(ctx context.Context, staffID int64) ([]models.Vehicle, error) {
	if err := s.gate.Middleware(ctx, staffID); err != nil {
		return nil, err
	}
	return s.repo.ListVehicles(ctx)
}

// CreateVehicle adds a vehicle. Superadmin only.
func (s *FleetService) CreateVehicle(ctx context.Context, staffID int64, v *models.Vehicle) error {
	if err := s.gate.SuperadminMiddleware(ctx, staffID); err != nil {
		return err
	}
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: vehicle name is required", ErrInvalidBooking)
	}
	if err := s.pricing.ValidatePriceTable(v.Pricing); err != nil {
		return err
	}
	if err := s.repo.CreateVehicle(ctx, v); err != nil {
		return err
	}
	s.logger.Info().Int64("vehicle_id", v.ID).Str("name", v.Name).Int64("staff_id", staffID).Msg("Vehicle created")
	s.reportGaps(v)
	return nil
}

// UpdateVehiclePricing replaces a vehicle's price table. Superadmin only.
func (s *FleetService) UpdateVehiclePricing(ctx context.Context, staffID, vehicleID int64, p models.PriceTable) (*models.Vehicle, error) {
	if err := s.gate.SuperadminMiddleware(ctx, staffID); err != nil {
		return nil, err
	}
	if err := s.pricing.ValidatePriceTable(p); err != nil {
		return nil, err
	}
	err := s.repo.UpdateVehiclePricing(ctx, vehicleID, p)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrVehicleNotFound, vehicleID)
	}
	if err != nil {
		return nil, err
	}
	v, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("vehicle_id", vehicleID).Int64("staff_id", staffID).Msg("Vehicle pricing updated")
	s.reportGaps(v)
	return v, nil
}

// CheckCoverage reports, per vehicle, the (season, bracket) pairs that would
// price at zero under the current season table. It runs at startup and after
// every season reload.
func (s *FleetService) CheckCoverage(ctx context.Context) (map[int64][]pricing.TierGap, error) {
	vehicles, err := s.repo.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]pricing.TierGap)
	for i := range vehicles {
		v := &vehicles[i]
		if err := s.pricing.ValidatePriceTable(v.Pricing); err != nil {
			s.logger.Warn().Err(err).Int64("vehicle_id", v.ID).Msg("Stored price table no longer matches seasons")
		}
		if gaps := s.reportGaps(v); len(gaps) > 0 {
			out[v.ID] = gaps
		}
	}
	return out, nil
}

func (s *FleetService) reportGaps(v *models.Vehicle) []pricing.TierGap {
	gaps := s.pricing.CoverageGaps(v.Pricing)
	metrics.SetPriceGaps(v.ID, len(gaps))
	if len(gaps) == 0 {
		return nil
	}
	names := make([]string, len(gaps))
	for i, g := range gaps {
		names[i] = g.String()
	}
	s.logger.Warn().
		Int64("vehicle_id", v.ID).
		Str("vehicle", v.Name).
		Strs("gaps", names).
		Msg("Vehicle has no rate for some season tiers")
	return gaps
}
