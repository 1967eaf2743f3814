package service

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rentacar/internal/bizdate"
	"rentacar/internal/config"
	"rentacar/internal/conflict"
	"rentacar/internal/models"
)

// LogTracer writes conflict detector decisions for selected vehicles or
// business days at debug level.
type LogTracer struct {
	logger   zerolog.Logger
	vehicles map[int64]bool
	days     []bizdate.Day
}

// NewLogTracer builds a tracer from the debug config. It returns nil when
// nothing is selected so the detector skips tracing entirely.
func NewLogTracer(cfg config.DebugConfig, logger zerolog.Logger) (conflict.Tracer, error) {
	if len(cfg.TraceVehicleIDs) == 0 && len(cfg.TraceDays) == 0 {
		return nil, nil
	}
	t := &LogTracer{
		logger:   logger.With().Str("component", "conflict_trace").Logger(),
		vehicles: make(map[int64]bool, len(cfg.TraceVehicleIDs)),
	}
	for _, id := range cfg.TraceVehicleIDs {
		t.vehicles[id] = true
	}
	for _, raw := range cfg.TraceDays {
		d, err := bizdate.ParseDay(raw)
		if err != nil {
			return nil, fmt.Errorf("debug.trace_days: %w", err)
		}
		t.days = append(t.days, d)
	}
	return t, nil
}

func (t *LogTracer) TraceOverlap(start, end time.Time, existing *models.Reservation, overlaps bool) {
	if !t.selected(existing.VehicleID, start, end) {
		return
	}
	t.logger.Debug().
		Int64("vehicle_id", existing.VehicleID).
		Str("reservation_id", existing.ID).
		Time("candidate_start", start).
		Time("candidate_end", end).
		Time("existing_start", existing.Start).
		Time("existing_end", existing.End).
		Bool("existing_confirmed", existing.Confirmed).
		Bool("overlaps", overlaps).
		Msg("overlap check")
}

func (t *LogTracer) TraceDecision(vehicleID int64, start, end time.Time, res conflict.Result) {
	if !t.selected(vehicleID, start, end) {
		return
	}
	t.logger.Debug().
		Int64("vehicle_id", vehicleID).
		Time("candidate_start", start).
		Time("candidate_end", end).
		Str("outcome", string(res.Outcome)).
		Int("hard", len(res.Hard)).
		Int("soft", len(res.Soft)).
		Msg("conflict decision")
}

func (t *LogTracer) selected(vehicleID int64, start, end time.Time) bool {
	if t.vehicles[vehicleID] {
		return true
	}
	from, to := bizdate.DayOf(start), bizdate.DayOf(end)
	for _, d := range t.days {
		if d.Between(from, to) {
			return true
		}
	}
	return false
}
