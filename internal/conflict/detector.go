// Package conflict classifies candidate rental intervals against a vehicle's
// existing reservations and keeps the mutual soft-conflict references
// consistent when reservations are placed, moved, confirmed or removed.
package conflict

import (
	"sort"
	"time"

	"rentacar/internal/bizdate"
	"rentacar/internal/models"
)

// Outcome is the result class of a conflict check.
type Outcome string

const (
	Free         Outcome = "FREE"
	SoftConflict Outcome = "SOFT_CONFLICT"
	HardConflict Outcome = "HARD_CONFLICT"
)

// Range describes one overlap between the candidate and an existing reservation.
type Range struct {
	ReservationID string      `json:"reservation_id"`
	OrderNumber   string      `json:"order_number,omitempty"`
	Confirmed     bool        `json:"confirmed"`
	Start         time.Time   `json:"start"`
	End           time.Time   `json:"end"`
	OverlapStart  time.Time   `json:"overlap_start"`
	OverlapEnd    time.Time   `json:"overlap_end"`
	FromDay       bizdate.Day `json:"from_day"` // first business day of the overlap
	ToDay         bizdate.Day `json:"to_day"`   // last business day of the overlap
}

// Result is the structured outcome of a check. A hard conflict is reported
// here rather than as an error.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Hard    []Range `json:"hard,omitempty"`
	Soft    []Range `json:"soft,omitempty"`
	// Superseded lists pending reservations implicitly rejected by a confirmed one.
	Superseded []string `json:"superseded,omitempty"`
}

// SoftIDs returns the IDs of the pending reservations the candidate overlaps.
func (r Result) SoftIDs() []string {
	ids := make([]string, 0, len(r.Soft))
	for _, s := range r.Soft {
		ids = append(ids, s.ReservationID)
	}
	return ids
}

// Tracer observes detector decisions. Implementations decide themselves
// which vehicles or days are worth recording.
type Tracer interface {
	TraceOverlap(candidateStart, candidateEnd time.Time, existing *models.Reservation, overlaps bool)
	TraceDecision(vehicleID int64, candidateStart, candidateEnd time.Time, res Result)
}

type nopTracer struct{}

func (nopTracer) TraceOverlap(time.Time, time.Time, *models.Reservation, bool) {}
func (nopTracer) TraceDecision(int64, time.Time, time.Time, Result)            {}

// Detector checks intervals with an optional handover buffer. The zero
// value has no buffer: reservations that touch do not conflict.
type Detector struct {
	Buffer time.Duration
	Tracer Tracer
}

// Overlaps is the strict overlap predicate on half-open intervals, widened by buffer.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time, buffer time.Duration) bool {
	return aStart.Before(bEnd.Add(buffer)) && aEnd.Add(buffer).After(bStart)
}

// Check classifies [start, end) against the existing reservations with no buffer.
func Check(existing []models.Reservation, start, end time.Time) Result {
	return Detector{}.Check(existing, start, end)
}

// Check classifies [start, end) against the existing reservations.
func (d Detector) Check(existing []models.Reservation, start, end time.Time) Result {
	res := Result{Outcome: Free}
	tracer := d.tracer()
	var vehicleID int64

	for i := range existing {
		r := &existing[i]
		vehicleID = r.VehicleID
		overlaps := Overlaps(start, end, r.Start, r.End, d.Buffer)
		tracer.TraceOverlap(start, end, r, overlaps)
		if !overlaps {
			continue
		}
		rng := overlapRange(r, start, end)
		if r.Confirmed {
			res.Hard = append(res.Hard, rng)
		} else {
			res.Soft = append(res.Soft, rng)
		}
	}

	sortRanges(res.Hard)
	sortRanges(res.Soft)
	switch {
	case len(res.Hard) > 0:
		res.Outcome = HardConflict
	case len(res.Soft) > 0:
		res.Outcome = SoftConflict
	}
	tracer.TraceDecision(vehicleID, start, end, res)
	return res
}

func (d Detector) tracer() Tracer {
	if d.Tracer == nil {
		return nopTracer{}
	}
	return d.Tracer
}

func overlapRange(r *models.Reservation, start, end time.Time) Range {
	from, to := start, end
	if r.Start.After(from) {
		from = r.Start
	}
	if r.End.Before(to) {
		to = r.End
	}
	// with a buffer the intervals may not intersect at all
	if to.Before(from) {
		from, to = to, from
	}
	return Range{
		ReservationID: r.ID,
		OrderNumber:   r.OrderNumber,
		Confirmed:     r.Confirmed,
		Start:         r.Start,
		End:           r.End,
		OverlapStart:  from,
		OverlapEnd:    to,
		FromDay:       bizdate.DayOf(from),
		ToDay:         bizdate.DayOf(to),
	}
}

func sortRanges(rs []Range) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Start.Equal(rs[j].Start) {
			return rs[i].Start.Before(rs[j].Start)
		}
		return rs[i].ReservationID < rs[j].ReservationID
	})
}
