package conflict

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"rentacar/internal/models"
)

var ErrUnknownReservation = errors.New("reservation is not part of the vehicle schedule")

// Graph holds one vehicle's reservations indexed by ID. Conflict references
// are plain IDs kept symmetric: an edge exists only between two overlapping
// pending reservations. Every mutation records which reservations changed so
// the caller can persist them in one transaction.
type Graph struct {
	detector Detector
	byID     map[string]*models.Reservation
	changed  map[string]bool
	removed  map[string]bool
}

// NewGraph copies the reservations into a new arena.
func NewGraph(d Detector, reservations []models.Reservation) *Graph {
	g := &Graph{
		detector: d,
		byID:     make(map[string]*models.Reservation, len(reservations)),
		changed:  make(map[string]bool),
		removed:  make(map[string]bool),
	}
	for i := range reservations {
		r := reservations[i].Clone()
		g.byID[r.ID] = &r
	}
	return g
}

// Get returns a copy of a reservation.
func (g *Graph) Get(id string) (models.Reservation, bool) {
	r, ok := g.byID[id]
	if !ok {
		return models.Reservation{}, false
	}
	return r.Clone(), true
}

// Len returns the number of reservations in the arena.
func (g *Graph) Len() int {
	return len(g.byID)
}

// Check classifies an interval against every reservation except excludeID.
func (g *Graph) Check(excludeID string, start, end time.Time) Result {
	return g.detector.Check(g.others(excludeID), start, end)
}

// Place adds a new reservation unless it hard-conflicts.
func (g *Graph) Place(r models.Reservation) (Result, error) {
	if _, exists := g.byID[r.ID]; exists {
		return Result{}, fmt.Errorf("reservation %s already placed", r.ID)
	}
	res := g.Check(r.ID, r.Start, r.End)
	if res.Outcome == HardConflict {
		return res, nil
	}
	n := r.Clone()
	n.Conflicts = nil
	g.byID[n.ID] = &n
	res.Superseded = g.link(&n, res)
	g.changed[n.ID] = true
	return res, nil
}

// Move changes a reservation's interval and re-evaluates its conflict set.
// On a hard conflict nothing is modified.
func (g *Graph) Move(id string, start, end time.Time) (Result, error) {
	r, ok := g.byID[id]
	if !ok {
		return Result{}, ErrUnknownReservation
	}
	res := g.Check(id, start, end)
	if res.Outcome == HardConflict {
		return res, nil
	}
	g.detach(r)
	r.Start, r.End = start, end
	r.Sync()
	res.Superseded = g.link(r, res)
	g.changed[id] = true
	return res, nil
}

// Confirm finalizes a pending reservation. Its competitors lose the
// reference and are reported as superseded. A confirmed overlap blocks it.
func (g *Graph) Confirm(id string) (Result, error) {
	r, ok := g.byID[id]
	if !ok {
		return Result{}, ErrUnknownReservation
	}
	res := g.Check(id, r.Start, r.End)
	if res.Outcome == HardConflict {
		return res, nil
	}
	g.detach(r)
	r.Confirmed = true
	res.Superseded = g.link(r, res)
	g.changed[id] = true
	return res, nil
}

// Remove deletes a reservation and detaches it from every counterpart.
func (g *Graph) Remove(id string) error {
	r, ok := g.byID[id]
	if !ok {
		return ErrUnknownReservation
	}
	g.detach(r)
	delete(g.byID, id)
	delete(g.changed, id)
	g.removed[id] = true
	return nil
}

// Touch marks a reservation as changed after a field edit that does not
// affect its interval.
func (g *Graph) Touch(id string, mutate func(r *models.Reservation)) error {
	r, ok := g.byID[id]
	if !ok {
		return ErrUnknownReservation
	}
	mutate(r)
	g.changed[id] = true
	return nil
}

// Changes returns every reservation written or deleted since the graph was built.
func (g *Graph) Changes() models.ChangeSet {
	var cs models.ChangeSet
	for _, id := range sortedKeys(g.changed) {
		cs.Upserts = append(cs.Upserts, g.byID[id].Clone())
	}
	cs.Deletes = sortedKeys(g.removed)
	return cs
}

// Validate checks that every conflict reference is symmetric, points at an
// existing pending reservation, and still overlaps.
func (g *Graph) Validate() error {
	for id, r := range g.byID {
		for _, other := range r.Conflicts {
			o, ok := g.byID[other]
			if !ok {
				return fmt.Errorf("%s references missing reservation %s", id, other)
			}
			if r.Confirmed || o.Confirmed {
				return fmt.Errorf("conflict edge %s-%s involves a confirmed reservation", id, other)
			}
			if !containsID(o.Conflicts, id) {
				return fmt.Errorf("conflict edge %s->%s is not mutual", id, other)
			}
			if !Overlaps(r.Start, r.End, o.Start, o.End, g.detector.Buffer) {
				return fmt.Errorf("conflict edge %s-%s is stale", id, other)
			}
		}
	}
	return nil
}

func (g *Graph) others(excludeID string) []models.Reservation {
	out := make([]models.Reservation, 0, len(g.byID))
	for id, r := range g.byID {
		if id == excludeID {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// detach drops r from its counterparts and clears its own set, including
// references to reservations that no longer exist.
func (g *Graph) detach(r *models.Reservation) {
	for _, other := range r.Conflicts {
		if o, ok := g.byID[other]; ok && o.RemoveConflict(r.ID) {
			g.changed[o.ID] = true
		}
	}
	if len(r.Conflicts) > 0 {
		g.changed[r.ID] = true
	}
	r.Conflicts = nil
}

// link records soft overlaps as mutual edges when r is pending. A confirmed
// r supersedes the pending overlaps instead; their IDs are returned.
func (g *Graph) link(r *models.Reservation, res Result) []string {
	ids := res.SoftIDs()
	if r.Confirmed {
		return ids
	}
	for _, id := range ids {
		o, ok := g.byID[id]
		if !ok {
			continue
		}
		r.AddConflict(id)
		if o.AddConflict(r.ID) {
			g.changed[o.ID] = true
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsID(ids []string, id string) bool {
	i := sort.SearchStrings(ids, id)
	return i < len(ids) && ids[i] == id
}
