package models

import (
	"fmt"
	"sort"
	"time"

	"rentacar/internal/bizdate"
)

// Bracket is a rental-length price band.
type Bracket string

const (
	BracketShort  Bracket = "A" // 1-4 days
	BracketMedium Bracket = "B" // 5-14 days
	BracketLong   Bracket = "C" // 15+ days
)

// Brackets lists every bracket in ascending length order.
var Brackets = []Bracket{BracketShort, BracketMedium, BracketLong}

// PriceTable maps season name -> bracket -> per-day rate.
type PriceTable map[string]map[Bracket]int64

// Rate looks up the per-day rate for a season and bracket.
func (p PriceTable) Rate(season string, b Bracket) (int64, bool) {
	tiers, ok := p[season]
	if !ok {
		return 0, false
	}
	rate, ok := tiers[b]
	return rate, ok
}

// Seasons returns the season names present in the table, sorted.
func (p PriceTable) Seasons() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate rejects negative rates and unknown brackets.
func (p PriceTable) Validate() error {
	for season, tiers := range p {
		if season == "" {
			return fmt.Errorf("pricing: empty season name")
		}
		for b, rate := range tiers {
			if b != BracketShort && b != BracketMedium && b != BracketLong {
				return fmt.Errorf("pricing[%s]: unknown bracket %q", season, b)
			}
			if rate < 0 {
				return fmt.Errorf("pricing[%s][%s]: negative rate %d", season, b, rate)
			}
		}
	}
	return nil
}

// Vehicle is a rentable car with its seasonal price table.
type Vehicle struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Plate     string     `json:"plate"`
	IsActive  bool       `json:"is_active"`
	Pricing   PriceTable `json:"pricing"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DiscountWindow is a date range during which quotes get a percentage off.
// At most one window is active at a time.
type DiscountWindow struct {
	ID         int64       `json:"id"`
	StartDay   bizdate.Day `json:"start_day"`
	EndDay     bizdate.Day `json:"end_day"`
	Percentage float64     `json:"percentage"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Covers reports whether day lies within the window, both ends inclusive.
func (w *DiscountWindow) Covers(day bizdate.Day) bool {
	return w != nil && w.IsActive && day.Between(w.StartDay, w.EndDay)
}

// Validate checks the window bounds and percentage.
func (w *DiscountWindow) Validate() error {
	if w.StartDay.IsZero() || w.EndDay.IsZero() {
		return fmt.Errorf("discount window needs both start and end day")
	}
	if w.EndDay.Before(w.StartDay) {
		return fmt.Errorf("discount window ends (%s) before it starts (%s)", w.EndDay, w.StartDay)
	}
	if w.Percentage <= 0 || w.Percentage >= 100 {
		return fmt.Errorf("discount percentage must be in (0, 100), got %v", w.Percentage)
	}
	return nil
}
