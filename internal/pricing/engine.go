package pricing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rentacar/internal/bizdate"
	"rentacar/internal/metrics"
	"rentacar/internal/models"
)

// DefaultSecondDriverDaily is the second-driver surcharge when none is configured.
const DefaultSecondDriverDaily int64 = 5

// DiscountProvider returns the single active discount window, or nil.
type DiscountProvider interface {
	ActiveDiscount(ctx context.Context) (*models.DiscountWindow, error)
}

// Config holds process-wide add-on rates.
type Config struct {
	SecondDriverDaily int64
	ChildSeatDaily    int64
	Insurance         map[string]int64 // tier -> daily surcharge, 0 means included
	StrictTiers       bool
}

// DefaultConfig returns the rates used when the config file omits them.
func DefaultConfig() Config {
	return Config{
		SecondDriverDaily: DefaultSecondDriverDaily,
		ChildSeatDaily:    3,
		Insurance:         map[string]int64{"basic": 0, "full": 10},
	}
}

// DayPrice is one rental day of a quote.
type DayPrice struct {
	Day        bizdate.Day `json:"day"`
	Season     string      `json:"season"`
	Base       int64       `json:"base_price"`
	Price      int64       `json:"price"`
	Discounted bool        `json:"discounted"`
	Missing    bool        `json:"missing_tier,omitempty"`
}

// Quote is the full result of a price computation.
type Quote struct {
	VehicleID          int64          `json:"vehicle_id"`
	StartDay           bizdate.Day    `json:"start_day"`
	EndDay             bizdate.Day    `json:"end_day"`
	Days               int            `json:"days"`
	Bracket            models.Bracket `json:"bracket"`
	Breakdown          []DayPrice     `json:"breakdown"`
	RentalTotal        int64          `json:"rental_total"`
	DiscountPercentage float64        `json:"discount_percentage,omitempty"`
	InsuranceTotal     int64          `json:"insurance_total"`
	ChildSeatTotal     int64          `json:"child_seat_total"`
	SecondDriverTotal  int64          `json:"second_driver_total"`
	Total              int64          `json:"total"`
	MissingTiers       []TierGap      `json:"missing_tiers,omitempty"`
}

// Engine computes rental prices. The season table can be swapped at runtime.
type Engine struct {
	seasons   atomic.Pointer[SeasonTable]
	discounts DiscountProvider
	cfg       Config
	logger    zerolog.Logger
}

func NewEngine(seasons *SeasonTable, discounts DiscountProvider, cfg Config, logger *zerolog.Logger) *Engine {
	if cfg.Insurance == nil {
		cfg.Insurance = map[string]int64{}
	}
	e := &Engine{
		discounts: discounts,
		cfg:       cfg,
		logger:    logger.With().Str("component", "pricing").Logger(),
	}
	e.seasons.Store(seasons)
	return e
}

// SetSeasons replaces the season table used by subsequent computations.
func (e *Engine) SetSeasons(t *SeasonTable) {
	e.seasons.Store(t)
	e.logger.Info().Strs("seasons", t.Names()).Msg("season table updated")
}

// Seasons returns the current season table.
func (e *Engine) Seasons() *SeasonTable {
	return e.seasons.Load()
}

// ValidateAddOns rejects negative seat counts and unknown insurance tiers.
// An empty tier means no insurance surcharge.
func (e *Engine) ValidateAddOns(a models.AddOns) error {
	if a.ChildSeats < 0 {
		return fmt.Errorf("%w: child seat count %d is negative", ErrInvalidAddOns, a.ChildSeats)
	}
	if a.InsuranceTier == "" {
		return nil
	}
	if _, ok := e.cfg.Insurance[a.InsuranceTier]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownInsuranceTier, a.InsuranceTier)
	}
	return nil
}

// CoverageGaps lists the (season, bracket) pairs a price table has no rate
// for, over every configured season plus NoSeason.
func (e *Engine) CoverageGaps(p models.PriceTable) []TierGap {
	seasons := append(e.Seasons().Names(), NoSeason)
	var gaps []TierGap
	for _, s := range seasons {
		for _, b := range models.Brackets {
			if _, ok := p.Rate(s, b); !ok {
				gaps = append(gaps, TierGap{Season: s, Bracket: b})
			}
		}
	}
	return gaps
}

// ValidatePriceTable checks rate values and that every season key is known.
func (e *Engine) ValidatePriceTable(p models.PriceTable) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPriceTable, err)
	}
	known := map[string]bool{NoSeason: true}
	for _, name := range e.Seasons().Names() {
		known[name] = true
	}
	for _, name := range p.Seasons() {
		if !known[name] {
			return fmt.Errorf("%w: unknown season %q", ErrInvalidPriceTable, name)
		}
	}
	return nil
}

// Compute prices a rental of v over [start, end). Identical inputs and
// discount state yield identical quotes.
func (e *Engine) Compute(ctx context.Context, v *models.Vehicle, start, end time.Time, addOns models.AddOns) (*Quote, error) {
	days, err := RentalDays(start, end)
	if err != nil {
		return nil, err
	}
	if v == nil || len(v.Pricing) == 0 {
		var id int64
		if v != nil {
			id = v.ID
		}
		return nil, &MissingPricingDataError{VehicleID: id}
	}
	if err := e.ValidateAddOns(addOns); err != nil {
		return nil, err
	}

	discount := e.activeDiscount(ctx)
	seasons := e.Seasons()
	bracket := BracketFor(days)
	startDay := bizdate.DayOf(start)

	q := &Quote{
		VehicleID: v.ID,
		StartDay:  startDay,
		EndDay:    bizdate.DayOf(end),
		Days:      days,
		Bracket:   bracket,
		Breakdown: make([]DayPrice, 0, days),
	}

	missing := map[TierGap]bool{}
	for i := 0; i < days; i++ {
		day := startDay.AddDays(i)
		season := seasons.SeasonFor(day)
		line := DayPrice{Day: day, Season: season}

		rate, ok := v.Pricing.Rate(season, bracket)
		if !ok {
			line.Missing = true
			missing[TierGap{Season: season, Bracket: bracket}] = true
		}
		line.Base = rate
		line.Price = rate
		if discount.Covers(day) {
			line.Price = applyDiscount(rate, discount.Percentage)
			line.Discounted = true
			q.DiscountPercentage = discount.Percentage
		}
		q.RentalTotal += line.Price
		q.Breakdown = append(q.Breakdown, line)
	}

	if len(missing) > 0 {
		q.MissingTiers = sortedGaps(missing)
		if e.cfg.StrictTiers {
			return nil, &MissingPricingDataError{VehicleID: v.ID, Gaps: q.MissingTiers}
		}
		for _, g := range q.MissingTiers {
			metrics.IncMissingPriceTier(g.Season, string(g.Bracket))
			e.logger.Error().
				Int64("vehicle_id", v.ID).
				Str("season", g.Season).
				Str("bracket", string(g.Bracket)).
				Msg("missing price tier, day priced at zero")
		}
	}

	n := int64(days)
	q.InsuranceTotal = e.cfg.Insurance[addOns.InsuranceTier] * n
	q.ChildSeatTotal = e.cfg.ChildSeatDaily * int64(addOns.ChildSeats) * n
	if addOns.SecondDriver {
		q.SecondDriverTotal = e.cfg.SecondDriverDaily * n
	}
	q.Total = q.RentalTotal + q.InsuranceTotal + q.ChildSeatTotal + q.SecondDriverTotal
	return q, nil
}

func (e *Engine) activeDiscount(ctx context.Context) *models.DiscountWindow {
	if e.discounts == nil {
		return nil
	}
	w, err := e.discounts.ActiveDiscount(ctx)
	if err != nil {
		metrics.IncDiscountLookupFailure()
		e.logger.Warn().Err(err).Msg("discount lookup failed, pricing without discount")
		return nil
	}
	return w
}

func applyDiscount(price int64, percentage float64) int64 {
	return int64(math.Round(float64(price) * (100 - percentage) / 100))
}

func sortedGaps(set map[TierGap]bool) []TierGap {
	gaps := make([]TierGap, 0, len(set))
	for g := range set {
		gaps = append(gaps, g)
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Season != gaps[j].Season {
			return gaps[i].Season < gaps[j].Season
		}
		return gaps[i].Bracket < gaps[j].Bracket
	})
	return gaps
}
