package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentacar/internal/models"
	"rentacar/internal/pricing"
	"rentacar/shared/access"
)

func newFleet(t *testing.T, f *fixture, seasons ...pricing.Season) (*FleetService, *pricing.Engine) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	table, err := pricing.NewSeasonTable(seasons)
	require.NoError(t, err)
	engine := pricing.NewEngine(table, f.db, pricing.DefaultConfig(), &logger)
	return NewFleetService(f.db, access.NewService(f.db, logger), engine, &logger), engine
}

var highSeason = pricing.Season{
	Name: "high",
	From: pricing.MonthDay{Month: time.June, Day: 1},
	To:   pricing.MonthDay{Month: time.September, Day: 30},
}

func TestFleet_PriceTablesAreValidatedOnWrite(t *testing.T) {
	f := newFixture(t)
	fleet, _ := newFleet(t, f, highSeason)
	ctx := context.Background()

	err := fleet.CreateVehicle(ctx, superadminID, &models.Vehicle{
		Name:    "Seat Ibiza",
		Pricing: models.PriceTable{"autumn": {models.BracketShort: 40}},
	})
	assert.ErrorIs(t, err, pricing.ErrInvalidPriceTable)

	err = fleet.CreateVehicle(ctx, adminID, &models.Vehicle{Name: "Seat Ibiza", Pricing: f.vehicle.Pricing})
	assert.True(t, access.IsAccessDenied(err))

	_, err = fleet.UpdateVehiclePricing(ctx, superadminID, f.vehicle.ID, models.PriceTable{"high": {models.BracketShort: -1}})
	assert.ErrorIs(t, err, pricing.ErrInvalidPriceTable)

	stored, err := f.db.GetVehicle(ctx, f.vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, f.vehicle.Pricing, stored.Pricing)

	updated, err := fleet.UpdateVehiclePricing(ctx, superadminID, f.vehicle.ID, models.PriceTable{"high": {models.BracketShort: 70}})
	require.NoError(t, err)
	rate, ok := updated.Pricing.Rate("high", models.BracketShort)
	assert.True(t, ok)
	assert.Equal(t, int64(70), rate)

	_, err = fleet.UpdateVehiclePricing(ctx, superadminID, 999, f.vehicle.Pricing)
	assert.ErrorIs(t, err, ErrVehicleNotFound)
}

func TestFleet_CheckCoverage(t *testing.T) {
	f := newFixture(t)
	fleet, engine := newFleet(t, f, highSeason)
	ctx := context.Background()

	gaps, err := fleet.CheckCoverage(ctx)
	require.NoError(t, err)
	assert.Empty(t, gaps, "fixture vehicle covers every tier")

	spring := pricing.Season{
		Name: "spring",
		From: pricing.MonthDay{Month: time.April, Day: 1},
		To:   pricing.MonthDay{Month: time.May, Day: 31},
	}
	reloaded, err := pricing.NewSeasonTable([]pricing.Season{highSeason, spring})
	require.NoError(t, err)
	engine.SetSeasons(reloaded)

	gaps, err = fleet.CheckCoverage(ctx)
	require.NoError(t, err)
	require.Contains(t, gaps, f.vehicle.ID)
	assert.Len(t, gaps[f.vehicle.ID], len(models.Brackets))
	for _, g := range gaps[f.vehicle.ID] {
		assert.Equal(t, "spring", g.Season)
	}
}

func TestFleet_ListVehicles(t *testing.T) {
	f := newFixture(t)
	fleet, _ := newFleet(t, f, highSeason)
	ctx := context.Background()

	list, err := fleet.ListVehicles(ctx, adminID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = fleet.ListVehicles(ctx, 404)
	assert.True(t, access.IsAccessDenied(err))
}
