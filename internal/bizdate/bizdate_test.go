package bizdate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOf(t *testing.T) {
	tests := []struct {
		name    string
		instant time.Time
		want    Day
	}{
		{
			name:    "winter evening UTC rolls to next Athens day",
			instant: time.Date(2026, 1, 14, 22, 0, 0, 0, time.UTC),
			want:    NewDay(2026, 1, 15),
		},
		{
			name:    "winter just before Athens midnight",
			instant: time.Date(2026, 1, 14, 21, 59, 0, 0, time.UTC),
			want:    NewDay(2026, 1, 14),
		},
		{
			name:    "summer offset is three hours",
			instant: time.Date(2026, 7, 1, 21, 0, 0, 0, time.UTC),
			want:    NewDay(2026, 7, 2),
		},
		{
			name:    "summer before rollover",
			instant: time.Date(2026, 7, 1, 20, 59, 0, 0, time.UTC),
			want:    NewDay(2026, 7, 1),
		},
		{
			name:    "offset in input is irrelevant",
			instant: time.Date(2026, 3, 10, 23, 30, 0, 0, time.FixedZone("NYC", -5*3600)),
			want:    NewDay(2026, 3, 11),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(DayOf(tt.instant)), "got %s want %s", DayOf(tt.instant), tt.want)
		})
	}
}

func TestParseInstantOrDay(t *testing.T) {
	t.Run("date only is Athens midnight", func(t *testing.T) {
		got, err := ParseInstantOrDay("2026-01-15")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 14, 22, 0, 0, 0, time.UTC), got.UTC())
		assert.Equal(t, "2026-01-15", DayOf(got).String())
	})

	t.Run("rfc3339 kept as is", func(t *testing.T) {
		got, err := ParseInstantOrDay("2026-05-06T10:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC), got.UTC())
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := ParseInstantOrDay("15/01/2026")
		assert.Error(t, err)
		_, err = ParseInstantOrDay("")
		assert.Error(t, err)
	})
}

func TestInstant(t *testing.T) {
	got, err := Instant(NewDay(2026, 7, 1), "10:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 1, 7, 30, 0, 0, time.UTC), got.UTC())

	_, err = Instant(NewDay(2026, 7, 1), "25:00")
	assert.Error(t, err)
}

func TestDaysBetween(t *testing.T) {
	start := time.Date(2026, 1, 14, 22, 0, 0, 0, time.UTC) // 2026-01-15 in Athens
	end := time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, 6, DaysBetween(start, end))
	assert.Equal(t, -6, DaysBetween(end, start))

	// Across the spring-forward weekend the count stays in whole days.
	assert.Equal(t, 2, DaysBetween(
		NewDay(2026, 3, 28).Midnight(),
		NewDay(2026, 3, 30).Midnight(),
	))
}

func TestDayArithmetic(t *testing.T) {
	d := NewDay(2026, 2, 27)
	assert.Equal(t, "2026-03-01", d.AddDays(2).String())
	assert.Equal(t, 2, d.AddDays(2).Sub(d))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.Between(d, d))
	assert.False(t, d.AddDays(-1).Between(d, d.AddDays(3)))
	assert.True(t, Day{}.IsZero())
}

func TestDayJSONAndSQL(t *testing.T) {
	d := NewDay(2026, 5, 9)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2026-05-09"`, string(data))

	var back Day
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, d.Equal(back))

	var scanned Day
	require.NoError(t, scanned.Scan("2026-05-09"))
	assert.True(t, d.Equal(scanned))
	require.NoError(t, scanned.Scan(time.Date(2026, 5, 9, 0, 0, 0, 0, time.UTC)))
	assert.True(t, d.Equal(scanned))
	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsZero())
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay(" 2026-05-08 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(NewDay(2026, time.May, 8)))
	assert.Equal(t, "2026-05-08", d.String())

	_, err = ParseDay("08/05/2026")
	assert.Error(t, err)
}
