package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rentacar/internal/pricing"
)

// DefaultSeasonsPath is used when business.seasons_path is empty.
const DefaultSeasonsPath = "configs/seasons.yaml"

// SeasonConfig is one entry of seasons.yaml.
type SeasonConfig struct {
	Name string `yaml:"name"`
	From string `yaml:"from"` // "06-01"
	To   string `yaml:"to"`   // "09-15"; before From means the range wraps New Year
}

// SeasonsConfig is the root configuration for seasons.yaml.
type SeasonsConfig struct {
	Seasons []SeasonConfig `yaml:"seasons"`
}

// LoadSeasons loads and validates the season calendar.
func LoadSeasons(path string) (*pricing.SeasonTable, error) {
	if path == "" {
		path = DefaultSeasonsPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seasons config: %w", err)
	}

	var cfg SeasonsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse seasons config: %w", err)
	}

	table, err := cfg.Table()
	if err != nil {
		return nil, fmt.Errorf("validate seasons config: %w", err)
	}
	return table, nil
}

// Table converts the entries into a validated season table.
func (c *SeasonsConfig) Table() (*pricing.SeasonTable, error) {
	if len(c.Seasons) == 0 {
		return nil, fmt.Errorf("no seasons defined")
	}

	seasons := make([]pricing.Season, 0, len(c.Seasons))
	for i, s := range c.Seasons {
		from, err := pricing.ParseMonthDay(s.From)
		if err != nil {
			return nil, fmt.Errorf("season[%d] (%s): from: %w", i, s.Name, err)
		}
		to, err := pricing.ParseMonthDay(s.To)
		if err != nil {
			return nil, fmt.Errorf("season[%d] (%s): to: %w", i, s.Name, err)
		}
		seasons = append(seasons, pricing.Season{Name: s.Name, From: from, To: to})
	}
	return pricing.NewSeasonTable(seasons)
}
