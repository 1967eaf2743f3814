package config

import (
	"context"
	"os"
	"time"

	"rentacar/internal/pricing"
)

// WatchSeasons reloads seasons.yaml on change and calls onUpdate with the new table.
// It performs an initial load before entering the watch loop. A file that fails
// validation is skipped and the previous table stays in effect.
func WatchSeasons(ctx context.Context, path string, interval time.Duration, onUpdate func(*pricing.SeasonTable), onError func(error)) error {
	if path == "" {
		path = DefaultSeasonsPath
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	table, err := LoadSeasons(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(table)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				table, err := LoadSeasons(path)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				if onUpdate != nil {
					onUpdate(table)
				}
			}
		}
	}()

	return nil
}
