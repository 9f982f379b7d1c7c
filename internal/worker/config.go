// Package worker provides background jobs for bahnmcp.
package worker

import (
	"time"
)

// PrewarmConfig holds configuration for the board prewarm job.
type PrewarmConfig struct {
	// Stations are the station names whose departure boards are kept warm.
	// If empty, uses DefaultPrewarmStations.
	Stations []string

	// Concurrency is the number of concurrent board fetches.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for each board fetch.
	// Default: 30 seconds
	Timeout time.Duration

	// Interval is the pause between prewarm passes. It should stay below the
	// departures cache TTL so boards never go cold.
	// Default: 60 seconds
	Interval time.Duration
}

// DefaultPrewarmConfig returns the default prewarm configuration.
func DefaultPrewarmConfig() PrewarmConfig {
	return PrewarmConfig{
		Stations:    DefaultPrewarmStations(),
		Concurrency: 3,
		Timeout:     30 * time.Second,
		Interval:    60 * time.Second,
	}
}

// DefaultPrewarmStations returns the busiest long-distance hubs.
func DefaultPrewarmStations() []string {
	return []string{
		"Hamburg Hbf",
		"München Hbf",
		"Frankfurt(Main)Hbf",
		"Köln Hbf",
		"Berlin Hbf",
		"Hannover Hbf",
		"Stuttgart Hbf",
		"Düsseldorf Hbf",
	}
}

// withDefaults fills zero fields from DefaultPrewarmConfig.
func (c PrewarmConfig) withDefaults() PrewarmConfig {
	def := DefaultPrewarmConfig()
	if len(c.Stations) == 0 {
		c.Stations = def.Stations
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	return c
}
