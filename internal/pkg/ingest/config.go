// Package ingest is the Telemetry Ingest component (§4.F): it turns a
// normalized reading into a persisted, quality-flagged Reading, records
// liveness on the persisted Sensor, keeps in-memory rolling stats, and publishes
// telemetry.updated. Grounded on the teacher's application/watchdog.go
// backgroundWorker shape for the periodic liveness sweeper.
package ingest

import "time"

// Config carries the §6 options this component reads.
type Config struct {
	OfflineAfter  time.Duration
	SweepInterval time.Duration
	StatsWindow   time.Duration
}

func (c Config) withDefaults() Config {
	if c.OfflineAfter <= 0 {
		c.OfflineAfter = 300 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.StatsWindow <= 0 {
		c.StatsWindow = time.Hour
	}
	return c
}
