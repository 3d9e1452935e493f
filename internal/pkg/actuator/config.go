// Package actuator is the Actuator component (§4.H): it resolves
// DeviceControl actions to canonical MQTT commands, optimistically updates
// the Device, correlates the eventual status reply by requestId, and
// upgrades the optimistic status to authoritative (or to ERROR on timeout).
package actuator

import "time"

// Config carries the §6 options this component reads.
type Config struct {
	AckTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	return c
}
