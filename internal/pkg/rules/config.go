// Package rules is the Rules Engine (4.G): a ticking scheduler that
// evaluates enabled rules' condition trees against the latest Readings and
// Device states and executes their actions. Grounded on the teacher's
// application/watchdog.go select/done loop shape, combined with this
// repo's own eventbus.Subscribe channel for the demand path.
package rules

import "time"

// Config carries the §6 options this component reads.
type Config struct {
	EvaluationPeriod time.Duration
	Timezone         *time.Location
	// SelfTriggerGuard is how long a device leaf reading UseOptimistic
	// ignores that device's own just-published optimistic update, to
	// avoid a rule re-triggering itself on the next tick (§4.G edge case).
	SelfTriggerGuard time.Duration
}

func (c Config) withDefaults() Config {
	if c.EvaluationPeriod <= 0 {
		c.EvaluationPeriod = 30 * time.Second
	}
	if c.Timezone == nil {
		c.Timezone = time.UTC
	}
	if c.SelfTriggerGuard <= 0 {
		c.SelfTriggerGuard = 500 * time.Millisecond
	}
	return c
}
