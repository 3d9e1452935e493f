// Package notifier is the Notifier component (§4.I): it renders a
// Notification's title/body from trigger data, action variables, and
// template defaults, persists the Notification, and delivers it per
// channel with bounded exponential-backoff retry.
package notifier

import "time"

// Config carries the §6 options this component reads.
type Config struct {
	WebhookURL    string
	WebhookSecret string
	RetryCount    int
}

func (c Config) withDefaults() Config {
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	return c
}
