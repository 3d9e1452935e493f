package mqtt

import (
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

func TestBackoffDelayRespectsCapAndBase(t *testing.T) {
	is := is.New(t)

	d0 := backoffDelay(0)
	is.True(d0 >= backoffBase*3/4 && d0 <= backoffBase*5/4)

	// after enough doublings the cap (±jitter) must hold
	dMax := backoffDelay(20)
	is.True(dMax <= backoffCap*5/4)
	is.True(dMax >= backoffCap*3/4)
}

func TestBackoffDelayIsMonotonicOnAverage(t *testing.T) {
	is := is.New(t)

	var prev time.Duration
	for attempt := 0; attempt < 6; attempt++ {
		d := backoffDelay(attempt)
		is.True(d > 0)
		is.True(d > prev)
		prev = d
	}
	_ = prev
}

func TestDiscoveryTopicDefaultsRoot(t *testing.T) {
	is := is.New(t)
	tr := New(Config{BrokerURL: "tcp://localhost:1883"}, nil, noopLogger())
	is.Equal(tr.DiscoveryTopic(), "Invernadero/+/+")
}

func TestDiscoveryTopicHonorsConfiguredRoot(t *testing.T) {
	is := is.New(t)
	tr := New(Config{BrokerURL: "tcp://localhost:1883", RootTopic: "Custom"}, nil, noopLogger())
	is.Equal(tr.DiscoveryTopic(), "Custom/+/+")
}
