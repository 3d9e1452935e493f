// Package pipeline is the ingest worker pool named in §5 ("a small pool
// (default 4) of ingest workers consuming the inbound channel"): it
// classifies each inbound MQTT frame as sensor telemetry, a device command,
// a device status reply, or an unknown topic, and routes it to the Payload
// Normalizer plus Telemetry Ingest, the Actuator, or Auto-Discovery
// accordingly. Grounded
// on the teacher's application/watchdog background-worker shape, here
// sharded by topic hash across a fixed worker count instead of a single
// loop, since §5 requires "per topic, inbound frames preserve order into
// the normalizer" even with multiple concurrent workers.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenhouse/core/internal/pkg/infrastructure/store"
	"github.com/greenhouse/core/internal/pkg/normalizer"
	"github.com/greenhouse/core/internal/pkg/transport/mqtt"
	"github.com/greenhouse/core/pkg/types"
)

type Config struct {
	Workers int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// SensorLookup is the narrow Store slice used to classify a topic as
// sensor telemetry.
type SensorLookup interface {
	GetSensorByTopic(ctx context.Context, topic string) (types.Sensor, error)
}

// DeviceLookup is the narrow Store slice used to classify a topic as a
// device command (§4.D: "devices receiving commands on */sw").
type DeviceLookup interface {
	GetDeviceByCommandTopic(ctx context.Context, topic string) (types.Device, error)
}

// Ingester is Telemetry Ingest's entry point.
type Ingester interface {
	Ingest(ctx context.Context, sensorID string, n normalizer.Normalized, receivedAt time.Time) (types.Reading, error)
}

// StatusHandler is the Actuator's status-reply entry point.
type StatusHandler interface {
	HandleStatusReply(ctx context.Context, topic string, payload []byte) error
}

// Controller is the Actuator's command entry point, fed a desired-state
// transition decoded off a known device's command topic.
type Controller interface {
	Control(ctx context.Context, deviceRef string, verb types.ControlVerb, setValue *float64, durationSeconds int) error
}

// Discoverer is Auto-Discovery's sample entry point.
type Discoverer interface {
	Observe(ctx context.Context, topic string, payload map[string]any, now time.Time)
}

// Pool is the worker pool consuming a mqtt.Transport's inbound channel.
type Pool struct {
	cfg Config
	log zerolog.Logger

	sensors   SensorLookup
	devices   DeviceLookup
	ingest    Ingester
	actuator  StatusHandler
	control   Controller
	discovery Discoverer
}

func New(cfg Config, sensors SensorLookup, devices DeviceLookup, ingest Ingester, actuator StatusHandler, control Controller, discovery Discoverer, log zerolog.Logger) *Pool {
	return &Pool{
		cfg:       cfg.withDefaults(),
		log:       log.With().Str("component", "pipeline").Logger(),
		sensors:   sensors,
		devices:   devices,
		ingest:    ingest,
		actuator:  actuator,
		control:   control,
		discovery: discovery,
	}
}

// Run shards inbound frames across cfg.Workers goroutines by topic hash so
// that any single topic's frames are always handled by the same worker
// (and therefore stay ordered), while distinct topics process concurrently.
// It blocks until inbound is closed or ctx is cancelled.
func (p *Pool) Run(ctx context.Context, inbound <-chan mqtt.Frame) {
	shards := make([]chan mqtt.Frame, p.cfg.Workers)
	for i := range shards {
		shards[i] = make(chan mqtt.Frame, 256)
		go p.worker(ctx, shards[i])
	}
	defer func() {
		for _, s := range shards {
			close(s)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-inbound:
			if !ok {
				return
			}
			shards[shardFor(frame.Topic, len(shards))] <- frame
		}
	}
}

func (p *Pool) worker(ctx context.Context, frames <-chan mqtt.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			p.handle(ctx, frame)
		}
	}
}

func (p *Pool) handle(ctx context.Context, frame mqtt.Frame) {
	if strings.HasSuffix(frame.Topic, "/status") {
		if err := p.actuator.HandleStatusReply(ctx, frame.Topic, frame.Payload); err != nil {
			p.log.Error().Err(err).Str("topic", frame.Topic).Msg("could not handle device status reply")
		}
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(frame.Payload, &raw); err != nil {
		p.log.Warn().Err(err).Str("topic", frame.Topic).Msg("dropping invalid payload")
		return
	}

	device, err := p.devices.GetDeviceByCommandTopic(ctx, frame.Topic)
	if err == nil {
		p.handleCommand(ctx, frame, device, raw)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		p.log.Error().Err(err).Str("topic", frame.Topic).Msg("store unavailable, dropping frame")
		return
	}

	sensor, err := p.sensors.GetSensorByTopic(ctx, frame.Topic)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.discovery.Observe(ctx, frame.Topic, raw, frame.ReceivedAt)
			return
		}
		p.log.Error().Err(err).Str("topic", frame.Topic).Msg("store unavailable, dropping reading")
		return
	}

	n, err := normalizer.NormalizeSensor(sensor.Kind, raw)
	if err != nil {
		p.log.Warn().Err(err).Str("topic", frame.Topic).Msg("dropping invalid sensor payload")
		return
	}

	if _, err := p.ingest.Ingest(ctx, sensor.ID, n, frame.ReceivedAt); err != nil {
		p.log.Error().Err(err).Str("sensorId", sensor.ID).Msg("ingest failed")
	}
}

// handleCommand maps a payload received on a known device's command topic
// (`*/sw`, `/command`) to a desired-state transition request and hands it
// to the Actuator, instead of treating it as telemetry (§4.D).
func (p *Pool) handleCommand(ctx context.Context, frame mqtt.Frame, device types.Device, raw map[string]any) {
	n, err := normalizer.NormalizeCommand(raw)
	if err != nil {
		p.log.Warn().Err(err).Str("topic", frame.Topic).Msg("dropping invalid device command payload")
		return
	}

	verb := types.VerbTurnOff
	if n.DesiredOn {
		verb = types.VerbTurnOn
	}
	if err := p.control.Control(ctx, device.ID, verb, nil, 0); err != nil {
		p.log.Error().Err(err).Str("deviceId", device.ID).Msg("could not apply device command")
	}
}

func shardFor(topic string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(topic))
	return int(h.Sum32()) % n
}
