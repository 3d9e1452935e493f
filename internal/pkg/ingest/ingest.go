package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/greenhouse/core/internal/pkg/application/eventbus"
	"github.com/greenhouse/core/internal/pkg/infrastructure/store"
	"github.com/greenhouse/core/internal/pkg/normalizer"
	"github.com/greenhouse/core/pkg/types"
)

// Store is the narrow slice of store.Store Telemetry Ingest needs.
type Store interface {
	GetSensor(ctx context.Context, id string) (types.Sensor, error)
	AppendReading(ctx context.Context, kind types.SensorKind, r types.Reading) (types.Reading, error)
	UpdateSensorLiveness(ctx context.Context, id string, lastSeen time.Time, online bool) error
	UpdateSensorStats(ctx context.Context, id string, stats map[string]types.Stats) error
	ListSensors(ctx context.Context, onlyActive bool) ([]types.Sensor, error)
}

// Bus is the narrow slice of eventbus.Bus Telemetry Ingest needs.
type Bus interface {
	Publish(ctx context.Context, topic eventbus.Topic, payload any)
}

// window is a per-sensor rolling sample buffer guarded by its own mutex
// (§5: no global locks), grounded on the discovery package's per-topic
// entry shape.
type window struct {
	mu      sync.Mutex
	samples []sample
}

type sample struct {
	at     time.Time
	fields map[string]float64
}

// Engine is the Telemetry Ingest component (§4.F).
type Engine struct {
	cfg   Config
	log   zerolog.Logger
	store Store
	bus   Bus

	mu      sync.Mutex
	windows map[string]*window
}

func New(cfg Config, store Store, bus Bus, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:     cfg.withDefaults(),
		log:     log.With().Str("component", "ingest").Logger(),
		store:   store,
		bus:     bus,
		windows: make(map[string]*window),
	}
}

// Ingest turns one normalized sensor reading into a persisted Reading,
// updates liveness and rolling stats, and publishes telemetry.updated.
// sensorID must already be resolved (topic→Sensor lookup is the caller's
// concern, typically the MQTT dispatch loop); a not-found Store error here
// is reported as ErrUnknownSensor so the caller can hand the frame to
// Auto-Discovery (§4.F).
func (e *Engine) Ingest(ctx context.Context, sensorID string, n normalizer.Normalized, receivedAt time.Time) (types.Reading, error) {
	sensor, err := e.store.GetSensor(ctx, sensorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Reading{}, ErrUnknownSensor
		}
		return types.Reading{}, err
	}

	quality := n.Quality
	if thresholdBreach(sensor.Configuration.Thresholds, n.Fields) {
		quality = types.QualityWarning
	}

	reading := types.Reading{
		ID:         uuid.NewString(),
		SensorID:   sensorID,
		ReceivedAt: receivedAt,
		Normalized: n.Fields,
		Quality:    quality,
	}

	reading, err = e.store.AppendReading(ctx, sensor.Kind, reading)
	if err != nil {
		return types.Reading{}, err
	}

	if err := e.store.UpdateSensorLiveness(ctx, sensorID, receivedAt, true); err != nil {
		e.log.Error().Err(err).Str("sensorId", sensorID).Msg("liveness update failed")
	}

	stats := e.recordSample(sensorID, receivedAt, n.Fields)
	if len(stats) > 0 {
		if err := e.store.UpdateSensorStats(ctx, sensorID, stats); err != nil {
			e.log.Error().Err(err).Str("sensorId", sensorID).Msg("stats update failed")
		}
	}

	e.bus.Publish(ctx, eventbus.TopicTelemetryUpdated, &types.TelemetryUpdated{
		SensorID:   sensorID,
		ReceivedAt: receivedAt,
		Normalized: n.Fields,
		Quality:    quality,
	})

	return reading, nil
}

// thresholdBreach checks every numeric canonical field against the sensor's
// configured thresholds (§4.F.1); fields with no configured threshold are
// not checked here (the normalizer's own static range check already ran).
func thresholdBreach(thresholds map[string]types.Threshold, fields map[string]any) bool {
	for field, t := range thresholds {
		v, ok := fields[field]
		if !ok {
			continue
		}
		num, ok := v.(float64)
		if !ok {
			continue
		}
		if t.Min != nil && num < *t.Min {
			return true
		}
		if t.Max != nil && num > *t.Max {
			return true
		}
	}
	return false
}

func (e *Engine) windowFor(sensorID string) *window {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.windows[sensorID]
	if !ok {
		w = &window{}
		e.windows[sensorID] = w
	}
	return w
}

// recordSample appends fields to the sensor's rolling window, prunes
// samples older than cfg.StatsWindow, and returns the recomputed per-field
// min/max/avg/count (§4.F.4).
func (e *Engine) recordSample(sensorID string, at time.Time, fields map[string]any) map[string]types.Stats {
	numeric := make(map[string]float64, len(fields))
	for k, v := range fields {
		if f, ok := v.(float64); ok {
			numeric[k] = f
		}
	}
	if len(numeric) == 0 {
		return nil
	}

	w := e.windowFor(sensorID)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, sample{at: at, fields: numeric})
	cutoff := at.Add(-e.cfg.StatsWindow)
	kept := w.samples[:0]
	for _, s := range w.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	w.samples = kept

	acc := make(map[string]*types.Stats)
	for _, s := range w.samples {
		for field, v := range s.fields {
			st, ok := acc[field]
			if !ok {
				st = &types.Stats{Min: v, Max: v}
				acc[field] = st
			}
			if v < st.Min {
				st.Min = v
			}
			if v > st.Max {
				st.Max = v
			}
			st.Avg = (st.Avg*float64(st.Count) + v) / float64(st.Count+1)
			st.Count++
		}
	}

	out := make(map[string]types.Stats, len(acc))
	for field, st := range acc {
		out[field] = *st
	}
	return out
}

// Sweep marks every active sensor whose persisted lastSeen is older than
// offlineAfter as offline (§4.F.3). Grounded on the teacher's
// application/watchdog.go backgroundWorker loop, generalized from devices
// to sensors and from a fixed poll to the configured sweep interval.
func (e *Engine) Sweep(ctx context.Context, now time.Time) {
	sensors, err := e.store.ListSensors(ctx, true)
	if err != nil {
		e.log.Error().Err(err).Msg("liveness sweep: could not list sensors")
		return
	}

	cutoff := now.Add(-e.cfg.OfflineAfter)
	for _, s := range sensors {
		if !s.Online {
			continue
		}
		if s.LastSeen.IsZero() || s.LastSeen.After(cutoff) {
			continue
		}
		if err := e.store.UpdateSensorLiveness(ctx, s.ID, s.LastSeen, false); err != nil {
			e.log.Error().Err(err).Str("sensorId", s.ID).Msg("liveness sweep: update failed")
		}
	}
}

// Run drives the periodic sweeper until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Sweep(ctx, now.UTC())
		}
	}
}
