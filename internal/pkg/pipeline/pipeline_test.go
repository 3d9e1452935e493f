package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/greenhouse/core/internal/pkg/infrastructure/store"
	"github.com/greenhouse/core/internal/pkg/normalizer"
	"github.com/greenhouse/core/internal/pkg/transport/mqtt"
	"github.com/greenhouse/core/pkg/types"
)

type fakeSensorLookup struct {
	sensor types.Sensor
	err    error
}

func (f *fakeSensorLookup) GetSensorByTopic(_ context.Context, _ string) (types.Sensor, error) {
	return f.sensor, f.err
}

type fakeDeviceLookup struct {
	device types.Device
	err    error
}

func (f *fakeDeviceLookup) GetDeviceByCommandTopic(_ context.Context, _ string) (types.Device, error) {
	return f.device, f.err
}

type fakeIngester struct {
	calls int
	last  normalizer.Normalized
}

func (f *fakeIngester) Ingest(_ context.Context, _ string, n normalizer.Normalized, _ time.Time) (types.Reading, error) {
	f.calls++
	f.last = n
	return types.Reading{}, nil
}

type fakeStatusHandler struct {
	calls  int
	topics []string
}

func (f *fakeStatusHandler) HandleStatusReply(_ context.Context, topic string, _ []byte) error {
	f.calls++
	f.topics = append(f.topics, topic)
	return nil
}

type fakeController struct {
	calls     int
	deviceRef string
	verb      types.ControlVerb
}

func (f *fakeController) Control(_ context.Context, deviceRef string, verb types.ControlVerb, _ *float64, _ int) error {
	f.calls++
	f.deviceRef = deviceRef
	f.verb = verb
	return nil
}

type fakeDiscoverer struct {
	calls  int
	topics []string
}

func (f *fakeDiscoverer) Observe(_ context.Context, topic string, _ map[string]any, _ time.Time) {
	f.calls++
	f.topics = append(f.topics, topic)
}

func newTestPool(sensors *fakeSensorLookup, devices *fakeDeviceLookup, ingest *fakeIngester, actuator *fakeStatusHandler, control *fakeController, discovery *fakeDiscoverer) *Pool {
	return New(Config{Workers: 1}, sensors, devices, ingest, actuator, control, discovery, zerolog.Nop())
}

func noDevice() *fakeDeviceLookup { return &fakeDeviceLookup{err: store.ErrNotFound} }

func TestHandleRoutesStatusTopicsToActuator(t *testing.T) {
	is := is.New(t)
	actuator := &fakeStatusHandler{}
	p := newTestPool(&fakeSensorLookup{}, noDevice(), &fakeIngester{}, actuator, &fakeController{}, &fakeDiscoverer{})

	p.handle(context.Background(), mqtt.Frame{Topic: "Invernadero/device1/status", Payload: []byte(`{}`)})

	is.Equal(actuator.calls, 1)
	is.Equal(actuator.topics[0], "Invernadero/device1/status")
}

func TestHandleDropsInvalidJSONPayload(t *testing.T) {
	is := is.New(t)
	ingest := &fakeIngester{}
	p := newTestPool(&fakeSensorLookup{}, noDevice(), ingest, &fakeStatusHandler{}, &fakeController{}, &fakeDiscoverer{})

	p.handle(context.Background(), mqtt.Frame{Topic: "Invernadero/temhum1", Payload: []byte(`not json`)})

	is.Equal(ingest.calls, 0)
}

func TestHandleRoutesUnknownTopicToDiscovery(t *testing.T) {
	is := is.New(t)
	discovery := &fakeDiscoverer{}
	sensors := &fakeSensorLookup{err: store.ErrNotFound}
	p := newTestPool(sensors, noDevice(), &fakeIngester{}, &fakeStatusHandler{}, &fakeController{}, discovery)

	payload, err := json.Marshal(map[string]any{"temperatura": 25.0})
	is.NoErr(err)

	p.handle(context.Background(), mqtt.Frame{Topic: "Invernadero/unknown1", Payload: payload})

	is.Equal(discovery.calls, 1)
	is.Equal(discovery.topics[0], "Invernadero/unknown1")
}

func TestHandleNormalizesAndIngestsKnownSensor(t *testing.T) {
	is := is.New(t)
	sensors := &fakeSensorLookup{sensor: types.Sensor{ID: "s1", Kind: types.SensorTEMHUM}}
	ingest := &fakeIngester{}
	p := newTestPool(sensors, noDevice(), ingest, &fakeStatusHandler{}, &fakeController{}, &fakeDiscoverer{})

	payload, err := json.Marshal(map[string]any{"temperatura": 26.2, "humedad": 43.0})
	is.NoErr(err)

	p.handle(context.Background(), mqtt.Frame{Topic: "Invernadero/temhum1", Payload: payload})

	is.Equal(ingest.calls, 1)
	is.Equal(ingest.last.Kind, normalizer.ResultSensor)
}

func TestHandleDropsInvalidSensorPayload(t *testing.T) {
	is := is.New(t)
	sensors := &fakeSensorLookup{sensor: types.Sensor{ID: "s1", Kind: types.SensorTEMHUM}}
	ingest := &fakeIngester{}
	p := newTestPool(sensors, noDevice(), ingest, &fakeStatusHandler{}, &fakeController{}, &fakeDiscoverer{})

	payload, err := json.Marshal(map[string]any{"unrelated": "field"})
	is.NoErr(err)

	p.handle(context.Background(), mqtt.Frame{Topic: "Invernadero/temhum1", Payload: payload})

	is.Equal(ingest.calls, 0)
}

// TestHandleRoutesKnownDeviceCommandTopicToActuator covers §8 Scenario 2:
// a legacy command payload on a known device's command topic must become a
// desired-state transition, not telemetry or an unknown-topic sample.
func TestHandleRoutesKnownDeviceCommandTopicToActuator(t *testing.T) {
	is := is.New(t)
	devices := &fakeDeviceLookup{device: types.Device{ID: "bomba_agua_01"}}
	control := &fakeController{}
	discovery := &fakeDiscoverer{}
	ingest := &fakeIngester{}
	p := newTestPool(&fakeSensorLookup{err: store.ErrNotFound}, devices, ingest, &fakeStatusHandler{}, control, discovery)

	payload, err := json.Marshal(map[string]any{"bombaSw": true})
	is.NoErr(err)

	p.handle(context.Background(), mqtt.Frame{Topic: "Invernadero/Bomba/sw", Payload: payload})

	is.Equal(control.calls, 1)
	is.Equal(control.deviceRef, "bomba_agua_01")
	is.Equal(control.verb, types.VerbTurnOn)
	is.Equal(ingest.calls, 0)
	is.Equal(discovery.calls, 0)
}

func TestHandleDropsInvalidDeviceCommandPayload(t *testing.T) {
	is := is.New(t)
	devices := &fakeDeviceLookup{device: types.Device{ID: "d1"}}
	control := &fakeController{}
	p := newTestPool(&fakeSensorLookup{err: store.ErrNotFound}, devices, &fakeIngester{}, &fakeStatusHandler{}, control, &fakeDiscoverer{})

	payload, err := json.Marshal(map[string]any{"unrelated": "field"})
	is.NoErr(err)

	p.handle(context.Background(), mqtt.Frame{Topic: "Invernadero/d1/sw", Payload: payload})

	is.Equal(control.calls, 0)
}

func TestShardForIsStableForSameTopic(t *testing.T) {
	is := is.New(t)
	a := shardFor("Invernadero/temhum1", 4)
	b := shardFor("Invernadero/temhum1", 4)
	is.Equal(a, b)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	is := is.New(t)
	p := newTestPool(&fakeSensorLookup{}, noDevice(), &fakeIngester{}, &fakeStatusHandler{}, &fakeController{}, &fakeDiscoverer{})

	ctx, cancel := context.WithCancel(context.Background())
	inbound := make(chan mqtt.Frame)

	done := make(chan struct{})
	go func() {
		p.Run(ctx, inbound)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	is.True(true)
}
