package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/greenhouse/core/pkg/types"
)

type fakeSensors struct {
	created []types.Sensor
}

func (f *fakeSensors) CreateSensor(_ context.Context, s types.Sensor) (types.Sensor, error) {
	f.created = append(f.created, s)
	return s, nil
}

type fakeDevices struct {
	created []types.Device
}

func (f *fakeDevices) CreateDevice(_ context.Context, d types.Device) (types.Device, error) {
	f.created = append(f.created, d)
	return d, nil
}

func TestAutoDiscoversWaterQualitySensor(t *testing.T) {
	is := is.New(t)

	sensors := &fakeSensors{}
	devices := &fakeDevices{}
	eng := New(Config{}, sensors, devices, zerolog.Nop())

	now := time.Now().UTC()
	payload := map[string]any{"ph": 5.0, "ec": 1000.0, "ppm": 1000.0, "temp": 18.0, "rssi": -70.0}
	for i := 0; i < 3; i++ {
		eng.Observe(context.Background(), "Invernadero/Agua/data", payload, now.Add(time.Duration(i)*time.Second))
	}

	is.Equal(len(sensors.created), 1)
	is.Equal(sensors.created[0].HardwareID, "agua")
	is.Equal(sensors.created[0].Kind, types.SensorWaterQuality)
	is.True(sensors.created[0].Configuration.AutoDiscovered)
}

func TestAutoDiscoversHeaterDeviceWithCorrectCanonicalKind(t *testing.T) {
	is := is.New(t)

	sensors := &fakeSensors{}
	devices := &fakeDevices{}
	eng := New(Config{}, sensors, devices, zerolog.Nop())

	now := time.Now().UTC()
	payload := map[string]any{"calefactorSw": true}
	for i := 0; i < 3; i++ {
		eng.Observe(context.Background(), "Invernadero/Calefactor/sw", payload, now.Add(time.Duration(i)*time.Second))
	}

	is.Equal(len(devices.created), 1)
	d := devices.created[0]
	is.Equal(d.Kind, types.DeviceHeater)
	is.Equal(d.Configuration.DetectedKind, "heater")
	is.Equal(d.Configuration.CanonicalKind, "HEATER")
	is.Equal(d.MQTTCommandTopic, "Invernadero/Calefactor/sw")
}

func TestLowScoringTopicIsRejectedAndNotCreated(t *testing.T) {
	is := is.New(t)

	sensors := &fakeSensors{}
	devices := &fakeDevices{}
	eng := New(Config{}, sensors, devices, zerolog.Nop())

	now := time.Now().UTC()
	// Ambiguous single numeric field, no vocabulary overlap, no topic hint.
	payload := map[string]any{"x": 42.0}
	for i := 0; i < 3; i++ {
		eng.Observe(context.Background(), "Invernadero/Mystery/foo", payload, now.Add(time.Duration(i)*time.Second))
	}

	is.Equal(len(sensors.created), 0)
	is.Equal(len(devices.created), 0)

	status, ok := eng.Status("Invernadero/Mystery/foo")
	is.True(ok)
	is.Equal(status.Status, types.SampleRejected)
}

func TestEachObservedTopicProducesExactlyOneDecision(t *testing.T) {
	is := is.New(t)

	eng := New(Config{}, &fakeSensors{}, &fakeDevices{}, zerolog.Nop())
	now := time.Now().UTC()
	payload := map[string]any{"temperatura": 25.0, "humedad": 40.0}

	for i := 0; i < 3; i++ {
		eng.Observe(context.Background(), "Invernadero/TemHumX/data", payload, now.Add(time.Duration(i)*time.Second))
	}

	status, ok := eng.Status("Invernadero/TemHumX/data")
	is.True(ok)
	is.True(status.Status == types.SampleAutoCreated || status.Status == types.SampleAnalyzing || status.Status == types.SampleRejected)
}
