package rules

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/greenhouse/core/internal/pkg/application/eventbus"
	"github.com/greenhouse/core/pkg/types"
)

type fakeStore struct {
	rules      map[string]types.Rule
	executions []types.RuleExecution
	execCount  int
}

func newFakeStore(rules ...types.Rule) *fakeStore {
	m := make(map[string]types.Rule, len(rules))
	for _, r := range rules {
		m[r.ID] = r
	}
	return &fakeStore{rules: m}
}

func (f *fakeStore) GetRule(_ context.Context, id string) (types.Rule, error) {
	r, ok := f.rules[id]
	if !ok {
		return types.Rule{}, context.Canceled
	}
	return r, nil
}

func (f *fakeStore) ListRules(_ context.Context, onlyEnabled bool) ([]types.Rule, error) {
	out := make([]types.Rule, 0, len(f.rules))
	for _, r := range f.rules {
		if onlyEnabled && !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) UpdateRule(_ context.Context, r types.Rule) (types.Rule, error) {
	f.rules[r.ID] = r
	return r, nil
}

func (f *fakeStore) AppendRuleExecution(_ context.Context, e types.RuleExecution) (types.RuleExecution, error) {
	f.executions = append(f.executions, e)
	return e, nil
}

func (f *fakeStore) CountRuleExecutionsSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.execCount, nil
}

type fakeSensors struct {
	readings map[string]types.Reading
}

func (f *fakeSensors) LatestReading(_ context.Context, sensorID string) (types.Reading, error) {
	r, ok := f.readings[sensorID]
	if !ok {
		return types.Reading{}, context.Canceled
	}
	return r, nil
}

type fakeDevices struct {
	devices map[string]types.Device
}

func (f *fakeDevices) GetDevice(_ context.Context, id string) (types.Device, error) {
	d, ok := f.devices[id]
	if !ok {
		return types.Device{}, context.Canceled
	}
	return d, nil
}

type fakeDeviceControl struct {
	calls []string
	err   error
}

func (f *fakeDeviceControl) Control(_ context.Context, deviceRef string, _ types.ControlVerb, _ *float64, _ int) error {
	f.calls = append(f.calls, deviceRef)
	return f.err
}

type fakeNotifier struct{ sent int }

func (f *fakeNotifier) Send(_ context.Context, _ types.RuleAction, _ map[string]any) error {
	f.sent++
	return nil
}

type fakeWebhook struct{ sent int }

func (f *fakeWebhook) Send(_ context.Context, _ string, _ string, _ map[string]any) error {
	f.sent++
	return nil
}

func newTestEngine(store Store, sensors SensorReader, devices DeviceReader, dc DeviceControl, n Notifier, wh WebhookSender) *Engine {
	bus := eventbus.New(zerolog.Nop())
	return New(Config{}, store, sensors, devices, bus, dc, n, wh, zerolog.Nop())
}

func TestEvalSensorLeafTrueWhenThresholdCrossed(t *testing.T) {
	is := is.New(t)

	sensors := &fakeSensors{readings: map[string]types.Reading{
		"s1": {SensorID: "s1", ReceivedAt: time.Now().UTC(), Normalized: map[string]any{"temperatura": 35.0}},
	}}
	eng := newTestEngine(newFakeStore(), sensors, &fakeDevices{}, &fakeDeviceControl{}, &fakeNotifier{}, &fakeWebhook{})

	node := types.ConditionNode{Kind: types.NodeSensor, SensorRef: "s1", Field: "temperatura", Operator: types.OpGT, Value: 30}
	trigger := map[string]any{}
	is.True(eng.evalNode(context.Background(), node, time.Now().UTC(), trigger))
	is.Equal(trigger["sensor.s1.temperatura"], 35.0)
}

func TestEvalSensorLeafUnknownWhenStale(t *testing.T) {
	is := is.New(t)

	sensors := &fakeSensors{readings: map[string]types.Reading{
		"s1": {SensorID: "s1", ReceivedAt: time.Now().Add(-time.Hour), Normalized: map[string]any{"temperatura": 35.0}},
	}}
	eng := newTestEngine(newFakeStore(), sensors, &fakeDevices{}, &fakeDeviceControl{}, &fakeNotifier{}, &fakeWebhook{})

	node := types.ConditionNode{Kind: types.NodeSensor, SensorRef: "s1", Field: "temperatura", Operator: types.OpGT, Value: 30, MaxAgeSeconds: 60}
	is.True(!eng.evalNode(context.Background(), node, time.Now().UTC(), map[string]any{}))
}

func TestEvalTimeLeafWrapAroundWindow(t *testing.T) {
	is := is.New(t)

	eng := newTestEngine(newFakeStore(), &fakeSensors{}, &fakeDevices{}, &fakeDeviceControl{}, &fakeNotifier{}, &fakeWebhook{})
	node := types.ConditionNode{Kind: types.NodeTime, Start: "22:00", End: "06:00"}

	loc := time.UTC
	night := time.Date(2026, 1, 1, 23, 30, 0, 0, loc)
	day := time.Date(2026, 1, 1, 12, 0, 0, 0, loc)

	is.True(eng.evalNode(context.Background(), node, night, map[string]any{}))
	is.True(!eng.evalNode(context.Background(), node, day, map[string]any{}))
}

func TestEvalAndOrNotEmptyChildren(t *testing.T) {
	is := is.New(t)

	eng := newTestEngine(newFakeStore(), &fakeSensors{}, &fakeDevices{}, &fakeDeviceControl{}, &fakeNotifier{}, &fakeWebhook{})

	is.True(eng.evalNode(context.Background(), types.ConditionNode{Kind: types.NodeAnd}, time.Now(), map[string]any{}))
	is.True(!eng.evalNode(context.Background(), types.ConditionNode{Kind: types.NodeOr}, time.Now(), map[string]any{}))
}

func TestEvalDeviceLeafIgnoresOptimisticDuringSelfTriggerGuard(t *testing.T) {
	is := is.New(t)

	devices := &fakeDevices{devices: map[string]types.Device{
		"d1": {ID: "d1", Status: types.DeviceOn},
	}}
	eng := newTestEngine(newFakeStore(), &fakeSensors{}, devices, &fakeDeviceControl{}, &fakeNotifier{}, &fakeWebhook{})

	now := time.Now().UTC()
	eng.markSelfTrigger("d1", now)

	node := types.ConditionNode{Kind: types.NodeDevice, DeviceRef: "d1", StateEquals: types.DeviceOn, UseOptimistic: true}
	is.True(!eng.evalNode(context.Background(), node, now.Add(100*time.Millisecond), map[string]any{}))
	is.True(eng.evalNode(context.Background(), node, now.Add(time.Second), map[string]any{}))
}

func TestTriggerExecutesActionsAndRecordsExecution(t *testing.T) {
	is := is.New(t)

	rule := types.Rule{ID: "r1", Enabled: true, Actions: []types.RuleAction{
		{Kind: types.ActionDeviceControl, DeviceRef: "d1", Verb: types.VerbTurnOn},
		{Kind: types.ActionNotification, Title: "hot"},
	}}
	store := newFakeStore(rule)
	dc := &fakeDeviceControl{}
	notifier := &fakeNotifier{}
	eng := newTestEngine(store, &fakeSensors{}, &fakeDevices{}, dc, notifier, &fakeWebhook{})

	exec, err := eng.trigger(context.Background(), rule, time.Now().UTC(), map[string]any{"k": "v"}, false)
	is.NoErr(err)
	is.True(exec.Success)
	is.Equal(len(exec.ActionsExecuted), 2)
	is.Equal(len(dc.calls), 1)
	is.Equal(notifier.sent, 1)
	is.Equal(len(store.executions), 1)
	is.Equal(store.rules["r1"].TriggerCount, 1)
}

func TestTriggerSkipsWhenMaxExecutionsPerHourExceeded(t *testing.T) {
	is := is.New(t)

	max := 2
	rule := types.Rule{ID: "r1", Enabled: true, MaxExecutionsPerHour: &max}
	store := newFakeStore(rule)
	store.execCount = 2
	eng := newTestEngine(store, &fakeSensors{}, &fakeDevices{}, &fakeDeviceControl{}, &fakeNotifier{}, &fakeWebhook{})

	_, err := eng.trigger(context.Background(), rule, time.Now().UTC(), map[string]any{}, false)
	is.Equal(err, ErrRateExceeded)
	is.Equal(len(store.executions), 0)
}

func TestCandidateRulesOrdersByPriorityThenAge(t *testing.T) {
	is := is.New(t)

	now := time.Now().UTC()
	rules := []types.Rule{
		{ID: "b", Enabled: true, Priority: 5, LastTriggeredAt: now.Add(-2 * time.Hour)},
		{ID: "a", Enabled: true, Priority: 10, LastTriggeredAt: now.Add(-time.Hour)},
		{ID: "c", Enabled: false, Priority: 20},
	}
	out := candidateRules(rules, now)
	is.Equal(len(out), 2)
	is.Equal(out[0].ID, "a")
	is.Equal(out[1].ID, "b")
}

func TestManualTriggerBypassesConditionsButNotCooldown(t *testing.T) {
	is := is.New(t)

	rule := types.Rule{ID: "r1", Enabled: true, CooldownSeconds: 3600, LastTriggeredAt: time.Now().UTC().Add(-time.Minute)}
	store := newFakeStore(rule)
	eng := newTestEngine(store, &fakeSensors{}, &fakeDevices{}, &fakeDeviceControl{}, &fakeNotifier{}, &fakeWebhook{})

	_, err := eng.ManualTrigger(context.Background(), "r1")
	is.Equal(err, ErrCooldownActive)
}
