package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/greenhouse/core/internal/pkg/application/eventbus"
	"github.com/greenhouse/core/pkg/types"
)

type fakeStore struct {
	mu        sync.Mutex
	created   []types.Notification
	statuses  map[string]types.DeliveryStatus
	templates map[string]types.NotificationTemplate
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: map[string]types.DeliveryStatus{}, templates: map[string]types.NotificationTemplate{}}
}

func (f *fakeStore) CreateNotification(_ context.Context, n types.Notification) (types.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, n)
	return n, nil
}

func (f *fakeStore) UpdateNotificationDeliveryStatus(_ context.Context, id string, status types.DeliveryStatus, _ *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeStore) GetTemplate(_ context.Context, id string) (types.NotificationTemplate, error) {
	t, ok := f.templates[id]
	if !ok {
		return types.NotificationTemplate{}, errors.New("not found")
	}
	return t, nil
}

type fakeDeliverer struct {
	mu        sync.Mutex
	attempts  int
	failUntil int
	payloads  []map[string]any
	deadlines []time.Time
}

func (f *fakeDeliverer) Deliver(ctx context.Context, _, _ string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	f.payloads = append(f.payloads, payload)
	if dl, ok := ctx.Deadline(); ok {
		f.deadlines = append(f.deadlines, dl)
	}
	if f.attempts <= f.failUntil {
		return errors.New("refused")
	}
	return nil
}

func newTestNotifier(store Store, deliverer Deliverer, cfg Config) (*Notifier, *eventbus.Bus) {
	bus := eventbus.New(zerolog.Nop())
	return &Notifier{
		cfg:          cfg.withDefaults(),
		log:          zerolog.Nop(),
		store:        store,
		bus:          bus,
		deliverer:    deliverer,
		channelLocks: make(map[types.NotificationChannel]*sync.Mutex),
	}, bus
}

func TestRenderInterpolatesKnownVarsAndTimestamp(t *testing.T) {
	is := is.New(t)

	vars := map[string]string{"sensorName": "Tank A"}
	out := render("{{sensorName}} breached at {{timestamp}}, {{unknown}}!", vars, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	is.True(out == "Tank A breached at 2026-01-01T00:00:00Z, !")
}

func TestMergeVarsPrecedenceTriggerDataOverActionOverDefaults(t *testing.T) {
	is := is.New(t)

	defaults := map[string]string{"a": "default-a", "b": "default-b"}
	action := map[string]string{"a": "action-a"}
	trigger := map[string]any{"a": "trigger-a"}

	merged := mergeVars(trigger, action, defaults)
	is.Equal(merged["a"], "trigger-a")
	is.Equal(merged["b"], "default-b")
}

func TestSendCreatesOnePendingNotificationPerChannelAndDelivers(t *testing.T) {
	is := is.New(t)

	store := newFakeStore()
	deliverer := &fakeDeliverer{}
	n, bus := newTestNotifier(store, deliverer, Config{})

	sub := bus.Subscribe(eventbus.TopicNotificationCreated)
	defer sub.Close()

	action := types.RuleAction{
		Kind: types.ActionNotification, Title: "Alert: {{sensor}}", BodyTemplate: "value is {{value}}",
		Channels:  []types.NotificationChannel{types.ChannelWebhook, types.ChannelEmail},
		Variables: map[string]string{"sensor": "tank-a"},
	}
	err := n.Send(context.Background(), action, map[string]any{"value": "42"})
	is.NoErr(err)

	is.Equal(len(store.created), 2)
	is.Equal(store.created[0].Title, "Alert: tank-a")
	is.Equal(store.created[0].Body, "value is 42")
	is.Equal(store.statuses[store.created[0].ID], types.DeliverySent)
	is.Equal(store.statuses[store.created[1].ID], types.DeliverySent)

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("expected notification.created to be published")
	}
}

func TestDeliverRetriesWithBackoffThenSucceeds(t *testing.T) {
	is := is.New(t)

	store := newFakeStore()
	deliverer := &fakeDeliverer{failUntil: 1}
	n, _ := newTestNotifier(store, deliverer, Config{RetryCount: 1})

	notif := types.Notification{ID: "n1", Channel: types.ChannelWebhook, DeliveryStatus: types.DeliveryPending}
	err := n.deliver(context.Background(), notif)
	is.NoErr(err)
	is.Equal(deliverer.attempts, 2)
	is.Equal(store.statuses["n1"], types.DeliverySent)
}

// TestDeliverBoundsEachAttemptWithAWebhookTimeout confirms §5's per-call
// webhook budget (10s) is applied to the context handed to the Deliverer,
// not left to the HTTP client's own (absent) default.
func TestDeliverBoundsEachAttemptWithAWebhookTimeout(t *testing.T) {
	is := is.New(t)

	store := newFakeStore()
	deliverer := &fakeDeliverer{}
	n, _ := newTestNotifier(store, deliverer, Config{})

	notif := types.Notification{ID: "n3", Channel: types.ChannelWebhook, DeliveryStatus: types.DeliveryPending}
	is.NoErr(n.deliver(context.Background(), notif))

	is.Equal(len(deliverer.deadlines), 1)
	is.True(time.Until(deliverer.deadlines[0]) <= webhookTimeout)
	is.True(time.Until(deliverer.deadlines[0]) > 0)
}

func TestDeliverExhaustsRetriesAndMarksFailed(t *testing.T) {
	is := is.New(t)

	store := newFakeStore()
	deliverer := &fakeDeliverer{failUntil: 99}
	n, bus := newTestNotifier(store, deliverer, Config{RetryCount: 1})

	sub := bus.Subscribe(eventbus.TopicNotificationUpdated)
	defer sub.Close()

	notif := types.Notification{ID: "n2", Channel: types.ChannelWebhook, DeliveryStatus: types.DeliveryPending}
	err := n.deliver(context.Background(), notif)
	is.True(err != nil)
	is.Equal(deliverer.attempts, 2)
	is.Equal(store.statuses["n2"], types.DeliveryFailed)

	select {
	case msg := <-sub.C:
		evt := msg.Payload.(*types.NotificationUpdated)
		is.Equal(evt.DeliveryStatus, types.DeliveryFailed)
	case <-time.After(time.Second):
		t.Fatal("expected notification.updated to be published")
	}
}

func TestNotifyDeviceStateChangeCreatesNotification(t *testing.T) {
	is := is.New(t)

	store := newFakeStore()
	n, _ := newTestNotifier(store, &fakeDeliverer{}, Config{})

	device := types.Device{ID: "d1", Name: "Pump"}
	err := n.NotifyDeviceStateChange(context.Background(), device, types.DeviceOff, types.DeviceOn)
	is.NoErr(err)
	is.Equal(len(store.created), 1)
	is.Equal(store.created[0].Kind, "device-state-change")
}
