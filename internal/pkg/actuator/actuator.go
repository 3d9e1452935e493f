package actuator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/greenhouse/core/internal/pkg/application/eventbus"
	"github.com/greenhouse/core/internal/pkg/normalizer"
	"github.com/greenhouse/core/pkg/types"
)

// publishRetries/publishRetryDelay implement §4.C "publish failure retries
// up to 3 times with backoff, then surfaces as a device ERROR state
// transition candidate (H decides)" — the same lo.AttemptWithDelay shape
// transport/mqtt.Transport.Publish uses for its own outbound retries.
const (
	publishRetries    = 3
	publishRetryDelay = 200 * time.Millisecond
)

// Store is the narrow slice of store.Store the Actuator needs.
type Store interface {
	GetDevice(ctx context.Context, id string) (types.Device, error)
	GetDeviceByStatusTopic(ctx context.Context, topic string) (types.Device, error)
	UpdateDevice(ctx context.Context, d types.Device) (types.Device, error)
	AppendDeviceEvent(ctx context.Context, e types.DeviceEvent) (types.DeviceEvent, error)
}

// Publisher is the MQTT Transport's outbound side.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
}

// Bus is the narrow slice of eventbus.Bus the Actuator needs.
type Bus interface {
	Publish(ctx context.Context, topic eventbus.Topic, payload any)
}

// CompanionNotifier backs the implicit companion Notification a
// device-control action emits when the Device has notificationsEnabled
// (§4.I, last paragraph: "this coupling lives in the Actuator's post-hook").
type CompanionNotifier interface {
	NotifyDeviceStateChange(ctx context.Context, device types.Device, previous, next types.DeviceStatus) error
}

type pendingRequest struct {
	deviceID string
	timer    *time.Timer
}

// Actuator is the Actuator component (§4.H).
type Actuator struct {
	cfg Config
	log zerolog.Logger

	store     Store
	publisher Publisher
	bus       Bus
	notifier  CompanionNotifier

	deviceLocksMu sync.Mutex
	deviceLocks   map[string]*sync.Mutex

	pendingMu      sync.Mutex
	pendingByID    map[string]*pendingRequest
	latestByDevice map[string]string
}

func New(cfg Config, store Store, publisher Publisher, bus Bus, notifier CompanionNotifier, log zerolog.Logger) *Actuator {
	return &Actuator{
		cfg:            cfg.withDefaults(),
		log:            log.With().Str("component", "actuator").Logger(),
		store:          store,
		publisher:      publisher,
		bus:            bus,
		notifier:       notifier,
		deviceLocks:    make(map[string]*sync.Mutex),
		pendingByID:    make(map[string]*pendingRequest),
		latestByDevice: make(map[string]string),
	}
}

// Control implements rules.DeviceControl: resolve the device, compute the
// desired status, optimistically update it, publish the canonical command,
// and schedule a reverse command and ack timeout as needed (§4.H).
func (a *Actuator) Control(ctx context.Context, deviceRef string, verb types.ControlVerb, setValue *float64, durationSeconds int) error {
	lock := a.lockFor(deviceRef)
	lock.Lock()
	defer lock.Unlock()

	device, err := a.store.GetDevice(ctx, deviceRef)
	if err != nil {
		return ErrUnknownDevice
	}

	desired := desiredState(device.Status, verb, setValue)
	previous := device.Status
	newValue := boolToStatus(desired)
	now := time.Now().UTC()
	requestID := uuid.NewString()

	device.Status = newValue
	device.Confirmed = false
	if _, err := a.store.UpdateDevice(ctx, device); err != nil {
		return err
	}

	if _, err := a.store.AppendDeviceEvent(ctx, types.DeviceEvent{
		ID: uuid.NewString(), DeviceID: device.ID, RequestID: requestID,
		PreviousValue: previous, NewValue: newValue, Optimistic: true, ObservedAt: now,
	}); err != nil {
		a.log.Error().Err(err).Str("deviceId", device.ID).Msg("could not append optimistic device event")
	}

	body, err := json.Marshal(buildCommandPayload(device, desired, requestID, now, durationSeconds, setValue))
	if err != nil {
		return err
	}
	if err := a.publishWithRetry(ctx, device.MQTTCommandTopic, body); err != nil {
		a.markDeviceError(ctx, device.ID, requestID)
		return err
	}

	a.registerPending(device.ID, requestID)

	if durationSeconds > 0 {
		reverseVerb := oppositeVerb(newValue)
		time.AfterFunc(time.Duration(durationSeconds)*time.Second, func() {
			if err := a.Control(context.Background(), deviceRef, reverseVerb, nil, 0); err != nil {
				a.log.Error().Err(err).Str("deviceId", device.ID).Msg("reverse command failed")
			}
		})
	}

	if device.NotificationsEnabled && a.notifier != nil {
		if err := a.notifier.NotifyDeviceStateChange(ctx, device, previous, newValue); err != nil {
			a.log.Error().Err(err).Str("deviceId", device.ID).Msg("companion notification failed")
		}
	}

	return nil
}

// HandleStatusReply upgrades a device from optimistic to authoritative
// status on a reply received on its mqttStatusTopic, correlated by
// requestId when present, otherwise by the latest pending request for that
// device (§4.H.6).
func (a *Actuator) HandleStatusReply(ctx context.Context, topic string, payload []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return err
	}

	n, err := normalizer.NormalizeCommand(raw)
	if err != nil {
		return err
	}

	device, err := a.store.GetDeviceByStatusTopic(ctx, topic)
	if err != nil {
		return ErrUnknownDevice
	}

	requestID, _ := raw["requestId"].(string)
	a.resolvePending(device.ID, requestID)

	previous := device.Status
	newValue := boolToStatus(n.DesiredOn)
	now := time.Now().UTC()

	device.Status = newValue
	device.Confirmed = true
	device.LastConfirmedAt = now
	if _, err := a.store.UpdateDevice(ctx, device); err != nil {
		return err
	}

	if _, err := a.store.AppendDeviceEvent(ctx, types.DeviceEvent{
		ID: uuid.NewString(), DeviceID: device.ID, RequestID: requestID,
		PreviousValue: previous, NewValue: newValue, Optimistic: false, ObservedAt: now,
	}); err != nil {
		a.log.Error().Err(err).Str("deviceId", device.ID).Msg("could not append confirmed device event")
	}

	a.bus.Publish(ctx, eventbus.TopicDeviceStateChanged, &types.DeviceStateChanged{
		DeviceID: device.ID, RequestID: requestID, PreviousValue: previous,
		NewValue: newValue, Optimistic: false, ObservedAt: now,
	})
	return nil
}

func (a *Actuator) registerPending(deviceID, requestID string) {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()

	timer := time.AfterFunc(a.cfg.AckTimeout, func() { a.onAckTimeout(deviceID, requestID) })
	a.pendingByID[requestID] = &pendingRequest{deviceID: deviceID, timer: timer}
	a.latestByDevice[deviceID] = requestID
}

func (a *Actuator) resolvePending(deviceID, requestID string) {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()

	id := requestID
	if id == "" {
		id = a.latestByDevice[deviceID]
	}
	if id == "" {
		return
	}
	if entry, ok := a.pendingByID[id]; ok {
		entry.timer.Stop()
		delete(a.pendingByID, id)
	}
	if a.latestByDevice[deviceID] == id {
		delete(a.latestByDevice, deviceID)
	}
}

// onAckTimeout marks the device ERROR when no status reply arrived within
// ackTimeout (§4.H.6). A no-op if the request was already resolved.
func (a *Actuator) onAckTimeout(deviceID, requestID string) {
	a.pendingMu.Lock()
	_, ok := a.pendingByID[requestID]
	if ok {
		delete(a.pendingByID, requestID)
	}
	if a.latestByDevice[deviceID] == requestID {
		delete(a.latestByDevice, deviceID)
	}
	a.pendingMu.Unlock()
	if !ok {
		return
	}

	a.markDeviceError(context.Background(), deviceID, requestID)
}

// publishWithRetry sends the command body up to publishRetries times with
// publishRetryDelay between attempts (§4.C), mirroring
// transport/mqtt.Transport.Publish's own retry shape at this layer so a
// Publisher that does not retry on its own still gets the spec's 3-attempt
// guarantee before the device is marked ERROR.
func (a *Actuator) publishWithRetry(ctx context.Context, topic string, body []byte) error {
	_, _, err := lo.AttemptWithDelay(publishRetries, publishRetryDelay, func(_ int, _ time.Duration) error {
		return a.publisher.Publish(ctx, topic, 1, body)
	})
	return err
}

// markDeviceError transitions deviceID to ERROR and publishes
// device.state.changed, used both when no status reply arrives within
// ackTimeout and when an outbound command publish exhausts its retries
// (§4.C's "surfaces as a device ERROR state transition candidate (H
// decides)", §4.H.6).
func (a *Actuator) markDeviceError(ctx context.Context, deviceID, requestID string) {
	device, err := a.store.GetDevice(ctx, deviceID)
	if err != nil {
		return
	}
	if device.Status == types.DeviceError {
		return
	}

	previous := device.Status
	device.Status = types.DeviceError
	device.Confirmed = false
	if _, err := a.store.UpdateDevice(ctx, device); err != nil {
		a.log.Error().Err(err).Str("deviceId", deviceID).Msg("could not mark device ERROR")
		return
	}

	now := time.Now().UTC()
	if _, err := a.store.AppendDeviceEvent(ctx, types.DeviceEvent{
		ID: uuid.NewString(), DeviceID: deviceID, RequestID: requestID,
		PreviousValue: previous, NewValue: types.DeviceError, Optimistic: false, ObservedAt: now,
	}); err != nil {
		a.log.Error().Err(err).Str("deviceId", deviceID).Msg("could not append ERROR device event")
	}

	a.bus.Publish(ctx, eventbus.TopicDeviceStateChanged, &types.DeviceStateChanged{
		DeviceID: deviceID, RequestID: requestID, PreviousValue: previous,
		NewValue: types.DeviceError, Optimistic: false, ObservedAt: now,
	})
}

func (a *Actuator) lockFor(deviceRef string) *sync.Mutex {
	a.deviceLocksMu.Lock()
	defer a.deviceLocksMu.Unlock()

	l, ok := a.deviceLocks[deviceRef]
	if !ok {
		l = &sync.Mutex{}
		a.deviceLocks[deviceRef] = l
	}
	return l
}

// desiredState implements the §4.H.2 verb table. SET's domain-specific
// mapping is resolved here as "nonzero is on" (DESIGN.md Open Question).
func desiredState(current types.DeviceStatus, verb types.ControlVerb, setValue *float64) bool {
	switch verb {
	case types.VerbTurnOn:
		return true
	case types.VerbTurnOff:
		return false
	case types.VerbToggle:
		return current != types.DeviceOn
	case types.VerbSet:
		return setValue != nil && *setValue != 0
	default:
		return false
	}
}

func boolToStatus(on bool) types.DeviceStatus {
	if on {
		return types.DeviceOn
	}
	return types.DeviceOff
}

func oppositeVerb(status types.DeviceStatus) types.ControlVerb {
	if status == types.DeviceOn {
		return types.VerbTurnOff
	}
	return types.VerbTurnOn
}

// buildCommandPayload builds the canonical command (§6): { estado, requestId,
// requestedAt, durationSeconds?, value? }, plus a legacy compatibility alias
// when the device was created from a legacy topic.
func buildCommandPayload(device types.Device, desired bool, requestID string, now time.Time, durationSeconds int, setValue *float64) map[string]any {
	payload := map[string]any{
		"estado":      desired,
		"requestId":   requestID,
		"requestedAt": now.Format(time.RFC3339Nano),
	}
	if durationSeconds > 0 {
		payload["durationSeconds"] = durationSeconds
	}
	if setValue != nil {
		payload["value"] = *setValue
	}
	if device.Configuration.LegacyTopic && device.Configuration.LegacyField != "" {
		payload[device.Configuration.LegacyField] = desired
	}
	return payload
}
