package api

import (
	"context"
	"time"

	"github.com/greenhouse/core/internal/pkg/actuator"
	"github.com/greenhouse/core/internal/pkg/application/eventbus"
	"github.com/greenhouse/core/internal/pkg/rules"
	"github.com/greenhouse/core/pkg/types"
)

// Store is the slice of store.Store the API surface needs. It is the full
// interface rather than a narrowed one, since query/mutation contracts
// cover nearly every entity in §3.
type Store interface {
	CreateUser(ctx context.Context, u types.User) (types.User, error)
	GetUser(ctx context.Context, id string) (types.User, error)
	UpdateUser(ctx context.Context, u types.User) (types.User, error)
	DeactivateUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]types.User, error)

	CreateSensor(ctx context.Context, s types.Sensor) (types.Sensor, error)
	GetSensor(ctx context.Context, id string) (types.Sensor, error)
	UpdateSensor(ctx context.Context, s types.Sensor) (types.Sensor, error)
	SoftDeleteSensor(ctx context.Context, id string) error
	ListSensors(ctx context.Context, onlyActive bool) ([]types.Sensor, error)
	ReadingHistory(ctx context.Context, sensorID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.Reading], error)

	CreateDevice(ctx context.Context, d types.Device) (types.Device, error)
	GetDevice(ctx context.Context, id string) (types.Device, error)
	UpdateDevice(ctx context.Context, d types.Device) (types.Device, error)
	SoftDeleteDevice(ctx context.Context, id string) error
	ListDevices(ctx context.Context, onlyActive bool) ([]types.Device, error)
	DeviceEventHistory(ctx context.Context, deviceID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.DeviceEvent], error)

	CreateRule(ctx context.Context, r types.Rule) (types.Rule, error)
	GetRule(ctx context.Context, id string) (types.Rule, error)
	UpdateRule(ctx context.Context, r types.Rule) (types.Rule, error)
	SoftDeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context, onlyEnabled bool) ([]types.Rule, error)
	RuleExecutionHistory(ctx context.Context, ruleID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.RuleExecution], error)

	GetNotification(ctx context.Context, id string) (types.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) (bool, error)
	NotificationHistory(ctx context.Context, recipientUserID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.Notification], error)

	CreateTemplate(ctx context.Context, t types.NotificationTemplate) (types.NotificationTemplate, error)
	GetTemplate(ctx context.Context, id string) (types.NotificationTemplate, error)
	ListTemplates(ctx context.Context) ([]types.NotificationTemplate, error)
}

// Queries implements the §4.J read-only, snapshot-consistent query surface.
type Queries struct {
	store Store
	roles *RoleChecker
}

func NewQueries(store Store, roles *RoleChecker) *Queries {
	return &Queries{store: store, roles: roles}
}

func (q *Queries) ListSensors(ctx context.Context, onlyActive bool) ([]types.Sensor, error) {
	if err := q.roles.require(ctx, "sensor.list"); err != nil {
		return nil, err
	}
	return q.store.ListSensors(ctx, onlyActive)
}

func (q *Queries) GetSensor(ctx context.Context, id string) (types.Sensor, error) {
	if err := q.roles.require(ctx, "sensor.get"); err != nil {
		return types.Sensor{}, err
	}
	return q.store.GetSensor(ctx, id)
}

func (q *Queries) ReadingHistory(ctx context.Context, sensorID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.Reading], error) {
	if err := q.roles.require(ctx, "reading.history"); err != nil {
		return types.Collection[types.Reading]{}, err
	}
	return q.store.ReadingHistory(ctx, sensorID, from, to, limit, cursor)
}

func (q *Queries) ListDevices(ctx context.Context, onlyActive bool) ([]types.Device, error) {
	if err := q.roles.require(ctx, "device.list"); err != nil {
		return nil, err
	}
	return q.store.ListDevices(ctx, onlyActive)
}

func (q *Queries) GetDevice(ctx context.Context, id string) (types.Device, error) {
	if err := q.roles.require(ctx, "device.get"); err != nil {
		return types.Device{}, err
	}
	return q.store.GetDevice(ctx, id)
}

func (q *Queries) DeviceEventHistory(ctx context.Context, deviceID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.DeviceEvent], error) {
	if err := q.roles.require(ctx, "device.eventHistory"); err != nil {
		return types.Collection[types.DeviceEvent]{}, err
	}
	return q.store.DeviceEventHistory(ctx, deviceID, from, to, limit, cursor)
}

func (q *Queries) ListRules(ctx context.Context, onlyEnabled bool) ([]types.Rule, error) {
	if err := q.roles.require(ctx, "rule.list"); err != nil {
		return nil, err
	}
	return q.store.ListRules(ctx, onlyEnabled)
}

func (q *Queries) GetRule(ctx context.Context, id string) (types.Rule, error) {
	if err := q.roles.require(ctx, "rule.get"); err != nil {
		return types.Rule{}, err
	}
	return q.store.GetRule(ctx, id)
}

func (q *Queries) RuleExecutionHistory(ctx context.Context, ruleID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.RuleExecution], error) {
	if err := q.roles.require(ctx, "rule.executionHistory"); err != nil {
		return types.Collection[types.RuleExecution]{}, err
	}
	return q.store.RuleExecutionHistory(ctx, ruleID, from, to, limit, cursor)
}

func (q *Queries) NotificationHistory(ctx context.Context, recipientUserID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.Notification], error) {
	if err := q.roles.require(ctx, "notification.history"); err != nil {
		return types.Collection[types.Notification]{}, err
	}
	return q.store.NotificationHistory(ctx, recipientUserID, from, to, limit, cursor)
}

func (q *Queries) ListUsers(ctx context.Context) ([]types.User, error) {
	if err := q.roles.require(ctx, "user.list"); err != nil {
		return nil, err
	}
	return q.store.ListUsers(ctx)
}

// Mutations implements the §4.J entity-CRUD and rule/device control
// mutation surface. Device control calls the Actuator; rule trigger/
// enable/disable are explicit mutations rather than generic updates.
type Mutations struct {
	store    Store
	roles    *RoleChecker
	actuator *actuator.Actuator
	rules    *rules.Engine
}

func NewMutations(store Store, roles *RoleChecker, act *actuator.Actuator, rulesEngine *rules.Engine) *Mutations {
	return &Mutations{store: store, roles: roles, actuator: act, rules: rulesEngine}
}

func (m *Mutations) CreateUser(ctx context.Context, u types.User) (types.User, error) {
	if err := m.roles.require(ctx, "user.create"); err != nil {
		return types.User{}, err
	}
	return m.store.CreateUser(ctx, u)
}

func (m *Mutations) DeactivateUser(ctx context.Context, id string) error {
	if err := m.roles.require(ctx, "user.deactivate"); err != nil {
		return err
	}
	return m.store.DeactivateUser(ctx, id)
}

func (m *Mutations) CreateSensor(ctx context.Context, s types.Sensor) (types.Sensor, error) {
	if err := m.roles.require(ctx, "sensor.create"); err != nil {
		return types.Sensor{}, err
	}
	return m.store.CreateSensor(ctx, s)
}

func (m *Mutations) UpdateSensor(ctx context.Context, s types.Sensor) (types.Sensor, error) {
	if err := m.roles.require(ctx, "sensor.update"); err != nil {
		return types.Sensor{}, err
	}
	return m.store.UpdateSensor(ctx, s)
}

func (m *Mutations) DeleteSensor(ctx context.Context, id string) error {
	if err := m.roles.require(ctx, "sensor.delete"); err != nil {
		return err
	}
	return m.store.SoftDeleteSensor(ctx, id)
}

func (m *Mutations) CreateDevice(ctx context.Context, d types.Device) (types.Device, error) {
	if err := m.roles.require(ctx, "device.create"); err != nil {
		return types.Device{}, err
	}
	return m.store.CreateDevice(ctx, d)
}

func (m *Mutations) UpdateDevice(ctx context.Context, d types.Device) (types.Device, error) {
	if err := m.roles.require(ctx, "device.update"); err != nil {
		return types.Device{}, err
	}
	return m.store.UpdateDevice(ctx, d)
}

func (m *Mutations) DeleteDevice(ctx context.Context, id string) error {
	if err := m.roles.require(ctx, "device.delete"); err != nil {
		return err
	}
	return m.store.SoftDeleteDevice(ctx, id)
}

// ControlDevice requires the operator role and delegates to the Actuator
// (§4.J: "Device control operations call the Actuator").
func (m *Mutations) ControlDevice(ctx context.Context, deviceRef string, verb types.ControlVerb, setValue *float64, durationSeconds int) error {
	if err := m.roles.require(ctx, "device.control"); err != nil {
		return err
	}
	return m.actuator.Control(ctx, deviceRef, verb, setValue, durationSeconds)
}

func (m *Mutations) CreateRule(ctx context.Context, r types.Rule) (types.Rule, error) {
	if err := m.roles.require(ctx, "rule.create"); err != nil {
		return types.Rule{}, err
	}
	return m.store.CreateRule(ctx, r)
}

func (m *Mutations) UpdateRule(ctx context.Context, r types.Rule) (types.Rule, error) {
	if err := m.roles.require(ctx, "rule.update"); err != nil {
		return types.Rule{}, err
	}
	return m.store.UpdateRule(ctx, r)
}

func (m *Mutations) DeleteRule(ctx context.Context, id string) error {
	if err := m.roles.require(ctx, "rule.delete"); err != nil {
		return err
	}
	return m.store.SoftDeleteRule(ctx, id)
}

// TriggerRule is the explicit manual-trigger mutation (§4.J), delegating to
// the Rules Engine's cooldown-only bypass path.
func (m *Mutations) TriggerRule(ctx context.Context, ruleID string) (types.RuleExecution, error) {
	if err := m.roles.require(ctx, "rule.trigger"); err != nil {
		return types.RuleExecution{}, err
	}
	return m.rules.ManualTrigger(ctx, ruleID)
}

func (m *Mutations) SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) (types.Rule, error) {
	op := "rule.enable"
	if !enabled {
		op = "rule.disable"
	}
	if err := m.roles.require(ctx, op); err != nil {
		return types.Rule{}, err
	}
	r, err := m.store.GetRule(ctx, ruleID)
	if err != nil {
		return types.Rule{}, err
	}
	r.Enabled = enabled
	return m.store.UpdateRule(ctx, r)
}

func (m *Mutations) CreateTemplate(ctx context.Context, t types.NotificationTemplate) (types.NotificationTemplate, error) {
	if err := m.roles.require(ctx, "template.create"); err != nil {
		return types.NotificationTemplate{}, err
	}
	return m.store.CreateTemplate(ctx, t)
}

func (m *Mutations) MarkNotificationRead(ctx context.Context, id string) (bool, error) {
	if err := m.roles.require(ctx, "notification.markRead"); err != nil {
		return false, err
	}
	return m.store.MarkNotificationRead(ctx, id)
}

// Subscriptions implements the §4.J "one per Event Bus topic plus filtered
// variants" surface by handing back a live bus Subscription; the caller
// (e.g. a GraphQL resolver or the webbridge SSE handler) drains Sub.C and
// applies any sensorKind/deviceId filter itself, since the bus has no
// concept of per-subscriber filters (§4.A).
type Subscriptions struct {
	bus   *eventbus.Bus
	roles *RoleChecker
}

func NewSubscriptions(bus *eventbus.Bus, roles *RoleChecker) *Subscriptions {
	return &Subscriptions{bus: bus, roles: roles}
}

func (s *Subscriptions) Subscribe(ctx context.Context, topic eventbus.Topic) (*eventbus.Subscription, error) {
	if err := s.roles.require(ctx, "subscription."+string(topic)); err != nil {
		return nil, err
	}
	return s.bus.Subscribe(topic), nil
}
