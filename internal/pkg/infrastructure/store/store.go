// Package store is the Store component (§4.B): a neutral persistence
// contract with no domain meaning of its own. Grounded on the teacher's
// infrastructure/repositories/database.Datastore interface and gorm+sqlite
// connector, generalized from one entity (Device) to the full data model.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/greenhouse/core/pkg/types"
	"gorm.io/gorm"
)

//go:generate moq -rm -out store_mock.go . Store

// Store exposes typed create/update/soft-delete/query operations per
// entity, append for Reading and RuleExecution, and cursor-paginated
// history reads. Every method is read-your-writes consistent within its
// own call because each call opens (at most) one gorm session.
type Store interface {
	// Ping reports whether the underlying database connection is reachable,
	// for the §6 health signal.
	Ping(ctx context.Context) error

	// Users
	CreateUser(ctx context.Context, u types.User) (types.User, error)
	GetUserByUsername(ctx context.Context, username string) (types.User, error)
	GetUser(ctx context.Context, id string) (types.User, error)
	UpdateUser(ctx context.Context, u types.User) (types.User, error)
	DeactivateUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]types.User, error)

	// Sensors
	CreateSensor(ctx context.Context, s types.Sensor) (types.Sensor, error)
	GetSensor(ctx context.Context, id string) (types.Sensor, error)
	GetSensorByHardwareID(ctx context.Context, hardwareID string) (types.Sensor, error)
	GetSensorByTopic(ctx context.Context, topic string) (types.Sensor, error)
	UpdateSensor(ctx context.Context, s types.Sensor) (types.Sensor, error)
	SoftDeleteSensor(ctx context.Context, id string) error
	ListSensors(ctx context.Context, onlyActive bool) ([]types.Sensor, error)
	UpdateSensorLiveness(ctx context.Context, id string, lastSeen time.Time, online bool) error
	UpdateSensorStats(ctx context.Context, id string, stats map[string]types.Stats) error

	// Readings
	AppendReading(ctx context.Context, kind types.SensorKind, r types.Reading) (types.Reading, error)
	LatestReading(ctx context.Context, sensorID string) (types.Reading, error)
	ReadingHistory(ctx context.Context, sensorID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.Reading], error)

	// Devices
	CreateDevice(ctx context.Context, d types.Device) (types.Device, error)
	GetDevice(ctx context.Context, id string) (types.Device, error)
	GetDeviceByHardwareID(ctx context.Context, hardwareID string) (types.Device, error)
	GetDeviceByStatusTopic(ctx context.Context, topic string) (types.Device, error)
	GetDeviceByCommandTopic(ctx context.Context, topic string) (types.Device, error)
	UpdateDevice(ctx context.Context, d types.Device) (types.Device, error)
	SoftDeleteDevice(ctx context.Context, id string) error
	ListDevices(ctx context.Context, onlyActive bool) ([]types.Device, error)
	ListDevicesWithStatusTopic(ctx context.Context) ([]types.Device, error)
	AppendDeviceEvent(ctx context.Context, e types.DeviceEvent) (types.DeviceEvent, error)
	DeviceEventHistory(ctx context.Context, deviceID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.DeviceEvent], error)

	// Rules
	CreateRule(ctx context.Context, r types.Rule) (types.Rule, error)
	GetRule(ctx context.Context, id string) (types.Rule, error)
	UpdateRule(ctx context.Context, r types.Rule) (types.Rule, error)
	SoftDeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context, onlyEnabled bool) ([]types.Rule, error)
	AppendRuleExecution(ctx context.Context, e types.RuleExecution) (types.RuleExecution, error)
	RuleExecutionHistory(ctx context.Context, ruleID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.RuleExecution], error)
	CountRuleExecutionsSince(ctx context.Context, ruleID string, since time.Time) (int, error)

	// Notifications
	CreateNotification(ctx context.Context, n types.Notification) (types.Notification, error)
	GetNotification(ctx context.Context, id string) (types.Notification, error)
	UpdateNotificationDeliveryStatus(ctx context.Context, id string, status types.DeliveryStatus, deliveredAt *time.Time) error
	MarkNotificationRead(ctx context.Context, id string) (changed bool, err error)
	NotificationHistory(ctx context.Context, recipientUserID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.Notification], error)

	CreateTemplate(ctx context.Context, t types.NotificationTemplate) (types.NotificationTemplate, error)
	GetTemplate(ctx context.Context, id string) (types.NotificationTemplate, error)
	ListTemplates(ctx context.Context) ([]types.NotificationTemplate, error)
}

type gormStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sqlDB, err := s.db.WithContext(ctx).DB()
	if err != nil {
		return wrapErr(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return wrapErr(err)
	}
	return nil
}

// withTimeout bounds every Store call at 3s per §5's suspension-point
// budget ("Store 3s").
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 3*time.Second)
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return ErrStoreUnavailable
}
