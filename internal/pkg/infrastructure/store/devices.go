package store

import (
	"context"
	"time"

	"github.com/greenhouse/core/pkg/types"
	"gorm.io/gorm"
)

func (g *gormStore) CreateDevice(ctx context.Context, d types.Device) (types.Device, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := deviceFromDomain(d)
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return types.Device{}, ErrConflictUnique
		}
		return types.Device{}, wrapErr(err)
	}
	return deviceToDomain(model), nil
}

func (g *gormStore) GetDevice(ctx context.Context, id string) (types.Device, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model Device
	if err := g.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return types.Device{}, wrapErr(err)
	}
	return deviceToDomain(model), nil
}

func (g *gormStore) GetDeviceByHardwareID(ctx context.Context, hardwareID string) (types.Device, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model Device
	if err := g.db.WithContext(ctx).First(&model, "hardware_id = ?", hardwareID).Error; err != nil {
		return types.Device{}, wrapErr(err)
	}
	return deviceToDomain(model), nil
}

// GetDeviceByStatusTopic resolves an inbound MQTT status-topic message back
// to the device it belongs to, the way the MQTT transport needs on receipt
// of every status-reply payload (§4.C/§4.H).
func (g *gormStore) GetDeviceByStatusTopic(ctx context.Context, topic string) (types.Device, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model Device
	if err := g.db.WithContext(ctx).First(&model, "mqtt_status_topic = ? AND active = ?", topic, true).Error; err != nil {
		return types.Device{}, wrapErr(err)
	}
	return deviceToDomain(model), nil
}

// GetDeviceByCommandTopic resolves an inbound MQTT command-topic message
// (`*/sw`, `/command`) back to the device it targets, so the ingest
// pipeline can route it to the Actuator as a desired-state transition
// instead of telemetry (§4.D).
func (g *gormStore) GetDeviceByCommandTopic(ctx context.Context, topic string) (types.Device, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model Device
	if err := g.db.WithContext(ctx).First(&model, "mqtt_command_topic = ? AND active = ?", topic, true).Error; err != nil {
		return types.Device{}, wrapErr(err)
	}
	return deviceToDomain(model), nil
}

func (g *gormStore) UpdateDevice(ctx context.Context, d types.Device) (types.Device, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := deviceFromDomain(d)
	if err := g.db.WithContext(ctx).Model(&Device{}).Where("id = ?", d.ID).Updates(&model).Error; err != nil {
		return types.Device{}, wrapErr(err)
	}
	return g.GetDevice(ctx, d.ID)
}

func (g *gormStore) SoftDeleteDevice(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := g.db.WithContext(ctx).Model(&Device{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *gormStore) ListDevices(ctx context.Context, onlyActive bool) ([]types.Device, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	q := g.db.WithContext(ctx).Order("name")
	if onlyActive {
		q = q.Where("active = ?", true)
	}
	var models []Device
	if err := q.Find(&models).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := make([]types.Device, len(models))
	for i, m := range models {
		out[i] = deviceToDomain(m)
	}
	return out, nil
}

// ListDevicesWithStatusTopic supports the MQTT transport's (re)connect-time
// re-subscription to every active device's status topic (§4.C).
func (g *gormStore) ListDevicesWithStatusTopic(ctx context.Context) ([]types.Device, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var models []Device
	err := g.db.WithContext(ctx).
		Where("active = ? AND mqtt_status_topic <> ''", true).
		Find(&models).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]types.Device, len(models))
	for i, m := range models {
		out[i] = deviceToDomain(m)
	}
	return out, nil
}

func (g *gormStore) AppendDeviceEvent(ctx context.Context, e types.DeviceEvent) (types.DeviceEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := deviceEventFromDomain(e)
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		return types.DeviceEvent{}, wrapErr(err)
	}
	return deviceEventToDomain(model), nil
}

func (g *gormStore) DeviceEventHistory(ctx context.Context, deviceID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.DeviceEvent], error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	f, t := windowBounds(from, to)
	offset := decodeCursor(cursor)
	limit = clampLimit(limit)

	buildQuery := func() *gorm.DB {
		q := g.db.WithContext(ctx).Model(&DeviceEvent{}).Where("device_id = ?", deviceID)
		if from != nil {
			q = q.Where("observed_at >= ?", f)
		}
		return q.Where("observed_at <= ?", t)
	}

	var total int64
	if err := buildQuery().Count(&total).Error; err != nil {
		return types.Collection[types.DeviceEvent]{}, wrapErr(err)
	}

	var models []DeviceEvent
	err := buildQuery().Order("observed_at DESC").Offset(offset).Limit(limit).Find(&models).Error
	if err != nil {
		return types.Collection[types.DeviceEvent]{}, wrapErr(err)
	}

	out := make([]types.DeviceEvent, len(models))
	for i, m := range models {
		out[i] = deviceEventToDomain(m)
	}

	result := types.Collection[types.DeviceEvent]{
		Data:       out,
		Count:      len(out),
		TotalCount: int(total),
	}
	if offset+len(out) < int(total) {
		result.Cursor = encodeCursor(offset + len(out))
	}
	return result, nil
}
