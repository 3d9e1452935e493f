package store

import (
	"context"
	"time"

	"github.com/greenhouse/core/pkg/types"
)

// CreateSensor enforces hardwareId uniqueness at the Store boundary (§3
// invariant), not only at the API layer.
func (g *gormStore) CreateSensor(ctx context.Context, s types.Sensor) (types.Sensor, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := sensorFromDomain(s)
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return types.Sensor{}, ErrConflictUnique
		}
		return types.Sensor{}, wrapErr(err)
	}
	return sensorToDomain(model), nil
}

func (g *gormStore) GetSensor(ctx context.Context, id string) (types.Sensor, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model Sensor
	if err := g.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return types.Sensor{}, wrapErr(err)
	}
	return sensorToDomain(model), nil
}

func (g *gormStore) GetSensorByHardwareID(ctx context.Context, hardwareID string) (types.Sensor, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model Sensor
	if err := g.db.WithContext(ctx).First(&model, "hardware_id = ?", hardwareID).Error; err != nil {
		return types.Sensor{}, wrapErr(err)
	}
	return sensorToDomain(model), nil
}

func (g *gormStore) GetSensorByTopic(ctx context.Context, topic string) (types.Sensor, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model Sensor
	if err := g.db.WithContext(ctx).First(&model, "mqtt_topic = ? AND active = ?", topic, true).Error; err != nil {
		return types.Sensor{}, wrapErr(err)
	}
	return sensorToDomain(model), nil
}

func (g *gormStore) UpdateSensor(ctx context.Context, s types.Sensor) (types.Sensor, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := sensorFromDomain(s)
	if err := g.db.WithContext(ctx).Model(&Sensor{}).Where("id = ?", s.ID).Updates(&model).Error; err != nil {
		return types.Sensor{}, wrapErr(err)
	}
	return g.GetSensor(ctx, s.ID)
}

// SoftDeleteSensor sets active=false; rows are never destroyed (§3).
func (g *gormStore) SoftDeleteSensor(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := g.db.WithContext(ctx).Model(&Sensor{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *gormStore) ListSensors(ctx context.Context, onlyActive bool) ([]types.Sensor, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	q := g.db.WithContext(ctx).Order("name")
	if onlyActive {
		q = q.Where("active = ?", true)
	}
	var models []Sensor
	if err := q.Find(&models).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := make([]types.Sensor, len(models))
	for i, m := range models {
		out[i] = sensorToDomain(m)
	}
	return out, nil
}

func (g *gormStore) UpdateSensorLiveness(ctx context.Context, id string, lastSeen time.Time, online bool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := g.db.WithContext(ctx).Model(&Sensor{}).Where("id = ?", id).
		Updates(map[string]any{"last_seen": lastSeen, "online": online})
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *gormStore) UpdateSensorStats(ctx context.Context, id string, stats map[string]types.Stats) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := g.db.WithContext(ctx).Model(&Sensor{}).Where("id = ?", id).
		Update("stats", JSON[map[string]types.Stats]{Value: stats})
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
