package store

import (
	"context"
	"time"

	"github.com/greenhouse/core/pkg/types"
	"gorm.io/gorm"
)

// AppendReading routes to the per-kind table when one exists for kind,
// falling back to sensor_data_generic otherwise (§9 design note). The
// Store does not itself check that sensorID references an active sensor:
// that invariant is enforced by Telemetry Ingest before this is called,
// since the Store has no domain meaning of its own (§4.B).
func (g *gormStore) AppendReading(ctx context.Context, kind types.SensorKind, r types.Reading) (types.Reading, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := readingFromDomain(r)
	table := readingsTableForKind(kind)
	if err := g.db.WithContext(ctx).Table(table).Create(&model).Error; err != nil {
		return types.Reading{}, wrapErr(err)
	}
	return readingToDomain(model), nil
}

// LatestReading scans every per-kind table plus the generic fallback for
// the most recent row, since the caller (typically a rule's Sensor leaf)
// does not know a sensor's kind ahead of time.
func (g *gormStore) LatestReading(ctx context.Context, sensorID string) (types.Reading, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var best *Reading
	for _, table := range allReadingTables() {
		var model Reading
		err := g.db.WithContext(ctx).Table(table).
			Where("sensor_id = ?", sensorID).
			Order("received_at DESC").Limit(1).First(&model).Error
		if err != nil {
			continue
		}
		if best == nil || model.ReceivedAt.After(best.ReceivedAt) {
			m := model
			best = &m
		}
	}
	if best == nil {
		return types.Reading{}, ErrNotFound
	}
	return readingToDomain(*best), nil
}

func (g *gormStore) ReadingHistory(ctx context.Context, sensorID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.Reading], error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	f, t := windowBounds(from, to)
	offset := decodeCursor(cursor)
	limit = clampLimit(limit)

	buildQuery := func(table string) *gorm.DB {
		q := g.db.WithContext(ctx).Table(table).Where("sensor_id = ?", sensorID)
		if from != nil {
			q = q.Where("received_at >= ?", f)
		}
		return q.Where("received_at <= ?", t)
	}

	var all []Reading
	var total int64
	for _, table := range allReadingTables() {
		var count int64
		if err := buildQuery(table).Model(&Reading{}).Count(&count).Error; err == nil {
			total += count
		}

		var rows []Reading
		if err := buildQuery(table).Order("received_at DESC").Find(&rows).Error; err != nil {
			continue
		}
		all = append(all, rows...)
	}

	// Merge-sort across tables by receivedAt desc, then page.
	sortReadingsDesc(all)

	end := offset + limit
	if offset > len(all) {
		offset = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	page := all[offset:end]

	out := make([]types.Reading, len(page))
	for i, m := range page {
		out[i] = readingToDomain(m)
	}

	result := types.Collection[types.Reading]{
		Data:       out,
		Count:      len(out),
		TotalCount: int(total),
	}
	if end < len(all) {
		result.Cursor = encodeCursor(end)
	}
	return result, nil
}

func allReadingTables() []string {
	return []string{
		"readings_temhum", "readings_water_quality", "readings_temp_pressure",
		"readings_light", "readings_power", "sensor_data_generic",
	}
}

func sortReadingsDesc(rs []Reading) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].ReceivedAt.After(rs[j-1].ReceivedAt); j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}
