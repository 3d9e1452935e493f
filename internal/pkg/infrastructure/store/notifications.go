package store

import (
	"context"
	"time"

	"github.com/greenhouse/core/pkg/types"
	"gorm.io/gorm"
)

func (g *gormStore) CreateNotification(ctx context.Context, n types.Notification) (types.Notification, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := notificationFromDomain(n)
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		return types.Notification{}, wrapErr(err)
	}
	return notificationToDomain(model), nil
}

func (g *gormStore) GetNotification(ctx context.Context, id string) (types.Notification, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model Notification
	if err := g.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return types.Notification{}, wrapErr(err)
	}
	return notificationToDomain(model), nil
}

func (g *gormStore) UpdateNotificationDeliveryStatus(ctx context.Context, id string, status types.DeliveryStatus, deliveredAt *time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	updates := map[string]any{"delivery_status": string(status)}
	if deliveredAt != nil {
		updates["delivered_at"] = *deliveredAt
	}
	res := g.db.WithContext(ctx).Model(&Notification{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNotificationRead is idempotent: marking an already-read notification
// read again reports changed=false rather than erroring (§8 testable
// property).
func (g *gormStore) MarkNotificationRead(ctx context.Context, id string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model Notification
	if err := g.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return false, wrapErr(err)
	}
	if model.IsRead {
		return false, nil
	}

	now := time.Now().UTC()
	res := g.db.WithContext(ctx).Model(&Notification{}).Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (g *gormStore) NotificationHistory(ctx context.Context, recipientUserID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.Notification], error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	f, t := windowBounds(from, to)
	offset := decodeCursor(cursor)
	limit = clampLimit(limit)

	buildQuery := func() *gorm.DB {
		q := g.db.WithContext(ctx).Model(&Notification{}).Where("recipient_user_id = ?", recipientUserID)
		if from != nil {
			q = q.Where("created_at >= ?", f)
		}
		return q.Where("created_at <= ?", t)
	}

	var total int64
	if err := buildQuery().Count(&total).Error; err != nil {
		return types.Collection[types.Notification]{}, wrapErr(err)
	}

	var models []Notification
	err := buildQuery().Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error
	if err != nil {
		return types.Collection[types.Notification]{}, wrapErr(err)
	}

	out := make([]types.Notification, len(models))
	for i, m := range models {
		out[i] = notificationToDomain(m)
	}

	result := types.Collection[types.Notification]{
		Data:       out,
		Count:      len(out),
		TotalCount: int(total),
	}
	if offset+len(out) < int(total) {
		result.Cursor = encodeCursor(offset + len(out))
	}
	return result, nil
}

func (g *gormStore) CreateTemplate(ctx context.Context, t types.NotificationTemplate) (types.NotificationTemplate, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := templateFromDomain(t)
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		return types.NotificationTemplate{}, wrapErr(err)
	}
	return templateToDomain(model), nil
}

func (g *gormStore) GetTemplate(ctx context.Context, id string) (types.NotificationTemplate, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model NotificationTemplate
	if err := g.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return types.NotificationTemplate{}, wrapErr(err)
	}
	return templateToDomain(model), nil
}

func (g *gormStore) ListTemplates(ctx context.Context) ([]types.NotificationTemplate, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var models []NotificationTemplate
	if err := g.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := make([]types.NotificationTemplate, len(models))
	for i, m := range models {
		out[i] = templateToDomain(m)
	}
	return out, nil
}
