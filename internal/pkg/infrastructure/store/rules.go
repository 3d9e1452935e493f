package store

import (
	"context"
	"time"

	"github.com/greenhouse/core/pkg/types"
	"gorm.io/gorm"
)

func (g *gormStore) CreateRule(ctx context.Context, r types.Rule) (types.Rule, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := ruleFromDomain(r)
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		return types.Rule{}, wrapErr(err)
	}
	return ruleToDomain(model), nil
}

func (g *gormStore) GetRule(ctx context.Context, id string) (types.Rule, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model Rule
	if err := g.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return types.Rule{}, wrapErr(err)
	}
	return ruleToDomain(model), nil
}

func (g *gormStore) UpdateRule(ctx context.Context, r types.Rule) (types.Rule, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := ruleFromDomain(r)
	if err := g.db.WithContext(ctx).Model(&Rule{}).Where("id = ?", r.ID).Updates(&model).Error; err != nil {
		return types.Rule{}, wrapErr(err)
	}
	return g.GetRule(ctx, r.ID)
}

func (g *gormStore) SoftDeleteRule(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := g.db.WithContext(ctx).Model(&Rule{}).Where("id = ?", id).Update("enabled", false)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRules orders by (priority DESC, lastTriggeredAt ASC), the same order
// the Rules Engine uses to pick a candidate among several simultaneously
// eligible rules (§4.G).
func (g *gormStore) ListRules(ctx context.Context, onlyEnabled bool) ([]types.Rule, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	q := g.db.WithContext(ctx).Order("priority DESC, last_triggered_at ASC")
	if onlyEnabled {
		q = q.Where("enabled = ?", true)
	}
	var models []Rule
	if err := q.Find(&models).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := make([]types.Rule, len(models))
	for i, m := range models {
		out[i] = ruleToDomain(m)
	}
	return out, nil
}

func (g *gormStore) AppendRuleExecution(ctx context.Context, e types.RuleExecution) (types.RuleExecution, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := ruleExecutionFromDomain(e)
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		return types.RuleExecution{}, wrapErr(err)
	}
	return ruleExecutionToDomain(model), nil
}

func (g *gormStore) RuleExecutionHistory(ctx context.Context, ruleID string, from, to *time.Time, limit int, cursor string) (types.Collection[types.RuleExecution], error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	f, t := windowBounds(from, to)
	offset := decodeCursor(cursor)
	limit = clampLimit(limit)

	buildQuery := func() *gorm.DB {
		q := g.db.WithContext(ctx).Model(&RuleExecution{}).Where("rule_id = ?", ruleID)
		if from != nil {
			q = q.Where("triggered_at >= ?", f)
		}
		return q.Where("triggered_at <= ?", t)
	}

	var total int64
	if err := buildQuery().Count(&total).Error; err != nil {
		return types.Collection[types.RuleExecution]{}, wrapErr(err)
	}

	var models []RuleExecution
	err := buildQuery().Order("triggered_at DESC").Offset(offset).Limit(limit).Find(&models).Error
	if err != nil {
		return types.Collection[types.RuleExecution]{}, wrapErr(err)
	}

	out := make([]types.RuleExecution, len(models))
	for i, m := range models {
		out[i] = ruleExecutionToDomain(m)
	}

	result := types.Collection[types.RuleExecution]{
		Data:       out,
		Count:      len(out),
		TotalCount: int(total),
	}
	if offset+len(out) < int(total) {
		result.Cursor = encodeCursor(offset + len(out))
	}
	return result, nil
}

// CountRuleExecutionsSince backs the maxExecutionsPerHour guard as a
// sliding window (DESIGN.md records this Open Question decision): the
// engine calls this with since = now.Add(-1*time.Hour) on every evaluation
// rather than resetting a counter on a fixed clock boundary.
func (g *gormStore) CountRuleExecutionsSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var count int64
	err := g.db.WithContext(ctx).Model(&RuleExecution{}).
		Where("rule_id = ? AND triggered_at >= ?", ruleID, since).
		Count(&count).Error
	if err != nil {
		return 0, wrapErr(err)
	}
	return int(count), nil
}
