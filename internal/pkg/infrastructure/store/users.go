package store

import (
	"context"
	"errors"
	"strings"

	"github.com/greenhouse/core/pkg/types"
	"gorm.io/gorm"
)

// Username uniqueness is enforced here, not only at the API layer (§3
// invariant), via a case-insensitive existence check ahead of the unique
// index so callers get ErrConflictUnique instead of a raw driver error.
func (g *gormStore) CreateUser(ctx context.Context, u types.User) (types.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var existing User
	err := g.db.WithContext(ctx).Where("LOWER(username) = LOWER(?)", u.Username).First(&existing).Error
	if err == nil {
		return types.User{}, ErrConflictUnique
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return types.User{}, wrapErr(err)
	}

	model := userFromDomain(u)
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflictUnique
		}
		return types.User{}, wrapErr(err)
	}
	return userToDomain(model), nil
}

func (g *gormStore) GetUserByUsername(ctx context.Context, username string) (types.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model User
	err := g.db.WithContext(ctx).Where("LOWER(username) = LOWER(?)", strings.ToLower(username)).First(&model).Error
	if err != nil {
		return types.User{}, wrapErr(err)
	}
	return userToDomain(model), nil
}

func (g *gormStore) GetUser(ctx context.Context, id string) (types.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var model User
	if err := g.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return types.User{}, wrapErr(err)
	}
	return userToDomain(model), nil
}

func (g *gormStore) UpdateUser(ctx context.Context, u types.User) (types.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	model := userFromDomain(u)
	if err := g.db.WithContext(ctx).Model(&User{}).Where("id = ?", u.ID).Updates(&model).Error; err != nil {
		return types.User{}, wrapErr(err)
	}
	return g.GetUser(ctx, u.ID)
}

// DeactivateUser never deletes: users are deactivated, never destroyed
// while referenced (§3).
func (g *gormStore) DeactivateUser(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := g.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *gormStore) ListUsers(ctx context.Context) ([]types.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var models []User
	if err := g.db.WithContext(ctx).Order("username").Find(&models).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := make([]types.User, len(models))
	for i, m := range models {
		out[i] = userToDomain(m)
	}
	return out, nil
}
