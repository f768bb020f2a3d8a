package models

import (
	"context"
	"time"
)

func (r *PostgresRepository) CreateBranch(ctx context.Context, branch *Branch) error {
	return translate(r.db.WithContext(ctx).Create(branch).Error)
}

func (r *PostgresRepository) GetBranch(ctx context.Context, id uint) (*Branch, error) {
	var branch Branch
	if err := r.db.WithContext(ctx).First(&branch, id).Error; err != nil {
		return nil, translate(err)
	}
	return &branch, nil
}

func (r *PostgresRepository) ListBranches(ctx context.Context) ([]Branch, error) {
	var branches []Branch
	err := r.db.WithContext(ctx).Order("name").Find(&branches).Error
	return branches, translate(err)
}

func (r *PostgresRepository) UpdateBranch(ctx context.Context, branch *Branch) error {
	return translate(r.db.WithContext(ctx).Save(branch).Error)
}

func (r *PostgresRepository) DeleteBranch(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)

	var refs int64
	if err := db.Model(&User{}).Where("branch_id = ?", id).Count(&refs).Error; err != nil {
		return translate(err)
	}
	if refs > 0 {
		return ErrInUse
	}
	if err := db.Model(&Customer{}).Where("branch_id = ?", id).Count(&refs).Error; err != nil {
		return translate(err)
	}
	if refs > 0 {
		return ErrInUse
	}

	return deleted(db.Delete(&Branch{}, id))
}

func (r *PostgresRepository) CreateRole(ctx context.Context, role *Role) error {
	return translate(r.db.WithContext(ctx).Create(role).Error)
}

func (r *PostgresRepository) GetRole(ctx context.Context, id uint) (*Role, error) {
	var role Role
	if err := r.db.WithContext(ctx).First(&role, id).Error; err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (r *PostgresRepository) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (r *PostgresRepository) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	err := r.db.WithContext(ctx).Order("id").Find(&roles).Error
	return roles, translate(err)
}

func (r *PostgresRepository) UpdateRole(ctx context.Context, role *Role) error {
	return translate(r.db.WithContext(ctx).Save(role).Error)
}

func (r *PostgresRepository) DeleteRole(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)

	var refs int64
	if err := db.Model(&User{}).Where("role_id = ?", id).Count(&refs).Error; err != nil {
		return translate(err)
	}
	if refs > 0 {
		return ErrInUse
	}

	return deleted(db.Delete(&Role{}, id))
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user *User) error {
	return translate(r.db.WithContext(ctx).Omit("Role", "Branch").Create(user).Error)
}

func (r *PostgresRepository) GetUser(ctx context.Context, id uint) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).
		Preload("Role").
		Preload("Branch").
		First(&user, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).
		Preload("Role").
		Preload("Branch").
		Where("username = ?", username).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context, branchID *uint) ([]User, error) {
	q := r.db.WithContext(ctx).Preload("Role").Preload("Branch")
	if branchID != nil {
		q = q.Where("branch_id = ?", *branchID)
	}

	var users []User
	err := q.Order("username").Find(&users).Error
	return users, translate(err)
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, user *User) error {
	return translate(r.db.WithContext(ctx).Omit("Role", "Branch").Save(user).Error)
}

func (r *PostgresRepository) DeleteUser(ctx context.Context, id uint) error {
	return deleted(r.db.WithContext(ctx).Delete(&User{}, id))
}

func (r *PostgresRepository) TouchLogin(ctx context.Context, id uint, at time.Time) error {
	return translate(r.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error)
}
