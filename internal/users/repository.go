package users

import (
	"context"
	"errors"
	"fmt"

	"betting_ledger/internal/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound       = apperr.NotFound("user")
	ErrDuplicateUser      = apperr.Conflict("username or email already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	LockForUpdate(ctx context.Context, tx *gorm.DB, id string) error
}

type UserRepositoryImpl struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db}
}

func (r *UserRepositoryImpl) Create(ctx context.Context, user *User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepositoryImpl) GetByID(ctx context.Context, id string) (*User, error) {
	if !apperr.IsID(id) {
		return nil, ErrUserNotFound
	}
	var u User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *UserRepositoryImpl) GetByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &u, nil
}

func (r *UserRepositoryImpl) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&User{})
	if email == "" {
		q = q.Where("username = ?", username)
	} else {
		q = q.Where("username = ? OR email = ?", username, email)
	}
	err := q.Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check existing user: %w", err)
	}
	return count > 0, nil
}

// LockForUpdate takes the per-user row lock that serializes debit authorization
func (r *UserRepositoryImpl) LockForUpdate(ctx context.Context, tx *gorm.DB, id string) error {
	if !apperr.IsID(id) {
		return ErrUserNotFound
	}
	var u User
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}
