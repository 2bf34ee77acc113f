package user

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"segportal/internal/pkg/apperr"
)

var (
	ErrUserNotFound = apperr.NotFound("user not found")
	ErrUserExists   = apperr.Conflict("username already exists")
)

type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, username, passwordHash string) (*User, error)
	TouchLastLogin(ctx context.Context, username string) (*User, error)
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *repository) FindByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return &u, nil
}

// Create inserts the user only if the username is free. The insert itself is
// the uniqueness check, so two concurrent first logins cannot both succeed.
func (r *repository) Create(ctx context.Context, username, passwordHash string) (*User, error) {
	now := r.now()
	u := &User{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		LastLoginAt:  now,
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(u)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return nil, ErrUserExists
		}
		return nil, apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserExists
	}
	return u, nil
}

func (r *repository) TouchLastLogin(ctx context.Context, username string) (*User, error) {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("username = ?", username).
		Update("last_login_at", r.now())
	if res.Error != nil {
		return nil, apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return r.FindByUsername(ctx, username)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
