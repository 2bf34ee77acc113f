package user

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"segportal/internal/pkg/apperr"
	"segportal/internal/testutil"
)

func newTestRepo(t *testing.T) *repository {
	t.Helper()
	db := testutil.NewDB(t, &User{})
	return NewRepository(db).(*repository)
}

func TestRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created, err := repo.Create(ctx, "alice", "$2a$10$hash")
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)
	assert.Equal(t, "$2a$10$hash", found.PasswordHash)
}

func TestRepository_FindMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.FindByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRepository_CreateDuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Create(ctx, "bob", "h1")
	require.NoError(t, err)

	_, err = repo.Create(ctx, "bob", "h2")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	found, err := repo.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "h1", found.PasswordHash, "first record must survive")
}

func TestRepository_ConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Create(ctx, "carol", "h")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestRepository_TouchLastLogin(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	_, err := repo.Create(ctx, "dave", "h")
	require.NoError(t, err)

	repo.now = func() time.Time { return base.Add(time.Hour) }
	touched, err := repo.TouchLastLogin(ctx, "dave")
	require.NoError(t, err)

	assert.True(t, touched.LastLoginAt.Equal(base.Add(time.Hour)))
	assert.True(t, touched.CreatedAt.Equal(base))
}

func TestRepository_TouchMissingUser(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.TouchLastLogin(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func newBrokenRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return NewRepository(db), mock
}

func TestRepository_StoreUnavailable(t *testing.T) {
	repo, mock := newBrokenRepo(t)
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnError(errors.New("connection refused"))

	_, err := repo.FindByUsername(context.Background(), "alice")

	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateStoreUnavailable(t *testing.T) {
	repo, mock := newBrokenRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "users"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), "alice", "h")

	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUser_PublicOmitsHash(t *testing.T) {
	u := &User{Username: "erin", PasswordHash: "secret-hash"}
	pub := u.Public()
	assert.Equal(t, "erin", pub.Username)
}
