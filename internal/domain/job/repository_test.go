package job

import (
	"context"
	"errors"
	"math/rand"
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
	db := testutil.NewDB(t, &Upload{}, &InferenceJob{})
	return NewRepository(db).(*repository)
}

func placeAt(prefix string) Placer {
	return func(jobID string) (string, error) {
		return prefix + "/" + jobID + "/scan.zip", nil
	}
}

func createJob(t *testing.T, repo Repository, owner string) string {
	t.Helper()
	id, err := repo.Create(context.Background(), owner, "3d_fullres", placeAt("inference_jobs"))
	require.NoError(t, err)
	return id
}

func TestRepository_CreateStartsQueued(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	var placedFor string
	id, err := repo.Create(ctx, "alice", "3d_fullres", func(jobID string) (string, error) {
		placedFor = jobID
		return "inference_jobs/" + jobID + "/scan.zip", nil
	})
	require.NoError(t, err)
	assert.Equal(t, id, placedFor, "artifact must be keyed by the issued id")

	rec, err := repo.GetByJobID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, rec.Status())
	assert.Equal(t, StatusQueued, rec.Inference.Status)
	assert.Equal(t, "alice", rec.Owner())
	assert.Equal(t, "3d_fullres", rec.Config())
	assert.Equal(t, "inference_jobs/"+id+"/scan.zip", rec.InputPath())
	assert.Empty(t, rec.ResultPath())
	assert.Empty(t, rec.ErrorMessage())
}

func TestRepository_CreatePlacementFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	boom := errors.New("disk full")
	var issued string
	_, err := repo.Create(ctx, "alice", "3d_fullres", func(jobID string) (string, error) {
		issued = jobID
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetByJobID(ctx, issued)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRepository_CreateRequiresOwner(t *testing.T) {
	repo := newTestRepo(t)
	called := false
	_, err := repo.Create(context.Background(), "", "3d_fullres", func(string) (string, error) {
		called = true
		return "x", nil
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.False(t, called)
}

func TestRepository_JobIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id, err := repo.Create(ctx, "alice", "3d_fullres", placeAt("in"))
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate job id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetByJobID(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRepository_HappyPathToCompleted(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := createJob(t, repo, "alice")

	rec, err := repo.Claim(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status())
	assert.Equal(t, StatusProcessing, rec.Inference.Status)

	require.NoError(t, repo.UpdateStatus(ctx, id, StatusCompleted, Extra{ResultPath: "inference_results/" + id}))

	rec, err = repo.GetByJobID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status())
	assert.Equal(t, StatusCompleted, rec.Inference.Status)
	assert.Equal(t, "inference_results/"+id, rec.ResultPath())
	assert.True(t, !rec.Inference.UpdatedAt.Before(rec.Inference.CreatedAt))
}

func TestRepository_FailedKeepsMessage(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := createJob(t, repo, "alice")

	_, err := repo.Claim(ctx, id)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, id, StatusFailed, Extra{ErrorMessage: "archive is empty"}))

	rec, err := repo.GetByJobID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status())
	assert.Equal(t, "archive is empty", rec.ErrorMessage())
	assert.Empty(t, rec.ResultPath())
}

func TestRepository_TerminalTransitionsNeedDetails(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := createJob(t, repo, "alice")
	_, err := repo.Claim(ctx, id)
	require.NoError(t, err)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, id, StatusCompleted, Extra{}), apperr.ErrValidation)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, id, StatusFailed, Extra{}), apperr.ErrValidation)

	rec, err := repo.GetByJobID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status())
}

func TestRepository_NoRegression(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := createJob(t, repo, "alice")
	_, err := repo.Claim(ctx, id)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, id, StatusCompleted, Extra{ResultPath: "r"}))

	for _, to := range []Status{StatusQueued, StatusProcessing, StatusFailed} {
		err := repo.UpdateStatus(ctx, id, to, Extra{ErrorMessage: "late"})
		assert.ErrorIs(t, err, apperr.ErrConflict, "completed -> %s", to)
	}

	rec, err := repo.GetByJobID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status())
	assert.Equal(t, StatusCompleted, rec.Inference.Status)
	assert.Empty(t, rec.ErrorMessage())
}

func TestRepository_SkippingProcessingIsConflict(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := createJob(t, repo, "alice")

	err := repo.UpdateStatus(ctx, id, StatusCompleted, Extra{ResultPath: "r"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	rec, err := repo.GetByJobID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, rec.Status())
}

func TestRepository_SameStatusIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := createJob(t, repo, "alice")

	require.NoError(t, repo.UpdateStatus(ctx, id, StatusQueued, Extra{}))
	require.NoError(t, repo.UpdateStatus(ctx, id, StatusProcessing, Extra{}))
	require.NoError(t, repo.UpdateStatus(ctx, id, StatusProcessing, Extra{}))

	rec, err := repo.GetByJobID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status())
}

func TestRepository_UpdateUnknownJob(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.UpdateStatus(context.Background(), "missing", StatusProcessing, Extra{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRepository_UpdateUnknownStatus(t *testing.T) {
	repo := newTestRepo(t)
	id := createJob(t, repo, "alice")
	err := repo.UpdateStatus(context.Background(), id, Status("paused"), Extra{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRepository_ClaimNotQueuedIsConflict(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := createJob(t, repo, "alice")

	_, err := repo.Claim(ctx, id)
	require.NoError(t, err)

	_, err = repo.Claim(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = repo.Claim(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRepository_ConcurrentClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := createJob(t, repo, "alice")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Claim(ctx, id)
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

// Any sequence of updates leaves an observed history that is a prefix of
// queued -> processing -> completed|failed.
func TestRepository_HistoryIsAlwaysAPrefix(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rng := rand.New(rand.NewSource(42))
	all := []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

	for round := 0; round < 50; round++ {
		id := createJob(t, repo, "alice")
		history := []Status{StatusQueued}

		for step := 0; step < 6; step++ {
			to := all[rng.Intn(len(all))]
			_ = repo.UpdateStatus(ctx, id, to, Extra{ResultPath: "r", ErrorMessage: "e"})

			rec, err := repo.GetByJobID(ctx, id)
			require.NoError(t, err)
			require.Equal(t, rec.Status(), rec.Inference.Status, "records diverged")
			if rec.Status() != history[len(history)-1] {
				history = append(history, rec.Status())
			}
		}

		require.LessOrEqual(t, len(history), 3)
		if len(history) > 1 {
			assert.Equal(t, StatusProcessing, history[1])
		}
		if len(history) > 2 {
			assert.True(t, history[2].IsTerminal())
		}
	}
}

func TestRepository_ListByOwner(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a1 := createJob(t, repo, "alice")
	a2 := createJob(t, repo, "alice")
	createJob(t, repo, "bob")

	recs, err := repo.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	ids := []string{recs[0].JobID(), recs[1].JobID()}
	assert.ElementsMatch(t, []string{a1, a2}, ids)
	for _, r := range recs {
		assert.Equal(t, "alice", r.Owner())
		assert.Equal(t, StatusQueued, r.Inference.Status)
	}

	none, err := repo.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_StoreUnavailable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "uploads"`).WillReturnError(errors.New("connection refused"))

	_, err = repo.GetByJobID(context.Background(), "abc")
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FailStale(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	stuck := createJob(t, repo, "alice")
	_, err := repo.Claim(ctx, stuck)
	require.NoError(t, err)
	queued := createJob(t, repo, "alice")

	repo.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh := createJob(t, repo, "bob")
	_, err = repo.Claim(ctx, fresh)
	require.NoError(t, err)

	n, err := repo.FailStale(ctx, base.Add(time.Hour), "interrupted by restart")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := repo.GetByJobID(ctx, stuck)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status())
	assert.Equal(t, "interrupted by restart", rec.ErrorMessage())

	for id, want := range map[string]Status{queued: StatusQueued, fresh: StatusProcessing} {
		rec, err := repo.GetByJobID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, rec.Status())
	}
}
