package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"segportal/internal/pkg/apperr"
)

var ErrJobNotFound = apperr.NotFound("job not found")

// Placer stores the job's input artifact under a freshly issued job id and
// returns its locator.
type Placer func(jobID string) (location string, err error)

type Repository interface {
	Create(ctx context.Context, owner, config string, place Placer) (string, error)
	GetByJobID(ctx context.Context, jobID string) (*Record, error)
	Claim(ctx context.Context, jobID string) (*Record, error)
	UpdateStatus(ctx context.Context, jobID string, status Status, extra Extra) error
	ListByOwner(ctx context.Context, owner string) ([]*Record, error)
	FailStale(ctx context.Context, cutoff time.Time, message string) (int, error)
}

type repository struct {
	db    *gorm.DB
	now   func() time.Time
	newID func() string
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

// Create issues a new id, lets place write the artifact, then records the job
// at queued. Nothing is recorded if placing fails.
func (r *repository) Create(ctx context.Context, owner, config string, place Placer) (string, error) {
	if owner == "" {
		return "", apperr.Validation("owner is required")
	}
	jobID := r.newID()

	location, err := place(jobID)
	if err != nil {
		return "", err
	}

	now := r.now()
	up := &Upload{
		JobID:     jobID,
		Username:  owner,
		FilePath:  location,
		Config:    config,
		Status:    StatusQueued,
		CreatedAt: now,
	}
	inf := &InferenceJob{
		JobID:     jobID,
		Username:  owner,
		Config:    config,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(up).Error; err != nil {
			return err
		}
		return tx.Create(inf).Error
	})
	if err != nil {
		return "", apperr.Persistence(err)
	}
	return jobID, nil
}

func (r *repository) GetByJobID(ctx context.Context, jobID string) (*Record, error) {
	return r.load(r.db.WithContext(ctx), jobID)
}

func (r *repository) load(db *gorm.DB, jobID string) (*Record, error) {
	var rec Record
	if err := db.Where("job_id = ?", jobID).First(&rec.Upload).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, apperr.Persistence(err)
	}
	if err := db.Where("job_id = ?", jobID).First(&rec.Inference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, apperr.Persistence(err)
	}
	return &rec, nil
}

// Claim moves a queued job to processing. It is the only mutual-exclusion
// point for runs: exactly one caller can win the compare-and-set, every other
// caller gets a conflict.
func (r *repository) Claim(ctx context.Context, jobID string) (*Record, error) {
	var rec *Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.load(tx, jobID)
		if err != nil {
			return err
		}
		if current.Status() != StatusQueued {
			return apperr.Conflict(fmt.Sprintf("job is already %s", current.Status()))
		}
		if err := r.compareAndSet(tx, jobID, StatusQueued, StatusProcessing, Extra{}); err != nil {
			return err
		}
		rec, err = r.load(tx, jobID)
		return err
	})
	if err != nil {
		return nil, asPersistence(err)
	}
	return rec, nil
}

// UpdateStatus applies one forward transition to both records. Repeating the
// current status is a no-op so duplicate deliveries are harmless; a rejected
// transition leaves both records untouched.
func (r *repository) UpdateStatus(ctx context.Context, jobID string, status Status, extra Extra) error {
	if !status.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown status %q", status))
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.load(tx, jobID)
		if err != nil {
			return err
		}
		from := current.Status()
		if from == status {
			return nil
		}
		if !CanTransition(from, status) {
			return apperr.Conflict(fmt.Sprintf("job cannot move from %s to %s", from, status))
		}
		return r.compareAndSet(tx, jobID, from, status, extra)
	})
	return asPersistence(err)
}

func (r *repository) compareAndSet(tx *gorm.DB, jobID string, from, to Status, extra Extra) error {
	if want, ok := predecessor(to); !ok || want != from {
		return apperr.Conflict(fmt.Sprintf("job cannot move from %s to %s", from, to))
	}

	uploadUpdates := map[string]any{"status": to}
	jobUpdates := map[string]any{"status": to, "updated_at": r.now()}

	switch to {
	case StatusCompleted:
		if extra.ResultPath == "" {
			return apperr.Validation("completed jobs need a result location")
		}
		uploadUpdates["result_path"] = extra.ResultPath
	case StatusFailed:
		if extra.ErrorMessage == "" {
			return apperr.Validation("failed jobs need an error message")
		}
		jobUpdates["error_message"] = extra.ErrorMessage
	}

	res := tx.Model(&Upload{}).Where("job_id = ? AND status = ?", jobID, from).Updates(uploadUpdates)
	if res.Error != nil {
		return apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("job status changed concurrently")
	}

	res = tx.Model(&InferenceJob{}).Where("job_id = ? AND status = ?", jobID, from).Updates(jobUpdates)
	if res.Error != nil {
		return apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("job status changed concurrently")
	}
	return nil
}

func (r *repository) ListByOwner(ctx context.Context, owner string) ([]*Record, error) {
	var uploads []Upload
	if err := r.db.WithContext(ctx).Where("username = ?", owner).Order("created_at DESC").Find(&uploads).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	if len(uploads) == 0 {
		return []*Record{}, nil
	}

	ids := make([]string, 0, len(uploads))
	for _, u := range uploads {
		ids = append(ids, u.JobID)
	}
	var jobs []InferenceJob
	if err := r.db.WithContext(ctx).Where("job_id IN ?", ids).Find(&jobs).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	byID := make(map[string]InferenceJob, len(jobs))
	for _, j := range jobs {
		byID[j.JobID] = j
	}

	out := make([]*Record, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, &Record{Upload: u, Inference: byID[u.JobID]})
	}
	return out, nil
}

// FailStale fails jobs that have sat in processing since before cutoff. Only
// a process that died mid-run leaves a job there.
func (r *repository) FailStale(ctx context.Context, cutoff time.Time, message string) (int, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&InferenceJob{}).
		Where("status = ? AND updated_at < ?", StatusProcessing, cutoff).
		Pluck("job_id", &ids).Error
	if err != nil {
		return 0, apperr.Persistence(err)
	}

	failed := 0
	for _, id := range ids {
		err := r.UpdateStatus(ctx, id, StatusFailed, Extra{ErrorMessage: message})
		if errors.Is(err, apperr.ErrConflict) {
			// finished while we were looking
			continue
		}
		if err != nil {
			return failed, err
		}
		failed++
	}
	return failed, nil
}

// asPersistence leaves classified errors alone and wraps raw driver errors
// (for example a failed commit).
func asPersistence(err error) error {
	if err == nil || apperr.KindOf(err) != nil {
		return err
	}
	return apperr.Persistence(err)
}
