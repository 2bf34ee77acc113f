package inference

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"segportal/internal/domain/job"
	"segportal/internal/pkg/apperr"
	"segportal/internal/pkg/logger"
)

type Config struct {
	DefaultConfig  string
	MaxUploadBytes int64
}

type UploadResult struct {
	JobID  string
	Config string
}

// Service covers artifact intake, run triggering and result retrieval.
// A non-empty caller restricts job access to its owner.
type Service struct {
	jobs      job.Repository
	artifacts *ArtifactStore
	runner    *Runner
	cfg       Config
	log       *logger.Logger
}

func NewService(jobs job.Repository, artifacts *ArtifactStore, runner *Runner, cfg Config, log *logger.Logger) *Service {
	if cfg.DefaultConfig == "" {
		cfg.DefaultConfig = "3d_fullres"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		jobs:      jobs,
		artifacts: artifacts,
		runner:    runner,
		cfg:       cfg,
		log:       log.With("service", "InferenceService"),
	}
}

// Upload validates the archive, stores it under a fresh job id and records
// the job as queued. No bytes are written for a rejected request.
func (s *Service) Upload(ctx context.Context, req UploadRequest, caller string) (*UploadResult, error) {
	if err := ValidateUpload(req, s.cfg.MaxUploadBytes); err != nil {
		return nil, err
	}
	owner := strings.TrimSpace(req.Username)
	if caller != "" && owner != caller {
		return nil, apperr.Forbidden("username does not match the signed-in user")
	}
	config, err := resolveConfig(req.Config, s.cfg.DefaultConfig)
	if err != nil {
		return nil, err
	}

	f, err := req.File.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, "could not read uploaded file", err)
	}
	defer f.Close()

	// Detect content type from the first 512 bytes
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperr.Wrap(apperr.ErrValidation, "could not read uploaded file", err)
	}
	if http.DetectContentType(head[:n]) != zipContentType {
		return nil, ErrNotZipContent
	}
	body := io.MultiReader(bytes.NewReader(head[:n]), f)

	var location string
	jobID, err := s.jobs.Create(ctx, owner, config, func(jobID string) (string, error) {
		loc, err := s.artifacts.StoreInput(ctx, jobID, req.File.Filename, body)
		location = loc
		return loc, err
	})
	if err != nil {
		if location != "" {
			// rollback file on DB error
			_ = s.artifacts.Remove(context.WithoutCancel(ctx), location)
		}
		s.log.Error("upload failed", "username", owner, "error", err.Error())
		return nil, err
	}

	s.log.Info("job queued", "job_id", jobID, "username", owner, "config", config, "size", req.File.Size)
	return &UploadResult{JobID: jobID, Config: config}, nil
}

// Job returns the job record, enforcing ownership when caller is set.
func (s *Service) Job(ctx context.Context, jobID, caller string) (*job.Record, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, ErrMissingJobID
	}
	rec, err := s.jobs.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if caller != "" && rec.Owner() != caller {
		return nil, ErrNotOwner
	}
	return rec, nil
}

// Run executes a queued job and opens its result. The config is fixed at
// upload; a different one in the run request is rejected.
func (s *Service) Run(ctx context.Context, jobID, config, caller string) (io.ReadCloser, *RunResult, error) {
	rec, err := s.Job(ctx, jobID, caller)
	if err != nil {
		return nil, nil, err
	}
	if c := strings.TrimSpace(config); c != "" && c != rec.Config() {
		return nil, nil, ErrConfigMismatch
	}

	res, err := s.runner.Run(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.artifacts.Fetch(ctx, res.ResultPath)
	if err != nil {
		return nil, nil, err
	}
	return rc, res, nil
}

// FetchResult opens the result of a completed job. Earlier states are a
// conflict; a failed job reports its stored error.
func (s *Service) FetchResult(ctx context.Context, jobID, caller string) (io.ReadCloser, error) {
	rec, err := s.Job(ctx, jobID, caller)
	if err != nil {
		return nil, err
	}
	switch rec.Status() {
	case job.StatusCompleted:
		return s.artifacts.Fetch(ctx, rec.ResultPath())
	case job.StatusFailed:
		return nil, apperr.Conflict("job failed: " + rec.ErrorMessage())
	default:
		return nil, ErrResultNotReady
	}
}

func (s *Service) ListJobs(ctx context.Context, owner string) ([]*job.Record, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrMissingUsername
	}
	return s.jobs.ListByOwner(ctx, owner)
}
