package inference

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"segportal/internal/domain/job"
	"segportal/internal/pkg/apperr"
	"segportal/internal/pkg/logger"
)

type RunResult struct {
	JobID      string
	Config     string
	ResultPath string
}

// Runner executes one job synchronously. Once Run returns the job is either
// terminal or was never claimed.
type Runner struct {
	jobs      job.Repository
	artifacts *ArtifactStore
	processor Processor
	timeout   time.Duration
	log       *logger.Logger
	tracer    trace.Tracer
}

func NewRunner(jobs job.Repository, artifacts *ArtifactStore, processor Processor, timeout time.Duration, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		jobs:      jobs,
		artifacts: artifacts,
		processor: processor,
		timeout:   timeout,
		log:       log.With("service", "JobRunner"),
		tracer:    otel.Tracer("segportal/inference"),
	}
}

func (r *Runner) Run(ctx context.Context, jobID string) (*RunResult, error) {
	ctx, span := r.tracer.Start(ctx, "inference.run", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	rec, err := r.jobs.Claim(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("job.config", rec.Config()))
	r.log.Info("job claimed", "job_id", jobID, "config", rec.Config())

	started := time.Now()
	resultPath, runErr := r.execute(ctx, rec)

	// the request may already be cancelled; the terminal transition must still land
	final := context.WithoutCancel(ctx)

	if runErr == nil {
		err := r.jobs.UpdateStatus(final, jobID, job.StatusCompleted, job.Extra{ResultPath: resultPath})
		if err == nil {
			r.log.Info("job completed", "job_id", jobID, "duration", time.Since(started).String())
			return &RunResult{JobID: jobID, Config: rec.Config(), ResultPath: resultPath}, nil
		}
		r.log.Error("failed to record completion", "job_id", jobID, "error", err.Error())
		runErr = err
	}

	msg := failureMessage(runErr, r.timeout)
	span.RecordError(runErr)
	span.SetStatus(codes.Error, msg)
	r.log.Warn("job failed", "job_id", jobID, "reason", msg, "error", runErr.Error())

	if err := r.jobs.UpdateStatus(final, jobID, job.StatusFailed, job.Extra{ErrorMessage: msg}); err != nil {
		r.log.Error("failed to record failure", "job_id", jobID, "error", err.Error())
		return nil, err
	}
	return nil, apperr.Wrap(apperr.ErrProcessing, msg, runErr)
}

func (r *Runner) execute(ctx context.Context, rec *job.Record) (string, error) {
	in, err := r.artifacts.Fetch(ctx, rec.InputPath())
	if err != nil {
		return "", err
	}
	defer in.Close()

	pctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := r.processor.Process(pctx, ProcessInput{
		JobID:  rec.JobID(),
		Config: rec.Config(),
		Input:  in,
	})
	if err != nil {
		return "", err
	}
	return r.artifacts.StoreResult(context.WithoutCancel(ctx), rec.JobID(), out)
}

// failureMessage is what gets stored on the job and shown to its owner.
func failureMessage(err error, timeout time.Duration) string {
	switch {
	case errors.Is(err, apperr.ErrProcessing):
		return apperr.Message(err)
	case errors.Is(err, context.DeadlineExceeded):
		return "processing timed out after " + timeout.String()
	case errors.Is(err, context.Canceled):
		return "processing was interrupted"
	case errors.Is(err, apperr.ErrNotFound):
		return "input archive is missing"
	default:
		return "inference run failed"
	}
}
