package inference

import (
	"time"

	"segportal/internal/domain/job"
)

type RunRequest struct {
	JobID  string `json:"job_id" validate:"required,max=64"`
	Config string `json:"config" validate:"omitempty,max=64"`
}

type JobResponse struct {
	JobID        string     `json:"job_id"`
	Status       job.Status `json:"status"`
	Config       string     `json:"config"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

func toJobResponse(rec *job.Record) JobResponse {
	return JobResponse{
		JobID:        rec.JobID(),
		Status:       rec.Status(),
		Config:       rec.Config(),
		CreatedAt:    rec.Upload.CreatedAt,
		UpdatedAt:    rec.Inference.UpdatedAt,
		ErrorMessage: rec.ErrorMessage(),
	}
}
