package inference

import "segportal/internal/pkg/apperr"

var (
	ErrNoFilePart      = apperr.Validation("No file part")
	ErrNoSelectedFile  = apperr.Validation("No selected file")
	ErrNotZip          = apperr.Validation("Only ZIP files are allowed")
	ErrMissingUsername = apperr.Validation("username is required")
	ErrEmptyFile       = apperr.Validation("file is empty")
	ErrFileTooLarge    = apperr.Validation("file exceeds maximum allowed size")
	ErrNotZipContent   = apperr.Validation("file content is not a ZIP archive")
	ErrInvalidConfig   = apperr.Validation("invalid model configuration")
	ErrConfigMismatch  = apperr.Validation("config does not match the uploaded job")
	ErrMissingJobID    = apperr.Validation("job_id is required")
	ErrInvalidBody     = apperr.Validation("invalid request body")
	ErrNotOwner        = apperr.Forbidden("you do not own this job")
	ErrResultNotReady  = apperr.Conflict("result not ready")
)
