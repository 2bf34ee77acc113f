package inference

import (
	"mime/multipart"
	"path"
	"regexp"
	"strings"
)

const zipContentType = "application/zip"

var configPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// UploadRequest is the parsed multipart form of an upload.
type UploadRequest struct {
	File     *multipart.FileHeader
	Username string
	Config   string
}

// ValidateUpload checks everything that can be checked without reading the
// file body. Each failure carries its own reason.
func ValidateUpload(req UploadRequest, maxBytes int64) error {
	if req.File == nil {
		return ErrNoFilePart
	}
	if strings.TrimSpace(req.File.Filename) == "" {
		return ErrNoSelectedFile
	}
	if !strings.EqualFold(path.Ext(req.File.Filename), ".zip") {
		return ErrNotZip
	}
	if strings.TrimSpace(req.Username) == "" {
		return ErrMissingUsername
	}
	if req.File.Size <= 0 {
		return ErrEmptyFile
	}
	if maxBytes > 0 && req.File.Size > maxBytes {
		return ErrFileTooLarge
	}
	return nil
}

// resolveConfig falls back to def for a blank value.
func resolveConfig(v, def string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		v = def
	}
	if !configPattern.MatchString(v) {
		return "", ErrInvalidConfig
	}
	return v, nil
}
