// Package storage keeps raw artifact bytes. Callers address objects by
// slash-separated keys; the backend decides where the bytes physically live.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"segportal/internal/pkg/apperr"
)

var ErrObjectNotFound = apperr.NotFound("artifact not found")

type Backend interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// CleanKey rejects keys that could escape the storage root.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", apperr.Validation("invalid artifact key")
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", apperr.Validation("invalid artifact key")
	}
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return "", apperr.Validation("invalid artifact key")
		}
	}
	return cleaned, nil
}
