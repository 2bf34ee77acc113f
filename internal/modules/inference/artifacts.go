package inference

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"segportal/internal/pkg/apperr"
	"segportal/internal/storage"
)

const (
	inputNamespace  = "inference_jobs"
	resultNamespace = "inference_results"
	maxNameLength   = 100
)

// ArtifactStore lays job artifacts out by job id on top of a storage backend.
// Inputs and results live in separate namespaces.
type ArtifactStore struct {
	backend storage.Backend
}

func NewArtifactStore(backend storage.Backend) *ArtifactStore {
	return &ArtifactStore{backend: backend}
}

func InputKey(jobID, filename string) string {
	return path.Join(inputNamespace, jobID, sanitizeName(filename))
}

func ResultKey(jobID string) string {
	return path.Join(resultNamespace, jobID, fmt.Sprintf("result_%s.nii.gz", jobID))
}

func (s *ArtifactStore) StoreInput(ctx context.Context, jobID, filename string, r io.Reader) (string, error) {
	return s.put(ctx, InputKey(jobID, filename), r)
}

func (s *ArtifactStore) StoreResult(ctx context.Context, jobID string, r io.Reader) (string, error) {
	return s.put(ctx, ResultKey(jobID), r)
}

func (s *ArtifactStore) put(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := s.backend.Put(ctx, key, r); err != nil {
		return "", classify(err)
	}
	return key, nil
}

func (s *ArtifactStore) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	rc, err := s.backend.Get(ctx, locator)
	if err != nil {
		return nil, classify(err)
	}
	return rc, nil
}

func (s *ArtifactStore) Remove(ctx context.Context, locator string) error {
	return classify(s.backend.Delete(ctx, locator))
}

func classify(err error) error {
	if err == nil || apperr.KindOf(err) != nil {
		return err
	}
	return apperr.Persistence(err)
}

// sanitizeName keeps only the base name and a conservative character set.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, name)
	name = strings.TrimLeft(name, ".")
	if len(name) > maxNameLength {
		ext := path.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:maxNameLength-len(ext)] + ext
	}
	if name == "" || name == "_" {
		return "upload.zip"
	}
	return name
}
