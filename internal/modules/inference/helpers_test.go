package inference

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"segportal/internal/domain/job"
	"segportal/internal/pkg/logger"
	"segportal/internal/storage"
	"segportal/internal/testutil"
)

type processorFunc func(ctx context.Context, in ProcessInput) (io.Reader, error)

func (f processorFunc) Process(ctx context.Context, in ProcessInput) (io.Reader, error) {
	return f(ctx, in)
}

type fixture struct {
	dir       string
	jobs      job.Repository
	artifacts *ArtifactStore
	runner    *Runner
	svc       *Service
}

func newFixture(t *testing.T, proc Processor) *fixture {
	t.Helper()
	if proc == nil {
		proc = SimulatedProcessor{TempDir: t.TempDir()}
	}
	db := testutil.NewDB(t, &job.Upload{}, &job.InferenceJob{})
	jobs := job.NewRepository(db)

	dir := t.TempDir()
	backend, err := storage.NewLocalBackend(dir)
	require.NoError(t, err)
	artifacts := NewArtifactStore(backend)

	runner := NewRunner(jobs, artifacts, proc, 2*time.Second, logger.NewNop())
	svc := NewService(jobs, artifacts, runner, Config{DefaultConfig: "3d_fullres", MaxUploadBytes: 1 << 20}, logger.NewNop())
	return &fixture{dir: dir, jobs: jobs, artifacts: artifacts, runner: runner, svc: svc}
}

// storedFiles counts regular files under the artifact root.
func (f *fixture) storedFiles(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(f.dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func (f *fixture) upload(t *testing.T, owner string) string {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), UploadRequest{
		File:     fileHeader(t, "dataset.zip", zipBytes(t, map[string]string{"case_001.nii": "voxels"})),
		Username: owner,
		Config:   "3d_fullres",
	}, "")
	require.NoError(t, err)
	return res.JobID
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// multipartBody builds an upload form; an empty filename omits the file part.
func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body, contentType := multipartBody(t, filename, content, nil)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	require.NoError(t, req.ParseMultipartForm(32<<20))
	t.Cleanup(func() { _ = req.MultipartForm.RemoveAll() })
	return req.MultipartForm.File["file"][0]
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
