package inference

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"

	"segportal/internal/pkg/apperr"
)

type ProcessInput struct {
	JobID  string
	Config string
	Input  io.Reader
}

// Processor turns an input archive into a segmentation result. Failures the
// caller should see are reported as apperr.ErrProcessing.
type Processor interface {
	Process(ctx context.Context, in ProcessInput) (io.Reader, error)
}

// SimulatedProcessor stands in for the segmentation model. It checks that the
// input is a readable, non-empty ZIP archive and emits a gzip placeholder.
type SimulatedProcessor struct {
	TempDir string
}

func (p SimulatedProcessor) Process(ctx context.Context, in ProcessInput) (io.Reader, error) {
	spool, err := os.CreateTemp(p.TempDir, "segportal-run-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	size, err := io.Copy(spool, in.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input archive: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(spool, size)
	if err != nil {
		return nil, apperr.Processing("archive is not a readable ZIP file")
	}
	files := 0
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			files++
		}
	}
	if files == 0 {
		return nil, apperr.Processing("archive contains no files")
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Name = fmt.Sprintf("result_%s.nii", in.JobID)
	fmt.Fprintf(gz, "Simulated NIfTI result\nconfig=%s\nfiles=%d\n", in.Config, files)
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &buf, nil
}
