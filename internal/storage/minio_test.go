package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	minioLib "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMinio implements minioAPI in memory.
type fakeMinio struct {
	bucketExists    bool
	bucketExistsErr error
	madeBucket      bool
	objects         map[string][]byte
	putErr          error
}

func newFakeMinio() *fakeMinio {
	return &fakeMinio{bucketExists: true, objects: map[string][]byte{}}
}

func (f *fakeMinio) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}
func (f *fakeMinio) MakeBucket(_ context.Context, _ string, _ minioLib.MakeBucketOptions) error {
	f.madeBucket = true
	return nil
}
func (f *fakeMinio) PutObject(_ context.Context, _ string, name string, r io.Reader, _ int64, _ minioLib.PutObjectOptions) (minioLib.UploadInfo, error) {
	if f.putErr != nil {
		return minioLib.UploadInfo{}, f.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return minioLib.UploadInfo{}, err
	}
	f.objects[name] = b
	return minioLib.UploadInfo{Key: name, Size: int64(len(b))}, nil
}
func (f *fakeMinio) GetObject(_ context.Context, _ string, name string, _ minioLib.GetObjectOptions) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.objects[name])), nil
}
func (f *fakeMinio) StatObject(_ context.Context, _ string, name string, _ minioLib.StatObjectOptions) (minioLib.ObjectInfo, error) {
	b, ok := f.objects[name]
	if !ok {
		return minioLib.ObjectInfo{}, minioLib.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return minioLib.ObjectInfo{Key: name, Size: int64(len(b))}, nil
}
func (f *fakeMinio) RemoveObject(_ context.Context, _ string, name string, _ minioLib.RemoveObjectOptions) error {
	delete(f.objects, name)
	return nil
}

func TestMinioBackend_CreatesMissingBucket(t *testing.T) {
	api := newFakeMinio()
	api.bucketExists = false

	_, err := NewMinioBackendWithAPI(context.Background(), api, "artifacts")
	require.NoError(t, err)
	assert.True(t, api.madeBucket)
}

func TestMinioBackend_BucketCheckFails(t *testing.T) {
	api := newFakeMinio()
	api.bucketExistsErr = errors.New("network down")

	_, err := NewMinioBackendWithAPI(context.Background(), api, "artifacts")
	assert.Error(t, err)
}

func TestMinioBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	api := newFakeMinio()
	b, err := NewMinioBackendWithAPI(ctx, api, "artifacts")
	require.NoError(t, err)

	require.NoError(t, b.Put(ctx, "inference_results/j1/result_j1.nii.gz", bytes.NewReader([]byte("gz"))))

	rc, err := b.Get(ctx, "inference_results/j1/result_j1.nii.gz")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "gz", string(got))

	require.NoError(t, b.Delete(ctx, "inference_results/j1/result_j1.nii.gz"))
	_, err = b.Get(ctx, "inference_results/j1/result_j1.nii.gz")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMinioBackend_PutError(t *testing.T) {
	ctx := context.Background()
	api := newFakeMinio()
	api.putErr = errors.New("quota exceeded")
	b, err := NewMinioBackendWithAPI(ctx, api, "artifacts")
	require.NoError(t, err)

	err = b.Put(ctx, "inference_jobs/j1/a.zip", bytes.NewReader([]byte("x")))
	assert.Error(t, err)
}
