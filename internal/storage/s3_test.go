package storage

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakfit/workout-catalog/internal/config"
)

type fakeS3 struct {
	deleted   []string
	deleteErr error

	putKey, putType string
	getKey          string
	expires         time.Duration
	presignErr      error
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) presignOpts(optFns []func(*s3.PresignOptions)) {
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.expires = o.Expires
}

func (f *fakeS3) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	f.presignOpts(optFns)
	f.putKey, f.putType = aws.ToString(in.Key), aws.ToString(in.ContentType)
	return &v4.PresignedHTTPRequest{URL: "https://s3.test/put/" + f.putKey, Method: "PUT"}, nil
}

func (f *fakeS3) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	f.presignOpts(optFns)
	f.getKey = aws.ToString(in.Key)
	return &v4.PresignedHTTPRequest{URL: "https://s3.test/get/" + f.getKey, Method: "GET"}, nil
}

func TestS3Storage_Presign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeS3{}
	s := newS3Storage(fake, fake, "bucket", zerolog.Nop())

	url, err := s.GeneratePresignedUploadURL(ctx, "thumbnails/u/a.png", "image/png", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.test/put/thumbnails/u/a.png", url)
	assert.Equal(t, "image/png", fake.putType)
	assert.Equal(t, DefaultPresignedURLExpiry, fake.expires)

	url, err = s.GeneratePresignedDownloadURL(ctx, "thumbnails/u/a.png", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.test/get/thumbnails/u/a.png", url)
	assert.Equal(t, time.Minute, fake.expires)
}

func TestS3Storage_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var buf bytes.Buffer
	fake := &fakeS3{presignErr: assert.AnError, deleteErr: assert.AnError}
	s := newS3Storage(fake, fake, "bucket", zerolog.New(&buf))

	_, err := s.GeneratePresignedUploadURL(ctx, "k", "image/png", 0)
	assert.ErrorIs(t, err, assert.AnError)
	_, err = s.GeneratePresignedDownloadURL(ctx, "k", 0)
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, s.DeleteObject(ctx, "k"), assert.AnError)
	assert.Contains(t, buf.String(), "failed to delete object")
}

func TestS3Storage_Delete(t *testing.T) {
	t.Parallel()
	fake := &fakeS3{}
	s := newS3Storage(fake, fake, "bucket", zerolog.Nop())

	require.NoError(t, s.DeleteObject(context.Background(), "thumbnails/u/a.png"))
	assert.Equal(t, []string{"thumbnails/u/a.png"}, fake.deleted)
}

func TestNewS3Storage_RequiresBucket(t *testing.T) {
	t.Parallel()
	_, err := NewS3Storage(context.Background(), config.S3Config{Region: "us-east-1"}, zerolog.Nop())
	assert.Error(t, err)
}
