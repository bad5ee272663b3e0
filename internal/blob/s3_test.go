package blob

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptcanvas/internal/config"
	"promptcanvas/internal/logger"
)

func TestUploaderDisabledWithoutCredentials(t *testing.T) {
	u, err := NewS3Uploader(context.Background(), config.S3Config{}, logger.New("error"))
	require.NoError(t, err)
	assert.False(t, u.Enabled())

	_, err = u.Upload(context.Background(), "k.png", []byte("x"), "image/png")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = u.DownloadURL(context.Background(), "k.png", time.Hour)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, u.Delete(context.Background(), "k.png"), ErrDisabled)
}

func TestDownloadURLIsPresigned(t *testing.T) {
	u, err := NewS3Uploader(context.Background(), config.S3Config{
		Bucket:          "pc-images",
		Region:          "eu-west-1",
		AccessKeyID:     "AKIA_TEST",
		SecretAccessKey: "secret",
	}, logger.New("error"))
	require.NoError(t, err)

	url, err := u.DownloadURL(context.Background(), "abc.png", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "abc.png")
	assert.Contains(t, url, "X-Amz-Signature")
}

func TestUploaderDefaultsPublicURL(t *testing.T) {
	u, err := NewS3Uploader(context.Background(), config.S3Config{
		Bucket:          "pc-images",
		Region:          "eu-west-1",
		AccessKeyID:     "AKIA_TEST",
		SecretAccessKey: "secret",
	}, logger.New("error"))
	require.NoError(t, err)
	assert.True(t, u.Enabled())
	assert.Equal(t, "https://pc-images.s3.eu-west-1.amazonaws.com", u.urlPrefix)
}

func TestUploaderHonorsURLPrefix(t *testing.T) {
	u, err := NewS3Uploader(context.Background(), config.S3Config{
		Bucket:          "pc-images",
		AccessKeyID:     "AKIA_TEST",
		SecretAccessKey: "secret",
		PublicURLPrefix: "https://cdn.example.com/",
	}, logger.New("error"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", u.urlPrefix)
}
