package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/garage/billing/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLocalArchive(t *testing.T) {
	root := filepath.Join(t.TempDir(), "archive")
	archive, err := NewLocalArchive(root)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("creates the root", func(t *testing.T) {
		info, err := os.Stat(root)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("upload and link", func(t *testing.T) {
		key := "statements/c1/20240615T100000Z.json"
		require.NoError(t, archive.Upload(ctx, key, []byte(`{"ok":true}`), "application/json"))

		data, err := os.ReadFile(filepath.Join(root, "statements", "c1", "20240615T100000Z.json"))
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true}`, string(data))

		link, expiresAt, err := archive.GenerateDownloadURL(ctx, key, 0)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(link, "file://"))
		assert.True(t, strings.HasSuffix(link, "/statements/c1/20240615T100000Z.json"))
		assert.True(t, expiresAt.IsZero())
	})

	t.Run("upload overwrites", func(t *testing.T) {
		require.NoError(t, archive.Upload(ctx, "r.json", []byte("1"), ""))
		require.NoError(t, archive.Upload(ctx, "r.json", []byte("2"), ""))
		data, err := os.ReadFile(filepath.Join(root, "r.json"))
		require.NoError(t, err)
		assert.Equal(t, "2", string(data))
	})

	t.Run("missing object has no link", func(t *testing.T) {
		_, _, err := archive.GenerateDownloadURL(ctx, "absent.json", 0)
		assert.Error(t, err)
	})

	t.Run("keys cannot escape the root", func(t *testing.T) {
		err := archive.Upload(ctx, "../outside.json", []byte("x"), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escapes")
		_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "outside.json"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("empty key", func(t *testing.T) {
		assert.Error(t, archive.Upload(ctx, "", []byte("x"), ""))
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, archive.Upload(canceled, "late.json", []byte("x"), ""), context.Canceled)
	})
}

func TestNewDocumentArchive(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	t.Run("disabled", func(t *testing.T) {
		archive, err := NewDocumentArchive(ctx, config.StorageConfig{}, log)
		require.NoError(t, err)
		assert.Nil(t, archive)
	})

	t.Run("local", func(t *testing.T) {
		archive, err := NewDocumentArchive(ctx, config.StorageConfig{Driver: "local", Path: t.TempDir()}, log)
		require.NoError(t, err)
		assert.IsType(t, &LocalArchive{}, archive)
	})

	t.Run("s3 without creating the bucket makes no requests", func(t *testing.T) {
		archive, err := NewDocumentArchive(ctx, config.StorageConfig{
			Driver:    "s3",
			Bucket:    "billing",
			AccessKey: "k",
			SecretKey: "s",
			Endpoint:  "localhost:1",
		}, nil)
		require.NoError(t, err)
		assert.IsType(t, &S3Archive{}, archive)
	})

	t.Run("s3 creates the bucket when asked", func(t *testing.T) {
		fake, srv := newFakeS3(t)
		_, err := NewDocumentArchive(ctx, config.StorageConfig{
			Driver:       "s3",
			Bucket:       "billing",
			AccessKey:    "k",
			SecretKey:    "s",
			Endpoint:     srv.URL,
			UsePathStyle: true,
			CreateBucket: true,
		}, log)
		require.NoError(t, err)
		assert.Equal(t, []string{"HEAD /billing"}, fake.seen())
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := NewDocumentArchive(ctx, config.StorageConfig{Driver: "ftp"}, log)
		assert.Error(t, err)
	})
}
