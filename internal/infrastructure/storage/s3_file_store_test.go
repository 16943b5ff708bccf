package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewS3FileStore_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3FileStore(ctx, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3FileStore(ctx, &config.StorageConfig{AccessKeyID: "k", SecretAccessKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing credentials return error", func(t *testing.T) {
		_, err := NewS3FileStore(ctx, &config.StorageConfig{Bucket: "receipts", AccessKeyID: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "credentials are required")
	})

	t.Run("valid config", func(t *testing.T) {
		store, err := NewS3FileStore(ctx, &config.StorageConfig{
			Bucket:          "receipts",
			AccessKeyID:     "k",
			SecretAccessKey: "s",
			Endpoint:        "localhost:9000",
			UsePathStyle:    true,
		})
		require.NoError(t, err)
		assert.Equal(t, "receipts", store.Bucket())
	})
}

func TestObjectKey(t *testing.T) {
	tenantID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	fileID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	assert.Equal(t, "11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222", ObjectKey(tenantID, fileID))
}

// fakeS3 serves GET /<bucket>/<key> from a map, answering NoSuchKey for anything else
func fakeS3(t *testing.T, objects map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, ok := objects[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestS3FileStore_Open(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	fileID := uuid.New()
	srv := fakeS3(t, map[string]string{
		"receipts/" + ObjectKey(tenantID, fileID): "%PDF-receipt",
	})

	store, err := NewS3FileStore(ctx, &config.StorageConfig{
		Bucket:          "receipts",
		Region:          "ca-central-1",
		AccessKeyID:     "k",
		SecretAccessKey: "s",
		Endpoint:        srv.URL,
		UsePathStyle:    true,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	t.Run("existing document", func(t *testing.T) {
		rc, err := store.Open(ctx, tenantID, fileID)
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-receipt", string(data))
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := store.Open(ctx, tenantID, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("documents are scoped by tenant", func(t *testing.T) {
		_, err := store.Open(ctx, uuid.New(), fileID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
