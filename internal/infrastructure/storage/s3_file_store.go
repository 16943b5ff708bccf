// Package storage reads receipt documents from S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/shared"
	infraconfig "github.com/livestatement/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Ensure S3FileStore implements FileStore
var _ receipt.FileStore = (*S3FileStore)(nil)

// S3FileStore opens receipt documents stored under "<tenant>/<file object id>".
// It works with any S3-compatible backend (AWS S3, MinIO, RustFS).
type S3FileStore struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// S3FileStoreOption is a functional option for configuring S3FileStore
type S3FileStoreOption func(*S3FileStore)

// WithLogger sets a custom logger for S3FileStore
func WithLogger(logger *zap.Logger) S3FileStoreOption {
	return func(s *S3FileStore) {
		s.logger = logger
	}
}

// NewS3FileStore creates a new S3FileStore from configuration
func NewS3FileStore(ctx context.Context, cfg *infraconfig.StorageConfig, opts ...S3FileStoreOption) (*S3FileStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("storage credentials are required")
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	if endpoint != "" {
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	store := &S3FileStore{
		client: client,
		bucket: cfg.Bucket,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// ObjectKey returns the storage key of a tenant's file object
func ObjectKey(tenantID, fileObjectID uuid.UUID) string {
	return tenantID.String() + "/" + fileObjectID.String()
}

// Open streams a stored document. A missing object returns shared.ErrNotFound.
// The caller must close the returned reader.
func (s *S3FileStore) Open(ctx context.Context, tenantID, fileObjectID uuid.UUID) (io.ReadCloser, error) {
	key := ObjectKey(tenantID, fileObjectID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, fmt.Errorf("document %s: %w", key, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open document %s: %w", key, err)
	}
	s.logger.Debug("Opened receipt document",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int64p("size", out.ContentLength),
	)
	return out.Body, nil
}

// Put stores a document for a tenant; used by ledgerctl when submitting local files
func (s *S3FileStore) Put(ctx context.Context, tenantID, fileObjectID uuid.UUID, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ObjectKey(tenantID, fileObjectID)),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload document: %w", err)
	}
	return nil
}

// Bucket returns the bucket name
func (s *S3FileStore) Bucket() string {
	return s.bucket
}
