package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/askql/askql/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// objectAPI is the slice of the MinIO client the store needs: uploading
// archive batches, fetching the DDL artifact and bucket bootstrap.
type objectAPI interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

// Store keeps history archives and schema artifacts in one bucket, all keys
// rooted under an optional prefix so several deployments can share a bucket.
type Store struct {
	api    objectAPI
	bucket string
	region string
	prefix string
}

// defaultContentType is applied when a caller does not say what it uploads;
// archive batches are opaque parquet bytes.
const defaultContentType = "application/octet-stream"

func New(ctx context.Context, cfg Config) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	endpoint, secure, err := resolveEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	region := strings.TrimSpace(cfg.Region)
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	store := &Store{
		api:    &minioAPI{client: mc},
		bucket: bucket,
		region: region,
		prefix: normalizePrefix(cfg.Prefix),
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// NewWithClient builds a Store over an existing API implementation. Tests use
// it to exercise key handling without a live MinIO.
func NewWithClient(bucket, prefix string, api objectAPI) (*Store, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	return &Store{api: api, bucket: bucket, prefix: normalizePrefix(prefix)}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	resolved, err := s.resolveKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	info, err := s.api.Upload(ctx, s.bucket, resolved, body, size, contentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload object %q: %w", resolved, err)
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resolved, err := s.resolveKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.api.Download(ctx, s.bucket, resolved)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("download object %q: %w", resolved, err)
	}
	return body, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, s.region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// resolveKey joins the configured prefix onto a caller key and rejects keys
// that would escape it. Archive keys are built by storage.BuildArchivePath,
// so anything traversal-shaped here is a bug upstream, not valid input.
func (s *Store) resolveKey(raw string) (string, error) {
	key := strings.Trim(strings.TrimSpace(raw), "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	if strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid object key: %q", raw)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", raw)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return s.prefix + "/" + cleaned, nil
}

func normalizePrefix(raw string) string {
	prefix := path.Clean(strings.Trim(strings.TrimSpace(raw), "/"))
	if prefix == "." {
		return ""
	}
	return prefix
}

// resolveEndpoint accepts either a bare host:port or a full URL. An https URL
// forces TLS regardless of the UseSSL flag.
func resolveEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("object store endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint %q has no host", raw)
	}
	return parsed.Host, useSSL || parsed.Scheme == "https", nil
}

// minioAPI adapts the concrete MinIO client to objectAPI.
type minioAPI struct {
	client *minio.Client
}

func (m *minioAPI) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	info, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, translateMinioError(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

func (m *minioAPI) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	object, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioError(err)
	}
	// GetObject is lazy; Stat forces the first round trip so a missing key
	// surfaces here instead of on the first Read.
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, translateMinioError(err)
	}
	return object, nil
}

func (m *minioAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.client.BucketExists(ctx, bucket)
}

func (m *minioAPI) MakeBucket(ctx context.Context, bucket, region string) error {
	return m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func translateMinioError(err error) error {
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		if response.StatusCode == http.StatusNotFound || response.Code == "NoSuchKey" || response.Code == "NoSuchBucket" {
			return storage.ErrObjectNotFound
		}
	}
	return err
}
