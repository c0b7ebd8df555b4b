package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/askql/askql/internal/storage"
)

type fakeAPI struct {
	objects         map[string][]byte
	lastContentType string
	bucketExists    bool
	createdBuckets  []string
}

func (f *fakeAPI) Upload(_ context.Context, _ string, key string, body io.Reader, _ int64, contentType string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	f.lastContentType = contentType
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeAPI) Download(_ context.Context, _ string, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (f *fakeAPI) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeAPI) MakeBucket(_ context.Context, bucket, _ string) error {
	f.createdBuckets = append(f.createdBuckets, bucket)
	return nil
}

func TestPutResolvesKeyUnderPrefix(t *testing.T) {
	api := &fakeAPI{}
	store, err := NewWithClient("askql", "askql/prod", api)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	_, err = store.Put(context.Background(), "/history/date=2026-01-01/batch.parquet", strings.NewReader("data"), 4, storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := api.objects["askql/prod/history/date=2026-01-01/batch.parquet"]; !ok {
		t.Fatalf("stored keys = %v", api.objects)
	}
}

func TestPutDefaultsContentType(t *testing.T) {
	api := &fakeAPI{}
	store, err := NewWithClient("askql", "", api)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if _, err := store.Put(context.Background(), "artifacts/ddl.sql", strings.NewReader("x"), 1, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if api.lastContentType != "application/octet-stream" {
		t.Fatalf("content type = %q", api.lastContentType)
	}

	if _, err := store.Put(context.Background(), "artifacts/ddl2.sql", strings.NewReader("x"), 1, storage.PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if api.lastContentType != "text/plain" {
		t.Fatalf("content type = %q", api.lastContentType)
	}
}

func TestPutRejectsEscapingKeys(t *testing.T) {
	store, err := NewWithClient("askql", "prod", &fakeAPI{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	for _, key := range []string{"../outside", "a/../../b", `windows\style`, "  ", "."} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) accepted an invalid key", key)
		}
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	store, err := NewWithClient("askql", "", &fakeAPI{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if _, err := store.Get(context.Background(), "no/such/key"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	api := &fakeAPI{bucketExists: false}
	store, err := NewWithClient("askql", "", api)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if err := store.ensureBucket(context.Background()); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if len(api.createdBuckets) != 1 || api.createdBuckets[0] != "askql" {
		t.Fatalf("created buckets = %v", api.createdBuckets)
	}

	api.bucketExists = true
	api.createdBuckets = nil
	if err := store.ensureBucket(context.Background()); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if len(api.createdBuckets) != 0 {
		t.Fatalf("bucket recreated: %v", api.createdBuckets)
	}
}

func TestResolveEndpoint(t *testing.T) {
	cases := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{raw: "minio:9000", useSSL: false, wantHost: "minio:9000", wantSecure: false},
		{raw: "minio:9000", useSSL: true, wantHost: "minio:9000", wantSecure: true},
		{raw: "http://minio:9000", useSSL: false, wantHost: "minio:9000", wantSecure: false},
		{raw: "https://s3.example.com", useSSL: false, wantHost: "s3.example.com", wantSecure: true},
		{raw: "", wantErr: true},
		{raw: "https://", wantErr: true},
	}
	for _, tc := range cases {
		host, secure, err := resolveEndpoint(tc.raw, tc.useSSL)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("resolveEndpoint(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("resolveEndpoint(%q) error = %v", tc.raw, err)
		}
		if host != tc.wantHost || secure != tc.wantSecure {
			t.Fatalf("resolveEndpoint(%q) = (%q, %v)", tc.raw, host, secure)
		}
	}
}
