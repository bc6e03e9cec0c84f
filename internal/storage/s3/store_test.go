package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/duckmesh/insightbot/internal/config"
	"github.com/duckmesh/insightbot/internal/storage"
)

func TestPutUsesPrefixAndDefaultContentType(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("insightbot-data", "insightbot/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	_, err = store.Put(context.Background(), "/datasets/tiendas.csv", bytes.NewBufferString("a,b"), 3, storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "insightbot-data" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "insightbot/prod/datasets/tiendas.csv" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
	if fake.lastContentType != "text/csv" {
		t.Fatalf("content type = %q", fake.lastContentType)
	}
}

func TestGetAcceptsURIKeys(t *testing.T) {
	fake := &fakeClient{objects: map[string]string{"datasets/tiendas.parquet": "PAR1"}}
	store, err := NewWithClient("insightbot-data", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	reader, err := store.Get(context.Background(), "s3://datasets/tiendas.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = reader.Close() }()
	payload, _ := io.ReadAll(reader)
	if string(payload) != "PAR1" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestGetMissingObjectWrapsNotFound(t *testing.T) {
	store, err := NewWithClient("insightbot-data", "", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "datasets/missing.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
	if _, err := store.Stat(context.Background(), "datasets/missing.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v, want ErrObjectNotFound", err)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := NewWithClient("insightbot-data", "", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Put(context.Background(), "../secrets.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{})
	if err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("insightbot-data", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("EnsureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw      string
		useSSL   bool
		endpoint string
		secure   bool
	}{
		{raw: "https://minio.example.com", endpoint: "minio.example.com", secure: true},
		{raw: "http://localhost:9000", useSSL: true, endpoint: "localhost:9000", secure: false},
		{raw: "localhost:9000", useSSL: true, endpoint: "localhost:9000", secure: true},
	}
	for _, tc := range tests {
		endpoint, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if endpoint != tc.endpoint || secure != tc.secure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, endpoint, secure)
		}
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.ObjectStoreConfig{Endpoint: "minio:9000", Bucket: "b", Prefix: "p", UseSSL: true})
	if cfg.Endpoint != "minio:9000" || cfg.Bucket != "b" || cfg.Prefix != "p" || !cfg.UseSSL || cfg.AutoCreateBucket {
		t.Fatalf("ConfigFrom() = %#v", cfg)
	}
}

type fakeClient struct {
	objects            map[string]string
	lastPutBucket      string
	lastPutKey         string
	lastContentType    string
	bucketExists       bool
	createBucketCalled bool
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	f.lastContentType = contentType
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	payload, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(payload)), nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	payload, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(payload)), LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
