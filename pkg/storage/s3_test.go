package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantBucket  string
		wantKey     string
		wantErr     bool
		errContains string
	}{
		{
			name:       "valid S3 URI",
			uri:        "s3://my-bucket/path/to/file.mp4",
			wantBucket: "my-bucket",
			wantKey:    "path/to/file.mp4",
			wantErr:    false,
		},
		{
			name:       "S3 URI with single key",
			uri:        "s3://bucket/file.txt",
			wantBucket: "bucket",
			wantKey:    "file.txt",
			wantErr:    false,
		},
		{
			name:       "S3 URI with nested path",
			uri:        "s3://my-bucket/videos/2024/01/sample.mp4",
			wantBucket: "my-bucket",
			wantKey:    "videos/2024/01/sample.mp4",
			wantErr:    false,
		},
		{
			name:        "missing bucket",
			uri:         "s3:///path/to/file.mp4",
			wantErr:     true,
			errContains: "missing bucket name",
		},
		{
			name:        "missing key",
			uri:         "s3://my-bucket/",
			wantErr:     true,
			errContains: "missing object key",
		},
		{
			name:        "bucket only",
			uri:         "s3://my-bucket",
			wantErr:     true,
			errContains: "missing object key",
		},
		{
			name:        "wrong scheme",
			uri:         "https://bucket/file.txt",
			wantErr:     true,
			errContains: "S3 storage only supports s3://",
		},
		{
			name:        "empty URI",
			uri:         "",
			wantErr:     true,
			errContains: "cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := parseS3URI(tt.uri)

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantBucket, bucket)
				assert.Equal(t, tt.wantKey, key)
			}
		})
	}
}

func TestNewS3Storage(t *testing.T) {
	s, err := NewS3Storage(context.Background(), S3Options{
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		UsePathStyle:    true,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, s.client)

	var _ Storage = s
}

// fakeS3 is a path-style bucket store good enough for the SDK's basic calls.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.URL.Path
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		body, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3(t *testing.T) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                credentials.NewStaticCredentialsProvider("key", "secret", ""),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
		RetryMaxAttempts:           1,
	})
	return NewS3StorageWithClient(client), fake
}

func TestS3Storage_RoundTrip(t *testing.T) {
	s, fake := newFakeS3(t)
	ctx := context.Background()
	uri := "s3://media/renders/out.png"

	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32)
	require.NoError(t, s.Put(ctx, uri, strings.NewReader(png)))

	fake.mu.Lock()
	stored := string(fake.objects["/media/renders/out.png"])
	contentType := fake.types["/media/renders/out.png"]
	fake.mu.Unlock()
	assert.Contains(t, stored, "PNG")
	assert.Equal(t, "image/png", contentType)

	exists, err := s.Exists(ctx, uri)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := s.Get(ctx, uri)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Contains(t, string(got), "PNG")

	require.NoError(t, s.Delete(ctx, uri))
	exists, err = s.Exists(ctx, uri)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestS3Storage_GetMissing(t *testing.T) {
	s, _ := newFakeS3(t)
	_, err := s.Get(context.Background(), "s3://media/none.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get S3 object")
}
