package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_CheckSource(t *testing.T) {
	p := New()
	p.Resolver = fakeResolver{"example.com": {"93.184.216.34"}}
	ctx := context.Background()

	assert.NoError(t, p.CheckSource(ctx, "https://example.com/video.mp4"))

	err := p.CheckSource(ctx, "http://192.168.1.1/file.mp4")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "security check failed")

	err = p.CheckSource(ctx, "s3://bucket/key.mp4")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not enabled")

	err = p.CheckSource(ctx, "ftp://example.com/a")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	err = p.CheckSource(ctx, "no-scheme")
	assert.Error(t, err)
}

func TestPolicy_CheckSource_PrivateAllowed(t *testing.T) {
	p := &Policy{SourceSchemes: []string{"http", "https", "s3", "gs"}}

	assert.NoError(t, p.CheckSource(context.Background(), "http://127.0.0.1:9000/a.png"))
	assert.NoError(t, p.CheckSource(context.Background(), "s3://bucket/a.png"))
	assert.NoError(t, p.CheckSource(context.Background(), "gs://bucket/a.png"))
}

func TestPolicy_CheckDestination(t *testing.T) {
	p := &Policy{DestinationSchemes: []string{"s3", "file"}}

	assert.NoError(t, p.CheckDestination("s3://bucket/out/"))
	assert.NoError(t, p.CheckDestination("file:///tmp/out"))

	err := p.CheckDestination("gs://bucket/out/")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not enabled")

	err = p.CheckDestination("https://example.com/upload")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}
