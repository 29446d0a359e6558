package prober

import (
	"context"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/tagforge/pkg/process"
	"github.com/chicogong/tagforge/pkg/schemas"
)

func TestInspect_StillImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 37, 21))))
	require.NoError(t, f.Close())

	// A bogus ffprobe proves the header path never shells out.
	p := NewProber(process.NewRunner(process.WithTools(process.Tools{FFprobe: "tagforge-no-ffprobe"})))
	dims := p.Inspect(context.Background(), nil, path)

	assert.Equal(t, schemas.Dimensions{Width: 37, Height: 21}, dims)
}

func TestInspect_FallbackOnFailure(t *testing.T) {
	p := NewProber(process.NewRunner(process.WithTools(process.Tools{FFprobe: "tagforge-no-ffprobe"})))

	dims := p.Inspect(context.Background(), nil, filepath.Join(t.TempDir(), "missing.mp4"))
	assert.Equal(t, schemas.FallbackDimensions, dims)
}

func TestInspect_CorruptStillFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(path, []byte("not a png"), 0o644))

	p := NewProber(process.NewRunner(process.WithTools(process.Tools{FFprobe: "tagforge-no-ffprobe"})))
	assert.Equal(t, schemas.FallbackDimensions, p.Inspect(context.Background(), nil, path))
}

func TestProbeLocalFile(t *testing.T) {
	testFile := createTestVideoFile(t)

	p := NewProber(process.NewRunner())
	info, err := p.Probe(context.Background(), nil, testFile)
	require.NoError(t, err)

	assert.Greater(t, info.Format.Duration, time.Duration(0))
	require.NotEmpty(t, info.VideoStreams)
	assert.Equal(t, 320, info.VideoStreams[0].Width)
	assert.NotEmpty(t, info.AudioStreams)

	dims := p.Inspect(context.Background(), nil, testFile)
	assert.Equal(t, 320, dims.Width)
	assert.Equal(t, 240, dims.Height)
	assert.True(t, dims.HasAudio)
	assert.InDelta(t, 1.0, dims.Duration, 0.2)
}

func TestProbeNonExistentFile(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}

	p := NewProber(process.NewRunner())
	_, err := p.Probe(context.Background(), nil, "/nonexistent/file.mp4")
	assert.Error(t, err)
}

// TestParseFFprobeOutput tests parsing ffprobe JSON output
func TestParseFFprobeOutput(t *testing.T) {
	jsonOutput := `{
		"format": {
			"filename": "test.mp4",
			"format_name": "mov,mp4,m4a,3gp,3g2,mj2",
			"duration": "10.000000",
			"size": "1048576",
			"bit_rate": "838860"
		},
		"streams": [
			{
				"index": 0,
				"codec_type": "video",
				"codec_name": "h264",
				"width": 1920,
				"height": 1080,
				"r_frame_rate": "30000/1001",
				"duration": "10.000000"
			},
			{
				"index": 1,
				"codec_type": "audio",
				"codec_name": "aac",
				"sample_rate": "48000",
				"channels": 2,
				"duration": "N/A"
			}
		]
	}`

	info, err := parseFFprobeOutput([]byte(jsonOutput))
	if err != nil {
		t.Fatalf("parseFFprobeOutput() failed: %v", err)
	}

	if info.Format.Duration != 10*time.Second {
		t.Errorf("Expected duration 10s, got %v", info.Format.Duration)
	}
	if info.Format.Size != 1048576 {
		t.Errorf("Expected size 1048576, got %d", info.Format.Size)
	}
	if len(info.VideoStreams) != 1 {
		t.Fatalf("Expected 1 video stream, got %d", len(info.VideoStreams))
	}
	if fr := info.VideoStreams[0].FrameRate; fr < 29.96 || fr > 29.98 {
		t.Errorf("Expected frame rate ~29.97, got %f", fr)
	}
	if len(info.AudioStreams) != 1 {
		t.Fatalf("Expected 1 audio stream, got %d", len(info.AudioStreams))
	}
	if info.AudioStreams[0].Duration != 0 {
		t.Errorf("Expected N/A duration to parse as 0, got %v", info.AudioStreams[0].Duration)
	}

	sum := info.Summary()
	if sum.Width != 1920 || sum.Height != 1080 || !sum.HasAudio || sum.Duration != 10 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

// TestParseInvalidJSON tests error handling for invalid JSON
func TestParseInvalidJSON(t *testing.T) {
	_, err := parseFFprobeOutput([]byte("invalid json"))
	if err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func createTestVideoFile(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}

	testFile := filepath.Join(t.TempDir(), "test.mp4")
	cmd := exec.Command("ffmpeg",
		"-f", "lavfi", "-i", "color=black:s=320x240:r=10:d=1",
		"-f", "lavfi", "-i", "anullsrc=r=48000:cl=stereo:d=1",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac",
		"-t", "1", "-y", testFile,
	)
	if err := cmd.Run(); err != nil {
		t.Skip("ffmpeg failed to create test file")
	}
	return testFile
}
