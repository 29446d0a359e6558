package engine

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/tagforge/pkg/workspace"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func newMediaEngine(t *testing.T) (*Engine, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	e, _ := newEngine(t, WithWorkspace(ws))
	return e, ws
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
}

func TestRunScriptCreateRender(t *testing.T) {
	e, ws := newMediaEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		script string
	}{
		{"newlines", "create bg 64 64 black\nrender bg"},
		{"semicolons", "create bg 64 64 red; render bg png"},
		{"gradient", "create bg 32 16 \"linear-gradient(red, blue)\"\nrender bg png out.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := e.RunScript(ctx, invocation("u1"), tt.script)
			require.NoError(t, err)
			require.Len(t, msg.Files, 1, msg.Content)
			assert.Equal(t, ".png", filepath.Ext(msg.Files[0].Name))
			assert.True(t, bytes.HasPrefix(msg.Files[0].Data, pngMagic))
			assert.Empty(t, msg.Files[0].Path)
		})
	}
	assert.Equal(t, 0, ws.Sessions())
}

func TestEvaluateGScriptPrimitive(t *testing.T) {
	e, _ := newMediaEngine(t)
	msg, err := e.Evaluate(context.Background(), invocation("u1"), "done{gscript:create bg 64 64 black; render bg}", "")
	require.NoError(t, err)
	assert.Equal(t, "done", msg.Content)
	require.Len(t, msg.Files, 1)
	assert.True(t, bytes.HasPrefix(msg.Files[0].Data, pngMagic))
}

func TestRunScriptUnknownOperation(t *testing.T) {
	e, _ := newMediaEngine(t)
	msg, err := e.RunScript(context.Background(), invocation("u1"), "explode bg")
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "unknown operation 'explode'")
	assert.Empty(t, msg.Files)
}

func TestRunScriptLoadTrimRender(t *testing.T) {
	requireFFmpeg(t)
	clip := filepath.Join(t.TempDir(), "clip.mp4")
	gen := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=duration=3:size=160x120:rate=15",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=3",
		"-shortest", "-pix_fmt", "yuv420p", clip)
	out, err := gen.CombinedOutput()
	require.NoError(t, err, string(out))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeFile(w, r, clip)
	}))
	defer srv.Close()

	e, _ := newMediaEngine(t)
	msg, err := e.RunScript(context.Background(), invocation("u1"),
		"load "+srv.URL+"/clip.mp4 clip\ntrim clip 0.5 1.5 short\nrender short")
	require.NoError(t, err)
	require.Len(t, msg.Files, 1, msg.Content)
	assert.Equal(t, ".mp4", filepath.Ext(msg.Files[0].Name))
	assert.NotEmpty(t, msg.Files[0].Data)
}

func TestRunScriptCreateConcatRender(t *testing.T) {
	requireFFmpeg(t)
	e, _ := newMediaEngine(t)
	msg, err := e.RunScript(context.Background(), invocation("u1"),
		"create a 320 240 red\ncreate b 200 200 blue\nconcat a b joined\nrender joined")
	require.NoError(t, err)
	require.Len(t, msg.Files, 1, msg.Content)
	assert.Equal(t, ".mp4", filepath.Ext(msg.Files[0].Name))
	assert.NotEmpty(t, msg.Files[0].Data)
}
