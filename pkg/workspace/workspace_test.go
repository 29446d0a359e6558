package workspace

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/tagforge/pkg/process"
)

func newTestWorkspace(t *testing.T, opts ...Option) *Workspace {
	t.Helper()
	ws, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return ws
}

func TestNewSession_CreatesDirectory(t *testing.T) {
	ws := newTestWorkspace(t)

	s1, err := ws.NewSession()
	require.NoError(t, err)
	s2, err := ws.NewSession()
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID)
	assert.DirExists(t, s1.Dir())
	assert.Equal(t, ws.Root(), filepath.Dir(s1.Dir()))
	assert.Equal(t, 2, ws.Sessions())
}

func TestSession_AllocateAndClose(t *testing.T) {
	ws := newTestWorkspace(t)
	s, err := ws.NewSession()
	require.NoError(t, err)

	a, err := s.Allocate("png")
	require.NoError(t, err)
	b, err := s.Allocate(".mp4")
	require.NoError(t, err)
	named, err := s.AllocateNamed("../../report.txt")
	require.NoError(t, err)

	assert.Equal(t, ".png", filepath.Ext(a))
	assert.Equal(t, ".mp4", filepath.Ext(b))
	assert.Equal(t, "report.txt", filepath.Base(named))
	assert.True(t, s.Owns(a))
	assert.True(t, s.Owns(named))
	assert.False(t, s.Owns(filepath.Join(ws.Root(), "elsewhere.png")))
	assert.Equal(t, 3, s.Files())

	require.NoError(t, s.Close())
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, named)
	assert.NoDirExists(t, s.Dir())
	assert.Equal(t, 0, ws.Sessions())

	_, err = s.Allocate("png")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestSession_AllocateNamedRejectsEmpty(t *testing.T) {
	ws := newTestWorkspace(t)
	s, err := ws.NewSession()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AllocateNamed("")
	assert.Error(t, err)
}

func TestSession_CloseTerminatesProcesses(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	ws := newTestWorkspace(t, WithKillGrace(100*time.Millisecond))
	s, err := ws.NewSession()
	require.NoError(t, err)

	r := process.NewRunner(process.WithKillGrace(100 * time.Millisecond))
	done := make(chan process.Result, 1)
	go func() {
		done <- r.Run(context.Background(), s, process.Spec{
			Label: "Sleep", Path: "sh", Args: []string{"-c", "sleep 5"}, Timeout: 10 * time.Second,
		})
	}()

	require.Eventually(t, func() bool { return s.ActiveProcesses() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case res := <-done:
		assert.False(t, res.OK)
	case <-time.After(4 * time.Second):
		t.Fatal("subprocess outlived its session")
	}
}

func TestSweep(t *testing.T) {
	ws := newTestWorkspace(t, WithMaxAge(time.Hour))
	old := time.Now().Add(-2 * time.Hour)

	// Leaked session directory with an old file.
	leaked := filepath.Join(ws.Root(), "leaked")
	require.NoError(t, os.Mkdir(leaked, 0o755))
	oldFile := filepath.Join(leaked, "a.png")
	require.NoError(t, os.WriteFile(oldFile, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(oldFile, old, old))
	require.NoError(t, os.Chtimes(leaked, old, old))

	// Live session with a fresh file.
	live, err := ws.NewSession()
	require.NoError(t, err)
	fresh, err := live.Allocate("png")
	require.NoError(t, err)

	// Registered session whose directory disappeared.
	gone, err := ws.NewSession()
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(gone.Dir()))

	stats := ws.Sweep()

	assert.Equal(t, 1, stats.StaleSessions)
	assert.Equal(t, 1, stats.Files)
	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, fresh)
	assert.DirExists(t, live.Dir())
	assert.Equal(t, 1, ws.Sessions())

	// The leaked dir's mtime was bumped by the file removal; age it again.
	require.NoError(t, os.Chtimes(leaked, old, old))
	stats = ws.Sweep()
	assert.Equal(t, 1, stats.Dirs)
	assert.NoDirExists(t, leaked)
	assert.DirExists(t, live.Dir())
}

func TestRun_StopsOnCancel(t *testing.T) {
	ws := newTestWorkspace(t, WithSweepInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	finished := make(chan struct{})
	go func() {
		ws.Run(ctx)
		close(finished)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
