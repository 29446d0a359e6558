// Package workspace owns the on-disk scratch area used by media sessions.
//
// A Workspace is a process-global root directory partitioned into one UUID
// directory per Session. Sessions delete their own files on Close; the
// sweeper reclaims whatever leaks past that.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxAge        = 24 * time.Hour
	DefaultSweepInterval = time.Hour
	DefaultKillGrace     = 2 * time.Second
)

// Workspace is the root of all session directories.
type Workspace struct {
	root      string
	maxAge    time.Duration
	interval  time.Duration
	killGrace time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithMaxAge sets the sweeper's age threshold.
func WithMaxAge(d time.Duration) Option {
	return func(w *Workspace) {
		if d > 0 {
			w.maxAge = d
		}
	}
}

// WithSweepInterval sets how often Run sweeps.
func WithSweepInterval(d time.Duration) Option {
	return func(w *Workspace) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithKillGrace sets the SIGTERM to SIGKILL delay used at session teardown.
func WithKillGrace(d time.Duration) Option {
	return func(w *Workspace) {
		if d > 0 {
			w.killGrace = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

// DefaultRoot is $TMPDIR/gscript.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), "gscript")
}

// New creates the root directory if needed.
func New(root string, opts ...Option) (*Workspace, error) {
	if root == "" {
		root = DefaultRoot()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	w := &Workspace{
		root:      abs,
		maxAge:    DefaultMaxAge,
		interval:  DefaultSweepInterval,
		killGrace: DefaultKillGrace,
		logger:    zap.NewNop(),
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute root directory.
func (w *Workspace) Root() string {
	return w.root
}

// NewSession creates a fresh session directory.
func (w *Workspace) NewSession() (*Session, error) {
	id := uuid.NewString()
	dir := filepath.Join(w.root, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	s := newSession(w, id, dir)
	w.mu.Lock()
	w.sessions[id] = s
	w.mu.Unlock()

	w.logger.Debug("session opened", zap.String("session", id))
	return s, nil
}

// Sessions returns the number of registered sessions.
func (w *Workspace) Sessions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}

func (w *Workspace) forget(id string) {
	w.mu.Lock()
	delete(w.sessions, id)
	w.mu.Unlock()
}

// SweepStats reports what a sweep removed.
type SweepStats struct {
	StaleSessions int
	Files         int
	Dirs          int
}

// Sweep performs one age-based cleanup pass:
//  1. forget registered sessions whose directory no longer exists,
//  2. delete files older than max-age,
//  3. delete empty session directories older than max-age.
//
// Files that vanish mid-sweep are ignored.
func (w *Workspace) Sweep() SweepStats {
	var stats SweepStats
	cutoff := w.now().Add(-w.maxAge)

	w.mu.Lock()
	for id, s := range w.sessions {
		if _, err := os.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
			delete(w.sessions, id)
			stats.StaleSessions++
		}
	}
	w.mu.Unlock()

	var dirs []string
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == w.root {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				stats.Files++
			} else if !errors.Is(err, fs.ErrNotExist) {
				w.logger.Warn("sweep: remove file", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})

	// Deepest first so parents empty out before they are checked.
	for i := len(dirs) - 1; i >= 0; i-- {
		dir := dirs[i]
		info, err := os.Stat(dir)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			stats.Dirs++
		}
	}

	if stats != (SweepStats{}) {
		w.logger.Info("workspace swept",
			zap.Int("stale_sessions", stats.StaleSessions),
			zap.Int("files", stats.Files),
			zap.Int("dirs", stats.Dirs))
	}
	return stats
}

// Run sweeps once immediately and then every interval until ctx is done.
func (w *Workspace) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}
