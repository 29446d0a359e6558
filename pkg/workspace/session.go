package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/process"
)

// ErrClosed is returned when a closed session is used.
var ErrClosed = errors.New("session closed")

// Session is the per-invocation scratch area: a media cache, the files it
// allocated and the subprocesses it started.
type Session struct {
	ID string

	ws    *Workspace
	dir   string
	cache *MediaCache

	mu     sync.Mutex
	files  map[string]struct{}
	procs  map[*process.Handle]struct{}
	closed bool
}

func newSession(w *Workspace, id, dir string) *Session {
	s := &Session{
		ID:    id,
		ws:    w,
		dir:   dir,
		files: make(map[string]struct{}),
		procs: make(map[*process.Handle]struct{}),
	}
	s.cache = newMediaCache(s)
	return s
}

// Dir returns the session directory.
func (s *Session) Dir() string {
	return s.dir
}

// Cache returns the session's media cache.
func (s *Session) Cache() *MediaCache {
	return s.cache
}

// Allocate creates an empty uniquely named file with the given extension
// ("png" or ".png") and registers it for cleanup.
func (s *Session) Allocate(ext string) (string, error) {
	ext = normalizeExt(ext)
	return s.create(filepath.Join(s.dir, uuid.NewString()+ext))
}

// AllocateNamed creates name inside a fresh subdirectory so callers can
// choose the final file name of an artifact.
func (s *Session) AllocateNamed(name string) (string, error) {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("invalid file name")
	}
	sub := filepath.Join(s.dir, uuid.NewString())
	if err := os.Mkdir(sub, 0o755); err != nil {
		return "", fmt.Errorf("allocate: %w", err)
	}
	return s.create(filepath.Join(sub, name))
}

func (s *Session) create(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("allocate: %w", err)
	}
	f.Close()

	s.files[path] = struct{}{}
	return path, nil
}

// Adopt registers an existing file under the session directory for cleanup.
func (s *Session) Adopt(path string) error {
	if !s.Owns(path) {
		return fmt.Errorf("%s is outside the session directory", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.files[path] = struct{}{}
	return nil
}

// Release deletes one tracked file.
func (s *Session) Release(path string) {
	s.mu.Lock()
	delete(s.files, path)
	s.mu.Unlock()
	s.remove(path)
}

// Owns reports whether path lies inside the session directory.
func (s *Session) Owns(path string) bool {
	rel, err := filepath.Rel(s.dir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Files returns the number of tracked files.
func (s *Session) Files() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Track implements process.Tracker. A process started after Close is
// terminated immediately.
func (s *Session) Track(h *process.Handle) {
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.procs[h] = struct{}{}
	}
	s.mu.Unlock()
	if closed {
		go h.Terminate(s.ws.killGrace)
	}
}

// Untrack implements process.Tracker.
func (s *Session) Untrack(h *process.Handle) {
	s.mu.Lock()
	delete(s.procs, h)
	s.mu.Unlock()
}

// ActiveProcesses returns the number of live tracked subprocesses.
func (s *Session) ActiveProcesses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// Close terminates tracked subprocesses, deletes tracked files and removes
// the session directory. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	procs := make([]*process.Handle, 0, len(s.procs))
	for h := range s.procs {
		procs = append(procs, h)
	}
	files := make([]string, 0, len(s.files))
	for f := range s.files {
		files = append(files, f)
	}
	s.procs = map[*process.Handle]struct{}{}
	s.files = map[string]struct{}{}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range procs {
		wg.Add(1)
		go func(h *process.Handle) {
			defer wg.Done()
			h.Terminate(s.ws.killGrace)
		}(h)
	}
	wg.Wait()

	for _, f := range files {
		s.remove(f)
	}
	s.cache.Reset()

	err := os.RemoveAll(s.dir)
	s.ws.forget(s.ID)
	s.ws.logger.Debug("session closed",
		zap.String("session", s.ID),
		zap.Int("files", len(files)),
		zap.Int("processes", len(procs)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(strings.ToLower(ext))
	if ext == "" {
		return ".tmp"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func (s *Session) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return
	}
	// Named artifacts live in their own subdirectory.
	if parent := filepath.Dir(path); parent != s.dir && s.Owns(parent) {
		_ = os.Remove(parent)
	}
}
