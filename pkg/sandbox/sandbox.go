// Package sandbox is the code execution service the codeexec client talks
// to. Every request runs in a fresh directory under the service root; files
// the program leaves behind are served once and deleted shortly after.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/process"
)

const (
	// DefaultMaxFileSize bounds each uploaded file.
	DefaultMaxFileSize = 10 << 20

	// DefaultTimeout bounds one program run.
	DefaultTimeout = 30 * time.Second

	// DefaultDeleteAfter is how long a served file is kept.
	DefaultDeleteAfter = 10 * time.Second

	// maxOutput bounds the program output returned to the caller.
	maxOutput = 64 << 10
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrInvalidFilename     = errors.New("invalid filename")
)

// Language describes how to run a source file. The source path is appended
// to Command.
type Language struct {
	Name    string
	Source  string
	Command []string
}

// DefaultLanguages returns the languages served out of the box.
func DefaultLanguages() map[string]Language {
	return map[string]Language{
		"bash":       {Name: "bash", Source: "main.sh", Command: []string{"bash"}},
		"python":     {Name: "python", Source: "main.py", Command: []string{"python3", "-u"}},
		"javascript": {Name: "javascript", Source: "main.js", Command: []string{"node"}},
		"typescript": {Name: "typescript", Source: "main.ts", Command: []string{"npx", "--yes", "tsx"}},
	}
}

// Service runs programs and serves their files.
type Service struct {
	root        string
	languages   map[string]Language
	timeout     time.Duration
	maxFileSize int64
	deleteAfter time.Duration
	runner      *process.Runner
	logger      *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option configures a Service.
type Option func(*Service)

// WithLanguages replaces the language table.
func WithLanguages(langs map[string]Language) Option {
	return func(s *Service) {
		if len(langs) > 0 {
			s.languages = langs
		}
	}
}

// WithTimeout bounds each run.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxFileSize bounds each upload.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFileSize = n
		}
	}
}

// WithDeleteAfter sets how long served files are kept.
func WithDeleteAfter(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.deleteAfter = d
		}
	}
}

// WithRunner sets the process runner.
func WithRunner(r *process.Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates the service root if needed.
func New(root string, opts ...Option) (*Service, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "sandbox")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	s := &Service{
		root:        abs,
		languages:   DefaultLanguages(),
		timeout:     DefaultTimeout,
		maxFileSize: DefaultMaxFileSize,
		deleteAfter: DefaultDeleteAfter,
		logger:      zap.NewNop(),
		pending:     make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = process.NewRunner(process.WithLogger(s.logger))
	}
	return s, nil
}

// Root returns the execution root.
func (s *Service) Root() string {
	return s.root
}

// Languages returns the served language names, sorted.
func (s *Service) Languages() []string {
	names := make([]string, 0, len(s.languages))
	for name := range s.languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// language looks a language up by name.
func (s *Service) language(name string) (Language, error) {
	lang, ok := s.languages[strings.ToLower(name)]
	if !ok {
		return Language{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, name)
	}
	return lang, nil
}

// checkName rejects filenames that could leave the execution directory.
func checkName(name string) error {
	if name == "" || name == "." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// scheduleDelete removes path after the configured delay, then removes its
// directory when nothing else is left in it.
func (s *Service) scheduleDelete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[path]; ok {
		t.Reset(s.deleteAfter)
		return
	}
	s.pending[path] = time.AfterFunc(s.deleteAfter, func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()
		s.remove(path)
	})
}

func (s *Service) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to delete served file", zap.String("path", path), zap.Error(err))
	}
	removeIfEmpty(filepath.Dir(path))
}

// removeIfEmpty deletes dir when it holds no entries.
func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
}

// Close runs every pending deletion immediately.
func (s *Service) Close() error {
	s.mu.Lock()
	paths := make([]string, 0, len(s.pending))
	for p, t := range s.pending {
		if t.Stop() {
			paths = append(paths, p)
		}
	}
	s.pending = make(map[string]*time.Timer)
	s.mu.Unlock()

	for _, p := range paths {
		s.remove(p)
	}
	return nil
}
