// Package engine runs tag invocations: it owns the media session of each
// invocation, formats the template and assembles the reply message.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/codeexec"
	"github.com/chicogong/tagforge/pkg/fonts"
	"github.com/chicogong/tagforge/pkg/gscript"
	"github.com/chicogong/tagforge/pkg/operators"
	_ "github.com/chicogong/tagforge/pkg/operators/builtin" // registers the GScript operations
	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/primitives"
	"github.com/chicogong/tagforge/pkg/prober"
	"github.com/chicogong/tagforge/pkg/process"
	"github.com/chicogong/tagforge/pkg/storage"
	"github.com/chicogong/tagforge/pkg/store"
	"github.com/chicogong/tagforge/pkg/tags"
	"github.com/chicogong/tagforge/pkg/workspace"
)

// Engine evaluates templates for invocations. It is safe for concurrent
// use; every call gets its own context and media session.
type Engine struct {
	store       store.Store
	code        *codeexec.Client
	workspace   *workspace.Workspace
	runner      *process.Runner
	prober      *prober.Prober
	storage     *storage.Manager
	fonts       *fonts.Library
	gscript     *gscript.Interpreter
	directory   platform.Directory
	captionBand float64
	maxDepth    int
	now         func() time.Time
	logger      *zap.Logger

	formatter *tags.Formatter
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore enables the tag primitive and tag commands.
func WithStore(s store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithCodeExecutor enables the code primitives.
func WithCodeExecutor(c *codeexec.Client) Option {
	return func(e *Engine) {
		e.code = c
	}
}

// WithWorkspace enables media primitives. Without a workspace no media
// session is opened and media primitives report that media is unavailable.
func WithWorkspace(ws *workspace.Workspace) Option {
	return func(e *Engine) {
		e.workspace = ws
	}
}

// WithMedia sets the media tool chain shared by every session.
func WithMedia(runner *process.Runner, p *prober.Prober, lib *fonts.Library) Option {
	return func(e *Engine) {
		e.runner = runner
		e.prober = p
		e.fonts = lib
	}
}

// WithStorage sets the manager used for downloads, text fetches and render
// uploads.
func WithStorage(m *storage.Manager) Option {
	return func(e *Engine) {
		e.storage = m
	}
}

// WithInterpreter replaces the default GScript interpreter.
func WithInterpreter(in *gscript.Interpreter) Option {
	return func(e *Engine) {
		e.gscript = in
	}
}

// WithDirectory sets the user directory for user lookups.
func WithDirectory(d platform.Directory) Option {
	return func(e *Engine) {
		e.directory = d
	}
}

// WithCaptionBand sets the caption band fraction passed to operations.
func WithCaptionBand(f float64) Option {
	return func(e *Engine) {
		if f > 0 && f < 1 {
			e.captionBand = f
		}
	}
}

// WithMaxDepth bounds template nesting.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		e.maxDepth = n
	}
}

// WithClock overrides the wall clock seen by time primitives.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an engine and its primitive registry.
func New(opts ...Option) *Engine {
	e := &Engine{
		captionBand: 0.2,
		maxDepth:    tags.DefaultMaxDepth,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.storage == nil {
		e.storage = storage.NewManager()
	}
	if e.gscript == nil {
		e.gscript = gscript.New(gscript.WithLogger(e.logger))
	}
	if e.runner == nil {
		e.runner = process.NewRunner(process.WithLogger(e.logger))
	}
	if e.prober == nil {
		e.prober = prober.NewProber(e.runner, prober.WithLogger(e.logger))
	}
	if e.fonts == nil {
		e.fonts = fonts.NewLibrary(nil, "", fonts.WithLogger(e.logger))
	}

	reg := primitives.New(primitives.Deps{
		Store:   e.store,
		Code:    e.code,
		GScript: e.gscript,
		Storage: e.storage,
		Logger:  e.logger,
	})
	e.formatter = tags.NewFormatter(reg, tags.WithMaxDepth(e.maxDepth), tags.WithLogger(e.logger))
	return e
}

// Registry returns the primitive registry.
func (e *Engine) Registry() *tags.Registry {
	return e.formatter.Registry()
}

// Store returns the tag store, or nil.
func (e *Engine) Store() store.Store {
	return e.store
}

// Evaluate formats template for inv with args as the invocation arguments.
// The media session opened for the call is closed before Evaluate returns;
// rendered files are read into memory first. Primitive failures are part of
// the message text, so the error is only set when no session could be
// opened or a rendered file vanished.
func (e *Engine) Evaluate(ctx context.Context, inv *platform.Invocation, template, args string) (*platform.Message, error) {
	start := time.Now()
	tc := tags.NewContext(inv, args)
	tc.Now = e.now
	tc.Directory = e.directory

	if e.workspace != nil {
		env, closeSession, err := e.openSession()
		if err != nil {
			return nil, err
		}
		defer closeSession()
		tc.Media = env
	}

	out := e.formatter.Format(ctx, tc, template)
	msg := out.Message()
	msg.Content = tags.Unescape(msg.Content)

	files, err := loadFiles(msg.Files)
	if err != nil {
		return nil, err
	}
	msg.Files = files
	msg.Clamp()

	e.logger.Debug("template evaluated",
		zap.String("invocation", tc.Invocation.ID),
		zap.Int("files", len(msg.Files)),
		zap.Int("embeds", len(msg.Embeds)),
		zap.Duration("duration", time.Since(start)))
	return msg, nil
}

// RunScript runs a GScript program for inv outside any template. Script
// errors become the message content, one line per error, and no files are
// attached.
func (e *Engine) RunScript(ctx context.Context, inv *platform.Invocation, script string) (*platform.Message, error) {
	if e.workspace == nil {
		return nil, errors.New("media is unavailable: no workspace configured")
	}
	env, closeSession, err := e.openSession()
	if err != nil {
		return nil, err
	}
	defer closeSession()

	out, err := e.gscript.Run(ctx, env, script)
	if err != nil {
		var se *gscript.ScriptError
		if errors.As(err, &se) {
			return &platform.Message{Content: strings.Join(se.Errors, "\n")}, nil
		}
		return &platform.Message{Content: err.Error()}, nil
	}

	msg := &platform.Message{Content: strings.Join(out.Uploaded, "\n")}
	for _, p := range out.Files {
		msg.Files = append(msg.Files, platform.File{Name: filepath.Base(p), Path: p})
	}
	if msg.Files, err = loadFiles(msg.Files); err != nil {
		return nil, err
	}
	msg.Clamp()
	return msg, nil
}

// openSession opens a media session and the environment operations run
// in. The returned func closes the session.
func (e *Engine) openSession() (*operators.Env, func(), error) {
	session, err := e.workspace.NewSession()
	if err != nil {
		return nil, nil, fmt.Errorf("open media session: %w", err)
	}
	env := &operators.Env{
		Session:     session,
		Runner:      e.runner,
		Prober:      e.prober,
		Storage:     e.storage,
		Fonts:       e.fonts,
		Logger:      e.logger,
		CaptionBand: e.captionBand,
	}
	closeSession := func() {
		if err := session.Close(); err != nil {
			e.logger.Warn("failed to close media session", zap.String("session", session.ID), zap.Error(err))
		}
	}
	return env, closeSession, nil
}

// loadFiles reads path-backed files into memory so they outlive the
// session directory.
func loadFiles(files []platform.File) ([]platform.File, error) {
	out := make([]platform.File, 0, len(files))
	for _, f := range files {
		if f.Path != "" {
			data, err := os.ReadFile(f.Path)
			if err != nil {
				return nil, fmt.Errorf("read rendered file: %w", err)
			}
			if f.Name == "" {
				f.Name = filepath.Base(f.Path)
			}
			f.Data = data
			f.Path = ""
		}
		out = append(out, f)
	}
	return out, nil
}
