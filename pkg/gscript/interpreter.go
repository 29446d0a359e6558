package gscript

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/storage"
)

// ErrEmptyScript is returned for scripts without statements.
var ErrEmptyScript = errors.New("script is empty")

// ScriptError carries the error lines of a failed run.
type ScriptError struct {
	Errors []string
}

func (e *ScriptError) Error() string {
	return strings.Join(e.Errors, "\n")
}

func scriptError(format string, args ...interface{}) *ScriptError {
	return &ScriptError{Errors: []string{fmt.Sprintf(format, args...)}}
}

// Output is what a successful run rendered.
type Output struct {
	// Files are rendered artifacts inside the session directory, in render
	// order.
	Files []string

	// Uploaded holds the destination URIs when an output URI is set.
	Uploaded []string

	// Implicit reports that no render statement ran and the last produced
	// key was rendered instead.
	Implicit bool
}

// Interpreter runs scripts against a session's media cache.
type Interpreter struct {
	registry  *operators.Registry
	logger    *zap.Logger
	outputURI string
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithRegistry replaces the global operation registry.
func WithRegistry(r *operators.Registry) Option {
	return func(in *Interpreter) {
		if r != nil {
			in.registry = r
		}
	}
}

// WithLogger sets the logger used for step timings.
func WithLogger(l *zap.Logger) Option {
	return func(in *Interpreter) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithOutputURI uploads every rendered file under uri (s3://, gs:// or
// file://) after a successful run.
func WithOutputURI(uri string) Option {
	return func(in *Interpreter) {
		in.outputURI = strings.TrimSpace(uri)
	}
}

// New creates an interpreter.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		registry: operators.GlobalRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run executes script. The media cache is cleared first; statements run in
// order and the first failure stops the run. When no statement renders,
// the last produced key is rendered in its current format.
func (in *Interpreter) Run(ctx context.Context, env *operators.Env, script string) (*Output, error) {
	stmts, err := Parse(script)
	if err != nil {
		return nil, &ScriptError{Errors: []string{err.Error()}}
	}
	if len(stmts) == 0 {
		return nil, ErrEmptyScript
	}

	cache := env.Session.Cache()
	cache.Reset()

	out := &Output{}
	var lastKey string
	for _, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return nil, scriptError("line %d: %v", stmt.Line, err)
		}

		res, err := in.step(ctx, env, stmt)
		if err != nil {
			return nil, scriptError("line %d: %v", stmt.Line, err)
		}
		switch {
		case res.Rendered != "":
			out.Files = append(out.Files, res.Rendered)
		case res.Key != "":
			lastKey = res.Key
		}
	}

	if len(out.Files) == 0 {
		if lastKey == "" {
			return nil, scriptError("render error: nothing to render")
		}
		res, err := in.step(ctx, env, Statement{Op: "render", Args: []Token{{Text: lastKey, Eq: -1}}})
		if err != nil {
			return nil, scriptError("%v", err)
		}
		out.Files = append(out.Files, res.Rendered)
		out.Implicit = true
	}

	if in.outputURI != "" && env.Storage != nil {
		if err := in.upload(ctx, env.Storage, out); err != nil {
			return nil, scriptError("render error: %v", err)
		}
	}
	return out, nil
}

// step binds and executes one statement. A failed operation never leaves
// a half-written output key behind.
func (in *Interpreter) step(ctx context.Context, env *operators.Env, stmt Statement) (*operators.Result, error) {
	op, err := in.registry.Get(stmt.Op)
	if err != nil {
		return nil, err
	}
	params, err := bind(op, stmt.Args)
	if err != nil {
		return nil, operators.Wrap(op.Name(), err)
	}

	cache := env.Session.Cache()
	outKey := outputKey(op, params)
	var before string
	if e, ok := cache.Get(outKey); ok {
		before = e.Path
	}

	start := time.Now()
	res, err := op.Execute(ctx, env, params)
	in.logger.Debug("gscript step",
		zap.Int("line", stmt.Line),
		zap.String("op", op.Name()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	if err != nil {
		if e, ok := cache.Get(outKey); ok && outKey != "" && e.Path != before {
			cache.Remove(outKey)
		}
		return nil, operators.Wrap(op.Name(), err)
	}
	if res == nil {
		res = &operators.Result{}
	}
	return res, nil
}

// outputKey names the key op writes: output_key, or media_key for the
// source operations.
func outputKey(op operators.Operator, p operators.Params) string {
	if p.Has("output_key") {
		return p.String("output_key")
	}
	if op.Category() == operators.CategorySource {
		return p.String("media_key")
	}
	return ""
}

func (in *Interpreter) upload(ctx context.Context, m *storage.Manager, out *Output) error {
	for _, f := range out.Files {
		dest := storage.JoinURI(in.outputURI, filepath.Base(f))
		if err := m.Upload(ctx, f, dest); err != nil {
			return fmt.Errorf("upload %s: %w", filepath.Base(f), err)
		}
		in.logger.Info("uploaded render", zap.String("uri", dest))
		out.Uploaded = append(out.Uploaded, dest)
	}
	return nil
}
