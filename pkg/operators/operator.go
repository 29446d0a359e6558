// Package operators defines the media operation contract used by GScript:
// operation descriptors, parameter binding and the global registry.
package operators

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/fonts"
	"github.com/chicogong/tagforge/pkg/process"
	"github.com/chicogong/tagforge/pkg/prober"
	"github.com/chicogong/tagforge/pkg/storage"
	"github.com/chicogong/tagforge/pkg/workspace"
)

// Operator is the interface all operations implement
type Operator interface {
	// Name returns the unique operation identifier
	Name() string

	// Category returns the operation category
	Category() Category

	// Describe returns the operation description and parameter schema
	Describe() *OperatorDescriptor

	// Execute runs the operation against the session's media cache.
	// params have already been bound and converted by Bind.
	Execute(ctx context.Context, env *Env, params Params) (*Result, error)
}

// Category represents operation category
type Category string

const (
	CategorySource   Category = "source"   // load, loadsvg, create
	CategoryTimeline Category = "timeline" // trim, speed, reverse, fps, fades, concat
	CategoryAudio    Category = "audio"    // volume, tremolo, audioput*
	CategoryVideo    Category = "video"    // resize, crop, rotate, overlay
	CategoryColor    Category = "color"    // contrast, grayscale, colorkey, ...
	CategoryGraphics Category = "graphics" // text, caption
	CategoryOutput   Category = "output"   // convert, render, clone
)

// OperatorDescriptor describes an operation
type OperatorDescriptor struct {
	Name        string
	Category    Category
	Description string

	// Parameters in positional order.
	Parameters []ParameterDescriptor

	// Variadic names the parameter that collects surplus positional tokens.
	Variadic string
}

// Param returns the descriptor for name.
func (d *OperatorDescriptor) Param(name string) (*ParameterDescriptor, bool) {
	for i := range d.Parameters {
		if d.Parameters[i].Name == name {
			return &d.Parameters[i], true
		}
	}
	return nil, false
}

// Env is what an operation may touch while it runs.
type Env struct {
	Session *workspace.Session
	Runner  *process.Runner
	Prober  *prober.Prober
	Storage *storage.Manager
	Fonts   *fonts.Library
	Logger  *zap.Logger

	// CaptionBand is the caption band height as a fraction of the media
	// height.
	CaptionBand float64
}

// Result is what an operation produced.
type Result struct {
	// Key is the cache key written, if any.
	Key string

	// Rendered is the path of a caller-visible artifact. Only render sets it.
	Rendered string
}

// OpError is an operation failure. It renders as "<op> error: <detail>".
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Errorf builds an OpError for op.
func Errorf(op, format string, args ...interface{}) error {
	return &OpError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches op to err unless err already carries an OpError.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Err: err}
}
