package tags

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DefaultMaxDepth bounds template nesting.
const DefaultMaxDepth = 20

// ErrMaxDepth is reported when templates nest deeper than allowed.
var ErrMaxDepth = errors.New("maximum nesting depth exceeded")

// Formatter evaluates templates against a registry.
type Formatter struct {
	registry *Registry
	maxDepth int
	logger   *zap.Logger
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(f *Formatter) {
		if n > 0 {
			f.maxDepth = n
		}
	}
}

// WithLogger sets the logger used for recovered panics.
func WithLogger(l *zap.Logger) Option {
	return func(f *Formatter) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFormatter returns a formatter resolving primitives from reg.
func NewFormatter(reg *Registry, opts ...Option) *Formatter {
	f := &Formatter{
		registry: reg,
		maxDepth: DefaultMaxDepth,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Registry returns the formatter's registry.
func (f *Formatter) Registry() *Registry {
	return f.registry
}

// Format evaluates template. Primitive failures are rendered inline as
// "[name error: detail]"; Format itself never fails. Escaped braces are
// left escaped, see Unescape.
func (f *Formatter) Format(ctx context.Context, tc *Context, template string) *Output {
	tc.formatter = f
	return f.format(ctx, tc, template)
}

func (f *Formatter) format(ctx context.Context, tc *Context, s string) *Output {
	out := &Output{}
	for _, ch := range Lex(s) {
		if !ch.Tag {
			out.WriteText(ch.Text)
			continue
		}
		out.Merge(f.group(ctx, tc, ch.Text))
	}
	return out
}

// group evaluates one brace group. Groups that do not name a primitive,
// such as JSON objects, are kept as literal braces around their formatted
// body.
func (f *Formatter) group(ctx context.Context, tc *Context, body string) *Output {
	name, args := splitTag(body)
	p, ok := f.registry.Get(name)
	if !validName(name) || !ok {
		if tc.depth >= f.maxDepth {
			return Text("{" + body + "}")
		}
		tc.depth++
		inner := f.format(ctx, tc, body)
		tc.depth--
		out := inner.detach()
		out.WriteText("{" + inner.Text() + "}")
		return out
	}

	if tc.depth >= f.maxDepth {
		return Text(errorText(name, ErrMaxDepth))
	}
	tc.depth++
	defer func() { tc.depth-- }()

	call := &Call{Name: name}
	out := &Output{}
	switch p.Mode {
	case Lazy:
		call.Args = args
	case Eager:
		inner := f.format(ctx, tc, args)
		call.Args = inner.Text()
		out = inner.detach()
	case Component:
		inner := f.format(ctx, tc, args)
		call.Args = inner.Text()
		call.Inner = inner.detach()
	}

	res, err := f.invoke(ctx, tc, p, call)
	if err != nil {
		out.WriteText(errorText(name, err))
		return out
	}
	out.Merge(Normalize(res))
	return out
}

func (f *Formatter) invoke(ctx context.Context, tc *Context, p *Primitive, call *Call) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("primitive panicked",
				zap.String("primitive", p.Name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			res, err = nil, fmt.Errorf("%v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Fn(ctx, tc, call)
}

// detach returns the structured part of o without its text.
func (o *Output) detach() *Output {
	return &Output{
		Embeds:  o.Embeds,
		View:    o.View,
		Files:   o.Files,
		Dropped: o.Dropped,
	}
}

func errorText(name string, err error) string {
	return fmt.Sprintf("[%s error: %v]", name, err)
}
