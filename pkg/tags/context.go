package tags

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/platform"
)

// Context is the per-invocation state every primitive sees. It is not
// safe for concurrent use; one invocation formats on one goroutine.
type Context struct {
	Invocation *platform.Invocation

	// RawArgs is the argument string the template was invoked with, Args
	// its quote-aware words.
	RawArgs string
	Args    []string

	// Vars holds {set:} variables for the lifetime of the invocation.
	Vars map[string]string

	// Media is the invocation's media environment, nil when media
	// primitives are unavailable.
	Media *operators.Env

	Directory platform.Directory
	Now       func() time.Time
	Rand      *rand.Rand

	formatter *Formatter
	depth     int
}

// NewContext returns a context for inv invoked with args.
func NewContext(inv *platform.Invocation, args string) *Context {
	if inv == nil {
		inv = &platform.Invocation{}
	}
	return &Context{
		Invocation: inv,
		RawArgs:    args,
		Args:       SplitWords(args),
		Vars:       map[string]string{},
		Now:        time.Now,
		Rand:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithArgs returns a context sharing tc's variables, media session and
// nesting depth but invoked with different arguments.
func (tc *Context) WithArgs(args string) *Context {
	child := *tc
	child.RawArgs = args
	child.Args = SplitWords(args)
	return &child
}

// Depth returns the current nesting depth.
func (tc *Context) Depth() int {
	return tc.depth
}

// Eval formats s with the formatter running tc.
func (tc *Context) Eval(ctx context.Context, s string) *Output {
	if tc.formatter == nil {
		return Text(s)
	}
	return tc.formatter.format(ctx, tc, s)
}

// Arg returns the i-th invocation argument, or "" when absent.
func (tc *Context) Arg(i int) string {
	if i < 0 {
		i += len(tc.Args)
	}
	if i < 0 || i >= len(tc.Args) {
		return ""
	}
	return tc.Args[i]
}

// Rest joins the invocation arguments from i on.
func (tc *Context) Rest(i int) string {
	if i < 0 || i >= len(tc.Args) {
		return ""
	}
	return strings.Join(tc.Args[i:], " ")
}
