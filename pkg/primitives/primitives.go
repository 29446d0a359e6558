// Package primitives is the tag vocabulary: every name a template can
// call, registered into a tags.Registry.
package primitives

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/codeexec"
	"github.com/chicogong/tagforge/pkg/expr"
	"github.com/chicogong/tagforge/pkg/gscript"
	"github.com/chicogong/tagforge/pkg/storage"
	"github.com/chicogong/tagforge/pkg/store"
	"github.com/chicogong/tagforge/pkg/tags"
)

const (
	// MaxTextFetch bounds {text:} downloads.
	MaxTextFetch = 64 << 10

	// MaxResult bounds primitives that grow their input.
	MaxResult = 10000

	// MaxVars bounds {set:} variables per invocation.
	MaxVars = 100
)

var (
	ErrNoMedia     = errors.New("media is unavailable")
	ErrNoStore     = errors.New("tag storage is unavailable")
	ErrNoSandbox   = errors.New("code execution is not configured")
	ErrTooLong     = fmt.Errorf("result longer than %d characters", MaxResult)
	ErrNoGuild     = errors.New("only available in a server")
	ErrNoDirectory = errors.New("member lookup is unavailable")
)

// Deps are the services primitives reach out to. Any of them may be nil;
// the primitives needing a missing service report it inline.
type Deps struct {
	Store   store.Store
	Code    *codeexec.Client
	GScript *gscript.Interpreter

	// Storage serves {text:} when the invocation has no media session.
	Storage *storage.Manager
	Logger  *zap.Logger
}

// New returns a registry holding the whole vocabulary.
func New(deps Deps) *tags.Registry {
	reg := tags.NewRegistry()
	Register(reg, deps)
	return reg
}

// Register adds the vocabulary to reg. It panics on a name clash.
func Register(reg *tags.Registry, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.GScript == nil {
		deps.GScript = gscript.New(gscript.WithLogger(deps.Logger))
	}
	for _, set := range [][]*tags.Primitive{
		literalPrimitives(),
		argumentPrimitives(),
		stringPrimitives(),
		logicPrimitives(),
		randomPrimitives(),
		timePrimitives(),
		jsonPrimitives(),
		mathPrimitives(),
		variablePrimitives(),
		metaPrimitives(),
		mediaPrimitives(deps),
		uiPrimitives(),
		codePrimitives(deps),
		tagPrimitives(deps),
	} {
		for _, p := range set {
			reg.MustRegister(p)
		}
	}
}

// usage reports a malformed call.
func usage(format string) error {
	return fmt.Errorf("usage: %s", format)
}

// transform wraps a plain string function.
func transform(fn func(string) string) tags.Func {
	return func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
		return fn(call.Args), nil
	}
}

func parseInt(s, what string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got '%s'", what, strings.TrimSpace(s))
	}
	return n, nil
}

// number evaluates s as arithmetic so "{round:10/3|2}" works.
func number(s string) (float64, error) {
	v, err := expr.Eval(strings.TrimSpace(s), nil)
	if err != nil {
		return 0, fmt.Errorf("'%s' is not a number", strings.TrimSpace(s))
	}
	return v, nil
}

func formatNumber(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return expr.Format(v)
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// truthy treats "", "false", "no", "off" and "0" as false.
func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "no", "off", "0":
		return false
	}
	return true
}

// list returns the non-empty trimmed parts of a call.
func list(call *tags.Call) []string {
	var out []string
	for _, p := range call.Parts() {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
