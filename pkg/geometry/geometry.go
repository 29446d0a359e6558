// Package geometry resolves dimension expressions such as "iw/2",
// "50%" or "cover(1280,720)" against the media they apply to.
package geometry

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/chicogong/tagforge/pkg/expr"
)

// MaxDimension is the largest accepted resolved size.
const MaxDimension = 16384

// Axis selects which side of the context a percentage or center() refers to.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// Size is a width/height pair.
type Size struct {
	W, H float64
}

// Resolver evaluates expressions in the context of a main media item and an
// optional overlay.
type Resolver struct {
	Main    Size
	Overlay *Size
}

// New returns a Resolver for main.
func New(w, h float64) *Resolver {
	return &Resolver{Main: Size{W: w, H: h}}
}

// WithOverlay binds ow/oh.
func (r *Resolver) WithOverlay(w, h float64) *Resolver {
	cp := *r
	cp.Overlay = &Size{W: w, H: h}
	return &cp
}

func (r *Resolver) axisLen(a Axis) float64 {
	if a == AxisY {
		return r.Main.H
	}
	return r.Main.W
}

func (r *Resolver) env(a Axis) *expr.Env {
	vars := map[string]float64{}
	for _, k := range []string{"iw", "w", "W", "width", "main_w"} {
		vars[k] = r.Main.W
	}
	for _, k := range []string{"ih", "h", "H", "height", "main_h"} {
		vars[k] = r.Main.H
	}
	if r.Overlay != nil {
		for _, k := range []string{"ow", "OW", "overlay_w", "OVERLAY_W"} {
			vars[k] = r.Overlay.W
		}
		for _, k := range []string{"oh", "OH", "overlay_h", "OVERLAY_H"} {
			vars[k] = r.Overlay.H
		}
	}

	axis := r.axisLen(a)
	main := r.Main
	two := func(name string, f func(a, b float64) float64) expr.Func {
		return func(args []float64) (float64, error) {
			if len(args) != 2 {
				return 0, errors.New(name + " takes 2 arguments")
			}
			return f(args[0], args[1]), nil
		}
	}

	return &expr.Env{
		Vars: vars,
		Funcs: map[string]expr.Func{
			"fill":    two("fill", math.Max),
			"contain": two("contain", math.Min),
			"stretch": two("stretch", func(a, _ float64) float64 { return a }),
			"cover": two("cover", func(a, b float64) float64 {
				if main.W <= 0 || main.H <= 0 {
					return a
				}
				scale := math.Max(a/main.W, b/main.H)
				return main.W * scale
			}),
			"center": func(args []float64) (float64, error) {
				if len(args) != 1 {
					return 0, errors.New("center takes 1 argument")
				}
				return (axis - args[0]) / 2, nil
			},
		},
		Percent: func(v float64) float64 { return v / 100 * axis },
	}
}

// Eval evaluates s for the given axis without range checks.
func (r *Resolver) Eval(s string, a Axis) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, expr.ErrEmpty
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	return expr.Eval(s, r.env(a))
}

// Resolve returns a size in pixels. Parse errors and results outside
// [0, MaxDimension] resolve to 0.
func (r *Resolver) Resolve(s string, a Axis) int {
	v, err := r.Eval(s, a)
	if err != nil || v < 0 || v > MaxDimension {
		return 0
	}
	return int(math.Round(v))
}

// ResolveOffset returns a position, which may be negative. Errors and
// magnitudes beyond MaxDimension resolve to 0.
func (r *Resolver) ResolveOffset(s string, a Axis) int {
	v, err := r.Eval(s, a)
	if err != nil || math.Abs(v) > MaxDimension {
		return 0
	}
	return int(math.Round(v))
}

// Even rounds n down to an even number, with a floor of 2. Most encoders
// reject odd yuv420p dimensions.
func Even(n int) int {
	if n < 2 {
		return 2
	}
	return n &^ 1
}
