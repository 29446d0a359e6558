package builtin

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chicogong/tagforge/pkg/geometry"
	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/schemas"
)

func init() {
	operators.Register(&ResizeOperator{base{operators.OperatorDescriptor{
		Name:        "resize",
		Category:    operators.CategoryVideo,
		Description: "Scale to width x height; -1 or auto keeps the aspect ratio",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			reqStr("width", "dimension expression"),
			reqStr("height", "dimension expression"),
			key("output_key"),
		},
	}}})
	operators.Register(&CropOperator{base{operators.OperatorDescriptor{
		Name:        "crop",
		Category:    operators.CategoryVideo,
		Description: "Crop a width x height window at x, y",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			reqStr("x", "offset expression"),
			reqStr("y", "offset expression"),
			reqStr("width", "dimension expression"),
			reqStr("height", "dimension expression"),
			key("output_key"),
		},
	}}})
	operators.Register(&RotateOperator{base{operators.OperatorDescriptor{
		Name:        "rotate",
		Category:    operators.CategoryVideo,
		Description: "Rotate by radians, degrees (90deg) or an ffmpeg expression of t",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			reqStr("angle", "radians, Ndeg or expression"),
			key("output_key"),
		},
	}}})
	operators.Register(&OverlayOperator{base{operators.OperatorDescriptor{
		Name:        "overlay",
		Category:    operators.CategoryVideo,
		Description: "Place overlay_key on base_key at x, y",
		Parameters: []operators.ParameterDescriptor{
			key("base_key"),
			key("overlay_key"),
			str("x", "0"),
			str("y", "0"),
			key("output_key"),
		},
	}}})
}

// ResizeOperator scales media. Sizes are expressions evaluated against the
// input (iw, ih, 50%, contain(...)).
type ResizeOperator struct{ base }

func (o *ResizeOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if err := needVisual(in); err != nil {
		return nil, err
	}

	dims := inspect(ctx, env, in)
	r := geometry.New(float64(dims.Width), float64(dims.Height))
	w, h, err := resolveSize(r, p.String("width"), p.String("height"), dims)
	if err != nil {
		return nil, err
	}
	if kindOf(in) == schemas.KindVideo {
		w, h = evenDims(w, h)
	}

	dst, err := filterMedia(ctx, env, in, filters{video: fmt.Sprintf("scale=%d:%d:flags=bicubic", w, h)})
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

func keepsAspect(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "-1" || s == "auto"
}

// resolveSize evaluates a width/height pair, filling one auto side from the
// input's aspect ratio.
func resolveSize(r *geometry.Resolver, ws, hs string, dims schemas.Dimensions) (int, int, error) {
	autoW, autoH := keepsAspect(ws), keepsAspect(hs)
	if autoW && autoH {
		return 0, 0, fmt.Errorf("width and height cannot both be auto")
	}

	var w, h int
	if !autoW {
		if w = r.Resolve(ws, geometry.AxisX); w <= 0 {
			return 0, 0, fmt.Errorf("invalid width '%s'", ws)
		}
	}
	if !autoH {
		if h = r.Resolve(hs, geometry.AxisY); h <= 0 {
			return 0, 0, fmt.Errorf("invalid height '%s'", hs)
		}
	}
	if autoW {
		w = max(1, int(math.Round(float64(h)*float64(dims.Width)/float64(dims.Height))))
	}
	if autoH {
		h = max(1, int(math.Round(float64(w)*float64(dims.Height)/float64(dims.Width))))
	}
	return w, h, nil
}

// CropOperator cuts a window, clamped to the frame.
type CropOperator struct{ base }

func (o *CropOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if err := needVisual(in); err != nil {
		return nil, err
	}

	dims := inspect(ctx, env, in)
	r := geometry.New(float64(dims.Width), float64(dims.Height))
	x := r.Resolve(p.String("x"), geometry.AxisX)
	y := r.Resolve(p.String("y"), geometry.AxisY)
	w := r.Resolve(p.String("width"), geometry.AxisX)
	h := r.Resolve(p.String("height"), geometry.AxisY)

	if x >= dims.Width || y >= dims.Height {
		return nil, fmt.Errorf("crop origin %d,%d is outside %dx%d", x, y, dims.Width, dims.Height)
	}
	w = min(w, dims.Width-x)
	h = min(h, dims.Height-y)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid crop size")
	}
	if kindOf(in) == schemas.KindVideo {
		w, h = evenDims(w, h)
	}

	dst, err := filterMedia(ctx, env, in, filters{video: fmt.Sprintf("crop=%d:%d:%d:%d", w, h, x, y)})
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// RotateOperator rotates frames. Constant angles grow the canvas to fit the
// rotated frame; expressions keep a canvas of the frame's diagonal.
type RotateOperator struct{ base }

func (o *RotateOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if err := needVisual(in); err != nil {
		return nil, err
	}

	angle, constant := parseAngle(p.String("angle"))
	fillColor := "black"
	prefix := ""
	if kindOf(in) != schemas.KindVideo {
		prefix = "format=rgba,"
		fillColor = "none"
	}

	var vf string
	if constant {
		a := ff(angle)
		vf = fmt.Sprintf("%srotate=%s:ow=rotw(%s):oh=roth(%s):c=%s", prefix, a, a, a, fillColor)
	} else {
		a := escapeFilter(strings.TrimSpace(p.String("angle")))
		vf = fmt.Sprintf("%srotate='%s':ow=hypot(iw\\,ih):oh=ow:c=%s", prefix, a, fillColor)
	}

	dst, err := filterMedia(ctx, env, in, filters{video: vf})
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// parseAngle reads radians or "Ndeg". ok is false for expressions.
func parseAngle(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if deg, found := strings.CutSuffix(s, "deg"); found {
		v, err := strconv.ParseFloat(strings.TrimSpace(deg), 64)
		if err == nil {
			return v * math.Pi / 180, true
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

// OverlayOperator composites one entry over another. The output length
// follows the moving input: a still over a video loops, a video over a
// still takes the video's length, two stills give one frame.
type OverlayOperator struct{ base }

func (o *OverlayOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	baseEntry, err := lookup(env, p.String("base_key"))
	if err != nil {
		return nil, err
	}
	over, err := lookup(env, p.String("overlay_key"))
	if err != nil {
		return nil, err
	}
	if err := needVisual(baseEntry); err != nil {
		return nil, err
	}
	if err := needVisual(over); err != nil {
		return nil, err
	}

	bd := inspect(ctx, env, baseEntry)
	od := inspect(ctx, env, over)
	r := geometry.New(float64(bd.Width), float64(bd.Height)).WithOverlay(float64(od.Width), float64(od.Height))
	x := overlayOffset(r, p.String("x"), geometry.AxisX, bd.Width, od.Width)
	y := overlayOffset(r, p.String("y"), geometry.AxisY, bd.Height, od.Height)

	baseKind, overKind := kindOf(baseEntry), kindOf(over)
	baseStill := baseKind == schemas.KindImage
	overStill := overKind == schemas.KindImage

	j := &job{}
	var ext string
	switch {
	case baseStill && overStill:
		ext = extOf(baseEntry)
		j.input(baseEntry.Path)
		j.input(over.Path)
		j.filter("[0:v][1:v]overlay=%d:%d[v]", x, y)
		j.mapStream("[v]")
		j.output(encodeArgs(ext)...)
	case baseStill:
		ext = extOf(over)
		j.input(baseEntry.Path, "-loop", "1")
		j.input(over.Path)
		if overKind == schemas.KindAnimated {
			j.filter(paletteGraph("[0:v][1:v]", fmt.Sprintf("overlay=%d:%d:shortest=1", x, y)))
		} else {
			j.filter("[0:v][1:v]overlay=%d:%d:shortest=1,%s[v]", x, y, evenScale)
			j.mapStream("[v]", "1:a?")
			j.output(encodeArgs(ext)...)
		}
	default:
		ext = extOf(baseEntry)
		if overStill {
			j.input(baseEntry.Path)
			j.input(over.Path, "-loop", "1")
		} else {
			j.input(baseEntry.Path)
			j.input(over.Path)
		}
		graph := fmt.Sprintf("overlay=%d:%d:shortest=%d:eof_action=pass", x, y, boolInt(overStill))
		if baseKind == schemas.KindAnimated {
			j.filter(paletteGraph("[0:v][1:v]", graph))
		} else {
			j.filter("[0:v][1:v]%s,%s[v]", graph, evenScale)
			j.mapStream("[v]", "0:a?")
			j.output(encodeArgs(ext)...)
		}
	}

	dst, err := env.Session.Allocate(ext)
	if err != nil {
		return nil, err
	}
	if err := j.run(ctx, env, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// overlayOffset resolves a coordinate; "center" centers the overlay.
func overlayOffset(r *geometry.Resolver, s string, axis geometry.Axis, baseLen, overLen int) int {
	if strings.EqualFold(strings.TrimSpace(s), "center") {
		return (baseLen - overLen) / 2
	}
	return r.ResolveOffset(s, axis)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
