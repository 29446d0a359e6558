package builtin

import (
	"context"
	"fmt"
	"math"

	"github.com/chicogong/tagforge/pkg/colors"
	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/schemas"
)

func init() {
	operators.Register(&TrimOperator{base{operators.OperatorDescriptor{
		Name:        "trim",
		Category:    operators.CategoryTimeline,
		Description: "Cut media to [start_time, end_time]",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			reqStr("start_time", "seconds or timecode"),
			reqStr("end_time", "seconds or timecode"),
			key("output_key"),
		},
	}}})
	operators.Register(&SpeedOperator{base{operators.OperatorDescriptor{
		Name:        "speed",
		Category:    operators.CategoryTimeline,
		Description: "Change playback speed",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			{Name: "speed", Type: operators.TypeFloat, Required: true, Validation: operators.Positive()},
			key("output_key"),
		},
	}}})
	operators.Register(&ReverseOperator{base{operators.OperatorDescriptor{
		Name:        "reverse",
		Category:    operators.CategoryTimeline,
		Description: "Play media backwards",
		Parameters:  []operators.ParameterDescriptor{key("input_key"), key("output_key")},
	}}})
	operators.Register(&FPSOperator{base{operators.OperatorDescriptor{
		Name:        "fps",
		Category:    operators.CategoryTimeline,
		Description: "Set the output frame rate",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			{Name: "fps_value", Type: operators.TypeFloat, Required: true, Validation: operators.Range(0.1, 120)},
			key("output_key"),
		},
	}}})
	operators.Register(&FadeOperator{base: base{operators.OperatorDescriptor{
		Name:        "fadein",
		Category:    operators.CategoryTimeline,
		Description: "Fade in from a background color",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			num("duration", 1, operators.Range(0.01, 600)),
			key("output_key"),
			str("color", "black"),
			flag("audio", true),
		},
	}}, in: true})
	operators.Register(&FadeOperator{base: base{operators.OperatorDescriptor{
		Name:        "fadeout",
		Category:    operators.CategoryTimeline,
		Description: "Fade out to a background color",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			num("start_time", 0, operators.Min(0)),
			num("duration", 1, operators.Range(0.01, 600)),
			key("output_key"),
			str("color", "black"),
			flag("audio", true),
		},
	}}})
}

// TrimOperator cuts with -ss/-to, re-encoding so cuts are frame exact.
type TrimOperator struct{ base }

func (o *TrimOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if kindOf(in) == schemas.KindImage {
		return nil, fmt.Errorf("'%s' is a still image", in.Key)
	}

	start, err := schemas.ParseSeconds(p.String("start_time"))
	if err != nil {
		return nil, fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := schemas.ParseSeconds(p.String("end_time"))
	if err != nil {
		return nil, fmt.Errorf("invalid end_time: %w", err)
	}
	if start < 0 || end <= start {
		return nil, fmt.Errorf("end_time must be after start_time")
	}

	ext := extOf(in)
	dst, err := env.Session.Allocate(ext)
	if err != nil {
		return nil, err
	}

	j := &job{}
	j.input(in.Path)
	j.output("-ss", ff(start), "-to", ff(end))
	switch kindOf(in) {
	case schemas.KindAnimated:
		j.filter(paletteGraph("[0:v]", ""))
	case schemas.KindVideo:
		j.output(encodeArgs(ext)...)
	}
	if err := j.run(ctx, env, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// SpeedOperator retimes video with setpts and audio with a chain of atempo
// stages, since one atempo stage only covers [0.5, 2.0].
type SpeedOperator struct{ base }

func (o *SpeedOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	speed := p.Float("speed")
	tempo, err := atempoChain(speed)
	if err != nil {
		return nil, err
	}

	f := filters{video: fmt.Sprintf("setpts=PTS/%s", ff(speed))}
	switch kindOf(in) {
	case schemas.KindImage:
		return nil, fmt.Errorf("'%s' is a still image", in.Key)
	case schemas.KindAudio:
		f = filters{audio: tempo}
	case schemas.KindVideo:
		if inspect(ctx, env, in).HasAudio {
			f.audio = tempo
		}
	}

	dst, err := filterMedia(ctx, env, in, f)
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// ReverseOperator reverses whichever streams the media has.
type ReverseOperator struct{ base }

func (o *ReverseOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}

	var f filters
	switch kindOf(in) {
	case schemas.KindImage:
		return nil, fmt.Errorf("'%s' is a still image", in.Key)
	case schemas.KindAudio:
		f.audio = "areverse"
	case schemas.KindAnimated:
		f.video = "reverse"
	default:
		f.video = "reverse"
		if inspect(ctx, env, in).HasAudio {
			f.audio = "areverse"
		}
	}

	dst, err := filterMedia(ctx, env, in, f)
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// FPSOperator resamples the frame rate.
type FPSOperator struct{ base }

func (o *FPSOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	switch kindOf(in) {
	case schemas.KindImage, schemas.KindAudio:
		return nil, fmt.Errorf("'%s' has no frame rate", in.Key)
	}

	dst, err := filterMedia(ctx, env, in, filters{video: "fps=" + ff(p.Float("fps_value"))})
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// FadeOperator composites the input over a background and fades it in or
// out. Stills become an mp4 lasting duration (fadein) or
// start_time + duration (fadeout); other media keep their own length.
type FadeOperator struct {
	base
	in bool
}

func (o *FadeOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	fill, err := colors.ParseFill(p.String("color"))
	if err != nil {
		return nil, err
	}

	kind := kindOf(in)
	dims := inspect(ctx, env, in)
	duration := p.Float("duration")
	start := p.Float("start_time")

	mode := "out"
	if o.in {
		mode = "in"
		start = 0
	}

	if kind == schemas.KindAudio {
		dst, err := filterMedia(ctx, env, in, filters{
			audio: fmt.Sprintf("afade=t=%s:st=%s:d=%s", mode, ff(start), ff(duration)),
		})
		if err != nil {
			return nil, err
		}
		return produce(env, o.Name(), p.String("output_key"), dst)
	}

	length := dims.Duration
	ext := extOf(in)
	if kind == schemas.KindImage {
		ext = ".mp4"
		length = duration
		if !o.in {
			length = start + duration
		}
	}
	if length <= 0 {
		length = start + duration
	}

	w, h := dims.Width, dims.Height
	if ext == ".mp4" || ext == ".mov" || ext == ".mkv" || ext == ".webm" {
		w, h = evenDims(w, h)
	}

	bgPath, err := env.Session.Allocate(".png")
	if err != nil {
		return nil, err
	}
	defer env.Session.Release(bgPath)
	if err := saveImage(fill.Image(w, h), bgPath); err != nil {
		return nil, err
	}

	dst, err := env.Session.Allocate(ext)
	if err != nil {
		return nil, err
	}

	j := &job{}
	j.input(bgPath, "-loop", "1", "-t", ff(length))
	if kind == schemas.KindImage {
		j.input(in.Path, "-loop", "1", "-t", ff(length))
	} else {
		j.input(in.Path)
	}
	j.filter("[1:v]scale=%d:%d,format=rgba,fade=t=%s:st=%s:d=%s:alpha=1[fg]", w, h, mode, ff(start), ff(duration))
	overlay := "overlay=shortest=1:format=auto"
	if kind == schemas.KindAnimated {
		j.filter(paletteGraph("[0:v][fg]", overlay))
	} else {
		j.filter("[0:v][fg]" + overlay + ",format=yuv420p[v]")
		j.mapStream("[v]")
		if kind == schemas.KindVideo && dims.HasAudio {
			if p.Bool("audio") {
				j.filter("[1:a]afade=t=%s:st=%s:d=%s[a]", mode, ff(start), ff(duration))
				j.mapStream("[a]")
			} else {
				j.mapStream("1:a")
			}
		}
		j.output(encodeArgs(ext)...)
	}

	if err := j.run(ctx, env, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

func evenDims(w, h int) (int, int) {
	w = int(math.Max(2, float64(w-w%2)))
	h = int(math.Max(2, float64(h-h%2)))
	return w, h
}
