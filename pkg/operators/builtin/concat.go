package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/schemas"
)

// Every concat segment is normalized to this format. Inputs with another
// aspect ratio are letterboxed.
const (
	concatWidth  = 1280
	concatHeight = 720
	concatFPS    = 30
)

func init() {
	operators.Register(&ConcatOperator{base{operators.OperatorDescriptor{
		Name:        "concat",
		Category:    operators.CategoryTimeline,
		Description: "Join media end to end as a 1280x720 30fps mp4",
		Parameters: []operators.ParameterDescriptor{
			{Name: "input_keys", Type: operators.TypeList, Required: true},
			{Name: "output_key", Type: operators.TypeString, Required: true, Trailing: true},
		},
		Variadic: "input_keys",
	}}})
}

// ConcatOperator concatenates any mix of stills, video and audio. Stills
// last stillSeconds; missing audio becomes silence and missing video black.
type ConcatOperator struct{ base }

func (o *ConcatOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	keys := p.Strings("input_keys")
	if len(keys) == 0 {
		return nil, fmt.Errorf("no inputs to concatenate")
	}

	j := &job{}
	var segments []string
	for n, k := range keys {
		e, err := lookup(env, k)
		if err != nil {
			return nil, err
		}
		kind := kindOf(e)
		dims := inspect(ctx, env, e)
		length := dims.Duration
		if kind == schemas.KindImage || length <= 0 {
			length = stillSeconds
		}
		t := ff(length)

		var vin, ain string
		switch kind {
		case schemas.KindImage:
			vin = fmt.Sprintf("[%d:v]", j.input(e.Path, "-loop", "1", "-t", t))
		case schemas.KindAudio:
			ain = fmt.Sprintf("[%d:a]", j.input(e.Path))
			vin = fmt.Sprintf("[%d:v]", j.lavfi(fmt.Sprintf("color=c=black:s=%dx%d:r=%d", concatWidth, concatHeight, concatFPS), "-t", t))
		default:
			idx := j.input(e.Path)
			vin = fmt.Sprintf("[%d:v]", idx)
			if kind == schemas.KindVideo && dims.HasAudio {
				ain = fmt.Sprintf("[%d:a]", idx)
			}
		}
		if ain == "" {
			ain = fmt.Sprintf("[%d:a]", j.lavfi("anullsrc=r=44100:cl=stereo", "-t", t))
		}

		j.filter("%s%s[v%d]", vin, normalizeVideo(), n)
		j.filter("%s%s[a%d]", ain, mixFormat, n)
		segments = append(segments, fmt.Sprintf("[v%d][a%d]", n, n))
	}
	j.filter("%sconcat=n=%d:v=1:a=1[v][a]", strings.Join(segments, ""), len(keys))
	j.mapStream("[v]", "[a]")
	j.output(encodeArgs(".mp4")...)

	dst, err := env.Session.Allocate(".mp4")
	if err != nil {
		return nil, err
	}
	if err := j.run(ctx, env, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// normalizeVideo letterboxes a segment into the concat frame.
func normalizeVideo() string {
	return fmt.Sprintf(
		"scale=%[1]d:%[2]d:force_original_aspect_ratio=decrease,pad=%[1]d:%[2]d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,fps=%[3]d,format=yuv420p",
		concatWidth, concatHeight, concatFPS)
}
