package builtin

import (
	"context"
	"fmt"

	"github.com/chicogong/tagforge/pkg/colors"
	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/schemas"
)

// sepiaMatrix is the usual sepia tone colorchannelmixer.
const sepiaMatrix = "colorchannelmixer=.393:.769:.189:0:.349:.686:.168:0:.272:.534:.131"

// adjustment builds a video chain from a level. video reports whether the
// output container is opaque, which only opacity cares about.
type adjustment func(level float64, video bool) string

func init() {
	adjustments := []struct {
		name  string
		desc  string
		rules *operators.ValidationRules
		build adjustment
	}{
		{"contrast", "Scale contrast (1 = unchanged)", operators.Range(-1000, 1000), func(l float64, _ bool) string {
			return "eq=contrast=" + ff(l)
		}},
		{"opacity", "Set opacity from 0 to 1", operators.Range(0, 1), func(l float64, video bool) string {
			if video {
				// No alpha in the container: fade toward black instead.
				return fmt.Sprintf("colorchannelmixer=rr=%[1]s:gg=%[1]s:bb=%[1]s", ff(l))
			}
			return "format=rgba,colorchannelmixer=aa=" + ff(l)
		}},
		{"saturate", "Scale saturation (1 = unchanged)", operators.Range(0, 3), func(l float64, _ bool) string {
			return "eq=saturation=" + ff(l)
		}},
		{"hue", "Rotate hue by degrees", operators.Range(-360, 360), func(l float64, _ bool) string {
			return "hue=h=" + ff(l)
		}},
		{"brightness", "Shift brightness from -1 to 1", operators.Range(-1, 1), func(l float64, _ bool) string {
			return "eq=brightness=" + ff(l)
		}},
		{"gamma", "Apply gamma (1 = unchanged)", operators.Range(0.1, 10), func(l float64, _ bool) string {
			return "eq=gamma=" + ff(l)
		}},
	}
	for _, a := range adjustments {
		operators.Register(&AdjustOperator{
			base: base{operators.OperatorDescriptor{
				Name:        a.name,
				Category:    operators.CategoryColor,
				Description: a.desc,
				Parameters: []operators.ParameterDescriptor{
					key("input_key"),
					reqNum("level", a.rules),
					key("output_key"),
				},
			}},
			build: a.build,
		})
	}

	fixed := map[string]string{
		"grayscale": "hue=s=0",
		"sepia":     sepiaMatrix,
		"invert":    "negate",
	}
	for name, chain := range fixed {
		operators.Register(&FixedFilterOperator{
			base: base{operators.OperatorDescriptor{
				Name:        name,
				Category:    operators.CategoryColor,
				Description: "Apply " + name,
				Parameters:  []operators.ParameterDescriptor{key("input_key"), key("output_key")},
			}},
			chain: chain,
		})
	}

	for _, name := range []string{"colorkey", "chromakey"} {
		operators.Register(&KeyOperator{base{operators.OperatorDescriptor{
			Name:        name,
			Category:    operators.CategoryColor,
			Description: "Make pixels near color transparent",
			Parameters: []operators.ParameterDescriptor{
				key("input_key"),
				reqStr("color", "key color"),
				num("similarity", 0.1, operators.Range(0.00001, 1)),
				num("blend", 0, operators.Range(0, 1)),
				key("output_key"),
			},
		}}})
	}
}

// AdjustOperator applies a leveled color adjustment.
type AdjustOperator struct {
	base
	build adjustment
}

func (o *AdjustOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if err := needVisual(in); err != nil {
		return nil, err
	}

	chain := o.build(p.Float("level"), kindOf(in) == schemas.KindVideo)
	dst, err := filterMedia(ctx, env, in, filters{video: chain})
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// FixedFilterOperator applies a parameterless color filter.
type FixedFilterOperator struct {
	base
	chain string
}

func (o *FixedFilterOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if err := needVisual(in); err != nil {
		return nil, err
	}

	dst, err := filterMedia(ctx, env, in, filters{video: o.chain})
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// KeyOperator keys out a color: colorkey compares in RGB, chromakey in YUV.
type KeyOperator struct{ base }

func (o *KeyOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if err := needVisual(in); err != nil {
		return nil, err
	}

	c, err := colors.Parse(p.String("color"))
	if err != nil {
		return nil, err
	}
	hex := fmt.Sprintf("0x%06X", colors.Int(c))
	chain := fmt.Sprintf("format=rgba,%s=%s:%s:%s", o.Name(), hex, ff(p.Float("similarity")), ff(p.Float("blend")))
	if o.Name() == "chromakey" {
		chain = fmt.Sprintf("format=yuva420p,chromakey=%s:%s:%s", hex, ff(p.Float("similarity")), ff(p.Float("blend")))
	}

	dst, err := filterMedia(ctx, env, in, filters{video: chain})
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}
