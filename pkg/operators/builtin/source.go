package builtin

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/chicogong/tagforge/pkg/colors"
	"github.com/chicogong/tagforge/pkg/geometry"
	"github.com/chicogong/tagforge/pkg/operators"
)

// maxSVGBytes bounds SVG documents fetched by URL.
const maxSVGBytes = 2 << 20

// defaultSVGSize is used when neither the call nor the document sizes the
// raster.
const defaultSVGSize = 512

func init() {
	operators.Register(&LoadOperator{base{operators.OperatorDescriptor{
		Name:        "load",
		Category:    operators.CategorySource,
		Description: "Download a URL into the media cache",
		Parameters:  []operators.ParameterDescriptor{reqStr("url", "http(s), s3, gs or file URI"), key("media_key")},
	}}})
	operators.Register(&LoadSVGOperator{base{operators.OperatorDescriptor{
		Name:        "loadsvg",
		Category:    operators.CategorySource,
		Description: "Rasterize SVG markup (or an SVG URL) to PNG",
		Parameters: []operators.ParameterDescriptor{
			reqStr("svg_content", "SVG markup or URL"),
			key("media_key"),
			integer("width", 0, operators.Range(0, geometry.MaxDimension)),
			integer("height", 0, operators.Range(0, geometry.MaxDimension)),
			str("background", "transparent"),
		},
	}}})
	operators.Register(&CreateOperator{base{operators.OperatorDescriptor{
		Name:        "create",
		Category:    operators.CategorySource,
		Description: "Create a solid or gradient image",
		Parameters: []operators.ParameterDescriptor{
			key("media_key"),
			{Name: "width", Type: operators.TypeInt, Required: true, Validation: operators.Range(1, geometry.MaxDimension)},
			{Name: "height", Type: operators.TypeInt, Required: true, Validation: operators.Range(1, geometry.MaxDimension)},
			str("color", "white"),
		},
	}}})
}

// LoadOperator downloads remote media.
type LoadOperator struct{ base }

func (o *LoadOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	var allocated string
	alloc := func(ext string) (string, error) {
		path, err := env.Session.Allocate(ext)
		allocated = path
		return path, err
	}

	path, err := env.Storage.Download(ctx, p.String("url"), alloc)
	if err != nil {
		if allocated != "" {
			env.Session.Release(allocated)
		}
		return nil, err
	}
	return produce(env, o.Name(), p.String("media_key"), path)
}

// LoadSVGOperator rasterizes SVG documents.
type LoadSVGOperator struct{ base }

func (o *LoadSVGOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	src := strings.TrimSpace(p.String("svg_content"))
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		text, err := env.Storage.FetchText(ctx, src, maxSVGBytes)
		if err != nil {
			return nil, err
		}
		src = text
	}

	bg, err := colors.ParseFill(p.String("background"))
	if err != nil {
		return nil, err
	}

	img, err := rasterizeSVG(src, p.Int("width"), p.Int("height"), bg)
	if err != nil {
		return nil, err
	}

	dst, err := env.Session.Allocate(".png")
	if err != nil {
		return nil, err
	}
	if err := saveImage(img, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, o.Name(), p.String("media_key"), dst)
}

// rasterizeSVG draws markup at w x h over bg. A zero dimension follows the
// document's viewBox aspect ratio.
func rasterizeSVG(markup string, w, h int, bg colors.Fill) (*image.NRGBA, error) {
	icon, err := oksvg.ReadIconStream(strings.NewReader(markup), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("invalid SVG: %w", err)
	}

	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	if vw <= 0 || vh <= 0 {
		vw, vh = defaultSVGSize, defaultSVGSize
	}
	switch {
	case w == 0 && h == 0:
		w, h = int(math.Round(vw)), int(math.Round(vh))
	case w == 0:
		w = int(math.Round(float64(h) * vw / vh))
	case h == 0:
		h = int(math.Round(float64(w) * vh / vw))
	}
	w = clampDim(w)
	h = clampDim(h)

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), bg.Source(w, h), image.Point{}, draw.Src)

	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)

	return imaging.Clone(canvas), nil
}

// CreateOperator synthesizes a still image.
type CreateOperator struct{ base }

func (o *CreateOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	fill, err := colors.ParseFill(p.String("color"))
	if err != nil {
		return nil, err
	}

	img := fill.Image(p.Int("width"), p.Int("height"))
	dst, err := env.Session.Allocate(".png")
	if err != nil {
		return nil, err
	}
	if err := saveImage(img, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, o.Name(), p.String("media_key"), dst)
}

func clampDim(n int) int {
	switch {
	case n < 1:
		return 1
	case n > geometry.MaxDimension:
		return geometry.MaxDimension
	}
	return n
}
