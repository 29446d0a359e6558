package builtin

import (
	"context"
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/chicogong/tagforge/pkg/colors"
	"github.com/chicogong/tagforge/pkg/fonts"
	"github.com/chicogong/tagforge/pkg/geometry"
	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/schemas"
	"github.com/chicogong/tagforge/pkg/workspace"
)

const (
	// minFontSize is where auto-shrink gives up and lets text overflow.
	minFontSize = 8
	shrinkStep  = 0.9
	// defaultCaptionBand applies when the session has no configured band.
	defaultCaptionBand = 0.2
)

func init() {
	operators.Register(&TextOperator{base{operators.OperatorDescriptor{
		Name:        "text",
		Category:    operators.CategoryGraphics,
		Description: "Draw text with optional outline and shadow",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			reqStr("text", "text to draw"),
			str("x", "center"),
			str("y", "center"),
			str("color", "white"),
			key("output_key"),
			num("font_size", 48, operators.Range(1, 1000)),
			str("font", ""),
			str("outline_color", "black"),
			integer("outline_width", 0, operators.Range(0, 50)),
			str("shadow_color", ""),
			integer("shadow_offset", 3, operators.Range(-200, 200)),
			num("shadow_blur", 2, operators.Range(0, 100)),
			integer("wrap_width", 0, operators.Range(0, geometry.MaxDimension)),
			num("line_spacing", 1.2, operators.Range(0.5, 5)),
		},
	}}})
	operators.Register(&CaptionOperator{base{operators.OperatorDescriptor{
		Name:        "caption",
		Category:    operators.CategoryGraphics,
		Description: "Add a caption band above the media",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			reqStr("text", "caption text"),
			key("output_key"),
			num("font_size", 0, operators.Range(0, 1000)),
			str("font", ""),
			str("color", "black"),
			str("background", "white"),
		},
	}}})
}

// textStyle is everything needed to paint a text block.
type textStyle struct {
	text    string
	font    string
	size    float64
	wrap    int
	spacing float64

	fill colors.Fill

	outline      *colors.Fill
	outlineWidth int

	shadow       *colors.Fill
	shadowOffset int
	shadowBlur   float64

	// centered aligns each line within the block.
	centered bool
}

// textBlock is laid-out text ready to draw.
type textBlock struct {
	face    font.Face
	lines   []string
	widths  []float64
	ascent  int
	lineH   int
	w, h    int
	size    float64
}

// layoutText wraps and measures st, shrinking the face until the block fits
// maxW x maxH or the size floor is reached. A zero bound is unbounded.
func layoutText(lib *fonts.Library, st textStyle, maxW, maxH int) (*textBlock, error) {
	size := st.size
	for {
		b, err := measureText(lib, st, size)
		if err != nil {
			return nil, err
		}
		fits := (maxW <= 0 || b.w <= maxW) && (maxH <= 0 || b.h <= maxH)
		if fits || size <= minFontSize {
			return b, nil
		}
		size = math.Max(minFontSize, size*shrinkStep)
	}
}

func measureText(lib *fonts.Library, st textStyle, size float64) (*textBlock, error) {
	face, err := lib.Face(st.font, size)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(1, 1)
	dc.SetFontFace(face)

	var lines []string
	if st.wrap > 0 {
		lines = dc.WordWrap(st.text, float64(st.wrap))
	} else {
		lines = strings.Split(st.text, "\n")
	}

	m := face.Metrics()
	b := &textBlock{
		face:    face,
		lines:   lines,
		ascent:  m.Ascent.Ceil(),
		lineH:   int(math.Ceil(float64(m.Height.Ceil()) * st.spacing)),
		size:    size,
	}
	var widest float64
	for _, line := range lines {
		w, _ := dc.MeasureString(line)
		b.widths = append(b.widths, w)
		widest = math.Max(widest, w)
	}
	b.w = int(math.Ceil(widest))
	b.h = m.Height.Ceil() + (len(lines)-1)*b.lineH
	return b, nil
}

// mask rasterizes the block's glyph coverage at (x, y) into a w x h alpha
// layer.
func (b *textBlock) mask(w, h, x, y int, centered bool) *image.Alpha {
	dst := image.NewAlpha(image.Rect(0, 0, w, h))
	d := &font.Drawer{Dst: dst, Src: image.Opaque, Face: b.face}
	for i, line := range b.lines {
		lx := x
		if centered {
			lx = x + int(math.Round((float64(b.w)-b.widths[i])/2))
		}
		d.Dot = fixed.P(lx, y+b.ascent+i*b.lineH)
		d.DrawString(line)
	}
	return dst
}

// dilate grows a coverage mask by a disk of radius r.
func dilate(m *image.Alpha, r int) *image.Alpha {
	out := image.NewAlpha(m.Bounds())
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			draw.Draw(out, m.Bounds().Add(image.Pt(dx, dy)), m, image.Point{}, draw.Over)
		}
	}
	return out
}

// paint composites shadow, outline and fill passes for b onto dst with
// the block's top-left at (x, y).
func (b *textBlock) paint(dst *image.NRGBA, st textStyle, x, y int) {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	r := dst.Bounds()

	if st.shadow != nil {
		sm := b.mask(w, h, x+st.shadowOffset, y+st.shadowOffset, st.centered)
		var shadowMask image.Image = sm
		if st.shadowBlur > 0 {
			shadowMask = imaging.Blur(sm, st.shadowBlur)
		}
		draw.DrawMask(dst, r, st.shadow.Source(w, h), image.Point{}, shadowMask, image.Point{}, draw.Over)
	}

	m := b.mask(w, h, x, y, st.centered)
	if st.outline != nil && st.outlineWidth > 0 {
		draw.DrawMask(dst, r, st.outline.Source(w, h), image.Point{}, dilate(m, st.outlineWidth), image.Point{}, draw.Over)
	}
	draw.DrawMask(dst, r, st.fill.Source(w, h), image.Point{}, m, image.Point{}, draw.Over)
}

func library(env *operators.Env) *fonts.Library {
	if env.Fonts != nil {
		return env.Fonts
	}
	return fonts.NewLibrary(nil, "")
}

// optionalFill parses s unless it is empty or "none".
func optionalFill(s string) (*colors.Fill, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}
	f, err := colors.ParseFill(s)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// TextOperator draws text. Stills are composited in-process; animated
// media get a transparent PNG layer overlaid by ffmpeg.
type TextOperator struct{ base }

func (o *TextOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if err := needVisual(in); err != nil {
		return nil, err
	}

	st, err := textStyleFrom(p)
	if err != nil {
		return nil, err
	}

	dims := inspect(ctx, env, in)
	limit := dims.Width
	if st.wrap > 0 {
		limit = st.wrap
	}
	block, err := layoutText(library(env), st, limit, 0)
	if err != nil {
		return nil, err
	}

	r := geometry.New(float64(dims.Width), float64(dims.Height)).WithOverlay(float64(block.w), float64(block.h))
	x := overlayOffset(r, p.String("x"), geometry.AxisX, dims.Width, block.w)
	y := overlayOffset(r, p.String("y"), geometry.AxisY, dims.Height, block.h)

	if kindOf(in) == schemas.KindImage {
		img, err := imaging.Open(in.Path)
		if err != nil {
			return nil, err
		}
		canvas := imaging.Clone(img)
		block.paint(canvas, st, x, y)
		return o.save(env, p, canvas, extOf(in))
	}

	layer := image.NewNRGBA(image.Rect(0, 0, dims.Width, dims.Height))
	block.paint(layer, st, x, y)
	return overlayLayer(ctx, env, o.Name(), p.String("output_key"), in, layer, 0, "")
}

func (o *TextOperator) save(env *operators.Env, p operators.Params, img image.Image, ext string) (*operators.Result, error) {
	dst, err := env.Session.Allocate(ext)
	if err != nil {
		return nil, err
	}
	if err := saveImage(img, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

func textStyleFrom(p operators.Params) (textStyle, error) {
	st := textStyle{
		text:         p.String("text"),
		font:         p.String("font"),
		size:         p.Float("font_size"),
		wrap:         p.Int("wrap_width"),
		spacing:      p.Float("line_spacing"),
		outlineWidth: p.Int("outline_width"),
		shadowOffset: p.Int("shadow_offset"),
		shadowBlur:   p.Float("shadow_blur"),
		centered:     strings.EqualFold(strings.TrimSpace(p.String("x")), "center"),
	}
	var err error
	if st.fill, err = colors.ParseFill(p.String("color")); err != nil {
		return st, err
	}
	if st.outline, err = optionalFill(p.String("outline_color")); err != nil {
		return st, err
	}
	if st.shadow, err = optionalFill(p.String("shadow_color")); err != nil {
		return st, err
	}
	return st, nil
}

// overlayLayer composites a still layer onto moving media at (0, 0). A
// non-zero top first pads the frame upward by that many pixels of padColor.
func overlayLayer(ctx context.Context, env *operators.Env, op, outKey string, in *workspace.Entry, layer image.Image, top int, padColor string) (*operators.Result, error) {
	layerPath, err := env.Session.Allocate(".png")
	if err != nil {
		return nil, err
	}
	defer env.Session.Release(layerPath)
	if err := saveImage(layer, layerPath); err != nil {
		return nil, err
	}

	ext := extOf(in)
	j := &job{}
	j.input(in.Path)
	j.input(layerPath)

	src := "[0:v]"
	if top > 0 {
		j.filter("[0:v]pad=iw:ih+%d:0:%d:color=%s[padded]", top, top, padColor)
		src = "[padded]"
	}
	graph := "overlay=0:0:format=auto"
	if kindOf(in) == schemas.KindAnimated {
		j.filter(paletteGraph(src+"[1:v]", graph))
	} else {
		j.filter("%s[1:v]%s,%s[v]", src, graph, evenScale)
		j.mapStream("[v]", "0:a?")
		j.output(encodeArgs(ext)...)
	}

	dst, err := env.Session.Allocate(ext)
	if err != nil {
		return nil, err
	}
	if err := j.run(ctx, env, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, op, outKey, dst)
}

// CaptionOperator pads a band above the media and centers text in it. The
// band height is the session's caption fraction of the media height.
type CaptionOperator struct{ base }

func (o *CaptionOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if err := needVisual(in); err != nil {
		return nil, err
	}

	fill, err := colors.ParseFill(p.String("color"))
	if err != nil {
		return nil, err
	}
	bg, err := colors.ParseFill(p.String("background"))
	if err != nil {
		return nil, err
	}

	dims := inspect(ctx, env, in)
	frac := env.CaptionBand
	if frac <= 0 {
		frac = defaultCaptionBand
	}
	band := max(1, int(math.Round(float64(dims.Height)*frac)))
	if kindOf(in) == schemas.KindVideo {
		band = geometry.Even(max(2, band))
	}

	size := p.Float("font_size")
	if size <= 0 {
		size = math.Max(minFontSize, float64(band)*0.4)
	}
	st := textStyle{
		text:     p.String("text"),
		font:     p.String("font"),
		size:     size,
		wrap:     dims.Width * 9 / 10,
		spacing:  1.1,
		fill:     fill,
		centered: true,
	}
	block, err := layoutText(library(env), st, st.wrap, band)
	if err != nil {
		return nil, err
	}

	strip := bg.Image(dims.Width, band)
	block.paint(strip, st, (dims.Width-block.w)/2, (band-block.h)/2)

	if kindOf(in) == schemas.KindImage {
		img, err := imaging.Open(in.Path)
		if err != nil {
			return nil, err
		}
		canvas := image.NewNRGBA(image.Rect(0, 0, dims.Width, dims.Height+band))
		draw.Draw(canvas, strip.Bounds(), strip, image.Point{}, draw.Src)
		draw.Draw(canvas, image.Rect(0, band, dims.Width, dims.Height+band), img, img.Bounds().Min, draw.Src)

		dst, err := env.Session.Allocate(extOf(in))
		if err != nil {
			return nil, err
		}
		if err := saveImage(canvas, dst); err != nil {
			env.Session.Release(dst)
			return nil, err
		}
		return produce(env, o.Name(), p.String("output_key"), dst)
	}

	padColor := "white"
	if !bg.IsGradient() {
		padColor = colors.FFmpeg(bg.Solid)
	}
	return overlayLayer(ctx, env, o.Name(), p.String("output_key"), in, strip, band, padColor)
}
