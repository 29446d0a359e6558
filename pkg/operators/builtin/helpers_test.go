package builtin

import (
	"image"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/tagforge/pkg/colors"
	"github.com/chicogong/tagforge/pkg/fonts"
	"github.com/chicogong/tagforge/pkg/geometry"
	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/schemas"
)

func TestRegisteredOperations(t *testing.T) {
	want := []string{
		"load", "loadsvg", "create",
		"trim", "speed", "reverse", "fps", "fadein", "fadeout", "concat",
		"volume", "tremolo", "vibrato", "audioputreplace", "audioputmix",
		"resize", "crop", "rotate", "overlay",
		"contrast", "opacity", "saturate", "hue", "brightness", "gamma",
		"grayscale", "sepia", "invert", "colorkey", "chromakey",
		"text", "caption",
		"convert", "render", "clone",
	}
	names := operators.GlobalRegistry().Names()
	assert.ElementsMatch(t, want, names)
	assert.Len(t, names, 35)

	for _, op := range operators.List() {
		desc := op.Describe()
		assert.NotEmpty(t, desc.Description, op.Name())
		assert.NotEmpty(t, desc.Parameters, op.Name())
	}
}

func TestConcatBinding(t *testing.T) {
	op, err := operators.Get("concat")
	require.NoError(t, err)

	p, err := operators.Bind(op, []string{"bg", "v", "out"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bg", "v"}, p.Strings("input_keys"))
	assert.Equal(t, "out", p.String("output_key"))
}

func TestSpeedBinding(t *testing.T) {
	op, err := operators.Get("speed")
	require.NoError(t, err)

	tests := []struct {
		speed string
		ok    bool
	}{
		{"2", true},
		{"0.001", true},
		{"1000", true},
		{"0", false},
		{"-2", false},
		{"NaN", false},
		{"Inf", false},
		{"fast", false},
	}
	for _, tt := range tests {
		p, err := operators.Bind(op, []string{"in", tt.speed, "out"}, nil)
		if !tt.ok {
			assert.Error(t, err, "speed %s", tt.speed)
			continue
		}
		require.NoError(t, err, "speed %s", tt.speed)
		assert.Greater(t, p.Float("speed"), 0.0)
	}
}

func TestTextBindingDefaults(t *testing.T) {
	op, err := operators.Get("text")
	require.NoError(t, err)

	p, err := operators.Bind(op, []string{"img", "hello", "10", "20", "red", "out"}, map[string]string{"font_size": "32"})
	require.NoError(t, err)
	assert.Equal(t, 32.0, p.Float("font_size"))
	assert.Equal(t, 0, p.Int("outline_width"))
	assert.Equal(t, "", p.String("shadow_color"))
	assert.Equal(t, 1.2, p.Float("line_spacing"))
}

func TestAtempoChain(t *testing.T) {
	tests := []struct {
		speed float64
		want  string
	}{
		{1, "atempo=1"},
		{1.5, "atempo=1.5"},
		{2, "atempo=2"},
		{4, "atempo=2.0,atempo=2"},
		{5, "atempo=2.0,atempo=2.0,atempo=1.25"},
		{0.5, "atempo=0.5"},
		{0.25, "atempo=0.5,atempo=0.5"},
		{0.1, "atempo=0.5,atempo=0.5,atempo=0.5,atempo=0.8"},
		{256, "atempo=2.0,atempo=2.0,atempo=2.0,atempo=2.0,atempo=2.0,atempo=2.0,atempo=2.0,atempo=2"},
	}
	for _, tt := range tests {
		got, err := atempoChain(tt.speed)
		require.NoError(t, err, "speed %v", tt.speed)
		assert.Equal(t, tt.want, got, "speed %v", tt.speed)
	}

	for _, speed := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := atempoChain(speed)
		assert.Error(t, err, "speed %v", speed)
	}
}

func TestCheckRenderArgs(t *testing.T) {
	args, err := checkRenderArgs([]string{"-crf", "18", "-an"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-crf", "18", "-an"}, args)

	_, err = checkRenderArgs([]string{"-i", "/etc/passwd"})
	assert.EqualError(t, err, "render option '-i' not allowed")

	_, err = checkRenderArgs([]string{"-crf"})
	assert.EqualError(t, err, "render option '-crf' needs a value")

	_, err = checkRenderArgs([]string{"-filter_complex", "x"})
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"clip.mp4":         "clip.mp4",
		"../../etc/passwd": "passwd",
		"a:b*c?.gif":       "a_b_c_.gif",
		"  spaced.png ":    "spaced.png",
		"..":               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), "input %q", in)
	}
}

func TestFormatExt(t *testing.T) {
	assert.Equal(t, ".jpg", formatExt("JPEG"))
	assert.Equal(t, ".mp4", formatExt(".mp4"))
	assert.Equal(t, ".gif", formatExt("gif"))
}

func TestResolveSize(t *testing.T) {
	dims := schemas.Dimensions{Width: 1920, Height: 1080}
	r := geometry.New(1920, 1080)

	w, h, err := resolveSize(r, "640", "-1", dims)
	require.NoError(t, err)
	assert.Equal(t, 640, w)
	assert.Equal(t, 360, h)

	w, h, err = resolveSize(r, "auto", "540", dims)
	require.NoError(t, err)
	assert.Equal(t, 960, w)
	assert.Equal(t, 540, h)

	w, h, err = resolveSize(r, "50%", "iw/4", dims)
	require.NoError(t, err)
	assert.Equal(t, 960, w)
	assert.Equal(t, 480, h)

	_, _, err = resolveSize(r, "-1", "auto", dims)
	assert.Error(t, err)

	_, _, err = resolveSize(r, "nonsense", "100", dims)
	assert.EqualError(t, err, "invalid width 'nonsense'")
}

func TestParseAngle(t *testing.T) {
	a, ok := parseAngle("90deg")
	assert.True(t, ok)
	assert.InDelta(t, 1.5707963, a, 1e-6)

	a, ok = parseAngle("3.14")
	assert.True(t, ok)
	assert.Equal(t, 3.14, a)

	_, ok = parseAngle("t*PI/2")
	assert.False(t, ok)
}

func TestPaletteGraph(t *testing.T) {
	assert.Equal(t,
		"[0:v]split[pg0][pg1];[pg0]palettegen[pal];[pg1][pal]paletteuse",
		paletteGraph("[0:v]", ""))
	assert.Equal(t,
		"[0:v]hue=s=0,split[pg0][pg1];[pg0]palettegen[pal];[pg1][pal]paletteuse",
		paletteGraph("[0:v]", "hue=s=0"))
}

func TestJobArgs(t *testing.T) {
	j := &job{}
	assert.Equal(t, 0, j.input("a.png", "-loop", "1"))
	assert.Equal(t, 1, j.lavfi("anullsrc", "-t", "3"))
	j.filter("[0:v]scale=%d:%d[v]", 2, 2)
	j.mapStream("[v]", "1:a")
	j.output("-shortest")

	got := strings.Join(j.args("out.mp4"), " ")
	assert.Equal(t,
		"-loop 1 -i a.png -t 3 -f lavfi -i anullsrc -filter_complex [0:v]scale=2:2[v] -map [v] -map 1:a -shortest out.mp4",
		got)
}

func TestEncodeArgs(t *testing.T) {
	assert.Contains(t, encodeArgs(".mp4"), "libx264")
	assert.Contains(t, encodeArgs(".webm"), "libvpx-vp9")
	assert.Contains(t, encodeArgs(".png"), "-frames:v")
	assert.Nil(t, encodeArgs(".wav"))
	assert.True(t, isStillExt(".jpg"))
	assert.False(t, isStillExt(".gif"))
}

func TestEscapeFilter(t *testing.T) {
	assert.Equal(t, `a\:b\,c\'d`, escapeFilter(`a:b,c'd`))
}

func TestRasterizeSVG(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 20 10">` +
		`<rect x="0" y="0" width="20" height="10" fill="#ff0000"/></svg>`

	img, err := rasterizeSVG(svg, 40, 0, colors.Fill{Solid: colors.Transparent})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 20), img.Bounds())

	c := img.NRGBAAt(20, 10)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(255), c.A)

	_, err = rasterizeSVG("<svg><rect", 10, 10, colors.Fill{})
	assert.Error(t, err)
}

func TestLayoutTextShrinks(t *testing.T) {
	lib := fonts.NewLibrary(nil, "")
	st := textStyle{text: "a fairly long line of text", size: 120, spacing: 1}

	b, err := layoutText(lib, st, 300, 0)
	require.NoError(t, err)
	assert.Less(t, b.size, 120.0)
	assert.LessOrEqual(t, b.w, 300)

	// Past the floor the text simply overflows.
	b, err = layoutText(lib, st, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, float64(minFontSize), b.size)
	assert.Greater(t, b.w, 5)
}

func TestLayoutTextWraps(t *testing.T) {
	lib := fonts.NewLibrary(nil, "")
	st := textStyle{text: "one two three four five six", size: 24, spacing: 1.5, wrap: 120}

	b, err := layoutText(lib, st, 120, 0)
	require.NoError(t, err)
	assert.Greater(t, len(b.lines), 1)
	assert.Equal(t, len(b.lines), len(b.widths))
	assert.Greater(t, b.h, b.lineH)
}

func TestTextPaint(t *testing.T) {
	lib := fonts.NewLibrary(nil, "")
	red := colors.Fill{Solid: color.NRGBA{R: 255, A: 255}}
	black := colors.Fill{Solid: color.NRGBA{A: 255}}
	st := textStyle{
		text: "Hi", size: 40, spacing: 1, fill: red,
		outline: &black, outlineWidth: 2,
		shadow: &black, shadowOffset: 3, shadowBlur: 1,
	}

	b, err := layoutText(lib, st, 200, 0)
	require.NoError(t, err)

	canvas := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	b.paint(canvas, st, 10, 10)

	var reds, dark int
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			c := canvas.NRGBAAt(x, y)
			if c.A == 0 {
				continue
			}
			if c.R > 200 {
				reds++
			} else {
				dark++
			}
		}
	}
	assert.Greater(t, reds, 0, "fill pass drew nothing")
	assert.Greater(t, dark, 0, "outline and shadow passes drew nothing")
}

func TestDilate(t *testing.T) {
	m := image.NewAlpha(image.Rect(0, 0, 9, 9))
	m.SetAlpha(4, 4, color.Alpha{A: 255})

	out := dilate(m, 2)
	var n int
	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			if out.AlphaAt(x, y).A > 0 {
				n++
			}
		}
	}
	assert.Equal(t, 13, n)
}
