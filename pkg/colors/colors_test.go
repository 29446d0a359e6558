package colors

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"red", color.NRGBA{255, 0, 0, 255}},
		{"  White ", color.NRGBA{255, 255, 255, 255}},
		{"grey", color.NRGBA{128, 128, 128, 255}},
		{"#0f0", color.NRGBA{0, 255, 0, 255}},
		{"#0f08", color.NRGBA{0, 255, 0, 136}},
		{"#FF8000", color.NRGBA{255, 128, 0, 255}},
		{"#ff800080", color.NRGBA{255, 128, 0, 128}},
		{"0x102030", color.NRGBA{16, 32, 48, 255}},
		{"rgb(1, 2, 3)", color.NRGBA{1, 2, 3, 255}},
		{"rgba(1,2,3,0.5)", color.NRGBA{1, 2, 3, 128}},
		{"rgba(1,2,3,128)", color.NRGBA{1, 2, 3, 128}},
		{"rgba(1,2,3,1)", color.NRGBA{1, 2, 3, 255}},
		{"10 20 30", color.NRGBA{10, 20, 30, 255}},
		{"10,20,30,40", color.NRGBA{10, 20, 30, 40}},
		{"transparent", color.NRGBA{}},
		{"none", color.NRGBA{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Random(t *testing.T) {
	for _, s := range []string{"random", "RAND"} {
		c, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, uint8(255), c.A)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, s := range []string{"", "notacolor", "#12345", "#ggg", "rgb(1,2)", "rgb(300,0,0)", "rgb(1,2,3", "1 2 3 4 5"} {
		t.Run(s, func(t *testing.T) {
			_, err := Parse(s)
			assert.Error(t, err)
		})
	}
}

func TestFormatting(t *testing.T) {
	c := color.NRGBA{255, 128, 0, 255}
	assert.Equal(t, "#ff8000", Hex(c))
	assert.Equal(t, "#ff800080", Hex(color.NRGBA{255, 128, 0, 128}))
	assert.Equal(t, "0xFF8000FF", FFmpeg(c))
	assert.Equal(t, 0xFF8000, Int(c))
}

func TestParseGradient(t *testing.T) {
	g, err := ParseGradient("linear-gradient(90deg, red, rgb(0,255,0) 25%, blue)")
	require.NoError(t, err)
	assert.Equal(t, Linear, g.Kind)
	assert.Equal(t, 90.0, g.Angle)
	require.Len(t, g.Stops, 3)
	assert.Equal(t, []float64{0, 0.25, 1}, []float64{g.Stops[0].Pos, g.Stops[1].Pos, g.Stops[2].Pos})

	g, err = ParseGradient("radial-gradient(white, gray, black)")
	require.NoError(t, err)
	assert.Equal(t, Radial, g.Kind)
	assert.InDelta(t, 0.5, g.Stops[1].Pos, 1e-9)

	_, err = ParseGradient("linear-gradient(red)")
	assert.Error(t, err)
	_, err = ParseGradient("linear-gradient(red, nope)")
	assert.Error(t, err)
	_, err = ParseGradient("conic-gradient(red, blue)")
	assert.Error(t, err)
}

func TestFillPositions_Monotonic(t *testing.T) {
	g, err := ParseGradient("linear-gradient(red 60%, green, blue 20%)")
	require.NoError(t, err)
	for i := 1; i < len(g.Stops); i++ {
		assert.GreaterOrEqual(t, g.Stops[i].Pos, g.Stops[i-1].Pos)
	}
}

func TestRender_Linear(t *testing.T) {
	g, err := ParseGradient("linear-gradient(90deg, black, white)")
	require.NoError(t, err)

	img := g.Render(101, 10)
	left := img.NRGBAAt(0, 5)
	mid := img.NRGBAAt(50, 5)
	right := img.NRGBAAt(100, 5)

	assert.Less(t, left.R, uint8(10))
	assert.InDelta(t, 128, int(mid.R), 4)
	assert.Greater(t, right.R, uint8(245))
	// Horizontal gradient: rows are identical.
	assert.Equal(t, img.NRGBAAt(30, 0), img.NRGBAAt(30, 9))
}

func TestRender_LinearVertical(t *testing.T) {
	g, err := ParseGradient("linear-gradient(180deg, red, blue)")
	require.NoError(t, err)

	img := g.Render(10, 100)
	top := img.NRGBAAt(5, 0)
	bottom := img.NRGBAAt(5, 99)
	assert.Greater(t, top.R, top.B)
	assert.Greater(t, bottom.B, bottom.R)
}

func TestRender_Radial(t *testing.T) {
	g, err := ParseGradient("radial-gradient(white, black)")
	require.NoError(t, err)

	img := g.Render(50, 50)
	center := img.NRGBAAt(25, 25)
	corner := img.NRGBAAt(0, 0)
	assert.Greater(t, center.R, uint8(240))
	assert.Less(t, corner.R, uint8(20))
}

func TestFill(t *testing.T) {
	f, err := ParseFill("#00ff00")
	require.NoError(t, err)
	assert.False(t, f.IsGradient())
	img := f.Image(4, 4)
	assert.Equal(t, color.NRGBA{0, 255, 0, 255}, img.NRGBAAt(3, 3))

	f, err = ParseFill("linear-gradient(45deg, red, blue)")
	require.NoError(t, err)
	assert.True(t, f.IsGradient())
	assert.Equal(t, 8, f.Image(8, 6).Bounds().Dx())
}
