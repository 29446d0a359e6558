package colors

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"
)

// GradientKind is linear or radial.
type GradientKind int

const (
	Linear GradientKind = iota
	Radial
)

// Stop is a color at a position in [0,1].
type Stop struct {
	Color color.NRGBA
	Pos   float64
}

// Gradient is a parsed linear-gradient(...) or radial-gradient(...).
type Gradient struct {
	Kind  GradientKind
	Angle float64 // degrees, linear only
	Stops []Stop
}

const lutSize = 1024

// IsGradient reports whether s looks like a gradient expression.
func IsGradient(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "linear-gradient(") || strings.HasPrefix(s, "radial-gradient(")
}

// ParseGradient parses
//
//	linear-gradient([<angle>deg,] <stop>, <stop>, ...)
//	radial-gradient(<stop>, <stop>, ...)
//
// where a stop is "<color>" or "<color> <percent>%". Missing positions are
// spread evenly between their neighbours.
func ParseGradient(s string) (*Gradient, error) {
	in := strings.TrimSpace(s)
	lower := strings.ToLower(in)

	g := &Gradient{Angle: 180}
	var body string
	switch {
	case strings.HasPrefix(lower, "linear-gradient(") && strings.HasSuffix(in, ")"):
		g.Kind = Linear
		body = in[len("linear-gradient(") : len(in)-1]
	case strings.HasPrefix(lower, "radial-gradient(") && strings.HasSuffix(in, ")"):
		g.Kind = Radial
		body = in[len("radial-gradient(") : len(in)-1]
	default:
		return nil, fmt.Errorf("invalid gradient %q", s)
	}

	parts := splitTopLevel(body)
	if len(parts) > 0 {
		first := strings.ToLower(strings.TrimSpace(parts[0]))
		if strings.HasSuffix(first, "deg") {
			a, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(first, "deg")), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid gradient angle %q", parts[0])
			}
			g.Angle = a
			parts = parts[1:]
		} else if g.Kind == Radial && (first == "circle" || first == "ellipse") {
			parts = parts[1:]
		}
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("gradient needs at least two color stops")
	}

	pos := make([]float64, len(parts))
	for i, p := range parts {
		c, at, err := parseStop(p)
		if err != nil {
			return nil, err
		}
		g.Stops = append(g.Stops, Stop{Color: c})
		pos[i] = at
	}
	fillPositions(pos)
	for i := range g.Stops {
		g.Stops[i].Pos = pos[i]
	}
	return g, nil
}

// parseStop splits "<color> [N%]". A NaN position means unspecified.
func parseStop(p string) (color.NRGBA, float64, error) {
	p = strings.TrimSpace(p)
	at := math.NaN()
	if i := strings.LastIndexAny(p, " \t"); i > 0 && strings.HasSuffix(p, "%") && !strings.HasSuffix(p, ")") {
		n, err := strconv.ParseFloat(strings.TrimSuffix(p[i+1:], "%"), 64)
		if err != nil {
			return color.NRGBA{}, 0, fmt.Errorf("invalid stop position in %q", p)
		}
		at = math.Max(0, math.Min(1, n/100))
		p = strings.TrimSpace(p[:i])
	}
	c, err := Parse(p)
	if err != nil {
		return color.NRGBA{}, 0, err
	}
	return c, at, nil
}

// fillPositions infers missing stop positions: the ends default to 0 and 1,
// interior gaps are spread linearly and positions never decrease.
func fillPositions(pos []float64) {
	n := len(pos)
	if math.IsNaN(pos[0]) {
		pos[0] = 0
	}
	if math.IsNaN(pos[n-1]) {
		pos[n-1] = 1
	}
	for i := 1; i < n; i++ {
		if !math.IsNaN(pos[i]) {
			continue
		}
		j := i
		for math.IsNaN(pos[j]) {
			j++
		}
		lo, hi := pos[i-1], pos[j]
		for k := i; k < j; k++ {
			pos[k] = lo + (hi-lo)*float64(k-i+1)/float64(j-i+1)
		}
	}
	for i := 1; i < n; i++ {
		if pos[i] < pos[i-1] {
			pos[i] = pos[i-1]
		}
	}
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(s[start:]) != "" {
		parts = append(parts, s[start:])
	}
	return parts
}

// At interpolates the gradient at t in [0,1].
func (g *Gradient) At(t float64) color.NRGBA {
	stops := g.Stops
	if t <= stops[0].Pos {
		return stops[0].Color
	}
	last := stops[len(stops)-1]
	if t >= last.Pos {
		return last.Color
	}
	for i := 1; i < len(stops); i++ {
		a, b := stops[i-1], stops[i]
		if t > b.Pos {
			continue
		}
		span := b.Pos - a.Pos
		if span <= 0 {
			return b.Color
		}
		return lerp(a.Color, b.Color, (t-a.Pos)/span)
	}
	return last.Color
}

func lerp(a, b color.NRGBA, f float64) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*f + 0.5)
	}
	return color.NRGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), mix(a.A, b.A)}
}

func (g *Gradient) lut() []color.NRGBA {
	t := make([]color.NRGBA, lutSize)
	for i := range t {
		t[i] = g.At(float64(i) / float64(lutSize-1))
	}
	return t
}

func lutIndex(p float64) int {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return lutSize - 1
	}
	return int(p*float64(lutSize-1) + 0.5)
}

// Render rasterizes the gradient at w×h.
//
// Linear gradients project each pixel onto the direction of Angle around
// the image center: p = ((x-cx)·sinθ - (y-cy)·cosθ) / max(w,h) + 0.5, so
// 90deg runs left to right and 180deg top to bottom. Radial gradients
// measure distance from the center in units of the half diagonal.
func (g *Gradient) Render(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w <= 0 || h <= 0 {
		return img
	}
	lut := g.lut()
	cx, cy := float64(w-1)/2, float64(h-1)/2

	switch g.Kind {
	case Radial:
		half := math.Hypot(float64(w), float64(h)) / 2
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride:]
			dy := float64(y) - cy
			for x := 0; x < w; x++ {
				dx := float64(x) - cx
				c := lut[lutIndex(math.Sqrt(dx*dx+dy*dy)/half)]
				o := x * 4
				row[o], row[o+1], row[o+2], row[o+3] = c.R, c.G, c.B, c.A
			}
		}
	default:
		theta := g.Angle * math.Pi / 180
		m := float64(max(w, h))
		sx, cyc := math.Sin(theta)/m, math.Cos(theta)/m
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride:]
			base := 0.5 - (float64(y)-cy)*cyc - cx*sx
			for x := 0; x < w; x++ {
				c := lut[lutIndex(base+float64(x)*sx)]
				o := x * 4
				row[o], row[o+1], row[o+2], row[o+3] = c.R, c.G, c.B, c.A
			}
		}
	}
	return img
}

// Fill is either a solid color or a gradient.
type Fill struct {
	Solid    color.NRGBA
	Gradient *Gradient
}

// ParseFill parses a solid color or a gradient expression.
func ParseFill(s string) (Fill, error) {
	if IsGradient(s) {
		g, err := ParseGradient(s)
		if err != nil {
			return Fill{}, err
		}
		return Fill{Gradient: g}, nil
	}
	c, err := Parse(s)
	if err != nil {
		return Fill{}, err
	}
	return Fill{Solid: c}, nil
}

// IsGradient reports whether f needs per-pixel rendering.
func (f Fill) IsGradient() bool {
	return f.Gradient != nil
}

// Image renders f at w×h.
func (f Fill) Image(w, h int) *image.NRGBA {
	if f.Gradient != nil {
		return f.Gradient.Render(w, h)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: f.Solid}, image.Point{}, draw.Src)
	return img
}

// Source returns an image usable as a draw source covering w×h.
func (f Fill) Source(w, h int) image.Image {
	if f.Gradient != nil {
		return f.Gradient.Render(w, h)
	}
	return &image.Uniform{C: f.Solid}
}
