// Package colors parses user color strings and renders gradients.
package colors

import (
	"fmt"
	"image/color"
	"math/rand/v2"
	"strconv"
	"strings"
)

var named = map[string]color.NRGBA{
	"white":   {255, 255, 255, 255},
	"black":   {0, 0, 0, 255},
	"red":     {255, 0, 0, 255},
	"green":   {0, 128, 0, 255},
	"blue":    {0, 0, 255, 255},
	"yellow":  {255, 255, 0, 255},
	"cyan":    {0, 255, 255, 255},
	"magenta": {255, 0, 255, 255},
	"orange":  {255, 165, 0, 255},
	"purple":  {128, 0, 128, 255},
	"pink":    {255, 192, 203, 255},
	"brown":   {165, 42, 42, 255},
	"gray":    {128, 128, 128, 255},
	"silver":  {192, 192, 192, 255},
	"gold":    {255, 215, 0, 255},
}

var aliases = map[string]string{
	"grey":    "gray",
	"aqua":    "cyan",
	"fuchsia": "magenta",
	"violet":  "purple",
	"lime":    "green",
}

// Transparent is the all-zero color.
var Transparent = color.NRGBA{}

// Names returns the recognised color names, aliases included.
func Names() []string {
	out := make([]string, 0, len(named)+len(aliases))
	for k := range named {
		out = append(out, k)
	}
	for k := range aliases {
		out = append(out, k)
	}
	return out
}

// Random returns an opaque color with uniformly random channels.
func Random() color.NRGBA {
	v := rand.Uint32()
	return color.NRGBA{uint8(v), uint8(v >> 8), uint8(v >> 16), 255}
}

// Parse parses one solid color:
//
//	red, grey               named colors and aliases
//	#f00 #f008 #ff0000 #ff000080
//	rgb(255,0,0) rgba(255,0,0,0.5) rgba(255,0,0,128)
//	255 0 0 / 255,0,0,128   numeric tuples
//	random, rand            a random opaque color
//	transparent, none       all zero
func Parse(s string) (color.NRGBA, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	switch in {
	case "":
		return color.NRGBA{}, fmt.Errorf("empty color")
	case "random", "rand":
		return Random(), nil
	case "transparent", "none":
		return Transparent, nil
	}
	if a, ok := aliases[in]; ok {
		in = a
	}
	if c, ok := named[in]; ok {
		return c, nil
	}
	if strings.HasPrefix(in, "#") {
		return parseHex(in[1:], s)
	}
	if strings.HasPrefix(in, "0x") {
		return parseHex(in[2:], s)
	}
	if strings.HasPrefix(in, "rgba(") || strings.HasPrefix(in, "rgb(") {
		if !strings.HasSuffix(in, ")") {
			return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
		}
		body := in[strings.IndexByte(in, '(')+1 : len(in)-1]
		return parseTuple(body, s)
	}
	if in[0] >= '0' && in[0] <= '9' {
		return parseTuple(in, s)
	}
	return color.NRGBA{}, fmt.Errorf("unknown color %q", s)
}

func parseHex(h, orig string) (color.NRGBA, error) {
	switch len(h) {
	case 3, 4:
		var b strings.Builder
		for _, r := range h {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		h = b.String()
	case 6, 8:
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", orig)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", orig)
	}
	if len(h) == 6 {
		return color.NRGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, nil
	}
	return color.NRGBA{uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)}, nil
}

func parseTuple(body, orig string) (color.NRGBA, error) {
	fields := strings.FieldsFunc(body, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) != 3 && len(fields) != 4 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: expected 3 or 4 components", orig)
	}
	var ch [4]uint8
	ch[3] = 255
	for i, f := range fields[:3] {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil || n < 0 || n > 255 {
			return color.NRGBA{}, fmt.Errorf("invalid color %q: component %q", orig, f)
		}
		ch[i] = uint8(n + 0.5)
	}
	if len(fields) == 4 {
		a, err := parseAlpha(fields[3])
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", orig, err)
		}
		ch[3] = a
	}
	return color.NRGBA{ch[0], ch[1], ch[2], ch[3]}, nil
}

// parseAlpha accepts a 0-1 fraction or a 0-255 integer. Values up to 1 are
// always fractions, so "1" is opaque.
func parseAlpha(f string) (uint8, error) {
	if strings.HasSuffix(f, "%") {
		n, err := strconv.ParseFloat(strings.TrimSuffix(f, "%"), 64)
		if err != nil || n < 0 || n > 100 {
			return 0, fmt.Errorf("alpha %q", f)
		}
		return uint8(n/100*255 + 0.5), nil
	}
	n, err := strconv.ParseFloat(f, 64)
	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("alpha %q", f)
	}
	if n <= 1 {
		return uint8(n*255 + 0.5), nil
	}
	return uint8(n + 0.5), nil
}

// Hex renders c as #rrggbb, or #rrggbbaa when not opaque.
func Hex(c color.NRGBA) string {
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// FFmpeg renders c in ffmpeg's 0xRRGGBBAA color syntax.
func FFmpeg(c color.NRGBA) string {
	return fmt.Sprintf("0x%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}

// Int packs the RGB channels as 0xRRGGBB, the form chat embeds use.
func Int(c color.NRGBA) int {
	return int(c.R)<<16 | int(c.G)<<8 | int(c.B)
}
