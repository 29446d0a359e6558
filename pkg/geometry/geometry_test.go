package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	r := New(640, 480).WithOverlay(100, 50)

	tests := []struct {
		name string
		expr string
		axis Axis
		want int
	}{
		{"literal", "320", AxisX, 320},
		{"float literal rounds", "10.6", AxisX, 11},
		{"half width", "iw/2", AxisX, 320},
		{"height alias", "main_h - 80", AxisY, 400},
		{"percent of width", "50%", AxisX, 320},
		{"percent of height", "50%", AxisY, 240},
		{"percent arithmetic", "25% + 10", AxisX, 170},
		{"overlay vars", "W-ow", AxisX, 540},
		{"overlay uppercase", "H-OH", AxisY, 430},
		{"fill", "fill(100,200)", AxisX, 200},
		{"contain", "contain(100,200)", AxisX, 100},
		{"stretch", "stretch(123,456)", AxisX, 123},
		{"cover", "cover(1280,720)", AxisX, 1280},
		{"center x", "center(ow)", AxisX, 270},
		{"center y", "center(oh)", AxisY, 215},
		{"parse error", "iw+", AxisX, 0},
		{"unknown name", "bogus", AxisX, 0},
		{"negative size", "-5", AxisX, 0},
		{"too large", "99999", AxisX, 0},
		{"empty", "", AxisX, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.expr, tt.axis))
		})
	}
}

func TestResolve_OverlayVarsRequireOverlay(t *testing.T) {
	r := New(640, 480)
	assert.Equal(t, 0, r.Resolve("ow", AxisX))
}

func TestResolveOffset(t *testing.T) {
	r := New(640, 480).WithOverlay(100, 50)
	assert.Equal(t, -20, r.ResolveOffset("-20", AxisX))
	assert.Equal(t, 540, r.ResolveOffset("main_w-overlay_w", AxisX))
	assert.Equal(t, 0, r.ResolveOffset("nonsense(", AxisX))
}

func TestEven(t *testing.T) {
	assert.Equal(t, 2, Even(0))
	assert.Equal(t, 640, Even(641))
	assert.Equal(t, 640, Even(640))
}
