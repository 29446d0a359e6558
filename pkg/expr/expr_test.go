package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval_Arithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"1+2", 3},
		{"2+3*4", 14},
		{"(2+3)*4", 20},
		{"10/4", 2.5},
		{"2**10", 1024},
		{"2**3**2", 512},
		{"-2**2", -4},
		{"2**-1", 0.5},
		{"-3+5", 2},
		{"--3", 3},
		{"+4", 4},
		{"7%3", 1},
		{"-7%3", 2},
		{"1.5e2", 150},
		{" ( 1 + 1 ) * ( 2 + 2 ) ", 8},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := Eval(tt.src, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"division by zero", "5/0"},
		{"modulo by zero", "5%0"},
		{"names are sealed", "x+1"},
		{"calls are sealed", "abs(1)"},
		{"dangling operator", "1+"},
		{"unbalanced open", "(1+2"},
		{"unbalanced close", "1+2)"},
		{"empty parens", "()"},
		{"bad character", "1;2"},
		{"caret is not power", "2^3"},
		{"two numbers", "1 2"},
		{"overflow", "10**1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Eval(tt.src, nil)
			assert.Error(t, err)
		})
	}
}

func TestEval_DivideByZeroSentinel(t *testing.T) {
	_, err := Eval("5/0", nil)
	assert.ErrorIs(t, err, ErrDivideByZero)
}

func TestEval_Env(t *testing.T) {
	env := &Env{
		Vars: map[string]float64{"iw": 640, "ih": 480},
		Funcs: map[string]Func{
			"max": func(a []float64) (float64, error) {
				if len(a) != 2 {
					return 0, assert.AnError
				}
				if a[0] > a[1] {
					return a[0], nil
				}
				return a[1], nil
			},
		},
		Percent: func(v float64) float64 { return v / 100 * 640 },
	}

	tests := []struct {
		src  string
		want float64
	}{
		{"iw/2", 320},
		{"max(iw, ih)", 640},
		{"max(iw/2, ih) + 1", 481},
		{"50%", 320},
		{"50% + 10", 330},
		{"max(25%, 10)", 160},
		{"iw % 100", 40},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := Eval(tt.src, env)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := Eval("nope(1)", env)
	assert.Error(t, err)
	_, err = Eval("max(1)", env)
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "4", Format(4))
	assert.Equal(t, "-12", Format(-12))
	assert.Equal(t, "2.5", Format(2.5))
	assert.Equal(t, "0.3333333333", Format(1.0/3))
}
