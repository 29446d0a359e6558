package primitives

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chicogong/tagforge/pkg/expr"
	"github.com/chicogong/tagforge/pkg/tags"
)

func mathPrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		// math resolves no names; only numbers and operators are accepted.
		{Name: "math", Aliases: []string{"calc"}, Usage: "{math:expression}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			v, err := expr.Eval(strings.TrimSpace(call.Args), nil)
			if err != nil {
				return nil, err
			}
			return formatNumber(v), nil
		}},
		{Name: "round", Usage: "{round:number[|places]}", Fn: round},
		{Name: "floor", Usage: "{floor:number}", Fn: unary(math.Floor)},
		{Name: "ceil", Usage: "{ceil:number}", Fn: unary(math.Ceil)},
		{Name: "abs", Usage: "{abs:number}", Fn: unary(math.Abs)},
		{Name: "min", Usage: "{min:a|b|...}", Fn: aggregate(func(vs []float64) float64 {
			m := vs[0]
			for _, v := range vs[1:] {
				m = math.Min(m, v)
			}
			return m
		})},
		{Name: "max", Usage: "{max:a|b|...}", Fn: aggregate(func(vs []float64) float64 {
			m := vs[0]
			for _, v := range vs[1:] {
				m = math.Max(m, v)
			}
			return m
		})},
		{Name: "sum", Usage: "{sum:a|b|...}", Fn: aggregate(sum)},
		{Name: "avg", Aliases: []string{"average", "mean"}, Usage: "{avg:a|b|...}", Fn: aggregate(func(vs []float64) float64 {
			return sum(vs) / float64(len(vs))
		})},
		{Name: "commas", Usage: "{commas:number}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			v, err := number(call.Args)
			if err != nil {
				return nil, err
			}
			if v == math.Trunc(v) && math.Abs(v) < 1e15 {
				return humanize.Comma(int64(v)), nil
			}
			return humanize.Commaf(v), nil
		}},
		{Name: "filesize", Usage: "{filesize:bytes[|iec]}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			v, err := number(call.Part(0))
			if err != nil {
				return nil, err
			}
			if v < 0 || v > math.MaxInt64 {
				return nil, errors.New("size out of range")
			}
			if strings.EqualFold(strings.TrimSpace(call.Part(1)), "iec") {
				return humanize.IBytes(uint64(v)), nil
			}
			return humanize.Bytes(uint64(v)), nil
		}},
	}
}

func round(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	v, err := number(call.Part(0))
	if err != nil {
		return nil, err
	}
	places := 0
	if p := strings.TrimSpace(call.Part(1)); p != "" {
		if places, err = parseInt(p, "places"); err != nil {
			return nil, err
		}
		if places < 0 || places > 10 {
			return nil, errors.New("places must be between 0 and 10")
		}
	}
	scale := math.Pow(10, float64(places))
	return formatNumber(math.Round(v*scale) / scale), nil
}

func unary(fn func(float64) float64) tags.Func {
	return func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
		v, err := number(call.Args)
		if err != nil {
			return nil, err
		}
		return formatNumber(fn(v)), nil
	}
}

func sum(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}

// aggregate reads its numbers from '|' separated parts or from a single
// JSON array.
func aggregate(fn func([]float64) float64) tags.Func {
	return func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
		items := list(call)
		if len(items) == 1 && strings.HasPrefix(items[0], "[") {
			var arr []json.Number
			if err := json.Unmarshal([]byte(items[0]), &arr); err != nil {
				return nil, errors.New("expected numbers or a JSON array of numbers")
			}
			items = items[:0]
			for _, n := range arr {
				items = append(items, n.String())
			}
		}
		if len(items) == 0 {
			return nil, errors.New("no numbers given")
		}
		vs := make([]float64, 0, len(items))
		for _, it := range items {
			v, err := strconv.ParseFloat(it, 64)
			if err != nil {
				if v, err = number(it); err != nil {
					return nil, err
				}
			}
			vs = append(vs, v)
		}
		return formatNumber(fn(vs)), nil
	}
}
