package primitives

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/chicogong/tagforge/pkg/tags"
)

const (
	maxDice     = 100
	maxSides    = 1_000_000
	maxModifier = 1_000_000
)

var errNoOptions = errors.New("no valid options")

func randomPrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "range", Aliases: []string{"rand"}, Usage: "{range:min|max}", Fn: randRange},
		{Name: "dice", Aliases: []string{"roll"}, Usage: "{dice:NdM[+k]}", Fn: dice},
		{Name: "choose", Aliases: []string{"choice", "pick"}, Usage: "{choose:a|b@weight|c%percent|sep=, |count=2|group=true}", Fn: choose},
		{Name: "random", Usage: "{random[:max]}", Fn: func(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			hi := 100
			if strings.TrimSpace(call.Args) != "" {
				n, err := parseInt(call.Args, "max")
				if err != nil {
					return nil, err
				}
				if n < 1 {
					return nil, errors.New("max must be positive")
				}
				hi = n
			}
			return strconv.Itoa(tc.Rand.IntN(hi) + 1), nil
		}},
		{Name: "coin", Aliases: []string{"flip"}, Usage: "{coin}", Fn: func(_ context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
			if tc.Rand.IntN(2) == 0 {
				return "heads", nil
			}
			return "tails", nil
		}},
	}
}

// randRange draws an integer in [min, max], or a float with two decimals
// when either bound has a fraction. Swapped bounds are reordered.
func randRange(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{range:min|max}")
	}
	a, b := strings.TrimSpace(call.Part(0)), strings.TrimSpace(call.Part(1))
	lo, errA := strconv.ParseInt(a, 10, 64)
	hi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi-lo < 0 || hi-lo == math.MaxInt64 {
			return nil, errors.New("range too large")
		}
		return strconv.FormatInt(lo+tc.Rand.Int64N(hi-lo+1), 10), nil
	}

	flo, okA := parseFloat(a)
	fhi, okB := parseFloat(b)
	if !okA || !okB || math.IsInf(flo, 0) || math.IsInf(fhi, 0) || math.IsNaN(flo) || math.IsNaN(fhi) {
		return nil, errors.New("bounds must be numbers")
	}
	if flo > fhi {
		flo, fhi = fhi, flo
	}
	return strconv.FormatFloat(flo+tc.Rand.Float64()*(fhi-flo), 'f', 2, 64), nil
}

var diceExpr = regexp.MustCompile(`^(\d*)\s*[dD]\s*(\d+)\s*(?:([+-])\s*(\d+))?$`)

// dice renders "total (r1, r2, ...)" with the modifier appended inside
// the parentheses.
func dice(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
	m := diceExpr.FindStringSubmatch(strings.TrimSpace(call.Args))
	if m == nil {
		return nil, usage("{dice:NdM[+k]}")
	}
	count := 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > maxDice {
			return nil, fmt.Errorf("at most %d dice", maxDice)
		}
		count = n
	}
	sides, err := strconv.Atoi(m[2])
	if err != nil || sides < 1 || sides > maxSides {
		return nil, fmt.Errorf("sides must be between 1 and %d", maxSides)
	}

	total := 0
	rolls := make([]string, 0, count)
	for range count {
		r := tc.Rand.IntN(sides) + 1
		total += r
		rolls = append(rolls, strconv.Itoa(r))
	}
	if len(rolls) == 0 {
		rolls = append(rolls, "0")
	}
	detail := strings.Join(rolls, ", ")
	if m[3] != "" {
		k, err := strconv.Atoi(m[4])
		if err != nil || k > maxModifier {
			return nil, fmt.Errorf("modifier must be at most %d", maxModifier)
		}
		if m[3] == "-" {
			k = -k
		}
		total += k
		detail += " " + m[3] + m[4]
	}
	return fmt.Sprintf("%d (%s)", total, detail), nil
}

type option struct {
	text    string
	weight  float64
	percent float64
}

// choose picks from its options. "text@w" gives an option weight w,
// "text%p" a fixed p percent chance; unweighted options share what is
// left. sep=, count= and group=true are settings, not options. With
// group=true every option is a comma separated group and one entry is
// drawn from each.
func choose(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
	var (
		opts   []option
		sep    = ", "
		sepSet bool
		count  = 1
		group  bool
	)
	for _, raw := range call.Parts() {
		p := strings.TrimSpace(raw)
		if k, v, ok := strings.Cut(raw, "="); ok {
			switch strings.ToLower(strings.TrimSpace(k)) {
			case "sep":
				sep, sepSet = v, true
				continue
			case "group":
				group = truthy(v)
				continue
			case "count":
				n, err := parseInt(v, "count")
				if err != nil {
					return nil, err
				}
				count = max(1, n)
				continue
			}
		}
		if p == "" {
			continue
		}
		opts = append(opts, parseOption(p))
	}
	if len(opts) == 0 {
		return nil, errNoOptions
	}

	if group {
		if !sepSet {
			sep = " "
		}
		picks := make([]string, 0, len(opts))
		for _, o := range opts {
			var entries []string
			for _, e := range strings.Split(o.text, ",") {
				if e = strings.TrimSpace(e); e != "" {
					entries = append(entries, e)
				}
			}
			if len(entries) == 0 {
				continue
			}
			picks = append(picks, entries[tc.Rand.IntN(len(entries))])
		}
		if len(picks) == 0 {
			return nil, errNoOptions
		}
		return strings.Join(picks, sep), nil
	}

	picks := make([]string, 0, count)
	for range min(count, len(opts)) {
		i, err := pickWeighted(tc, opts)
		if err != nil {
			return nil, err
		}
		picks = append(picks, opts[i].text)
		opts = append(opts[:i], opts[i+1:]...)
	}
	return strings.Join(picks, sep), nil
}

func parseOption(p string) option {
	o := option{text: p, weight: 1}
	if i := strings.LastIndexByte(p, '%'); i > 0 {
		if v, err := strconv.ParseFloat(p[i+1:], 64); err == nil && v >= 0 && v <= 100 {
			return option{text: strings.TrimSpace(p[:i]), percent: v}
		}
	}
	if i := strings.LastIndexByte(p, '@'); i > 0 {
		if v, err := strconv.ParseFloat(p[i+1:], 64); err == nil && v >= 0 && !math.IsInf(v, 0) {
			o.text, o.weight = strings.TrimSpace(p[:i]), v
		}
	}
	return o
}

// pickWeighted returns the index of a chosen option. Percent options take
// their share of 100; weighted options split the remainder by weight.
func pickWeighted(tc *tags.Context, opts []option) (int, error) {
	var fixed, weights float64
	for _, o := range opts {
		if o.percent > 0 {
			fixed += o.percent
		} else {
			weights += o.weight
		}
	}
	remainder := math.Max(0, 100-fixed)
	if weights == 0 {
		remainder = 0
	}
	total := fixed + remainder
	if total <= 0 {
		return 0, errNoOptions
	}

	r := tc.Rand.Float64() * total
	for i, o := range opts {
		share := o.percent
		if o.percent == 0 && weights > 0 {
			share = remainder * o.weight / weights
		}
		if r < share {
			return i, nil
		}
		r -= share
	}
	for i := len(opts) - 1; i >= 0; i-- {
		if opts[i].percent > 0 || opts[i].weight > 0 {
			return i, nil
		}
	}
	return 0, errNoOptions
}
