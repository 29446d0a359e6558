// Package expr evaluates arithmetic over a sealed grammar.
//
// The grammar is numbers, + - * / % ** with unary minus, parentheses and,
// only when the caller supplies an Env, named variables and functions.
// Nothing else is resolvable; there is no way to reach Go values or the
// host from an expression.
package expr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxLength bounds accepted source text.
const MaxLength = 1024

var (
	ErrEmpty        = errors.New("empty expression")
	ErrDivideByZero = errors.New("division by zero")
	ErrOutOfRange   = errors.New("result out of range")
)

// Func is a named function callable from an expression.
type Func func(args []float64) (float64, error)

// Env binds names for an evaluation. A nil Env resolves no names.
type Env struct {
	Vars  map[string]float64
	Funcs map[string]Func
	// Percent, when set, turns a trailing N% into Percent(N) instead of the
	// modulo operator.
	Percent func(v float64) float64
}

type kind int

const (
	tNum kind = iota
	tIdent
	tOp
	tLParen
	tRParen
	tComma
	tPercent
)

type token struct {
	kind kind
	text string
	num  float64
	pos  int
}

// Eval evaluates src against env.
func Eval(src string, env *Env) (float64, error) {
	if len(src) > MaxLength {
		return 0, fmt.Errorf("expression longer than %d characters", MaxLength)
	}
	toks, err := lex(src, env)
	if err != nil {
		return 0, err
	}
	if len(toks) == 0 {
		return 0, ErrEmpty
	}
	rpn, err := toRPN(toks, env)
	if err != nil {
		return 0, err
	}
	v, err := run(rpn, env)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrOutOfRange
	}
	return v, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func lex(src string, env *Env) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || c == '.':
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && isDigit(src[j]) {
					for j < len(src) && isDigit(src[j]) {
						j++
					}
					i = j
				}
			}
			f, err := strconv.ParseFloat(src[start:i], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", src[start:i])
			}
			toks = append(toks, token{kind: tNum, num: f, text: src[start:i], pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && (isIdentStart(src[i]) || isDigit(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tIdent, text: src[start:i], pos: start})
		case c == '(':
			toks = append(toks, token{kind: tLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tComma, text: ",", pos: i})
			i++
		case c == '*' && i+1 < len(src) && src[i+1] == '*':
			toks = append(toks, token{kind: tOp, text: "**", pos: i})
			i += 2
		case c == '%':
			if env != nil && env.Percent != nil && percentContext(toks, src[i+1:]) {
				toks = append(toks, token{kind: tPercent, text: "%", pos: i})
			} else {
				toks = append(toks, token{kind: tOp, text: "%", pos: i})
			}
			i++
		case strings.IndexByte("+-*/", c) >= 0:
			toks = append(toks, token{kind: tOp, text: string(c), pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	return toks, nil
}

// percentContext reports whether a % directly after a number closes a
// percentage literal: it must be followed by the end, ')', ',' or an
// operator.
func percentContext(prev []token, rest string) bool {
	if len(prev) == 0 || (prev[len(prev)-1].kind != tNum && prev[len(prev)-1].kind != tRParen) {
		return false
	}
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return true
	}
	return strings.IndexByte(")+-*/,", rest[0]) >= 0
}

type opInfo struct {
	prec  int
	right bool
	arity int
}

var ops = map[string]opInfo{
	"+":   {1, false, 2},
	"-":   {1, false, 2},
	"*":   {2, false, 2},
	"/":   {2, false, 2},
	"%":   {2, false, 2},
	"neg": {3, true, 1},
	"pos": {3, true, 1},
	"**":  {4, true, 2},
	"pct": {5, false, 1},
}

type item struct {
	op    string
	num   float64
	name  string
	isNum bool
	isVar bool
	call  bool
	argc  int
}

// toRPN runs the shunting-yard algorithm.
func toRPN(toks []token, env *Env) ([]item, error) {
	var out []item
	var stack []item
	var argc []int
	// expectOperand is true where a value (or prefix operator) must follow.
	expectOperand := true

	popOp := func() {
		out = append(out, stack[len(stack)-1])
		stack = stack[:len(stack)-1]
	}

	for i, t := range toks {
		switch t.kind {
		case tNum:
			if !expectOperand {
				return nil, fmt.Errorf("unexpected number at %d", t.pos)
			}
			out = append(out, item{isNum: true, num: t.num})
			expectOperand = false

		case tIdent:
			if !expectOperand {
				return nil, fmt.Errorf("unexpected name %q at %d", t.text, t.pos)
			}
			if i+1 < len(toks) && toks[i+1].kind == tLParen {
				if env == nil || env.Funcs[t.text] == nil {
					return nil, fmt.Errorf("unknown function %q", t.text)
				}
				stack = append(stack, item{call: true, name: t.text})
				continue
			}
			if env == nil {
				return nil, fmt.Errorf("unknown name %q", t.text)
			}
			if _, ok := env.Vars[t.text]; !ok {
				return nil, fmt.Errorf("unknown name %q", t.text)
			}
			out = append(out, item{isVar: true, name: t.text})
			expectOperand = false

		case tPercent:
			out = append(out, item{op: "pct"})

		case tOp:
			op := t.text
			if expectOperand {
				switch op {
				case "-":
					stack = append(stack, item{op: "neg"})
					continue
				case "+":
					stack = append(stack, item{op: "pos"})
					continue
				default:
					return nil, fmt.Errorf("unexpected operator %q at %d", op, t.pos)
				}
			}
			cur := ops[op]
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.op == "" {
					break
				}
				ti := ops[top.op]
				if ti.prec > cur.prec || (ti.prec == cur.prec && !cur.right) {
					popOp()
					continue
				}
				break
			}
			stack = append(stack, item{op: op})
			expectOperand = true

		case tLParen:
			if len(stack) > 0 && stack[len(stack)-1].call && expectOperand {
				argc = append(argc, 1)
				if i+1 < len(toks) && toks[i+1].kind == tRParen {
					argc[len(argc)-1] = 0
				}
			}
			stack = append(stack, item{op: "("})
			expectOperand = true

		case tComma:
			if len(argc) == 0 {
				return nil, fmt.Errorf("unexpected ',' at %d", t.pos)
			}
			for len(stack) > 0 && stack[len(stack)-1].op != "(" {
				popOp()
			}
			if len(stack) == 0 {
				return nil, fmt.Errorf("unexpected ',' at %d", t.pos)
			}
			argc[len(argc)-1]++
			expectOperand = true

		case tRParen:
			if expectOperand && !(i > 0 && toks[i-1].kind == tLParen) {
				return nil, fmt.Errorf("unexpected ')' at %d", t.pos)
			}
			for len(stack) > 0 && stack[len(stack)-1].op != "(" {
				popOp()
			}
			if len(stack) == 0 {
				return nil, errors.New("unbalanced parentheses")
			}
			stack = stack[:len(stack)-1]
			if len(stack) > 0 && stack[len(stack)-1].call {
				fn := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				fn.argc = argc[len(argc)-1]
				argc = argc[:len(argc)-1]
				out = append(out, fn)
			} else if i > 0 && toks[i-1].kind == tLParen {
				return nil, errors.New("empty parentheses")
			}
			expectOperand = false
		}
	}
	if expectOperand {
		return nil, errors.New("unexpected end of expression")
	}
	for len(stack) > 0 {
		if stack[len(stack)-1].op == "(" {
			return nil, errors.New("unbalanced parentheses")
		}
		popOp()
	}
	return out, nil
}

func run(rpn []item, env *Env) (float64, error) {
	var st []float64
	pop := func() float64 {
		v := st[len(st)-1]
		st = st[:len(st)-1]
		return v
	}

	for _, it := range rpn {
		switch {
		case it.isNum:
			st = append(st, it.num)
		case it.isVar:
			st = append(st, env.Vars[it.name])
		case it.call:
			if len(st) < it.argc {
				return 0, errors.New("malformed expression")
			}
			args := append([]float64(nil), st[len(st)-it.argc:]...)
			st = st[:len(st)-it.argc]
			v, err := env.Funcs[it.name](args)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", it.name, err)
			}
			st = append(st, v)
		default:
			info := ops[it.op]
			if len(st) < info.arity {
				return 0, errors.New("malformed expression")
			}
			if info.arity == 1 {
				a := pop()
				switch it.op {
				case "neg":
					st = append(st, -a)
				case "pos":
					st = append(st, a)
				case "pct":
					st = append(st, env.Percent(a))
				}
				continue
			}
			b, a := pop(), pop()
			v, err := binary(it.op, a, b)
			if err != nil {
				return 0, err
			}
			st = append(st, v)
		}
	}
	if len(st) != 1 {
		return 0, errors.New("malformed expression")
	}
	return st[0], nil
}

func binary(op string, a, b float64) (float64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return 0, ErrDivideByZero
		}
		m := math.Mod(a, b)
		// Floor semantics: the result takes the divisor's sign.
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m, nil
	case "**":
		if math.Abs(b) > 1024 {
			return 0, ErrOutOfRange
		}
		return math.Pow(a, b), nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

// Format renders v the way arithmetic results are shown to users: integral
// values without a fractional part, others with up to 10 significant
// decimals and trailing zeros trimmed.
func Format(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	s := strconv.FormatFloat(v, 'f', 10, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
