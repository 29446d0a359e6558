package tags

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/ui"
)

func TestLex(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Chunk
	}{
		{"plain", "hello", []Chunk{{Text: "hello"}}},
		{"one tag", "a{b:c}d", []Chunk{{Text: "a"}, {Text: "b:c", Tag: true}, {Text: "d"}}},
		{"nested", "{a:{b}}", []Chunk{{Text: "a:{b}", Tag: true}}},
		{"escaped", `\{x\}`, []Chunk{{Text: `\{x\}`}}},
		{"escaped inside", `{a:\}}`, []Chunk{{Text: `a:\}`, Tag: true}}},
		{"unclosed", "a{b:{c}", []Chunk{{Text: "a{b:{c}"}}},
		{"stray close", "a}b", []Chunk{{Text: "a}b"}}},
		{"adjacent", "{a}{b}", []Chunk{{Text: "a", Tag: true}, {Text: "b", Tag: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Lex(tt.in))
		})
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a|b|c", []string{"a", "b", "c"}},
		{"", []string{""}},
		{`"a|b"|c`, []string{"a|b", "c"}},
		{`a\|b|c`, []string{"a|b", "c"}},
		{`{"k":"v|w"}|x`, []string{`{"k":"v|w"}`, "x"}},
		{`say \"hi|x`, []string{`say \"hi`, "x"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitArgs(tt.in), tt.in)
	}
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"one", "two words", "three"}, SplitWords(`one "two words"  three`))
	assert.Equal(t, []string{""}, SplitWords(`""`))
	assert.Empty(t, SplitWords("   "))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `\{x\}`, Escape("{x}"))
	assert.Equal(t, `\{x\}`, Escape(`\{x}`))
	assert.Equal(t, "{x}", Unescape(Escape("{x}")))
}

func newFormatter(t *testing.T) *Formatter {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister(&Primitive{Name: "upper", Fn: func(_ context.Context, _ *Context, c *Call) (any, error) {
		return strings.ToUpper(c.Args), nil
	}})
	reg.MustRegister(&Primitive{Name: "ignore", Mode: Lazy, Fn: func(_ context.Context, _ *Context, c *Call) (any, error) {
		return Escape(c.Args), nil
	}})
	reg.MustRegister(&Primitive{Name: "eval", Fn: func(ctx context.Context, tc *Context, c *Call) (any, error) {
		return tc.Eval(ctx, c.Args), nil
	}})
	reg.MustRegister(&Primitive{Name: "fail", Fn: func(context.Context, *Context, *Call) (any, error) {
		return nil, errors.New("broken")
	}})
	reg.MustRegister(&Primitive{Name: "boom", Fn: func(context.Context, *Context, *Call) (any, error) {
		var m map[string]int
		m["x"]++
		return nil, nil
	}})
	reg.MustRegister(&Primitive{Name: "self", Fn: func(ctx context.Context, tc *Context, _ *Call) (any, error) {
		return tc.Eval(ctx, "{self}"), nil
	}})
	reg.MustRegister(&Primitive{Name: "embed", Fn: func(_ context.Context, _ *Context, c *Call) (any, error) {
		return &ui.Embed{Title: c.Args}, nil
	}})
	reg.MustRegister(&Primitive{Name: "button", Fn: func(_ context.Context, _ *Context, c *Call) (any, error) {
		return &ui.Button{Style: ui.StylePrimary, Label: c.Args}, nil
	}})
	reg.MustRegister(&Primitive{Name: "count", Mode: Component, Fn: func(_ context.Context, _ *Context, c *Call) (any, error) {
		return []any{c.Inner.View.Len(), "|", strings.TrimSpace(c.Args)}, nil
	}})
	reg.MustRegister(&Primitive{Name: "file", Aliases: []string{"attach"}, Fn: func(_ context.Context, _ *Context, c *Call) (any, error) {
		return platform.File{Name: c.Args}, nil
	}})
	reg.MustRegister(&Primitive{Name: "set", Fn: func(_ context.Context, tc *Context, c *Call) (any, error) {
		tc.Vars[c.Part(0)] = c.Part(1)
		return "", nil
	}})
	reg.MustRegister(&Primitive{Name: "get", Fn: func(_ context.Context, tc *Context, c *Call) (any, error) {
		return tc.Vars[c.Args], nil
	}})
	return NewFormatter(reg)
}

func format(t *testing.T, f *Formatter, tc *Context, s string) *Output {
	t.Helper()
	if tc == nil {
		tc = NewContext(nil, "")
	}
	return f.Format(context.Background(), tc, s)
}

func TestFormat_Text(t *testing.T) {
	f := newFormatter(t)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"literal", "hello world", "hello world"},
		{"nested", "a {upper:b {upper:c}} d", "a B C d"},
		{"case insensitive", "{UPPER:x}", "X"},
		{"lazy", "{ignore:{upper:x}}", `\{upper:x\}`},
		{"eval of escaped stays literal", "{eval:{ignore:{upper:x}}}", `\{upper:x\}`},
		{"json is literal", `{"a":{upper:b}}`, `{"a":B}`},
		{"unknown", "{nope:x}", "{nope:x}"},
		{"spaces", "{ not a tag }", "{ not a tag }"},
		{"error", "x{fail}y", "x[fail error: broken]y"},
		{"error inside args", "{upper:{fail}}", "[FAIL ERROR: BROKEN]"},
		{"panic", "{boom}", "[boom error: assignment to entry in nil map]"},
		{"depth", "{self}", "[self error: maximum nesting depth exceeded]"},
		{"alias", "{attach:a.png}", ""},
		{"vars", "{set:x|42}{get:x}", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, format(t, f, nil, tt.in).Text())
		})
	}
}

func TestFormat_Structured(t *testing.T) {
	f := newFormatter(t)

	out := format(t, f, nil, "a{embed:t1}b{upper:{embed:t2}}{file:x.png}{button:go}")
	assert.Equal(t, "ab", out.Text())
	require.Len(t, out.Embeds, 2)
	assert.Equal(t, "t1", out.Embeds[0].Title)
	assert.Equal(t, "t2", out.Embeds[1].Title, "structured output of eager args flows upward")
	assert.Equal(t, []platform.File{{Name: "x.png"}}, out.Files)
	assert.Equal(t, 1, out.View.Len())
	assert.True(t, out.Structured())
}

func TestFormat_ComponentAbsorbsChildren(t *testing.T) {
	f := newFormatter(t)
	out := format(t, f, nil, "{count:{button:a} {button:b} tail}")
	assert.Equal(t, "2|tail", out.Text())
	assert.Nil(t, out.View, "children were absorbed")
}

func TestFormat_DepthLimit(t *testing.T) {
	f := newFormatter(t)
	f.maxDepth = 3
	assert.Equal(t, "X", format(t, f, nil, "{upper:{upper:{upper:x}}}").Text())
	assert.Equal(t, "[UPPER ERROR: MAXIMUM NESTING DEPTH EXCEEDED]",
		format(t, f, nil, "{upper:{upper:{upper:{upper:x}}}}").Text())
}

func TestFormat_Cancelled(t *testing.T) {
	f := newFormatter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := f.Format(ctx, NewContext(nil, ""), "{upper:x}")
	assert.Equal(t, "[upper error: context canceled]", out.Text())
}

func TestContext_Args(t *testing.T) {
	tc := NewContext(nil, `one "two three" four`)
	assert.Equal(t, "one", tc.Arg(0))
	assert.Equal(t, "four", tc.Arg(-1))
	assert.Equal(t, "", tc.Arg(5))
	assert.Equal(t, "two three four", tc.Rest(1))

	child := tc.WithArgs("x")
	child.Vars["k"] = "v"
	assert.Equal(t, "v", tc.Vars["k"], "variables are shared")
	assert.Equal(t, "one", tc.Arg(0))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "7", Normalize(7).Text())
	assert.Equal(t, "", Normalize(nil).Text())

	o := Normalize([]any{"a", ui.Embed{Title: "e"}, &platform.File{Name: "f"}, []platform.File{{Name: "g"}}})
	assert.Equal(t, "a", o.Text())
	assert.Len(t, o.Embeds, 1)
	assert.Len(t, o.Files, 2)
}

func TestOutput_ViewOverflow(t *testing.T) {
	o := &Output{}
	for i := 0; i < ui.MaxRows*ui.MaxButtonsPerRow+2; i++ {
		o.AddItem(&ui.Button{Style: ui.StylePrimary, Label: "b"})
	}
	assert.Equal(t, 2, o.Dropped)
	assert.Equal(t, ui.MaxRows*ui.MaxButtonsPerRow, o.View.Len())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	fn := func(context.Context, *Context, *Call) (any, error) { return nil, nil }
	require.NoError(t, reg.Register(&Primitive{Name: "a", Aliases: []string{"b"}, Fn: fn}))
	assert.Error(t, reg.Register(&Primitive{Name: "B", Fn: fn}))
	assert.Error(t, reg.Register(&Primitive{Name: "c"}))

	p, ok := reg.Get("B")
	require.True(t, ok)
	assert.Equal(t, "a", p.Name)
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Len(t, reg.Primitives(), 1)
}

func TestCall_Parts(t *testing.T) {
	c := &Call{Args: "a|b"}
	assert.Equal(t, 2, c.NumParts())
	assert.Equal(t, "b", c.Part(1))
	assert.Equal(t, "", c.Part(2))
	assert.Equal(t, 0, (&Call{}).NumParts())
}
