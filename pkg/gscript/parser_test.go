package gscript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

func TestTokenizeLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain", "load http://x/a.mp4 in", []string{"load", "http://x/a.mp4", "in"}},
		{"double quotes", `text in "hello world" 10 10`, []string{"text", "in", "hello world", "10", "10"}},
		{"single quotes", `text in 'it''s' x`, []string{"text", "in", "its", "x"}},
		{"escaped space", `text in hello\ world`, []string{"text", "in", "hello world"}},
		{"escaped quote in double", `text in "say \"hi\""`, []string{"text", "in", `say "hi"`}},
		{"adjacent quoting", `a"b c"d`, []string{"ab cd"}},
		{"empty quotes", `text in ""`, []string{"text", "in", ""}},
		{"tabs", "trim\tin\t0\t1\tout", []string{"trim", "in", "0", "1", "out"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := tokenizeLine(tt.line, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, texts(tokens))
		})
	}
}

func TestTokenizeLine_Assignments(t *testing.T) {
	tokens, err := tokenizeLine(`text in color=red "a=b" font="Go Mono"`, 1)
	require.NoError(t, err)
	require.Len(t, tokens, 5)

	assert.Equal(t, 5, tokens[2].Eq)
	assert.Equal(t, -1, tokens[3].Eq, "quoted '=' is not an assignment")
	assert.Equal(t, "font=Go Mono", tokens[4].Text)
	assert.Equal(t, 4, tokens[4].Eq)
	assert.True(t, tokens[4].Quoted)
}

func TestTokenizeLine_Unterminated(t *testing.T) {
	_, err := tokenizeLine(`text in "oops`, 3)
	assert.EqualError(t, err, "line 3: unterminated double quote")

	_, err = tokenizeLine(`text in 'oops`, 4)
	assert.EqualError(t, err, "line 4: unterminated single quote")
}

func TestParse(t *testing.T) {
	script := `
# build a clip
load https://example.test/clip.mp4?a=1 in
trim in 0 2 out ; reverse out rev;render rev
text in "a;b" 0 0 red t2
  # indented comment
create bg 10 10 #ff0000 ; # trailing comment ; create x 1 1 red
`
	stmts, err := Parse(script)
	require.NoError(t, err)

	var got []string
	for _, s := range stmts {
		got = append(got, s.String())
	}
	assert.Equal(t, []string{
		"load https://example.test/clip.mp4?a=1 in",
		"trim in 0 2 out",
		"reverse out rev",
		"render rev",
		"text in a;b 0 0 red t2",
		"create bg 10 10 #ff0000",
	}, got)
	assert.Equal(t, 3, stmts[0].Line)
	assert.Equal(t, 4, stmts[2].Line)
}

func TestParse_LowercasesOp(t *testing.T) {
	stmts, err := Parse("LOAD a b")
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "load", stmts[0].Op)
}

func TestParse_EscapedSemicolonIsAWord(t *testing.T) {
	stmts, err := Parse(`text in \; 0 0 red out`)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, ";", stmts[0].Args[1].Text)
}

func TestParse_ColorIsNotAComment(t *testing.T) {
	stmts, err := Parse("#fff in out")
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "#fff", stmts[0].Op)
}

func TestParse_Empty(t *testing.T) {
	stmts, err := Parse("\n  \n ; ;\n# only a comment")
	require.NoError(t, err)
	assert.Empty(t, stmts)
}
