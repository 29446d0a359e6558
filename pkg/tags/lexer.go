// Package tags evaluates brace templates such as "Hi {upper:{arg:0}}".
//
// A template is literal text with {name:args} groups. Groups nest; the
// arguments of a group are formatted before its primitive runs, except for
// lazy primitives which receive their payload untouched. Every primitive
// result is normalized into an Output holding text, embeds, a view and
// files.
package tags

import "strings"

// Chunk is a literal run or a top-level brace group.
type Chunk struct {
	// Text is the literal text, or the group body without its braces.
	Text string
	Tag  bool
}

// Lex splits a template into literal runs and top-level brace groups.
// Backslash-escaped braces never open or close a group. An unclosed group
// and a stray closing brace are literal text.
func Lex(s string) []Chunk {
	var (
		chunks []Chunk
		lit    strings.Builder
		depth  int
		start  int
	)
	flush := func() {
		if lit.Len() > 0 {
			chunks = append(chunks, Chunk{Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && (s[i+1] == '{' || s[i+1] == '}') {
			if depth == 0 {
				lit.WriteString(s[i : i+2])
			}
			i++
			continue
		}
		switch {
		case c == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case c == '}' && depth > 0:
			depth--
			if depth == 0 {
				flush()
				chunks = append(chunks, Chunk{Text: s[start+1 : i], Tag: true})
			}
		case depth == 0:
			lit.WriteByte(c)
		}
	}
	if depth > 0 {
		lit.WriteString(s[start:])
	}
	flush()
	return chunks
}

// splitTag splits a group body into its lowercased name and argument text.
func splitTag(body string) (name, args string) {
	name, args, _ = strings.Cut(body, ":")
	return strings.ToLower(strings.TrimSpace(name)), args
}

// validName reports whether name can be a primitive name: no whitespace,
// quotes or braces.
func validName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, " \t\r\n\"'{}")
}

// Escape backslash-escapes braces that are not escaped yet, so that the
// text survives another formatting pass verbatim.
func Escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && (s[i+1] == '{' || s[i+1] == '}') {
			b.WriteString(s[i : i+2])
			i++
			continue
		}
		if c == '{' || c == '}' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Unescape removes brace escapes. It is applied once to the final text.
func Unescape(s string) string {
	if !strings.Contains(s, `\{`) && !strings.Contains(s, `\}`) {
		return s
	}
	return strings.NewReplacer(`\{`, "{", `\}`, "}").Replace(s)
}

// SplitArgs splits argument text on '|'. Separators inside double quotes
// or escaped as "\|" do not split. A part that is one quoted string is
// unquoted.
func SplitArgs(s string) []string {
	var (
		parts []string
		cur   strings.Builder
		quote bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && s[i+1] == '|':
			cur.WriteByte('|')
			i++
		case c == '\\' && i+1 < len(s):
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
		case c == '"':
			quote = !quote
			cur.WriteByte(c)
		case c == '|' && !quote:
			parts = append(parts, unquote(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(parts, unquote(cur.String()))
}

func unquote(p string) string {
	t := strings.TrimSpace(p)
	if len(t) >= 2 && t[0] == '"' && t[len(t)-1] == '"' && !strings.Contains(t[1:len(t)-1], `"`) {
		return t[1 : len(t)-1]
	}
	return p
}

// SplitWords splits invocation arguments on whitespace, keeping double
// quoted phrases together.
func SplitWords(s string) []string {
	var (
		words []string
		cur   strings.Builder
		quote bool
		have  bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quote = !quote
			have = true
		case !quote && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			if have {
				words = append(words, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteRune(r)
			have = true
		}
	}
	if have {
		words = append(words, cur.String())
	}
	return words
}
