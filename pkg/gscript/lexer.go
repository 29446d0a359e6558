// Package gscript implements the line-oriented media script language: one
// operation per statement, statements split by newlines or unquoted ';'.
package gscript

import (
	"fmt"
	"strings"
)

// Token is one shell-style word.
type Token struct {
	Text string

	// Eq is the byte offset in Text of the first '=' that appeared outside
	// quotes, or -1.
	Eq int

	// Quoted reports whether any part of the word was quoted.
	Quoted bool

	sep bool
}

// separator marks an unquoted ';' in a tokenized line.
var separator = Token{Text: ";", Eq: -1, sep: true}

// SyntaxError is a tokenizer failure.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// tokenizeLine splits one line into words honoring single quotes, double
// quotes and backslash escapes. Unquoted ';' characters come back as
// separator tokens.
func tokenizeLine(line string, lineNo int) ([]Token, error) {
	var (
		tokens []Token
		cur    strings.Builder
		tok    = Token{Eq: -1}
		inWord bool
	)
	flush := func() {
		if inWord {
			tok.Text = cur.String()
			tokens = append(tokens, tok)
		}
		cur.Reset()
		tok = Token{Eq: -1}
		inWord = false
	}

	rs := []rune(line)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == ' ' || r == '\t' || r == '\r':
			flush()
		case r == ';':
			flush()
			tokens = append(tokens, separator)
		case r == '\\':
			inWord = true
			if i+1 < len(rs) {
				i++
				cur.WriteRune(rs[i])
			}
		case r == '\'':
			inWord = true
			tok.Quoted = true
			end := indexRune(rs, i+1, '\'')
			if end < 0 {
				return nil, &SyntaxError{Line: lineNo, Msg: "unterminated single quote"}
			}
			cur.WriteString(string(rs[i+1 : end]))
			i = end
		case r == '"':
			inWord = true
			tok.Quoted = true
			j := i + 1
			for ; j < len(rs) && rs[j] != '"'; j++ {
				if rs[j] == '\\' && j+1 < len(rs) && strings.ContainsRune(`"\$`+"`", rs[j+1]) {
					j++
				}
				cur.WriteRune(rs[j])
			}
			if j >= len(rs) {
				return nil, &SyntaxError{Line: lineNo, Msg: "unterminated double quote"}
			}
			i = j
		default:
			if r == '=' && tok.Eq < 0 {
				tok.Eq = cur.Len()
			}
			inWord = true
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens, nil
}

func indexRune(rs []rune, from int, r rune) int {
	for i := from; i < len(rs); i++ {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
