package gscript

import (
	"strings"

	"github.com/chicogong/tagforge/pkg/colors"
)

// Statement is one operation call.
type Statement struct {
	Line int
	Op   string
	Args []Token
}

// String reassembles the statement for logs and error messages.
func (s Statement) String() string {
	parts := []string{s.Op}
	for _, a := range s.Args {
		parts = append(parts, a.Text)
	}
	return strings.Join(parts, " ")
}

// Parse splits a script into statements. Blank statements are dropped, and
// a statement whose first word starts with '#' (and is not a hex color)
// comments out the rest of its line.
func Parse(script string) ([]Statement, error) {
	var stmts []Statement
	for i, line := range strings.Split(script, "\n") {
		lineNo := i + 1
		tokens, err := tokenizeLine(line, lineNo)
		if err != nil {
			return nil, err
		}

		var cur []Token
	words:
		for j := 0; j <= len(tokens); j++ {
			if j < len(tokens) && !tokens[j].sep {
				cur = append(cur, tokens[j])
				continue
			}
			if len(cur) > 0 {
				if isComment(cur[0]) {
					cur = nil
					break words
				}
				stmts = append(stmts, Statement{
					Line: lineNo,
					Op:   strings.ToLower(cur[0].Text),
					Args: cur[1:],
				})
			}
			cur = nil
		}
	}
	return stmts, nil
}

func isComment(t Token) bool {
	if t.Quoted || !strings.HasPrefix(t.Text, "#") {
		return false
	}
	_, err := colors.Parse(t.Text)
	return err != nil
}
