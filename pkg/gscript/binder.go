package gscript

import (
	"strings"

	"github.com/chicogong/tagforge/pkg/operators"
)

// bind splits a statement's arguments into positional values and
// key=value overrides and binds them to op. A word is an override only
// when its key is one of op's parameter names; URLs and anything else
// containing '=' stay positional.
func bind(op operators.Operator, args []Token) (operators.Params, error) {
	desc := op.Describe()

	var positional []string
	named := map[string]string{}
	for _, a := range args {
		if k, v, ok := splitAssignment(a); ok {
			if _, declared := desc.Param(k); declared {
				named[k] = v
				continue
			}
		}
		positional = append(positional, a.Text)
	}
	return operators.Bind(op, positional, named)
}

func splitAssignment(t Token) (string, string, bool) {
	if t.Eq <= 0 {
		return "", "", false
	}
	lower := strings.ToLower(t.Text)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return "", "", false
	}
	key := t.Text[:t.Eq]
	if !isIdentifier(key) {
		return "", "", false
	}
	return key, t.Text[t.Eq+1:], true
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}
