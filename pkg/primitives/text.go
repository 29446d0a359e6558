package primitives

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chicogong/tagforge/pkg/tags"
)

func literalPrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "ignore", Mode: tags.Lazy, Usage: "{ignore:text}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			return tags.Escape(call.Args), nil
		}},
		{Name: "note", Aliases: []string{"comment"}, Mode: tags.Lazy, Usage: "{note:text}", Fn: func(context.Context, *tags.Context, *tags.Call) (any, error) {
			return "", nil
		}},
		{Name: "eval", Usage: "{eval:template}", Fn: func(ctx context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			return tc.Eval(ctx, call.Args), nil
		}},
		{Name: "newline", Usage: "{newline[:count]}", Fn: repeated("\n")},
		{Name: "tab", Usage: "{tab[:count]}", Fn: repeated("\t")},
		{Name: "space", Usage: "{space[:count]}", Fn: repeated(" ")},
	}
}

func repeated(s string) tags.Func {
	return func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
		if strings.TrimSpace(call.Args) == "" {
			return s, nil
		}
		n, err := parseInt(call.Args, "count")
		if err != nil {
			return nil, err
		}
		if n < 0 || n > 100 {
			return nil, errors.New("count must be between 0 and 100")
		}
		return strings.Repeat(s, n), nil
	}
}

func argumentPrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "args", Usage: "{args}", Fn: func(_ context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
			return tc.RawArgs, nil
		}},
		{Name: "argslen", Usage: "{argslen}", Fn: func(_ context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
			return fmt.Sprint(len(tc.Args)), nil
		}},
		{Name: "arg", Usage: "{arg:index}", Fn: func(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			i, err := parseInt(call.Args, "index")
			if err != nil {
				return nil, err
			}
			return tc.Arg(i), nil
		}},
		{Name: "rest", Usage: "{rest:index}", Fn: func(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			i, err := parseInt(call.Args, "index")
			if err != nil {
				return nil, err
			}
			return tc.Rest(i), nil
		}},
		{Name: "default", Usage: "{default:value|fallback}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			if v := call.Part(0); strings.TrimSpace(v) != "" {
				return v, nil
			}
			return call.Part(1), nil
		}},
	}
}

func stringPrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "len", Aliases: []string{"length"}, Usage: "{len:text}", Fn: transform(func(s string) string {
			return fmt.Sprint(utf8.RuneCountInString(s))
		})},
		{Name: "upper", Usage: "{upper:text}", Fn: transform(strings.ToUpper)},
		{Name: "lower", Usage: "{lower:text}", Fn: transform(strings.ToLower)},
		{Name: "capitalize", Usage: "{capitalize:text}", Fn: transform(capitalize)},
		{Name: "title", Usage: "{title:text}", Fn: transform(title)},
		{Name: "reverse", Usage: "{reverse:text}", Fn: transform(reverse)},
		{Name: "trim", Aliases: []string{"strip"}, Usage: "{trim:text[|chars]}", Fn: trimmer(strings.Trim, strings.TrimSpace)},
		{Name: "ltrim", Usage: "{ltrim:text[|chars]}", Fn: trimmer(strings.TrimLeft, func(s string) string {
			return strings.TrimLeftFunc(s, unicode.IsSpace)
		})},
		{Name: "rtrim", Usage: "{rtrim:text[|chars]}", Fn: trimmer(strings.TrimRight, func(s string) string {
			return strings.TrimRightFunc(s, unicode.IsSpace)
		})},
		{Name: "substring", Aliases: []string{"substr", "slice"}, Usage: "{substring:text|start[|end[|step]]}", Fn: substring},
		{Name: "replace", Usage: "{replace:text|find|replacement[|flags]}", Fn: replace},
		{Name: "split", Usage: "{split:delimiter|text}", Fn: split},
		{Name: "join", Usage: "{join:delimiter|json array}", Fn: join},
		{Name: "repeat", Usage: "{repeat:count|text}", Fn: repeat},
		{Name: "urlencode", Usage: "{urlencode:text}", Fn: transform(url.QueryEscape)},
		{Name: "urldecode", Usage: "{urldecode:text}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			return urlDecode(call.Args)
		}},
		{Name: "base64encode", Aliases: []string{"b64encode"}, Usage: "{base64encode:text}", Fn: transform(func(s string) string {
			return base64.StdEncoding.EncodeToString([]byte(s))
		})},
		{Name: "base64decode", Aliases: []string{"b64decode"}, Usage: "{base64decode:text}", Fn: base64Decode},
		{Name: "hex", Usage: "{hex:encode|text} or {hex:decode|text}", Fn: hexCodec},
		{Name: "hash", Usage: "{hash:md5|sha1|sha256|sha512|crc32|text}", Fn: hashText},
		{Name: "contains", Usage: "{contains:text|search}", Fn: predicate(strings.Contains)},
		{Name: "startswith", Usage: "{startswith:text|prefix}", Fn: predicate(strings.HasPrefix)},
		{Name: "endswith", Usage: "{endswith:text|suffix}", Fn: predicate(strings.HasSuffix)},
		{Name: "index", Usage: "{index:text|search}", Fn: index},
		{Name: "count", Usage: "{count:text|search}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			if call.NumParts() < 2 || call.Part(1) == "" {
				return nil, usage("{count:text|search}")
			}
			return fmt.Sprint(strings.Count(call.Part(0), call.Part(1))), nil
		}},
		{Name: "lpad", Usage: "{lpad:text|width[|char]}", Fn: pad(true)},
		{Name: "rpad", Usage: "{rpad:text|width[|char]}", Fn: pad(false)},
		{Name: "lines", Usage: "{lines:text}", Fn: transform(func(s string) string {
			if s == "" {
				return "0"
			}
			return fmt.Sprint(strings.Count(strings.TrimSuffix(s, "\n"), "\n") + 1)
		})},
		{Name: "words", Usage: "{words:text}", Fn: transform(func(s string) string {
			return fmt.Sprint(len(strings.Fields(s)))
		})},
		{Name: "chars", Usage: "{chars:text}", Fn: transform(func(s string) string {
			n := 0
			for _, r := range s {
				if !unicode.IsSpace(r) {
					n++
				}
			}
			return fmt.Sprint(n)
		})},
		{Name: "shuffle", Usage: "{shuffle:a|b|c} or {shuffle:text}", Fn: shuffle},
		{Name: "sort", Usage: "{sort:a|b|c}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			items := list(call)
			slices.SortFunc(items, func(a, b string) int {
				return strings.Compare(strings.ToLower(a), strings.ToLower(b))
			})
			return strings.Join(items, ", "), nil
		}},
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func title(s string) string {
	var b strings.Builder
	start := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && start:
			b.WriteRune(unicode.ToUpper(r))
			start = false
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
			start = unicode.IsSpace(r) || r == '-'
		}
	}
	return b.String()
}

func reverse(s string) string {
	r := []rune(s)
	slices.Reverse(r)
	return string(r)
}

func trimmer(cut func(s, cutset string) string, space func(string) string) tags.Func {
	return func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
		if call.NumParts() > 1 && call.Part(1) != "" {
			return cut(call.Part(0), call.Part(1)), nil
		}
		return space(call.Args), nil
	}
}

func substring(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{substring:text|start[|end[|step]]}")
	}
	bound := func(i int) (*int, error) {
		s := strings.TrimSpace(call.Part(i))
		if s == "" {
			return nil, nil
		}
		n, err := parseInt(s, "bound")
		return &n, err
	}
	start, err := bound(1)
	if err != nil {
		return nil, err
	}
	end, err := bound(2)
	if err != nil {
		return nil, err
	}
	step := 1
	if s, err := bound(3); err != nil {
		return nil, err
	} else if s != nil {
		step = *s
	}
	if step == 0 {
		return nil, errors.New("step cannot be zero")
	}
	return string(pySlice([]rune(call.Part(0)), start, end, step)), nil
}

// pySlice slices r the way s[start:end:step] does: nil bounds default to
// the ends, negative bounds count from the end, out of range bounds clamp.
func pySlice(r []rune, start, end *int, step int) []rune {
	n := len(r)
	clamp := func(p *int, def, lo, hi int) int {
		if p == nil {
			return def
		}
		i := *p
		if i < 0 {
			i += n
		}
		return max(lo, min(i, hi))
	}
	var out []rune
	if step > 0 {
		for i := clamp(start, 0, 0, n); i < clamp(end, n, 0, n); i += step {
			out = append(out, r[i])
		}
		return out
	}
	for i := clamp(start, n-1, -1, n-1); i > clamp(end, -1, -1, n-1); i += step {
		out = append(out, r[i])
	}
	return out
}

// replace supports the flags i (ignore case), r (regular expression),
// w (whole words), g (every match) and c (return the match count). Without
// flags every occurrence is replaced; with flags only the first one is,
// unless g is given.
func replace(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 3 {
		return nil, usage("{replace:text|find|replacement[|flags]}")
	}
	text, find, repl := call.Part(0), call.Part(1), call.Part(2)
	if find == "" {
		return nil, errors.New("nothing to find")
	}
	flags := strings.ToLower(strings.TrimSpace(call.Part(3)))
	for _, f := range flags {
		if !strings.ContainsRune("irwgc", f) {
			return nil, fmt.Errorf("unknown flag '%c'", f)
		}
	}
	global := flags == "" || strings.Contains(flags, "g")

	pattern := find
	if !strings.Contains(flags, "r") {
		pattern = regexp.QuoteMeta(find)
		repl = strings.ReplaceAll(repl, "$", "$$")
	}
	if strings.Contains(flags, "w") {
		pattern = `\b(?:` + pattern + `)\b`
	}
	if strings.Contains(flags, "i") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	if strings.Contains(flags, "c") {
		n := len(re.FindAllStringIndex(text, -1))
		if !global {
			n = min(n, 1)
		}
		return fmt.Sprint(n), nil
	}
	if global {
		return re.ReplaceAllString(text, repl), nil
	}
	m := re.FindStringSubmatchIndex(text)
	if m == nil {
		return text, nil
	}
	out := re.ExpandString(nil, repl, text, m)
	return text[:m[0]] + string(out) + text[m[1]:], nil
}

func split(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{split:delimiter|text}")
	}
	var parts []string
	if d := call.Part(0); d == "" {
		parts = strings.Fields(call.Part(1))
	} else {
		parts = strings.Split(call.Part(1), d)
	}
	if parts == nil {
		parts = []string{}
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func join(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{join:delimiter|json array}")
	}
	var items []any
	if err := json.Unmarshal([]byte(call.Part(1)), &items); err != nil {
		return nil, errors.New("expected a JSON array")
	}
	out := make([]string, len(items))
	for i, it := range items {
		if s, ok := it.(string); ok {
			out[i] = s
			continue
		}
		data, _ := json.Marshal(it)
		out[i] = string(data)
	}
	return strings.Join(out, call.Part(0)), nil
}

func repeat(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{repeat:count|text}")
	}
	n, err := parseInt(call.Part(0), "count")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.New("count cannot be negative")
	}
	s := call.Part(1)
	if n*utf8.RuneCountInString(s) > MaxResult {
		return nil, ErrTooLong
	}
	return strings.Repeat(s, n), nil
}

func urlDecode(s string) (string, error) {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return "", errors.New("invalid url encoding")
	}
	return out, nil
}

func base64Decode(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	s := strings.TrimSpace(call.Args)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return string(data), nil
		}
	}
	return nil, errors.New("invalid base64")
}

func hexCodec(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{hex:encode|text} or {hex:decode|text}")
	}
	_, text, _ := strings.Cut(call.Args, "|")
	switch strings.ToLower(strings.TrimSpace(call.Part(0))) {
	case "encode":
		return hex.EncodeToString([]byte(text)), nil
	case "decode":
		data, err := hex.DecodeString(strings.TrimSpace(text))
		if err != nil {
			return nil, errors.New("invalid hex")
		}
		return string(data), nil
	}
	return nil, fmt.Errorf("unknown mode '%s'", call.Part(0))
}

var hashes = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
	"crc32":  func() hash.Hash { return crc32.NewIEEE() },
}

func hashText(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{hash:algorithm|text}")
	}
	algo := strings.ToLower(strings.TrimSpace(call.Part(0)))
	newHash, ok := hashes[algo]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm '%s'", algo)
	}
	h := newHash()
	h.Write([]byte(strings.Join(call.Parts()[1:], "|")))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func predicate(fn func(s, sub string) bool) tags.Func {
	return func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
		if call.NumParts() < 2 {
			return nil, usage("{name:text|search}")
		}
		return boolText(fn(call.Part(0), call.Part(1))), nil
	}
}

func index(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{index:text|search}")
	}
	s := call.Part(0)
	i := strings.Index(s, call.Part(1))
	if i < 0 {
		return "-1", nil
	}
	return fmt.Sprint(utf8.RuneCountInString(s[:i])), nil
}

func pad(left bool) tags.Func {
	return func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
		if call.NumParts() < 2 {
			return nil, usage("{lpad:text|width[|char]}")
		}
		width, err := parseInt(call.Part(1), "width")
		if err != nil {
			return nil, err
		}
		if width > MaxResult {
			return nil, ErrTooLong
		}
		fill := " "
		if c := call.Part(2); c != "" {
			r, _ := utf8.DecodeRuneInString(c)
			fill = string(r)
		}
		s := call.Part(0)
		n := width - utf8.RuneCountInString(s)
		if n <= 0 {
			return s, nil
		}
		if left {
			return strings.Repeat(fill, n) + s, nil
		}
		return s + strings.Repeat(fill, n), nil
	}
}

func shuffle(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() > 1 {
		items := list(call)
		tc.Rand.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		return strings.Join(items, ", "), nil
	}
	r := []rune(call.Args)
	tc.Rand.Shuffle(len(r), func(i, j int) { r[i], r[j] = r[j], r[i] })
	return string(r), nil
}
