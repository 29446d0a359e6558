package primitives

import (
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/tagforge/pkg/codeexec"
	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/storage"
	"github.com/chicogong/tagforge/pkg/store"
	"github.com/chicogong/tagforge/pkg/tags"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testInvocation() *platform.Invocation {
	return &platform.Invocation{
		ID:      "m1",
		Author:  platform.User{ID: "u1", Name: "alice", DisplayName: "Alice", CreatedAt: fixedNow.AddDate(-1, 0, 0)},
		Channel: platform.Channel{ID: "c1", Name: "general"},
		Content: "!tag greet",
	}
}

type harness struct {
	formatter *tags.Formatter
	inv       *platform.Invocation
	args      string
	dir       platform.Directory
}

func newHarness(deps Deps) *harness {
	return &harness{formatter: tags.NewFormatter(New(deps)), inv: testInvocation()}
}

func (h *harness) context() *tags.Context {
	tc := tags.NewContext(h.inv, h.args)
	tc.Now = func() time.Time { return fixedNow }
	tc.Rand = rand.New(rand.NewPCG(1, 2))
	tc.Directory = h.dir
	return tc
}

func (h *harness) run(template string) *tags.Output {
	return h.formatter.Format(context.Background(), h.context(), template)
}

func (h *harness) text(template string) string {
	return tags.Unescape(h.run(template).Text())
}

func TestVocabularySize(t *testing.T) {
	reg := New(Deps{})
	assert.GreaterOrEqual(t, len(reg.Names()), 150)
	for _, name := range []string{"ignore", "note", "comment", "eval", "if", "choose", "gscript", "python", "c#", "kt", "tag", "embed", "view"} {
		_, ok := reg.Get(name)
		assert.True(t, ok, name)
	}
}

func TestEndToEndScenario(t *testing.T) {
	h := newHarness(Deps{})
	h.args = "world"
	out := h.run("Hello {upper:{arg:0}}, you rolled {dice:1d1}")
	assert.Equal(t, "Hello WORLD, you rolled 1 (1)", out.Text())
	assert.False(t, out.Structured())
}

func TestTextPrimitives(t *testing.T) {
	h := newHarness(Deps{})
	tests := []struct {
		template string
		want     string
	}{
		{"{lower:ABC}", "abc"},
		{"{capitalize:hELLO wORLD}", "Hello world"},
		{"{title:hello big-world}", "Hello Big-World"},
		{"{reverse:abc}", "cba"},
		{"{reverse:{reverse:héllo}}", "héllo"},
		{"{len:héllo}", "5"},
		{"{substring:hello|-2}", "lo"},
		{"{substring:hello|1|3}", "el"},
		{"{substring:hello|0|5|2}", "hlo"},
		{"{substring:hello|||-1}", "olleh"},
		{"{substring:hello|0|5|0}", "[substring error: step cannot be zero]"},
		{"{replace:a-b-c|-|+}", "a+b+c"},
		{"{replace:Hello hello|hello|bye|i}", "bye hello"},
		{"{replace:Hello hello|hello|bye|ig}", "bye bye"},
		{"{replace:cat catalog|cat|dog|wg}", "dog catalog"},
		{`{replace:a1b22|\d+|#|rg}`, "a#b#"},
		{"{replace:aaa|a|b|c}", "1"},
		{"{replace:aaa|a|b|cg}", "3"},
		{"{replace:x|y|z|q}", "[replace error: unknown flag 'q']"},
		{"{replace:cost|cost|$5}", "$5"},
		{"{trim:  hi  }", "hi"},
		{"{trim:xxhixx|x}", "hi"},
		{"{split:,|a,b}", `["a","b"]`},
		{`{join:-|["a",1]}`, "a-1"},
		{"{repeat:3|ab}", "ababab"},
		{"{urldecode:{urlencode:a b&c=d/é}}", "a b&c=d/é"},
		{"{base64decode:{base64encode:hi there}}", "hi there"},
		{"{base64decode:aGk}", "hi"},
		{"{hex:decode|{hex:encode|hi}}", "hi"},
		{`{hex:decode|{hex:encode|"q"|x}}`, `"q"|x`},
		{`{hex:decode|{hex:encode|a\|b}}`, `a\|b`},
		{"{hex:encode|a|b}", "617c62"},
		{"{hex:decode|zz}", "[hex error: invalid hex]"},
		{"{hash:md5|abc}", "900150983cd24fb0d6963f7d28e17f72"},
		{"{hash:sha256|abc}", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"{hash:foo|abc}", "[hash error: unknown algorithm 'foo']"},
		{"{contains:hello|ell}", "true"},
		{"{startswith:hello|lo}", "false"},
		{"{index:héllo|l}", "2"},
		{"{count:banana|a}", "3"},
		{"{lpad:7|3|0}", "007"},
		{"{rpad:ab|4}", "ab  "},
		{"{words:a b  c}", "3"},
		{"{lines:a{newline}b}", "2"},
		{"{sort:b|A|c}", "A, b, c"},
		{"{ignore:{upper:x}}", "{upper:x}"},
		{"{note:anything {upper:x}}", ""},
		{"{comment:x}", ""},
		{"{eval:{upper:x}}", "X"},
		{"a{newline}b", "a\nb"},
		{"[{space:3}]", "[   ]"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, h.text(tt.template))
		})
	}
}

func TestArguments(t *testing.T) {
	h := newHarness(Deps{})
	h.args = `a "b c" d`
	assert.Equal(t, `a "b c" d`, h.text("{args}"))
	assert.Equal(t, "3", h.text("{argslen}"))
	assert.Equal(t, "b c", h.text("{arg:1}"))
	assert.Equal(t, "d", h.text("{arg:-1}"))
	assert.Equal(t, "", h.text("{arg:9}"))
	assert.Equal(t, "b c d", h.text("{rest:1}"))
	assert.Equal(t, "fb", h.text("{default:{arg:9}|fb}"))
	assert.Equal(t, "[arg error: index must be an integer, got 'x']", h.text("{arg:x}"))
}

func TestLogic(t *testing.T) {
	h := newHarness(Deps{})
	tests := []struct {
		template string
		want     string
	}{
		{"{if:5|>|3|then|yes|else|no}", "yes"},
		{"{if:10|<|9|yes|no}", "no"},
		{"{if:10|>|9|yes|no}", "yes"},
		{"{if:abc|==|abc|then|same}", "same"},
		{"{if:abc|*=|b|then|in|else|out}", "in"},
		{"{if:abc|!*=|z|then|none}", "none"},
		{"{if:abc|^=|ab|y|n}", "y"},
		{"{if:abc|$=|ab|y|n}", "n"},
		{"{if:red green|~=|green|y|n}", "y"},
		{"{if:red green|!~=|green|y|n}", "n"},
		{"{if:a|??|b|then|x}", "[error: unknown operator '??']"},
		{"{if:a}", "[if error: usage: {if:left|operator|right|then|value|else|value}]"},
		{"{and:1|yes}", "true"},
		{"{and:1|no}", "false"},
		{"{or:0|false}", "false"},
		{"{not:}", "true"},
		{"{equals:1.0|1}", "true"},
		{"{notequals:a|b}", "true"},
		{"{unequals:a|a}", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, h.text(tt.template))
		})
	}
}

func TestRandom(t *testing.T) {
	h := newHarness(Deps{})
	assert.Equal(t, "[choose error: no valid options]", h.text("{choose:}"))
	assert.Equal(t, "[choose error: no valid options]", h.text("{choose:sep=-}"))
	assert.Equal(t, "only", h.text("{choose:only}"))
	assert.Equal(t, "b", h.text("{choose:a@0|b}"))
	assert.Equal(t, "x y", h.text("{choose:x|y|group=true}"))
	assert.Contains(t, []string{"a+b", "b+a"}, h.text("{choose:a|b|count=2|sep=+}"))
	assert.Contains(t, []string{"a, b", "b, a"}, h.text("{choose:a|b|count=5}"))

	assert.Equal(t, "0 (0)", h.text("{dice:0d6}"))
	assert.Equal(t, "5 (1, 1 +3)", h.text("{dice:2d1+3}"))
	assert.Equal(t, "0 (1 -1)", h.text("{dice:d1-1}"))
	assert.Equal(t, "[dice error: usage: {dice:NdM[+k]}]", h.text("{dice:abc}"))
	assert.Equal(t, "[dice error: sides must be between 1 and 1000000]", h.text("{dice:1d0}"))
	assert.Equal(t, "[dice error: at most 100 dice]", h.text("{dice:101d6}"))
	assert.Equal(t, "[dice error: at most 100 dice]", h.text("{dice:99999999999999999999d6}"))
	assert.Equal(t, "[dice error: sides must be between 1 and 1000000]", h.text("{dice:1d99999999999999999999}"))
	assert.Equal(t, "[dice error: modifier must be at most 1000000]", h.text("{dice:1d6+99999999999999999999}"))

	assert.Equal(t, "5", h.text("{range:5|5}"))
	for range 20 {
		got := h.text("{range:5|1}")
		assert.Contains(t, []string{"1", "2", "3", "4", "5"}, got)
	}
	assert.Contains(t, []string{"heads", "tails"}, h.text("{coin}"))
	assert.Equal(t, "1", h.text("{random:1}"))
}

func TestMath(t *testing.T) {
	h := newHarness(Deps{})
	tests := []struct {
		template string
		want     string
	}{
		{"{math:2**3+1}", "9"},
		{"{math:(1+2)*3 % 4}", "1"},
		{"{math:5/0}", "[math error: division by zero]"},
		{"{round:10/3|2}", "3.33"},
		{"{round:2.5}", "3"},
		{"{floor:2.7}", "2"},
		{"{ceil:2.1}", "3"},
		{"{abs:-4}", "4"},
		{"{sum:1|2|3}", "6"},
		{"{avg:[1,2,3,4]}", "2.5"},
		{"{max:1|9|3}", "9"},
		{"{min:4|-2}", "-2"},
		{"{commas:1234567}", "1,234,567"},
		{"{filesize:1500000}", "1.5 MB"},
		{"{filesize:1024|iec}", "1.0 KiB"},
		{"{sum:}", "[sum error: no numbers given]"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, h.text(tt.template))
		})
	}
	assert.True(t, strings.HasPrefix(h.text("{math:os.exit(1)}"), "[math error: "))
}

func TestVariablesArePerInvocation(t *testing.T) {
	h := newHarness(Deps{})
	assert.Equal(t, "42", h.text("{set:x|42}{get:x}"))
	assert.Equal(t, "", h.text("{get:x}"))
	assert.Equal(t, "none", h.text("{get:y|none}"))
	assert.Equal(t, "13", h.text("{incr:n}{incr:n|2}"))
	assert.Equal(t, "[incr error: variable 's' is not a number]", h.text("{set:s|abc}{incr:s}"))
	assert.Equal(t, "", h.text("{set:a|1}{unset:a}{get:a}"))
}

func TestTime(t *testing.T) {
	h := newHarness(Deps{})
	tests := []struct {
		template string
		want     string
	}{
		{"{timestamp:%Y-%m-%d}", "2024-03-01"},
		{"{timestamp}", "2024-03-01 12:00:00"},
		{"{timestamp:%H:%M|+02:00}", "14:00"},
		{"{timestamp:%H:%M|America/New_York}", "07:00"},
		{"{timestamp:%Y-%m-%d|UTC|1d}", "2024-03-02"},
		{"{timestamp:%H:%M|UTC|-90m}", "10:30"},
		{"{timestamp:unix}", "1709294400"},
		{"{timestamp:%Y|Mars/Base}", "[timestamp error: unknown timezone 'Mars/Base']"},
		{"{now}", "1709294400"},
		{"{duration:2024-03-01|2024-03-03 05:00}", "2 days, 5 hours"},
		{"{duration:0|90|clock}", "00:01:30"},
		{"{duration:0|5400|hours|1}", "1.5"},
		{"{duration:0|3661||3}", "1 hour, 1 minute, 1 second"},
		{"{countdown:2024-03-02 12:00}", "1 day"},
		{"{countdown:2024-01-01|||over}", "over"},
		{"{countdown:2024-01-01}", "The time has passed"},
		{"{parsetime:2024-03-01 12:00}", "1709294400"},
		{"{parsetime:01/03/2024|UTC|%d/%m/%Y}", "1709251200"},
		{"{businessdays:2024-03-01|2024-03-08}", "5"},
		{"{businessdays:2024-03-01|2024-03-08|2024-03-04}", "4"},
		{`{businessdays:2024-03-08|2024-03-01|["2024-03-04"]}`, "-4"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, h.text(tt.template))
		})
	}
}

func TestJSON(t *testing.T) {
	h := newHarness(Deps{})
	tests := []struct {
		template string
		want     string
	}{
		{`{traversejson:a.b|{"a":{"b":7}}}`, "7"},
		{`{traversejson:a|{"a":[1,2]}}`, "[1,2]"},
		{`{traversejson:z|{"a":1}}`, "[traversejson error: path 'z' not found]"},
		{`{traversejson:a|nope}`, "[traversejson error: invalid JSON]"},
		{"{type:[1]}", "array"},
		{"{type:12}", "number"},
		{"{type:true}", "boolean"},
		{"{type:hi}", "string"},
		{`{type:{"a":1}}`, "object"},
		{`{jsonkeys:{"a":1,"b":2}}`, `["a","b"]`},
		{"{jsonlen:[1,2,3]}", "3"},
		{`{jsonify:say "hi"}`, `"say \"hi\""`},
		{`{jsonpretty:[1]}`, "[\n  1\n]"},
		{`{jsonschema:{"age":3}|{"type":"object","properties":{"age":{"type":"integer"}}}}`, "valid"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, h.text(tt.template))
		})
	}

	got := h.text(`{jsonschema:{"age":"x"}|{"type":"object","properties":{"age":{"type":"integer"}}}}`)
	assert.True(t, strings.HasPrefix(got, "[jsonschema error: /age: "), got)
}

func TestMetadata(t *testing.T) {
	h := newHarness(Deps{})
	h.dir = platform.NewStaticDirectory("g1",
		platform.User{ID: "u1", Name: "alice"},
		platform.User{ID: "u2", Name: "bob", Nick: "Bobby", Badges: []string{"early", "dev"}},
	)

	assert.Equal(t, "alice", h.text("{user}"))
	assert.Equal(t, "Alice", h.text("{userdisplay}"))
	assert.Equal(t, "Alice", h.text("{nick}"))
	assert.Equal(t, "<@u1>", h.text("{mention}"))
	assert.Equal(t, "u1", h.text("{userid}"))
	assert.Equal(t, "2023-03-01 12:00:00 UTC", h.text("{usercreatedate}"))
	assert.Equal(t, "unknown", h.text("{userjoindate}"))
	assert.Equal(t, "offline", h.text("{userstatus}"))
	assert.Equal(t, "Bobby", h.text("{nick:<@u2>}"))
	assert.Equal(t, "early, dev", h.text("{userbadges:u2}"))
	assert.Equal(t, "general", h.text("{channel}"))
	assert.Equal(t, "c1", h.text("{channelid}"))
	assert.Equal(t, "!tag greet", h.text("{invoker}"))
	assert.Equal(t, "[guild error: only available in a server]", h.text("{guild}"))
	assert.Equal(t, "[randuser error: only available in a server]", h.text("{randuser}"))

	h.inv.Guild = &platform.Guild{ID: "g1", Name: "Home"}
	assert.Equal(t, "Home", h.text("{server}"))
	assert.Equal(t, "g1", h.text("{serverid}"))
	assert.Contains(t, []string{"u1", "u2"}, h.text("{randuserid}"))
}

func TestMediaLookups(t *testing.T) {
	h := newHarness(Deps{})
	assert.Equal(t, NoMedia, h.text("{image}"))
	assert.Equal(t, "https://x.test/a.png", h.text("{image:https://x.test/a.png}"))
	assert.Equal(t, "[]", h.text("{attachments}"))

	h.inv.Attachments = []platform.Attachment{
		{URL: "https://cdn.test/clip.mp4", Filename: "clip.mp4", ContentType: "video/mp4"},
		{URL: "https://cdn.test/pic.png", Filename: "pic.png", ContentType: "image/png"},
	}
	assert.Equal(t, "https://cdn.test/pic.png", h.text("{image}"))
	assert.Equal(t, "https://cdn.test/clip.mp4", h.text("{iv}"))
	assert.Equal(t, "https://cdn.test/clip.mp4", h.text("{av}"))
	assert.Equal(t, NoMedia, h.text("{audio}"))
	assert.Equal(t, "fallback", h.text("{audio:fallback}"))
	assert.Equal(t, `["https://cdn.test/clip.mp4","https://cdn.test/pic.png"]`, h.text("{attachments}"))

	assert.Equal(t, "[gscript error: media is unavailable]", h.text("{gscript:create a 10 10 red}"))
	assert.Equal(t, "[attach error: media is unavailable]", h.text("{attach}"))
}

func TestAttachText(t *testing.T) {
	h := newHarness(Deps{})
	out := h.run("{attachtext:hello}")
	require.Len(t, out.Files, 1)
	assert.Equal(t, "message.txt", out.Files[0].Name)
	assert.Equal(t, "hello", string(out.Files[0].Data))

	out = h.run("{attachtext:# Title|notes.md}")
	require.Len(t, out.Files, 1)
	assert.Equal(t, "notes.md", out.Files[0].Name)
	assert.Equal(t, "# Title", string(out.Files[0].Data))
}

func TestFetchText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote body"))
	}))
	defer srv.Close()

	h := newHarness(Deps{Storage: storage.NewManager()})
	assert.Equal(t, "remote body", h.text("{text:"+srv.URL+"/x.txt}"))

	h = newHarness(Deps{})
	assert.Equal(t, "[text error: media is unavailable]", h.text("{text:"+srv.URL+"}"))
}

func TestUIComponents(t *testing.T) {
	h := newHarness(Deps{})

	out := h.run(`{embed:title=Hi|description=there}`)
	require.Len(t, out.Embeds, 1)
	assert.Equal(t, "Hi", out.Embeds[0].Title)
	assert.Equal(t, "there", out.Embeds[0].Description)
	assert.Empty(t, out.Text())

	out = h.run(`{embed:{"title":"Json"}}`)
	require.Len(t, out.Embeds, 1)
	assert.Equal(t, "Json", out.Embeds[0].Title)

	out = h.run("{view:{button:A}{button:B}}")
	assert.Equal(t, 2, out.View.Len())
	assert.Empty(t, out.Text())

	out = h.run("{button:Go|success|go}")
	require.Equal(t, 1, out.View.Len())

	assert.Equal(t, "[embed error: embed is empty]", h.text("{embed:}"))
}

func newSandbox(t *testing.T, output string, failed bool) *codeexec.Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output":       output,
			"files":        []string{},
			"execution_id": "e1",
			"error":        failed,
		})
	}))
	t.Cleanup(srv.Close)
	return codeexec.NewClient(srv.URL, codeexec.WithRateLimit(0, 0))
}

func TestCodeExecution(t *testing.T) {
	h := newHarness(Deps{Code: newSandbox(t, "4\n", false)})
	assert.Equal(t, "4", h.text("{python:print(2+2)}"))
	assert.Equal(t, "4", h.text("{js:console.log(4)}"))

	h = newHarness(Deps{Code: newSandbox(t, "NameError: boom\n", true)})
	assert.Equal(t, "[python error: NameError: boom]", h.text("{python:boom}"))

	h = newHarness(Deps{})
	assert.Equal(t, "[bash error: code execution is not configured]", h.text("{bash:echo}"))
}

func TestCodeExecutionSendsAttachments(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big.bin" {
			_, _ = w.Write(make([]byte, codeexec.MaxFileSize+1))
			return
		}
		_, _ = w.Write([]byte("body of " + r.URL.Path))
	}))
	defer cdn.Close()

	received := map[string]string{}
	sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(f)
			require.NoError(t, err)
			f.Close()
			received[fh.Filename] = string(data)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"output": "ok\n", "files": []string{}, "execution_id": "e1"})
	}))
	defer sandbox.Close()
	client := codeexec.NewClient(sandbox.URL, codeexec.WithRateLimit(0, 0))

	h := newHarness(Deps{Code: client, Storage: storage.NewManager()})
	h.inv.Attachments = []platform.Attachment{
		{URL: cdn.URL + "/data.csv", Filename: "data.csv"},
		{URL: cdn.URL + "/files/notes.txt"},
		{URL: cdn.URL + "/other.csv", Filename: "data.csv"},
	}
	assert.Equal(t, "ok", h.text("{python:print(open('data.csv').read())}"))
	assert.Equal(t, map[string]string{
		"data.csv":   "body of /data.csv",
		"notes.txt":  "body of /files/notes.txt",
		"data_1.csv": "body of /other.csv",
	}, received)

	h.inv.Attachments = []platform.Attachment{{URL: cdn.URL + "/big.bin", Filename: "big.bin"}}
	assert.Equal(t, "[python error: attachment big.bin exceeds 10485760 bytes]", h.text("{python:1}"))

	h = newHarness(Deps{Code: client})
	h.inv.Attachments = []platform.Attachment{{URL: cdn.URL + "/a.txt"}}
	assert.Equal(t, "[python error: media is unavailable]", h.text("{python:1}"))
}

func TestAttachmentName(t *testing.T) {
	tests := []struct {
		a    platform.Attachment
		want string
	}{
		{platform.Attachment{Filename: "a.png", URL: "https://x/b.png"}, "a.png"},
		{platform.Attachment{URL: "https://x/dir/b.png?size=2"}, "b.png"},
		{platform.Attachment{Filename: "../../etc/passwd"}, "passwd"},
		{platform.Attachment{Filename: `..\evil.txt`}, "evil.txt"},
		{platform.Attachment{URL: "https://x/"}, "attachment"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, attachmentName(tt.a), tt.a)
	}
}

func TestTagInclude(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()
	require.NoError(t, s.Create(ctx, &store.Template{Name: "greet", Content: "Hi {arg:0}", OwnerID: "u1", Scope: store.ScopeUser, ScopeKey: "u1"}))
	require.NoError(t, s.Create(ctx, &store.Template{Name: "loop", Content: "{tag:loop}", OwnerID: "u1", Scope: store.ScopeUser, ScopeKey: "u1"}))

	h := newHarness(Deps{Store: s})
	assert.Equal(t, "Hi bob!", h.text("{tag:greet|bob}!"))
	assert.Equal(t, "[tag error: no tag named nope]", h.text("{tag:nope}"))
	assert.Contains(t, h.text("{tag:loop}"), "[tag error: maximum nesting depth exceeded]")

	tpl, err := s.Get(ctx, store.Key{Scope: store.ScopeUser, ScopeKey: "u1", Name: "greet"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, tpl.Uses)

	h = newHarness(Deps{})
	assert.Equal(t, "[tag error: tag storage is unavailable]", h.text("{tag:greet}"))
}

func TestPySlice(t *testing.T) {
	r := []rune("abcdef")
	ip := func(i int) *int { return &i }
	tests := []struct {
		start, end *int
		step       int
		want       string
	}{
		{nil, nil, 1, "abcdef"},
		{ip(-3), nil, 1, "def"},
		{ip(1), ip(-1), 2, "bd"},
		{nil, nil, -2, "fdb"},
		{ip(10), nil, 1, ""},
		{ip(-100), ip(2), 1, "ab"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(pySlice(r, tt.start, tt.end, tt.step)))
	}
}
