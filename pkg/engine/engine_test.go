package engine

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/tagforge/pkg/gscript"
	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/store"
	"github.com/chicogong/tagforge/pkg/tags"
	"github.com/chicogong/tagforge/pkg/workspace"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func invocation(userID string) *platform.Invocation {
	return &platform.Invocation{
		ID:      "m1",
		Author:  platform.User{ID: userID, Name: "user-" + userID},
		Channel: platform.Channel{ID: "c1", Name: "general"},
		Guild:   &platform.Guild{ID: "g1", Name: "guild"},
	}
}

func newEngine(t *testing.T, opts ...Option) (*Engine, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	opts = append([]Option{WithStore(s), WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(opts...), s
}

func TestEvaluate(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	msg, err := e.Evaluate(ctx, invocation("u1"), "Hello {upper:{arg:0}} \\{x\\} {timestamp:%Y}", "world")
	require.NoError(t, err)
	assert.Equal(t, "Hello WORLD {x} 2024", msg.Content)
	assert.Empty(t, msg.Files)

	msg, err = e.Evaluate(ctx, nil, "{embed:title=Hi}{button:Go|primary|go}", "")
	require.NoError(t, err)
	require.Len(t, msg.Embeds, 1)
	assert.Equal(t, "Hi", msg.Embeds[0].Title)
	assert.Equal(t, 1, msg.View.Len())
}

func TestEvaluateWithoutWorkspace(t *testing.T) {
	e, _ := newEngine(t)
	msg, err := e.Evaluate(context.Background(), invocation("u1"), "{attach:https://example.com/a.png}", "")
	require.NoError(t, err)
	assert.Equal(t, "[attach error: media is unavailable]", msg.Content)
}

func TestEvaluateClampsContent(t *testing.T) {
	e, _ := newEngine(t)
	msg, err := e.Evaluate(context.Background(), invocation("u1"), "{repeat:1500|ab}", "")
	require.NoError(t, err)
	assert.Len(t, msg.Content, platform.MaxContentLength)
}

func TestEvaluateReadsSessionFiles(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	e, _ := newEngine(t, WithWorkspace(ws))

	var written string
	e.Registry().MustRegister(&tags.Primitive{Name: "mkfile", Fn: func(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
		p, err := tc.Media.Session.Allocate("txt")
		if err != nil {
			return nil, err
		}
		written = p
		return platform.File{Path: p}, os.WriteFile(p, []byte(call.Args), 0o644)
	}})

	msg, err := e.Evaluate(context.Background(), invocation("u1"), "done{mkfile:payload}", "")
	require.NoError(t, err)
	assert.Equal(t, "done", msg.Content)
	require.Len(t, msg.Files, 1)
	assert.Equal(t, []byte("payload"), msg.Files[0].Data)
	assert.Empty(t, msg.Files[0].Path)
	assert.True(t, strings.HasSuffix(msg.Files[0].Name, ".txt"))

	_, statErr := os.Stat(written)
	assert.True(t, os.IsNotExist(statErr), "session files are removed")
	assert.Equal(t, 0, ws.Sessions())
}

func TestCommands(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	alice, bob := invocation("alice"), invocation("bob")

	run := func(inv *platform.Invocation, line string) string {
		t.Helper()
		msg, err := e.Command(ctx, inv, line)
		require.NoError(t, err)
		return msg.Content
	}

	assert.Equal(t, CommandUsage, run(alice, ""))
	assert.Equal(t, "Tag greet created", run(alice, "create greet Hello {arg:0}!"))
	assert.Equal(t, "A tag named greet already exists", run(alice, "create GREET again"))
	assert.Equal(t, "create is a reserved name", run(alice, "create create x"))
	assert.Equal(t, "Tag names must be 50 characters or fewer", run(alice, "create "+strings.Repeat("n", 51)+" x"))
	assert.Equal(t, "Tag content must be 2000 characters or fewer", run(alice, "create long "+strings.Repeat("c", 2001)))

	assert.Equal(t, "Hello bob!", run(alice, "greet bob"))
	assert.Equal(t, "Hello {arg:0}!", run(alice, "show greet"))
	assert.Equal(t, "```\nHello {arg:0}!\n```", run(alice, "raw greet"))
	assert.Equal(t, "No tag named greet found", run(bob, "greet"))

	got, err := s.Get(ctx, store.Key{Scope: store.ScopeUser, ScopeKey: "alice", Name: "greet"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Uses)

	info := run(alice, "info greet")
	assert.Contains(t, info, "Name: greet\nOwner: <@alice>\nScope: personal\nUses: 1\n")

	assert.Equal(t, "Tag greet edited", run(alice, "edit greet Hi"))
	assert.Equal(t, "No editable tag named greet found", run(bob, "edit greet nope"))
	assert.Equal(t, "Hi", run(alice, "greet"))

	assert.Equal(t, "Tag greet transferred to <@bob>", run(alice, "transfer greet <@!bob>"))
	assert.Equal(t, "No tag named greet found", run(alice, "show greet"))
	assert.Equal(t, "Hi", run(bob, "greet"))
	assert.Equal(t, "Tags (1): greet", run(bob, "list"))
	assert.Equal(t, "No tags found", run(alice, "list"))

	assert.Equal(t, "No editable tag named greet found", run(alice, "delete greet"))
	assert.Equal(t, "Tag greet deleted", run(bob, "delete greet"))
	assert.Equal(t, "No tag named greet found", run(bob, "greet"))
}

func TestServerCommands(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	alice, bob := invocation("alice"), invocation("bob")
	mod := invocation("mod")
	mod.Elevated = true

	run := func(inv *platform.Invocation, line string) string {
		t.Helper()
		msg, err := e.Command(ctx, inv, line)
		require.NoError(t, err)
		return msg.Content
	}

	assert.Equal(t, "Tag rules created", run(alice, "create --server rules Be nice"))
	assert.Equal(t, "Be nice", run(bob, "rules"), "guild tags resolve for every member")
	assert.Equal(t, "No editable tag named rules found", run(bob, "edit --server rules x"))
	assert.Equal(t, "Tag rules edited", run(mod, "edit --server rules Be kind"))
	assert.Equal(t, "Tags (1): rules", run(bob, "list --server"))
	assert.Equal(t, "No editable tag named rules found", run(alice, "transfer rules <@bob>"), "only personal tags move")

	// A personal tag shadows the guild tag of the same name.
	assert.Equal(t, "Tag rules created", run(bob, "create rules mine"))
	assert.Equal(t, "mine", run(bob, "rules"))
	assert.Equal(t, "Be kind", run(alice, "rules"))

	dm := invocation("alice")
	dm.Guild = nil
	assert.Equal(t, "Server tags are only available in a server", run(dm, "list --server"))
	assert.Equal(t, "Tag rules deleted", run(mod, "delete --server rules"))
}

func TestNestedTagsShareInvocation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	alice := invocation("alice")

	for _, line := range []string{
		"create inner {set:who|{arg:0}}inner",
		"create outer {tag:inner|{arg:0}} says hi to {get:who}",
	} {
		_, err := e.Command(ctx, alice, line)
		require.NoError(t, err)
	}
	msg, err := e.Command(ctx, alice, "outer carol")
	require.NoError(t, err)
	assert.Equal(t, "inner says hi to carol", msg.Content)
}

func TestHelpers(t *testing.T) {
	w, rest := nextWord("  create   name  some  content ")
	assert.Equal(t, "create", w)
	assert.Equal(t, "name  some  content ", rest)

	for in, want := range map[string]string{"<@12>": "12", "<@!12>": "12", "12": "12", "<@>": "", "": ""} {
		assert.Equal(t, want, userID(in), in)
	}

	server, args := serverFlag("--server x y")
	assert.True(t, server)
	assert.Equal(t, "x y", args)
	server, args = serverFlag("x --server")
	assert.False(t, server)
	assert.Equal(t, "x --server", args)
}

func TestRunScriptErrors(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.RunScript(context.Background(), invocation("u1"), "load https://example.com/a.png")
	assert.Error(t, err, "no workspace")

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	e, _ = newEngine(t, WithWorkspace(ws))
	msg, err := e.RunScript(context.Background(), invocation("u1"), "   ")
	require.NoError(t, err)
	assert.Equal(t, gscript.ErrEmptyScript.Error(), msg.Content)
	assert.Empty(t, msg.Files)
	assert.Equal(t, 0, ws.Sessions())
}
