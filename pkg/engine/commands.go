package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/store"
)

// Reserved names cannot be used for tags; they are the subcommands.
var reserved = map[string]bool{
	"create": true, "add": true, "show": true, "info": true, "edit": true,
	"delete": true, "remove": true, "transfer": true, "list": true, "raw": true,
}

// CommandUsage is shown for an empty tag command.
const CommandUsage = "usage: tag <name> [args] | tag show|info|raw <name> | " +
	"tag create|edit [--server] <name> <content> | tag delete [--server] <name> | " +
	"tag transfer <name> <@user> | tag list [--server]"

// Command runs one "tag ..." command line (without the leading "tag").
// User mistakes come back as reply text; the error is for store failures.
func (e *Engine) Command(ctx context.Context, inv *platform.Invocation, line string) (*platform.Message, error) {
	if inv == nil {
		inv = &platform.Invocation{}
	}
	sub, rest := nextWord(line)
	switch strings.ToLower(sub) {
	case "":
		return reply(CommandUsage), nil
	case "show", "raw":
		return e.show(ctx, inv, rest, strings.EqualFold(sub, "raw"))
	case "info":
		return e.info(ctx, inv, rest)
	case "create", "add":
		return e.create(ctx, inv, rest)
	case "edit":
		return e.edit(ctx, inv, rest)
	case "delete", "remove":
		return e.remove(ctx, inv, rest)
	case "transfer":
		return e.transfer(ctx, inv, rest)
	case "list":
		return e.list(ctx, inv, rest)
	}
	return e.Run(ctx, inv, sub, rest)
}

// Run resolves the tag name for the invoker and evaluates it with args.
func (e *Engine) Run(ctx context.Context, inv *platform.Invocation, name, args string) (*platform.Message, error) {
	if e.store == nil {
		return reply("Tags are unavailable"), nil
	}
	t, msg, err := e.resolve(ctx, inv, name)
	if msg != nil || err != nil {
		return msg, err
	}
	if err := e.store.IncrementUses(ctx, t.Key()); err != nil {
		e.logger.Warn("failed to count tag use", zap.String("tag", t.Name), zap.Error(err))
	}
	return e.Evaluate(ctx, inv, t.Content, args)
}

func (e *Engine) resolve(ctx context.Context, inv *platform.Invocation, name string) (*store.Template, *platform.Message, error) {
	name = store.NormalizeName(name)
	if name == "" {
		return nil, reply(CommandUsage), nil
	}
	t, err := e.store.Resolve(ctx, inv.Author.ID, inv.GuildID(), name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, replyf("No tag named %s found", name), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve tag %s: %w", name, err)
	}
	return t, nil, nil
}

func (e *Engine) show(ctx context.Context, inv *platform.Invocation, args string, raw bool) (*platform.Message, error) {
	if e.store == nil {
		return reply("Tags are unavailable"), nil
	}
	name, _ := nextWord(args)
	t, msg, err := e.resolve(ctx, inv, name)
	if msg != nil || err != nil {
		return msg, err
	}
	if raw {
		return reply("```\n" + strings.ReplaceAll(t.Content, "```", "`\u200b``") + "\n```"), nil
	}
	return reply(t.Content), nil
}

func (e *Engine) info(ctx context.Context, inv *platform.Invocation, args string) (*platform.Message, error) {
	if e.store == nil {
		return reply("Tags are unavailable"), nil
	}
	name, _ := nextWord(args)
	t, msg, err := e.resolve(ctx, inv, name)
	if msg != nil || err != nil {
		return msg, err
	}
	scope := "personal"
	if t.Scope == store.ScopeGuild {
		scope = "server"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", t.Name)
	fmt.Fprintf(&b, "Owner: <@%s>\n", t.OwnerID)
	fmt.Fprintf(&b, "Scope: %s\n", scope)
	fmt.Fprintf(&b, "Uses: %d\n", t.Uses)
	fmt.Fprintf(&b, "Created: %s", t.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	return reply(b.String()), nil
}

// target is the scope a create, edit, delete or list addresses.
func target(inv *platform.Invocation, server bool) (store.Scope, string, *platform.Message) {
	if !server {
		return store.ScopeUser, inv.Author.ID, nil
	}
	if inv.GuildID() == "" {
		return "", "", reply("Server tags are only available in a server")
	}
	return store.ScopeGuild, inv.GuildID(), nil
}

func (e *Engine) create(ctx context.Context, inv *platform.Invocation, args string) (*platform.Message, error) {
	if e.store == nil {
		return reply("Tags are unavailable"), nil
	}
	server, args := serverFlag(args)
	name, content := nextWord(args)
	name = store.NormalizeName(name)
	if name == "" || strings.TrimSpace(content) == "" {
		return reply("usage: tag create [--server] <name> <content>"), nil
	}
	if reserved[name] {
		return replyf("%s is a reserved name", name), nil
	}
	scope, key, msg := target(inv, server)
	if msg != nil {
		return msg, nil
	}
	t := &store.Template{Name: name, Content: content, OwnerID: inv.Author.ID, Scope: scope, ScopeKey: key}
	if err := e.store.Create(ctx, t); err != nil {
		if msg := userError(name, err); msg != nil {
			return msg, nil
		}
		return nil, fmt.Errorf("create tag %s: %w", name, err)
	}
	return replyf("Tag %s created", name), nil
}

func (e *Engine) edit(ctx context.Context, inv *platform.Invocation, args string) (*platform.Message, error) {
	if e.store == nil {
		return reply("Tags are unavailable"), nil
	}
	server, args := serverFlag(args)
	name, content := nextWord(args)
	name = store.NormalizeName(name)
	if name == "" || strings.TrimSpace(content) == "" {
		return reply("usage: tag edit [--server] <name> <content>"), nil
	}
	scope, key, msg := target(inv, server)
	if msg != nil {
		return msg, nil
	}
	err := e.store.Edit(ctx, store.Key{Scope: scope, ScopeKey: key, Name: name}, inv.Author.ID, content, inv.Elevated)
	if err != nil {
		if msg := userError(name, err); msg != nil {
			return msg, nil
		}
		return nil, fmt.Errorf("edit tag %s: %w", name, err)
	}
	return replyf("Tag %s edited", name), nil
}

func (e *Engine) remove(ctx context.Context, inv *platform.Invocation, args string) (*platform.Message, error) {
	if e.store == nil {
		return reply("Tags are unavailable"), nil
	}
	server, args := serverFlag(args)
	name, _ := nextWord(args)
	name = store.NormalizeName(name)
	if name == "" {
		return reply("usage: tag delete [--server] <name>"), nil
	}
	scope, key, msg := target(inv, server)
	if msg != nil {
		return msg, nil
	}
	err := e.store.Delete(ctx, store.Key{Scope: scope, ScopeKey: key, Name: name}, inv.Author.ID, inv.Elevated)
	if err != nil {
		if msg := userError(name, err); msg != nil {
			return msg, nil
		}
		return nil, fmt.Errorf("delete tag %s: %w", name, err)
	}
	return replyf("Tag %s deleted", name), nil
}

func (e *Engine) transfer(ctx context.Context, inv *platform.Invocation, args string) (*platform.Message, error) {
	if e.store == nil {
		return reply("Tags are unavailable"), nil
	}
	name, rest := nextWord(args)
	mention, _ := nextWord(rest)
	name = store.NormalizeName(name)
	to := userID(mention)
	if name == "" || to == "" {
		return reply("usage: tag transfer <name> <@user>"), nil
	}
	key := store.Key{Scope: store.ScopeUser, ScopeKey: inv.Author.ID, Name: name}
	if err := e.store.Transfer(ctx, key, inv.Author.ID, to); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return replyf("<@%s> already has a tag named %s", to, name), nil
		}
		if msg := userError(name, err); msg != nil {
			return msg, nil
		}
		return nil, fmt.Errorf("transfer tag %s: %w", name, err)
	}
	return replyf("Tag %s transferred to <@%s>", name, to), nil
}

func (e *Engine) list(ctx context.Context, inv *platform.Invocation, args string) (*platform.Message, error) {
	if e.store == nil {
		return reply("Tags are unavailable"), nil
	}
	server, _ := serverFlag(args)
	scope, key, msg := target(inv, server)
	if msg != nil {
		return msg, nil
	}
	list, err := e.store.List(ctx, scope, key)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	if len(list) == 0 {
		return reply("No tags found"), nil
	}
	names := make([]string, len(list))
	for i, t := range list {
		names[i] = t.Name
	}
	m := replyf("Tags (%d): %s", len(names), strings.Join(names, ", "))
	m.Clamp()
	return m, nil
}

// userError maps store validation and lookup errors to reply text.
func userError(name string, err error) *platform.Message {
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return replyf("A tag named %s already exists", name)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrPermission):
		return replyf("No editable tag named %s found", name)
	case errors.Is(err, store.ErrNameTooLong):
		return replyf("Tag names must be %d characters or fewer", store.MaxNameLength)
	case errors.Is(err, store.ErrContentTooLong):
		return replyf("Tag content must be %d characters or fewer", store.MaxContentLength)
	case errors.Is(err, store.ErrInvalidName):
		return reply("Tag names must not be empty or contain spaces")
	case errors.Is(err, store.ErrEmptyContent):
		return reply("Tag content must not be empty")
	case errors.Is(err, store.ErrNotPersonal):
		return reply("Only personal tags can be transferred")
	}
	return nil
}

// serverFlag strips a leading --server (or -s) flag.
func serverFlag(args string) (bool, string) {
	word, rest := nextWord(args)
	if word == "--server" || word == "-s" {
		return true, rest
	}
	return false, args
}

// nextWord splits off the first whitespace-delimited word. The remainder
// keeps its inner whitespace but loses the separator.
func nextWord(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

// userID accepts <@id>, <@!id> or a bare id.
func userID(mention string) string {
	id := strings.TrimSuffix(strings.TrimPrefix(mention, "<@"), ">")
	id = strings.TrimPrefix(id, "!")
	if id == "" || strings.ContainsAny(id, "<>@ ") {
		return ""
	}
	return id
}

func reply(s string) *platform.Message {
	return &platform.Message{Content: s}
}

func replyf(format string, args ...any) *platform.Message {
	return reply(fmt.Sprintf(format, args...))
}
