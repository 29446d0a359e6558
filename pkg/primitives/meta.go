package primitives

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/tags"
)

const dateLayout = "2006-01-02 15:04:05 UTC"

func variablePrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "set", Aliases: []string{"let", "assign"}, Usage: "{set:name|value}", Fn: func(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			name := strings.TrimSpace(call.Part(0))
			if name == "" {
				return nil, usage("{set:name|value}")
			}
			if _, ok := tc.Vars[name]; !ok && len(tc.Vars) >= MaxVars {
				return nil, fmt.Errorf("at most %d variables", MaxVars)
			}
			tc.Vars[name] = strings.Join(call.Parts()[1:], "|")
			return "", nil
		}},
		{Name: "get", Aliases: []string{"var"}, Usage: "{get:name[|default]}", Fn: func(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			if v, ok := tc.Vars[strings.TrimSpace(call.Part(0))]; ok {
				return v, nil
			}
			return call.Part(1), nil
		}},
		{Name: "unset", Usage: "{unset:name}", Fn: func(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			delete(tc.Vars, strings.TrimSpace(call.Args))
			return "", nil
		}},
		{Name: "incr", Aliases: []string{"increment"}, Usage: "{incr:name[|by]}", Fn: func(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			name := strings.TrimSpace(call.Part(0))
			if name == "" {
				return nil, usage("{incr:name[|by]}")
			}
			by := 1.0
			if s := strings.TrimSpace(call.Part(1)); s != "" {
				v, err := number(s)
				if err != nil {
					return nil, err
				}
				by = v
			}
			cur := 0.0
			if s, ok := tc.Vars[name]; ok && strings.TrimSpace(s) != "" {
				v, ok := parseFloat(s)
				if !ok {
					return nil, fmt.Errorf("variable '%s' is not a number", name)
				}
				cur = v
			} else if !ok && len(tc.Vars) >= MaxVars {
				return nil, fmt.Errorf("at most %d variables", MaxVars)
			}
			out := formatNumber(cur + by)
			tc.Vars[name] = out
			return out, nil
		}},
	}
}

// userField reads one field of the invoking user, or of the user named by
// the argument (an id or a mention).
func userField(fn func(u platform.User) string) tags.Func {
	return func(ctx context.Context, tc *tags.Context, call *tags.Call) (any, error) {
		u, err := targetUser(ctx, tc, call.Args)
		if err != nil {
			return nil, err
		}
		return fn(u), nil
	}
}

func targetUser(ctx context.Context, tc *tags.Context, arg string) (platform.User, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" || arg == tc.Invocation.Author.ID || arg == tc.Invocation.Author.Mention() {
		return tc.Invocation.Author, nil
	}
	if tc.Directory == nil {
		return platform.User{}, ErrNoDirectory
	}
	return tc.Directory.User(ctx, arg)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(dateLayout)
}

func metaPrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "user", Aliases: []string{"username"}, Usage: "{user[:id]}", Fn: userField(func(u platform.User) string { return u.Name })},
		{Name: "userid", Usage: "{userid[:id]}", Fn: userField(func(u platform.User) string { return u.ID })},
		{Name: "nick", Aliases: []string{"nickname"}, Usage: "{nick[:id]}", Fn: userField(func(u platform.User) string {
			if u.Nick != "" {
				return u.Nick
			}
			return u.Display()
		})},
		{Name: "userdisplay", Aliases: []string{"displayname"}, Usage: "{userdisplay[:id]}", Fn: userField(platform.User.Display)},
		{Name: "mention", Usage: "{mention[:id]}", Fn: userField(platform.User.Mention)},
		{Name: "avatar", Aliases: []string{"useravatar"}, Usage: "{avatar[:id]}", Fn: userField(func(u platform.User) string { return u.AvatarURL })},
		{Name: "banner", Aliases: []string{"userbanner"}, Usage: "{banner[:id]}", Fn: userField(func(u platform.User) string { return u.BannerURL })},
		{Name: "usercreatedate", Usage: "{usercreatedate[:id]}", Fn: userField(func(u platform.User) string { return formatDate(u.CreatedAt) })},
		{Name: "userjoindate", Usage: "{userjoindate[:id]}", Fn: userField(func(u platform.User) string { return formatDate(u.JoinedAt) })},
		{Name: "userstatus", Usage: "{userstatus[:id]}", Fn: userField(func(u platform.User) string {
			if u.Status == "" {
				return "offline"
			}
			return u.Status
		})},
		{Name: "usercustomstatus", Usage: "{usercustomstatus[:id]}", Fn: userField(func(u platform.User) string { return u.CustomStatus })},
		{Name: "userbadges", Usage: "{userbadges[:id]}", Fn: userField(func(u platform.User) string { return strings.Join(u.Badges, ", ") })},
		{Name: "randuser", Usage: "{randuser}", Fn: randomMember(platform.User.Display)},
		{Name: "randuserid", Usage: "{randuserid}", Fn: randomMember(func(u platform.User) string { return u.ID })},
		{Name: "channel", Usage: "{channel}", Fn: func(_ context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
			return tc.Invocation.Channel.Name, nil
		}},
		{Name: "channelid", Usage: "{channelid}", Fn: func(_ context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
			return tc.Invocation.Channel.ID, nil
		}},
		{Name: "guild", Aliases: []string{"server"}, Usage: "{guild}", Fn: func(_ context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
			if tc.Invocation.Guild == nil {
				return nil, ErrNoGuild
			}
			return tc.Invocation.Guild.Name, nil
		}},
		{Name: "guildid", Aliases: []string{"serverid"}, Usage: "{guildid}", Fn: func(_ context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
			if tc.Invocation.Guild == nil {
				return nil, ErrNoGuild
			}
			return tc.Invocation.Guild.ID, nil
		}},
		{Name: "invoker", Usage: "{invoker}", Fn: func(_ context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
			return tc.Invocation.Content, nil
		}},
		{Name: "attachments", Usage: "{attachments}", Fn: func(_ context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
			urls := make([]string, 0, len(tc.Invocation.Attachments))
			for _, a := range tc.Invocation.Attachments {
				urls = append(urls, a.URL)
			}
			data, err := json.Marshal(urls)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		}},
	}
}

func randomMember(fn func(u platform.User) string) tags.Func {
	return func(ctx context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
		gid := tc.Invocation.GuildID()
		if gid == "" {
			return nil, ErrNoGuild
		}
		if tc.Directory == nil {
			return nil, ErrNoDirectory
		}
		members, err := tc.Directory.Members(ctx, gid)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			return nil, errors.New("no members found")
		}
		return fn(members[tc.Rand.IntN(len(members))]), nil
	}
}
