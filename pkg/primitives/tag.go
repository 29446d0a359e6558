package primitives

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/store"
	"github.com/chicogong/tagforge/pkg/tags"
)

func tagPrimitives(deps Deps) []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "tag", Aliases: []string{"include"}, Usage: "{tag:name[|args]}", Fn: func(ctx context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			if deps.Store == nil {
				return nil, ErrNoStore
			}
			name := strings.TrimSpace(call.Part(0))
			if name == "" {
				return nil, usage("{tag:name[|args]}")
			}
			inv := tc.Invocation
			tpl, err := deps.Store.Resolve(ctx, inv.Author.ID, inv.GuildID(), name)
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("no tag named %s", name)
			}
			if err != nil {
				return nil, err
			}
			if err := deps.Store.IncrementUses(ctx, tpl.Key()); err != nil {
				deps.Logger.Warn("failed to count tag use", zap.String("tag", tpl.Name), zap.Error(err))
			}
			args := strings.Join(call.Parts()[1:], "|")
			return tc.WithArgs(args).Eval(ctx, tpl.Content), nil
		}},
	}
}
