package primitives

import (
	"context"

	"github.com/chicogong/tagforge/pkg/tags"
	"github.com/chicogong/tagforge/pkg/ui"
)

// The UI primitives are components: structured output produced inside
// their arguments (nested buttons in a view, say) is absorbed into the
// result instead of being lost.
func uiPrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "embed", Mode: tags.Component, Usage: "{embed:json} or {embed:title=...|description=...} or {embed:title|description|color|image}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			e, err := ui.BuildEmbed(call.Args, call.Parts())
			if err != nil {
				return nil, err
			}
			return []any{e, call.Inner}, nil
		}},
		{Name: "button", Mode: tags.Component, Usage: "{button:label|style|id} or {button:label=...|url=...}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			b, err := ui.BuildButton(call.Args, call.Parts())
			if err != nil {
				return nil, err
			}
			return []any{b, call.Inner}, nil
		}},
		{Name: "select", Aliases: []string{"dropdown"}, Mode: tags.Component, Usage: "{select:placeholder=...|option=Label;value}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			s, err := ui.BuildSelect(call.Args, call.Parts())
			if err != nil {
				return nil, err
			}
			return []any{s, call.Inner}, nil
		}},
		{Name: "view", Mode: tags.Component, Usage: "{view:json items} or {view:{button:...}{select:...}}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			v, err := ui.BuildView(call.Args)
			if err != nil {
				return nil, err
			}
			if call.Inner != nil && call.Inner.View != nil {
				if err := v.Merge(call.Inner.View); err != nil {
					return nil, err
				}
				call.Inner.View = nil
			}
			return []any{v, call.Inner}, nil
		}},
	}
}
