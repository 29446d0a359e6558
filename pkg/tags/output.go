package tags

import (
	"fmt"
	"strings"

	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/ui"
)

// Output is the (text, embeds, view, files) result of formatting.
type Output struct {
	text   strings.Builder
	Embeds []*ui.Embed
	View   *ui.View
	Files  []platform.File

	// Dropped counts view items that did not fit.
	Dropped int
}

// Text returns the accumulated text.
func (o *Output) Text() string {
	return o.text.String()
}

// WriteText appends s to the text.
func (o *Output) WriteText(s string) {
	o.text.WriteString(s)
}

// AddEmbed appends an embed.
func (o *Output) AddEmbed(e *ui.Embed) {
	if e != nil {
		o.Embeds = append(o.Embeds, e)
	}
}

// AddItem places a button or select into the output's view.
func (o *Output) AddItem(it ui.Item) {
	if o.View == nil {
		o.View = &ui.View{}
	}
	if err := o.View.Add(it); err != nil {
		o.Dropped++
	}
}

// AddFile appends a file.
func (o *Output) AddFile(f platform.File) {
	o.Files = append(o.Files, f)
}

// Merge appends other onto o: text is concatenated, embeds and files are
// appended and view items are absorbed into o's view.
func (o *Output) Merge(other *Output) {
	if other == nil {
		return
	}
	o.text.WriteString(other.Text())
	o.Embeds = append(o.Embeds, other.Embeds...)
	o.Files = append(o.Files, other.Files...)
	o.Dropped += other.Dropped
	if other.View != nil {
		for _, it := range other.View.Items() {
			o.AddItem(it)
		}
	}
}

// Structured reports whether the output carries anything besides text.
func (o *Output) Structured() bool {
	return len(o.Embeds) > 0 || o.View.Len() > 0 || len(o.Files) > 0
}

// Message converts the output into a reply payload.
func (o *Output) Message() *platform.Message {
	return &platform.Message{
		Content: o.Text(),
		Embeds:  o.Embeds,
		View:    o.View,
		Files:   o.Files,
	}
}

// Text returns an output holding only s.
func Text(s string) *Output {
	o := &Output{}
	o.WriteText(s)
	return o
}

// Normalize converts a primitive result into an Output. Strings become
// text; embeds, buttons, selects, views and files go to their slots;
// slices are normalized element by element. Anything else is printed.
func Normalize(v any) *Output {
	o := &Output{}
	normalizeInto(o, v)
	return o
}

func normalizeInto(o *Output, v any) {
	switch r := v.(type) {
	case nil:
	case string:
		o.WriteText(r)
	case *Output:
		o.Merge(r)
	case *ui.Embed:
		o.AddEmbed(r)
	case ui.Embed:
		o.AddEmbed(&r)
	case []*ui.Embed:
		for _, e := range r {
			o.AddEmbed(e)
		}
	case *ui.View:
		if r != nil {
			o.Merge(&Output{View: r})
		}
	case ui.Item:
		o.AddItem(r)
	case platform.File:
		o.AddFile(r)
	case *platform.File:
		if r != nil {
			o.AddFile(*r)
		}
	case []platform.File:
		for _, f := range r {
			o.AddFile(f)
		}
	case []any:
		for _, x := range r {
			normalizeInto(o, x)
		}
	case fmt.Stringer:
		o.WriteText(r.String())
	default:
		o.WriteText(fmt.Sprint(r))
	}
}
