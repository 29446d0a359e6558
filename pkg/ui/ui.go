// Package ui holds the structured message payloads tags can produce:
// embeds, buttons, selects and the views that lay them out in rows.
package ui

import (
	"errors"
	"fmt"
)

// Platform limits for a single message.
const (
	MaxEmbedFields   = 9
	MaxRows          = 5
	MaxButtonsPerRow = 5
	MaxSelectOptions = 25
)

// ErrViewFull is returned when an item does not fit into a view.
var ErrViewFull = errors.New("view is full")

// EmbedAuthor is the author line of an embed.
type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedFooter is the footer line of an embed.
type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedField is one name/value pair of an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed is a rich message card.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Thumbnail   string       `json:"thumbnail,omitempty"`
	Image       string       `json:"image,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// IsEmpty reports whether the embed would render nothing.
func (e *Embed) IsEmpty() bool {
	return e.Title == "" && e.Description == "" && e.Author == nil &&
		e.Footer == nil && e.Thumbnail == "" && e.Image == "" && len(e.Fields) == 0
}

// AddField appends a field, failing once the field limit is reached.
func (e *Embed) AddField(name, value string, inline bool) error {
	if len(e.Fields) >= MaxEmbedFields {
		return fmt.Errorf("an embed holds at most %d fields", MaxEmbedFields)
	}
	e.Fields = append(e.Fields, EmbedField{Name: name, Value: value, Inline: inline})
	return nil
}

// ButtonStyle is the visual style of a button.
type ButtonStyle string

const (
	StylePrimary   ButtonStyle = "primary"
	StyleSecondary ButtonStyle = "secondary"
	StyleSuccess   ButtonStyle = "success"
	StyleDanger    ButtonStyle = "danger"
	StyleLink      ButtonStyle = "link"
)

// ParseButtonStyle accepts style names and the common color aliases.
func ParseButtonStyle(s string) (ButtonStyle, error) {
	switch s {
	case "", "primary", "blurple", "blue":
		return StylePrimary, nil
	case "secondary", "grey", "gray":
		return StyleSecondary, nil
	case "success", "green":
		return StyleSuccess, nil
	case "danger", "red":
		return StyleDanger, nil
	case "link", "url":
		return StyleLink, nil
	}
	return "", fmt.Errorf("unknown button style '%s'", s)
}

// Item is a component that can be placed in a view.
type Item interface {
	// width is the number of row slots the item occupies.
	width() int
	Validate() error
}

// Button is a clickable component. Link buttons carry a URL instead of a
// custom id.
type Button struct {
	Style    ButtonStyle `json:"style"`
	Label    string      `json:"label,omitempty"`
	Emoji    string      `json:"emoji,omitempty"`
	CustomID string      `json:"custom_id,omitempty"`
	URL      string      `json:"url,omitempty"`
	Disabled bool        `json:"disabled,omitempty"`
}

func (b *Button) width() int { return 1 }

// Validate checks the button is renderable.
func (b *Button) Validate() error {
	if b.Label == "" && b.Emoji == "" {
		return errors.New("button needs a label or an emoji")
	}
	if b.Style == StyleLink {
		if b.URL == "" {
			return errors.New("link button needs a url")
		}
		return nil
	}
	if b.URL != "" {
		return errors.New("only link buttons may have a url")
	}
	return nil
}

// SelectOption is one entry of a select menu.
type SelectOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Emoji       string `json:"emoji,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// Select is a dropdown menu. It fills a whole row.
type Select struct {
	Placeholder string         `json:"placeholder,omitempty"`
	MinValues   int            `json:"min_values"`
	MaxValues   int            `json:"max_values"`
	Options     []SelectOption `json:"options"`
	CustomID    string         `json:"custom_id"`
	Disabled    bool           `json:"disabled,omitempty"`
}

func (s *Select) width() int { return MaxButtonsPerRow }

// Validate checks option counts and value bounds.
func (s *Select) Validate() error {
	n := len(s.Options)
	switch {
	case n == 0:
		return errors.New("select needs at least one option")
	case n > MaxSelectOptions:
		return fmt.Errorf("select holds at most %d options", MaxSelectOptions)
	case s.MinValues < 0 || s.MinValues > n:
		return fmt.Errorf("min_values must be between 0 and %d", n)
	case s.MaxValues < 1 || s.MaxValues > n:
		return fmt.Errorf("max_values must be between 1 and %d", n)
	case s.MinValues > s.MaxValues:
		return errors.New("min_values exceeds max_values")
	}
	return nil
}

// Row is one line of components: up to five buttons, or a single select.
type Row struct {
	Buttons []*Button `json:"buttons,omitempty"`
	Select  *Select   `json:"select,omitempty"`
}

func (r *Row) used() int {
	if r.Select != nil {
		return MaxButtonsPerRow
	}
	return len(r.Buttons)
}

// View is the interactive component area below a message.
type View struct {
	Rows []*Row `json:"rows"`
}

// Add places item in the first row with room, opening a new row when
// needed.
func (v *View) Add(item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	switch it := item.(type) {
	case *Button:
		for _, r := range v.Rows {
			if r.used()+it.width() <= MaxButtonsPerRow {
				r.Buttons = append(r.Buttons, it)
				return nil
			}
		}
		return v.open(&Row{Buttons: []*Button{it}})
	case *Select:
		return v.open(&Row{Select: it})
	}
	return fmt.Errorf("unsupported view item %T", item)
}

func (v *View) open(r *Row) error {
	if len(v.Rows) >= MaxRows {
		return ErrViewFull
	}
	v.Rows = append(v.Rows, r)
	return nil
}

// Items returns the view's components in layout order.
func (v *View) Items() []Item {
	var items []Item
	for _, r := range v.Rows {
		if r.Select != nil {
			items = append(items, r.Select)
			continue
		}
		for _, b := range r.Buttons {
			items = append(items, b)
		}
	}
	return items
}

// Merge absorbs other's items into v. Items that no longer fit are
// dropped and reported through the returned error.
func (v *View) Merge(other *View) error {
	if other == nil {
		return nil
	}
	var firstErr error
	for _, it := range other.Items() {
		if err := v.Add(it); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len returns the number of items in the view.
func (v *View) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Items())
}

// Truncate keeps at most n rows.
func (v *View) Truncate(n int) {
	if len(v.Rows) > n {
		v.Rows = v.Rows[:n]
	}
}
