package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chicogong/tagforge/pkg/colors"
)

// The builders accept the raw argument text and its '|' separated parts.
// Input is tried as a JSON object first, then as key=value assignments,
// and finally as positional values.

// assignments splits parts into key/value pairs when at least one part
// assigns a key from known. Mixed input is an error.
func assignments(parts []string, known map[string]bool) ([][2]string, bool, error) {
	var out [][2]string
	found := false
	for _, p := range parts {
		k, v, ok := strings.Cut(p, "=")
		k = strings.ToLower(strings.TrimSpace(k))
		if ok && known[k] {
			found = true
			out = append(out, [2]string{k, strings.TrimSpace(v)})
			continue
		}
		if strings.TrimSpace(p) != "" {
			out = append(out, [2]string{"", p})
		}
	}
	if !found {
		return nil, false, nil
	}
	for _, kv := range out {
		if kv[0] == "" {
			return nil, true, fmt.Errorf("unexpected argument '%s'", kv[1])
		}
	}
	return out, true, nil
}

func looksJSON(raw string) bool {
	s := strings.TrimSpace(raw)
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// ParseColor accepts decimal integers as well as every color syntax the
// colors package understands.
func ParseColor(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 0xFFFFFF {
		return n, nil
	}
	c, err := colors.Parse(s)
	if err != nil {
		return 0, err
	}
	return colors.Int(c), nil
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "on":
		return true
	}
	return false
}

var embedKeys = map[string]bool{
	"title": true, "description": true, "desc": true, "url": true,
	"color": true, "colour": true, "author": true, "author_url": true,
	"author_icon": true, "footer": true, "footer_icon": true,
	"thumbnail": true, "image": true, "field": true,
}

type jsonEmbed struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	URL         string          `json:"url"`
	Color       json.RawMessage `json:"color"`
	Author      json.RawMessage `json:"author"`
	Footer      json.RawMessage `json:"footer"`
	Thumbnail   json.RawMessage `json:"thumbnail"`
	Image       json.RawMessage `json:"image"`
	Fields      []EmbedField    `json:"fields"`
}

// BuildEmbed builds an embed.
//
//	{"title": "t", "color": "#ff0000", "fields": [{"name": "a", "value": "b"}]}
//	title=t|description=d|color=red|field=name;value;inline|footer=f
//	title|description|color|image
func BuildEmbed(raw string, parts []string) (*Embed, error) {
	if looksJSON(raw) {
		var je jsonEmbed
		if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &je); err == nil {
			return embedFromJSON(&je)
		}
	}

	e := &Embed{}
	kvs, builder, err := assignments(parts, embedKeys)
	if err != nil {
		return nil, err
	}
	if builder {
		for _, kv := range kvs {
			if err := setEmbed(e, kv[0], kv[1]); err != nil {
				return nil, err
			}
		}
	} else {
		keys := []string{"title", "description", "color", "image"}
		for i, p := range parts {
			if i >= len(keys) {
				return nil, fmt.Errorf("too many embed arguments: expected at most %d", len(keys))
			}
			if strings.TrimSpace(p) == "" {
				continue
			}
			if err := setEmbed(e, keys[i], p); err != nil {
				return nil, err
			}
		}
	}
	if e.IsEmpty() {
		return nil, errors.New("embed is empty")
	}
	return e, nil
}

func setEmbed(e *Embed, key, v string) error {
	switch key {
	case "title":
		e.Title = v
	case "description", "desc":
		e.Description = v
	case "url":
		e.URL = v
	case "color", "colour":
		c, err := ParseColor(v)
		if err != nil {
			return err
		}
		e.Color = c
	case "author":
		if e.Author == nil {
			e.Author = &EmbedAuthor{}
		}
		e.Author.Name = v
	case "author_url":
		if e.Author == nil {
			e.Author = &EmbedAuthor{}
		}
		e.Author.URL = v
	case "author_icon":
		if e.Author == nil {
			e.Author = &EmbedAuthor{}
		}
		e.Author.IconURL = v
	case "footer":
		if e.Footer == nil {
			e.Footer = &EmbedFooter{}
		}
		e.Footer.Text = v
	case "footer_icon":
		if e.Footer == nil {
			e.Footer = &EmbedFooter{}
		}
		e.Footer.IconURL = v
	case "thumbnail":
		e.Thumbnail = v
	case "image":
		e.Image = v
	case "field":
		f := strings.SplitN(v, ";", 3)
		if len(f) < 2 {
			return fmt.Errorf("field needs name;value, got '%s'", v)
		}
		return e.AddField(f[0], f[1], len(f) == 3 && parseFlag(f[2]))
	}
	return nil
}

func embedFromJSON(je *jsonEmbed) (*Embed, error) {
	e := &Embed{
		Title:       je.Title,
		Description: je.Description,
		URL:         je.URL,
	}
	if len(je.Color) > 0 {
		var n int
		var s string
		switch {
		case json.Unmarshal(je.Color, &n) == nil:
			e.Color = n
		case json.Unmarshal(je.Color, &s) == nil:
			c, err := ParseColor(s)
			if err != nil {
				return nil, err
			}
			e.Color = c
		default:
			return nil, errors.New("color must be a number or a string")
		}
	}

	var name string
	var author EmbedAuthor
	switch {
	case len(je.Author) == 0:
	case json.Unmarshal(je.Author, &name) == nil:
		e.Author = &EmbedAuthor{Name: name}
	case json.Unmarshal(je.Author, &author) == nil:
		e.Author = &author
	}

	var footer EmbedFooter
	switch {
	case len(je.Footer) == 0:
	case json.Unmarshal(je.Footer, &name) == nil:
		e.Footer = &EmbedFooter{Text: name}
	case json.Unmarshal(je.Footer, &footer) == nil:
		e.Footer = &footer
	}

	e.Thumbnail = jsonURL(je.Thumbnail)
	e.Image = jsonURL(je.Image)

	for _, f := range je.Fields {
		if err := e.AddField(f.Name, f.Value, f.Inline); err != nil {
			return nil, err
		}
	}
	if e.IsEmpty() {
		return nil, errors.New("embed is empty")
	}
	return e, nil
}

// jsonURL accepts "https://…" or {"url": "https://…"}.
func jsonURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.URL
	}
	return ""
}

var buttonKeys = map[string]bool{
	"label": true, "style": true, "id": true, "custom_id": true,
	"url": true, "emoji": true, "disabled": true,
}

type jsonButton struct {
	Label    string `json:"label"`
	Style    string `json:"style"`
	ID       string `json:"id"`
	CustomID string `json:"custom_id"`
	URL      string `json:"url"`
	Emoji    string `json:"emoji"`
	Disabled bool   `json:"disabled"`
}

// BuildButton builds a button.
//
//	{"label": "Go", "style": "success", "custom_id": "go"}
//	label=Go|style=success|id=go|emoji=🚀|disabled=true
//	Go|success|go          (a URL in the third slot makes a link button)
func BuildButton(raw string, parts []string) (*Button, error) {
	var jb jsonButton
	switch {
	case looksJSON(raw) && json.Unmarshal([]byte(strings.TrimSpace(raw)), &jb) == nil:
	default:
		kvs, builder, err := assignments(parts, buttonKeys)
		if err != nil {
			return nil, err
		}
		if builder {
			for _, kv := range kvs {
				switch kv[0] {
				case "label":
					jb.Label = kv[1]
				case "style":
					jb.Style = kv[1]
				case "id", "custom_id":
					jb.CustomID = kv[1]
				case "url":
					jb.URL = kv[1]
				case "emoji":
					jb.Emoji = kv[1]
				case "disabled":
					jb.Disabled = parseFlag(kv[1])
				}
			}
			break
		}
		if len(parts) > 3 {
			return nil, errors.New("too many button arguments: expected label|style|id")
		}
		fill := []*string{&jb.Label, &jb.Style, &jb.CustomID}
		for i, p := range parts {
			*fill[i] = strings.TrimSpace(p)
		}
		if isURL(jb.CustomID) {
			jb.URL, jb.CustomID = jb.CustomID, ""
		}
	}

	if jb.CustomID == "" {
		jb.CustomID = jb.ID
	}
	style, err := ParseButtonStyle(strings.ToLower(jb.Style))
	if err != nil {
		return nil, err
	}
	if jb.URL != "" && jb.Style == "" {
		style = StyleLink
	}
	b := &Button{
		Style:    style,
		Label:    jb.Label,
		Emoji:    jb.Emoji,
		CustomID: jb.CustomID,
		URL:      jb.URL,
		Disabled: jb.Disabled,
	}
	if b.Style != StyleLink && b.CustomID == "" {
		b.CustomID = "button:" + strings.ToLower(b.Label)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

var selectKeys = map[string]bool{
	"placeholder": true, "id": true, "custom_id": true, "min": true,
	"min_values": true, "max": true, "max_values": true, "disabled": true,
	"option": true,
}

type jsonSelect struct {
	Placeholder string            `json:"placeholder"`
	ID          string            `json:"id"`
	CustomID    string            `json:"custom_id"`
	MinValues   *int              `json:"min_values"`
	MaxValues   *int              `json:"max_values"`
	Disabled    bool              `json:"disabled"`
	Options     []json.RawMessage `json:"options"`
}

// BuildSelect builds a select menu.
//
//	{"placeholder": "Pick", "options": ["a", {"label": "B", "value": "b"}]}
//	placeholder=Pick|id=pick|min=1|max=2|option=Label;value;description;emoji;default
//	red|green|blue         (each part is an option)
func BuildSelect(raw string, parts []string) (*Select, error) {
	s := &Select{MinValues: 1, MaxValues: 1}

	var js jsonSelect
	if looksJSON(raw) && json.Unmarshal([]byte(strings.TrimSpace(raw)), &js) == nil {
		s.Placeholder = js.Placeholder
		s.CustomID = js.CustomID
		if s.CustomID == "" {
			s.CustomID = js.ID
		}
		s.Disabled = js.Disabled
		for _, o := range js.Options {
			var label string
			if json.Unmarshal(o, &label) == nil {
				s.Options = append(s.Options, SelectOption{Label: label, Value: label})
				continue
			}
			var opt SelectOption
			if err := json.Unmarshal(o, &opt); err != nil {
				return nil, fmt.Errorf("invalid option: %w", err)
			}
			if opt.Value == "" {
				opt.Value = opt.Label
			}
			s.Options = append(s.Options, opt)
		}
		if js.MinValues != nil {
			s.MinValues = *js.MinValues
		}
		if js.MaxValues != nil {
			s.MaxValues = *js.MaxValues
		}
	} else {
		kvs, builder, err := assignments(parts, selectKeys)
		if err != nil {
			return nil, err
		}
		if builder {
			for _, kv := range kvs {
				if err := setSelect(s, kv[0], kv[1]); err != nil {
					return nil, err
				}
			}
		} else {
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					s.Options = append(s.Options, SelectOption{Label: p, Value: p})
				}
			}
		}
	}

	if s.CustomID == "" {
		s.CustomID = "select"
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func setSelect(s *Select, key, v string) error {
	switch key {
	case "placeholder":
		s.Placeholder = v
	case "id", "custom_id":
		s.CustomID = v
	case "min", "min_values", "max", "max_values":
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got '%s'", key, v)
		}
		if strings.HasPrefix(key, "min") {
			s.MinValues = n
		} else {
			s.MaxValues = n
		}
	case "disabled":
		s.Disabled = parseFlag(v)
	case "option":
		f := strings.Split(v, ";")
		opt := SelectOption{Label: strings.TrimSpace(f[0])}
		if opt.Label == "" {
			return errors.New("option needs a label")
		}
		opt.Value = opt.Label
		if len(f) > 1 && strings.TrimSpace(f[1]) != "" {
			opt.Value = strings.TrimSpace(f[1])
		}
		if len(f) > 2 {
			opt.Description = strings.TrimSpace(f[2])
		}
		if len(f) > 3 {
			opt.Emoji = strings.TrimSpace(f[3])
		}
		if len(f) > 4 {
			opt.Default = parseFlag(f[4])
		}
		s.Options = append(s.Options, opt)
	}
	return nil
}

type jsonItem struct {
	Type string `json:"type"`
}

// BuildView builds a view from a JSON list of typed items, or returns an
// empty view when raw is blank. Nested button and select tags are added by
// the caller.
//
//	[{"type": "button", "label": "A"}, {"type": "select", "options": ["x"]}]
func BuildView(raw string) (*View, error) {
	v := &View{}
	s := strings.TrimSpace(raw)
	if s == "" {
		return v, nil
	}
	if !strings.HasPrefix(s, "[") {
		var wrapped struct {
			Items []json.RawMessage `json:"items"`
		}
		if strings.HasPrefix(s, "{") && json.Unmarshal([]byte(s), &wrapped) == nil && wrapped.Items != nil {
			return v, addJSONItems(v, wrapped.Items)
		}
		return nil, errors.New("view expects a JSON item list or nested button and select tags")
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("invalid view JSON: %w", err)
	}
	return v, addJSONItems(v, items)
}

func addJSONItems(v *View, items []json.RawMessage) error {
	for i, raw := range items {
		var it jsonItem
		if err := json.Unmarshal(raw, &it); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		var (
			item Item
			err  error
		)
		switch strings.ToLower(it.Type) {
		case "button", "":
			item, err = BuildButton(string(raw), nil)
		case "select":
			item, err = BuildSelect(string(raw), nil)
		default:
			return fmt.Errorf("item %d: unknown type '%s'", i, it.Type)
		}
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if err := v.Add(item); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}
