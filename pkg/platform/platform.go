// Package platform describes the chat-platform boundary: who invoked a
// tag, where, with which attachments, and the message sent back.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chicogong/tagforge/pkg/ui"
)

// Outbound message limits.
const (
	MaxContentLength = 2000
	MaxEmbeds        = 10
	MaxFiles         = 10
)

// ErrUnknownUser is returned by a Directory for ids it cannot resolve.
var ErrUnknownUser = errors.New("unknown user")

// User is a platform account, optionally with guild membership details.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name,omitempty"`
	Nick         string    `json:"nick,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	BannerURL    string    `json:"banner_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	JoinedAt     time.Time `json:"joined_at,omitempty"`
	Status       string    `json:"status,omitempty"`
	CustomStatus string    `json:"custom_status,omitempty"`
	Badges       []string  `json:"badges,omitempty"`
	Bot          bool      `json:"bot,omitempty"`
}

// Display returns the guild nickname, then the display name, then the
// account name.
func (u User) Display() string {
	switch {
	case u.Nick != "":
		return u.Nick
	case u.DisplayName != "":
		return u.DisplayName
	}
	return u.Name
}

// Mention returns the platform mention syntax for the user.
func (u User) Mention() string {
	return "<@" + u.ID + ">"
}

// Channel is where an invocation happened.
type Channel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Topic string `json:"topic,omitempty"`
	NSFW  bool   `json:"nsfw,omitempty"`
}

// Guild is the server an invocation belongs to. Direct messages have none.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IconURL     string `json:"icon_url,omitempty"`
	MemberCount int    `json:"member_count,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
}

// Attachment is a file sent along with the invocation.
type Attachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Kind returns the top-level MIME type: image, video, audio or "".
func (a Attachment) Kind() string {
	ct := strings.ToLower(a.ContentType)
	if i := strings.IndexByte(ct, '/'); i > 0 {
		switch ct[:i] {
		case "image", "video", "audio":
			return ct[:i]
		}
	}
	return ""
}

// Invocation is one resolved user request.
type Invocation struct {
	ID           string       `json:"id"`
	Author       User         `json:"author"`
	Channel      Channel      `json:"channel"`
	Guild        *Guild       `json:"guild,omitempty"`
	Content      string       `json:"content"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	ReplyChannel string       `json:"reply_channel,omitempty"`

	// Elevated is set by the host when the author may manage every tag of
	// the guild.
	Elevated bool `json:"elevated,omitempty"`
}

// GuildID returns the guild id, or "" outside a guild.
func (i *Invocation) GuildID() string {
	if i.Guild == nil {
		return ""
	}
	return i.Guild.ID
}

// File is an outbound attachment. Exactly one of Path or Data is set.
type File struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	Data []byte `json:"-"`
}

// Message is the reply payload.
type Message struct {
	Content string      `json:"content"`
	Embeds  []*ui.Embed `json:"embeds,omitempty"`
	View    *ui.View    `json:"view,omitempty"`
	Files   []File      `json:"files,omitempty"`
}

// IsEmpty reports whether there is nothing to send.
func (m *Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.Embeds) == 0 &&
		m.View.Len() == 0 && len(m.Files) == 0
}

// Clamp trims the message to the platform limits.
func (m *Message) Clamp() {
	if utf8.RuneCountInString(m.Content) > MaxContentLength {
		r := []rune(m.Content)
		m.Content = string(r[:MaxContentLength])
	}
	if len(m.Embeds) > MaxEmbeds {
		m.Embeds = m.Embeds[:MaxEmbeds]
	}
	if len(m.Files) > MaxFiles {
		m.Files = m.Files[:MaxFiles]
	}
	if m.View != nil {
		m.View.Truncate(ui.MaxRows)
	}
}

// Directory resolves users the invocation does not carry itself.
type Directory interface {
	User(ctx context.Context, id string) (User, error)
	Members(ctx context.Context, guildID string) ([]User, error)
}

// StaticDirectory is an in-memory Directory. The zero value is empty.
type StaticDirectory struct {
	mu      sync.RWMutex
	users   map[string]User
	members map[string][]string
}

// NewStaticDirectory returns a directory holding users, all of them
// members of guildID when it is not empty.
func NewStaticDirectory(guildID string, users ...User) *StaticDirectory {
	d := &StaticDirectory{}
	for _, u := range users {
		d.Add(guildID, u)
	}
	return d
}

// Add records u, and its membership in guildID when set.
func (d *StaticDirectory) Add(guildID string, u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.users == nil {
		d.users = map[string]User{}
		d.members = map[string][]string{}
	}
	if guildID != "" && !containsID(d.members[guildID], u.ID) {
		d.members[guildID] = append(d.members[guildID], u.ID)
	}
	d.users[u.ID] = u
}

// User implements Directory.
func (d *StaticDirectory) User(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[strings.Trim(id, "<@!>")]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}
	return u, nil
}

// Members implements Directory. Members are ordered by id.
func (d *StaticDirectory) Members(_ context.Context, guildID string) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := append([]string(nil), d.members[guildID]...)
	sort.Strings(ids)
	out := make([]User, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.users[id])
	}
	return out, nil
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
