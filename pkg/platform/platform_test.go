package platform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/tagforge/pkg/ui"
)

func TestUser_Display(t *testing.T) {
	assert.Equal(t, "nick", User{Name: "n", DisplayName: "d", Nick: "nick"}.Display())
	assert.Equal(t, "d", User{Name: "n", DisplayName: "d"}.Display())
	assert.Equal(t, "n", User{Name: "n"}.Display())
	assert.Equal(t, "<@42>", User{ID: "42"}.Mention())
}

func TestAttachment_Kind(t *testing.T) {
	tests := map[string]string{
		"image/png":                "image",
		"video/mp4":                "video",
		"Audio/MPEG":               "audio",
		"application/octet-stream": "",
		"":                         "",
	}
	for ct, want := range tests {
		assert.Equal(t, want, Attachment{ContentType: ct}.Kind(), ct)
	}
}

func TestMessage_Clamp(t *testing.T) {
	m := &Message{
		Content: strings.Repeat("é", MaxContentLength+5),
		Embeds:  make([]*ui.Embed, 12),
		Files:   make([]File, 11),
		View:    &ui.View{Rows: make([]*ui.Row, 7)},
	}
	m.Clamp()
	assert.Equal(t, MaxContentLength, len([]rune(m.Content)))
	assert.Len(t, m.Embeds, MaxEmbeds)
	assert.Len(t, m.Files, MaxFiles)
	assert.Len(t, m.View.Rows, ui.MaxRows)
}

func TestMessage_IsEmpty(t *testing.T) {
	assert.True(t, (&Message{Content: "  "}).IsEmpty())
	assert.False(t, (&Message{Files: []File{{Name: "a"}}}).IsEmpty())
}

func TestStaticDirectory(t *testing.T) {
	d := NewStaticDirectory("g1", User{ID: "2", Name: "b"}, User{ID: "1", Name: "a"})
	d.Add("g2", User{ID: "1", Name: "a2"})

	u, err := d.User(context.Background(), "<@!1>")
	require.NoError(t, err)
	assert.Equal(t, "a2", u.Name)

	members, err := d.Members(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "1", members[0].ID)

	members, err = d.Members(context.Background(), "g2")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	_, err = d.User(context.Background(), "9")
	assert.ErrorIs(t, err, ErrUnknownUser)
}
