package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyManager_Generate(t *testing.T) {
	m := NewAPIKeyManager()

	k, err := m.Generate(alice, "ci", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(k.Key, "tf_"))
	assert.Equal(t, alice, k.Identity)
	assert.Equal(t, "ci", k.Name)

	other, err := m.Generate(alice, "ci", nil)
	require.NoError(t, err)
	assert.NotEqual(t, k.Key, other.Key)
	assert.Equal(t, 2, m.Count())
}

func TestAPIKeyManager_Verify(t *testing.T) {
	m := NewAPIKeyManager()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	valid, err := m.Add("static-key", "config", alice)
	require.NoError(t, err)
	expiry := now.Add(time.Hour)
	expiring, err := m.Generate(alice, "short", &expiry)
	require.NoError(t, err)

	got, err := m.Verify("static-key")
	require.NoError(t, err)
	assert.Equal(t, valid, got)

	_, err = m.Verify("unknown")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	_, err = m.Verify(expiring.Key)
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	_, err = m.Verify(expiring.Key)
	assert.ErrorIs(t, err, ErrExpiredAPIKey)

	require.NoError(t, m.Revoke("static-key"))
	_, err = m.Verify("static-key")
	assert.ErrorIs(t, err, ErrRevokedAPIKey)
	assert.ErrorIs(t, m.Revoke("missing"), ErrKeyNotFound)
	assert.Equal(t, 1, m.Count())
}

func TestAPIKeyManager_AddRejects(t *testing.T) {
	m := NewAPIKeyManager()
	_, err := m.Add("", "empty", alice)
	assert.Error(t, err)
	_, err = m.Add("k", "anonymous", Identity{})
	assert.Error(t, err)

	_, err = m.Add("k", "first", alice)
	require.NoError(t, err)
	_, err = m.Add("k", "second", alice)
	assert.Error(t, err)
}

func TestAPIKeyManager_List(t *testing.T) {
	m := NewAPIKeyManager()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { now = now.Add(time.Second); return now }

	_, err := m.Add("a", "first", alice)
	require.NoError(t, err)
	_, err = m.Add("b", "second", alice)
	require.NoError(t, err)
	_, err = m.Add("c", "bob's", Identity{UserID: "u2"})
	require.NoError(t, err)

	list := m.List("u1")
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Name)
	assert.Equal(t, "second", list[1].Name)
	assert.Empty(t, m.List("nobody"))
}

func TestParseKeySpec(t *testing.T) {
	tests := []struct {
		spec    string
		wantKey string
		wantID  Identity
		wantErr bool
	}{
		{"k1:u1", "k1", Identity{UserID: "u1"}, false},
		{"k1:u1:g1", "k1", Identity{UserID: "u1", GuildID: "g1"}, false},
		{"k1:u1:g1:true", "k1", Identity{UserID: "u1", GuildID: "g1", Elevated: true}, false},
		{"k1:u1::true", "k1", Identity{UserID: "u1", Elevated: true}, false},
		{"k1", "", Identity{}, true},
		{":u1", "", Identity{}, true},
		{"k1:u1:g1:maybe", "", Identity{}, true},
		{"k1:u1:g1:true:extra", "", Identity{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			key, id, err := ParseKeySpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantID, id)

			again, id2, err := ParseKeySpec(FormatKeySpec(key, id))
			require.NoError(t, err)
			assert.Equal(t, key, again)
			assert.Equal(t, id, id2)
		})
	}
}

func TestAPIKeyManager_LoadKeys(t *testing.T) {
	m := NewAPIKeyManager()
	require.NoError(t, m.LoadKeys([]string{"secret-one:u1", "secret-two:bot:g1:true"}))
	k, err := m.Verify("secret-two")
	require.NoError(t, err)
	assert.True(t, k.Identity.Elevated)
	assert.Equal(t, "config[1]", k.Name)

	err = m.LoadKeys([]string{"broken-key-value"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "broken-key-value")
}
