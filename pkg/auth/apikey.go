package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrRevokedAPIKey = errors.New("API key has been revoked")
	ErrExpiredAPIKey = errors.New("API key has expired")
	ErrKeyNotFound   = errors.New("API key not found")
)

// APIKey binds a key to the identity it acts as.
type APIKey struct {
	Key       string     `json:"key"`
	Identity  Identity   `json:"identity"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// APIKeyManager holds API keys in memory.
type APIKeyManager struct {
	keys map[string]*APIKey
	mu   sync.RWMutex
	now  func() time.Time
}

// NewAPIKeyManager creates an empty manager.
func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{
		keys: make(map[string]*APIKey),
		now:  time.Now,
	}
}

// Add registers an existing key, typically one read from configuration.
func (m *APIKeyManager) Add(key, name string, id Identity) (*APIKey, error) {
	if key == "" || id.UserID == "" {
		return nil, errors.New("key and user id are required")
	}
	k := &APIKey{Key: key, Identity: id, Name: name, CreatedAt: m.now()}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.keys[key]; exists {
		return nil, fmt.Errorf("API key %s is already registered", name)
	}
	m.keys[key] = k
	return k, nil
}

// Generate creates a random key acting as id.
func (m *APIKeyManager) Generate(id Identity, name string, expiresAt *time.Time) (*APIKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	k, err := m.Add("tf_"+base64.RawURLEncoding.EncodeToString(buf), name, id)
	if err != nil {
		return nil, err
	}
	k.ExpiresAt = expiresAt
	return k, nil
}

// Verify returns the key record for key when it is usable.
func (m *APIKeyManager) Verify(key string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *APIKey
	for k, v := range m.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			found = v
		}
	}
	switch {
	case found == nil:
		return nil, ErrInvalidAPIKey
	case found.Revoked:
		return nil, ErrRevokedAPIKey
	case found.ExpiresAt != nil && m.now().After(*found.ExpiresAt):
		return nil, ErrExpiredAPIKey
	}
	return found, nil
}

// Revoke disables key.
func (m *APIKeyManager) Revoke(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[key]
	if !ok {
		return ErrKeyNotFound
	}
	k.Revoked = true
	return nil
}

// List returns the keys acting as userID, oldest first.
func (m *APIKeyManager) List(userID string) []*APIKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*APIKey
	for _, k := range m.keys {
		if k.Identity.UserID == userID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Count returns the number of keys that are not revoked.
func (m *APIKeyManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, k := range m.keys {
		if !k.Revoked {
			n++
		}
	}
	return n
}

// ParseKeySpec parses a configured key of the form
// "key:user[:guild[:elevated]]".
func ParseKeySpec(spec string) (string, Identity, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	if len(parts) < 2 || len(parts) > 4 || parts[0] == "" || parts[1] == "" {
		return "", Identity{}, fmt.Errorf("api key %q: want key:user[:guild[:elevated]]", redact(parts[0]))
	}
	id := Identity{UserID: parts[1]}
	if len(parts) > 2 {
		id.GuildID = parts[2]
	}
	if len(parts) > 3 {
		elevated, err := strconv.ParseBool(parts[3])
		if err != nil {
			return "", Identity{}, fmt.Errorf("api key %q: elevated flag: %w", redact(parts[0]), err)
		}
		id.Elevated = elevated
	}
	return parts[0], id, nil
}

// FormatKeySpec is the inverse of ParseKeySpec.
func FormatKeySpec(key string, id Identity) string {
	return strings.Join([]string{key, id.UserID, id.GuildID, strconv.FormatBool(id.Elevated)}, ":")
}

// LoadKeys adds every configured key spec to m.
func (m *APIKeyManager) LoadKeys(specs []string) error {
	for i, spec := range specs {
		key, id, err := ParseKeySpec(spec)
		if err != nil {
			return err
		}
		if _, err := m.Add(key, fmt.Sprintf("config[%d]", i), id); err != nil {
			return err
		}
	}
	return nil
}

func redact(key string) string {
	if len(key) <= 6 {
		return "***"
	}
	return key[:6] + "***"
}
