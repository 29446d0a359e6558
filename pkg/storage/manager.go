package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

// sniffLen is how much of a stream filetype needs to classify it.
const sniffLen = 262

// Guard vets a URI before it is fetched.
type Guard func(ctx context.Context, uri string) error

// Manager routes URIs to backends and moves files between them and a
// media session.
type Manager struct {
	backends map[string]Storage
	guard    Guard
	logger   *zap.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBackend registers s for scheme. "http" registration also covers
// "https".
func WithBackend(scheme string, s Storage) ManagerOption {
	return func(m *Manager) {
		m.backends[scheme] = s
		if scheme == "http" {
			if _, ok := m.backends["https"]; !ok {
				m.backends["https"] = s
			}
		}
	}
}

// WithGuard installs a source check run before every download.
func WithGuard(g Guard) ManagerOption {
	return func(m *Manager) {
		m.guard = g
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager. With no options only http(s) is served.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		backends: make(map[string]Storage),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.backends) == 0 {
		WithBackend("http", NewHTTPStorage())(m)
	}
	return m
}

// Backend returns the backend serving uri.
func (m *Manager) Backend(uri string) (Storage, error) {
	scheme, _, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	s, ok := m.backends[scheme]
	if !ok {
		if IsAllowedScheme(scheme) {
			return nil, fmt.Errorf("%s:// storage is not configured", scheme)
		}
		return nil, fmt.Errorf("unsupported URI scheme: %s", scheme)
	}
	return s, nil
}

// Download streams uri into a file obtained from alloc. The extension passed
// to alloc comes from the URI path, else from the content header, else
// ".tmp". Empty downloads are an error.
func (m *Manager) Download(ctx context.Context, uri string, alloc func(ext string) (string, error)) (string, error) {
	if m.guard != nil {
		if err := m.guard(ctx, uri); err != nil {
			return "", err
		}
	}

	backend, err := m.Backend(uri)
	if err != nil {
		return "", err
	}

	body, err := backend.Get(ctx, uri)
	if err != nil {
		return "", err
	}
	defer body.Close()

	br := bufio.NewReaderSize(body, 32*1024)
	header, _ := br.Peek(sniffLen)

	ext := ExtFromURI(uri)
	if ext == "" {
		ext = SniffExt(header)
	}
	if ext == "" {
		ext = ".tmp"
	}

	path, err := alloc(ext)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("open destination: %w", err)
	}
	n, copyErr := io.Copy(f, br)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = os.Truncate(path, 0)
		if errors.Is(copyErr, ErrTooLarge) {
			return "", copyErr
		}
		return "", fmt.Errorf("failed to download %s: %w", uri, copyErr)
	case closeErr != nil:
		return "", fmt.Errorf("failed to write %s: %w", path, closeErr)
	case n == 0:
		return "", fmt.Errorf("downloaded file is empty")
	}

	m.logger.Debug("downloaded",
		zap.String("uri", uri),
		zap.String("path", path),
		zap.Int64("bytes", n))
	return path, nil
}

// Upload copies a local file to destURI.
func (m *Manager) Upload(ctx context.Context, localPath, destURI string) error {
	backend, err := m.Backend(destURI)
	if err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer file.Close()

	if err := backend.Put(ctx, destURI, file); err != nil {
		return fmt.Errorf("failed to upload to %s: %w", destURI, err)
	}

	m.logger.Info("uploaded", zap.String("path", localPath), zap.String("uri", destURI))
	return nil
}

// FetchText reads at most limit bytes from uri as text.
func (m *Manager) FetchText(ctx context.Context, uri string, limit int64) (string, error) {
	body, err := m.open(ctx, uri)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, limit))
	if err != nil && !errors.Is(err, ErrTooLarge) {
		return "", fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return string(data), nil
}

// Fetch reads the whole object at uri. Objects larger than limit fail
// with ErrTooLarge instead of being truncated.
func (m *Manager) Fetch(ctx context.Context, uri string, limit int64) ([]byte, error) {
	body, err := m.open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w", uri, ErrTooLarge)
	}
	return data, nil
}

func (m *Manager) open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if m.guard != nil {
		if err := m.guard(ctx, uri); err != nil {
			return nil, err
		}
	}
	backend, err := m.Backend(uri)
	if err != nil {
		return nil, err
	}
	return backend.Get(ctx, uri)
}

// SniffExt returns an extension such as ".png" for a content header, or "".
func SniffExt(header []byte) string {
	kind, err := filetype.Match(header)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return "." + kind.Extension
}

// DetectMIME returns the MIME type for a content header, falling back to
// net/http's sniffer.
func DetectMIME(header []byte) string {
	if kind, err := filetype.Match(header); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return http.DetectContentType(header)
}

// sniff returns a reader equivalent to r and r's MIME type. Seekable
// readers are rewound rather than wrapped so SDKs can still seek them.
func sniff(r io.Reader) (io.Reader, string) {
	header := make([]byte, sniffLen)
	if rs, ok := r.(io.ReadSeeker); ok {
		n, _ := io.ReadFull(rs, header)
		if _, err := rs.Seek(0, io.SeekStart); err == nil {
			return rs, DetectMIME(header[:n])
		}
		return io.MultiReader(bytes.NewReader(header[:n]), rs), DetectMIME(header[:n])
	}
	n, _ := io.ReadFull(r, header)
	return io.MultiReader(bytes.NewReader(header[:n]), r), DetectMIME(header[:n])
}
