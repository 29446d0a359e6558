package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// DefaultUserAgent is sent with every download.
const DefaultUserAgent = "tagforge/1.0"

// HTTPStorage implements Storage for HTTP/HTTPS downloads
type HTTPStorage struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// HTTPOption configures an HTTPStorage.
type HTTPOption func(*HTTPStorage)

// WithHTTPClient replaces the client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(hs *HTTPStorage) {
		if c != nil {
			hs.client = c
		}
	}
}

// WithMaxBytes limits the size of a downloaded body; 0 means unlimited.
func WithMaxBytes(n int64) HTTPOption {
	return func(hs *HTTPStorage) {
		hs.maxBytes = n
	}
}

// WithDialControl installs a connect-time address filter, typically
// validator.DialControl.
func WithDialControl(control func(network, address string, c syscall.RawConn) error) HTTPOption {
	return func(hs *HTTPStorage) {
		dialer := &net.Dialer{Timeout: 10 * time.Second, Control: control}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = dialer.DialContext
		transport.Proxy = nil
		hs.client = &http.Client{Transport: transport, Timeout: hs.client.Timeout}
	}
}

// NewHTTPStorage creates a new HTTP storage backend
func NewHTTPStorage(opts ...HTTPOption) *HTTPStorage {
	hs := &HTTPStorage{
		client:    &http.Client{Timeout: 60 * time.Second},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(hs)
	}
	return hs
}

func (hs *HTTPStorage) checkScheme(uri string) error {
	scheme, _, err := ParseURI(uri)
	if err != nil {
		return err
	}

	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("HTTP storage only supports http:// and https:// URIs, got %s://", scheme)
	}
	return nil
}

// Get downloads a file over HTTP/HTTPS. Non-200 responses are errors.
func (hs *HTTPStorage) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := hs.checkScheme(uri); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", hs.userAgent)

	resp, err := hs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP request failed with status %d", resp.StatusCode)
	}

	if hs.maxBytes > 0 {
		if resp.ContentLength > hs.maxBytes {
			resp.Body.Close()
			return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, resp.ContentLength)
		}
		return &limitedBody{rc: resp.Body, remaining: hs.maxBytes}, nil
	}
	return resp.Body, nil
}

// GetText fetches uri and returns the body as a string, bounded by limit.
func (hs *HTTPStorage) GetText(ctx context.Context, uri string, limit int64) (string, error) {
	body, err := hs.Get(ctx, uri)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, limit))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(data), nil
}

// Put is not supported for HTTP storage (read-only)
func (hs *HTTPStorage) Put(ctx context.Context, uri string, data io.Reader) error {
	return fmt.Errorf("Put operation not supported for HTTP storage (read-only)")
}

// Delete is not supported for HTTP storage (read-only)
func (hs *HTTPStorage) Delete(ctx context.Context, uri string) error {
	return fmt.Errorf("HTTP storage does not support Delete operations (read-only)")
}

// Exists checks if a file exists by sending a HEAD request
func (hs *HTTPStorage) Exists(ctx context.Context, uri string) (bool, error) {
	if err := hs.checkScheme(uri); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", hs.userAgent)

	resp, err := hs.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// limitedBody fails instead of silently truncating once the limit is hit.
type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (l *limitedBody) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.rc.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

func (l *limitedBody) Close() error {
	return l.rc.Close()
}
