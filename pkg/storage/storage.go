// Package storage moves media between sessions and remote locations:
// http(s) downloads, the local filesystem, Amazon S3 and Google Cloud
// Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// AllowedSchemes is the whitelist of allowed URI schemes
var AllowedSchemes = []string{"https", "http", "s3", "gs", "file"}

// ErrTooLarge is returned when a download exceeds the configured limit.
var ErrTooLarge = errors.New("download exceeds size limit")

// Storage is the interface for all storage backends
type Storage interface {
	// Get opens the object at uri for reading.
	Get(ctx context.Context, uri string) (io.ReadCloser, error)

	// Put uploads data to uri.
	Put(ctx context.Context, uri string, data io.Reader) error

	// Delete removes the object at uri.
	Delete(ctx context.Context, uri string) error

	// Exists checks if an object exists at uri.
	Exists(ctx context.Context, uri string) (bool, error)
}

// ParseURI parses a URI and returns scheme and path
func ParseURI(uri string) (scheme string, path string, err error) {
	if uri == "" {
		return "", "", fmt.Errorf("URI cannot be empty")
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid URI: %w", err)
	}

	if parsed.Scheme == "" {
		return "", "", fmt.Errorf("URI must have a scheme (e.g., https://, s3://)")
	}

	scheme = strings.ToLower(parsed.Scheme)
	if scheme == "file" {
		return scheme, parsed.Path, nil
	}

	path = parsed.Host
	if parsed.Path != "" {
		path = path + parsed.Path
	}

	return scheme, path, nil
}

// IsAllowedScheme checks if a URI scheme is in the whitelist
func IsAllowedScheme(scheme string) bool {
	for _, allowed := range AllowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// ExtFromURI returns the lowercased extension of the URI's path, ignoring
// query and fragment, or "" when there is none.
func ExtFromURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// JoinURI appends name to a destination prefix such as s3://bucket/out/.
func JoinURI(prefix, name string) string {
	if strings.HasSuffix(prefix, "/") {
		return prefix + name
	}
	return prefix + "/" + name
}
