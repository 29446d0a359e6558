// Package validator decides which media URIs a script may read from or
// write to.
package validator

import (
	"context"
	"fmt"

	"github.com/chicogong/tagforge/pkg/storage"
)

// Policy validates source and destination URIs.
type Policy struct {
	// BlockPrivate enables the SSRF check for http(s) sources.
	BlockPrivate bool
	// Schemes enabled for sources. Nil means http and https only.
	SourceSchemes []string
	// Schemes enabled for render destinations.
	DestinationSchemes []string
	Resolver           Resolver
}

// New returns the default policy: http(s) sources with private networks
// blocked and no destinations.
func New() *Policy {
	return &Policy{BlockPrivate: true}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CheckSource validates a URI a script wants to load.
func (p *Policy) CheckSource(ctx context.Context, uri string) error {
	scheme, _, err := storage.ParseURI(uri)
	if err != nil {
		return err
	}

	if !storage.IsAllowedScheme(scheme) {
		return fmt.Errorf("scheme '%s' not allowed", scheme)
	}

	enabled := p.SourceSchemes
	if enabled == nil {
		enabled = []string{"http", "https"}
	}
	if !contains(enabled, scheme) {
		return fmt.Errorf("scheme '%s' not enabled for loading", scheme)
	}

	if (scheme == "http" || scheme == "https") && p.BlockPrivate {
		if err := ValidateHTTPURI(ctx, p.Resolver, uri); err != nil {
			return fmt.Errorf("security check failed: %w", err)
		}
	}
	return nil
}

// CheckDestination validates a URI rendered output is uploaded to.
func (p *Policy) CheckDestination(uri string) error {
	scheme, _, err := storage.ParseURI(uri)
	if err != nil {
		return err
	}

	if !storage.IsAllowedScheme(scheme) {
		return fmt.Errorf("scheme '%s' not allowed", scheme)
	}

	if scheme == "http" || scheme == "https" {
		return fmt.Errorf("scheme '%s' is read-only", scheme)
	}

	if !contains(p.DestinationSchemes, scheme) {
		return fmt.Errorf("scheme '%s' not enabled for output", scheme)
	}
	return nil
}
