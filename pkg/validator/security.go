package validator

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"syscall"
)

// BlockedNetworks contains IP ranges that remote fetches may not reach.
var BlockedNetworks = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),      // "this" network
	netip.MustParsePrefix("127.0.0.0/8"),    // Localhost
	netip.MustParsePrefix("10.0.0.0/8"),     // Private network
	netip.MustParsePrefix("172.16.0.0/12"),  // Private network
	netip.MustParsePrefix("192.168.0.0/16"), // Private network
	netip.MustParsePrefix("100.64.0.0/10"),  // Carrier-grade NAT
	netip.MustParsePrefix("169.254.0.0/16"), // Link-local (cloud metadata)
	netip.MustParsePrefix("::1/128"),        // IPv6 localhost
	netip.MustParsePrefix("fc00::/7"),       // IPv6 unique local
	netip.MustParsePrefix("fe80::/10"),      // IPv6 link-local
}

// IsBlockedIP checks if an IP address is in a blocked network range
func IsBlockedIP(ipStr string) bool {
	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return false
	}
	return blockReason(addr) != ""
}

func blockReason(addr netip.Addr) string {
	addr = addr.Unmap()
	if addr.IsUnspecified() {
		return "unspecified address not allowed"
	}
	for _, p := range BlockedNetworks {
		if !p.Contains(addr) {
			continue
		}
		switch {
		case addr.IsLoopback():
			return "localhost access not allowed"
		case addr.IsLinkLocalUnicast():
			return "link-local access not allowed"
		default:
			return "private network access not allowed"
		}
	}
	return ""
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// ValidateHTTPURI rejects http(s) URIs whose host resolves to a blocked
// network.
func ValidateHTTPURI(ctx context.Context, r Resolver, uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid URI: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("expected http or https scheme")
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URI has no host")
	}

	if addr, err := netip.ParseAddr(hostname); err == nil {
		if reason := blockReason(addr); reason != "" {
			return fmt.Errorf("access denied: %s (%s)", hostname, reason)
		}
		return nil
	}

	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip", hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname: %w", err)
	}

	for _, addr := range addrs {
		if reason := blockReason(addr); reason != "" {
			return fmt.Errorf("access denied: %s resolves to %s (%s)", hostname, addr, reason)
		}
	}

	return nil
}

// DialControl is a net.Dialer Control hook that refuses connections to
// blocked networks. It runs after name resolution, so a host that passed
// ValidateHTTPURI cannot rebind to an internal address.
func DialControl(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("access denied: unparseable address %q", address)
	}
	if reason := blockReason(ap.Addr()); reason != "" {
		return fmt.Errorf("access denied: %s (%s)", ap.Addr(), reason)
	}
	return nil
}
