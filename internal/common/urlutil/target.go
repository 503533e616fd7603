package urlutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrInvalidTarget = errors.New("invalid target url")
	ErrPrivateTarget = errors.New("target resolves to a private or reserved address")
)

// privateRanges are blocked as capture targets so the browser cannot be pointed at internal services
var privateRanges []*net.IPNet

func init() {
	cidrs := []string{
		"127.0.0.0/8",    // loopback
		"10.0.0.0/8",     // RFC 1918
		"172.16.0.0/12",  // RFC 1918
		"192.168.0.0/16", // RFC 1918
		"169.254.0.0/16", // link-local, cloud metadata
		"100.64.0.0/10",  // CGNAT
		"0.0.0.0/8",
		"224.0.0.0/4", // multicast

		"::1/128",
		"fe80::/10",
		"fc00::/7",
		"ff00::/8",
	}

	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in private ranges: %s", cidr))
		}
		privateRanges = append(privateRanges, ipNet)
	}
}

// IsPrivateIP reports whether ip is in a private or reserved range
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, ipNet := range privateRanges {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ValidateTarget checks that rawURL is an absolute http(s) URL whose host is not a
// private IP literal. Hostnames pass; use ValidateResolved to check their addresses.
func ValidateTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https: %q", ErrInvalidTarget, rawURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host: %q", ErrInvalidTarget, rawURL)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials in url are not allowed", ErrInvalidTarget)
	}

	if ip := net.ParseIP(u.Hostname()); ip != nil && IsPrivateIP(ip) {
		return nil, fmt.Errorf("%w: %s", ErrPrivateTarget, u.Hostname())
	}
	return u, nil
}

// Resolver is the subset of net.Resolver used for target checks
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ValidateResolved resolves host and rejects it if any address is private.
// IP literals are checked without a lookup.
func ValidateResolved(ctx context.Context, resolver Resolver, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return fmt.Errorf("%w: %s", ErrPrivateTarget, host)
		}
		return nil
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrInvalidTarget, host, err)
	}
	for _, addr := range addrs {
		if IsPrivateIP(addr.IP) {
			return fmt.Errorf("%w: %s -> %s", ErrPrivateTarget, host, addr.IP)
		}
	}
	return nil
}
