// ABOUTME: Network address policy for remote fetches: hostname denylist and private ranges
// ABOUTME: IPv4-mapped IPv6 addresses are checked against the IPv4 rules

package upload

import (
	"net/netip"
	"strings"

	"golang.org/x/net/idna"
)

var privateV4 = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("224.0.0.0/3"), // multicast, reserved and broadcast
}

var privateV6 = []netip.Prefix{
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("ff00::/8"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// IsPrivateAddr reports whether addr is loopback, private, link-local,
// multicast or otherwise reserved and so must never be fetched from.
func IsPrivateAddr(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.WithZone("")
	if addr.Is4In6() {
		return IsPrivateAddr(addr.Unmap())
	}
	ranges := privateV6
	if addr.Is4() {
		ranges = privateV4
	}
	for _, p := range ranges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// normalizeHost lowercases host, strips trailing dots and converts
// internationalized names to their ASCII form.
func normalizeHost(host string) (string, error) {
	host = strings.TrimRight(strings.TrimSpace(host), ".")
	if host == "" {
		return "", &ValidationError{Field: "url", Reason: "url has no host"}
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return strings.ToLower(host), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", &ValidationError{Field: "url", Reason: "url host is not a valid hostname"}
	}
	return strings.ToLower(ascii), nil
}

// isDeniedHostname reports whether a normalized hostname names the local machine or network.
func isDeniedHostname(host string) bool {
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local")
}
