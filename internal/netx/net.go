// Package netx classifies audit target hosts. A scan against loopback or
// private address space would probe the scanner's own network, so such hosts
// are refused before a credit is spent.
package netx

import (
	"net/netip"
	"strings"
)

// HostClass describes where a hostname points.
type HostClass int

const (
	HostPublic HostClass = iota
	HostLocal
	HostPrivate
)

func (c HostClass) String() string {
	switch c {
	case HostLocal:
		return "local"
	case HostPrivate:
		return "private"
	default:
		return "public"
	}
}

var localNames = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
}

// ClassifyHost inspects a hostname (brackets around IPv6 literals allowed).
// Names other than the well-known localhost aliases are treated as public;
// no DNS lookup is performed.
func ClassifyHost(host string) HostClass {
	h := strings.ToLower(strings.TrimSuffix(strings.Trim(host, "[]"), "."))

	if _, ok := localNames[h]; ok || strings.HasSuffix(h, ".localhost") {
		return HostLocal
	}

	addr, err := netip.ParseAddr(h)
	if err != nil {
		return HostPublic
	}
	addr = addr.Unmap()

	switch {
	case addr.IsLoopback(), addr.IsUnspecified():
		return HostLocal
	case addr.IsPrivate(), addr.IsLinkLocalUnicast(), isSharedAddressSpace(addr):
		return HostPrivate
	default:
		return HostPublic
	}
}

// IsIPLiteral reports whether host is an IP address rather than a name.
func IsIPLiteral(host string) bool {
	_, err := netip.ParseAddr(strings.Trim(host, "[]"))
	return err == nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func isSharedAddressSpace(addr netip.Addr) bool {
	return addr.Is4() && sharedAddressSpace.Contains(addr)
}
