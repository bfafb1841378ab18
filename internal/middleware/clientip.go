package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// clientIPResolver names the address a request originates from. Forwarding
// headers are read only when the direct peer is a trusted proxy.
type clientIPResolver struct {
	trusted []netip.Prefix
}

// newClientIPResolver accepts bare addresses and CIDR ranges. Entries that
// parse as neither are skipped.
func newClientIPResolver(entries []string) clientIPResolver {
	var trusted []netip.Prefix
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			trusted = append(trusted, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			addr = addr.Unmap()
			trusted = append(trusted, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return clientIPResolver{trusted: trusted}
}

func (c clientIPResolver) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (c clientIPResolver) resolve(r *http.Request) string {
	peer := peerIP(r)
	if len(c.trusted) == 0 {
		return peer
	}

	addr, err := netip.ParseAddr(peer)
	if err != nil || !c.isTrusted(addr) {
		return peer
	}

	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		client := peer
		// Walk from the nearest hop; the first untrusted one is the client.
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return client
			}
			client = hop.Unmap().String()
			if !c.isTrusted(hop) {
				return client
			}
		}
		return client
	}

	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}

	return peer
}

// peerIP is the host part of the connection's remote address.
func peerIP(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}

	host, _, err := net.SplitHostPort(remote)
	if err == nil && host != "" {
		return host
	}

	return remote
}
