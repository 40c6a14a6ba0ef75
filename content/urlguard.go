package content

import (
	"net"
	"net/url"
	"strings"
)

// IsPrivateAddress reports whether a URL must not be fetched: non-http(s)
// schemes, missing hosts, loopback, RFC 1918 ranges, link-local addresses
// and localhost names all count as private. Hostnames that are not IP
// literals pass; the guard is a pre-flight check, not a resolver.
func IsPrivateAddress(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return true
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return true
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
