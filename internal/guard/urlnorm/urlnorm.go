// Package urlnorm parses externally supplied URL strings into the canonical
// form the rest of the validator reasons about.
package urlnorm

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizedURL is the parsed, canonical form of an input URL.
// The hostname is lowercased, punycode-encoded, and stripped of any trailing
// dot so it can be compared against blocklists and handed to DNS directly.
// Path and query keep their original casing -- the caller fetches exactly
// what was validated, casing included.
type NormalizedURL struct {
	Scheme   string
	Hostname string
	Port     uint16 // 0 means the scheme default
	Path     string
	RawQuery string
}

// Parse normalizes a raw URL string. Any input that cannot be brought into
// canonical form is rejected; the validator treats every error here as a
// malformed URL and blocks.
func Parse(rawURL string) (*NormalizedURL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("unparseable URL: %w", err)
	}

	if parsed.Scheme == "" {
		return nil, fmt.Errorf("URL has no scheme")
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("URL has no host")
	}

	host, err = normalizeHost(host)
	if err != nil {
		return nil, err
	}

	var port uint16
	if portStr := parsed.Port(); portStr != "" {
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || p == 0 {
			return nil, fmt.Errorf("invalid port %q", portStr)
		}
		port = uint16(p)
	}

	scheme := strings.ToLower(parsed.Scheme)

	// Default ports collapse to 0 so http://host:80/ and http://host/
	// normalize identically
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	return &NormalizedURL{
		Scheme:   scheme,
		Hostname: host,
		Port:     port,
		Path:     path,
		RawQuery: parsed.RawQuery,
	}, nil
}

// SchemeOf extracts just the lowercased scheme from a raw URL, if one can be
// parsed at all. It lets the protocol gate reject a disallowed scheme even
// when the rest of the URL is unusable (file:///etc/passwd has no host, but
// the interesting fact about it is the scheme).
func SchemeOf(rawURL string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme), true
}

// normalizeHost lowercases the hostname, strips a single trailing dot, and
// converts Unicode labels to their punycode form. IP literals pass through
// untouched apart from lowercasing (IPv6 hex digits).
func normalizeHost(host string) (string, error) {
	host = strings.ToLower(host)
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("URL has no host")
	}

	if net.ParseIP(host) != nil {
		return host, nil
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid hostname %q: %w", host, err)
	}
	return ascii, nil
}

// IsIPLiteral reports whether the hostname is a literal IPv4 or IPv6 address
// and returns the parsed address when it is.
func (u *NormalizedURL) IsIPLiteral() (net.IP, bool) {
	ip := net.ParseIP(u.Hostname)
	return ip, ip != nil
}

// Host returns hostname:port, bracketing IPv6 literals, omitting default ports
func (u *NormalizedURL) Host() string {
	host := u.Hostname
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if u.Port != 0 {
		host += ":" + strconv.Itoa(int(u.Port))
	}
	return host
}

// String reassembles the canonical URL. Callers must fetch this string, not
// the raw input the normalized form was derived from.
func (u *NormalizedURL) String() string {
	s := u.Scheme + "://" + u.Host() + u.Path
	if u.RawQuery != "" {
		s += "?" + u.RawQuery
	}
	return s
}
