package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		scheme   string
		hostname string
		port     uint16
		path     string
	}{
		{
			name:     "basic URL",
			input:    "https://example.com/path",
			scheme:   "https",
			hostname: "example.com",
			path:     "/path",
		},
		{
			name:     "uppercase scheme and host",
			input:    "HTTPS://EXAMPLE.COM/Path",
			scheme:   "https",
			hostname: "example.com",
			path:     "/Path",
		},
		{
			name:     "explicit port",
			input:    "http://example.com:8080/admin",
			scheme:   "http",
			hostname: "example.com",
			port:     8080,
			path:     "/admin",
		},
		{
			name:     "default http port collapses",
			input:    "http://example.com:80/",
			scheme:   "http",
			hostname: "example.com",
			path:     "/",
		},
		{
			name:     "default https port collapses",
			input:    "https://example.com:443/x",
			scheme:   "https",
			hostname: "example.com",
			path:     "/x",
		},
		{
			name:     "empty path becomes root",
			input:    "https://example.com",
			scheme:   "https",
			hostname: "example.com",
			path:     "/",
		},
		{
			name:     "trailing dot stripped",
			input:    "https://example.com./",
			scheme:   "https",
			hostname: "example.com",
			path:     "/",
		},
		{
			name:     "unicode hostname punycoded",
			input:    "https://münchen.example/",
			scheme:   "https",
			hostname: "xn--mnchen-3ya.example",
			path:     "/",
		},
		{
			name:     "IPv4 literal",
			input:    "http://127.0.0.1/",
			scheme:   "http",
			hostname: "127.0.0.1",
			path:     "/",
		},
		{
			name:     "IPv6 literal with port",
			input:    "http://[::1]:3000/status",
			scheme:   "http",
			hostname: "::1",
			port:     3000,
			path:     "/status",
		},
		{
			name:     "file scheme still parses",
			input:    "file://server/etc/passwd",
			scheme:   "file",
			hostname: "server",
			path:     "/etc/passwd",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  https://example.com/  ",
			scheme:   "https",
			hostname: "example.com",
			path:     "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, u.Scheme)
			assert.Equal(t, tt.hostname, u.Hostname)
			assert.Equal(t, tt.port, u.Port)
			assert.Equal(t, tt.path, u.Path)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"whitespace only", "   "},
		{"no scheme", "example.com/path"},
		{"scheme only", "https://"},
		{"bare path", "/etc/passwd"},
		{"invalid port", "http://example.com:99999/"},
		{"zero port", "http://example.com:0/"},
		{"garbage", "ht!tp://%%%"},
		{"hostname with spaces", "http://exa mple.com/"},
		{"ipv6 zone literal", "http://[fe80::1%25eth0]/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestNormalizedURL_String(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "https://example.com/path", "https://example.com/path"},
		{"query preserved with casing", "https://example.com/p?Key=Val&x=1", "https://example.com/p?Key=Val&x=1"},
		{"host lowercased", "HTTP://Example.COM:8080/A/B", "http://example.com:8080/A/B"},
		{"default port dropped", "https://example.com:443/a", "https://example.com/a"},
		{"ipv6 bracketed", "http://[::1]:3000/x", "http://[::1]:3000/x"},
		{"root added", "https://example.com", "https://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, u.String())
		})
	}
}

func TestSchemeOf(t *testing.T) {
	tests := []struct {
		input  string
		scheme string
		ok     bool
	}{
		{"file:///etc/passwd", "file", true},
		{"FTP://example.com/", "ftp", true},
		{"data:text/html,hi", "data", true},
		{"https://example.com/", "https", true},
		{"example.com/path", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			scheme, ok := SchemeOf(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.scheme, scheme)
		})
	}
}

func TestIsIPLiteral(t *testing.T) {
	u, err := Parse("http://192.168.1.100:8080/admin")
	require.NoError(t, err)
	ip, ok := u.IsIPLiteral()
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.100", ip.String())

	u, err = Parse("http://[2001:db8::1]/")
	require.NoError(t, err)
	ip, ok = u.IsIPLiteral()
	assert.True(t, ok)
	assert.Equal(t, "2001:db8::1", ip.String())

	u, err = Parse("https://example.com/")
	require.NoError(t, err)
	_, ok = u.IsIPLiteral()
	assert.False(t, ok)
}
