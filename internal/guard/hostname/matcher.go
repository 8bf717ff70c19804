// Package hostname blocks hostnames by literal value or suffix before any
// DNS work happens. These are the names that are dangerous regardless of
// what they resolve to.
package hostname

import "strings"

// Built-in exact-match blocklist. Cloud metadata hostnames are blocked by
// name as well as by IP because some resolvers special-case them.
var defaultExact = []string{
	"localhost",
	"metadata.google.internal",
	"metadata.goog",
}

// Built-in suffix blocklist. mDNS and conventional internal-DNS zones never
// name a host that is safe to fetch from inside the network.
var defaultSuffixes = []string{
	".localhost",
	".local",
	".internal",
}

// Matcher holds the immutable hostname rule set. Safe for concurrent use.
type Matcher struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewMatcher builds a matcher from the built-in rules plus operator extras.
// Extra entries beginning with "." are suffix rules; all others are exact
// matches. Entries are lowercased, matching the normalized hostname form.
func NewMatcher(extra []string) *Matcher {
	m := &Matcher{
		exact:    make(map[string]struct{}, len(defaultExact)+len(extra)),
		suffixes: make([]string, 0, len(defaultSuffixes)+len(extra)),
	}

	for _, host := range defaultExact {
		m.exact[host] = struct{}{}
	}
	m.suffixes = append(m.suffixes, defaultSuffixes...)

	for _, entry := range extra {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, ".") {
			m.suffixes = append(m.suffixes, entry)
		} else {
			m.exact[entry] = struct{}{}
		}
	}

	return m
}

// Match checks a lowercased hostname against the rule set, exact rules
// first. It returns the rule that matched so decisions can say why.
func (m *Matcher) Match(host string) (rule string, blocked bool) {
	if _, ok := m.exact[host]; ok {
		return host, true
	}
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(host, suffix) {
			return "*" + suffix, true
		}
	}
	return "", false
}
