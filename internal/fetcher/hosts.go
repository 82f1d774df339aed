package fetcher

import (
	"strings"

	"github.com/JakeFAU/realtime-feeds/internal/urlcanon"
)

// HostPatterns matches hostnames against exact hosts and "*."/"." suffix
// wildcards, e.g. rate-limiting providers that need the relay.
type HostPatterns struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewHostPatterns compiles patterns. It returns nil when none are usable; a
// nil *HostPatterns matches nothing.
func NewHostPatterns(patterns []string) *HostPatterns {
	matcher := &HostPatterns{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (m *HostPatterns) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

// Match reports whether host matches any pattern.
func (m *HostPatterns) Match(host string) bool {
	if m == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, exact := m.exact[host]; exact {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// MatchURL reports whether the host of rawURL matches.
func (m *HostPatterns) MatchURL(rawURL string) bool {
	u, err := urlcanon.Resolve(rawURL, "")
	if err != nil {
		return false
	}
	return m.Match(u.Hostname())
}
