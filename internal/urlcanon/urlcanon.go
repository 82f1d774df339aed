// Package urlcanon canonicalizes post links so the same article is recognized
// across runs regardless of tracking parameters, fragments, or trailing slashes.
package urlcanon

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotHTTP is returned for links that do not resolve to an absolute http(s) URL.
var ErrNotHTTP = errors.New("not an absolute http(s) url")

var trackingParams = map[string]struct{}{
	"ref":     {},
	"ref_src": {},
	"ref_url": {},
	"fbclid":  {},
	"gclid":   {},
	"dclid":   {},
	"msclkid": {},
	"yclid":   {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"_hsenc":  {},
	"_hsmi":   {},
	"mkt_tok": {},
	"cmpid":   {},
	"spm":     {},
}

var trackingPrefixes = []string{"utm_", "_ga", "pk_"}

// IsTrackingParam reports whether a query key only carries attribution data.
func IsTrackingParam(key string) bool {
	k := strings.ToLower(key)
	if _, ok := trackingParams[k]; ok {
		return true
	}
	for _, p := range trackingPrefixes {
		if strings.HasPrefix(k, p) {
			return true
		}
	}
	return false
}

// Canonicalize resolves raw against base (which may be empty) and returns the
// canonical form: lowercase scheme and host, default ports dropped, fragment
// removed, tracking parameters stripped with the remaining order preserved,
// and a non-root trailing slash removed.
func Canonicalize(raw, base string) (string, error) {
	u, err := Resolve(raw, base)
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = stripTracking(u.RawQuery)
	u.ForceQuery = false

	switch {
	case u.Path == "":
		u.Path = "/"
		u.RawPath = ""
	case u.Path != "/" && strings.HasSuffix(u.Path, "/"):
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = strings.TrimRight(u.RawPath, "/")
		if u.Path == "" {
			u.Path = "/"
			u.RawPath = ""
		}
	}
	return u.String(), nil
}

// Resolve parses raw, resolves it against base when relative, and normalizes
// scheme, host, and default ports. It rejects non-http(s) results.
func Resolve(raw, base string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("resolve url: %w", ErrNotHTTP)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !ref.IsAbs() && strings.TrimSpace(base) != "" {
		b, err := url.Parse(strings.TrimSpace(base))
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		ref = b.ResolveReference(ref)
	}
	ref.Scheme = strings.ToLower(ref.Scheme)
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return nil, fmt.Errorf("resolve %q: %w", raw, ErrNotHTTP)
	}
	ref.Host = strings.ToLower(ref.Host)
	if ref.Scheme == "http" {
		ref.Host = strings.TrimSuffix(ref.Host, ":80")
	}
	if ref.Scheme == "https" {
		ref.Host = strings.TrimSuffix(ref.Host, ":443")
	}
	if ref.Hostname() == "" {
		return nil, fmt.Errorf("resolve %q: %w", raw, ErrNotHTTP)
	}
	return ref, nil
}

// LooksLikeURL reports whether s is an absolute http(s) URL with a host.
func LooksLikeURL(s string) bool {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Hostname() != ""
}

// Hostname returns the lowercase host of raw without a leading "www.", or ""
// when raw does not parse.
func Hostname(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" {
			continue
		}
		key := part
		if i := strings.IndexByte(part, '='); i >= 0 {
			key = part[:i]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if IsTrackingParam(key) {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}
