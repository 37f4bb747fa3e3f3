package tracker

import (
	"net/url"
	"strings"
)

const defaultScheme = "http"

// Normalize canonicalizes a raw URL string: a missing scheme gets the default,
// scheme and host are lowercased, default ports and fragments are dropped,
// trailing path separators are stripped, and query parameters are sorted.
// Normalizing an already-canonical URL is a fixed point.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &ValidationError{Reason: "empty url"}
	}
	if !strings.Contains(s, "://") {
		s = defaultScheme + "://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", &ValidationError{Reason: "unparseable url"}
	}
	if u.Host == "" {
		return "", &ValidationError{Reason: "missing host"}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// Allowlist matches hostnames against exact domains and "*." wildcard
// subdomain patterns. A nil Allowlist allows every host (no policy configured).
type Allowlist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewAllowlist builds a matcher from configured patterns. Returns nil when no
// usable pattern is given.
func NewAllowlist(patterns []string) *Allowlist {
	matcher := &Allowlist{exact: make(map[string]struct{})}
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

func (a *Allowlist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range a.suffixes {
		if existing == suffix {
			return
		}
	}
	a.suffixes = append(a.suffixes, suffix)
}

// Allowed reports whether the host matches the allowlist. Wildcard patterns
// match the bare domain and any subdomain.
func (a *Allowlist) Allowed(host string) bool {
	if a == nil {
		return true
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := a.exact[host]; ok {
		return true
	}
	for _, suffix := range a.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Validator combines normalization with the domain allowlist.
type Validator struct {
	allow *Allowlist
}

// NewValidator builds a Validator over the configured domain patterns.
func NewValidator(patterns []string) *Validator {
	return &Validator{allow: NewAllowlist(patterns)}
}

// Validate canonicalizes raw and checks its host against the allowlist.
// Failures are returned as *ValidationError, never panics or raw parse errors.
func (v *Validator) Validate(raw string) (string, error) {
	canonical, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return "", &ValidationError{Reason: "unparseable url"}
	}
	if !v.allow.Allowed(u.Hostname()) {
		return "", &ValidationError{Reason: "host not allowed: " + u.Hostname()}
	}
	return canonical, nil
}
