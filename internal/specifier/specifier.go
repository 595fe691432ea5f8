// Package specifier implements the core's notion of an absolute module
// specifier: URL resolution, scheme helpers, and media type detection.
package specifier

import (
	"fmt"
	"net/url"
	"strings"
)

// Specifier is an absolute URL identifying a module. All intra-core
// comparisons and map keys use this post-resolution absolute form;
// relative strings appearing in source are never stored.
type Specifier string

// ValidSchemes lists the schemes the core understands. A resolved
// specifier outside this set is still returned to callers (the Loader may
// consult npm/jsr-flavored schemes it understands on its own), but nothing
// in the Graph enforces a closed world beyond the scheme-policy checks.
var ValidSchemes = map[string]bool{
	"file":  true,
	"http":  true,
	"https": true,
	"data":  true,
	"jsr":   true,
	"npm":   true,
	"node":  true,
	"blob":  true,
}

// Parse resolves a raw URL string to an absolute Specifier. It requires raw
// to already be absolute (have a scheme); use ResolveImport to resolve a
// possibly-relative import string against a referrer.
func Parse(raw string) (Specifier, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing specifier %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("parsing specifier %q: not an absolute URL", raw)
	}
	return Specifier(u.String()), nil
}

// ResolveImport resolves raw (a bare, relative, or absolute specifier
// string found in source) against referrer using standard URL resolution.
// It performs no import-map lookup and no scheme-policy enforcement --
// callers apply those separately (see graph.Module.ResolveImport).
func ResolveImport(raw string, referrer Specifier) (Specifier, error) {
	base, err := url.Parse(string(referrer))
	if err != nil {
		return "", fmt.Errorf("parsing referrer %q: %w", referrer, err)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("resolving %q against %q: %w", raw, referrer, err)
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme == "" {
		return "", fmt.Errorf("resolving %q against %q: no scheme", raw, referrer)
	}
	return Specifier(resolved.String()), nil
}

// Scheme returns the specifier's URL scheme, lower-cased.
func (s Specifier) Scheme() string {
	u, err := url.Parse(string(s))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// IsRemote reports whether the specifier uses http or https.
func (s Specifier) IsRemote() bool {
	scheme := s.Scheme()
	return scheme == "http" || scheme == "https"
}

// Path returns the URL path component, used for extension-based media
// type detection.
func (s Specifier) Path() string {
	u, err := url.Parse(string(s))
	if err != nil {
		return string(s)
	}
	return u.Path
}

func (s Specifier) String() string { return string(s) }
