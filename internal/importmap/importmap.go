// Package importmap implements the user-configurable mapping from bare or
// relative import strings to canonical specifiers, scoped by referrer.
package importmap

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/hostedat/vgraph/internal/specifier"
)

// ImportMap resolves bare or relative specifiers against a set of
// "imports" (global) and "scopes" (referrer-prefix-scoped) entries, per
// https://github.com/WICG/import-maps. It is immutable after construction
// and safe to share by pointer across every Module's resolution step --
// the Graph never mutates it.
type ImportMap struct {
	baseURL string
	imports map[string]string
	scopes  map[string]map[string]string
}

type rawImportMap struct {
	Imports map[string]string            `json:"imports"`
	Scopes  map[string]map[string]string `json:"scopes"`
}

// FromJSON parses an import map document. baseURL is the specifier of the
// document itself (or a page/module root), used to resolve relative
// mapping targets to absolute specifiers at load time.
func FromJSON(baseURL string, data []byte) (*ImportMap, error) {
	var raw rawImportMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing import map: %w", err)
	}
	im := &ImportMap{
		baseURL: baseURL,
		imports: map[string]string{},
		scopes:  map[string]map[string]string{},
	}
	for k, v := range raw.Imports {
		if v == "" { // a null entry keeps the empty marker Resolve rejects
			im.imports[k] = ""
			continue
		}
		resolved, err := resolveTarget(v, baseURL)
		if err != nil {
			return nil, fmt.Errorf("import map entry %q: %w", k, err)
		}
		im.imports[k] = resolved
	}
	for scopePrefix, entries := range raw.Scopes {
		resolvedScope, err := resolveTarget(scopePrefix, baseURL)
		if err != nil {
			return nil, fmt.Errorf("import map scope %q: %w", scopePrefix, err)
		}
		scoped := map[string]string{}
		for k, v := range entries {
			if v == "" {
				scoped[k] = ""
				continue
			}
			resolved, err := resolveTarget(v, baseURL)
			if err != nil {
				return nil, fmt.Errorf("import map scope %q entry %q: %w", scopePrefix, k, err)
			}
			scoped[k] = resolved
		}
		im.scopes[resolvedScope] = scoped
	}
	return im, nil
}

func resolveTarget(raw, baseURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// Resolve attempts to remap raw as imported from referrerStr. It returns
// (nil, nil) when the map has no applicable entry -- the caller then falls
// back to standard URL resolution.
func (m *ImportMap) Resolve(raw string, referrerStr string) (*specifier.Specifier, error) {
	if m == nil {
		return nil, nil
	}

	table := m.imports
	if best := m.bestScope(referrerStr); best != nil {
		// Scoped entries take precedence over the top-level "imports" table;
		// merge so exact/prefix matches in the scope win first.
		merged := make(map[string]string, len(m.imports)+len(best))
		for k, v := range m.imports {
			merged[k] = v
		}
		for k, v := range best {
			merged[k] = v
		}
		table = merged
	}

	if target, ok := table[raw]; ok {
		if target == "" {
			return nil, fmt.Errorf("import map entry %q resolves to null", raw)
		}
		s := specifier.Specifier(target)
		return &s, nil
	}

	// Prefix match: longest matching key ending in "/".
	var bestKey, bestTarget string
	for k, v := range table {
		if !strings.HasSuffix(k, "/") {
			continue
		}
		if strings.HasPrefix(raw, k) && len(k) > len(bestKey) {
			bestKey, bestTarget = k, v
		}
	}
	if bestKey != "" {
		if bestTarget == "" {
			return nil, fmt.Errorf("import map entry %q resolves to null", bestKey)
		}
		resolved := bestTarget + strings.TrimPrefix(raw, bestKey)
		s := specifier.Specifier(resolved)
		return &s, nil
	}

	return nil, nil
}

// bestScope returns the scope table whose prefix most specifically
// matches referrer, or nil if none applies.
func (m *ImportMap) bestScope(referrer string) map[string]string {
	var candidates []string
	for prefix := range m.scopes {
		if strings.HasPrefix(referrer, prefix) {
			candidates = append(candidates, prefix)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	return m.scopes[candidates[0]]
}
