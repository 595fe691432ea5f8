package graph

import (
	"fmt"

	"github.com/hostedat/vgraph/internal/importmap"
	"github.com/hostedat/vgraph/internal/parser"
	"github.com/hostedat/vgraph/internal/specifier"
)

// Module is one node of the graph: a specifier, its source, its resolved
// dependency table, and whatever has been transpiled for it so far. The
// zero-value progresses through Created -> Hydrated -> Parsed -> Emitted
// exactly once each, mirroring the reference Module's is_hydrated /
// is_parsed / is_dirty flags.
type Module struct {
	Specifier specifier.Specifier
	MediaType specifier.MediaType
	Source    string
	Charset   string

	Dependencies map[string]Dependency
	MaybeTypes   *specifier.Specifier

	Emits map[EmitType]Emit

	IsHydrated bool
	IsParsed   bool
	IsDirty    bool

	importMap *importmap.ImportMap
	parsed    parser.ParsedModule
}

// NewModule constructs an un-hydrated Module bound to an (optional)
// import map used by every later ResolveImport call on it.
func NewModule(spec specifier.Specifier, im *importmap.ImportMap) *Module {
	return &Module{
		Specifier:    spec,
		Dependencies: map[string]Dependency{},
		Emits:        map[EmitType]Emit{},
		importMap:    im,
	}
}

// Hydrate populates a freshly-created Module from a SpecifierHandler
// fetch result. Per the reference implementation, a cached module's
// already-known dependencies/types are only trusted when no import map is
// in play -- an import map can remap bare specifiers differently than
// whatever produced the cache, so with one bound the module must be
// re-parsed from scratch.
func (m *Module) Hydrate(cached CachedModule) {
	m.MediaType = cached.MediaType
	m.Source = cached.Source
	m.Charset = cached.Charset
	if cached.Emits != nil {
		m.Emits = cached.Emits
	}

	if m.importMap == nil {
		if cached.MaybeDependencies != nil {
			m.Dependencies = cached.MaybeDependencies
			m.IsParsed = true
		}
		m.MaybeTypes = cached.MaybeTypes
	}

	m.IsDirty = false
	m.IsHydrated = true
}

// Parse runs the Parser over the module's source (skipped if Hydrate
// already trusted a cached dependency table), populating Dependencies and
// MaybeTypes from triple-slash references, @deno-types pragmas, and
// syntactic import/export/require analysis.
func (m *Module) Parse(p parser.Parser) error {
	if m.IsParsed {
		return nil
	}

	parsed, err := p.Parse(m.Specifier, m.Source, m.MediaType)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", m.Specifier, err)
	}
	m.parsed = parsed

	deps := map[string]Dependency{}

	for _, c := range parsed.GetLeadingComments() {
		target, isTypes, ok := parser.ParseTripleSlashReference(c)
		if !ok {
			continue
		}
		at := Location{Specifier: m.Specifier, Line: c.Line, Col: c.Col}
		resolved, err := m.ResolveImport(target, at)
		if err != nil {
			continue
		}
		switch {
		case isTypes && m.MediaType.IsJavaScriptFamily():
			m.MaybeTypes = &resolved
		case isTypes:
			dep := deps[target]
			dep.MaybeType = &resolved
			deps[target] = dep
		default:
			dep := deps[target]
			dep.MaybeCode = &resolved
			deps[target] = dep
		}
	}

	for _, desc := range parsed.AnalyzeDependencies() {
		dep := deps[desc.Specifier]
		at := Location{Specifier: m.Specifier, Line: desc.Line, Col: desc.Col}

		resolved, err := m.ResolveImport(desc.Specifier, at)
		if err != nil {
			return err
		}

		var pragmaType *specifier.Specifier
		for _, c := range desc.LeadingComments {
			if target, ok := parser.ParseDenoTypesPragma(c); ok {
				typeResolved, err := m.ResolveImport(target, at)
				if err == nil {
					pragmaType = &typeResolved
				}
			}
		}

		switch desc.Kind {
		case parser.KindImportType, parser.KindExportType:
			dep.MaybeType = &resolved
		default:
			dep.MaybeCode = &resolved
		}
		if pragmaType != nil {
			// @deno-types wins regardless of the syntactic import kind.
			dep.MaybeType = pragmaType
		}
		deps[desc.Specifier] = dep
	}

	m.Dependencies = deps
	m.IsParsed = true
	return nil
}

// ResolveImport resolves a raw import string found in this module's
// source: the import map is consulted first, falling back to standard
// URL resolution, then scheme policy is enforced. at locates the
// import statement for error reporting.
func (m *Module) ResolveImport(raw string, at Location) (specifier.Specifier, error) {
	if m.importMap != nil {
		if mapped, err := m.importMap.Resolve(raw, string(m.Specifier)); err != nil {
			return "", errInvalidSpecifier(specifier.Specifier(raw), err.Error())
		} else if mapped != nil {
			return m.applySchemePolicy(*mapped, at)
		}
	}

	resolved, err := specifier.ResolveImport(raw, m.Specifier)
	if err != nil {
		return "", errInvalidSpecifier(specifier.Specifier(raw), err.Error())
	}
	return m.applySchemePolicy(resolved, at)
}

func (m *Module) applySchemePolicy(resolved specifier.Specifier, at Location) (specifier.Specifier, error) {
	referrerScheme := m.Specifier.Scheme()
	targetScheme := resolved.Scheme()

	if referrerScheme == "https" && targetScheme == "http" {
		return "", errInvalidDowngrade(resolved, at)
	}
	if (referrerScheme == "http" || referrerScheme == "https") &&
		(targetScheme != "http" && targetScheme != "https") {
		return "", errInvalidLocalImport(resolved, at)
	}
	return resolved, nil
}
