package graph

import (
	"fmt"
	"testing"

	"github.com/hostedat/vgraph/internal/importmap"
	"github.com/hostedat/vgraph/internal/lockfile"
	"github.com/hostedat/vgraph/internal/parser"
	"github.com/hostedat/vgraph/internal/specifier"
)

// fixtureHandler is a fixed-table SpecifierHandler test double, in the
// spirit of the reference MockSpecifierHandler: every call is recorded so
// tests can assert on fetch/deps/types/cache call counts.
type fixtureHandler struct {
	sources   map[string]string
	mediaType map[string]specifier.MediaType

	fetchCalls []string
	depsCalls  []string
	typesCalls []string
	cacheCalls []string
}

func newFixtureHandler() *fixtureHandler {
	return &fixtureHandler{
		sources:   map[string]string{},
		mediaType: map[string]specifier.MediaType{},
	}
}

func (h *fixtureHandler) add(spec, source string) {
	h.sources[spec] = source
	h.mediaType[spec] = specifier.DetectMediaType(specifier.Specifier(spec).Path())
}

func (h *fixtureHandler) Fetch(spec specifier.Specifier) (CachedModule, error) {
	h.fetchCalls = append(h.fetchCalls, string(spec))
	source, ok := h.sources[string(spec)]
	if !ok {
		return CachedModule{}, fmt.Errorf("module not found %q", spec)
	}
	return CachedModule{
		Specifier: spec,
		MediaType: h.mediaType[string(spec)],
		Source:    source,
	}, nil
}

func (h *fixtureHandler) SetDeps(spec specifier.Specifier, deps map[string]Dependency) error {
	h.depsCalls = append(h.depsCalls, string(spec))
	return nil
}

func (h *fixtureHandler) SetTypes(spec specifier.Specifier, types specifier.Specifier) error {
	h.typesCalls = append(h.typesCalls, string(spec))
	return nil
}

func (h *fixtureHandler) SetCache(spec specifier.Specifier, emitType EmitType, emit Emit) error {
	h.cacheCalls = append(h.cacheCalls, string(spec))
	return nil
}

func (h *fixtureHandler) SetBuildInfo(spec specifier.Specifier, emitType EmitType, buildInfo string) error {
	return nil
}

func TestBuilderInsertLocalGraph(t *testing.T) {
	h := newFixtureHandler()
	h.add("file:///a.ts", "import { b } from \"./b.ts\";\nconsole.log(b);\n")
	h.add("file:///b.ts", "export const b = 1;\n")

	b := NewBuilder(h, parser.NewEsbuildParser(), nil)
	if err := b.Insert("file:///a.ts"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	g, err := b.GetGraph(nil)
	if err != nil {
		t.Fatalf("GetGraph: %v", err)
	}

	if len(g.Roots) != 1 || g.Roots[0] != "file:///a.ts" {
		t.Fatalf("unexpected roots: %v", g.Roots)
	}
	if _, ok := g.Modules["file:///a.ts"]; !ok {
		t.Fatalf("root module missing from graph")
	}
	if _, ok := g.Modules["file:///b.ts"]; !ok {
		t.Fatalf("dependency module missing from graph")
	}
}

func TestBuilderInsertImportMapRemap(t *testing.T) {
	h := newFixtureHandler()
	h.add("file:///app.ts", "import $ from \"jquery\";\n")
	h.add("https://cdn.example.com/jquery.js", "export default {};\n")

	im, err := importmap.FromJSON("file:///", []byte(`{"imports":{"jquery":"https://cdn.example.com/jquery.js"}}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	b := NewBuilder(h, parser.NewEsbuildParser(), im)
	if err := b.Insert("file:///app.ts"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	g, _ := b.GetGraph(nil)

	if _, ok := g.Modules["https://cdn.example.com/jquery.js"]; !ok {
		t.Fatalf("expected jquery remapped dependency in graph, got modules: %v", g.Modules)
	}

	// Import-map-bound builds never report deps/types back to the handler,
	// since the cached dependency table could have been produced under a
	// different map.
	if len(h.depsCalls) != 0 {
		t.Fatalf("expected no SetDeps calls with a bound import map, got %v", h.depsCalls)
	}
}

func TestBuilderInsertRejectsHTTPSToHTTPDowngrade(t *testing.T) {
	h := newFixtureHandler()
	h.add("https://example.com/a.ts", "import { b } from \"http://example.com/b.ts\";\n")
	h.add("http://example.com/b.ts", "export const b = 1;\n")

	b := NewBuilder(h, parser.NewEsbuildParser(), nil)
	err := b.Insert("https://example.com/a.ts")
	if err == nil {
		t.Fatalf("expected InvalidDowngrade error, got nil")
	}
	ge, ok := err.(*GraphError)
	if !ok || ge.Kind != InvalidDowngrade {
		t.Fatalf("expected InvalidDowngrade, got %v", err)
	}
}

func TestBuilderInsertRejectsRemoteImportingLocal(t *testing.T) {
	h := newFixtureHandler()
	h.add("https://example.com/a.ts", "import { b } from \"file:///b.ts\";\n")
	h.add("file:///b.ts", "export const b = 1;\n")

	b := NewBuilder(h, parser.NewEsbuildParser(), nil)
	err := b.Insert("https://example.com/a.ts")
	if err == nil {
		t.Fatalf("expected InvalidLocalImport error, got nil")
	}
	ge, ok := err.(*GraphError)
	if !ok || ge.Kind != InvalidLocalImport {
		t.Fatalf("expected InvalidLocalImport, got %v", err)
	}
}

func TestGraphResolvePrefersTypesOverCode(t *testing.T) {
	h := newFixtureHandler()
	h.add("file:///a.ts", "// @deno-types=\"./a.d.ts\"\nimport { b } from \"./b.js\";\n")
	h.add("file:///b.js", "export const b = 1;\n")
	h.add("file:///a.d.ts", "export declare const b: number;\n")

	b := NewBuilder(h, parser.NewEsbuildParser(), nil)
	if err := b.Insert("file:///a.ts"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	g, _ := b.GetGraph(nil)

	resolved, err := g.Resolve("file:///a.ts", "./b.js")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved != "file:///a.d.ts" {
		t.Fatalf("expected @deno-types pragma to win, got %s", resolved)
	}
}

func TestGraphLockDetectsMismatch(t *testing.T) {
	h := newFixtureHandler()
	h.add("file:///a.ts", "export const a = 1;\n")

	b := NewBuilder(h, parser.NewEsbuildParser(), nil)
	if err := b.Insert("file:///a.ts"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	lf := lockfile.New()
	lf.CheckOrInsert("file:///a.ts", "export const a = 999;\n")

	g, err := b.GetGraph(lf)
	if err == nil {
		t.Fatalf("expected lock mismatch error, got nil, graph=%v", g)
	}
	ge, ok := err.(*GraphError)
	if !ok || ge.Kind != InvalidSource {
		t.Fatalf("expected InvalidSource, got %v", err)
	}
}
