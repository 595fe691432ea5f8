package loader

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/handler"
	"github.com/hostedat/vgraph/internal/parser"
	"github.com/hostedat/vgraph/internal/specifier"
)

func buildGraph(t *testing.T, root specifier.Specifier, h graph.SpecifierHandler) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder(h, parser.NewEsbuildParser(), nil)
	if err := b.Insert(string(root)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	g, err := b.GetGraph(nil)
	if err != nil {
		t.Fatalf("GetGraph: %v", err)
	}
	return g
}

func TestAssembleWiresDependencyThroughRequireShim(t *testing.T) {
	root := specifier.Specifier("file:///a.js")
	h := handler.NewMemoryHandler(
		handler.Fixture{Specifier: root, MediaType: specifier.JavaScript, Source: "import { greeting } from \"./b.js\";\nconsole.log(greeting);\n"},
		handler.Fixture{Specifier: "file:///b.js", MediaType: specifier.JavaScript, Source: "export const greeting = \"hello from b\";\n"},
	)
	g := buildGraph(t, root, h)

	l := New(g, Config{})
	out, err := l.Assemble(root, "__vgraph_module__")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(out, "hello from b") {
		t.Errorf("assembled script missing dependency source, got:\n%s", out)
	}
	if !strings.Contains(out, "__vrequire__") {
		t.Errorf("assembled script missing the require shim, got:\n%s", out)
	}
}

func TestAssemblePrefersEmittedCodeOverRawSource(t *testing.T) {
	root := specifier.Specifier("file:///a.ts")
	h := handler.NewMemoryHandler(
		handler.Fixture{Specifier: root, MediaType: specifier.TypeScript, Source: "const n: number = 1;\nconsole.log(n);\n"},
	)
	g := buildGraph(t, root, h)
	g.Modules[root].Emits[graph.EmitCLI] = graph.Emit{Code: "console.log(\"transpiled marker\");\n"}

	l := New(g, Config{EmitType: graph.EmitCLI})
	out, err := l.Assemble(root, "g")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(out, "transpiled marker") {
		t.Errorf("assembled script did not use the cached emit, got:\n%s", out)
	}
	if strings.Contains(out, "n: number") {
		t.Errorf("assembled script leaked raw TypeScript source instead of the emit, got:\n%s", out)
	}
}

func TestAssembleRejectsUnknownRoot(t *testing.T) {
	g := &graph.Graph{Modules: map[specifier.Specifier]*graph.Module{}}
	l := New(g, Config{})
	if _, err := l.Assemble(specifier.Specifier("file:///missing.ts"), "g"); err == nil {
		t.Fatal("expected error for a root absent from the graph")
	}
}

func TestLoadDataURL(t *testing.T) {
	l := New(&graph.Graph{Modules: map[specifier.Specifier]*graph.Module{}}, Config{})

	src, err := l.Load(specifier.Specifier("data:text/javascript,console.log(1)"), nil, false, RequestedAuto)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Code != "console.log(1)" {
		t.Errorf("Code = %q, want decoded payload", src.Code)
	}
	if src.Kind != KindEsm {
		t.Errorf("Kind = %v, want KindEsm", src.Kind)
	}
}

func TestLoadDataURLBase64(t *testing.T) {
	l := New(&graph.Graph{Modules: map[specifier.Specifier]*graph.Module{}}, Config{})

	// base64 of `export const a = 1;`
	src, err := l.Load(specifier.Specifier("data:application/javascript;base64,ZXhwb3J0IGNvbnN0IGEgPSAxOw=="), nil, false, RequestedAuto)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Code != "export const a = 1;" {
		t.Errorf("Code = %q, want decoded base64 payload", src.Code)
	}
}

func TestLoadDataURLJSON(t *testing.T) {
	l := New(&graph.Graph{Modules: map[specifier.Specifier]*graph.Module{}}, Config{})

	src, err := l.Load(specifier.Specifier("data:application/json,%7B%22a%22%3A1%7D"), nil, false, RequestedAuto)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Kind != KindJson {
		t.Errorf("Kind = %v, want KindJson", src.Kind)
	}
	if src.Code != `{"a":1}` {
		t.Errorf("Code = %q, want decoded JSON payload", src.Code)
	}
}

func TestLoadModuleNotFound(t *testing.T) {
	l := New(&graph.Graph{Modules: map[specifier.Specifier]*graph.Module{}}, Config{})
	if _, err := l.Load(specifier.Specifier("file:///missing.js"), nil, false, RequestedAuto); err == nil {
		t.Fatal("expected ModuleNotFound error")
	}
}

func TestLoadTranslatesCJSWhenTrackerFlagsIt(t *testing.T) {
	root := specifier.Specifier("file:///a.cjs")
	h := handler.NewMemoryHandler(
		handler.Fixture{Specifier: root, MediaType: specifier.Cjs, Source: "module.exports = 1;\n"},
	)
	g := buildGraph(t, root, h)

	l := New(g, Config{CJSTracker: alwaysCJS{}, CJSTrans: upperCaseTranslator{}})
	src, err := l.Load(root, nil, false, RequestedAuto)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Kind != KindCjs {
		t.Errorf("Kind = %v, want KindCjs", src.Kind)
	}
	if src.Code != "MODULE.EXPORTS = 1;\n" {
		t.Errorf("Code = %q, want translated source", src.Code)
	}
}

func TestCodeCacheRoundTrip(t *testing.T) {
	root := specifier.Specifier("file:///a.js")
	h := handler.NewMemoryHandler(
		handler.Fixture{Specifier: root, MediaType: specifier.JavaScript, Source: "console.log(1);\n"},
	)
	g := buildGraph(t, root, h)

	cache := NewMemoryCodeCache()
	l := New(g, Config{Cache: cache})

	first, err := l.Load(root, nil, false, RequestedAuto)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if first.CachedData != nil {
		t.Fatalf("CachedData = %v, want nil before any CodeCacheReady", first.CachedData)
	}

	l.CodeCacheReady(root, first.Code, []byte("compiled-bytes"))

	second, err := l.Load(root, nil, false, RequestedAuto)
	if err != nil {
		t.Fatalf("Load (after cache ready): %v", err)
	}
	if string(second.CachedData) != "compiled-bytes" {
		t.Errorf("CachedData = %q, want %q", second.CachedData, "compiled-bytes")
	}
}

func TestGetSourceMappedSourceLine(t *testing.T) {
	root := specifier.Specifier("file:///a.js")
	h := handler.NewMemoryHandler(
		handler.Fixture{Specifier: root, MediaType: specifier.JavaScript, Source: "line0\nline1\nline2"},
	)
	g := buildGraph(t, root, h)
	l := New(g, Config{})

	if got := l.GetSourceMappedSourceLine(root, 1); got != "line1" {
		t.Errorf("GetSourceMappedSourceLine(1) = %q, want %q", got, "line1")
	}
	if got := l.GetSourceMappedSourceLine(root, 99); !strings.Contains(got, "out of range") {
		t.Errorf("GetSourceMappedSourceLine(99) = %q, want a bounded warning", got)
	}
}

func TestResolveDelegatesToNodeResolverInsideNpmPackage(t *testing.T) {
	fake := &fakeNodeResolver{inNpm: true, result: specifier.Specifier("file:///node_modules/left-pad/index.js")}
	l := New(&graph.Graph{Modules: map[specifier.Specifier]*graph.Module{}}, Config{Node: fake})

	resolved, err := l.Resolve("left-pad", specifier.Specifier("file:///node_modules/pkg/index.js"), ResolutionRequire)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved != fake.result {
		t.Errorf("Resolve = %s, want %s", resolved, fake.result)
	}
	if !fake.called {
		t.Error("expected ResolveRequire to be called once referrer is inside an npm package")
	}
}

func TestResolvePackageJSONFileSpecifierIsUnsupported(t *testing.T) {
	ws := fakeWorkspaceResolver{res: &WorkspaceResolution{Kind: WorkspacePackageJSON, DepKind: PackageJSONDepFile}}
	l := New(&graph.Graph{Modules: map[specifier.Specifier]*graph.Module{}}, Config{Workspace: ws})

	_, err := l.Resolve("./local", specifier.Specifier("file:///a.js"), ResolutionImport)
	if err == nil {
		t.Fatal("expected an UnsupportedPackageJSONFileSpecifier error")
	}
	lerr, ok := err.(*LoaderError)
	if !ok || lerr.Kind != UnsupportedPackageJSONFileSpecifier {
		t.Errorf("err = %v, want a LoaderError with Kind UnsupportedPackageJSONFileSpecifier", err)
	}
}

func TestResolvePackageJSONReqDelegatesToNpmReqResolver(t *testing.T) {
	ws := fakeWorkspaceResolver{res: &WorkspaceResolution{Kind: WorkspacePackageJSON, DepKind: PackageJSONDepReq, Req: "left-pad@^1.0.0", Subpath: ""}}
	npmReq := &fakeNpmReqResolver{result: specifier.Specifier("npm:/left-pad@1.3.0/index.js")}
	l := New(&graph.Graph{Modules: map[specifier.Specifier]*graph.Module{}}, Config{Workspace: ws, NpmReq: npmReq})

	resolved, err := l.Resolve("left-pad", specifier.Specifier("file:///a.js"), ResolutionImport)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved != npmReq.result {
		t.Errorf("Resolve = %s, want %s", resolved, npmReq.result)
	}
	if npmReq.req != "left-pad@^1.0.0" {
		t.Errorf("ResolveReq called with req=%q, want %q", npmReq.req, "left-pad@^1.0.0")
	}
}

func TestSplitNpmSpecifier(t *testing.T) {
	cases := []struct {
		in         specifier.Specifier
		wantReq    string
		wantSubpth string
	}{
		{"npm:left-pad@1.3.0", "left-pad@1.3.0", ""},
		{"npm:left-pad@1.3.0/lib/index.js", "left-pad@1.3.0", "lib/index.js"},
		{"npm:@scope/pkg@1.0.0/sub", "@scope/pkg@1.0.0", "sub"},
		{"npm:@scope/pkg@1.0.0", "@scope/pkg@1.0.0", ""},
	}
	for _, c := range cases {
		req, sub := splitNpmSpecifier(c.in)
		if req != c.wantReq || sub != c.wantSubpth {
			t.Errorf("splitNpmSpecifier(%s) = (%q, %q), want (%q, %q)", c.in, req, sub, c.wantReq, c.wantSubpth)
		}
	}
}

type alwaysCJS struct{}

func (alwaysCJS) IsMaybeCJS(specifier.Specifier, specifier.MediaType) bool { return true }

type upperCaseTranslator struct{}

func (upperCaseTranslator) Translate(_ specifier.Specifier, source string) (string, error) {
	return strings.ToUpper(source), nil
}

type fakeNodeResolver struct {
	inNpm  bool
	result specifier.Specifier
	called bool
}

func (f *fakeNodeResolver) ResolveRequire(raw, referrerDir string, mode ResolutionKind) (specifier.Specifier, error) {
	f.called = true
	return f.result, nil
}
func (f *fakeNodeResolver) IsInNpmPackage(specifier.Specifier) bool { return f.inNpm }
func (f *fakeNodeResolver) IsCJS(specifier.Specifier) bool          { return false }

type fakeWorkspaceResolver struct {
	res *WorkspaceResolution
}

func (f fakeWorkspaceResolver) Resolve(raw string, referrer specifier.Specifier) (*WorkspaceResolution, error) {
	if f.res == nil {
		return nil, fmt.Errorf("no resolution configured")
	}
	return f.res, nil
}

type fakeNpmReqResolver struct {
	req      string
	subpath  string
	result   specifier.Specifier
}

func (f *fakeNpmReqResolver) ResolveReq(req, subpath string) (specifier.Specifier, error) {
	f.req, f.subpath = req, subpath
	return f.result, nil
}
