package emitter

import (
	"encoding/json"
	"testing"

	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/handler"
	"github.com/hostedat/vgraph/internal/parser"
	"github.com/hostedat/vgraph/internal/specifier"
)

func TestMergeDefaults(t *testing.T) {
	opts, ignored, err := merge(nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if opts.CheckJS || opts.JSX != "react" || opts.JSXFactory != "React.createElement" {
		t.Errorf("merge(nil) = %+v, want defaults", opts)
	}
	if len(ignored) != 0 {
		t.Errorf("ignored = %v, want none", ignored)
	}
}

func TestMergeOverridesKnownFields(t *testing.T) {
	opts, ignored, err := merge(json.RawMessage(`{"checkJs": true, "jsx": "preserve"}`))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !opts.CheckJS || opts.JSX != "preserve" {
		t.Errorf("merge override = %+v, want checkJs=true jsx=preserve", opts)
	}
	if len(ignored) != 0 {
		t.Errorf("ignored = %v, want none for known fields", ignored)
	}
}

func TestMergeReportsUnknownKeysAsIgnored(t *testing.T) {
	_, ignored, err := merge(json.RawMessage(`{"checkJs": true, "strict": true, "target": "es2020"}`))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	want := map[string]bool{"strict": true, "target": true}
	if len(ignored) != len(want) {
		t.Fatalf("ignored = %v, want %v", ignored, want)
	}
	for _, k := range ignored {
		if !want[k] {
			t.Errorf("unexpected ignored key %q", k)
		}
	}
}

func TestStatsPreservesInsertionOrder(t *testing.T) {
	var s Stats
	s.add("Files", 3)
	s.add("Emitted", 2)
	s.add("Total time", 5)

	want := "Files: 3\nEmitted: 2\nTotal time: 5"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if v, ok := s.Get("Emitted"); !ok || v != 2 {
		t.Errorf("Get(Emitted) = (%d, %v), want (2, true)", v, ok)
	}
	if _, ok := s.Get("Missing"); ok {
		t.Error("Get(Missing) = ok, want not found")
	}
}

func TestEligible(t *testing.T) {
	reactOpts := defaultCompilerOptions()
	checkJSOpts := reactOpts
	checkJSOpts.CheckJS = true

	cases := []struct {
		name      string
		mediaType specifier.MediaType
		opts      CompilerOptions
		want      bool
	}{
		{"dts excluded", specifier.Dts, reactOpts, false},
		{"json excluded", specifier.Json, reactOpts, false},
		{"wasm excluded", specifier.Wasm, reactOpts, false},
		{"unknown excluded", specifier.Unknown, reactOpts, false},
		{"typescript always eligible", specifier.TypeScript, reactOpts, true},
		{"tsx always eligible", specifier.TSX, reactOpts, true},
		{"javascript needs checkJs", specifier.JavaScript, reactOpts, false},
		{"javascript with checkJs", specifier.JavaScript, checkJSOpts, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			mod := &graph.Module{MediaType: c.mediaType}
			if got := eligible(mod, graph.EmitCLI, c.opts); got != c.want {
				t.Errorf("eligible(%s) = %v, want %v", c.mediaType, got, c.want)
			}
		})
	}
}

func TestTranspileEmitsEligibleModulesAndFlushes(t *testing.T) {
	root := specifier.Specifier("file:///a.ts")
	h := handler.NewMemoryHandler(handler.Fixture{
		Specifier: root,
		MediaType: specifier.TypeScript,
		Source:    "export const a: number = 1;\n",
	})

	g := &graph.Graph{
		Roots: []specifier.Specifier{root},
		Modules: map[specifier.Specifier]*graph.Module{
			root: graph.NewModule(root, nil),
		},
	}
	g.Modules[root].MediaType = specifier.TypeScript
	g.Modules[root].Source = "export const a: number = 1;\n"

	e := New(parser.NewEsbuildParser(), h)
	stats, ignored, err := e.Transpile(g, graph.EmitCLI, nil)
	if err != nil {
		t.Fatalf("Transpile: %v", err)
	}
	if len(ignored) != 0 {
		t.Errorf("ignored = %v, want none", ignored)
	}

	if v, ok := stats.Get("Files"); !ok || v != 1 {
		t.Errorf("Files = (%d, %v), want (1, true)", v, ok)
	}
	if v, ok := stats.Get("Emitted"); !ok || v != 1 {
		t.Errorf("Emitted = (%d, %v), want (1, true)", v, ok)
	}
	if _, ok := stats.Get("Total time"); !ok {
		t.Error("Total time missing from Stats")
	}

	mod := g.Modules[root]
	if _, ok := mod.Emits[graph.EmitCLI]; !ok {
		t.Fatal("module has no EmitCLI emit after Transpile")
	}
	if mod.IsDirty {
		t.Error("module still dirty after Flush ran inside Transpile")
	}
	if len(h.CacheCalls) != 1 {
		t.Errorf("CacheCalls = %v, want one call from Flush", h.CacheCalls)
	}
}

func TestTranspileSkipsAlreadyEmittedModules(t *testing.T) {
	root := specifier.Specifier("file:///a.ts")
	h := handler.NewMemoryHandler(handler.Fixture{
		Specifier: root,
		MediaType: specifier.TypeScript,
		Source:    "export const a = 1;\n",
	})

	mod := graph.NewModule(root, nil)
	mod.MediaType = specifier.TypeScript
	mod.Source = "export const a = 1;\n"
	mod.Emits[graph.EmitCLI] = graph.Emit{Code: "already emitted"}

	g := &graph.Graph{
		Roots:   []specifier.Specifier{root},
		Modules: map[specifier.Specifier]*graph.Module{root: mod},
	}

	e := New(parser.NewEsbuildParser(), h)
	stats, _, err := e.Transpile(g, graph.EmitCLI, nil)
	if err != nil {
		t.Fatalf("Transpile: %v", err)
	}
	if v, _ := stats.Get("Emitted"); v != 0 {
		t.Errorf("Emitted = %d, want 0 for an already-emitted module", v)
	}
	if mod.Emits[graph.EmitCLI].Code != "already emitted" {
		t.Error("pre-existing emit was overwritten")
	}
}
