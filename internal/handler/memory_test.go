package handler

import (
	"testing"

	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/specifier"
)

func TestMemoryHandlerFetchRecordsCall(t *testing.T) {
	spec := specifier.Specifier("file:///a.ts")
	h := NewMemoryHandler(Fixture{
		Specifier: spec,
		MediaType: specifier.TypeScript,
		Source:    "export const a = 1;\n",
	})

	cached, err := h.Fetch(spec)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if cached.Source != "export const a = 1;\n" {
		t.Errorf("Source = %q, want fixture source", cached.Source)
	}
	if len(h.FetchCalls) != 1 || h.FetchCalls[0] != spec {
		t.Errorf("FetchCalls = %v, want [%s]", h.FetchCalls, spec)
	}
}

func TestMemoryHandlerFetchMissingFixture(t *testing.T) {
	h := NewMemoryHandler()
	if _, err := h.Fetch(specifier.Specifier("file:///missing.ts")); err == nil {
		t.Fatal("Fetch: expected error for unseeded specifier, got nil")
	}
}

func TestMemoryHandlerSetDepsSurfacesOnFetch(t *testing.T) {
	spec := specifier.Specifier("file:///a.ts")
	depSpec := specifier.Specifier("file:///b.ts")
	h := NewMemoryHandler(Fixture{Specifier: spec, MediaType: specifier.TypeScript, Source: "x"})

	deps := map[string]graph.Dependency{"./b.ts": {MaybeCode: &depSpec}}
	if err := h.SetDeps(spec, deps); err != nil {
		t.Fatalf("SetDeps: %v", err)
	}

	cached, err := h.Fetch(spec)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if cached.MaybeDependencies == nil || cached.MaybeDependencies["./b.ts"].MaybeCode == nil {
		t.Fatalf("MaybeDependencies not populated from SetDeps: %+v", cached.MaybeDependencies)
	}
	if len(h.DepsCalls) != 1 {
		t.Errorf("DepsCalls = %v, want one call", h.DepsCalls)
	}
}

func TestMemoryHandlerSetCacheAccumulatesEmitTypes(t *testing.T) {
	spec := specifier.Specifier("file:///a.ts")
	h := NewMemoryHandler(Fixture{Specifier: spec, MediaType: specifier.TypeScript, Source: "x"})

	if err := h.SetCache(spec, graph.EmitCLI, graph.Emit{Code: "var a=1;"}); err != nil {
		t.Fatalf("SetCache: %v", err)
	}
	if err := h.SetCache(spec, graph.EmitCheck, graph.Emit{Code: "var a=1;//check"}); err != nil {
		t.Fatalf("SetCache: %v", err)
	}

	cached, err := h.Fetch(spec)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(cached.Emits) != 2 {
		t.Errorf("Emits = %v, want two entries", cached.Emits)
	}
	if len(h.CacheCalls) != 2 {
		t.Errorf("CacheCalls = %v, want two calls", h.CacheCalls)
	}
}
