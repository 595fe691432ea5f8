package handler

import (
	"path/filepath"
	"testing"

	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/specifier"
)

func TestSQLiteHandlerFetchFallsThroughOnMissThenHitsCache(t *testing.T) {
	spec := specifier.Specifier("file:///a.ts")
	next := NewMemoryHandler(Fixture{
		Specifier: spec,
		MediaType: specifier.TypeScript,
		Source:    "export const a = 1;\n",
	})

	db := filepath.Join(t.TempDir(), "cache.sqlite")
	h, err := NewSQLiteHandler(db, next)
	if err != nil {
		t.Fatalf("NewSQLiteHandler: %v", err)
	}

	cached, err := h.Fetch(spec)
	if err != nil {
		t.Fatalf("Fetch (miss): %v", err)
	}
	if cached.Source != "export const a = 1;\n" {
		t.Errorf("Source = %q, want fixture source", cached.Source)
	}
	if len(next.FetchCalls) != 1 {
		t.Fatalf("FetchCalls = %v, want one delegated fetch on a miss", next.FetchCalls)
	}

	cached, err = h.Fetch(spec)
	if err != nil {
		t.Fatalf("Fetch (hit): %v", err)
	}
	if cached.Source != "export const a = 1;\n" {
		t.Errorf("Source (cached) = %q, want fixture source", cached.Source)
	}
	if len(next.FetchCalls) != 1 {
		t.Errorf("FetchCalls = %v, want still one call (second Fetch should hit sqlite)", next.FetchCalls)
	}
}

func TestSQLiteHandlerRoundTripsDepsTypesAndEmits(t *testing.T) {
	spec := specifier.Specifier("file:///a.ts")
	depSpec := specifier.Specifier("file:///b.ts")
	typeSpec := specifier.Specifier("file:///a.d.ts")
	next := NewMemoryHandler(Fixture{Specifier: spec, MediaType: specifier.TypeScript, Source: "x"})

	db := filepath.Join(t.TempDir(), "cache.sqlite")
	h, err := NewSQLiteHandler(db, next)
	if err != nil {
		t.Fatalf("NewSQLiteHandler: %v", err)
	}

	if _, err := h.Fetch(spec); err != nil {
		t.Fatalf("Fetch (seed): %v", err)
	}

	deps := map[string]graph.Dependency{"./b.ts": {MaybeCode: &depSpec}}
	if err := h.SetDeps(spec, deps); err != nil {
		t.Fatalf("SetDeps: %v", err)
	}
	if err := h.SetTypes(spec, typeSpec); err != nil {
		t.Fatalf("SetTypes: %v", err)
	}
	if err := h.SetCache(spec, graph.EmitCLI, graph.Emit{Code: "var a=1;"}); err != nil {
		t.Fatalf("SetCache: %v", err)
	}
	if err := h.SetBuildInfo(spec, graph.EmitCLI, `{"root":true}`); err != nil {
		t.Fatalf("SetBuildInfo: %v", err)
	}

	cached, err := h.Fetch(spec)
	if err != nil {
		t.Fatalf("Fetch (after writes): %v", err)
	}
	if cached.MaybeDependencies == nil || cached.MaybeDependencies["./b.ts"].MaybeCode == nil {
		t.Fatalf("MaybeDependencies not round-tripped: %+v", cached.MaybeDependencies)
	}
	if *cached.MaybeDependencies["./b.ts"].MaybeCode != depSpec {
		t.Errorf("dependency specifier = %s, want %s", *cached.MaybeDependencies["./b.ts"].MaybeCode, depSpec)
	}
	if cached.MaybeTypes == nil || *cached.MaybeTypes != typeSpec {
		t.Errorf("MaybeTypes = %v, want %s", cached.MaybeTypes, typeSpec)
	}
	if emit, ok := cached.Emits[graph.EmitCLI]; !ok || emit.Code != "var a=1;" {
		t.Errorf("Emits[EmitCLI] = %+v, want cached emit", cached.Emits[graph.EmitCLI])
	}
}

func TestSQLiteHandlerPersistsAcrossReopens(t *testing.T) {
	spec := specifier.Specifier("file:///a.ts")
	next := NewMemoryHandler(Fixture{Specifier: spec, MediaType: specifier.TypeScript, Source: "export const a = 1;\n"})

	db := filepath.Join(t.TempDir(), "cache.sqlite")
	h, err := NewSQLiteHandler(db, next)
	if err != nil {
		t.Fatalf("NewSQLiteHandler: %v", err)
	}
	if _, err := h.Fetch(spec); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	reopened, err := NewSQLiteHandler(db, NewMemoryHandler())
	if err != nil {
		t.Fatalf("NewSQLiteHandler (reopen): %v", err)
	}
	cached, err := reopened.Fetch(spec)
	if err != nil {
		t.Fatalf("Fetch (reopened): %v", err)
	}
	if cached.Source != "export const a = 1;\n" {
		t.Errorf("Source (reopened) = %q, want persisted source", cached.Source)
	}
}
