// Package emitter implements the Graph's transpile pass: compiler-option
// merging, per-module eligibility gating, and flushing emitted artifacts
// back through a SpecifierHandler.
package emitter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/parser"
	"github.com/hostedat/vgraph/internal/specifier"
)

// CompilerOptions is the subset of tsconfig.json compilerOptions the
// Emitter understands.
type CompilerOptions struct {
	CheckJS                bool   `json:"checkJs"`
	EmitDecoratorMetadata  bool   `json:"emitDecoratorMetadata"`
	JSX                    string `json:"jsx"` // "react" or "preserve"
	JSXFactory             string `json:"jsxFactory"`
	JSXFragmentFactory     string `json:"jsxFragmentFactory"`
}

// defaultCompilerOptions mirrors the reference transpile pass's built-in
// defaults, merged underneath whatever the caller supplies.
func defaultCompilerOptions() CompilerOptions {
	return CompilerOptions{
		CheckJS:            false,
		JSX:                "react",
		JSXFactory:         "React.createElement",
		JSXFragmentFactory: "React.Fragment",
	}
}

// merge overlays user-supplied fields (by raw JSON) onto the defaults,
// recording which top-level keys were present in user but had no effect
// on actual transpile behavior.
func merge(userJSON json.RawMessage) (CompilerOptions, []string, error) {
	opts := defaultCompilerOptions()
	if len(userJSON) == 0 {
		return opts, nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(userJSON, &raw); err != nil {
		return opts, nil, fmt.Errorf("emitter: parsing compiler options: %w", err)
	}

	known := map[string]bool{
		"checkJs": true, "emitDecoratorMetadata": true, "jsx": true,
		"jsxFactory": true, "jsxFragmentFactory": true,
	}

	var ignored []string
	for k := range raw {
		if !known[k] {
			ignored = append(ignored, k)
		}
	}

	if err := json.Unmarshal(userJSON, &opts); err != nil {
		return opts, nil, fmt.Errorf("emitter: applying compiler options: %w", err)
	}
	return opts, ignored, nil
}

// Stats reports named timing/count figures from a transpile pass, in
// insertion order, preserving field order instead of using a map.
type Stats struct {
	entries []statEntry
}

type statEntry struct {
	Name  string
	Value int64
}

func (s *Stats) add(name string, value int64) {
	s.entries = append(s.entries, statEntry{name, value})
}

func (s *Stats) String() string {
	out := ""
	for i, e := range s.entries {
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("%s: %d", e.Name, e.Value)
	}
	return out
}

// Get returns the value recorded under name, if any.
func (s *Stats) Get(name string) (int64, bool) {
	for _, e := range s.entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

// Emitter owns a Parser for transpiling eligible modules and a
// SpecifierHandler for persisting the result.
type Emitter struct {
	parser  parser.Parser
	handler graph.SpecifierHandler
}

func New(p parser.Parser, h graph.SpecifierHandler) *Emitter {
	return &Emitter{parser: p, handler: h}
}

// Transpile runs the transpile pass over every eligible module in g for
// emitType, merging userConfig over the defaults, skipping modules that
// are ineligible, and flushing dirty results through the handler when
// done.
func (e *Emitter) Transpile(g *graph.Graph, emitType graph.EmitType, userConfig json.RawMessage) (Stats, []string, error) {
	start := time.Now()
	opts, ignored, err := merge(userConfig)
	if err != nil {
		return Stats{}, nil, err
	}

	var filesEmitted int64
	for spec, mod := range g.Modules {
		if !eligible(mod, emitType, opts) {
			continue
		}
		if _, already := mod.Emits[emitType]; already {
			continue
		}

		parsed, err := e.parser.Parse(spec, mod.Source, mod.MediaType)
		if err != nil {
			return Stats{}, nil, fmt.Errorf("emitter: parsing %s: %w", spec, err)
		}

		emit, err := parsed.Transpile(parser.TranspileOptions{
			EmitDecoratorMetadata: opts.EmitDecoratorMetadata,
			InlineSourceMap:       true,
			JSXFactory:            opts.JSXFactory,
			JSXFragmentFactory:    opts.JSXFragmentFactory,
			TransformJSX:          opts.JSX == "react",
		})
		if err != nil {
			return Stats{}, nil, fmt.Errorf("emitter: transpiling %s: %w", spec, err)
		}

		mod.Emits[emitType] = graph.Emit{Code: emit.Code, Map: emit.Map}
		mod.IsDirty = true
		filesEmitted++
	}

	if err := g.Flush(e.handler, emitType); err != nil {
		return Stats{}, nil, err
	}

	var stats Stats
	stats.add("Files", int64(len(g.Modules)))
	stats.add("Emitted", filesEmitted)
	stats.add("Total time", time.Since(start).Milliseconds())
	return stats, ignored, nil
}

// eligible reports whether mod should be transpiled for emitType: never
// for a .d.ts-family module, never if it's not a TS/TSX/JS family media
// type, and JavaScript-family modules only participate when checkJs is
// set.
func eligible(mod *graph.Module, emitType graph.EmitType, opts CompilerOptions) bool {
	switch mod.MediaType {
	case specifier.Dts, specifier.Dmts, specifier.Dcts, specifier.Json, specifier.Wasm, specifier.Unknown:
		return false
	}
	if mod.MediaType.TranspilesToJS() {
		return true
	}
	if mod.MediaType.IsJavaScriptFamily() {
		return opts.CheckJS
	}
	return false
}
