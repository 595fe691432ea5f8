// Package parser implements the Parser collaborator: leading-comment
// scanning for triple-slash references, syntactic import/export analysis,
// and transpilation.
//
// The grammars involved (triple-slash references, @deno-types pragmas) are
// small enough to hand-scan rather than require a full AST; the heavier
// lifting -- actually lowering TypeScript/JSX to JavaScript -- is
// delegated to esbuild's Transform API, the same entry point
// internal/loader uses for its own IIFE bundling.
package parser

import "github.com/hostedat/vgraph/internal/specifier"

// Comment is a single comment span extracted from source, with its text
// stripped of the leading comment marker (so a "///<reference.../>" line
// comment yields Text == "/<reference.../>", matching the
// triple-slash-reference grammar which expects exactly one leading slash).
type Comment struct {
	Text string
	Line int
	Col  int
}

// DependencyKind classifies a syntactic import/export/require descriptor.
type DependencyKind int

const (
	KindImport DependencyKind = iota
	KindExport
	KindImportType
	KindExportType
	KindDynamicImport
	KindRequire
)

func (k DependencyKind) String() string {
	switch k {
	case KindImport:
		return "Import"
	case KindExport:
		return "Export"
	case KindImportType:
		return "ImportType"
	case KindExportType:
		return "ExportType"
	case KindDynamicImport:
		return "DynamicImport"
	case KindRequire:
		return "Require"
	default:
		return "Unknown"
	}
}

// DependencyDescriptor is one syntactic import/export/require found by
// AnalyzeDependencies.
type DependencyDescriptor struct {
	Kind            DependencyKind
	Specifier       string
	Line            int
	Col             int
	LeadingComments []Comment
}

// TranspileOptions mirrors the subset of a tsconfig.json compilerOptions
// the Emitter supports.
type TranspileOptions struct {
	EmitDecoratorMetadata bool
	InlineSourceMap       bool
	JSXFactory            string
	JSXFragmentFactory    string
	TransformJSX           bool // true when jsx == "react"; false preserves JSX verbatim
}

// Emit is a transpiled artifact: code plus an optional out-of-band
// sourcemap. When InlineSourceMap is requested the map is already inlined
// into Code as a trailing data URL comment and Map is nil.
type Emit struct {
	Code string
	Map  *string
}

// ParsedModule is the result of Parse: a module ready to have its leading
// comments scanned, its dependencies analyzed, and (if eligible) its
// source transpiled.
type ParsedModule interface {
	GetLeadingComments() []Comment
	AnalyzeDependencies() []DependencyDescriptor
	Transpile(opts TranspileOptions) (Emit, error)
}

// Parser is the external collaborator consumed by graph.Module.Parse and
// emitter.Emitter.
type Parser interface {
	Parse(spec specifier.Specifier, sourceText string, mediaType specifier.MediaType) (ParsedModule, error)
}
