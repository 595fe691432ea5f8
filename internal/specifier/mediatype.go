package specifier

import (
	"path"
	"strings"
)

// MediaType is a semantic language tag derived from a specifier's
// extension, with a distinguished .d.ts-family rule (stem ends with ".d").
type MediaType int

const (
	Unknown MediaType = iota
	TypeScript
	TSX
	JavaScript
	JSX
	Mjs
	Cjs
	Mts
	Cts
	Dts
	Dmts
	Dcts
	Json
	Wasm
	SourceMapType
	TsBuildInfo
)

func (m MediaType) String() string {
	switch m {
	case TypeScript:
		return "TypeScript"
	case TSX:
		return "TSX"
	case JavaScript:
		return "JavaScript"
	case JSX:
		return "JSX"
	case Mjs:
		return "Mjs"
	case Cjs:
		return "Cjs"
	case Mts:
		return "Mts"
	case Cts:
		return "Cts"
	case Dts:
		return "Dts"
	case Dmts:
		return "Dmts"
	case Dcts:
		return "Dcts"
	case Json:
		return "Json"
	case Wasm:
		return "Wasm"
	case SourceMapType:
		return "SourceMap"
	case TsBuildInfo:
		return "TsBuildInfo"
	default:
		return "Unknown"
	}
}

// DetectMediaType derives a MediaType from a specifier path's extension.
// The .d.ts/.d.mts/.d.cts families are distinguished by the file stem
// ending in ".d" ahead of the final extension.
func DetectMediaType(specifierPath string) MediaType {
	base := path.Base(specifierPath)
	ext := strings.ToLower(path.Ext(base))
	stem := strings.TrimSuffix(base, path.Ext(base))

	isDeclStem := strings.HasSuffix(stem, ".d")

	switch ext {
	case ".ts":
		if isDeclStem {
			return Dts
		}
		return TypeScript
	case ".tsx":
		return TSX
	case ".mts":
		if isDeclStem {
			return Dmts
		}
		return Mts
	case ".cts":
		if isDeclStem {
			return Dcts
		}
		return Cts
	case ".js":
		return JavaScript
	case ".jsx":
		return JSX
	case ".mjs":
		return Mjs
	case ".cjs":
		return Cjs
	case ".json":
		return Json
	case ".wasm":
		return Wasm
	case ".map":
		return SourceMapType
	case ".tsbuildinfo":
		return TsBuildInfo
	default:
		return Unknown
	}
}

// TranspilesToJS reports whether the media type is a TypeScript/JSX family
// member that the Emitter would ever transform to JavaScript.
func (m MediaType) TranspilesToJS() bool {
	switch m {
	case TypeScript, TSX, Mts, Cts:
		return true
	default:
		return false
	}
}

// IsJavaScriptFamily reports whether the media type is already plain
// JavaScript (no transpile needed unless checkJs is set).
func (m MediaType) IsJavaScriptFamily() bool {
	switch m {
	case JavaScript, JSX, Mjs, Cjs:
		return true
	default:
		return false
	}
}
