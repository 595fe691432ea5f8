package loader

import (
	"fmt"

	"github.com/hostedat/vgraph/internal/specifier"
)

// ErrorKind classifies a LoaderError the way the graph package's
// GraphError.Kind classifies resolution/parse failures.
type ErrorKind int

const (
	ModuleNotFound ErrorKind = iota
	UnsupportedPackageJSONFileSpecifier
	NotSupported
)

// LoaderError is returned by Resolve/Load for conditions the standalone
// loader's decision tree names explicitly, as opposed to a collaborator's
// own wrapped error.
type LoaderError struct {
	Kind      ErrorKind
	Specifier specifier.Specifier
	Detail    string
}

func (e *LoaderError) Error() string {
	switch e.Kind {
	case UnsupportedPackageJSONFileSpecifier:
		return fmt.Sprintf("package.json \"file:\" specifiers are not supported: %s", e.Specifier)
	case NotSupported:
		return fmt.Sprintf("loader: %s is not supported: %s", e.Detail, e.Specifier)
	default:
		return fmt.Sprintf("loader: module not found: %s", e.Specifier)
	}
}

func errModuleNotFound(spec specifier.Specifier) error {
	return &LoaderError{Kind: ModuleNotFound, Specifier: spec}
}

func errUnsupportedPackageJSONFileSpecifier(spec specifier.Specifier) error {
	return &LoaderError{Kind: UnsupportedPackageJSONFileSpecifier, Specifier: spec}
}

func errNotSupported(spec specifier.Specifier, detail string) error {
	return &LoaderError{Kind: NotSupported, Specifier: spec, Detail: detail}
}
