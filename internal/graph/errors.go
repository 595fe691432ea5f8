package graph

import (
	"fmt"

	"github.com/hostedat/vgraph/internal/specifier"
)

// ErrorKind enumerates the closed set of graph-construction failures:
// downgraded/cross-scheme imports, missing specifiers and dependencies,
// and lock mismatches.
type ErrorKind int

const (
	InvalidDowngrade ErrorKind = iota
	InvalidLocalImport
	InvalidSpecifier
	InvalidSource
	MissingDependency
	MissingSpecifier
	ModuleNotFound
	NotSupported
)

// Location pinpoints where an offending import appears.
type Location struct {
	Specifier specifier.Specifier
	Line      int
	Col       int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Specifier, l.Line, l.Col)
}

// GraphError is the single error type returned by every graph operation
// that can fail for a domain (as opposed to I/O) reason.
type GraphError struct {
	Kind         ErrorKind
	Specifier    specifier.Specifier
	Importing    specifier.Specifier
	At           Location
	Detail       string
	LockfilePath string
}

func (e *GraphError) Error() string {
	switch e.Kind {
	case InvalidDowngrade:
		return fmt.Sprintf("Modules imported via https are not allowed to import http modules.\n  Importing: %s\n    at %s", e.Importing, e.At)
	case InvalidLocalImport:
		return fmt.Sprintf("Remote modules are not allowed to import local modules. Consider using a dynamic import instead.\n  Importing: %s\n    at %s", e.Importing, e.At)
	case InvalidSpecifier:
		return fmt.Sprintf("Invalid specifier %q: %s", e.Specifier, e.Detail)
	case InvalidSource:
		if e.LockfilePath != "" {
			return fmt.Sprintf("The source code is invalid, as it does not match the expected hash in the lock file.\n  Specifier: %s\n  Lock file: %s", e.Specifier, e.LockfilePath)
		}
		return fmt.Sprintf("The source code is invalid, as it does not match the expected hash in the lock file.\n  Specifier: %s", e.Specifier)
	case MissingDependency:
		return fmt.Sprintf("Missing dependency %q in module %q", e.Importing, e.Specifier)
	case MissingSpecifier:
		return fmt.Sprintf("Module not found %q", e.Specifier)
	case ModuleNotFound:
		return fmt.Sprintf("Module not found %q", e.Specifier)
	case NotSupported:
		return fmt.Sprintf("Not supported: %s", e.Detail)
	default:
		return "unknown graph error"
	}
}

func errInvalidDowngrade(importing specifier.Specifier, at Location) error {
	return &GraphError{Kind: InvalidDowngrade, Importing: importing, At: at}
}

func errInvalidLocalImport(importing specifier.Specifier, at Location) error {
	return &GraphError{Kind: InvalidLocalImport, Importing: importing, At: at}
}

func errInvalidSpecifier(spec specifier.Specifier, detail string) error {
	return &GraphError{Kind: InvalidSpecifier, Specifier: spec, Detail: detail}
}

func errInvalidSource(spec specifier.Specifier, lockfilePath string) error {
	return &GraphError{Kind: InvalidSource, Specifier: spec, LockfilePath: lockfilePath}
}

func errMissingDependency(moduleSpec specifier.Specifier, raw specifier.Specifier) error {
	return &GraphError{Kind: MissingDependency, Specifier: moduleSpec, Importing: raw}
}

func errMissingSpecifier(spec specifier.Specifier) error {
	return &GraphError{Kind: MissingSpecifier, Specifier: spec}
}

func errModuleNotFound(spec specifier.Specifier) error {
	return &GraphError{Kind: ModuleNotFound, Specifier: spec}
}

func errNotSupported(detail string) error {
	return &GraphError{Kind: NotSupported, Detail: detail}
}
