package core

// GraphEngine is the interface a JS backend (QuickJS, V8) implements to
// evaluate a built module graph's emitted code. The root Builder façade
// delegates to one of these based on build tags (v8engine requires the
// "v8" build tag; quickjs is the default).
type GraphEngine interface {
	// Evaluate takes a runtime from root's pool and returns the result of
	// the assembled bundle (root and everything it transitively imports),
	// which each pooled runtime runs once when it is created, together with
	// the console lines not yet drained from that runtime.
	Evaluate(root string) (*EvalResult, error)

	// EnsureCompiled makes sure root's graph has been built and
	// transpiled at least once, populating the handler's cache.
	EnsureCompiled(root string) error

	// InvalidateCache discards any pooled runtime state for root so the
	// next Evaluate rebuilds from source.
	InvalidateCache(root string)

	Shutdown()
}

// EvalResult is the outcome of one Evaluate call.
type EvalResult struct {
	Output       string
	ConsoleLines []string
	Err          error
}
