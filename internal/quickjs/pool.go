//go:build !v8

package quickjs

import (
	"fmt"
	"sync"

	"modernc.org/quickjs"
)

// qjsWorker is a single pre-warmed QuickJS VM in a root's pool. console
// accumulates whatever the bundle logged during its last run; Evaluate
// drains and clears it after each call.
type qjsWorker struct {
	vm      *quickjs.VM
	rt      *qjsRuntime
	console *consoleSink
	result  string
}

type consoleSink struct {
	mu    sync.Mutex
	lines []string
}

func (c *consoleSink) record(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *consoleSink) drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.lines
	c.lines = nil
	return lines
}

// qjsPool manages a fixed-size pool of identically-configured QuickJS
// workers for one root specifier's bundle.
type qjsPool struct {
	workers chan *qjsWorker
	size    int
	mu      sync.Mutex
}

func newQJSPool(size int, bundledScript string, memoryLimitMB int) (*qjsPool, error) {
	pool := &qjsPool{workers: make(chan *qjsWorker, size), size: size}
	for i := 0; i < size; i++ {
		w, err := newQJSWorker(bundledScript, memoryLimitMB)
		if err != nil {
			pool.dispose()
			return nil, fmt.Errorf("creating pool worker %d: %w", i, err)
		}
		pool.workers <- w
	}
	return pool, nil
}

func newQJSWorker(bundledScript string, memoryLimitMB int) (*qjsWorker, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if memoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(memoryLimitMB) * 1024 * 1024)
	}

	rt := &qjsRuntime{vm: vm}
	console := &consoleSink{}

	if err := rt.RegisterFunc("__vgraph_log", console.record); err != nil {
		vm.Close()
		return nil, fmt.Errorf("registering console bridge: %w", err)
	}
	if err := rt.Eval(consoleBridgeJS); err != nil {
		vm.Close()
		return nil, fmt.Errorf("installing console bridge: %w", err)
	}

	result, err := rt.EvalString(bundledScript)
	if err != nil {
		vm.Close()
		return nil, fmt.Errorf("running bundle: %w", err)
	}
	executePendingJobs(vm)

	return &qjsWorker{vm: vm, rt: rt, console: console, result: result}, nil
}

func (p *qjsPool) get() (*qjsWorker, error) {
	w, ok := <-p.workers
	if !ok {
		return nil, fmt.Errorf("worker pool is closed")
	}
	return w, nil
}

func (p *qjsPool) put(w *qjsWorker) {
	select {
	case p.workers <- w:
	default:
		w.vm.Close()
	}
}

func (p *qjsPool) dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case w := <-p.workers:
			w.vm.Close()
		default:
			return
		}
	}
}

const consoleBridgeJS = `
globalThis.console = {
	log: function() { __vgraph_log(Array.prototype.slice.call(arguments).join(' ')); },
	error: function() { __vgraph_log(Array.prototype.slice.call(arguments).join(' ')); },
	warn: function() { __vgraph_log(Array.prototype.slice.call(arguments).join(' ')); },
};
`
