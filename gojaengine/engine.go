// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package gojaengine adapts the Goja JavaScript runtime to the host's engine
// contract and binds the browser-style globals (timers, animation frames,
// microtasks, async file and network access, console, require) into it.
package gojaengine

import (
	"fmt"
	"path"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-apphost/bundle"
	"github.com/joeycumines/go-apphost/host"
)

// Engine wraps a Goja runtime behind the host's engine contract. Not safe
// for concurrent use; the host guarantees single-threaded access.
type Engine struct {
	runtime *goja.Runtime
	vfs     *bundle.VFS
	modules map[string]goja.Value
}

var _ host.Engine = (*Engine)(nil)

// New creates an engine around a fresh Goja runtime.
func New() *Engine {
	return &Engine{
		runtime: goja.New(),
		modules: make(map[string]goja.Value),
	}
}

// Runtime returns the underlying Goja runtime.
func (e *Engine) Runtime() *goja.Runtime {
	return e.runtime
}

// Eval compiles and runs source under the given script name. Script
// exceptions come back as *goja.Exception errors.
func (e *Engine) Eval(src, name string) (any, error) {
	v, err := e.runtime.RunScript(name, src)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Call invokes a function value. Arguments are marshaled per the host's
// conventions: nil to null, errors to Error objects, byte slices to
// ArrayBuffers, everything else through Goja's standard mapping.
func (e *Engine) Call(fn any, args ...any) (any, error) {
	v, ok := fn.(goja.Value)
	if !ok {
		return nil, fmt.Errorf("gojaengine: not an engine value: %T", fn)
	}
	callable, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("gojaengine: value is not callable")
	}

	gargs := make([]goja.Value, len(args))
	for i, a := range args {
		gargs[i] = e.toValue(a)
	}

	res, err := callable(goja.Undefined(), gargs...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) toValue(a any) goja.Value {
	switch v := a.(type) {
	case nil:
		return goja.Null()
	case goja.Value:
		return v
	case error:
		return e.runtime.NewGoError(v)
	case []byte:
		return e.runtime.ToValue(e.runtime.NewArrayBuffer(v))
	default:
		return e.runtime.ToValue(a)
	}
}

// DrainMicrotasks is a no-op: Goja runs its promise job queue to completion
// at every re-entry boundary, so by the time a Call or Eval returns the
// engine-internal microtask queue is already empty.
func (e *Engine) DrainMicrotasks() error {
	return nil
}

// ClearModuleCache empties the require cache so a reload re-executes module
// loading from the entry script.
func (e *Engine) ClearModuleCache() {
	clear(e.modules)
}

// Release drops the engine's references. The runtime itself is reclaimed by
// the garbage collector once nothing else holds it.
func (e *Engine) Release() {
	clear(e.modules)
	e.vfs = nil
}

// setVFS wires the filesystem used by require. Called by Adapter.Bind.
func (e *Engine) setVFS(v *bundle.VFS) {
	e.vfs = v
}

// requireModule loads a CommonJS-style module, caching by resolved path.
// Relative specifiers resolve against the requiring module's directory;
// bare specifiers resolve as given. A ".js" extension is appended when the
// specifier has none.
func (e *Engine) requireModule(spec, fromDir string) (goja.Value, error) {
	if e.vfs == nil {
		return nil, fmt.Errorf("gojaengine: require unavailable: no filesystem bound")
	}

	resolved := resolveSpecifier(spec, fromDir)
	if v, ok := e.modules[resolved]; ok {
		return v, nil
	}

	src, err := e.vfs.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("gojaengine: require %q: %w", spec, err)
	}

	wrapped := "(function(exports, module, require, __filename, __dirname) {\n" +
		string(src) + "\n})"
	wrapper, err := e.runtime.RunScript(resolved, wrapped)
	if err != nil {
		return nil, err
	}
	factory, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, fmt.Errorf("gojaengine: require %q: wrapper did not compile to a function", spec)
	}

	exports := e.runtime.NewObject()
	module := e.runtime.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}

	dir := path.Dir(resolved)
	requireFn := e.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		v, err := e.requireModule(call.Argument(0).String(), dir)
		if err != nil {
			panic(e.runtime.NewGoError(err))
		}
		return v
	})

	// Publish before executing so require cycles observe the partial
	// exports object rather than recursing forever.
	e.modules[resolved] = exports

	if _, err := factory(goja.Undefined(), exports, module, requireFn,
		e.runtime.ToValue(resolved), e.runtime.ToValue(dir)); err != nil {
		delete(e.modules, resolved)
		return nil, err
	}

	result := module.Get("exports")
	e.modules[resolved] = result
	return result, nil
}

// resolveSpecifier turns a require specifier into a VFS lookup path.
func resolveSpecifier(spec, fromDir string) string {
	p := spec
	if len(p) >= 2 && (p[:2] == "./" || (len(p) >= 3 && p[:3] == "../")) {
		p = path.Join(fromDir, p)
	}
	if path.Ext(p) == "" {
		p += ".js"
	}
	return p
}
