// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gojaengine

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-apphost/host"
	"github.com/joeycumines/logiface"
)

// Adapter binds the host's scheduling and I/O surface into a Goja runtime as
// browser-style globals.
//
// After [Adapter.Bind], the following globals are available in JavaScript:
//
//   - setTimeout(callback, delay?) → timer id
//   - clearTimeout(id) → undefined
//   - setInterval(callback, delay?) → timer id
//   - clearInterval(id) → undefined
//   - requestAnimationFrame(callback) → frame id
//   - cancelAnimationFrame(id) → undefined
//   - queueMicrotask(callback) → undefined
//   - readFile(path, callback(data, err)) → undefined (data: ArrayBuffer)
//   - readTextFile(path, callback(text, err)) → undefined
//   - fetchBytes(url, callback(body, err)) → undefined (body: ArrayBuffer)
//   - console.log/info/warn/error/debug(...) → undefined
//   - require(specifier) → module exports
//
// Callbacks taking (result, err) receive null for whichever side is absent.
type Adapter struct {
	host    *host.Host
	engine  *Engine
	runtime *goja.Runtime
	log     *logiface.Logger[logiface.Event]
}

// NewAdapter creates an adapter for the given host and engine. A nil logger
// disables console and fault logging.
func NewAdapter(h *host.Host, e *Engine, log *logiface.Logger[logiface.Event]) (*Adapter, error) {
	if h == nil {
		return nil, fmt.Errorf("gojaengine: host cannot be nil")
	}
	if e == nil {
		return nil, fmt.Errorf("gojaengine: engine cannot be nil")
	}
	return &Adapter{host: h, engine: e, runtime: e.runtime, log: log}, nil
}

// Bind installs the globals into the runtime's global scope. Must be called
// before evaluating script that uses them.
func (a *Adapter) Bind() error {
	a.engine.setVFS(a.host.VFS())

	a.runtime.Set("setTimeout", a.setTimeout)
	a.runtime.Set("clearTimeout", a.clearTimeout)
	a.runtime.Set("setInterval", a.setInterval)
	a.runtime.Set("clearInterval", a.clearInterval)
	a.runtime.Set("requestAnimationFrame", a.requestAnimationFrame)
	a.runtime.Set("cancelAnimationFrame", a.cancelAnimationFrame)
	a.runtime.Set("queueMicrotask", a.queueMicrotask)
	a.runtime.Set("readFile", a.readFile)
	a.runtime.Set("readTextFile", a.readTextFile)
	a.runtime.Set("fetchBytes", a.fetchBytes)
	a.runtime.Set("require", a.require)

	return a.bindConsole()
}

// callback asserts that the given argument is callable, returning the raw
// value (which the host stores behind a handle) or panicking with a
// TypeError, matching browser behavior.
func (a *Adapter) callback(call goja.FunctionCall, i int, name string) goja.Value {
	fn := call.Argument(i)
	if _, ok := goja.AssertFunction(fn); !ok {
		panic(a.runtime.NewTypeError(name + " requires a function argument"))
	}
	return fn
}

func (a *Adapter) setTimeout(call goja.FunctionCall) goja.Value {
	fn := a.callback(call, 0, "setTimeout")

	delayMs := call.Argument(1).ToInteger()
	if delayMs < 0 {
		panic(a.runtime.NewTypeError("delay cannot be negative"))
	}

	id, err := a.host.SetTimer(fn, time.Duration(delayMs)*time.Millisecond, false)
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return a.runtime.ToValue(id)
}

func (a *Adapter) clearTimeout(call goja.FunctionCall) goja.Value {
	id := uint64(call.Argument(0).ToInteger())
	_ = a.host.ClearTimer(id) // unknown ids are ignored, matching browser behavior
	return goja.Undefined()
}

func (a *Adapter) setInterval(call goja.FunctionCall) goja.Value {
	fn := a.callback(call, 0, "setInterval")

	delayMs := call.Argument(1).ToInteger()
	if delayMs < 0 {
		panic(a.runtime.NewTypeError("delay cannot be negative"))
	}

	id, err := a.host.SetTimer(fn, time.Duration(delayMs)*time.Millisecond, true)
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return a.runtime.ToValue(id)
}

func (a *Adapter) clearInterval(call goja.FunctionCall) goja.Value {
	id := uint64(call.Argument(0).ToInteger())
	_ = a.host.ClearTimer(id)
	return goja.Undefined()
}

func (a *Adapter) requestAnimationFrame(call goja.FunctionCall) goja.Value {
	fn := a.callback(call, 0, "requestAnimationFrame")
	return a.runtime.ToValue(a.host.RequestAnimationFrame(fn))
}

func (a *Adapter) cancelAnimationFrame(call goja.FunctionCall) goja.Value {
	id := uint64(call.Argument(0).ToInteger())
	_ = a.host.CancelAnimationFrame(id)
	return goja.Undefined()
}

func (a *Adapter) queueMicrotask(call goja.FunctionCall) goja.Value {
	fn := a.callback(call, 0, "queueMicrotask")
	callable, _ := goja.AssertFunction(fn)

	a.host.QueueMicrotask(func() {
		if _, err := callable(goja.Undefined()); err != nil {
			a.log.Err().
				Err(err).
				Log("microtask failed")
		}
	})
	return goja.Undefined()
}

func (a *Adapter) readFile(call goja.FunctionCall) goja.Value {
	path := call.Argument(0).String()
	fn := a.callback(call, 1, "readFile")

	if err := a.host.ReadFileAsync(path, fn); err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return goja.Undefined()
}

func (a *Adapter) readTextFile(call goja.FunctionCall) goja.Value {
	path := call.Argument(0).String()
	fn := a.callback(call, 1, "readTextFile")

	vfs := a.host.VFS()
	err := a.host.SubmitWork(host.WorkFile, func() (any, error) {
		b, err := vfs.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}, fn)
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return goja.Undefined()
}

func (a *Adapter) fetchBytes(call goja.FunctionCall) goja.Value {
	url := call.Argument(0).String()
	fn := a.callback(call, 1, "fetchBytes")

	if err := a.host.FetchAsync(url, fn); err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return goja.Undefined()
}

func (a *Adapter) require(call goja.FunctionCall) goja.Value {
	v, err := a.engine.requireModule(call.Argument(0).String(), ".")
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return v
}

// bindConsole installs a console object whose methods route through the
// structured logger.
func (a *Adapter) bindConsole() error {
	console := a.runtime.NewObject()

	install := func(name string, build func() *logiface.Builder[logiface.Event]) error {
		return console.Set(name, func(call goja.FunctionCall) goja.Value {
			build().
				Str("source", "console").
				Log(a.formatArgs(call))
			return goja.Undefined()
		})
	}

	if err := install("log", a.log.Info); err != nil {
		return err
	}
	if err := install("info", a.log.Info); err != nil {
		return err
	}
	if err := install("debug", a.log.Debug); err != nil {
		return err
	}
	if err := install("warn", a.log.Warning); err != nil {
		return err
	}
	if err := install("error", a.log.Err); err != nil {
		return err
	}

	return a.runtime.Set("console", console)
}

// formatArgs renders console arguments the way a terminal console would:
// space-separated string conversions.
func (a *Adapter) formatArgs(call goja.FunctionCall) string {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = arg.String()
	}
	return strings.Join(parts, " ")
}
