package host

// Engine is the script-engine collaborator contract. The host is the sole
// caller; every method runs on the loop thread, with the single exception of
// nothing at all — engine values never cross threads.
//
// Values exchanged through the interface are opaque to the host: it stores
// them in the handle table and passes them back verbatim. Argument marshaling
// (Go byte slices, errors, timestamps into engine values) is the engine's
// concern.
type Engine interface {
	// Eval compiles and runs source, returning the completion value. A
	// script exception is returned as an error, not thrown.
	Eval(src, name string) (any, error)

	// Call invokes a function value with the given arguments. Arguments
	// follow the host's conventions: a nil error argument marshals to the
	// engine's null.
	Call(fn any, args ...any) (any, error)

	// DrainMicrotasks runs the engine's internal microtask/job queue to
	// quiescence. Engines that drain implicitly at every re-entry boundary
	// may no-op.
	DrainMicrotasks() error

	// ClearModuleCache empties any module cache so a reload re-executes
	// module loading from the entry path.
	ClearModuleCache()

	// Release destroys the engine. Called exactly once, at the end of the
	// shutdown sequence, after the final garbage-collection passes.
	Release()
}

// Platform is the optional windowing/event-source collaborator. Pump is
// called once at the start of every tick; returning true requests shutdown.
// Its absence (a nil Platform) switches the loop to headless idle-drain
// termination but changes no ordering.
type Platform interface {
	Pump() (quit bool)
}
