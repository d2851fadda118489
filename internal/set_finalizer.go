package internal

import (
	"runtime"
)

// SetFinalizer attaches a last-resort cleanup callback to obj. It is a
// safety net for leaked guards and tokens, never the primary release
// path.
func SetFinalizer[T any](
	obj T,
	callback func(in T),
) {
	runtime.SetFinalizer(obj, callback)
}
