// Package ndi is the zero-copy frame lifetime and asynchronous
// buffer-safety layer around an NDI®-style media transport engine.
//
// The engine itself (frame capture, network transmission, clocking) is
// opaque and is consumed through the narrow contracts in package
// transport. This module guarantees that:
//   - every buffer the engine hands out is released back to it exactly
//     once, on every exit path (package recv);
//   - application code can read multi-megabyte frames without copying
//     them, and cannot read them after the engine reclaimed them
//     (package recv);
//   - a buffer handed to an asynchronous send cannot be mutated or
//     reused until the send token is consumed (package send).
//
// Package ndi itself only carries the error kinds shared by the
// subpackages.
package ndi
