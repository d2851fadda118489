// view.go implements the zero-copy read-only views over captured buffers.

package recv

import (
	"context"
	"slices"

	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/internal"
)

// viewCore is the part shared by all view kinds: the release guard and
// the generation of the receiver at capture time. A view is readable
// only while its guard has not run and the receiver is still on the
// same generation; any access outside that window panics
// deterministically instead of touching reclaimed memory.
type viewCore struct {
	guard *releaseGuard
	gen   uint64

	// ctx is the capture-time context, detached from cancellation; it
	// carries the logger for accessors and the finalizer.
	ctx context.Context
}

func (v *viewCore) mustBeAlive(ctx context.Context) {
	internal.Assert(ctx, !v.guard.isReleased(),
		"the view was accessed after its buffer was released")
	internal.Assert(ctx, !v.guard.receiver.closed.Load(),
		"the view was accessed after its receiver was closed")
	internal.Assert(ctx, v.gen == v.guard.receiver.generation.Load(),
		"the view outlived its capture window")
}

// IsReleased reports whether the underlying buffer was already returned
// to the engine.
func (v *viewCore) IsReleased() bool {
	return v.guard.isReleased()
}

// Close returns the buffer to the engine. Idempotent. After Close every
// data access panics.
func (v *viewCore) Close(ctx context.Context) error {
	v.guard.release(ctx)
	return nil
}

// VideoView is a zero-copy read-only view of a captured video frame.
// It is confined to the goroutine that captured it; convert with
// ToOwned before sharing.
type VideoView struct {
	viewCore
	info frame.VideoInfo
}

func (v *VideoView) Info() frame.VideoInfo {
	return v.info
}

// Bytes returns the engine-owned pixel data without copying.
func (v *VideoView) Bytes() []byte {
	v.mustBeAlive(v.ctx)
	return v.guard.handle.Data
}

// ToOwned copies the frame into an independently-owned value with no
// lifetime ties. Exactly one copy is performed.
func (v *VideoView) ToOwned(ctx context.Context) *frame.Video {
	v.mustBeAlive(ctx)
	return &frame.Video{
		Info: v.info,
		Data: slices.Clone(v.guard.handle.Data),
	}
}

// AudioView is a zero-copy read-only view of a captured audio frame.
type AudioView struct {
	viewCore
	info frame.AudioInfo
}

func (v *AudioView) Info() frame.AudioInfo {
	return v.info
}

// Bytes returns the engine-owned sample data (FLTp bytes) without
// copying.
func (v *AudioView) Bytes() []byte {
	v.mustBeAlive(v.ctx)
	return v.guard.handle.Data
}

func (v *AudioView) ToOwned(ctx context.Context) *frame.Audio {
	v.mustBeAlive(ctx)
	return &frame.Audio{
		Info: v.info,
		Data: slices.Clone(v.guard.handle.Data),
	}
}

// MetadataView is a zero-copy read-only view of a captured metadata
// frame.
type MetadataView struct {
	viewCore
	info frame.MetadataInfo
}

func (v *MetadataView) Timecode() int64 {
	return v.info.Timecode
}

// Bytes returns the engine-owned payload without copying.
func (v *MetadataView) Bytes() []byte {
	v.mustBeAlive(v.ctx)
	return v.guard.handle.Data
}

func (v *MetadataView) ToOwned(ctx context.Context) *frame.Metadata {
	v.mustBeAlive(ctx)
	return &frame.Metadata{
		Data:     string(v.guard.handle.Data),
		Timecode: v.info.Timecode,
	}
}
