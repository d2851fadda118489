package framesync

import (
	"context"
	"slices"

	"github.com/xaionaro-go/xcontext"
	"go.uber.org/atomic"

	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/internal"
	"github.com/GrantSparks/grafton-ndi/logger"
	"github.com/GrantSparks/grafton-ndi/transport"
)

// view is the shared lifetime state of a frame-sync view: the handle is
// released back to the engine exactly once, and any access after Close
// (of the view or of the FrameSync it came from) panics.
type view struct {
	fs       *FrameSync
	handle   transport.BufferHandle
	gen      uint64
	released atomic.Bool

	// ctx is the capture-time context, detached from cancellation; it
	// carries the logger for accessors and the finalizer.
	ctx context.Context
}

func (fs *FrameSync) newView(ctx context.Context, handle transport.BufferHandle) view {
	return view{
		fs:     fs,
		handle: handle,
		gen:    fs.generation.Load(),
		ctx:    xcontext.DetachDone(ctx),
	}
}

func (v *view) mustBeAlive(ctx context.Context) {
	internal.Assert(ctx, !v.released.Load(), "the view is already closed")
	internal.Assert(ctx, !v.fs.closed.Load(), "the frame synchronizer is already closed")
	internal.Assert(ctx, v.gen == v.fs.generation.Load(), "the view outlived its frame synchronizer")
}

func (v *view) close(ctx context.Context) {
	if !v.released.CompareAndSwap(false, true) {
		return
	}
	v.fs.releaseHandle(ctx, v.handle)
}

func (v *view) finalizeWith(kind string) {
	if v.released.Load() {
		return
	}
	logger.Errorf(v.ctx, "a %s frame-sync view was never closed; releasing it in the finalizer", kind)
	v.close(v.ctx)
}

// VideoView is a zero-copy window into the synchronizer's current video
// frame.
type VideoView struct {
	view
	info frame.VideoInfo
}

func (v *VideoView) Info() frame.VideoInfo {
	return v.info
}

func (v *VideoView) Bytes() []byte {
	v.mustBeAlive(v.ctx)
	return v.handle.Data
}

func (v *VideoView) ToOwned(ctx context.Context) frame.Video {
	v.mustBeAlive(ctx)
	return frame.Video{
		Info: v.info,
		Data: slices.Clone(v.handle.Data),
	}
}

func (v *VideoView) Close(ctx context.Context) {
	v.close(ctx)
}

func (v *VideoView) finalize() {
	v.finalizeWith("video")
}

// AudioView is a zero-copy window into the synchronizer's resampled
// audio.
type AudioView struct {
	view
	info frame.AudioInfo
}

func (a *AudioView) Info() frame.AudioInfo {
	return a.info
}

func (a *AudioView) Bytes() []byte {
	a.mustBeAlive(a.ctx)
	return a.handle.Data
}

func (a *AudioView) Samples(channel int) []float32 {
	a.mustBeAlive(a.ctx)
	owned := frame.Audio{Info: a.info, Data: a.handle.Data}
	return owned.ChannelData(channel)
}

func (a *AudioView) ToOwned(ctx context.Context) frame.Audio {
	a.mustBeAlive(ctx)
	return frame.Audio{
		Info: a.info,
		Data: slices.Clone(a.handle.Data),
	}
}

func (a *AudioView) Close(ctx context.Context) {
	a.close(ctx)
}

func (a *AudioView) finalize() {
	a.finalizeWith("audio")
}
