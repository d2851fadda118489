// Package framesync provides clocked capture on top of a
// transport.FrameSynchronizer: every call yields a frame immediately,
// repeating the previous video frame or synthesizing audio silence when
// the source has nothing new. The views it hands out obey the same
// lifetime rules as receive-side views: they are valid until released
// or until the synchronizer is closed, and access past that point
// panics instead of touching freed engine memory.
package framesync

import (
	"context"

	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"

	ndi "github.com/GrantSparks/grafton-ndi"
	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/internal"
	"github.com/GrantSparks/grafton-ndi/logger"
	"github.com/GrantSparks/grafton-ndi/transport"
)

type Config struct {
	Name string
}

type FrameSync struct {
	trans  transport.FrameSynchronizer
	config Config

	closed     atomic.Bool
	generation atomic.Uint64
	locker     xsync.Mutex
}

func New(
	ctx context.Context,
	trans transport.FrameSynchronizer,
	config Config,
) (_ret *FrameSync, _err error) {
	logger.Tracef(ctx, "framesync.New(ctx, %#+v)", config)
	defer func() { logger.Tracef(ctx, "/framesync.New(ctx, %#+v): %p %v", config, _ret, _err) }()
	if trans == nil {
		return nil, ndi.ErrInitFailed{}
	}
	return &FrameSync{
		trans:  trans,
		config: config,
	}, nil
}

// CaptureVideo returns the current video frame without blocking, or
// nil when the source produced no video yet. The view must be closed
// before the FrameSync is.
func (fs *FrameSync) CaptureVideo(ctx context.Context) (_ret *VideoView) {
	logger.Tracef(ctx, "CaptureVideo(ctx)")
	defer func() { logger.Tracef(ctx, "/CaptureVideo(ctx): %p", _ret) }()
	if fs.closed.Load() {
		return nil
	}
	cf := fs.trans.CaptureVideoSync()
	if cf == nil {
		return nil
	}
	v := &VideoView{
		view: fs.newView(ctx, cf.Handle),
		info: *cf.Video,
	}
	internal.SetFinalizer(v, func(v *VideoView) { v.finalize() })
	return v
}

// CaptureAudio returns exactly sampleCount samples without blocking,
// silence when the source produced no audio yet.
func (fs *FrameSync) CaptureAudio(ctx context.Context, sampleCount int) (_ret *AudioView) {
	logger.Tracef(ctx, "CaptureAudio(ctx, %d)", sampleCount)
	defer func() { logger.Tracef(ctx, "/CaptureAudio(ctx, %d): %p", sampleCount, _ret) }()
	if fs.closed.Load() {
		return nil
	}
	cf := fs.trans.CaptureAudioSync(sampleCount)
	if cf == nil {
		return nil
	}
	a := &AudioView{
		view: fs.newView(ctx, cf.Handle),
		info: *cf.Audio,
	}
	internal.SetFinalizer(a, func(a *AudioView) { a.finalize() })
	return a
}

// CaptureVideoOwned is a convenience wrapper that copies the current
// frame out, for callers that do not care about zero-copy access.
func (fs *FrameSync) CaptureVideoOwned(ctx context.Context) *frame.Video {
	v := fs.CaptureVideo(ctx)
	if v == nil {
		return nil
	}
	defer v.Close(ctx)
	owned := v.ToOwned(ctx)
	return &owned
}

func (fs *FrameSync) releaseHandle(ctx context.Context, handle transport.BufferHandle) {
	fs.locker.Do(ctx, func() {
		if fs.closed.Load() {
			// The engine already reclaimed everything in Close.
			return
		}
		fs.trans.Release(handle)
	})
}

// Close destroys the synchronizer. Views left open become invalid: the
// generation bump makes any later access panic.
func (fs *FrameSync) Close(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Close(ctx)")
	defer func() { logger.Tracef(ctx, "/Close(ctx): %v", _err) }()
	if !fs.closed.CompareAndSwap(false, true) {
		return nil
	}
	fs.generation.Inc()
	fs.locker.Do(ctx, func() {
		fs.trans.Destroy()
	})
	return nil
}

func (fs *FrameSync) IsClosed() bool {
	return fs.closed.Load()
}

