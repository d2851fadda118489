// Package recv implements the receive side of the lifetime layer:
// capture entry points, scoped buffer release, and zero-copy frame
// views bound to the lifetime of their connection.
package recv

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"

	ndi "github.com/GrantSparks/grafton-ndi"
	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/internal"
	"github.com/GrantSparks/grafton-ndi/logger"
	"github.com/GrantSparks/grafton-ndi/transport"
)

type Config struct {
	// Name is used for logging only.
	Name string
}

// Receiver wraps the receive side of one engine connection. Captures
// are safe for concurrent use; the views they hand out are not.
type Receiver struct {
	trans  transport.Receiver
	config Config

	closed atomic.Bool

	// generation is stamped into every view at capture time and bumped
	// on Close, invalidating all outstanding views at once.
	generation atomic.Uint64

	// locker serializes Release/Destroy calls into the engine; the
	// capture path is engine-side thread-safe and stays lock-free.
	locker xsync.Mutex
}

func New(
	ctx context.Context,
	trans transport.Receiver,
	config Config,
) (*Receiver, error) {
	if trans == nil {
		return nil, ndi.ErrInitFailed{Err: fmt.Errorf("no transport provided")}
	}
	r := &Receiver{
		trans:  trans,
		config: config,
	}
	logger.Debugf(ctx, "created receiver '%s'", config.Name)
	return r, nil
}

func (r *Receiver) String() string {
	if r.config.Name != "" {
		return fmt.Sprintf("Receiver(%s)", r.config.Name)
	}
	return "Receiver"
}

// CaptureVideo blocks until a video frame arrives or timeout expires
// and returns a zero-copy view of it. The view must be Close-d (or
// converted via ToOwned and then Close-d) before the next capture cycle
// reuses the buffer. A timeout yields ndi.ErrTimeout, which just means
// "no frame yet".
func (r *Receiver) CaptureVideo(
	ctx context.Context,
	timeout time.Duration,
) (_ret *VideoView, _err error) {
	logger.Tracef(ctx, "CaptureVideo(ctx, %v)", timeout)
	defer func() { logger.Tracef(ctx, "/CaptureVideo(ctx, %v): %v, %v", timeout, _ret, _err) }()

	cf, err := r.capture(ctx, transport.FrameKindVideo, timeout)
	if err != nil {
		return nil, err
	}
	internal.Assert(ctx, cf.Video != nil, "the engine returned a video frame without video info")

	view := &VideoView{
		viewCore: r.newViewCore(ctx, cf.Handle),
		info:     *cf.Video,
	}
	internal.SetFinalizer(view, func(v *VideoView) { v.finalize() })
	return view, nil
}

// CaptureAudio is the audio counterpart of CaptureVideo.
func (r *Receiver) CaptureAudio(
	ctx context.Context,
	timeout time.Duration,
) (_ret *AudioView, _err error) {
	logger.Tracef(ctx, "CaptureAudio(ctx, %v)", timeout)
	defer func() { logger.Tracef(ctx, "/CaptureAudio(ctx, %v): %v, %v", timeout, _ret, _err) }()

	cf, err := r.capture(ctx, transport.FrameKindAudio, timeout)
	if err != nil {
		return nil, err
	}
	internal.Assert(ctx, cf.Audio != nil, "the engine returned an audio frame without audio info")

	view := &AudioView{
		viewCore: r.newViewCore(ctx, cf.Handle),
		info:     *cf.Audio,
	}
	internal.SetFinalizer(view, func(v *AudioView) { v.finalize() })
	return view, nil
}

// CaptureMetadata is the metadata counterpart of CaptureVideo.
func (r *Receiver) CaptureMetadata(
	ctx context.Context,
	timeout time.Duration,
) (_ret *MetadataView, _err error) {
	logger.Tracef(ctx, "CaptureMetadata(ctx, %v)", timeout)
	defer func() { logger.Tracef(ctx, "/CaptureMetadata(ctx, %v): %v, %v", timeout, _ret, _err) }()

	cf, err := r.capture(ctx, transport.FrameKindMetadata, timeout)
	if err != nil {
		return nil, err
	}

	var info frame.MetadataInfo
	if cf.Metadata != nil {
		info = *cf.Metadata
	}
	view := &MetadataView{
		viewCore: r.newViewCore(ctx, cf.Handle),
		info:     info,
	}
	internal.SetFinalizer(view, func(v *MetadataView) { v.finalize() })
	return view, nil
}

// CaptureVideoOwned captures a video frame and immediately converts it
// into an independently-owned copy, releasing the engine buffer before
// returning. Convenience for callers that do not need zero-copy access.
func (r *Receiver) CaptureVideoOwned(
	ctx context.Context,
	timeout time.Duration,
) (*frame.Video, error) {
	view, err := r.CaptureVideo(ctx, timeout)
	if err != nil {
		return nil, err
	}
	defer view.Close(ctx)
	return view.ToOwned(ctx), nil
}

// CaptureAudioOwned is the audio counterpart of CaptureVideoOwned.
func (r *Receiver) CaptureAudioOwned(
	ctx context.Context,
	timeout time.Duration,
) (*frame.Audio, error) {
	view, err := r.CaptureAudio(ctx, timeout)
	if err != nil {
		return nil, err
	}
	defer view.Close(ctx)
	return view.ToOwned(ctx), nil
}

// CaptureMetadataOwned is the metadata counterpart of CaptureVideoOwned.
func (r *Receiver) CaptureMetadataOwned(
	ctx context.Context,
	timeout time.Duration,
) (*frame.Metadata, error) {
	view, err := r.CaptureMetadata(ctx, timeout)
	if err != nil {
		return nil, err
	}
	defer view.Close(ctx)
	return view.ToOwned(ctx), nil
}

func (r *Receiver) capture(
	ctx context.Context,
	kind transport.FrameKind,
	timeout time.Duration,
) (*transport.CapturedFrame, error) {
	if r.closed.Load() {
		return nil, ndi.ErrClosed{}
	}

	cf, err := r.trans.Capture(ctx, kind, timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to capture a %s frame: %w", kind, err)
	}
	if cf == nil {
		return nil, ndi.ErrTimeout{}
	}
	if len(cf.Handle.Data) == 0 {
		// A degenerate buffer is a non-fatal skip on the capture path,
		// but the handle still has to go back to the engine.
		r.releaseHandle(ctx, cf.Handle)
		return nil, ndi.ErrInvalidBuffer{Reason: fmt.Sprintf("the engine produced an empty %s buffer", kind)}
	}
	return cf, nil
}

func (r *Receiver) newViewCore(ctx context.Context, handle transport.BufferHandle) viewCore {
	return viewCore{
		guard: newReleaseGuard(r, handle),
		gen:   r.generation.Load(),
		ctx:   xcontext.DetachDone(ctx),
	}
}

func (v *viewCore) finalize() {
	if v.guard.isReleased() {
		return
	}
	logger.Errorf(v.ctx, "a frame view was garbage-collected without Close; releasing the buffer now")
	v.guard.release(v.ctx)
}

func (r *Receiver) releaseHandle(ctx context.Context, handle transport.BufferHandle) {
	r.locker.Do(ctx, func() {
		if r.closed.Load() {
			logger.Debugf(ctx, "skipping release of buffer %d: the connection is already destroyed", handle.ID)
			return
		}
		r.trans.Release(handle)
	})
}

// Close invalidates all outstanding views and destroys the engine
// connection. Idempotent. Buffers still held by views are reclaimed by
// the engine itself; their guards turn into no-ops.
func (r *Receiver) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "%s: Close", r)
	defer func() { logger.Debugf(ctx, "/%s: Close: %v", r, _err) }()

	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.generation.Inc()
	r.locker.Do(ctx, func() {
		r.trans.Destroy()
	})
	return nil
}

// IsClosed reports whether Close has been called.
func (r *Receiver) IsClosed() bool {
	return r.closed.Load()
}
