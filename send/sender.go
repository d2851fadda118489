// Package send implements the send side of the lifetime layer: the
// single-flight asynchronous send token, the shared control block and
// the completion dispatch coordinated against connection teardown.
package send

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
	"go.uber.org/atomic"

	ndi "github.com/GrantSparks/grafton-ndi"
	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/internal"
	"github.com/GrantSparks/grafton-ndi/logger"
	"github.com/GrantSparks/grafton-ndi/transport"
)

// DefaultFlushTimeout bounds how long teardown and token consumption
// wait for the engine to confirm an in-flight send.
const DefaultFlushTimeout = 5 * time.Second

type Config struct {
	// Name is used for logging only.
	Name string

	// FlushTimeout overrides DefaultFlushTimeout when positive.
	FlushTimeout time.Duration
}

// Sender wraps the send side of one engine connection. Video sends are
// asynchronous and zero-copy, guarded by a single-flight Token; audio
// and metadata sends are synchronous (the engine copies eagerly).
type Sender struct {
	trans  transport.Sender
	config Config
	ctrl   *control

	// notifier is non-nil when the engine signals async completion
	// natively; otherwise the token itself is the synchronization point
	// (degraded but still correct).
	notifier transport.CompletionNotifier

	closed atomic.Bool
}

func New(
	ctx context.Context,
	trans transport.Sender,
	config Config,
) (*Sender, error) {
	if trans == nil {
		return nil, ndi.ErrInitFailed{Err: fmt.Errorf("no transport provided")}
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = DefaultFlushTimeout
	}

	s := &Sender{
		trans:  trans,
		config: config,
		ctrl:   newControl(),
	}

	if notifier, ok := trans.(transport.CompletionNotifier); ok {
		s.notifier = notifier
		// The callback runs on a thread owned by the engine: it only
		// executes the control block's short critical section and must
		// survive cancellation of the constructor's ctx.
		cbCtx := xcontext.DetachDone(ctx)
		notifier.RegisterCompletion(func(frameID transport.FrameID) {
			s.ctrl.complete(cbCtx, frameID)
		})
		logger.Debugf(ctx, "%s: using native completion notification", s)
	} else {
		logger.Debugf(ctx, "%s: no native completion notification, tokens will flush explicitly", s)
	}
	return s, nil
}

func (s *Sender) String() string {
	if s.config.Name != "" {
		return fmt.Sprintf("Sender(%s)", s.config.Name)
	}
	return "Sender"
}

// OnAsyncDone registers a callback invoked exactly once per completed
// asynchronous send, with the engine's frame ID. Only the first
// registration wins. The callback never fires after Close began.
func (s *Sender) OnAsyncDone(ctx context.Context, callback func(transport.FrameID)) {
	s.ctrl.setCallback(ctx, callback)
}

// SendVideoAsync hands the buffer to the engine for zero-copy
// transmission and returns the send's Token. The buffer is pinned (not
// mutable) until the token is consumed via Wait or Close. At most one
// async send may be in flight per sender: a second request while a
// token is alive fails with ndi.ErrSendInProgress.
func (s *Sender) SendVideoAsync(
	ctx context.Context,
	buf *frame.Buffer,
	info frame.VideoInfo,
) (_ret *Token, _err error) {
	logger.Tracef(ctx, "SendVideoAsync(ctx, buf, %v)", info)
	defer func() { logger.Tracef(ctx, "/SendVideoAsync(ctx, buf, %v): %v, %v", info, _ret, _err) }()

	if s.closed.Load() {
		return nil, ndi.ErrClosed{}
	}
	// A degenerate buffer is a hard error on the send path. Validation
	// happens before beginSend so no failure can leave the in-flight
	// flag armed.
	if err := validateVideoSend(buf, info); err != nil {
		return nil, err
	}

	if err := s.ctrl.beginSend(ctx); err != nil {
		return nil, err
	}
	frameID := s.trans.SendVideoAsync(buf.Bytes(), info)
	s.ctrl.bindFrameID(ctx, frameID)

	token := newToken(s, buf, frameID)
	internal.SetFinalizer(token, (*Token).finalize)
	return token, nil
}

func validateVideoSend(buf *frame.Buffer, info frame.VideoInfo) error {
	switch {
	case buf == nil || buf.Len() == 0:
		return ndi.ErrInvalidBuffer{Reason: "the video buffer is empty"}
	case info.Width <= 0 || info.Height <= 0:
		return ndi.ErrInvalidBuffer{Reason: fmt.Sprintf("degenerate resolution %dx%d", info.Width, info.Height)}
	}
	if expected := info.DataSize(); expected > 0 && buf.Len() < expected {
		return ndi.ErrInvalidBuffer{Reason: fmt.Sprintf("the buffer holds %d bytes, the frame needs %d", buf.Len(), expected)}
	}
	return nil
}

// SendVideo is the synchronous convenience: an async send followed by
// an immediate wait. When it returns, the frame data is reusable.
func (s *Sender) SendVideo(ctx context.Context, f *frame.Video) error {
	token, err := s.SendVideoAsync(ctx, frame.BufferOf(f.Data), f.Info)
	if err != nil {
		return err
	}
	return token.Wait(ctx)
}

// SendAudio transmits an audio frame synchronously; the engine copies
// the data before the call returns.
func (s *Sender) SendAudio(ctx context.Context, f *frame.Audio) error {
	if s.closed.Load() {
		return ndi.ErrClosed{}
	}
	if len(f.Data) == 0 {
		return ndi.ErrInvalidBuffer{Reason: "the audio buffer is empty"}
	}
	s.trans.SendAudio(f.Data, f.Info)
	return nil
}

// SendMetadata transmits a metadata frame synchronously.
func (s *Sender) SendMetadata(ctx context.Context, f *frame.Metadata) error {
	if s.closed.Load() {
		return ndi.ErrClosed{}
	}
	s.trans.SendMetadata(f.Data, f.Timecode)
	return nil
}

// awaitCompletion blocks until the current send completed, bounded by
// the configured flush timeout. In degraded mode it also drives the
// completion itself, by draining the engine and invoking complete.
func (s *Sender) awaitCompletion(ctx context.Context, frameID transport.FrameID) error {
	if s.notifier == nil {
		s.kickDegradedFlush(ctx, frameID)
	}
	return s.ctrl.completion.Wait(ctx, s.config.FlushTimeout)
}

// kickDegradedFlush drains the engine on a separate goroutine and
// completes the given send when the drain returns. Multiple kicks are
// harmless, and a kicked goroutine that outlives its own send (the
// engine unparked it only after a wait timeout, with a later send
// already in flight) cannot complete anyone else's send: complete
// matches the frame ID against the in-flight one.
func (s *Sender) kickDegradedFlush(ctx context.Context, frameID transport.FrameID) {
	ctx = xcontext.DetachDone(ctx)
	observability.Go(ctx, func(ctx context.Context) {
		s.trans.Flush()
		s.ctrl.complete(ctx, frameID)
	})
}

// Flush waits for the in-flight send (if any) to complete, bounded by
// timeout. ndi.ErrFlushTimeout does not invalidate any state: the send
// stays in flight and a later Flush or Close may still confirm it.
func (s *Sender) Flush(
	ctx context.Context,
	timeout time.Duration,
) (_err error) {
	logger.Debugf(ctx, "%s: Flush(ctx, %v)", s, timeout)
	defer func() { logger.Debugf(ctx, "/%s: Flush(ctx, %v): %v", s, timeout, _err) }()

	frameID, inFlight := s.ctrl.currentFlight(ctx)
	if !inFlight {
		return nil
	}
	if s.notifier == nil {
		s.kickDegradedFlush(ctx, frameID)
	}
	return s.ctrl.completion.Wait(ctx, timeout)
}

// Close flushes the in-flight send (bounded by the configured flush
// timeout), marks the control block destroyed and tears the engine
// connection down. A flush timeout is logged and teardown proceeds:
// hanging destruction forever is not an option. Idempotent.
func (s *Sender) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "%s: Close", s)
	defer func() { logger.Debugf(ctx, "/%s: Close: %v", s, _err) }()

	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Teardown must run to the end even if the caller's ctx is already
	// cancelled.
	ctx = xcontext.DetachDone(ctx)

	if err := s.Flush(ctx, s.config.FlushTimeout); err != nil {
		logger.Errorf(ctx, "%s: unable to confirm completion during teardown: %v", s, err)
		s.ctrl.consumeStuckSend(ctx)
	}
	s.ctrl.markDestroyed(ctx)
	s.trans.Destroy()
	return nil
}

// IsClosed reports whether Close has been called.
func (s *Sender) IsClosed() bool {
	return s.closed.Load()
}

// GetTally queries the engine's program/preview state, when supported.
func (s *Sender) GetTally(
	ctx context.Context,
	timeout time.Duration,
) (transport.Tally, error) {
	sp, ok := s.trans.(transport.StatusProvider)
	if !ok {
		return transport.Tally{}, ndi.ErrNotSupported{Capability: "tally"}
	}
	tally, ok := sp.GetTally(ctx, timeout)
	if !ok {
		return transport.Tally{}, ndi.ErrTimeout{}
	}
	return tally, nil
}

// ConnectionCount queries how many receivers are connected, when
// supported.
func (s *Sender) ConnectionCount(
	ctx context.Context,
	timeout time.Duration,
) (int, error) {
	sp, ok := s.trans.(transport.StatusProvider)
	if !ok {
		return 0, ndi.ErrNotSupported{Capability: "connection counting"}
	}
	return sp.ConnectionCount(ctx, timeout), nil
}
