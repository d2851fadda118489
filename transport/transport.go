// Package transport defines the contract between the lifetime layer and
// the external media engine. The engine (frame capture, network
// transmission, clock synchronization) is a black box: it produces
// buffers on request and must be told when they are no longer needed,
// and it accepts buffers for asynchronous transmission together with a
// completion notification contract.
package transport

import (
	"context"
	"time"

	"github.com/GrantSparks/grafton-ndi/frame"
)

// FrameKind selects which kind of frame a capture call is interested in.
type FrameKind int

const (
	FrameKindUndefined FrameKind = iota
	FrameKindVideo
	FrameKindAudio
	FrameKindMetadata
	EndOfFrameKind
)

func (k FrameKind) String() string {
	switch k {
	case FrameKindVideo:
		return "video"
	case FrameKindAudio:
		return "audio"
	case FrameKindMetadata:
		return "metadata"
	default:
		return "undefined"
	}
}

// FrameID identifies one asynchronous send inside the engine.
type FrameID uint64

// BufferHandle identifies a single engine-owned buffer. Data is a
// window into memory owned by the engine: it is valid only between the
// capture that produced the handle and the Release call for it. A
// handle is never duplicated; exactly one release guard owns it.
type BufferHandle struct {
	ID   uint64
	Kind FrameKind
	Data []byte
}

// CapturedFrame couples a buffer handle with its decoded metadata.
// Exactly one of the info fields corresponding to Handle.Kind is set.
type CapturedFrame struct {
	Handle   BufferHandle
	Video    *frame.VideoInfo
	Audio    *frame.AudioInfo
	Metadata *frame.MetadataInfo
}

// Receiver is the receive side of one engine connection.
//
// Capture blocks until a frame of the requested kind arrives or the
// timeout expires; it returns (nil, nil) when no frame arrived in time.
// Capture is safe for concurrent use. Release and Destroy are invoked
// by the lifetime layer only.
type Receiver interface {
	Capture(ctx context.Context, kind FrameKind, timeout time.Duration) (*CapturedFrame, error)

	// Release returns an engine-owned buffer to the engine. After the
	// call the handle's Data window must not be touched.
	Release(handle BufferHandle)

	// Destroy tears the connection down. All handles become invalid;
	// further Release calls must be skipped by the caller.
	Destroy()
}

// Sender is the send side of one engine connection.
//
// SendVideoAsync does not copy: the engine borrows data until the send
// completed (signalled via Flush returning, or the completion callback
// registered through CompletionNotifier). Audio and metadata sends are
// synchronous: the engine copies eagerly and the buffer is reusable as
// soon as the call returns.
type Sender interface {
	SendVideoAsync(data []byte, info frame.VideoInfo) FrameID
	SendVideo(data []byte, info frame.VideoInfo)
	SendAudio(data []byte, info frame.AudioInfo)
	SendMetadata(data string, timecode int64)

	// Flush blocks until every previously requested asynchronous send
	// has completed.
	Flush()

	// Destroy tears the connection down. The lifetime layer guarantees
	// that no completion callback is mid-execution when it calls this.
	Destroy()
}

// CompletionNotifier is an optional upgrade of Sender: engines that can
// signal asynchronous send completion natively implement it. The
// callback runs on a thread owned by the engine and must not block.
type CompletionNotifier interface {
	RegisterCompletion(callback func(FrameID))
}

// Tally mirrors the engine's program/preview state for a sender.
type Tally struct {
	OnProgram bool
	OnPreview bool
}

// StatusProvider is an optional upgrade of Sender for status queries.
type StatusProvider interface {
	GetTally(ctx context.Context, timeout time.Duration) (Tally, bool)
	ConnectionCount(ctx context.Context, timeout time.Duration) int
}

// FrameSynchronizer is a clock-driven capture surface: it never blocks
// and never reports timeouts, it always hands out the frame matching
// the call time (possibly a repeat of the previous one).
type FrameSynchronizer interface {
	CaptureVideoSync() *CapturedFrame
	CaptureAudioSync(sampleCount int) *CapturedFrame

	Release(handle BufferHandle)
	Destroy()
}
