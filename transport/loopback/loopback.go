// Package loopback implements an in-process reference engine: frames
// sent on the send side (and synthetic frames generated directly) loop
// back into the capture queue. It exists so the lifetime layer can be
// exercised end-to-end without a native engine: the asynchronous send
// path runs on a goroutine owned by the transport, which doubles as the
// "foreign callback thread" of a real engine.
package loopback

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-ng/xatomic"
	"github.com/google/uuid"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"

	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/transport"
)

type Config struct {
	// SendLatency simulates transmission time of asynchronous sends.
	SendLatency time.Duration

	// QueueCapacity bounds the capture queue per frame kind; the oldest
	// frame is dropped on overflow. Defaults to 16.
	QueueCapacity int
}

type queuedFrame struct {
	handle   transport.BufferHandle
	video    *frame.VideoInfo
	audio    *frame.AudioInfo
	metadata *frame.MetadataInfo
}

// Transport is one loopback connection: it implements both the receive
// and the send side contracts, plus the optional completion, status and
// frame-sync capabilities.
type Transport struct {
	ID     uuid.UUID
	config Config

	// spawnCtx is the detached context background goroutines run on.
	spawnCtx context.Context

	locker      xsync.Mutex
	queues      map[transport.FrameKind][]*queuedFrame
	outstanding map[uint64]transport.FrameKind
	lastVideo   *queuedFrame

	// changeChan is closed and replaced on every enqueue, waking
	// blocked captures.
	changeChan *chan struct{}

	destroyed atomic.Bool
	nextID    atomic.Uint64

	completionCallback *func(transport.FrameID)

	pending pendingSends

	stats Stats
}

// Stats counts engine-side events; tests assert on them.
type Stats struct {
	SendCount                atomic.Uint64
	ReleaseCount             atomic.Uint64
	DoubleReleaseCount       atomic.Uint64
	ReleaseAfterDestroyCount atomic.Uint64
	DroppedFrameCount        atomic.Uint64
	DestroyCount             atomic.Uint64
}

var (
	_ transport.Receiver           = (*Transport)(nil)
	_ transport.Sender             = (*Transport)(nil)
	_ transport.CompletionNotifier = (*Transport)(nil)
	_ transport.StatusProvider     = (*Transport)(nil)
	_ transport.FrameSynchronizer  = (*Transport)(nil)
)

func New(ctx context.Context, config Config) *Transport {
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = 16
	}
	return &Transport{
		ID:          uuid.New(),
		config:      config,
		spawnCtx:    xcontext.DetachDone(ctx),
		queues:      map[transport.FrameKind][]*queuedFrame{},
		outstanding: map[uint64]transport.FrameKind{},
		changeChan:  ptr(make(chan struct{})),
	}
}

func (t *Transport) String() string {
	return fmt.Sprintf("loopback(%s)", t.ID)
}

func (t *Transport) GetStats() *Stats {
	return &t.stats
}

// Capture implements transport.Receiver. It returns (nil, nil) when no
// frame of the requested kind arrived within the timeout.
func (t *Transport) Capture(
	ctx context.Context,
	kind transport.FrameKind,
	timeout time.Duration,
) (*transport.CapturedFrame, error) {
	deadline := time.Now().Add(timeout)
	for {
		if t.destroyed.Load() {
			return nil, fmt.Errorf("%s: the connection is destroyed", t)
		}

		// The wake-up channel is sampled before the queue to avoid
		// missing an enqueue between the check and the wait.
		ch := *xatomic.LoadPointer(&t.changeChan)
		if qf := t.tryDequeue(ctx, kind); qf != nil {
			return qf.toCaptured(), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (qf *queuedFrame) toCaptured() *transport.CapturedFrame {
	return &transport.CapturedFrame{
		Handle:   qf.handle,
		Video:    qf.video,
		Audio:    qf.audio,
		Metadata: qf.metadata,
	}
}

func (t *Transport) tryDequeue(
	ctx context.Context,
	kind transport.FrameKind,
) *queuedFrame {
	return xsync.DoR1(ctx, &t.locker, func() *queuedFrame {
		q := t.queues[kind]
		if len(q) == 0 {
			return nil
		}
		qf := q[0]
		t.queues[kind] = q[1:]
		t.outstanding[qf.handle.ID] = kind
		return qf
	})
}

// Release implements transport.Receiver and
// transport.FrameSynchronizer. Double releases and releases after
// destruction are counted; real engines would corrupt memory instead.
func (t *Transport) Release(handle transport.BufferHandle) {
	if t.destroyed.Load() {
		t.stats.ReleaseAfterDestroyCount.Inc()
		return
	}
	t.locker.Do(t.spawnCtx, func() {
		if _, ok := t.outstanding[handle.ID]; !ok {
			t.stats.DoubleReleaseCount.Inc()
			return
		}
		delete(t.outstanding, handle.ID)
		t.stats.ReleaseCount.Inc()
	})
}

// Destroy implements both side contracts; the loopback connection is a
// single object, so the first Destroy wins.
func (t *Transport) Destroy() {
	t.stats.DestroyCount.Inc()
	if !t.destroyed.CompareAndSwap(false, true) {
		return
	}
	t.wakeWaiters()
}

func (t *Transport) wakeWaiters() {
	close(*xatomic.SwapPointer(&t.changeChan, ptr(make(chan struct{}))))
}

func (t *Transport) enqueue(ctx context.Context, kind transport.FrameKind, qf *queuedFrame) {
	if t.destroyed.Load() {
		t.stats.DroppedFrameCount.Inc()
		return
	}
	t.locker.Do(ctx, func() {
		q := t.queues[kind]
		if len(q) >= t.config.QueueCapacity {
			t.stats.DroppedFrameCount.Inc()
			q = q[1:]
		}
		t.queues[kind] = append(q, qf)
		if kind == transport.FrameKindVideo {
			t.lastVideo = qf
		}
	})
	t.wakeWaiters()
}

func (t *Transport) newHandle(kind transport.FrameKind, data []byte) transport.BufferHandle {
	return transport.BufferHandle{
		ID:   t.nextID.Inc(),
		Kind: kind,
		Data: data,
	}
}

// GenerateVideo enqueues a synthetic engine-owned video frame: the
// "source" of a receive-only connection. fill is the byte pattern of
// the payload.
func (t *Transport) GenerateVideo(ctx context.Context, info frame.VideoInfo, fill byte) {
	if info.LineStride == 0 {
		info.LineStride = info.PixelFormat.LineStride(info.Width)
	}
	data := make([]byte, info.DataSize())
	for i := range data {
		data[i] = fill
	}
	t.enqueue(ctx, transport.FrameKindVideo, &queuedFrame{
		handle: t.newHandle(transport.FrameKindVideo, data),
		video:  &info,
	})
}

// GenerateAudio enqueues a synthetic engine-owned audio frame of
// silence.
func (t *Transport) GenerateAudio(ctx context.Context, info frame.AudioInfo) {
	if info.ChannelStride == 0 {
		info.ChannelStride = 4 * info.SampleCount
	}
	t.enqueue(ctx, transport.FrameKindAudio, &queuedFrame{
		handle: t.newHandle(transport.FrameKindAudio, make([]byte, info.DataSize())),
		audio:  &info,
	})
}

// GenerateMetadata enqueues a synthetic engine-owned metadata frame.
func (t *Transport) GenerateMetadata(ctx context.Context, data string, timecode int64) {
	t.enqueue(ctx, transport.FrameKindMetadata, &queuedFrame{
		handle:   t.newHandle(transport.FrameKindMetadata, []byte(data)),
		metadata: &frame.MetadataInfo{Timecode: timecode},
	})
}

// CaptureVideoSync implements transport.FrameSynchronizer: it hands out
// a repeat of the most recent video frame without blocking, or nil when
// nothing arrived yet.
func (t *Transport) CaptureVideoSync() *transport.CapturedFrame {
	if t.destroyed.Load() {
		return nil
	}
	return xsync.DoR1(t.spawnCtx, &t.locker, func() *transport.CapturedFrame {
		if t.lastVideo == nil {
			return nil
		}
		// Frame-sync handles are independent of the queue: each call
		// produces its own engine-owned repeat that must be released
		// separately.
		handle := t.newHandle(transport.FrameKindVideo, slices.Clone(t.lastVideo.handle.Data))
		t.outstanding[handle.ID] = transport.FrameKindVideo
		info := *t.lastVideo.video
		return &transport.CapturedFrame{
			Handle: handle,
			Video:  &info,
		}
	})
}

// CaptureAudioSync implements transport.FrameSynchronizer: it always
// yields exactly sampleCount samples, silence when the source has not
// produced any audio.
func (t *Transport) CaptureAudioSync(sampleCount int) *transport.CapturedFrame {
	if t.destroyed.Load() {
		return nil
	}
	return xsync.DoR1(t.spawnCtx, &t.locker, func() *transport.CapturedFrame {
		info := frame.AudioInfo{
			SampleRate:    48000,
			ChannelCount:  2,
			SampleCount:   sampleCount,
			Layout:        frame.AudioLayoutPlanar,
			ChannelStride: 4 * sampleCount,
		}
		handle := t.newHandle(transport.FrameKindAudio, make([]byte, info.DataSize()))
		t.outstanding[handle.ID] = transport.FrameKindAudio
		return &transport.CapturedFrame{
			Handle: handle,
			Audio:  &info,
		}
	})
}

func ptr[T any](v T) *T {
	return &v
}
