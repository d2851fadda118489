package loopback

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/observability"

	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/transport"
)

// pendingSends tracks asynchronous transmissions still holding the
// caller's buffer; Flush blocks until it reaches zero.
type pendingSends struct {
	locker sync.Mutex
	count  int
	idleCh chan struct{}
}

func (p *pendingSends) begin() {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.count++
}

func (p *pendingSends) done() {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.count--
	if p.count == 0 && p.idleCh != nil {
		close(p.idleCh)
		p.idleCh = nil
	}
}

func (p *pendingSends) wait() {
	p.locker.Lock()
	if p.count == 0 {
		p.locker.Unlock()
		return
	}
	if p.idleCh == nil {
		p.idleCh = make(chan struct{})
	}
	ch := p.idleCh
	p.locker.Unlock()
	<-ch
}

// SendVideoAsync implements transport.Sender. The transmission runs on
// a transport-owned goroutine and reads the caller's buffer until it
// completes, which is exactly the hazard the lifetime layer guards.
func (t *Transport) SendVideoAsync(data []byte, info frame.VideoInfo) transport.FrameID {
	frameID := transport.FrameID(t.nextID.Inc())
	t.pending.begin()
	observability.Go(t.spawnCtx, func(ctx context.Context) {
		if t.config.SendLatency > 0 {
			time.Sleep(t.config.SendLatency)
		}
		// The buffer is read at the end of the latency window, so a
		// mutation during transmission would corrupt the loop-backed
		// frame. Copying into engine-owned memory ends the borrow.
		t.enqueue(ctx, transport.FrameKindVideo, &queuedFrame{
			handle: t.newHandle(transport.FrameKindVideo, slices.Clone(data)),
			video:  &info,
		})
		t.stats.SendCount.Inc()
		t.pending.done()
		if cb := xatomic.LoadPointer(&t.completionCallback); cb != nil {
			(*cb)(frameID)
		}
	})
	return frameID
}

// SendVideo implements transport.Sender: the synchronous path copies
// inline and returns with the buffer already safe.
func (t *Transport) SendVideo(data []byte, info frame.VideoInfo) {
	t.enqueue(t.spawnCtx, transport.FrameKindVideo, &queuedFrame{
		handle: t.newHandle(transport.FrameKindVideo, slices.Clone(data)),
		video:  &info,
	})
	t.stats.SendCount.Inc()
}

// SendAudio implements transport.Sender.
func (t *Transport) SendAudio(data []byte, info frame.AudioInfo) {
	t.enqueue(t.spawnCtx, transport.FrameKindAudio, &queuedFrame{
		handle: t.newHandle(transport.FrameKindAudio, slices.Clone(data)),
		audio:  &info,
	})
	t.stats.SendCount.Inc()
}

// SendMetadata implements transport.Sender.
func (t *Transport) SendMetadata(data string, timecode int64) {
	t.enqueue(t.spawnCtx, transport.FrameKindMetadata, &queuedFrame{
		handle:   t.newHandle(transport.FrameKindMetadata, []byte(data)),
		metadata: &frame.MetadataInfo{Timecode: timecode},
	})
	t.stats.SendCount.Inc()
}

// Flush implements transport.Sender: it blocks until no asynchronous
// transmission still holds a caller buffer.
func (t *Transport) Flush() {
	t.pending.wait()
}

// RegisterCompletion implements transport.CompletionNotifier. The
// callback is invoked from the transmission goroutine, never from the
// sender's own goroutine.
func (t *Transport) RegisterCompletion(callback func(transport.FrameID)) {
	xatomic.StorePointer(&t.completionCallback, &callback)
}

// GetTally implements transport.StatusProvider; the loopback receiver
// is always "on program".
func (t *Transport) GetTally(
	ctx context.Context,
	timeout time.Duration,
) (transport.Tally, bool) {
	if t.destroyed.Load() {
		return transport.Tally{}, false
	}
	return transport.Tally{OnProgram: true}, true
}

// ConnectionCount implements transport.StatusProvider.
func (t *Transport) ConnectionCount(
	ctx context.Context,
	timeout time.Duration,
) int {
	if t.destroyed.Load() {
		return 0
	}
	return 1
}

// Degraded hides the completion capability, forcing the flush-driven
// completion path a legacy engine would take.
func (t *Transport) Degraded() transport.Sender {
	return &degradedSender{Transport: t}
}

type degradedSender struct {
	*Transport
}

// RegisterCompletion shadows the promoted method with an incompatible
// signature, so the wrapper does not satisfy
// transport.CompletionNotifier.
func (s *degradedSender) RegisterCompletion(any) {}

var _ transport.Sender = (*degradedSender)(nil)
