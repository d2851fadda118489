// dummy_test.go contains a controllable fake of the engine's send side.

package send

import (
	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/transport"
)

// Dummy is a send-side transport whose completion timing is driven by
// the test: a send completes only when the test calls CompleteLast.
type Dummy struct {
	SendVideoAsyncFn        func(data []byte, info frame.VideoInfo) transport.FrameID
	SendVideoAsyncCallCount int

	SendVideoCallCount    int
	SendAudioCallCount    int
	SendMetadataCallCount int

	FlushFn        func()
	FlushCallCount int

	DestroyCallCount int

	completionCallback func(transport.FrameID)
	lastFrameID        transport.FrameID
	nextFrameID        transport.FrameID
}

var (
	_ transport.Sender             = (*Dummy)(nil)
	_ transport.CompletionNotifier = (*Dummy)(nil)
)

func (d *Dummy) SendVideoAsync(data []byte, info frame.VideoInfo) transport.FrameID {
	d.SendVideoAsyncCallCount++
	if d.SendVideoAsyncFn != nil {
		d.lastFrameID = d.SendVideoAsyncFn(data, info)
		return d.lastFrameID
	}
	d.nextFrameID++
	d.lastFrameID = d.nextFrameID
	return d.lastFrameID
}

func (d *Dummy) SendVideo(data []byte, info frame.VideoInfo) {
	d.SendVideoCallCount++
}

func (d *Dummy) SendAudio(data []byte, info frame.AudioInfo) {
	d.SendAudioCallCount++
}

func (d *Dummy) SendMetadata(data string, timecode int64) {
	d.SendMetadataCallCount++
}

func (d *Dummy) Flush() {
	d.FlushCallCount++
	if d.FlushFn != nil {
		d.FlushFn()
	}
}

func (d *Dummy) Destroy() {
	d.DestroyCallCount++
}

func (d *Dummy) RegisterCompletion(callback func(transport.FrameID)) {
	d.completionCallback = callback
}

// CompleteLast simulates the engine's callback thread confirming the
// most recent asynchronous send.
func (d *Dummy) CompleteLast() {
	if d.completionCallback != nil {
		d.completionCallback(d.lastFrameID)
	}
}

// gatedFlushEngine is a send-side transport without completion
// notification whose Flush blocks until the test releases the gate.
type gatedFlushEngine struct {
	flushGate   chan struct{}
	nextFrameID transport.FrameID
}

var _ transport.Sender = (*gatedFlushEngine)(nil)

func newGatedFlushEngine() *gatedFlushEngine {
	return &gatedFlushEngine{flushGate: make(chan struct{})}
}

func (e *gatedFlushEngine) SendVideoAsync(data []byte, info frame.VideoInfo) transport.FrameID {
	e.nextFrameID++
	return e.nextFrameID
}

func (e *gatedFlushEngine) SendVideo(data []byte, info frame.VideoInfo) {}

func (e *gatedFlushEngine) SendAudio(data []byte, info frame.AudioInfo) {}

func (e *gatedFlushEngine) SendMetadata(data string, timecode int64) {}

func (e *gatedFlushEngine) Flush() {
	<-e.flushGate
}

func (e *gatedFlushEngine) Destroy() {}

func testVideoInfo() frame.VideoInfo {
	info := frame.VideoInfo{
		Width:       64,
		Height:      36,
		PixelFormat: frame.PixelFormatBGRA,
		FrameRateN:  30,
		FrameRateD:  1,
	}
	info.LineStride = info.PixelFormat.LineStride(info.Width)
	return info
}

func testVideoBuffer(info frame.VideoInfo) *frame.Buffer {
	return frame.NewBuffer(info.DataSize())
}
