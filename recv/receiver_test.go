package recv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ndi "github.com/GrantSparks/grafton-ndi"
	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/transport"
	"github.com/GrantSparks/grafton-ndi/transport/loopback"
)

func testVideoInfo() frame.VideoInfo {
	return frame.VideoInfo{
		Width:       64,
		Height:      36,
		PixelFormat: frame.PixelFormatUYVY,
		FrameRateN:  30,
		FrameRateD:  1,
	}
}

func TestReceiver_CaptureTimeout(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{})
	r, err := New(ctx, engine, Config{Name: "test"})
	require.NoError(t, err)
	defer r.Close(ctx)

	_, err = r.CaptureVideo(ctx, 0)
	require.ErrorIs(t, err, ndi.ErrTimeout{})
	_, err = r.CaptureAudio(ctx, 10*time.Millisecond)
	require.ErrorIs(t, err, ndi.ErrTimeout{})
}

func TestReceiver_VideoRoundTrip(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{})
	r, err := New(ctx, engine, Config{})
	require.NoError(t, err)

	info := testVideoInfo()
	engine.GenerateVideo(ctx, info, 0xAB)

	view, err := r.CaptureVideo(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, info.Width, view.Info().Width)
	require.Equal(t, info.PixelFormat.LineStride(info.Width), view.Info().LineStride)

	data := view.Bytes()
	require.Len(t, data, view.Info().DataSize())
	require.Equal(t, byte(0xAB), data[0])
	require.Equal(t, byte(0xAB), data[len(data)-1])

	require.NoError(t, view.Close(ctx))
	require.True(t, view.IsReleased())
	require.EqualValues(t, 1, engine.GetStats().ReleaseCount.Load())

	// Closing the view again must not release the buffer twice.
	require.NoError(t, view.Close(ctx))
	require.EqualValues(t, 1, engine.GetStats().ReleaseCount.Load())
	require.EqualValues(t, 0, engine.GetStats().DoubleReleaseCount.Load())

	require.NoError(t, r.Close(ctx))
}

func TestReceiver_ViewSurvivesCaptureContextCancel(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{})
	r, err := New(ctx, engine, Config{})
	require.NoError(t, err)
	defer r.Close(ctx)

	info := testVideoInfo()
	engine.GenerateVideo(ctx, info, 0x5C)

	captureCtx, captureCancel := context.WithCancel(ctx)
	view, err := r.CaptureVideo(captureCtx, time.Second)
	require.NoError(t, err)
	captureCancel()

	// The view's lifetime is governed by Close, not by the capture
	// call's context: accessors keep working after the cancellation.
	data := view.Bytes()
	require.Equal(t, byte(0x5C), data[0])
	require.NoError(t, view.Close(ctx))
}

func TestReceiver_ViewAccessAfterCloseDies(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{})
	r, err := New(ctx, engine, Config{})
	require.NoError(t, err)

	engine.GenerateVideo(ctx, testVideoInfo(), 0x01)
	view, err := r.CaptureVideo(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, view.Close(ctx))

	require.Panics(t, func() { view.Bytes() })
	require.Panics(t, func() { view.ToOwned(ctx) })
	require.NoError(t, r.Close(ctx))
}

func TestReceiver_ViewOutlivingReceiverDies(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{})
	r, err := New(ctx, engine, Config{})
	require.NoError(t, err)

	engine.GenerateVideo(ctx, testVideoInfo(), 0x01)
	view, err := r.CaptureVideo(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, r.Close(ctx))
	require.True(t, r.IsClosed())

	// The engine reclaimed the buffer in Destroy; any access through
	// the stale view must die loudly instead of touching freed memory.
	require.Panics(t, func() { view.Bytes() })

	// Closing the stale view is safe: the release is skipped, not sent
	// to a destroyed connection.
	require.NoError(t, view.Close(ctx))
	require.EqualValues(t, 0, engine.GetStats().ReleaseAfterDestroyCount.Load())

	_, err = r.CaptureVideo(ctx, 0)
	require.ErrorIs(t, err, ndi.ErrClosed{})
}

func TestReceiver_ToOwnedDetachesFromEngineMemory(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{})
	r, err := New(ctx, engine, Config{})
	require.NoError(t, err)

	engine.GenerateVideo(ctx, testVideoInfo(), 0x11)
	view, err := r.CaptureVideo(ctx, time.Second)
	require.NoError(t, err)

	owned := view.ToOwned(ctx)
	require.Equal(t, view.Bytes(), owned.Data)

	// Converting twice yields two independent identical copies.
	owned2 := view.ToOwned(ctx)
	require.Equal(t, owned.Data, owned2.Data)
	owned2.Data[0] = 0xEE
	require.Equal(t, byte(0x11), owned.Data[0])

	// The copy is independent of the engine buffer.
	owned.Data[0] = 0xFF
	require.Equal(t, byte(0x11), view.Bytes()[0])

	// And it survives the view and the receiver.
	require.NoError(t, view.Close(ctx))
	require.NoError(t, r.Close(ctx))
	require.Equal(t, byte(0xFF), owned.Data[0])
	require.Equal(t, byte(0x11), owned.Data[1])
}

func TestReceiver_CaptureOwnedConvenience(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{})
	r, err := New(ctx, engine, Config{})
	require.NoError(t, err)
	defer r.Close(ctx)

	engine.GenerateVideo(ctx, testVideoInfo(), 0x42)
	owned, err := r.CaptureVideoOwned(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), owned.Data[0])
	// The view behind the convenience call is already released.
	require.EqualValues(t, 1, engine.GetStats().ReleaseCount.Load())
}

func TestReceiver_AudioAndMetadata(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{})
	r, err := New(ctx, engine, Config{})
	require.NoError(t, err)
	defer r.Close(ctx)

	audioInfo := frame.AudioInfo{
		SampleRate:   48000,
		ChannelCount: 2,
		SampleCount:  480,
		Layout:       frame.AudioLayoutPlanar,
	}
	engine.GenerateAudio(ctx, audioInfo)
	aview, err := r.CaptureAudio(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, aview.Info().ChannelCount)
	require.Len(t, aview.Bytes(), aview.Info().DataSize())
	require.NoError(t, aview.Close(ctx))

	engine.GenerateMetadata(ctx, "<ndi_version text=\"3\"/>", 1234)
	mview, err := r.CaptureMetadata(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(1234), mview.Timecode())
	require.Equal(t, "<ndi_version text=\"3\"/>", string(mview.Bytes()))
	require.NoError(t, mview.Close(ctx))
}

// brokenReceiver produces a frame whose buffer is empty, as a
// misbehaving engine might.
type brokenReceiver struct {
	ReleaseCallCount int
	DestroyCallCount int
}

var _ transport.Receiver = (*brokenReceiver)(nil)

func (br *brokenReceiver) Capture(
	ctx context.Context,
	kind transport.FrameKind,
	timeout time.Duration,
) (*transport.CapturedFrame, error) {
	info := testVideoInfo()
	return &transport.CapturedFrame{
		Handle: transport.BufferHandle{ID: 1, Kind: kind},
		Video:  &info,
	}, nil
}

func (br *brokenReceiver) Release(transport.BufferHandle) {
	br.ReleaseCallCount++
}

func (br *brokenReceiver) Destroy() {
	br.DestroyCallCount++
}

func TestReceiver_EmptyBufferIsSkippedAndReleased(t *testing.T) {
	ctx := context.Background()
	br := &brokenReceiver{}
	r, err := New(ctx, br, Config{})
	require.NoError(t, err)

	_, err = r.CaptureVideo(ctx, time.Second)
	require.ErrorAs(t, err, &ndi.ErrInvalidBuffer{})
	// Even a degenerate frame goes back to the engine.
	require.Equal(t, 1, br.ReleaseCallCount)

	require.NoError(t, r.Close(ctx))
	require.Equal(t, 1, br.DestroyCallCount)
}

func TestReceiver_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{})
	r, err := New(ctx, engine, Config{})
	require.NoError(t, err)

	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))
	require.EqualValues(t, 1, engine.GetStats().DestroyCount.Load())
}
