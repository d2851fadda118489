// e2e_test.go drives a full sender -> engine -> receiver round trip
// over the in-process loopback engine.

package recv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ndi "github.com/GrantSparks/grafton-ndi"
	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/send"
	"github.com/GrantSparks/grafton-ndi/transport/loopback"
)

func TestRoundTrip_Video(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{SendLatency: 2 * time.Millisecond})

	snd, err := send.New(ctx, engine, send.Config{Name: "e2e"})
	require.NoError(t, err)
	rcv, err := New(ctx, engine, Config{Name: "e2e"})
	require.NoError(t, err)

	info := testVideoInfo()
	info.LineStride = info.PixelFormat.LineStride(info.Width)
	buf := frame.NewBuffer(info.DataSize())

	const frameCount = 8
	for i := 0; i < frameCount; i++ {
		require.NoError(t, buf.Fill(byte(i+1)))
		token, err := snd.SendVideoAsync(ctx, buf, info)
		require.NoError(t, err)

		// The buffer stays borrowed until the engine confirmed.
		require.ErrorIs(t, buf.Fill(0xFF), ndi.ErrBufferPinned{})
		require.NoError(t, token.Wait(ctx))

		view, err := rcv.CaptureVideo(ctx, time.Second)
		require.NoError(t, err)
		require.Equal(t, byte(i+1), view.Bytes()[0])
		require.NoError(t, view.Close(ctx))
	}

	require.NoError(t, snd.Close(ctx))
	require.NoError(t, rcv.Close(ctx))

	stats := engine.GetStats()
	require.EqualValues(t, frameCount, stats.SendCount.Load())
	require.EqualValues(t, frameCount, stats.ReleaseCount.Load())
	require.EqualValues(t, 0, stats.DoubleReleaseCount.Load())
	require.EqualValues(t, 0, stats.ReleaseAfterDestroyCount.Load())
}

func TestRoundTrip_AudioAndMetadata(t *testing.T) {
	ctx := context.Background()
	engine := loopback.New(ctx, loopback.Config{})

	snd, err := send.New(ctx, engine, send.Config{})
	require.NoError(t, err)
	rcv, err := New(ctx, engine, Config{})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, snd.Close(ctx))
		require.NoError(t, rcv.Close(ctx))
	}()

	audioInfo := frame.AudioInfo{
		SampleRate:    48000,
		ChannelCount:  2,
		SampleCount:   4,
		Layout:        frame.AudioLayoutPlanar,
		ChannelStride: 16,
	}
	audioData := make([]byte, audioInfo.DataSize())
	frame.PutSamples(audioData[:16], []float32{0.25, -0.25, 0.5, -0.5})
	require.NoError(t, snd.SendAudio(ctx, &frame.Audio{Info: audioInfo, Data: audioData}))

	aview, err := rcv.CaptureAudio(ctx, time.Second)
	require.NoError(t, err)
	owned := aview.ToOwned(ctx)
	require.NoError(t, aview.Close(ctx))
	require.Equal(t, []float32{0.25, -0.25, 0.5, -0.5}, owned.ChannelData(0))

	require.NoError(t, snd.SendMetadata(ctx, &frame.Metadata{Data: "<ndi_tally on_program=\"true\"/>", Timecode: 99}))
	mview, err := rcv.CaptureMetadata(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "<ndi_tally on_program=\"true\"/>", string(mview.Bytes()))
	require.Equal(t, int64(99), mview.Timecode())
	require.NoError(t, mview.Close(ctx))
}
