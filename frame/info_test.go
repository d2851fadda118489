package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPixelFormat_LineStride(t *testing.T) {
	require.Equal(t, 1920*4, PixelFormatBGRA.LineStride(1920))
	require.Equal(t, 1920*4, PixelFormatRGBX.LineStride(1920))
	require.Equal(t, 1920*2, PixelFormatUYVY.LineStride(1920))
	require.Equal(t, 1920*3, PixelFormatUYVA.LineStride(1920))
	require.Equal(t, 1920*4, PixelFormatP216.LineStride(1920))
	require.Equal(t, 1920, PixelFormatI420.LineStride(1920))
	require.Equal(t, 0, PixelFormatUndefined.LineStride(1920))
}

func TestPixelFormat_BufferSize(t *testing.T) {
	// Packed formats are stride times height.
	require.Equal(t, 1280*2*720, PixelFormatUYVY.BufferSize(1280, 720))
	require.Equal(t, 1280*4*720, PixelFormatBGRA.BufferSize(1280, 720))

	// 4:2:0 planar formats carry two quarter-size chroma planes.
	require.Equal(t, 1280*720*3/2, PixelFormatI420.BufferSize(1280, 720))
	require.Equal(t, 1280*720*3/2, PixelFormatYV12.BufferSize(1280, 720))
	require.Equal(t, 1280*720*3/2, PixelFormatNV12.BufferSize(1280, 720))

	// Odd sizes round the chroma planes up.
	require.Equal(t, 3*3+2*2*2, PixelFormatI420.BufferSize(3, 3))
}

func TestVideoInfo_DataSize(t *testing.T) {
	info := VideoInfo{Width: 640, Height: 480, PixelFormat: PixelFormatUYVY}
	require.Equal(t, 640*2*480, info.DataSize())
}

func TestAudioInfo_DataSize(t *testing.T) {
	planar := AudioInfo{
		SampleRate:    48000,
		ChannelCount:  2,
		SampleCount:   480,
		Layout:        AudioLayoutPlanar,
		ChannelStride: 4 * 480,
	}
	require.Equal(t, 2*4*480, planar.DataSize())

	// Without an explicit stride the tight layout is assumed.
	interleaved := AudioInfo{
		ChannelCount: 4,
		SampleCount:  128,
		Layout:       AudioLayoutInterleaved,
	}
	require.Equal(t, 4*4*128, interleaved.DataSize())
}

func TestAudio_ChannelData(t *testing.T) {
	info := AudioInfo{
		ChannelCount:  2,
		SampleCount:   3,
		Layout:        AudioLayoutPlanar,
		ChannelStride: 12,
	}
	data := make([]byte, info.DataSize())
	PutSamples(data[:12], []float32{0.0, 0.5, 1.0})
	PutSamples(data[12:], []float32{-1.0, -0.5, 0.25})

	f := &Audio{Info: info, Data: data}
	require.Equal(t, []float32{0.0, 0.5, 1.0}, f.ChannelData(0))
	require.Equal(t, []float32{-1.0, -0.5, 0.25}, f.ChannelData(1))
	require.Nil(t, f.ChannelData(2))
	require.Nil(t, f.ChannelData(-1))
}

func TestVideo_Clone(t *testing.T) {
	f := &Video{
		Info: VideoInfo{Width: 2, Height: 1, PixelFormat: PixelFormatBGRA},
		Data: []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	c := f.Clone()
	c.Data[0] = 0xFF
	require.Equal(t, byte(1), f.Data[0])

	var nilFrame *Video
	require.Nil(t, nilFrame.Clone())
}
