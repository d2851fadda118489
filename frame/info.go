// Package frame provides owned media frames, frame metadata and the
// pinnable byte buffer used by asynchronous sends.
package frame

// PixelFormat describes how video pixels are laid out in the buffer.
type PixelFormat int

const (
	PixelFormatUndefined PixelFormat = iota
	// PixelFormatUYVY is YCbCr 4:2:2, 16 bits per pixel.
	PixelFormatUYVY
	// PixelFormatUYVA is YCbCr 4:2:2 plus an alpha plane, 24 bits per pixel.
	PixelFormatUYVA
	// PixelFormatP216 is 16-bit YCbCr 4:2:2.
	PixelFormatP216
	// PixelFormatPA16 is 16-bit YCbCr 4:2:2 plus alpha.
	PixelFormatPA16
	// PixelFormatYV12 is planar YCbCr 4:2:0, 12 bits per pixel.
	PixelFormatYV12
	// PixelFormatI420 is planar YCbCr 4:2:0, 12 bits per pixel.
	PixelFormatI420
	// PixelFormatNV12 is semi-planar YCbCr 4:2:0, 12 bits per pixel.
	PixelFormatNV12
	PixelFormatBGRA
	PixelFormatBGRX
	PixelFormatRGBA
	PixelFormatRGBX
	EndOfPixelFormat
)

func (pf PixelFormat) String() string {
	switch pf {
	case PixelFormatUYVY:
		return "UYVY"
	case PixelFormatUYVA:
		return "UYVA"
	case PixelFormatP216:
		return "P216"
	case PixelFormatPA16:
		return "PA16"
	case PixelFormatYV12:
		return "YV12"
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatBGRA:
		return "BGRA"
	case PixelFormatBGRX:
		return "BGRX"
	case PixelFormatRGBA:
		return "RGBA"
	case PixelFormatRGBX:
		return "RGBX"
	default:
		return "undefined"
	}
}

// LineStride returns the amount of bytes per row for the given width.
// For planar 4:2:0 formats it is the Y-plane stride.
func (pf PixelFormat) LineStride(width int) int {
	switch pf {
	case PixelFormatBGRA, PixelFormatBGRX, PixelFormatRGBA, PixelFormatRGBX:
		return width * 4
	case PixelFormatUYVY:
		return width * 2
	case PixelFormatUYVA:
		return width * 3
	case PixelFormatP216, PixelFormatPA16:
		return width * 4
	case PixelFormatYV12, PixelFormatI420, PixelFormatNV12:
		return width
	default:
		return 0
	}
}

// BufferSize returns the amount of bytes a whole frame of the given
// resolution occupies, including the chroma planes of planar formats.
func (pf PixelFormat) BufferSize(width, height int) int {
	stride := pf.LineStride(width)
	switch pf {
	case PixelFormatYV12, PixelFormatI420:
		chromaHeight := (height + 1) / 2
		chromaStride := (stride + 1) / 2
		return stride*height + 2*chromaStride*chromaHeight
	case PixelFormatNV12:
		chromaHeight := (height + 1) / 2
		return stride*height + stride*chromaHeight
	default:
		return stride * height
	}
}

// ScanType describes whether a frame is progressive or interleaved.
type ScanType int

const (
	ScanTypeProgressive ScanType = iota
	ScanTypeInterleaved
	ScanTypeField0
	ScanTypeField1
)

func (st ScanType) String() string {
	switch st {
	case ScanTypeProgressive:
		return "progressive"
	case ScanTypeInterleaved:
		return "interleaved"
	case ScanTypeField0:
		return "field0"
	case ScanTypeField1:
		return "field1"
	default:
		return "unknown"
	}
}

// AudioLayout describes how multi-channel samples are arranged.
type AudioLayout int

const (
	// AudioLayoutPlanar keeps all samples of channel 0, then all of
	// channel 1, and so on. Native layout of the engine's FLTp frames.
	AudioLayoutPlanar AudioLayout = iota
	// AudioLayoutInterleaved alternates between channels per sample.
	AudioLayoutInterleaved
)

func (al AudioLayout) String() string {
	switch al {
	case AudioLayoutPlanar:
		return "planar"
	case AudioLayoutInterleaved:
		return "interleaved"
	default:
		return "unknown"
	}
}

// VideoInfo is the decoded metadata of one video frame.
type VideoInfo struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
	FrameRateN  int
	FrameRateD  int
	AspectRatio float32
	ScanType    ScanType
	LineStride  int
	Timecode    int64
	Timestamp   int64
}

// DataSize returns the expected payload size of a frame with this info.
func (i VideoInfo) DataSize() int {
	return i.PixelFormat.BufferSize(i.Width, i.Height)
}

// AudioInfo is the decoded metadata of one audio frame. Samples are
// 32-bit floats in the layout indicated by Layout.
type AudioInfo struct {
	SampleRate    int
	ChannelCount  int
	SampleCount   int
	Layout        AudioLayout
	ChannelStride int
	Timecode      int64
	Timestamp     int64
}

// DataSize returns the expected payload size of a frame with this info.
func (i AudioInfo) DataSize() int {
	if i.Layout == AudioLayoutPlanar && i.ChannelStride > 0 {
		return i.ChannelStride * i.ChannelCount
	}
	return 4 * i.SampleCount * i.ChannelCount
}

// MetadataInfo is the decoded metadata of one metadata frame (the
// payload itself lives in the buffer).
type MetadataInfo struct {
	Timecode int64
}
