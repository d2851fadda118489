// frame.go defines the independently-owned frame values.

package frame

import (
	"slices"
)

// Video is an independently-owned video frame: a copy of the pixel data
// with no lifetime ties to the connection it was captured from. Safe to
// retain, clone and move across goroutines.
type Video struct {
	Info VideoInfo
	Data []byte
}

func (f *Video) Clone() *Video {
	if f == nil {
		return nil
	}
	return &Video{
		Info: f.Info,
		Data: slices.Clone(f.Data),
	}
}

// Audio is an independently-owned audio frame.
type Audio struct {
	Info AudioInfo
	Data []byte
}

func (f *Audio) Clone() *Audio {
	if f == nil {
		return nil
	}
	return &Audio{
		Info: f.Info,
		Data: slices.Clone(f.Data),
	}
}

// ChannelData returns a copy of the samples of one channel, or nil if
// the channel does not exist. Only meaningful for planar layout.
func (f *Audio) ChannelData(channel int) []float32 {
	if channel < 0 || channel >= f.Info.ChannelCount {
		return nil
	}
	stride := f.Info.ChannelStride
	if stride == 0 {
		stride = 4 * f.Info.SampleCount
	}
	begin := channel * stride
	end := begin + 4*f.Info.SampleCount
	if end > len(f.Data) {
		return nil
	}
	out := make([]float32, f.Info.SampleCount)
	for i := range out {
		out[i] = bytesToFloat32(f.Data[begin+4*i : begin+4*i+4])
	}
	return out
}

// Metadata is an independently-owned metadata frame (typically XML).
type Metadata struct {
	Data     string
	Timecode int64
}

func (f *Metadata) Clone() *Metadata {
	if f == nil {
		return nil
	}
	out := *f
	return &out
}
