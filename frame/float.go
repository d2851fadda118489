package frame

import (
	"encoding/binary"
	"math"
)

func bytesToFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

// PutSamples serializes float32 samples into dst as the engine's native
// little-endian FLTp bytes. dst must be at least 4*len(samples) long.
func PutSamples(dst []byte, samples []float32) {
	for i, v := range samples {
		putFloat32(dst[4*i:], v)
	}
}
