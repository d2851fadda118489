package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	ndi "github.com/GrantSparks/grafton-ndi"
)

func TestBuffer_MutatorsFailWhilePinned(t *testing.T) {
	buf := NewBuffer(16)
	require.NoError(t, buf.Fill(0x7F))

	buf.Pin()
	require.True(t, buf.IsPinned())

	require.ErrorIs(t, buf.Fill(0x00), ndi.ErrBufferPinned{})
	_, err := buf.CopyFrom([]byte{1, 2, 3})
	require.ErrorIs(t, err, ndi.ErrBufferPinned{})
	_, err = buf.WriteAt([]byte{1}, 0)
	require.ErrorIs(t, err, ndi.ErrBufferPinned{})

	// Reads stay allowed while pinned.
	require.Equal(t, byte(0x7F), buf.Bytes()[0])

	buf.Unpin()
	require.False(t, buf.IsPinned())
	require.NoError(t, buf.Fill(0x00))
	require.Equal(t, byte(0x00), buf.Bytes()[15])
}

func TestBuffer_PinIsCounted(t *testing.T) {
	buf := NewBuffer(4)
	buf.Pin()
	buf.Pin()
	buf.Unpin()
	require.True(t, buf.IsPinned())
	buf.Unpin()
	require.False(t, buf.IsPinned())

	require.Panics(t, func() { buf.Unpin() })
}

func TestBuffer_WriteAt(t *testing.T) {
	buf := NewBuffer(8)
	n, err := buf.WriteAt([]byte{1, 2, 3}, 4)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 0}, buf.Bytes())

	_, err = buf.WriteAt([]byte{1}, 9)
	require.ErrorAs(t, err, &ndi.ErrInvalidBuffer{})
	_, err = buf.WriteAt([]byte{1}, -1)
	require.ErrorAs(t, err, &ndi.ErrInvalidBuffer{})
}

func TestBufferOf_WrapsWithoutCopy(t *testing.T) {
	backing := []byte{1, 2, 3}
	buf := BufferOf(backing)
	require.Equal(t, 3, buf.Len())

	_, err := buf.CopyFrom([]byte{9})
	require.NoError(t, err)
	require.Equal(t, byte(9), backing[0])
}
