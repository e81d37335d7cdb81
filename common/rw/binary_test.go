package rw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUInt8(7)
	w.WriteUInt16s([]uint16{1, 0xffff})
	w.WriteInt32(-42)
	w.WriteUInt64(1 << 40)
	w.WriteFloat32s([]float32{1.5, -2.25})

	r := NewReader(w.GetWriteBytes())
	assert.Equal(t, uint8(7), r.ReadUInt8())
	u16 := make([]uint16, 2)
	r.ReadUInt16s(u16)
	assert.Equal(t, []uint16{1, 0xffff}, u16)
	assert.Equal(t, int32(-42), r.ReadInt32())
	assert.Equal(t, uint64(1<<40), r.ReadUInt64())
	f := make([]float32, 2)
	r.ReadFloat32s(f)
	assert.Equal(t, []float32{1.5, -2.25}, f)
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Size())
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{1, 2})
	assert.Equal(t, uint32(0), r.ReadUInt32())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
	// later reads keep returning zero values
	assert.Equal(t, uint8(0), r.ReadUInt8())
	assert.Nil(t, r.ReadBytes(1))
}
