package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func TestBuilderRange(t *testing.T) {
	var b Builder
	b.Uint64(1, 300)
	b.Int64(2, -5)
	b.Float32(3, 0.5)
	b.Float32s(4, []float32{1, 2, 3})
	b.Message(5, func(n *Builder) {
		n.Bytes(1, []byte("abc"))
	})

	got := map[protowire.Number]Value{}
	require.NoError(t, Range(b.Data(), func(num protowire.Number, v Value) error {
		got[num] = v
		return nil
	}))
	assert.Equal(t, uint64(300), got[1].Varint)
	assert.Equal(t, int64(-5), got[2].Int64())
	assert.Equal(t, float32(0.5), got[3].Float32())
	fs, err := got[4].Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, fs)

	var inner []byte
	require.NoError(t, Range(got[5].Bytes, func(num protowire.Number, v Value) error {
		inner = v.Bytes
		return nil
	}))
	assert.Equal(t, []byte("abc"), inner)
}

func TestRangeTruncated(t *testing.T) {
	var b Builder
	b.Bytes(1, []byte("abcdef"))
	data := b.Data()
	err := Range(data[:len(data)-2], func(protowire.Number, Value) error { return nil })
	assert.Error(t, err)
}

func TestEncodeDecodeTimestamp(t *testing.T) {
	ts := timestamppb.New(time.Unix(1700000000, 0))
	data, err := Encode(ts)
	require.NoError(t, err)
	var out timestamppb.Timestamp
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, ts.GetSeconds(), out.GetSeconds())
}
