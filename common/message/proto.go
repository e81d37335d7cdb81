package message

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

func Encode(msg proto.Message) ([]byte, error) {
	return proto.Marshal(msg)
}

func Decode(data []byte, msg proto.Message) error {
	return proto.Unmarshal(data, msg)
}

// Builder appends fields in protobuf wire format. It is used for the
// persisted tile-cache layout, which has no generated message types.
type Builder struct {
	buf []byte
}

func (b *Builder) Uint64(num protowire.Number, v uint64) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
	b.buf = protowire.AppendVarint(b.buf, v)
}

func (b *Builder) Int64(num protowire.Number, v int64) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
	b.buf = protowire.AppendVarint(b.buf, protowire.EncodeZigZag(v))
}

func (b *Builder) Float32(num protowire.Number, v float32) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.Fixed32Type)
	b.buf = protowire.AppendFixed32(b.buf, math.Float32bits(v))
}

// Float32s writes a packed repeated float field.
func (b *Builder) Float32s(num protowire.Number, v []float32) {
	packed := make([]byte, 0, 4*len(v))
	for _, f := range v {
		packed = protowire.AppendFixed32(packed, math.Float32bits(f))
	}
	b.Bytes(num, packed)
}

func (b *Builder) Bytes(num protowire.Number, v []byte) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
	b.buf = protowire.AppendBytes(b.buf, v)
}

// Message writes a nested message built by fn.
func (b *Builder) Message(num protowire.Number, fn func(*Builder)) {
	var nested Builder
	fn(&nested)
	b.Bytes(num, nested.buf)
}

func (b *Builder) Data() []byte { return b.buf }

// Value holds one decoded field value. Only the member matching the wire type is set.
type Value struct {
	Varint  uint64
	Fixed32 uint32
	Fixed64 uint64
	Bytes   []byte
}

func (v Value) Int64() int64     { return protowire.DecodeZigZag(v.Varint) }
func (v Value) Float32() float32 { return math.Float32frombits(v.Fixed32) }

// Float32s decodes a packed repeated float field.
func (v Value) Float32s() ([]float32, error) {
	if len(v.Bytes)%4 != 0 {
		return nil, fmt.Errorf("message: packed float field has %d bytes", len(v.Bytes))
	}
	out := make([]float32, 0, len(v.Bytes)/4)
	for b := v.Bytes; len(b) > 0; b = b[4:] {
		u, _ := protowire.ConsumeFixed32(b)
		out = append(out, math.Float32frombits(u))
	}
	return out, nil
}

// Range calls fn for every top-level field in data, in wire order.
func Range(data []byte, fn func(num protowire.Number, v Value) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var v Value
		switch typ {
		case protowire.VarintType:
			v.Varint, n = protowire.ConsumeVarint(data)
		case protowire.Fixed32Type:
			v.Fixed32, n = protowire.ConsumeFixed32(data)
		case protowire.Fixed64Type:
			v.Fixed64, n = protowire.ConsumeFixed64(data)
		case protowire.BytesType:
			v.Bytes, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		if err := fn(num, v); err != nil {
			return err
		}
	}
	return nil
}
