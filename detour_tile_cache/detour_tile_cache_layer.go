package detour_tile_cache

import (
	"fmt"

	"github.com/gorustyt/navrt/common/rw"
	"github.com/gorustyt/navrt/detour"
	"github.com/klauspost/compress/s2"
)

const DT_TILECACHE_MAGIC = 'D'<<24 | 'T'<<16 | 'L'<<8 | 'R' ///< 'DTLR';
const DT_TILECACHE_VERSION = 1

const (
	DT_TILECACHE_NULL_AREA     = 0
	DT_TILECACHE_WALKABLE_AREA = 63
	DT_TILECACHE_NULL_IDX      = 0xffff
)

// Size of the encoded header, padded to four bytes.
const tileCacheLayerHeaderSize = 56

type DtTileCacheLayerHeader struct {
	Magic                  int32 ///< Data magic
	Version                int32 ///< Data version
	Tx, Ty, Tlayer         int32
	Bmin, Bmax             [3]float32
	Hmin, Hmax             uint16 ///< Height min/max range
	Width, Height          uint8  ///< Dimension of the layer.
	Minx, Maxx, Miny, Maxy uint8  ///< Usable sub-region.
}

func (h *DtTileCacheLayerHeader) ToBin(w *rw.ReaderWriter) {
	w.WriteInt32(h.Magic)
	w.WriteInt32(h.Version)
	w.WriteInt32(h.Tx)
	w.WriteInt32(h.Ty)
	w.WriteInt32(h.Tlayer)
	w.WriteFloat32s(h.Bmin[:])
	w.WriteFloat32s(h.Bmax[:])
	w.WriteUInt16(h.Hmin)
	w.WriteUInt16(h.Hmax)
	w.WriteUInt8s([]uint8{h.Width, h.Height, h.Minx, h.Maxx, h.Miny, h.Maxy})
	w.PadZero(2)
}

func (h *DtTileCacheLayerHeader) FromBin(r *rw.ReaderWriter) {
	h.Magic = r.ReadInt32()
	h.Version = r.ReadInt32()
	h.Tx = r.ReadInt32()
	h.Ty = r.ReadInt32()
	h.Tlayer = r.ReadInt32()
	r.ReadFloat32s(h.Bmin[:])
	r.ReadFloat32s(h.Bmax[:])
	h.Hmin = r.ReadUInt16()
	h.Hmax = r.ReadUInt16()
	h.Width = r.ReadUInt8()
	h.Height = r.ReadUInt8()
	h.Minx = r.ReadUInt8()
	h.Maxx = r.ReadUInt8()
	h.Miny = r.ReadUInt8()
	h.Maxy = r.ReadUInt8()
	r.Skip(2)
}

// DtTileCacheLayer is the decompressed working copy of a layer. Regs is scratch
// space filled by the region pass.
type DtTileCacheLayer struct {
	Header   *DtTileCacheLayerHeader
	RegCount uint8 ///< Region count.
	Heights  []uint8
	Areas    []uint8
	Cons     []uint8
	Regs     []uint8
}

// DtTileCacheCompressor packs the layer grids of a compressed tile.
type DtTileCacheCompressor interface {
	MaxCompressedSize(bufferSize int) int
	Compress(buffer []byte) ([]byte, detour.DtStatus)
	Decompress(compressed []byte, maxBufferSize int) ([]byte, detour.DtStatus)
}

// S2Compressor stores layers as s2 blocks.
type S2Compressor struct{}

func (S2Compressor) MaxCompressedSize(bufferSize int) int { return s2.MaxEncodedLen(bufferSize) }

func (S2Compressor) Compress(buffer []byte) ([]byte, detour.DtStatus) {
	return s2.Encode(nil, buffer), detour.DT_SUCCESS
}

func (S2Compressor) Decompress(compressed []byte, maxBufferSize int) ([]byte, detour.DtStatus) {
	n, err := s2.DecodedLen(compressed)
	if err != nil {
		return nil, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	if n > maxBufferSize {
		return nil, detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
	}
	out, err := s2.Decode(make([]byte, n), compressed)
	if err != nil {
		return nil, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	return out, detour.DT_SUCCESS
}

// DtBuildTileCacheLayer encodes the header followed by the compressed heights, areas and cons grids.
func DtBuildTileCacheLayer(comp DtTileCacheCompressor, header *DtTileCacheLayerHeader,
	heights, areas, cons []uint8) ([]byte, detour.DtStatus) {
	if comp == nil || header == nil {
		return nil, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	gridSize := int(header.Width) * int(header.Height)
	if len(heights) < gridSize || len(areas) < gridSize || len(cons) < gridSize {
		return nil, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}

	buffer := make([]byte, 0, gridSize*3)
	buffer = append(buffer, heights[:gridSize]...)
	buffer = append(buffer, areas[:gridSize]...)
	buffer = append(buffer, cons[:gridSize]...)

	compressed, status := comp.Compress(buffer)
	if status.Failed() {
		return nil, status
	}
	if len(compressed) > comp.MaxCompressedSize(len(buffer)) {
		return nil, detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
	}

	w := rw.NewWriter()
	header.ToBin(w)
	w.WriteUInt8s(compressed)
	return w.GetWriteBytes(), detour.DT_SUCCESS
}

// DtDecodeTileCacheLayerHeader reads and checks the header of a compressed layer.
func DtDecodeTileCacheLayerHeader(data []byte) (*DtTileCacheLayerHeader, detour.DtStatus) {
	if len(data) < tileCacheLayerHeaderSize {
		return nil, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	header := &DtTileCacheLayerHeader{}
	r := rw.NewReader(data[:tileCacheLayerHeaderSize])
	header.FromBin(r)
	if r.Err() != nil {
		return nil, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	if header.Magic != DT_TILECACHE_MAGIC {
		return nil, detour.DT_FAILURE | detour.DT_WRONG_MAGIC
	}
	if header.Version != DT_TILECACHE_VERSION {
		return nil, detour.DT_FAILURE | detour.DT_WRONG_VERSION
	}
	return header, detour.DT_SUCCESS
}

// DtDecompressTileCacheLayer expands a compressed layer. The header is copied so
// the builder may scribble over the result.
func DtDecompressTileCacheLayer(comp DtTileCacheCompressor, data []byte) (*DtTileCacheLayer, detour.DtStatus) {
	if comp == nil {
		return nil, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	header, status := DtDecodeTileCacheLayerHeader(data)
	if status.Failed() {
		return nil, status
	}
	gridSize := int(header.Width) * int(header.Height)
	grids, status := comp.Decompress(data[tileCacheLayerHeaderSize:], gridSize*3)
	if status.Failed() {
		return nil, status
	}
	if len(grids) != gridSize*3 {
		return nil, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	return &DtTileCacheLayer{
		Header:  header,
		Heights: grids[:gridSize],
		Areas:   grids[gridSize : gridSize*2],
		Cons:    grids[gridSize*2:],
		Regs:    make([]uint8, gridSize),
	}, detour.DT_SUCCESS
}

func (h *DtTileCacheLayerHeader) String() string {
	return fmt.Sprintf("layer(%d,%d,%d %dx%d)", h.Tx, h.Ty, h.Tlayer, h.Width, h.Height)
}
