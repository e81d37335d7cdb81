package detour

import (
	"fmt"

	"github.com/gorustyt/navrt/common/rw"
)

func dtAlign4(x int) int { return (x + 3) & ^3 }

func getAlignOffset(old int) int {
	return dtAlign4(old) - old
}

func (h *DtMeshHeader) ToBin(w *rw.ReaderWriter) {
	w.WriteInt32(h.Magic)
	w.WriteInt32(h.Version)
	w.WriteInt32(h.X)
	w.WriteInt32(h.Y)
	w.WriteInt32(h.Layer)
	w.WriteUInt32(h.UserId)
	w.WriteInt32(h.PolyCount)
	w.WriteInt32(h.VertCount)
	w.WriteInt32(h.MaxLinkCount)
	w.WriteInt32(h.DetailMeshCount)
	w.WriteInt32(h.DetailVertCount)
	w.WriteInt32(h.DetailTriCount)
	w.WriteInt32(h.BvNodeCount)
	w.WriteInt32(h.OffMeshConCount)
	w.WriteInt32(h.OffMeshBase)
	w.WriteFloat32(h.WalkableHeight)
	w.WriteFloat32(h.WalkableRadius)
	w.WriteFloat32(h.WalkableClimb)
	w.WriteFloat32s(h.Bmin[:])
	w.WriteFloat32s(h.Bmax[:])
	w.WriteFloat32(h.BvQuantFactor)
}

func (h *DtMeshHeader) FromBin(r *rw.ReaderWriter) {
	h.Magic = r.ReadInt32()
	h.Version = r.ReadInt32()
	h.X = r.ReadInt32()
	h.Y = r.ReadInt32()
	h.Layer = r.ReadInt32()
	h.UserId = r.ReadUInt32()
	h.PolyCount = r.ReadInt32()
	h.VertCount = r.ReadInt32()
	h.MaxLinkCount = r.ReadInt32()
	h.DetailMeshCount = r.ReadInt32()
	h.DetailVertCount = r.ReadInt32()
	h.DetailTriCount = r.ReadInt32()
	h.BvNodeCount = r.ReadInt32()
	h.OffMeshConCount = r.ReadInt32()
	h.OffMeshBase = r.ReadInt32()
	h.WalkableHeight = r.ReadFloat32()
	h.WalkableRadius = r.ReadFloat32()
	h.WalkableClimb = r.ReadFloat32()
	r.ReadFloat32s(h.Bmin[:])
	r.ReadFloat32s(h.Bmax[:])
	h.BvQuantFactor = r.ReadFloat32()
}

func (p *DtPoly) ToBin(w *rw.ReaderWriter) {
	w.WriteUInt32(p.FirstLink)
	w.WriteUInt16s(p.Verts[:])
	w.WriteUInt16s(p.Neis[:])
	w.WriteUInt16(p.Flags)
	w.WriteUInt8(p.VertCount)
	w.WriteUInt8(p.AreaAndtype)
}

func (p *DtPoly) FromBin(r *rw.ReaderWriter) {
	p.FirstLink = r.ReadUInt32()
	r.ReadUInt16s(p.Verts[:])
	r.ReadUInt16s(p.Neis[:])
	p.Flags = r.ReadUInt16()
	p.VertCount = r.ReadUInt8()
	p.AreaAndtype = r.ReadUInt8()
}

func (d *DtPolyDetail) ToBin(w *rw.ReaderWriter) {
	w.WriteUInt32(d.VertBase)
	w.WriteUInt32(d.TriBase)
	w.WriteUInt8(d.VertCount)
	w.WriteUInt8(d.TriCount)
	w.PadZero(2)
}

func (d *DtPolyDetail) FromBin(r *rw.ReaderWriter) {
	d.VertBase = r.ReadUInt32()
	d.TriBase = r.ReadUInt32()
	d.VertCount = r.ReadUInt8()
	d.TriCount = r.ReadUInt8()
	r.Skip(2)
}

func (n *DtBVNode) ToBin(w *rw.ReaderWriter) {
	w.WriteUInt16s(n.Bmin[:])
	w.WriteUInt16s(n.Bmax[:])
	w.WriteInt32(n.I)
}

func (n *DtBVNode) FromBin(r *rw.ReaderWriter) {
	r.ReadUInt16s(n.Bmin[:])
	r.ReadUInt16s(n.Bmax[:])
	n.I = r.ReadInt32()
}

func (c *DtOffMeshConnection) ToBin(w *rw.ReaderWriter) {
	w.WriteFloat32s(c.Pos[:])
	w.WriteFloat32(c.Rad)
	w.WriteUInt16(c.Poly)
	w.WriteUInt8(c.Flags)
	w.WriteUInt8(c.Side)
	w.WriteUInt32(c.UserId)
}

func (c *DtOffMeshConnection) FromBin(r *rw.ReaderWriter) {
	r.ReadFloat32s(c.Pos[:])
	c.Rad = r.ReadFloat32()
	c.Poly = r.ReadUInt16()
	c.Flags = r.ReadUInt8()
	c.Side = r.ReadUInt8()
	c.UserId = r.ReadUInt32()
}

// ToBin serializes the tile in little endian with each section padded to four bytes.
// Links are not stored, they are rebuilt when the tile is added to a mesh.
func (d *NavMeshData) ToBin() []byte {
	w := rw.NewWriter()
	d.Header.ToBin(w)
	w.WriteFloat32s(d.Verts)
	for i := range d.Polys {
		d.Polys[i].ToBin(w)
	}
	for i := range d.DetailMeshes {
		d.DetailMeshes[i].ToBin(w)
	}
	w.WriteFloat32s(d.DetailVerts)
	w.WriteUInt8s(d.DetailTris)
	w.PadZero(getAlignOffset(len(d.DetailTris)))
	for i := range d.BvTree {
		d.BvTree[i].ToBin(w)
	}
	for i := range d.OffMeshCons {
		d.OffMeshCons[i].ToBin(w)
	}
	return w.GetWriteBytes()
}

// FromBin parses a tile written by ToBin, validating magic, version and section sizes.
func (d *NavMeshData) FromBin(data []byte) error {
	r := rw.NewReader(data)
	d.Header.FromBin(r)
	if err := r.Err(); err != nil {
		return fmt.Errorf("read navmesh header: %w", err)
	}
	h := &d.Header
	if h.Magic != DT_NAVMESH_MAGIC {
		return ErrWrongMagic
	}
	if h.Version != DT_NAVMESH_VERSION {
		return ErrWrongVersion
	}
	if h.VertCount < 0 || h.PolyCount < 0 || h.DetailMeshCount < 0 || h.DetailVertCount < 0 ||
		h.DetailTriCount < 0 || h.BvNodeCount < 0 || h.OffMeshConCount < 0 {
		return fmt.Errorf("%w: negative section size", ErrInvalidParam)
	}
	// Every section needs at least one byte per element, bail before allocating on garbage input.
	if int64(h.VertCount)*3+int64(h.PolyCount)+int64(h.DetailTriCount) > int64(len(data)) {
		return fmt.Errorf("navmesh data: %w", rw.ErrShortBuffer)
	}

	d.Verts = make([]float32, h.VertCount*3)
	r.ReadFloat32s(d.Verts)
	d.Polys = make([]DtPoly, h.PolyCount)
	for i := range d.Polys {
		d.Polys[i].FromBin(r)
	}
	d.DetailMeshes = make([]DtPolyDetail, h.DetailMeshCount)
	for i := range d.DetailMeshes {
		d.DetailMeshes[i].FromBin(r)
	}
	d.DetailVerts = make([]float32, h.DetailVertCount*3)
	r.ReadFloat32s(d.DetailVerts)
	d.DetailTris = make([]uint8, h.DetailTriCount*4)
	r.ReadUInt8s(d.DetailTris)
	r.Skip(getAlignOffset(len(d.DetailTris)))
	d.BvTree = make([]DtBVNode, h.BvNodeCount)
	for i := range d.BvTree {
		d.BvTree[i].FromBin(r)
	}
	d.OffMeshCons = make([]DtOffMeshConnection, h.OffMeshConCount)
	for i := range d.OffMeshCons {
		d.OffMeshCons[i].FromBin(r)
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("read navmesh data: %w", err)
	}
	return nil
}
