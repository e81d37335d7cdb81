package detour

import (
	"math"

	"github.com/gorustyt/navrt/common"
)

// / A navigation mesh based on tiles of convex polygons.
// / Tiles are looked up by grid location, polygons by salted references,
// / so stale references are rejected once a tile slot has been reused.
type DtNavMesh struct {
	m_params      NavMeshParams
	m_orig        [3]float32
	m_tileWidth   float32
	m_tileHeight  float32
	m_maxTiles    int32
	m_tileLutSize int32
	m_tileLutMask int32
	m_posLookup   []*DtMeshTile
	m_nextFree    *DtMeshTile
	m_tiles       []DtMeshTile
}

// NewDtNavMesh initializes a tiled navigation mesh.
func NewDtNavMesh(params *NavMeshParams) (*DtNavMesh, DtStatus) {
	m := &DtNavMesh{}
	status := m.Init(params)
	if status.Failed() {
		return nil, status
	}
	return m, status
}

// NewDtNavMeshSingle creates a navigation mesh holding exactly the given tile.
func NewDtNavMeshSingle(data *NavMeshData) (*DtNavMesh, DtStatus) {
	if data == nil {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}
	header := &data.Header
	if header.Magic != DT_NAVMESH_MAGIC {
		return nil, DT_FAILURE | DT_WRONG_MAGIC
	}
	if header.Version != DT_NAVMESH_VERSION {
		return nil, DT_FAILURE | DT_WRONG_VERSION
	}
	params := &NavMeshParams{
		Orig:       header.Bmin,
		TileWidth:  header.Bmax[0] - header.Bmin[0],
		TileHeight: header.Bmax[2] - header.Bmin[2],
		MaxTiles:   1,
		MaxPolys:   header.PolyCount,
	}
	m, status := NewDtNavMesh(params)
	if status.Failed() {
		return nil, status
	}
	if _, status = m.AddTile(data, 0); status.Failed() {
		return nil, status
	}
	return m, status
}

func (m *DtNavMesh) Init(params *NavMeshParams) DtStatus {
	if params == nil || params.MaxTiles <= 0 || params.MaxPolys <= 0 {
		return DT_FAILURE | DT_INVALID_PARAM
	}
	if int64(params.MaxTiles) > 1<<DT_TILE_BITS || int64(params.MaxPolys) > 1<<DT_POLY_BITS {
		return DT_FAILURE | DT_INVALID_PARAM
	}
	if params.TileWidth <= 0 || params.TileHeight <= 0 {
		return DT_FAILURE | DT_INVALID_PARAM
	}
	m.m_params = *params
	m.m_orig = params.Orig
	m.m_tileWidth = params.TileWidth
	m.m_tileHeight = params.TileHeight

	// Init tiles
	m.m_maxTiles = params.MaxTiles
	m.m_tileLutSize = int32(common.NextPow2(uint32(params.MaxTiles / 4)))
	if m.m_tileLutSize == 0 {
		m.m_tileLutSize = 1
	}
	m.m_tileLutMask = m.m_tileLutSize - 1

	m.m_tiles = make([]DtMeshTile, m.m_maxTiles)
	m.m_posLookup = make([]*DtMeshTile, m.m_tileLutSize)
	m.m_nextFree = nil
	for i := m.m_maxTiles - 1; i >= 0; i-- {
		m.m_tiles[i].salt = 1
		m.m_tiles[i].index = uint32(i)
		m.m_tiles[i].next = m.m_nextFree
		m.m_nextFree = &m.m_tiles[i]
	}
	return DT_SUCCESS
}

func (m *DtNavMesh) GetParams() *NavMeshParams { return &m.m_params }

func (m *DtNavMesh) GetMaxTiles() int { return int(m.m_maxTiles) }

// GetTile returns the tile slot i. Its Header is nil when the slot is empty.
func (m *DtNavMesh) GetTile(i int) *DtMeshTile { return &m.m_tiles[i] }

// / Derives a standard polygon reference.
func (m *DtNavMesh) EncodePolyId(salt, it, ip uint32) DtPolyRef {
	return DtPolyRef(salt)<<(DT_POLY_BITS+DT_TILE_BITS) | DtPolyRef(it)<<DT_POLY_BITS | DtPolyRef(ip)
}

// / Decodes a standard polygon reference.
func (m *DtNavMesh) DecodePolyId(ref DtPolyRef) (salt, it, ip uint32) {
	saltMask := DtPolyRef(1)<<DT_SALT_BITS - 1
	tileMask := DtPolyRef(1)<<DT_TILE_BITS - 1
	polyMask := DtPolyRef(1)<<DT_POLY_BITS - 1
	salt = uint32((ref >> (DT_POLY_BITS + DT_TILE_BITS)) & saltMask)
	it = uint32((ref >> DT_POLY_BITS) & tileMask)
	ip = uint32(ref & polyMask)
	return salt, it, ip
}

// / Extracts a tile's salt value from the specified polygon reference.
func (m *DtNavMesh) DecodePolyIdSalt(ref DtPolyRef) uint32 {
	salt, _, _ := m.DecodePolyId(ref)
	return salt
}

// / Extracts the tile's index from the specified polygon reference.
func (m *DtNavMesh) DecodePolyIdTile(ref DtPolyRef) uint32 {
	_, it, _ := m.DecodePolyId(ref)
	return it
}

// / Extracts the polygon's index (within its tile) from the specified polygon reference.
func (m *DtNavMesh) DecodePolyIdPoly(ref DtPolyRef) uint32 {
	_, _, ip := m.DecodePolyId(ref)
	return ip
}

// / Calculates the tile grid location for the specified world position.
func (m *DtNavMesh) CalcTileLoc(pos []float32) (tx, ty int32) {
	tx = int32(math.Floor(float64((pos[0] - m.m_orig[0]) / m.m_tileWidth)))
	ty = int32(math.Floor(float64((pos[2] - m.m_orig[2]) / m.m_tileHeight)))
	return tx, ty
}

func (m *DtNavMesh) tileHash(x, y int32) int {
	return common.ComputeTileHash(int(x), int(y), int(m.m_tileLutMask))
}

// / Gets the tile at the specified grid location.
func (m *DtNavMesh) GetTileAt(x, y, layer int32) *DtMeshTile {
	tile := m.m_posLookup[m.tileHash(x, y)]
	for tile != nil {
		if tile.Header != nil && tile.Header.X == x && tile.Header.Y == y && tile.Header.Layer == layer {
			return tile
		}
		tile = tile.next
	}
	return nil
}

// / Gets all tiles at the specified grid location. (All layers.)
func (m *DtNavMesh) GetTilesAt(x, y int32) []*DtMeshTile {
	var tiles []*DtMeshTile
	tile := m.m_posLookup[m.tileHash(x, y)]
	for tile != nil {
		if tile.Header != nil && tile.Header.X == x && tile.Header.Y == y {
			tiles = append(tiles, tile)
		}
		tile = tile.next
	}
	return tiles
}

func (m *DtNavMesh) getNeighbourTilesAt(x, y int32, side int) []*DtMeshTile {
	nx, ny := x, y
	switch side {
	case 0:
		nx++
	case 1:
		nx++
		ny++
	case 2:
		ny++
	case 3:
		nx--
		ny++
	case 4:
		nx--
	case 5:
		nx--
		ny--
	case 6:
		ny--
	case 7:
		nx++
		ny--
	}
	return m.GetTilesAt(nx, ny)
}

// / Gets the tile reference for the tile at specified grid location.
func (m *DtNavMesh) GetTileRefAt(x, y, layer int32) DtTileRef {
	return m.GetTileRef(m.GetTileAt(x, y, layer))
}

// / Gets the tile reference for the specified tile.
func (m *DtNavMesh) GetTileRef(tile *DtMeshTile) DtTileRef {
	if tile == nil {
		return 0
	}
	return DtTileRef(m.EncodePolyId(tile.salt, tile.index, 0))
}

// / Gets the polygon reference for the tile's base polygon.
func (m *DtNavMesh) GetPolyRefBase(tile *DtMeshTile) DtPolyRef {
	if tile == nil {
		return 0
	}
	return m.EncodePolyId(tile.salt, tile.index, 0)
}

// / Gets the tile for the specified tile reference.
func (m *DtNavMesh) GetTileByRef(ref DtTileRef) *DtMeshTile {
	if ref == 0 {
		return nil
	}
	salt, it, _ := m.DecodePolyId(DtPolyRef(ref))
	if int32(it) >= m.m_maxTiles {
		return nil
	}
	tile := &m.m_tiles[it]
	if tile.salt != salt || tile.Header == nil {
		return nil
	}
	return tile
}

// / Gets the tile and polygon for the specified polygon reference.
func (m *DtNavMesh) GetTileAndPolyByRef(ref DtPolyRef) (*DtMeshTile, *DtPoly, DtStatus) {
	if ref == 0 {
		return nil, nil, DT_FAILURE
	}
	salt, it, ip := m.DecodePolyId(ref)
	if int32(it) >= m.m_maxTiles {
		return nil, nil, DT_FAILURE | DT_INVALID_PARAM
	}
	tile := &m.m_tiles[it]
	if tile.salt != salt || tile.Header == nil {
		return nil, nil, DT_FAILURE | DT_INVALID_PARAM
	}
	if int(ip) >= len(tile.Polys) {
		return nil, nil, DT_FAILURE | DT_INVALID_PARAM
	}
	return tile, &tile.Polys[ip], DT_SUCCESS
}

// / Returns the tile and polygon for the specified polygon reference.
// / Only use this with references already known to be valid.
func (m *DtNavMesh) GetTileAndPolyByRefUnsafe(ref DtPolyRef) (*DtMeshTile, *DtPoly) {
	_, it, ip := m.DecodePolyId(ref)
	tile := &m.m_tiles[it]
	return tile, &tile.Polys[ip]
}

// / Checks the validity of a polygon reference.
func (m *DtNavMesh) IsValidPolyRef(ref DtPolyRef) bool {
	if ref == 0 {
		return false
	}
	salt, it, ip := m.DecodePolyId(ref)
	if int32(it) >= m.m_maxTiles {
		return false
	}
	tile := &m.m_tiles[it]
	if tile.salt != salt || tile.Header == nil {
		return false
	}
	return int(ip) < len(tile.Polys)
}

func (m *DtNavMesh) allocLink(tile *DtMeshTile) uint32 {
	if tile.linksFreeList == DT_NULL_LINK {
		return DT_NULL_LINK
	}
	link := tile.linksFreeList
	tile.linksFreeList = tile.Links[link].Next
	return link
}

func (m *DtNavMesh) freeLink(tile *DtMeshTile, link uint32) {
	tile.Links[link].Next = tile.linksFreeList
	tile.linksFreeList = link
}

// / Adds a tile to the navigation mesh.
// / lastRef restores a previously removed tile into its old slot, keeping its salt.
func (m *DtNavMesh) AddTile(data *NavMeshData, lastRef DtTileRef) (DtTileRef, DtStatus) {
	if data == nil {
		return 0, DT_FAILURE | DT_INVALID_PARAM
	}
	header := &data.Header
	if header.Magic != DT_NAVMESH_MAGIC {
		return 0, DT_FAILURE | DT_WRONG_MAGIC
	}
	if header.Version != DT_NAVMESH_VERSION {
		return 0, DT_FAILURE | DT_WRONG_VERSION
	}
	if header.PolyCount > m.m_params.MaxPolys || len(data.Polys) != int(header.PolyCount) {
		return 0, DT_FAILURE | DT_INVALID_PARAM
	}

	// Make sure the location is free.
	if m.GetTileAt(header.X, header.Y, header.Layer) != nil {
		return 0, DT_FAILURE | DT_ALREADY_OCCUPIED
	}

	// Allocate a tile.
	var tile *DtMeshTile
	if lastRef == 0 {
		if m.m_nextFree != nil {
			tile = m.m_nextFree
			m.m_nextFree = tile.next
			tile.next = nil
		}
	} else {
		// Try to relocate the tile to specific index with same salt.
		salt, tileIndex, _ := m.DecodePolyId(DtPolyRef(lastRef))
		if int32(tileIndex) >= m.m_maxTiles {
			return 0, DT_FAILURE | DT_OUT_OF_MEMORY
		}
		// Try to find the specific tile id from the free list.
		target := &m.m_tiles[tileIndex]
		var prev *DtMeshTile
		tile = m.m_nextFree
		for tile != nil && tile != target {
			prev = tile
			tile = tile.next
		}
		// Could not find the correct location.
		if tile != target {
			return 0, DT_FAILURE | DT_OUT_OF_MEMORY
		}
		// Remove from freelist
		if prev == nil {
			m.m_nextFree = tile.next
		} else {
			prev.next = tile.next
		}
		tile.next = nil
		// Restore salt.
		tile.salt = salt
	}

	// Make sure we could allocate a tile.
	if tile == nil {
		return 0, DT_FAILURE | DT_OUT_OF_MEMORY
	}

	// Insert tile into the position lut.
	h := m.tileHash(header.X, header.Y)
	tile.next = m.m_posLookup[h]
	m.m_posLookup[h] = tile

	tile.Header = header
	tile.Verts = data.Verts
	tile.Polys = data.Polys
	tile.DetailMeshes = data.DetailMeshes
	tile.DetailVerts = data.DetailVerts
	tile.DetailTris = data.DetailTris
	tile.BvTree = data.BvTree
	tile.OffMeshCons = data.OffMeshCons
	tile.Data = data

	// Build links freelist
	tile.Links = make([]DtLink, header.MaxLinkCount)
	tile.linksFreeList = 0
	if len(tile.Links) == 0 {
		tile.linksFreeList = DT_NULL_LINK
	} else {
		for i := range tile.Links {
			tile.Links[i].Next = uint32(i + 1)
		}
		tile.Links[len(tile.Links)-1].Next = DT_NULL_LINK
	}

	m.connectIntLinks(tile)

	// Base off-mesh connections to their starting polygons and connect connections inside the tile.
	m.baseOffMeshLinks(tile)
	m.connectExtOffMeshLinks(tile, tile, -1)

	// Connect with layers in current tile.
	for _, nei := range m.GetTilesAt(header.X, header.Y) {
		if nei == tile {
			continue
		}
		m.connectExtLinks(tile, nei, -1)
		m.connectExtLinks(nei, tile, -1)
		m.connectExtOffMeshLinks(tile, nei, -1)
		m.connectExtOffMeshLinks(nei, tile, -1)
	}

	// Connect with neighbour tiles.
	for i := 0; i < 8; i++ {
		for _, nei := range m.getNeighbourTilesAt(header.X, header.Y, i) {
			m.connectExtLinks(tile, nei, i)
			m.connectExtLinks(nei, tile, DtOppositeTile(i))
			m.connectExtOffMeshLinks(tile, nei, i)
			m.connectExtOffMeshLinks(nei, tile, DtOppositeTile(i))
		}
	}
	return m.GetTileRef(tile), DT_SUCCESS
}

// / Removes the specified tile from the navigation mesh and returns its data.
// / The slot salt is bumped so that references into the old tile stop resolving.
func (m *DtNavMesh) RemoveTile(ref DtTileRef) (*NavMeshData, DtStatus) {
	if ref == 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}
	salt, tileIndex, _ := m.DecodePolyId(DtPolyRef(ref))
	if int32(tileIndex) >= m.m_maxTiles {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}
	tile := &m.m_tiles[tileIndex]
	if tile.salt != salt || tile.Header == nil {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}

	// Remove tile from hash lookup.
	h := m.tileHash(tile.Header.X, tile.Header.Y)
	var prev *DtMeshTile
	cur := m.m_posLookup[h]
	for cur != nil {
		if cur == tile {
			if prev != nil {
				prev.next = cur.next
			} else {
				m.m_posLookup[h] = cur.next
			}
			break
		}
		prev = cur
		cur = cur.next
	}

	// Remove connections to neighbour tiles.
	for _, nei := range m.GetTilesAt(tile.Header.X, tile.Header.Y) {
		if nei == tile {
			continue
		}
		m.unconnectLinks(nei, tile)
	}
	for i := 0; i < 8; i++ {
		for _, nei := range m.getNeighbourTilesAt(tile.Header.X, tile.Header.Y, i) {
			m.unconnectLinks(nei, tile)
		}
	}

	data := tile.Data

	// Reset tile.
	tile.Header = nil
	tile.linksFreeList = 0
	tile.Polys = nil
	tile.Verts = nil
	tile.Links = nil
	tile.DetailMeshes = nil
	tile.DetailVerts = nil
	tile.DetailTris = nil
	tile.BvTree = nil
	tile.OffMeshCons = nil
	tile.Data = nil

	// Update salt, salt should never be zero.
	tile.salt = (tile.salt + 1) & (1<<DT_SALT_BITS - 1)
	if tile.salt == 0 {
		tile.salt++
	}

	// Add to free list.
	tile.next = m.m_nextFree
	m.m_nextFree = tile
	return data, DT_SUCCESS
}

func (m *DtNavMesh) connectIntLinks(tile *DtMeshTile) {
	base := m.GetPolyRefBase(tile)
	for i := range tile.Polys {
		poly := &tile.Polys[i]
		poly.FirstLink = DT_NULL_LINK
		if poly.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
			continue
		}
		// Build edge links backwards so that the links will be
		// in the linked list from lowest index to highest.
		for j := int(poly.VertCount) - 1; j >= 0; j-- {
			// Skip hard and non-internal edges.
			if poly.Neis[j] == 0 || (poly.Neis[j]&DT_EXT_LINK) != 0 {
				continue
			}
			idx := m.allocLink(tile)
			if idx == DT_NULL_LINK {
				continue
			}
			link := &tile.Links[idx]
			link.Ref = base | DtPolyRef(poly.Neis[j]-1)
			link.Edge = uint8(j)
			link.Side = 0xff
			link.Bmin = 0
			link.Bmax = 0
			// Add to linked list.
			link.Next = poly.FirstLink
			poly.FirstLink = idx
		}
	}
}

func (m *DtNavMesh) unconnectLinks(tile, target *DtMeshTile) {
	if tile == nil || target == nil {
		return
	}
	targetNum := target.index
	for i := range tile.Polys {
		poly := &tile.Polys[i]
		j := poly.FirstLink
		pj := DT_NULL_LINK
		for j != DT_NULL_LINK {
			if m.DecodePolyIdTile(tile.Links[j].Ref) == targetNum {
				// Remove link.
				nj := tile.Links[j].Next
				if pj == DT_NULL_LINK {
					poly.FirstLink = nj
				} else {
					tile.Links[pj].Next = nj
				}
				m.freeLink(tile, j)
				j = nj
			} else {
				// Advance
				pj = j
				j = tile.Links[j].Next
			}
		}
	}
}

func (m *DtNavMesh) baseOffMeshLinks(tile *DtMeshTile) {
	base := m.GetPolyRefBase(tile)
	// Base off-mesh connection start points.
	for i := range tile.OffMeshCons {
		con := &tile.OffMeshCons[i]
		poly := &tile.Polys[con.Poly]

		halfExtents := []float32{con.Rad, tile.Header.WalkableClimb, con.Rad}

		// Find polygon to connect to.
		p := con.Pos[0:3] // First vertex
		ref, nearestPt := m.findNearestPolyInTile(tile, p, halfExtents)
		if ref == 0 {
			continue
		}
		// findNearestPoly may return too optimistic results, further check to make sure.
		if common.Sqr(nearestPt[0]-p[0])+common.Sqr(nearestPt[2]-p[2]) > common.Sqr(con.Rad) {
			continue
		}
		// Make sure the location is on current mesh.
		copy(tile.vert(poly.Verts[0]), nearestPt[:])

		// Link off-mesh connection to target poly.
		idx := m.allocLink(tile)
		if idx != DT_NULL_LINK {
			link := &tile.Links[idx]
			link.Ref = ref
			link.Edge = 0
			link.Side = 0xff
			link.Bmin = 0
			link.Bmax = 0
			// Add to linked list.
			link.Next = poly.FirstLink
			poly.FirstLink = idx
		}

		// Start end-point is always connect back to off-mesh connection.
		tidx := m.allocLink(tile)
		if tidx != DT_NULL_LINK {
			landPoly := &tile.Polys[m.DecodePolyIdPoly(ref)]
			link := &tile.Links[tidx]
			link.Ref = base | DtPolyRef(con.Poly)
			link.Edge = 0xff
			link.Side = 0xff
			link.Bmin = 0
			link.Bmax = 0
			// Add to linked list.
			link.Next = landPoly.FirstLink
			landPoly.FirstLink = tidx
		}
	}
}

func (m *DtNavMesh) connectExtOffMeshLinks(tile, target *DtMeshTile, side int) {
	if tile == nil {
		return
	}
	// Connect off-mesh links.
	// We are interested on links which land from target tile to this tile.
	oppositeSide := uint8(0xff)
	if side != -1 {
		oppositeSide = uint8(DtOppositeTile(side))
	}
	for i := range target.OffMeshCons {
		targetCon := &target.OffMeshCons[i]
		if targetCon.Side != oppositeSide {
			continue
		}
		targetPoly := &target.Polys[targetCon.Poly]
		// Skip off-mesh connections which start location could not be connected at all.
		if targetPoly.FirstLink == DT_NULL_LINK {
			continue
		}

		halfExtents := []float32{targetCon.Rad, target.Header.WalkableClimb, targetCon.Rad}

		// Find polygon to connect to.
		p := targetCon.Pos[3:6]
		ref, nearestPt := m.findNearestPolyInTile(tile, p, halfExtents)
		if ref == 0 {
			continue
		}
		// findNearestPoly may return too optimistic results, further check to make sure.
		if common.Sqr(nearestPt[0]-p[0])+common.Sqr(nearestPt[2]-p[2]) > common.Sqr(targetCon.Rad) {
			continue
		}
		// Make sure the location is on current mesh.
		copy(target.vert(targetPoly.Verts[1]), nearestPt[:])

		// Link off-mesh connection to target poly.
		idx := m.allocLink(target)
		if idx != DT_NULL_LINK {
			link := &target.Links[idx]
			link.Ref = ref
			link.Edge = 1
			link.Side = oppositeSide
			link.Bmin = 0
			link.Bmax = 0
			// Add to linked list.
			link.Next = targetPoly.FirstLink
			targetPoly.FirstLink = idx
		}

		// Link target poly to off-mesh connection.
		if targetCon.Flags&DT_OFFMESH_CON_BIDIR != 0 {
			tidx := m.allocLink(tile)
			if tidx != DT_NULL_LINK {
				landPoly := &tile.Polys[m.DecodePolyIdPoly(ref)]
				link := &tile.Links[tidx]
				link.Ref = m.GetPolyRefBase(target) | DtPolyRef(targetCon.Poly)
				link.Edge = 0xff
				link.Side = 0xff
				if side != -1 {
					link.Side = uint8(side)
				}
				link.Bmin = 0
				link.Bmax = 0
				// Add to linked list.
				link.Next = landPoly.FirstLink
				landPoly.FirstLink = tidx
			}
		}
	}
}

func (m *DtNavMesh) connectExtLinks(tile, target *DtMeshTile, side int) {
	if tile == nil {
		return
	}
	// Connect border links.
	for i := range tile.Polys {
		poly := &tile.Polys[i]
		nv := int(poly.VertCount)
		for j := 0; j < nv; j++ {
			// Skip non-portal edges.
			if (poly.Neis[j] & DT_EXT_LINK) == 0 {
				continue
			}
			dir := int(poly.Neis[j] & 0xff)
			if side != -1 && dir != side {
				continue
			}

			// Create new links
			va := tile.vert(poly.Verts[j])
			vb := tile.vert(poly.Verts[(j+1)%nv])
			nei, neia := m.findConnectingPolys(va, vb, target, DtOppositeTile(dir), 4)
			for k := range nei {
				idx := m.allocLink(tile)
				if idx == DT_NULL_LINK {
					continue
				}
				link := &tile.Links[idx]
				link.Ref = nei[k]
				link.Edge = uint8(j)
				link.Side = uint8(dir)

				link.Next = poly.FirstLink
				poly.FirstLink = idx

				// Compress portal limits to a byte value.
				if dir == 0 || dir == 4 {
					tmin := (neia[k*2+0] - va[2]) / (vb[2] - va[2])
					tmax := (neia[k*2+1] - va[2]) / (vb[2] - va[2])
					if tmin > tmax {
						tmin, tmax = tmax, tmin
					}
					link.Bmin = uint8(math.Round(float64(common.Clamp(tmin, 0.0, 1.0) * 255.0)))
					link.Bmax = uint8(math.Round(float64(common.Clamp(tmax, 0.0, 1.0) * 255.0)))
				} else if dir == 2 || dir == 6 {
					tmin := (neia[k*2+0] - va[0]) / (vb[0] - va[0])
					tmax := (neia[k*2+1] - va[0]) / (vb[0] - va[0])
					if tmin > tmax {
						tmin, tmax = tmax, tmin
					}
					link.Bmin = uint8(math.Round(float64(common.Clamp(tmin, 0.0, 1.0) * 255.0)))
					link.Bmax = uint8(math.Round(float64(common.Clamp(tmax, 0.0, 1.0) * 255.0)))
				}
			}
		}
	}
}

func getSlabCoord(va []float32, side int) float32 {
	if side == 0 || side == 4 {
		return va[0]
	} else if side == 2 || side == 6 {
		return va[2]
	}
	return 0
}

func calcSlabEndPoints(va, vb []float32, side int) (bmin, bmax [2]float32) {
	if side == 0 || side == 4 {
		if va[2] < vb[2] {
			bmin = [2]float32{va[2], va[1]}
			bmax = [2]float32{vb[2], vb[1]}
		} else {
			bmin = [2]float32{vb[2], vb[1]}
			bmax = [2]float32{va[2], va[1]}
		}
	} else if side == 2 || side == 6 {
		if va[0] < vb[0] {
			bmin = [2]float32{va[0], va[1]}
			bmax = [2]float32{vb[0], vb[1]}
		} else {
			bmin = [2]float32{vb[0], vb[1]}
			bmax = [2]float32{va[0], va[1]}
		}
	}
	return bmin, bmax
}

func overlapSlabs(amin, amax, bmin, bmax [2]float32, px, py float32) bool {
	// Check for horizontal overlap.
	// The segment is shrunken a little so that slabs which touch
	// at end points are not connected.
	minx := max(amin[0]+px, bmin[0]+px)
	maxx := min(amax[0]-px, bmax[0]-px)
	if minx > maxx {
		return false
	}

	// Check vertical overlap.
	ad := (amax[1] - amin[1]) / (amax[0] - amin[0])
	ak := amin[1] - ad*amin[0]
	bd := (bmax[1] - bmin[1]) / (bmax[0] - bmin[0])
	bk := bmin[1] - bd*bmin[0]
	aminy := ad*minx + ak
	amaxy := ad*maxx + ak
	bminy := bd*minx + bk
	bmaxy := bd*maxx + bk
	dmin := bminy - aminy
	dmax := bmaxy - amaxy

	// Crossing segments always overlap.
	if dmin*dmax < 0 {
		return true
	}

	// Check for overlap at endpoints.
	thr := common.Sqr(py * 2)
	return dmin*dmin <= thr || dmax*dmax <= thr
}

func (m *DtNavMesh) findConnectingPolys(va, vb []float32, tile *DtMeshTile, side int, maxcon int) (con []DtPolyRef, conarea []float32) {
	if tile == nil {
		return nil, nil
	}
	amin, amax := calcSlabEndPoints(va, vb, side)
	apos := getSlabCoord(va, side)

	// Remove links pointing to 'side' and compact the links array.
	mask := DT_EXT_LINK | uint16(side)
	base := m.GetPolyRefBase(tile)
	for i := range tile.Polys {
		poly := &tile.Polys[i]
		nv := int(poly.VertCount)
		for j := 0; j < nv; j++ {
			// Skip edges which do not point to the right side.
			if poly.Neis[j] != mask {
				continue
			}
			vc := tile.vert(poly.Verts[j])
			vd := tile.vert(poly.Verts[(j+1)%nv])
			bpos := getSlabCoord(vc, side)

			// Segments are not close enough.
			if common.Abs(apos-bpos) > 0.01 {
				continue
			}

			// Check if the segments touch.
			bmin, bmax := calcSlabEndPoints(vc, vd, side)
			if !overlapSlabs(amin, amax, bmin, bmax, 0.01, tile.Header.WalkableClimb) {
				continue
			}

			// Add return value.
			if len(con) < maxcon {
				conarea = append(conarea, max(amin[0], bmin[0]), min(amax[0], bmax[0]))
				con = append(con, base|DtPolyRef(i))
			}
			break
		}
	}
	return con, conarea
}

// QueryPolygonsInTile returns the references of all ground polygons in tile whose bounds overlap qmin-qmax.
func (m *DtNavMesh) QueryPolygonsInTile(tile *DtMeshTile, qmin, qmax []float32) []DtPolyRef {
	var polys []DtPolyRef
	base := m.GetPolyRefBase(tile)
	if len(tile.BvTree) > 0 {
		bmin, bmax := quantizeQueryBounds(tile, qmin, qmax)
		// Traverse tree
		for i := 0; i < len(tile.BvTree); {
			node := &tile.BvTree[i]
			overlap := DtOverlapQuantBounds(bmin[:], bmax[:], node.Bmin[:], node.Bmax[:])
			isLeafNode := node.I >= 0

			if isLeafNode && overlap {
				polys = append(polys, base|DtPolyRef(node.I))
			}
			if overlap || isLeafNode {
				i++
			} else {
				i += int(-node.I)
			}
		}
		return polys
	}
	for i := range tile.Polys {
		p := &tile.Polys[i]
		// Do not return off-mesh connection polygons.
		if p.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
			continue
		}
		bmin, bmax := polyBounds(tile, p)
		if common.OverlapBounds(qmin, qmax, bmin[:], bmax[:]) {
			polys = append(polys, base|DtPolyRef(i))
		}
	}
	return polys
}

func quantizeQueryBounds(tile *DtMeshTile, qmin, qmax []float32) (bmin, bmax [3]uint16) {
	tbmin := tile.Header.Bmin
	tbmax := tile.Header.Bmax
	qfac := tile.Header.BvQuantFactor
	// Clamp query box to world box.
	minx := common.Clamp(qmin[0], tbmin[0], tbmax[0]) - tbmin[0]
	miny := common.Clamp(qmin[1], tbmin[1], tbmax[1]) - tbmin[1]
	minz := common.Clamp(qmin[2], tbmin[2], tbmax[2]) - tbmin[2]
	maxx := common.Clamp(qmax[0], tbmin[0], tbmax[0]) - tbmin[0]
	maxy := common.Clamp(qmax[1], tbmin[1], tbmax[1]) - tbmin[1]
	maxz := common.Clamp(qmax[2], tbmin[2], tbmax[2]) - tbmin[2]
	// Quantize
	bmin[0] = uint16(qfac*minx) & 0xfffe
	bmin[1] = uint16(qfac*miny) & 0xfffe
	bmin[2] = uint16(qfac*minz) & 0xfffe
	bmax[0] = uint16(qfac*maxx+1) | 1
	bmax[1] = uint16(qfac*maxy+1) | 1
	bmax[2] = uint16(qfac*maxz+1) | 1
	return bmin, bmax
}

func polyBounds(tile *DtMeshTile, p *DtPoly) (bmin, bmax [3]float32) {
	v := tile.vert(p.Verts[0])
	copy(bmin[:], v)
	copy(bmax[:], v)
	for j := 1; j < int(p.VertCount); j++ {
		v = tile.vert(p.Verts[j])
		common.Vmin(bmin[:], v)
		common.Vmax(bmax[:], v)
	}
	return bmin, bmax
}

func (m *DtNavMesh) findNearestPolyInTile(tile *DtMeshTile, center, halfExtents []float32) (nearest DtPolyRef, nearestPt [3]float32) {
	var bmin, bmax [3]float32
	common.Vsub(bmin[:], center, halfExtents)
	common.Vadd(bmax[:], center, halfExtents)

	// Get nearby polygons from proximity grid.
	polys := m.QueryPolygonsInTile(tile, bmin[:], bmax[:])

	// Find nearest polygon amongst the nearby polygons.
	nearestDistanceSqr := float32(math.MaxFloat32)
	for _, ref := range polys {
		closestPtPoly, posOverPoly := m.ClosestPointOnPoly(ref, center)

		// If a point is directly over a polygon and closer than
		// climb height, favor that instead of straight line nearest point.
		var diff [3]float32
		common.Vsub(diff[:], center, closestPtPoly[:])
		var d float32
		if posOverPoly {
			d = common.Abs(diff[1]) - tile.Header.WalkableClimb
			if d > 0 {
				d = d * d
			} else {
				d = 0
			}
		} else {
			d = common.VlenSqr(diff[:])
		}
		if d < nearestDistanceSqr {
			nearestPt = closestPtPoly
			nearestDistanceSqr = d
			nearest = ref
		}
	}
	return nearest, nearestPt
}

func (m *DtNavMesh) closestPointOnDetailEdges(onlyBoundary bool, tile *DtMeshTile, ip uint32, pos []float32) (closest [3]float32) {
	poly := &tile.Polys[ip]
	pd := &tile.DetailMeshes[ip]

	dmin := float32(math.MaxFloat32)
	var tmin float32
	var pmin, pmax []float32

	const anyBoundaryEdge = (DT_DETAIL_EDGE_BOUNDARY << 0) | (DT_DETAIL_EDGE_BOUNDARY << 2) | (DT_DETAIL_EDGE_BOUNDARY << 4)
	for i := 0; i < int(pd.TriCount); i++ {
		tris := tile.DetailTris[(int(pd.TriBase)+i)*4:]
		if onlyBoundary && (tris[3]&anyBoundaryEdge) == 0 {
			continue
		}

		v := m.detailTriVerts(tile, poly, pd, tris)
		for k, j := 0, 2; k < 3; j, k = k, k+1 {
			if (DtGetDetailTriEdgeFlags(tris[3], j)&DT_DETAIL_EDGE_BOUNDARY) == 0 &&
				(onlyBoundary || tris[j] < tris[k]) {
				// Only looking at boundary edges and this is internal, or
				// this is an inner edge that we will see again or have already seen.
				continue
			}

			t, d := DtDistancePtSegSqr2D(pos, v[j], v[k])
			if d < dmin {
				dmin = d
				tmin = t
				pmin = v[j]
				pmax = v[k]
			}
		}
	}
	if pmin == nil {
		copy(closest[:], pos)
		return closest
	}
	common.Vlerp(closest[:], pmin, pmax, tmin)
	return closest
}

func (m *DtNavMesh) detailTriVerts(tile *DtMeshTile, poly *DtPoly, pd *DtPolyDetail, t []uint8) (v [3][]float32) {
	for k := 0; k < 3; k++ {
		if t[k] < poly.VertCount {
			v[k] = tile.vert(poly.Verts[t[k]])
		} else {
			idx := int(pd.VertBase) + int(t[k]-poly.VertCount)
			v[k] = tile.DetailVerts[idx*3 : idx*3+3]
		}
	}
	return v
}

// getPolyHeight returns the detail mesh height below pos when pos lies inside the polygon on the xz-plane.
func (m *DtNavMesh) getPolyHeight(tile *DtMeshTile, ip uint32, pos []float32) (float32, bool) {
	poly := &tile.Polys[ip]
	// Off-mesh connections do not have detail polys and getting height
	// over them does not make sense.
	if poly.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
		return 0, false
	}

	pd := &tile.DetailMeshes[ip]
	var verts [DT_VERTS_PER_POLYGON * 3]float32
	nv := int(poly.VertCount)
	for i := 0; i < nv; i++ {
		copy(verts[i*3:], tile.vert(poly.Verts[i]))
	}
	if !DtPointInPolygon(pos, verts[:], nv) {
		return 0, false
	}

	// Find height at the location.
	for j := 0; j < int(pd.TriCount); j++ {
		t := tile.DetailTris[(int(pd.TriBase)+j)*4:]
		v := m.detailTriVerts(tile, poly, pd, t)
		if h, ok := DtClosestHeightPointTriangle(pos, v[0], v[1], v[2]); ok {
			return h, true
		}
	}

	// If all triangle checks failed above (can happen with degenerate triangles
	// or larger floating point values) the point is on an edge, so just select
	// closest. This should almost never happen so the extra iteration here is ok.
	closest := m.closestPointOnDetailEdges(false, tile, ip, pos)
	return closest[1], true
}

// ClosestPointOnPoly finds the closest point on the polygon, and whether pos lies over it.
func (m *DtNavMesh) ClosestPointOnPoly(ref DtPolyRef, pos []float32) (closest [3]float32, posOverPoly bool) {
	tile, poly := m.GetTileAndPolyByRefUnsafe(ref)
	ip := m.DecodePolyIdPoly(ref)

	copy(closest[:], pos)
	if h, ok := m.getPolyHeight(tile, ip, pos); ok {
		closest[1] = h
		return closest, true
	}

	// Off-mesh connections don't have detail polygons.
	if poly.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
		v0 := tile.vert(poly.Verts[0])
		v1 := tile.vert(poly.Verts[1])
		t, _ := DtDistancePtSegSqr2D(pos, v0, v1)
		common.Vlerp(closest[:], v0, v1, t)
		return closest, false
	}

	// Outside poly that is not an offmesh connection.
	return m.closestPointOnDetailEdges(true, tile, ip, pos), false
}

// / Gets the endpoints for an off-mesh connection, ordered by "direction of travel".
func (m *DtNavMesh) GetOffMeshConnectionPolyEndPoints(prevRef, polyRef DtPolyRef) (startPos, endPos [3]float32, status DtStatus) {
	if polyRef == 0 {
		return startPos, endPos, DT_FAILURE
	}
	tile, poly, status := m.GetTileAndPolyByRef(polyRef)
	if status.Failed() {
		return startPos, endPos, DT_FAILURE | DT_INVALID_PARAM
	}

	// Make sure that the current poly is indeed off-mesh link.
	if poly.GetType() != DT_POLYTYPE_OFFMESH_CONNECTION {
		return startPos, endPos, DT_FAILURE
	}

	// Figure out which way to hand out the vertices.
	idx0, idx1 := 0, 1

	// Find link that points to first vertex.
	for i := poly.FirstLink; i != DT_NULL_LINK; i = tile.Links[i].Next {
		if tile.Links[i].Edge == 0 {
			if tile.Links[i].Ref != prevRef {
				idx0 = 1
				idx1 = 0
			}
			break
		}
	}

	copy(startPos[:], tile.vert(poly.Verts[idx0]))
	copy(endPos[:], tile.vert(poly.Verts[idx1]))
	return startPos, endPos, DT_SUCCESS
}

// / Gets the specified off-mesh connection.
func (m *DtNavMesh) GetOffMeshConnectionByRef(ref DtPolyRef) *DtOffMeshConnection {
	tile, poly, status := m.GetTileAndPolyByRef(ref)
	if status.Failed() || poly.GetType() != DT_POLYTYPE_OFFMESH_CONNECTION {
		return nil
	}
	idx := int(m.DecodePolyIdPoly(ref)) - int(tile.Header.OffMeshBase)
	if idx < 0 || idx >= len(tile.OffMeshCons) {
		return nil
	}
	return &tile.OffMeshCons[idx]
}

// / Sets the user defined flags for the specified polygon.
func (m *DtNavMesh) SetPolyFlags(ref DtPolyRef, flags uint16) DtStatus {
	_, poly, status := m.GetTileAndPolyByRef(ref)
	if status.Failed() {
		return DT_FAILURE | DT_INVALID_PARAM
	}
	poly.Flags = flags
	return DT_SUCCESS
}

// / Gets the user defined flags for the specified polygon.
func (m *DtNavMesh) GetPolyFlags(ref DtPolyRef) (uint16, DtStatus) {
	_, poly, status := m.GetTileAndPolyByRef(ref)
	if status.Failed() {
		return 0, DT_FAILURE | DT_INVALID_PARAM
	}
	return poly.Flags, DT_SUCCESS
}

// / Sets the user defined area for the specified polygon.
func (m *DtNavMesh) SetPolyArea(ref DtPolyRef, area uint8) DtStatus {
	_, poly, status := m.GetTileAndPolyByRef(ref)
	if status.Failed() {
		return DT_FAILURE | DT_INVALID_PARAM
	}
	poly.SetArea(area)
	return DT_SUCCESS
}

// / Gets the user defined area for the specified polygon.
func (m *DtNavMesh) GetPolyArea(ref DtPolyRef) (uint8, DtStatus) {
	_, poly, status := m.GetTileAndPolyByRef(ref)
	if status.Failed() {
		return 0, DT_FAILURE | DT_INVALID_PARAM
	}
	return poly.GetArea(), DT_SUCCESS
}
