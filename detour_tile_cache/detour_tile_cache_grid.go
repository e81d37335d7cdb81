package detour_tile_cache

import (
	"github.com/gorustyt/navrt/common"
	"github.com/gorustyt/navrt/detour"
)

// GridTileCacheParams returns tile cache parameters matching the grid layout.
func GridTileCacheParams(p *detour.GridMeshParams, maxObstacles int) *DtTileCacheParams {
	return &DtTileCacheParams{
		Orig:                   p.Orig,
		Cs:                     p.CellSize,
		Ch:                     p.CellHeight,
		Width:                  p.TileCells,
		Height:                 p.TileCells,
		WalkableHeight:         p.WalkableHeight,
		WalkableRadius:         p.WalkableRadius,
		WalkableClimb:          p.WalkableClimb,
		MaxSimplificationError: 1.3,
		MaxTiles:               p.TilesX * p.TilesZ,
		MaxObstacles:           maxObstacles,
	}
}

func gridWalkable(p *detour.GridMeshParams, x, z int) bool {
	if x < 0 || z < 0 || x >= p.TilesX*p.TileCells || z >= p.TilesZ*p.TileCells {
		return false
	}
	return p.Walkable == nil || p.Walkable(x, z)
}

// BuildGridLayer compresses tile (tx, tz) of a flat grid. Area ids returned
// by p.Area are kept, cells without one get DT_TILECACHE_WALKABLE_AREA. It
// returns nil data when the tile has no walkable cell.
func BuildGridLayer(comp DtTileCacheCompressor, p *detour.GridMeshParams, tx, tz int) ([]byte, detour.DtStatus) {
	n := p.TileCells
	if n <= 0 || n > 255 {
		return nil, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	heights := make([]uint8, n*n)
	areas := make([]uint8, n*n)
	cons := make([]uint8, n*n)

	walkable := 0
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			gx, gz := tx*n+x, tz*n+z
			if !gridWalkable(p, gx, gz) {
				continue
			}
			walkable++
			idx := x + z*n
			areas[idx] = DT_TILECACHE_WALKABLE_AREA
			if p.Area != nil {
				if a := p.Area(gx, gz); a != DT_TILECACHE_NULL_AREA {
					areas[idx] = a
				}
			}
			for dir := 0; dir < 4; dir++ {
				nx := x + common.GetDirOffsetX(dir)
				nz := z + common.GetDirOffsetY(dir)
				if !gridWalkable(p, gx+common.GetDirOffsetX(dir), gz+common.GetDirOffsetY(dir)) {
					continue
				}
				if nx >= 0 && nz >= 0 && nx < n && nz < n {
					cons[idx] |= 1 << dir
				} else {
					// Walkable neighbour in the next tile.
					cons[idx] |= 1 << (dir + 4)
				}
			}
		}
	}
	if walkable == 0 {
		return nil, detour.DT_SUCCESS
	}

	tw := p.TileWidth()
	header := &DtTileCacheLayerHeader{
		Magic:   DT_TILECACHE_MAGIC,
		Version: DT_TILECACHE_VERSION,
		Tx:      int32(tx),
		Ty:      int32(tz),
		Width:   uint8(n),
		Height:  uint8(n),
		Maxx:    uint8(n - 1),
		Maxy:    uint8(n - 1),
	}
	header.Bmin = [3]float32{p.Orig[0] + float32(tx)*tw, p.Orig[1], p.Orig[2] + float32(tz)*tw}
	header.Bmax = [3]float32{header.Bmin[0] + tw, p.Orig[1] + p.WalkableHeight, header.Bmin[2] + tw}
	return DtBuildTileCacheLayer(comp, header, heights, areas, cons)
}

// AddGridLayers compresses every tile of the grid into the cache and returns the refs in tile order.
func (tc *TileCache) AddGridLayers(p *detour.GridMeshParams) ([]DtCompressedTileRef, detour.DtStatus) {
	var refs []DtCompressedTileRef
	for tz := 0; tz < p.TilesZ; tz++ {
		for tx := 0; tx < p.TilesX; tx++ {
			data, status := BuildGridLayer(tc.m_tcomp, p, tx, tz)
			if status.Failed() {
				return refs, status
			}
			if data == nil {
				continue
			}
			ref, status := tc.AddTile(data)
			if status.Failed() {
				return refs, status
			}
			refs = append(refs, ref)
		}
	}
	return refs, detour.DT_SUCCESS
}

// BuildAll rebuilds every stored tile into navmesh.
func (tc *TileCache) BuildAll(navmesh *detour.DtNavMesh) detour.DtStatus {
	for i := range tc.m_tiles {
		tile := &tc.m_tiles[i]
		if tile.Header == nil {
			continue
		}
		if status := tc.BuildNavMeshTile(tc.getTileRef(tile), navmesh); status.Failed() {
			return status
		}
	}
	return detour.DT_SUCCESS
}

// DefaultMeshProcess maps the generic walkable area to area 0 and enables
// every polygon with flag 1.
func DefaultMeshProcess(params *detour.DtNavMeshCreateParams, areas []uint8, flags []uint16) {
	for i := 0; i < params.PolyCount; i++ {
		if areas[i] == DT_TILECACHE_WALKABLE_AREA {
			areas[i] = 0
		}
		flags[i] = 1
	}
}
