package detour_tile_cache

import (
	"math"
	"testing"

	"github.com/gorustyt/navrt/detour"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridParams(tilesX, tilesZ, cells int, cs float32, walkable func(x, z int) bool) *detour.GridMeshParams {
	return &detour.GridMeshParams{
		CellSize:       cs,
		CellHeight:     0.2,
		TileCells:      cells,
		TilesX:         tilesX,
		TilesZ:         tilesZ,
		Walkable:       walkable,
		WalkableHeight: 2,
		WalkableRadius: 0.3,
		WalkableClimb:  0.5,
	}
}

func gridLayer(t *testing.T, p *detour.GridMeshParams, tx, tz int) *DtTileCacheLayer {
	t.Helper()
	data, status := BuildGridLayer(S2Compressor{}, p, tx, tz)
	require.True(t, status.Succeed(), status.String())
	require.NotNil(t, data)
	layer, status := DtDecompressTileCacheLayer(S2Compressor{}, data)
	require.True(t, status.Succeed(), status.String())
	return layer
}

func buildLayerMesh(t *testing.T, layer *DtTileCacheLayer) *DtTileCachePolyMesh {
	t.Helper()
	require.True(t, DtBuildTileCacheRegions(layer, 2).Succeed())
	lcset, status := DtBuildTileCacheContours(layer, 2, 1.3)
	require.True(t, status.Succeed(), status.String())
	lmesh, status := DtBuildTileCachePolyMesh(lcset)
	require.True(t, status.Succeed(), status.String())
	return lmesh
}

func TestBuildTileCacheRegions(t *testing.T) {
	// two walkable blocks split by the columns x == 3 and x == 4
	layer := gridLayer(t, gridParams(1, 1, 8, 1, func(x, z int) bool { return x < 3 || x > 4 }), 0, 0)
	require.True(t, DtBuildTileCacheRegions(layer, 2).Succeed())
	assert.EqualValues(t, 2, layer.RegCount)

	w := int(layer.Header.Width)
	assert.Equal(t, layer.Regs[0], layer.Regs[2+7*w])
	assert.NotEqual(t, layer.Regs[0], layer.Regs[7])
	assert.EqualValues(t, 0xff, layer.Regs[3])
	assert.EqualValues(t, 0xff, layer.Regs[4+5*w])
}

func TestBuildTileCachePolyMeshOpenTile(t *testing.T) {
	layer := gridLayer(t, gridParams(1, 1, 8, 1, nil), 0, 0)
	lmesh := buildLayerMesh(t, layer)

	assert.Equal(t, 1, lmesh.Npolys)
	assert.Equal(t, 4, lmesh.Nverts)
	assert.Len(t, lmesh.Areas, 1)
	assert.EqualValues(t, DT_TILECACHE_WALKABLE_AREA, lmesh.Areas[0])
	// no neighbour on any edge
	nvp := MAX_VERTS_PER_POLY
	for j := 0; j < 4; j++ {
		assert.EqualValues(t, DT_TILECACHE_NULL_IDX, lmesh.Polys[nvp+j])
	}
	for i := 0; i < lmesh.Nverts; i++ {
		v := lmesh.Verts[i*3:]
		assert.True(t, v[0] == 0 || v[0] == 8)
		assert.True(t, v[2] == 0 || v[2] == 8)
	}
}

func TestBuildTileCachePolyMeshPortal(t *testing.T) {
	p := gridParams(2, 1, 8, 1, nil)
	lmesh := buildLayerMesh(t, gridLayer(t, p, 0, 0))
	require.Positive(t, lmesh.Npolys)

	nvp := MAX_VERTS_PER_POLY
	portals := 0
	for i := 0; i < lmesh.Npolys; i++ {
		for j := 0; j < nvp; j++ {
			if nei := lmesh.Polys[i*nvp*2+nvp+j]; nei != DT_TILECACHE_NULL_IDX && nei&0x8000 != 0 {
				// the only neighbour tile lies towards x+
				assert.EqualValues(t, 0x8000|2, nei)
				portals++
			}
		}
	}
	assert.Positive(t, portals)
}

func TestBuildTileCachePolyMeshAdjacency(t *testing.T) {
	// an L shaped area needs more than one convex polygon
	lmesh := buildLayerMesh(t, gridLayer(t, gridParams(1, 1, 8, 1, func(x, z int) bool { return x < 2 || z < 2 }), 0, 0))
	require.Greater(t, lmesh.Npolys, 1)

	nvp := MAX_VERTS_PER_POLY
	for i := 0; i < lmesh.Npolys; i++ {
		p := lmesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p)
		assert.GreaterOrEqual(t, nv, 3)
		for j := 0; j < nv; j++ {
			nei := p[nvp+j]
			if nei == DT_TILECACHE_NULL_IDX {
				continue
			}
			require.Less(t, int(nei), lmesh.Npolys)
			// adjacency is symmetric
			found := false
			q := lmesh.Polys[int(nei)*nvp*2:]
			for k := 0; k < countPolyVerts(q); k++ {
				if q[nvp+k] == uint16(i) {
					found = true
				}
			}
			assert.True(t, found, "poly %d edge %d", i, j)
		}
	}
}

func cellArea(layer *DtTileCacheLayer, x, z int) uint8 {
	return layer.Areas[x+z*int(layer.Header.Width)]
}

func TestMarkCylinderArea(t *testing.T) {
	layer := gridLayer(t, gridParams(1, 1, 16, 0.5, nil), 0, 0)
	orig := layer.Header.Bmin[:]
	DtMarkCylinderArea(layer, orig, 0.5, 0.2, []float32{4, 0, 4}, 1.5, 2, DT_TILECACHE_NULL_AREA)

	assert.EqualValues(t, DT_TILECACHE_NULL_AREA, cellArea(layer, 8, 8))
	assert.EqualValues(t, DT_TILECACHE_NULL_AREA, cellArea(layer, 5, 8))
	assert.EqualValues(t, DT_TILECACHE_WALKABLE_AREA, cellArea(layer, 4, 8))
	assert.EqualValues(t, DT_TILECACHE_WALKABLE_AREA, cellArea(layer, 0, 0))

	// above the walkable surface
	layer = gridLayer(t, gridParams(1, 1, 16, 0.5, nil), 0, 0)
	DtMarkCylinderArea(layer, orig, 0.5, 0.2, []float32{4, 1, 4}, 1.5, 2, DT_TILECACHE_NULL_AREA)
	assert.EqualValues(t, DT_TILECACHE_WALKABLE_AREA, cellArea(layer, 8, 8))
}

func TestMarkBoxArea(t *testing.T) {
	layer := gridLayer(t, gridParams(1, 1, 16, 0.5, nil), 0, 0)
	DtMarkBoxArea(layer, layer.Header.Bmin[:], 0.5, 0.2, []float32{1, 0, 1}, []float32{2, 1, 2}, 7)

	assert.EqualValues(t, 7, cellArea(layer, 2, 2))
	assert.EqualValues(t, 7, cellArea(layer, 4, 4))
	assert.EqualValues(t, DT_TILECACHE_WALKABLE_AREA, cellArea(layer, 1, 1))
	assert.EqualValues(t, DT_TILECACHE_WALKABLE_AREA, cellArea(layer, 5, 5))

	// entirely outside the layer
	layer = gridLayer(t, gridParams(1, 1, 16, 0.5, nil), 0, 0)
	DtMarkBoxArea(layer, layer.Header.Bmin[:], 0.5, 0.2, []float32{20, 0, 20}, []float32{21, 1, 21}, 7)
	for _, a := range layer.Areas {
		assert.EqualValues(t, DT_TILECACHE_WALKABLE_AREA, a)
	}
}

func TestRotAux(t *testing.T) {
	r := rotAux(0)
	assert.InDelta(t, 0, r[0], 1e-6)
	assert.InDelta(t, 0.5, r[1], 1e-6)

	r = rotAux(math.Pi / 2)
	assert.InDelta(t, -0.5, r[0], 1e-6)
	assert.InDelta(t, 0, r[1], 1e-6)
}

func TestMarkOrientedBoxArea(t *testing.T) {
	center := []float32{4, 0, 4}
	half := []float32{1, 1, 1}

	layer := gridLayer(t, gridParams(1, 1, 16, 0.5, nil), 0, 0)
	r := rotAux(0)
	DtMarkOrientedBoxArea(layer, layer.Header.Bmin[:], 0.5, 0.2, center, half, r[:], DT_TILECACHE_NULL_AREA)
	assert.EqualValues(t, DT_TILECACHE_NULL_AREA, cellArea(layer, 8, 8))
	assert.EqualValues(t, DT_TILECACHE_NULL_AREA, cellArea(layer, 10, 10))
	assert.EqualValues(t, DT_TILECACHE_NULL_AREA, cellArea(layer, 6, 6))
	assert.EqualValues(t, DT_TILECACHE_WALKABLE_AREA, cellArea(layer, 5, 8))

	// rotated by 45 degrees the corners are cut off
	layer = gridLayer(t, gridParams(1, 1, 16, 0.5, nil), 0, 0)
	r = rotAux(math.Pi / 4)
	DtMarkOrientedBoxArea(layer, layer.Header.Bmin[:], 0.5, 0.2, center, half, r[:], DT_TILECACHE_NULL_AREA)
	assert.EqualValues(t, DT_TILECACHE_NULL_AREA, cellArea(layer, 8, 8))
	assert.EqualValues(t, DT_TILECACHE_NULL_AREA, cellArea(layer, 10, 8))
	assert.EqualValues(t, DT_TILECACHE_WALKABLE_AREA, cellArea(layer, 10, 10))
}
