package detour

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridParams is a flat unit-cell grid at the origin.
func gridParams(tilesX, tilesZ, tileCells int, walkable func(x, z int) bool) *GridMeshParams {
	return &GridMeshParams{
		CellSize:       1,
		CellHeight:     0.2,
		TileCells:      tileCells,
		TilesX:         tilesX,
		TilesZ:         tilesZ,
		Walkable:       walkable,
		WalkableHeight: 2,
		WalkableRadius: 0.3,
		WalkableClimb:  0.5,
	}
}

func newGridMesh(t *testing.T, p *GridMeshParams) (*DtNavMesh, *DtNavMeshQuery) {
	t.Helper()
	nav, status := NewGridNavMesh(p)
	require.True(t, status.Succeed(), status.String())
	q, status := NewDtNavMeshQuery(nav, 2048)
	require.True(t, status.Succeed(), status.String())
	return nav, q
}

// cellRef returns the polygon covering the centre of cell (x, z).
func cellRef(t *testing.T, q *DtNavMeshQuery, x, z int) DtPolyRef {
	t.Helper()
	ref, _, over, status := q.FindNearestPoly(cellCenter(x, z), []float32{0.2, 1, 0.2}, NewDtQueryFilter())
	require.True(t, status.Succeed(), "cell %d,%d: %s", x, z, status)
	require.True(t, over)
	return ref
}

func cellCenter(x, z int) []float32 {
	return []float32{float32(x) + 0.5, 0, float32(z) + 0.5}
}

func TestCreateNavMeshDataFromGrid(t *testing.T) {
	p := gridParams(1, 1, 4, nil)
	tiles, status := BuildGridTiles(p)
	require.True(t, status.Succeed())
	require.Len(t, tiles, 1)

	data := tiles[0]
	assert.EqualValues(t, DT_NAVMESH_MAGIC, data.Header.Magic)
	assert.EqualValues(t, 16, data.Header.PolyCount)
	assert.EqualValues(t, 25, data.Header.VertCount)
	assert.Len(t, data.Polys, 16)
	assert.NotEmpty(t, data.BvTree)
	for i := range data.Polys {
		assert.EqualValues(t, 4, data.Polys[i].VertCount)
		assert.Equal(t, uint8(DT_POLYTYPE_GROUND), data.Polys[i].GetType())
	}
}

func TestCreateNavMeshDataRejectsBadParams(t *testing.T) {
	_, status := DtCreateNavMeshData(&DtNavMeshCreateParams{Nvp: 6})
	assert.True(t, status.Failed())
	_, status = BuildGridTiles(&GridMeshParams{})
	assert.ErrorIs(t, status.Err(), ErrInvalidParam)
}

func TestNavMeshEncodeRoundTrip(t *testing.T) {
	tiles, status := BuildGridTiles(gridParams(1, 1, 3, func(x, z int) bool { return x != 1 || z != 1 }))
	require.True(t, status.Succeed())
	data := tiles[0]

	bin := data.ToBin()
	decoded := &NavMeshData{}
	require.NoError(t, decoded.FromBin(bin))
	assert.Equal(t, data.Header, decoded.Header)
	assert.Equal(t, data.Verts, decoded.Verts)
	assert.Equal(t, data.Polys, decoded.Polys)
	assert.Equal(t, data.DetailMeshes, decoded.DetailMeshes)
	assert.Equal(t, data.DetailTris, decoded.DetailTris)
	assert.Equal(t, data.BvTree, decoded.BvTree)

	nav, status := NewDtNavMeshSingle(decoded)
	require.True(t, status.Succeed(), status.String())
	assert.NotNil(t, nav.GetTileAt(0, 0, 0))
}

func TestNavMeshDecodeErrors(t *testing.T) {
	tiles, status := BuildGridTiles(gridParams(1, 1, 2, nil))
	require.True(t, status.Succeed())
	bin := tiles[0].ToBin()

	bad := append([]byte(nil), bin...)
	bad[0] ^= 0xff
	assert.ErrorIs(t, (&NavMeshData{}).FromBin(bad), ErrWrongMagic)

	bad = append([]byte(nil), bin...)
	bad[4] = 99
	assert.ErrorIs(t, (&NavMeshData{}).FromBin(bad), ErrWrongVersion)

	assert.Error(t, (&NavMeshData{}).FromBin(bin[:len(bin)-3]))
	assert.Error(t, (&NavMeshData{}).FromBin(nil))
}

func TestNavMeshAddRemoveTileSalt(t *testing.T) {
	p := gridParams(2, 1, 2, nil)
	nav, q := newGridMesh(t, p)

	left := cellRef(t, q, 0, 0)
	right := cellRef(t, q, 3, 0)
	assert.True(t, nav.IsValidPolyRef(left))
	assert.True(t, nav.IsValidPolyRef(right))

	// the tiles are stitched together
	path, status := q.FindPath(left, right, cellCenter(0, 0), cellCenter(3, 0), NewDtQueryFilter(), 16)
	require.True(t, status.Succeed(), status.String())
	assert.Len(t, path, 4)

	tile := nav.GetTileAt(1, 0, 0)
	require.NotNil(t, tile)
	tileRef := nav.GetTileRef(tile)
	oldSalt := tile.Salt()

	data, status := nav.RemoveTile(tileRef)
	require.True(t, status.Succeed())
	require.NotNil(t, data)
	assert.False(t, nav.IsValidPolyRef(right), "references into a removed tile must not resolve")
	assert.Nil(t, nav.GetTileAt(1, 0, 0))
	assert.NotEqual(t, oldSalt, tile.Salt())

	_, status = nav.RemoveTile(tileRef)
	assert.True(t, status.Failed())

	_, status = q.FindPath(left, right, cellCenter(0, 0), cellCenter(3, 0), NewDtQueryFilter(), 16)
	assert.ErrorIs(t, status.Err(), ErrInvalidParam)
	// the left tile lost its portal links
	leftTile := nav.GetTileAt(0, 0, 0)
	for i := range leftTile.Polys {
		for l := leftTile.Polys[i].FirstLink; l != DT_NULL_LINK; l = leftTile.Links[l].Next {
			assert.Equal(t, uint8(0xff), leftTile.Links[l].Side)
		}
	}
	_, _, _, status = q.FindNearestPoly(cellCenter(3, 0), []float32{0.2, 1, 0.2}, NewDtQueryFilter())
	assert.True(t, status.Detail(DT_NOT_FOUND))

	newRef, status := nav.AddTile(data, 0)
	require.True(t, status.Succeed())
	assert.NotEqual(t, tileRef, newRef)
	assert.False(t, nav.IsValidPolyRef(right), "stale references stay invalid after the slot is reused")

	right = cellRef(t, q, 3, 0)
	path, status = q.FindPath(left, right, cellCenter(0, 0), cellCenter(3, 0), NewDtQueryFilter(), 16)
	require.True(t, status.Succeed(), status.String())
	assert.Len(t, path, 4)

	_, status = nav.AddTile(data, 0)
	assert.ErrorIs(t, status.Err(), ErrAlreadyOccupied)
}

func TestNavMeshRestoreTileWithLastRef(t *testing.T) {
	nav, _ := newGridMesh(t, gridParams(1, 1, 2, nil))
	tileRef := nav.GetTileRefAt(0, 0, 0)
	data, status := nav.RemoveTile(tileRef)
	require.True(t, status.Succeed())

	restored, status := nav.AddTile(data, tileRef)
	require.True(t, status.Succeed())
	assert.Equal(t, tileRef, restored)
}

func TestNavMeshPolyFlagsAndArea(t *testing.T) {
	nav, q := newGridMesh(t, gridParams(1, 1, 2, nil))
	ref := cellRef(t, q, 1, 1)

	require.True(t, nav.SetPolyFlags(ref, 0x10).Succeed())
	flags, status := nav.GetPolyFlags(ref)
	require.True(t, status.Succeed())
	assert.Equal(t, uint16(0x10), flags)

	require.True(t, nav.SetPolyArea(ref, 5).Succeed())
	area, status := nav.GetPolyArea(ref)
	require.True(t, status.Succeed())
	assert.Equal(t, uint8(5), area)

	_, status = nav.GetPolyFlags(0)
	assert.True(t, status.Failed())
}

func TestNavMeshInitValidation(t *testing.T) {
	_, status := NewDtNavMesh(&NavMeshParams{TileWidth: 1, TileHeight: 1, MaxTiles: 0, MaxPolys: 1})
	assert.True(t, status.Failed())
	_, status = NewDtNavMesh(&NavMeshParams{TileWidth: 1, TileHeight: 1, MaxTiles: 1 << 29, MaxPolys: 1})
	assert.True(t, status.Failed())
	nav, status := NewDtNavMesh(&NavMeshParams{TileWidth: 4, TileHeight: 4, MaxTiles: 4, MaxPolys: 16})
	require.True(t, status.Succeed())
	x, y := nav.CalcTileLoc([]float32{5, 0, -1})
	assert.EqualValues(t, 1, x)
	assert.EqualValues(t, -1, y)

	ref := nav.EncodePolyId(3, 2, 7)
	salt, it, ip := nav.DecodePolyId(ref)
	assert.EqualValues(t, 3, salt)
	assert.EqualValues(t, 2, it)
	assert.EqualValues(t, 7, ip)
}
