package detour_tile_cache

import (
	"math"
	"sort"
	"testing"

	"github.com/gorustyt/navrt/detour"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var probe = []float32{0.2, 1, 0.2}

// corridor is a 16x16 tile of 0.5 cells walkable along the rows 6..9, i.e. a
// straight 2m wide corridor from x=0 to x=8 centred on z=4.
func corridor(x, z int) bool { return z >= 6 && z <= 9 }

type fixture struct {
	p   *detour.GridMeshParams
	tc  *TileCache
	nav *detour.DtNavMesh
	q   *detour.DtNavMeshQuery
}

func newFixture(t *testing.T, p *detour.GridMeshParams, maxObstacles int) *fixture {
	t.Helper()
	tc, err := NewTileCache(GridTileCacheParams(p, maxObstacles), S2Compressor{}, DefaultMeshProcess, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, status := tc.AddGridLayers(p)
	require.True(t, status.Succeed(), status.String())

	nav, status := detour.NewDtNavMesh(p.NavMeshParams())
	require.True(t, status.Succeed(), status.String())
	require.True(t, tc.BuildAll(nav).Succeed())
	q, status := detour.NewDtNavMeshQuery(nav, 2048)
	require.True(t, status.Succeed(), status.String())
	return &fixture{p: p, tc: tc, nav: nav, q: q}
}

func newCorridor(t *testing.T) *fixture {
	return newFixture(t, gridParams(1, 1, 16, 0.5, corridor), 8)
}

func (f *fixture) update(t *testing.T) {
	t.Helper()
	for i := 0; i < 128; i++ {
		upToDate, status := f.tc.Update(0.1, f.nav)
		require.True(t, status.Succeed(), status.String())
		if upToDate {
			return
		}
	}
	t.Fatal("tile cache did not settle")
}

func (f *fixture) findPath(t *testing.T, start, end []float32) ([]detour.DtPolyRef, detour.DtStatus) {
	t.Helper()
	filter := detour.NewDtQueryFilter()
	startRef, _, _, status := f.q.FindNearestPoly(start, probe, filter)
	require.True(t, status.Succeed(), "start: %s", status)
	endRef, _, _, status := f.q.FindNearestPoly(end, probe, filter)
	require.True(t, status.Succeed(), "end: %s", status)
	return f.q.FindPath(startRef, endRef, start, end, filter, 256)
}

func (f *fixture) polyCount() int32 {
	tile := f.nav.GetTileAt(0, 0, 0)
	if tile == nil {
		return 0
	}
	return tile.Header.PolyCount
}

type polyLink struct {
	Edge, Side uint8
	Tile, Poly uint32
}

type polyShape struct {
	Verts [][3]float32
	Neis  []uint16
	Area  uint8
	Flags uint16
	Links []polyLink
}

// meshShape captures the polygons of every navmesh tile together with their
// links. Link targets are recorded without their salt.
func meshShape(nav *detour.DtNavMesh, p *detour.GridMeshParams) map[[2]int32][]polyShape {
	shape := map[[2]int32][]polyShape{}
	for z := int32(0); z < int32(p.TilesZ); z++ {
		for x := int32(0); x < int32(p.TilesX); x++ {
			tile := nav.GetTileAt(x, z, 0)
			if tile == nil {
				continue
			}
			polys := make([]polyShape, len(tile.Polys))
			for i := range tile.Polys {
				poly := &tile.Polys[i]
				ps := polyShape{
					Neis:  append([]uint16(nil), poly.Neis[:poly.VertCount]...),
					Area:  poly.GetArea(),
					Flags: poly.Flags,
				}
				for _, v := range poly.Verts[:poly.VertCount] {
					ps.Verts = append(ps.Verts, [3]float32(tile.Verts[int(v)*3:int(v)*3+3]))
				}
				for l := poly.FirstLink; l != detour.DT_NULL_LINK; l = tile.Links[l].Next {
					link := tile.Links[l]
					_, it, ip := nav.DecodePolyId(link.Ref)
					ps.Links = append(ps.Links, polyLink{Edge: link.Edge, Side: link.Side, Tile: it, Poly: ip})
				}
				sort.Slice(ps.Links, func(a, b int) bool {
					la, lb := ps.Links[a], ps.Links[b]
					if la.Edge != lb.Edge {
						return la.Edge < lb.Edge
					}
					if la.Tile != lb.Tile {
						return la.Tile < lb.Tile
					}
					return la.Poly < lb.Poly
				})
				polys[i] = ps
			}
			shape[[2]int32{x, z}] = polys
		}
	}
	return shape
}

var (
	corridorStart = []float32{0.5, 0, 4}
	corridorEnd   = []float32{7.5, 0, 4}
)

func TestTileCacheLayerRoundTrip(t *testing.T) {
	p := gridParams(2, 1, 8, 1, nil)
	data, status := BuildGridLayer(S2Compressor{}, p, 1, 0)
	require.True(t, status.Succeed())

	header, status := DtDecodeTileCacheLayerHeader(data)
	require.True(t, status.Succeed())
	assert.EqualValues(t, 1, header.Tx)
	assert.EqualValues(t, 0, header.Ty)
	assert.EqualValues(t, 8, header.Width)
	assert.EqualValues(t, 7, header.Maxx)
	assert.Equal(t, [3]float32{8, 0, 0}, header.Bmin)
	assert.Equal(t, [3]float32{16, 2, 8}, header.Bmax)

	layer, status := DtDecompressTileCacheLayer(S2Compressor{}, data)
	require.True(t, status.Succeed())
	require.Len(t, layer.Areas, 64)
	// west column of the second tile has a portal towards x-
	assert.EqualValues(t, 1<<4, layer.Cons[0]&0xf0)
	assert.EqualValues(t, 1<<1|1<<2, layer.Cons[0]&0x0f)
	// no portal on the east edge of the grid
	assert.EqualValues(t, 0, layer.Cons[7]&0xf0)

	bad := append([]byte{}, data...)
	bad[0] ^= 0xff
	_, status = DtDecodeTileCacheLayerHeader(bad)
	assert.ErrorIs(t, status.Err(), detour.ErrWrongMagic)
	_, status = DtDecodeTileCacheLayerHeader(data[:10])
	assert.ErrorIs(t, status.Err(), detour.ErrInvalidParam)

	empty, status := BuildGridLayer(S2Compressor{}, gridParams(1, 1, 8, 1, func(x, z int) bool { return false }), 0, 0)
	assert.True(t, status.Succeed())
	assert.Nil(t, empty)
}

func TestTileCacheInitParams(t *testing.T) {
	p := GridTileCacheParams(gridParams(1, 1, 8, 1, nil), 4)
	_, err := NewTileCache(p, nil, nil, nil)
	assert.ErrorIs(t, err, detour.ErrInvalidParam)

	bad := *p
	bad.Width = 300
	_, err = NewTileCache(&bad, S2Compressor{}, nil, nil)
	assert.ErrorIs(t, err, detour.ErrInvalidParam)

	tc, err := NewTileCache(p, S2Compressor{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tc.GetTileCount())
	assert.Equal(t, 4, tc.GetObstacleCount())
}

func TestTileCacheTileRefs(t *testing.T) {
	p := gridParams(2, 1, 8, 1, nil)
	tc, err := NewTileCache(GridTileCacheParams(p, 4), S2Compressor{}, nil, nil)
	require.NoError(t, err)

	data, _ := BuildGridLayer(S2Compressor{}, p, 0, 0)
	ref, status := tc.AddTile(data)
	require.True(t, status.Succeed())
	assert.NotZero(t, ref)
	assert.Equal(t, []DtCompressedTileRef{ref}, tc.GetTilesAt(0, 0))
	assert.Empty(t, tc.GetTilesAt(1, 0))

	_, status = tc.AddTile(data)
	assert.ErrorIs(t, status.Err(), detour.ErrAlreadyOccupied)

	other, _ := BuildGridLayer(S2Compressor{}, p, 1, 0)
	ref2, status := tc.AddTile(other)
	require.True(t, status.Succeed())
	// capacity is two tiles
	_, status = tc.AddTile(other)
	assert.True(t, status.Failed())

	removed, status := tc.RemoveTile(ref)
	require.True(t, status.Succeed())
	assert.Equal(t, data, removed)
	assert.Nil(t, tc.GetTileByRef(ref))
	assert.NotNil(t, tc.GetTileByRef(ref2))
	_, status = tc.RemoveTile(ref)
	assert.ErrorIs(t, status.Err(), detour.ErrInvalidParam)

	ref3, status := tc.AddTile(data)
	require.True(t, status.Succeed())
	assert.NotEqual(t, ref, ref3, "a reused slot gets a new salt")
}

func TestTileCacheQueryTiles(t *testing.T) {
	f := newFixture(t, gridParams(4, 4, 4, 1, nil), 4)
	refs, status := f.tc.QueryTiles([]float32{3, 0, 3}, []float32{5, 1, 5}, 8)
	assert.True(t, status.Succeed())
	assert.Len(t, refs, 4)

	refs, status = f.tc.QueryTiles([]float32{0, 0, 0}, []float32{16, 1, 16}, 8)
	assert.True(t, status.Detail(detour.DT_BUFFER_TOO_SMALL))
	assert.Len(t, refs, 8)

	refs, _ = f.tc.QueryTiles([]float32{40, 0, 40}, []float32{41, 1, 41}, 8)
	assert.Empty(t, refs)
}

func TestTileCacheBuildsCrossTilePath(t *testing.T) {
	f := newFixture(t, gridParams(2, 1, 8, 1, nil), 4)
	path, status := f.findPath(t, []float32{0.5, 0, 4}, []float32{15.5, 0, 4})
	require.True(t, status.Succeed(), status.String())
	assert.GreaterOrEqual(t, len(path), 2)
	_, tile0, _ := f.nav.DecodePolyId(path[0])
	_, tile1, _ := f.nav.DecodePolyId(path[len(path)-1])
	assert.NotEqual(t, tile0, tile1)
}

func TestTileCacheCylinderBlocksCorridor(t *testing.T) {
	f := newCorridor(t)
	_, status := f.findPath(t, corridorStart, corridorEnd)
	require.True(t, status.Succeed(), status.String())
	polys := f.polyCount()
	require.Positive(t, polys)
	before := meshShape(f.nav, f.p)

	ref, status := f.tc.AddObstacle([]float32{4, 0, 4}, 1.5, 2)
	require.True(t, status.Succeed())
	ob := f.tc.GetObstacleByRef(ref)
	require.NotNil(t, ob)
	assert.Equal(t, DT_OBSTACLE_PROCESSING, ob.State)

	f.update(t)
	assert.Equal(t, DT_OBSTACLE_PROCESSED, ob.State)
	assert.Len(t, ob.Touched(), 1)
	assert.Empty(t, ob.Pending())

	_, status = f.findPath(t, corridorStart, corridorEnd)
	assert.True(t, status.Failed())
	assert.ErrorIs(t, status.Err(), detour.ErrNotFound)
	_, _, _, status = f.q.FindNearestPoly([]float32{4, 0, 4}, probe, detour.NewDtQueryFilter())
	assert.True(t, status.Detail(detour.DT_NOT_FOUND))

	require.True(t, f.tc.RemoveObstacle(ref).Succeed())
	f.update(t)
	assert.Nil(t, f.tc.GetObstacleByRef(ref), "the ref is stale once the obstacle is gone")
	assert.Equal(t, DT_OBSTACLE_EMPTY, ob.State)

	_, status = f.findPath(t, corridorStart, corridorEnd)
	assert.True(t, status.Succeed(), status.String())
	assert.Equal(t, polys, f.polyCount(), "removing the obstacle restores the tile")
	assert.Equal(t, before, meshShape(f.nav, f.p))
}

func TestTileCacheBoxObstacles(t *testing.T) {
	tests := []struct {
		name string
		add  func(tc *TileCache) (DtObstacleRef, bool)
	}{
		{"aabb", func(tc *TileCache) (DtObstacleRef, bool) {
			ref, status := tc.AddBoxObstacle([]float32{3.5, -0.5, 2.5}, []float32{4.5, 1, 5.5})
			return ref, status.Succeed()
		}},
		{"oriented", func(tc *TileCache) (DtObstacleRef, bool) {
			ref, status := tc.AddOrientedBoxObstacle([]float32{4, 0, 4}, []float32{1, 1, 1}, math.Pi/4)
			return ref, status.Succeed()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// two tiles so that the links across the tile border are checked too
			f := newFixture(t, gridParams(2, 1, 16, 0.5, corridor), 8)
			polys := f.polyCount()
			before := meshShape(f.nav, f.p)
			require.Len(t, before, 2)
			ref, ok := tt.add(f.tc)
			require.True(t, ok)
			f.update(t)
			assert.NotEqual(t, before, meshShape(f.nav, f.p))

			_, status := f.findPath(t, corridorStart, corridorEnd)
			assert.ErrorIs(t, status.Err(), detour.ErrNotFound)

			require.True(t, f.tc.RemoveObstacle(ref).Succeed())
			f.update(t)
			_, status = f.findPath(t, corridorStart, corridorEnd)
			assert.True(t, status.Succeed(), status.String())
			assert.Equal(t, polys, f.polyCount())
			assert.Equal(t, before, meshShape(f.nav, f.p), "same polygons and connectivity after the removal")
		})
	}
}

func TestTileCacheObstacleCapacity(t *testing.T) {
	f := newFixture(t, gridParams(4, 4, 4, 1, nil), 1)
	ref, status := f.tc.AddObstacle([]float32{2, 0, 2}, 0.5, 1)
	require.True(t, status.Succeed())
	_, status = f.tc.AddObstacle([]float32{6, 0, 6}, 0.5, 1)
	assert.ErrorIs(t, status.Err(), detour.ErrOutOfMemory)

	// once removed the slot is free again
	require.True(t, f.tc.RemoveObstacle(ref).Succeed())
	f.update(t)
	_, status = f.tc.AddObstacle([]float32{6, 0, 6}, 0.5, 1)
	assert.True(t, status.Succeed())

	_, status = f.tc.AddObstacle([]float32{6, 0, 6}, -1, 1)
	assert.ErrorIs(t, status.Err(), detour.ErrInvalidParam)
	assert.ErrorIs(t, f.tc.RemoveObstacle(ref).Err(), detour.ErrInvalidParam)
}

func TestTileCacheObstacleTouchesTooManyTiles(t *testing.T) {
	f := newFixture(t, gridParams(4, 4, 4, 1, nil), 4)
	_, status := f.tc.AddBoxObstacle([]float32{1, 0, 1}, []float32{15, 1, 15})
	assert.True(t, status.Failed())
	assert.True(t, status.Detail(detour.DT_BUFFER_TOO_SMALL))

	// eight tiles is still fine
	ref, status := f.tc.AddBoxObstacle([]float32{1, 0, 1}, []float32{15, 1, 5})
	require.True(t, status.Succeed())
	f.update(t)
	assert.Len(t, f.tc.GetObstacleByRef(ref).Touched(), 8)
}

func TestTileCacheRequestQueueLimit(t *testing.T) {
	// one obstacle per tile
	f := newFixture(t, gridParams(8, 8, 4, 1, nil), 100)
	for i := 0; i < MAX_REQUESTS; i++ {
		x, z := float32(i%8*4+2), float32(i/8*4+2)
		_, status := f.tc.AddObstacle([]float32{x, 0, z}, 0.5, 1)
		require.True(t, status.Succeed(), "obstacle %d", i)
	}
	_, status := f.tc.AddObstacle([]float32{2, 0, 2}, 0.5, 1)
	assert.ErrorIs(t, status.Err(), detour.ErrBufferTooSmall)

	// the 64 tiles fit in one batch, one Update drains the queue
	_, status = f.tc.Update(0.1, f.nav)
	require.True(t, status.Succeed())
	_, status = f.tc.AddObstacle([]float32{2, 0, 2}, 0.5, 1)
	assert.True(t, status.Succeed())
}

func TestTileCacheBatchesLargeUpdates(t *testing.T) {
	p := gridParams(12, 6, 4, 1, nil)
	f := newFixture(t, p, 16)
	// nine boxes of 4x2 tiles each, 72 tiles in total
	var refs []DtObstacleRef
	for x := 0; x < 3; x++ {
		for z := 0; z < 3; z++ {
			x0, z0 := float32(16*x), float32(8*z)
			ref, status := f.tc.AddBoxObstacle([]float32{x0 + 0.1, -0.5, z0 + 0.1}, []float32{x0 + 15.9, 1, z0 + 7.9})
			require.True(t, status.Succeed())
			refs = append(refs, ref)
		}
	}

	for i := 0; ; i++ {
		require.Less(t, i, 256, "tile cache did not settle")
		upToDate, status := f.tc.Update(0.1, f.nav)
		require.True(t, status.Succeed(), status.String())
		// a processed obstacle is stamped into every tile it touches
		for _, ref := range refs {
			ob := f.tc.GetObstacleByRef(ref)
			require.NotNil(t, ob)
			if ob.State != DT_OBSTACLE_PROCESSED {
				continue
			}
			for _, tref := range ob.Touched() {
				h := f.tc.GetTileByRef(tref).Header
				require.Nil(t, f.nav.GetTileAt(h.Tx, h.Ty, h.Tlayer), "tile %d,%d after %d updates", h.Tx, h.Ty, i)
			}
		}
		if upToDate {
			break
		}
	}

	for _, ref := range refs {
		ob := f.tc.GetObstacleByRef(ref)
		assert.Equal(t, DT_OBSTACLE_PROCESSED, ob.State)
		assert.Len(t, ob.Touched(), 8)
		assert.Empty(t, ob.Pending())
	}
	for z := int32(0); z < int32(p.TilesZ); z++ {
		for x := int32(0); x < int32(p.TilesX); x++ {
			assert.Nil(t, f.nav.GetTileAt(x, z, 0), "tile %d,%d", x, z)
			_, _, _, status := f.q.FindNearestPoly([]float32{float32(x)*4 + 2, 0, float32(z)*4 + 2}, probe, detour.NewDtQueryFilter())
			assert.True(t, status.Detail(detour.DT_NOT_FOUND), "tile %d,%d", x, z)
		}
	}
}

func TestTileCacheTileObstacleLimit(t *testing.T) {
	f := newFixture(t, gridParams(2, 1, 8, 1, nil), 2*DT_MAX_TILE_OBSTACLES)
	var refs []DtObstacleRef
	for i := 0; i < DT_MAX_TILE_OBSTACLES; i++ {
		ref, status := f.tc.AddObstacle([]float32{4, 0, 4}, 0.5, 1)
		require.True(t, status.Succeed(), "obstacle %d", i)
		refs = append(refs, ref)
	}
	// queued obstacles already occupy the tile
	_, status := f.tc.AddObstacle([]float32{4, 0, 4}, 0.5, 1)
	assert.ErrorIs(t, status.Err(), detour.ErrBufferTooSmall)
	_, status = f.tc.AddBoxObstacle([]float32{6, 0, 3}, []float32{10, 1, 5})
	assert.ErrorIs(t, status.Err(), detour.ErrBufferTooSmall, "one full tile is enough to reject")
	_, status = f.tc.AddObstacle([]float32{12, 0, 4}, 0.5, 1)
	assert.True(t, status.Succeed(), "the other tile has room")

	f.update(t)
	_, status = f.tc.AddObstacle([]float32{4, 0, 4}, 0.5, 1)
	assert.ErrorIs(t, status.Err(), detour.ErrBufferTooSmall)
	for _, ref := range refs {
		assert.Equal(t, DT_OBSTACLE_PROCESSED, f.tc.GetObstacleByRef(ref).State)
	}

	require.True(t, f.tc.RemoveObstacle(refs[0]).Succeed())
	f.update(t)
	_, status = f.tc.AddObstacle([]float32{4, 0, 4}, 0.5, 1)
	assert.True(t, status.Succeed())
}

func TestTileCacheQueuedRemoveWaitsForItsBatch(t *testing.T) {
	f := newCorridor(t)
	ref, status := f.tc.AddObstacle([]float32{4, 0, 4}, 1.5, 2)
	require.True(t, status.Succeed())
	require.True(t, f.tc.RemoveObstacle(ref).Succeed())
	ob := f.tc.GetObstacleByRef(ref)
	require.NotNil(t, ob)

	f.update(t)
	assert.Equal(t, DT_OBSTACLE_EMPTY, ob.State)
	assert.Nil(t, f.tc.GetObstacleByRef(ref))
	_, status = f.findPath(t, corridorStart, corridorEnd)
	assert.True(t, status.Succeed(), status.String())
}

func TestTileCacheFailedRebuildKeepsTile(t *testing.T) {
	p := gridParams(1, 1, 8, 1, nil)
	f := newFixture(t, p, 4)
	polys := f.polyCount()
	require.Positive(t, polys)

	// a navmesh whose tiles only fit the unobstructed polygons
	np := p.NavMeshParams()
	np.MaxPolys = polys
	nav, status := detour.NewDtNavMesh(np)
	require.True(t, status.Succeed(), status.String())
	require.True(t, f.tc.BuildAll(nav).Succeed())
	before := meshShape(nav, p)
	ref := nav.GetTileRefAt(0, 0, 0)
	require.NotZero(t, ref)

	_, status = f.tc.AddObstacle([]float32{4, 0, 4}, 1, 2)
	require.True(t, status.Succeed())
	_, status = f.tc.Update(0.1, nav)
	assert.True(t, status.Failed())
	assert.Equal(t, ref, nav.GetTileRefAt(0, 0, 0), "the previous tile keeps its ref")
	assert.Equal(t, before, meshShape(nav, p))
}

func TestTileCacheObstacleOutsideTiles(t *testing.T) {
	f := newCorridor(t)
	ref, status := f.tc.AddObstacle([]float32{40, 0, 40}, 0.5, 1)
	require.True(t, status.Succeed())
	f.update(t)
	ob := f.tc.GetObstacleByRef(ref)
	require.NotNil(t, ob)
	assert.Equal(t, DT_OBSTACLE_PROCESSED, ob.State)
	assert.Empty(t, ob.Touched())

	require.True(t, f.tc.RemoveObstacle(ref).Succeed())
	f.update(t)
	assert.Nil(t, f.tc.GetObstacleByRef(ref))
}

func TestTileCacheSnapshot(t *testing.T) {
	f := newCorridor(t)
	_, status := f.tc.AddObstacle([]float32{4, 0, 4}, 1.5, 2)
	require.True(t, status.Succeed())
	_, status = f.tc.AddOrientedBoxObstacle([]float32{1, 0, 4}, []float32{0.5, 1, 0.25}, 0.3)
	require.True(t, status.Succeed())
	f.update(t)

	data := f.tc.MarshalSnapshot()
	restored, err := RestoreSnapshot(data, S2Compressor{}, DefaultMeshProcess, nil)
	require.NoError(t, err)
	assert.Equal(t, *f.tc.GetParams(), *restored.GetParams())
	assert.Equal(t, f.tc.Obstacles(), restored.Obstacles())
	require.Len(t, restored.GetTilesAt(0, 0), 1)

	nav, status := detour.NewDtNavMesh(f.p.NavMeshParams())
	require.True(t, status.Succeed())
	require.True(t, restored.BuildAll(nav).Succeed())
	g := &fixture{p: f.p, tc: restored, nav: nav}
	g.q, status = detour.NewDtNavMeshQuery(nav, 2048)
	require.True(t, status.Succeed())
	g.update(t)
	_, status = g.findPath(t, corridorStart, corridorEnd)
	assert.ErrorIs(t, status.Err(), detour.ErrNotFound)

	_, err = RestoreSnapshot([]byte{0xff, 0xff}, S2Compressor{}, nil, nil)
	assert.ErrorIs(t, err, ErrBadSnapshot)
	_, err = RestoreSnapshot(nil, S2Compressor{}, nil, nil)
	assert.ErrorIs(t, err, ErrBadSnapshot)
}

func TestTileCacheMeshProcessHook(t *testing.T) {
	p := gridParams(1, 1, 8, 1, nil)
	calls := 0
	hook := func(params *detour.DtNavMeshCreateParams, areas []uint8, flags []uint16) {
		calls++
		assert.EqualValues(t, 0, params.TileX)
		for i := 0; i < params.PolyCount; i++ {
			areas[i] = 5
			flags[i] = 4
		}
	}
	tc, err := NewTileCache(GridTileCacheParams(p, 4), S2Compressor{}, hook, nil)
	require.NoError(t, err)
	_, status := tc.AddGridLayers(p)
	require.True(t, status.Succeed())
	nav, _ := detour.NewDtNavMesh(p.NavMeshParams())
	require.True(t, tc.BuildNavMeshTilesAt(0, 0, nav).Succeed())
	assert.Equal(t, 1, calls)

	tile := nav.GetTileAt(0, 0, 0)
	require.NotNil(t, tile)
	for i := range tile.Polys {
		assert.EqualValues(t, 5, tile.Polys[i].GetArea())
		assert.EqualValues(t, 4, tile.Polys[i].Flags)
	}
}

func TestTileCacheFullyBlockedTileIsRemoved(t *testing.T) {
	f := newFixture(t, gridParams(1, 1, 8, 1, nil), 4)
	require.NotNil(t, f.nav.GetTileAt(0, 0, 0))
	_, status := f.tc.AddBoxObstacle([]float32{-1, -1, -1}, []float32{9, 2, 9})
	require.True(t, status.Succeed())
	f.update(t)
	assert.Nil(t, f.nav.GetTileAt(0, 0, 0))
}
