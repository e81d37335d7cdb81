package detour

import (
	"math"
	"math/rand"
	"testing"

	"github.com/gorustyt/navrt/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lShape is walkable along the column x == 0 and the row z == 3 of a 4x4 tile.
func lShape(x, z int) bool { return x == 0 || z == 3 }

// ring is a 3x3 tile with the centre cell removed.
func ring(x, z int) bool { return x != 1 || z != 1 }

func TestFindNearestPoly(t *testing.T) {
	_, q := newGridMesh(t, gridParams(2, 2, 2, nil))
	filter := NewDtQueryFilter()

	ref, pt, over, status := q.FindNearestPoly([]float32{2.5, 0.3, 1.5}, []float32{0.6, 2, 0.6}, filter)
	require.True(t, status.Succeed())
	assert.NotZero(t, ref)
	assert.True(t, over)
	assert.InDeltaSlice(t, []float32{2.5, 0, 1.5}, pt[:], 1e-5)
	assert.Equal(t, ref, cellRef(t, q, 2, 1))

	// off the mesh, snapped to the closest edge
	ref, pt, over, status = q.FindNearestPoly([]float32{-0.3, 0, 0.5}, []float32{0.6, 2, 0.6}, filter)
	require.True(t, status.Succeed())
	assert.Equal(t, cellRef(t, q, 0, 0), ref)
	assert.False(t, over)
	assert.InDelta(t, 0, pt[0], 1e-5)

	ref, _, _, status = q.FindNearestPoly([]float32{50, 0, 50}, []float32{0.6, 2, 0.6}, filter)
	assert.Zero(t, ref)
	assert.True(t, status.Failed())
	assert.ErrorIs(t, status.Err(), ErrNotFound)

	_, _, _, status = q.FindNearestPoly([]float32{0, 0, 0}, []float32{-1, 2, 1}, filter)
	assert.ErrorIs(t, status.Err(), ErrInvalidParam)
}

func TestFindNearestPolyHonoursFilter(t *testing.T) {
	p := gridParams(1, 1, 3, nil)
	p.Flags = func(x, z int) uint16 {
		if x == 0 && z == 0 {
			return 1
		}
		return 2
	}
	_, q := newGridMesh(t, p)
	filter := NewDtQueryFilter()
	filter.SetExcludeFlags(2)
	ref, _, over, status := q.FindNearestPoly(cellCenter(2, 2), []float32{0.2, 1, 0.2}, filter)
	assert.Zero(t, ref)
	assert.False(t, over)
	assert.True(t, status.Detail(DT_NOT_FOUND))

	ref, _, _, status = q.FindNearestPoly(cellCenter(0, 0), []float32{0.2, 1, 0.2}, filter)
	require.True(t, status.Succeed())
	assert.NotZero(t, ref)
}

func TestQueryPolygons(t *testing.T) {
	_, q := newGridMesh(t, gridParams(2, 2, 4, nil))
	filter := NewDtQueryFilter()

	refs, status := q.QueryPolygonsCollect([]float32{4, 0, 4}, []float32{1.2, 1, 1.2}, filter, 64)
	require.True(t, status.Succeed())
	// every cell overlapping the box, across the four tiles around the corner
	var want []DtPolyRef
	for z := 2; z <= 5; z++ {
		for x := 2; x <= 5; x++ {
			want = append(want, cellRef(t, q, x, z))
		}
	}
	assert.Subset(t, refs, want)
	assert.NotContains(t, refs, cellRef(t, q, 0, 0))

	refs, status = q.QueryPolygonsCollect([]float32{4, 0, 4}, []float32{1.2, 1, 1.2}, filter, 5)
	assert.True(t, status.Detail(DT_BUFFER_TOO_SMALL))
	assert.Len(t, refs, 5)
}

type countingQuery struct {
	batches int
	total   int
}

func (c *countingQuery) Process(tile *DtMeshTile, polys []*DtPoly, refs []DtPolyRef) {
	c.batches++
	c.total += len(refs)
}

func TestQueryPolygonsVisitorBatches(t *testing.T) {
	_, q := newGridMesh(t, gridParams(1, 1, 8, nil))
	c := &countingQuery{}
	status := q.QueryPolygons([]float32{4, 0, 4}, []float32{10, 1, 10}, NewDtQueryFilter(), c)
	require.True(t, status.Succeed())
	assert.Equal(t, 64, c.total)
	assert.Equal(t, 2, c.batches)
}

// pathMetric prices a polygon corridor the way the search does: segments between
// consecutive portal midpoints, each weighted by the area cost of the polygon it crosses.
func pathMetric(t *testing.T, q *DtNavMeshQuery, path []DtPolyRef, startPos, endPos []float32, filter *DtQueryFilter) float32 {
	t.Helper()
	var cost float32
	prev := startPos
	for i := 0; i+1 < len(path); i++ {
		mid, status := q.GetEdgeMidPoint(path[i], path[i+1])
		require.True(t, status.Succeed())
		_, poly := q.m_nav.GetTileAndPolyByRefUnsafe(path[i])
		cost += filter.GetCost(prev, mid[:], poly)
		prev = mid[:]
	}
	_, last := q.m_nav.GetTileAndPolyByRefUnsafe(path[len(path)-1])
	return cost + filter.GetCost(prev, endPos, last)
}

// enumeratePaths lists every simple polygon path between two polygons.
func enumeratePaths(nav *DtNavMesh, from, to DtPolyRef) [][]DtPolyRef {
	var out [][]DtPolyRef
	visited := map[DtPolyRef]bool{}
	var walk func(cur DtPolyRef, path []DtPolyRef)
	walk = func(cur DtPolyRef, path []DtPolyRef) {
		path = append(path, cur)
		if cur == to {
			out = append(out, append([]DtPolyRef(nil), path...))
			return
		}
		visited[cur] = true
		tile, poly := nav.GetTileAndPolyByRefUnsafe(cur)
		for l := poly.FirstLink; l != DT_NULL_LINK; l = tile.Links[l].Next {
			if nei := tile.Links[l].Ref; nei != 0 && !visited[nei] {
				walk(nei, path)
			}
		}
		visited[cur] = false
	}
	walk(from, nil)
	return out
}

func TestFindPathOptimalOnRing(t *testing.T) {
	cases := []struct {
		name      string
		expensive func(x, z int) bool
	}{
		{name: "bottom row expensive", expensive: func(x, z int) bool { return z == 0 && x > 0 }},
		{name: "left column expensive", expensive: func(x, z int) bool { return x == 0 && z > 0 }},
		{name: "uniform", expensive: func(x, z int) bool { return false }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := gridParams(1, 1, 3, ring)
			p.Area = func(x, z int) uint8 {
				if c.expensive(x, z) {
					return 1
				}
				return 0
			}
			nav, q := newGridMesh(t, p)
			filter := NewDtQueryFilter()
			filter.SetAreaCost(1, 10)

			start, end := cellRef(t, q, 0, 0), cellRef(t, q, 2, 2)
			startPos, endPos := cellCenter(0, 0), cellCenter(2, 2)
			path, status := q.FindPath(start, end, startPos, endPos, filter, 32)
			require.True(t, status.Succeed(), status.String())
			assert.False(t, status.Detail(DT_PARTIAL_RESULT))
			require.Equal(t, start, path[0])
			require.Equal(t, end, path[len(path)-1])

			best := float32(math.MaxFloat32)
			all := enumeratePaths(nav, start, end)
			require.Len(t, all, 2)
			for _, candidate := range all {
				best = min(best, pathMetric(t, q, candidate, startPos, endPos, filter))
			}
			assert.InDelta(t, best, pathMetric(t, q, path, startPos, endPos, filter), 1e-3)
		})
	}
}

func TestFindPathAcrossTiles(t *testing.T) {
	_, q := newGridMesh(t, gridParams(3, 3, 2, nil))
	filter := NewDtQueryFilter()
	start, end := cellRef(t, q, 0, 0), cellRef(t, q, 5, 5)
	path, status := q.FindPath(start, end, cellCenter(0, 0), cellCenter(5, 5), filter, 64)
	require.True(t, status.Succeed(), status.String())
	assert.Equal(t, start, path[0])
	assert.Equal(t, end, path[len(path)-1])
	// a staircase through the grid visits one polygon per unit step
	assert.Len(t, path, 11)

	same, status := q.FindPath(start, start, cellCenter(0, 0), cellCenter(0, 0), filter, 64)
	require.True(t, status.Succeed())
	assert.Equal(t, []DtPolyRef{start}, same)

	short, status := q.FindPath(start, end, cellCenter(0, 0), cellCenter(5, 5), filter, 3)
	require.True(t, status.Succeed())
	assert.True(t, status.Detail(DT_BUFFER_TOO_SMALL))
	assert.Len(t, short, 3)
	assert.Equal(t, start, short[0])
}

func TestFindPathNoPath(t *testing.T) {
	// the column x == 2 splits the tile in two
	_, q := newGridMesh(t, gridParams(1, 1, 5, func(x, z int) bool { return x != 2 }))
	filter := NewDtQueryFilter()
	start, end := cellRef(t, q, 0, 0), cellRef(t, q, 4, 4)
	path, status := q.FindPath(start, end, cellCenter(0, 0), cellCenter(4, 4), filter, 64)
	assert.True(t, status.Failed())
	assert.False(t, status.Detail(DT_PARTIAL_RESULT))
	assert.ErrorIs(t, status.Err(), ErrNotFound)
	assert.NotEmpty(t, path)
	assert.Equal(t, start, path[0])
}

func TestFindPathFilterBlocksCorridor(t *testing.T) {
	p := gridParams(1, 1, 3, ring)
	p.Flags = func(x, z int) uint16 {
		if (x == 1 && z == 0) || (x == 1 && z == 2) {
			return 4
		}
		return 1
	}
	_, q := newGridMesh(t, p)
	filter := NewDtQueryFilter()
	start, end := cellRef(t, q, 0, 0), cellRef(t, q, 2, 2)

	_, status := q.FindPath(start, end, cellCenter(0, 0), cellCenter(2, 2), filter, 32)
	require.True(t, status.Succeed())

	filter.SetExcludeFlags(4)
	_, status = q.FindPath(start, end, cellCenter(0, 0), cellCenter(2, 2), filter, 32)
	assert.ErrorIs(t, status.Err(), ErrNotFound)
}

func TestFindPathOutOfNodes(t *testing.T) {
	nav, _ := newGridMesh(t, gridParams(2, 2, 8, nil))
	q, status := NewDtNavMeshQuery(nav, 8)
	require.True(t, status.Succeed())
	filter := NewDtQueryFilter()
	start := cellRef(t, q, 0, 0)
	end := cellRef(t, q, 15, 15)

	path, status := q.FindPath(start, end, cellCenter(0, 0), cellCenter(15, 15), filter, 64)
	require.True(t, status.Succeed(), status.String())
	assert.True(t, status.Detail(DT_PARTIAL_RESULT))
	assert.True(t, status.Detail(DT_OUT_OF_NODES))
	assert.ErrorIs(t, status.Err(), ErrPartialResult)
	require.NotEmpty(t, path)
	assert.Equal(t, start, path[0])
	assert.NotEqual(t, end, path[len(path)-1])
}

func TestFindPathInvalidRefs(t *testing.T) {
	_, q := newGridMesh(t, gridParams(1, 1, 2, nil))
	filter := NewDtQueryFilter()
	start := cellRef(t, q, 0, 0)
	_, status := q.FindPath(start, start+1000, cellCenter(0, 0), cellCenter(1, 1), filter, 8)
	assert.ErrorIs(t, status.Err(), ErrInvalidParam)
	_, status = q.FindPath(start, start, []float32{float32(math.NaN()), 0, 0}, cellCenter(1, 1), filter, 8)
	assert.ErrorIs(t, status.Err(), ErrInvalidParam)
}

func TestSlicedFindPathMatchesFindPath(t *testing.T) {
	walls := func(x, z int) bool {
		// two staggered walls with gaps at opposite ends
		if x == 3 && z < 6 {
			return false
		}
		if x == 5 && z > 1 {
			return false
		}
		return true
	}
	_, q := newGridMesh(t, gridParams(2, 2, 4, walls))
	filter := NewDtQueryFilter()
	start, end := cellRef(t, q, 0, 0), cellRef(t, q, 7, 7)
	startPos, endPos := cellCenter(0, 0), cellCenter(7, 7)

	full, status := q.FindPath(start, end, startPos, endPos, filter, 128)
	require.True(t, status.Succeed(), status.String())

	for _, budget := range []int{1, 3, 1000} {
		status = q.InitSlicedFindPath(start, end, startPos, endPos, filter)
		require.True(t, status.InProgress())
		steps := 0
		for status.InProgress() {
			_, status = q.UpdateSlicedFindPath(budget)
			steps++
			require.Less(t, steps, 10000)
		}
		require.True(t, status.Succeed(), status.String())
		sliced, status := q.FinalizeSlicedFindPath(128)
		require.True(t, status.Succeed(), status.String())
		assert.Equal(t, full, sliced, "budget %d", budget)
		assert.Zero(t, q.SlicedStatus())
	}
}

func TestSlicedFindPathInvalidatedByTileRemoval(t *testing.T) {
	nav, q := newGridMesh(t, gridParams(2, 1, 4, nil))
	filter := NewDtQueryFilter()
	start, end := cellRef(t, q, 0, 0), cellRef(t, q, 7, 3)
	status := q.InitSlicedFindPath(start, end, cellCenter(0, 0), cellCenter(7, 3), filter)
	require.True(t, status.InProgress())
	_, status = q.UpdateSlicedFindPath(2)
	require.True(t, status.InProgress())

	_, status = nav.RemoveTile(nav.GetTileRefAt(1, 0, 0))
	require.True(t, status.Succeed())

	_, status = q.UpdateSlicedFindPath(100)
	assert.True(t, status.Failed())
	assert.True(t, status.Detail(DT_INVALID_PARAM))
	_, status = q.FinalizeSlicedFindPath(16)
	assert.True(t, status.Failed())
}

func TestFinalizeSlicedFindPathPartial(t *testing.T) {
	_, q := newGridMesh(t, gridParams(1, 1, 8, nil))
	filter := NewDtQueryFilter()
	start, end := cellRef(t, q, 0, 0), cellRef(t, q, 7, 0)
	existing := []DtPolyRef{start, cellRef(t, q, 1, 0), cellRef(t, q, 2, 0), cellRef(t, q, 3, 0)}

	status := q.InitSlicedFindPath(start, end, cellCenter(0, 0), cellCenter(7, 0), filter)
	require.True(t, status.InProgress())
	_, status = q.UpdateSlicedFindPath(3)
	require.True(t, status.InProgress())

	path, status := q.FinalizeSlicedFindPathPartial(existing, 16)
	require.True(t, status.Succeed(), status.String())
	assert.True(t, status.Detail(DT_PARTIAL_RESULT))
	require.NotEmpty(t, path)
	assert.Equal(t, start, path[0])
	assert.Contains(t, existing, path[len(path)-1])
}

func TestFindStraightPathCorner(t *testing.T) {
	_, q := newGridMesh(t, gridParams(1, 1, 4, lShape))
	filter := NewDtQueryFilter()
	start, end := cellRef(t, q, 0, 0), cellRef(t, q, 3, 3)
	startPos, endPos := cellCenter(0, 0), cellCenter(3, 3)

	path, status := q.FindPath(start, end, startPos, endPos, filter, 32)
	require.True(t, status.Succeed())
	assert.Len(t, path, 7)

	straight, status := q.FindStraightPath(startPos, endPos, path, 16, 0)
	require.True(t, status.Succeed(), status.String())
	require.Equal(t, 3, straight.Len())
	assert.InDeltaSlice(t, startPos, straight.Points[0][:], 1e-4)
	assert.InDeltaSlice(t, []float32{1, 0, 3}, straight.Points[1][:], 1e-4)
	assert.InDeltaSlice(t, endPos, straight.Points[2][:], 1e-4)
	assert.Equal(t, uint8(DT_STRAIGHTPATH_START), straight.Flags[0])
	assert.Equal(t, uint8(0), straight.Flags[1])
	assert.Equal(t, uint8(DT_STRAIGHTPATH_END), straight.Flags[2])
	assert.Equal(t, start, straight.Refs[0])
	assert.Zero(t, straight.Refs[2])

	// running the extraction again over the same corridor gives the same answer
	again, status := q.FindStraightPath(straight.Points[0][:], straight.Points[2][:], path, 16, 0)
	require.True(t, status.Succeed())
	assert.Equal(t, straight.Points, again.Points)
	assert.Equal(t, straight.Flags, again.Flags)
	assert.Equal(t, straight.Refs, again.Refs)

	short, status := q.FindStraightPath(startPos, endPos, path, 2, 0)
	assert.True(t, status.Detail(DT_BUFFER_TOO_SMALL))
	assert.Equal(t, 2, short.Len())
}

func TestFindStraightPathCrossings(t *testing.T) {
	p := gridParams(1, 1, 4, nil)
	p.Area = func(x, z int) uint8 {
		if x >= 2 {
			return 1
		}
		return 0
	}
	_, q := newGridMesh(t, p)
	filter := NewDtQueryFilter()
	start, end := cellRef(t, q, 0, 1), cellRef(t, q, 3, 1)
	path, status := q.FindPath(start, end, cellCenter(0, 1), cellCenter(3, 1), filter, 32)
	require.True(t, status.Succeed())
	require.Len(t, path, 4)

	plain, status := q.FindStraightPath(cellCenter(0, 1), cellCenter(3, 1), path, 16, 0)
	require.True(t, status.Succeed())
	assert.Equal(t, 2, plain.Len())

	area, status := q.FindStraightPath(cellCenter(0, 1), cellCenter(3, 1), path, 16, DT_STRAIGHTPATH_AREA_CROSSINGS)
	require.True(t, status.Succeed())
	require.Equal(t, 3, area.Len())
	assert.InDelta(t, 2, area.Points[1][0], 1e-4)

	all, status := q.FindStraightPath(cellCenter(0, 1), cellCenter(3, 1), path, 16, DT_STRAIGHTPATH_ALL_CROSSINGS)
	require.True(t, status.Succeed())
	assert.Equal(t, 5, all.Len())
}

func TestRaycast(t *testing.T) {
	_, q := newGridMesh(t, gridParams(1, 1, 4, lShape))
	filter := NewDtQueryFilter()
	start := cellRef(t, q, 0, 0)

	hit, status := q.Raycast(start, cellCenter(0, 0), []float32{3.5, 0, 0.5}, filter, DT_RAYCAST_USE_COSTS, 16, 0)
	require.True(t, status.Succeed())
	assert.True(t, hit.Hit())
	assert.InDelta(t, 1.0/6.0, hit.T, 1e-4)
	assert.InDeltaSlice(t, []float32{-1, 0, 0}, hit.HitNormal[:], 1e-4)
	assert.Equal(t, 2, hit.HitEdgeIndex)
	assert.Equal(t, []DtPolyRef{start}, hit.Path)
	assert.InDelta(t, 0.5, hit.PathCost, 1e-4)

	hit, status = q.Raycast(start, cellCenter(0, 0), cellCenter(0, 3), filter, DT_RAYCAST_USE_COSTS, 16, 0)
	require.True(t, status.Succeed())
	assert.False(t, hit.Hit())
	assert.Equal(t, float32(math.MaxFloat32), hit.T)
	assert.Len(t, hit.Path, 4)
	assert.InDelta(t, 3, hit.PathCost, 1e-4)

	hit, status = q.Raycast(start, cellCenter(0, 0), cellCenter(0, 3), filter, 0, 2, 0)
	assert.True(t, status.Detail(DT_BUFFER_TOO_SMALL))
	assert.Len(t, hit.Path, 2)

	_, status = q.Raycast(0, cellCenter(0, 0), cellCenter(0, 3), filter, 0, 2, 0)
	assert.ErrorIs(t, status.Err(), ErrInvalidParam)
}

func TestMoveAlongSurface(t *testing.T) {
	_, q := newGridMesh(t, gridParams(1, 1, 4, lShape))
	filter := NewDtQueryFilter()
	start := cellRef(t, q, 0, 0)

	pos, visited, status := q.MoveAlongSurface(start, cellCenter(0, 0), []float32{3.5, 0, 0.5}, filter, 16)
	require.True(t, status.Succeed())
	assert.InDeltaSlice(t, []float32{1, 0, 0.5}, pos[:], 1e-4)
	assert.Equal(t, []DtPolyRef{start}, visited)

	pos, visited, status = q.MoveAlongSurface(start, cellCenter(0, 0), []float32{0.5, 0, 1.7}, filter, 16)
	require.True(t, status.Succeed())
	assert.InDeltaSlice(t, []float32{0.5, 0, 1.7}, pos[:], 1e-4)
	assert.Equal(t, []DtPolyRef{start, cellRef(t, q, 0, 1)}, visited)
}

func TestFindDistanceToWall(t *testing.T) {
	_, q := newGridMesh(t, gridParams(1, 1, 4, lShape))
	filter := NewDtQueryFilter()
	ref := cellRef(t, q, 0, 1)

	dist, hitPos, normal, status := q.FindDistanceToWall(ref, []float32{0.3, 0, 1.5}, 5, filter)
	require.True(t, status.Succeed())
	assert.InDelta(t, 0.3, dist, 1e-4)
	assert.InDelta(t, 0, hitPos[0], 1e-4)
	assert.InDeltaSlice(t, []float32{1, 0, 0}, normal[:], 1e-4)

	dist, _, _, status = q.FindDistanceToWall(ref, []float32{0.5, 0, 1.5}, 0.1, filter)
	require.True(t, status.Succeed())
	assert.InDelta(t, 0.1, dist, 1e-4)
}

func TestFindPolysAroundCircle(t *testing.T) {
	_, q := newGridMesh(t, gridParams(1, 1, 5, nil))
	filter := NewDtQueryFilter()
	center := cellRef(t, q, 2, 2)

	res, status := q.FindPolysAroundCircle(center, cellCenter(2, 2), 0.6, filter, 32)
	require.True(t, status.Succeed())
	// the centre cell and its four edge neighbours
	require.Len(t, res, 5)
	assert.Equal(t, center, res[0].Ref)
	assert.Zero(t, res[0].Parent)
	for i := 1; i < len(res); i++ {
		assert.Equal(t, center, res[i].Parent)
		assert.GreaterOrEqual(t, res[i].Cost, res[i-1].Cost)
	}

	path, status := q.GetPathFromDijkstraSearch(res[3].Ref, 8)
	require.True(t, status.Succeed())
	assert.Equal(t, []DtPolyRef{center, res[3].Ref}, path)

	limited, status := q.FindPolysAroundCircle(center, cellCenter(2, 2), 0.6, filter, 2)
	assert.True(t, status.Detail(DT_BUFFER_TOO_SMALL))
	assert.Len(t, limited, 2)
}

func TestFindPolysAroundShape(t *testing.T) {
	_, q := newGridMesh(t, gridParams(1, 1, 5, nil))
	filter := NewDtQueryFilter()
	start := cellRef(t, q, 0, 0)
	// a thin quad along the bottom row
	shape := []float32{0.2, 0, 0.2, 0.2, 0, 0.8, 3.8, 0, 0.8, 3.8, 0, 0.2}
	res, status := q.FindPolysAroundShape(start, shape, 4, filter, 32)
	require.True(t, status.Succeed())
	assert.Len(t, res, 4)
	for _, r := range res {
		assert.True(t, q.IsInClosedList(r.Ref))
	}
	assert.False(t, q.IsInClosedList(cellRef(t, q, 4, 4)))
}

func TestFindLocalNeighbourhoodAndWalls(t *testing.T) {
	_, q := newGridMesh(t, gridParams(1, 1, 4, lShape))
	filter := NewDtQueryFilter()
	ref := cellRef(t, q, 0, 1)

	res, status := q.FindLocalNeighbourhood(ref, cellCenter(0, 1), 1.0, filter, 16)
	require.True(t, status.Succeed())
	refs := make([]DtPolyRef, 0, len(res))
	for _, r := range res {
		refs = append(refs, r.Ref)
	}
	assert.ElementsMatch(t, []DtPolyRef{ref, cellRef(t, q, 0, 0), cellRef(t, q, 0, 2)}, refs)

	walls, status := q.GetPolyWallSegments(ref, filter, 8, false)
	require.True(t, status.Succeed())
	assert.Equal(t, 2, walls.Len())
	for i := 0; i < walls.Len(); i++ {
		assert.Zero(t, walls.Refs[i])
		a, b := walls.Segment(i)
		assert.InDelta(t, a[0], b[0], 1e-5, "walls of a column cell run along z")
	}

	withPortals, status := q.GetPolyWallSegments(ref, filter, 8, true)
	require.True(t, status.Succeed())
	assert.Equal(t, 4, withPortals.Len())
	portals := 0
	for _, r := range withPortals.Refs {
		if r != 0 {
			portals++
		}
	}
	assert.Equal(t, 2, portals)
}

func TestWallSegmentsAtTileBorder(t *testing.T) {
	_, q := newGridMesh(t, gridParams(2, 1, 2, func(x, z int) bool { return z == 0 }))
	filter := NewDtQueryFilter()
	ref := cellRef(t, q, 1, 0)
	walls, status := q.GetPolyWallSegments(ref, filter, 8, true)
	require.True(t, status.Succeed())
	assert.Equal(t, 4, walls.Len())
	var portalRefs []DtPolyRef
	for _, r := range walls.Refs {
		if r != 0 {
			portalRefs = append(portalRefs, r)
		}
	}
	assert.ElementsMatch(t, []DtPolyRef{cellRef(t, q, 0, 0), cellRef(t, q, 2, 0)}, portalRefs)
}

func TestFindRandomPoint(t *testing.T) {
	nav, q := newGridMesh(t, gridParams(2, 2, 3, ring))
	filter := NewDtQueryFilter()
	rnd := rand.New(rand.NewSource(7))
	frand := func() float32 { return rnd.Float32() }

	for i := 0; i < 50; i++ {
		ref, pt, status := q.FindRandomPoint(filter, frand)
		require.True(t, status.Succeed())
		require.True(t, nav.IsValidPolyRef(ref))
		closest, over := nav.ClosestPointOnPoly(ref, pt[:])
		assert.True(t, over)
		assert.InDeltaSlice(t, pt[:], closest[:], 1e-4)
	}

	start := cellRef(t, q, 0, 0)
	for i := 0; i < 50; i++ {
		ref, pt, status := q.FindRandomPointAroundCircle(start, cellCenter(0, 0), 1.2, filter, frand)
		require.True(t, status.Succeed())
		assert.LessOrEqual(t, common.Vdist2D(pt[:], cellCenter(0, 0)), float32(3))
		assert.True(t, nav.IsValidPolyRef(ref))
	}

	_, _, status := q.FindRandomPoint(nil, frand)
	assert.ErrorIs(t, status.Err(), ErrInvalidParam)
}

func TestGetPolyHeightAndClosestPoint(t *testing.T) {
	p := gridParams(1, 1, 2, nil)
	p.Orig = [3]float32{0, 1.5, 0}
	_, q := newGridMesh(t, p)
	ref, _, _, status := q.FindNearestPoly([]float32{0.5, 1.5, 0.5}, []float32{0.2, 1, 0.2}, NewDtQueryFilter())
	require.True(t, status.Succeed())

	h, status := q.GetPolyHeight(ref, []float32{0.25, 0, 0.75})
	require.True(t, status.Succeed())
	assert.InDelta(t, 1.5, h, 1e-5)

	_, status = q.GetPolyHeight(ref, []float32{1.5, 0, 0.5})
	assert.True(t, status.Failed())

	closest, status := q.ClosestPointOnPolyBoundary(ref, []float32{-1, 0, 0.5})
	require.True(t, status.Succeed())
	assert.InDeltaSlice(t, []float32{0, 1.5, 0.5}, closest[:], 1e-5)

	closest, over, status := q.ClosestPointOnPoly(ref, []float32{0.5, 4, 0.5})
	require.True(t, status.Succeed())
	assert.True(t, over)
	assert.InDelta(t, 1.5, closest[1], 1e-5)
	assert.True(t, q.IsValidPolyRef(ref, NewDtQueryFilter()))
}

func TestIslandManager(t *testing.T) {
	nav, q := newGridMesh(t, gridParams(2, 1, 3, func(x, z int) bool { return x != 2 }))
	islands := NewDtIslandManager(nav, nil)
	islands.Build()
	assert.Equal(t, 2, islands.Count())

	a, b := cellRef(t, q, 0, 0), cellRef(t, q, 1, 2)
	c := cellRef(t, q, 5, 1)
	assert.True(t, islands.CheckPathExists(a, b))
	assert.False(t, islands.CheckPathExists(a, c))
	assert.NotZero(t, islands.Island(c))
	assert.True(t, islands.CheckPathExists(a, 0), "unknown polygons are not rejected")

	f := NewDtQueryFilter()
	assert.True(t, islands.Covers(f))
	assert.True(t, islands.Covers(islands.Filter()))
	assert.False(t, islands.Covers(nil))

	f.SetExcludeFlags(0x4)
	strict := NewDtIslandManager(nav, f)
	assert.True(t, strict.Covers(f))
	assert.False(t, strict.Covers(NewDtQueryFilter()), "a wider filter may join islands")
	narrow := NewDtQueryFilter()
	narrow.SetIncludeFlags(0x1)
	narrow.SetExcludeFlags(0xc)
	assert.True(t, strict.Covers(narrow))
}
