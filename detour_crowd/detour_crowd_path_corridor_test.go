package detour_crowd

import (
	"testing"

	"github.com/gorustyt/navrt/detour"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refs(ids ...uint64) []detour.DtPolyRef {
	out := make([]detour.DtPolyRef, len(ids))
	for i, id := range ids {
		out[i] = detour.DtPolyRef(id)
	}
	return out
}

func TestMergeCorridorStartMoved(t *testing.T) {
	tests := []struct {
		name    string
		path    []detour.DtPolyRef
		visited []detour.DtPolyRef
		maxPath int
		want    []detour.DtPolyRef
	}{
		{"advance", refs(1, 2, 3, 4), refs(1, 2), 8, refs(2, 3, 4)},
		{"detour", refs(1, 2, 3, 4), refs(1, 5), 8, refs(5, 1, 2, 3, 4)},
		{"capped", refs(1, 2, 3, 4), refs(1, 5), 4, refs(5, 1, 2, 3)},
		{"disjoint", refs(1, 2, 3), refs(7, 8), 8, refs(1, 2, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeCorridorStartMoved(tt.path, tt.maxPath, tt.visited))
		})
	}
}

func TestMergeCorridorEndMoved(t *testing.T) {
	assert.Equal(t, refs(1, 2, 3, 4, 5), MergeCorridorEndMoved(refs(1, 2, 3), 8, refs(3, 4, 5)))
	assert.Equal(t, refs(1, 2, 3, 4), MergeCorridorEndMoved(refs(1, 2, 3), 4, refs(3, 4, 5)))
	// the target moved back into the path
	assert.Equal(t, refs(1, 2), MergeCorridorEndMoved(refs(1, 2, 3), 8, refs(3, 2)))
	assert.Equal(t, refs(1, 2, 3), MergeCorridorEndMoved(refs(1, 2, 3), 8, refs(9)))
}

func TestMergeCorridorStartShortcut(t *testing.T) {
	assert.Equal(t, refs(1, 7, 4, 5), MergeCorridorStartShortcut(refs(1, 2, 3, 4, 5), 8, refs(1, 7, 4)))
	assert.Equal(t, refs(1, 7, 4), MergeCorridorStartShortcut(refs(1, 2, 3, 4, 5), 3, refs(1, 7, 4)))
	// nothing to shortcut
	assert.Equal(t, refs(1, 2, 3), MergeCorridorStartShortcut(refs(1, 2, 3), 8, refs(1)))
	assert.Equal(t, refs(1, 2, 3), MergeCorridorStartShortcut(refs(1, 2, 3), 8, refs(8, 9)))
}

func loadCorridor(t *testing.T, q *detour.DtNavMeshQuery, sx, sz, ex, ez int) *PathCorridor {
	t.Helper()
	start, end := cellRef(t, q, sx, sz), cellRef(t, q, ex, ez)
	path, status := q.FindPath(start, end, cellCenter(sx, sz), cellCenter(ex, ez), detour.NewDtQueryFilter(), 64)
	require.True(t, status.Succeed())
	c := NewPathCorridor(64)
	c.Reset(start, cellCenter(sx, sz))
	c.SetCorridor(cellCenter(ex, ez), path)
	return c
}

func TestPathCorridorReset(t *testing.T) {
	c := NewPathCorridor(8)
	assert.Zero(t, c.GetFirstPoly())
	assert.Zero(t, c.GetLastPoly())
	c.Reset(42, []float32{1, 2, 3})
	assert.EqualValues(t, 42, c.GetFirstPoly())
	assert.EqualValues(t, 42, c.GetLastPoly())
	assert.Equal(t, [3]float32{1, 2, 3}, c.GetPos())
	assert.Equal(t, c.GetPos(), c.GetTarget())
	assert.Equal(t, 1, c.GetPathCount())
	assert.Equal(t, 8, c.GetMaxPath())

	// an oversized path is cut at the far end
	c.SetCorridor([]float32{0, 0, 0}, refs(1, 2, 3, 4, 5, 6, 7, 8, 9, 10))
	assert.Equal(t, refs(1, 2, 3, 4, 5, 6, 7, 8), c.GetPath())
}

func TestPathCorridorAtCapacity(t *testing.T) {
	_, q := newGridMesh(t, 1, 1, 8, func(x, z int) bool { return z == 0 })
	filter := detour.NewDtQueryFilter()
	start, end := cellRef(t, q, 0, 0), cellRef(t, q, 7, 0)
	path, status := q.FindPath(start, end, cellCenter(0, 0), cellCenter(7, 0), filter, 64)
	require.True(t, status.Succeed())
	require.Len(t, path, 8)

	c := NewPathCorridor(4)
	c.Reset(start, cellCenter(0, 0))
	c.SetCorridor(cellCenter(7, 0), path)
	require.Equal(t, path[:4], c.GetPath())

	// the walked polygons go first, the polygons ahead stay
	require.True(t, c.MovePosition(cellCenter(2, 0), q, filter))
	assert.Equal(t, path[2:4], c.GetPath())

	// the freed room takes the replanned remainder
	rest, status := q.FindPath(c.GetFirstPoly(), end, cellCenter(2, 0), cellCenter(7, 0), filter, 64)
	require.True(t, status.Succeed())
	c.SetCorridor(cellCenter(7, 0), rest)
	assert.Equal(t, path[2:6], c.GetPath())
	assert.Equal(t, 4, c.GetPathCount())
}

func TestPathCorridorFindCorners(t *testing.T) {
	_, q := newGridMesh(t, 1, 1, 8, func(x, z int) bool { return x == 0 || z == 7 })
	c := loadCorridor(t, q, 0, 0, 7, 7)

	corners := c.FindCorners(DT_CROWDAGENT_MAX_CORNERS, q)
	require.Equal(t, 2, corners.Len())
	// the inner corner of the L, then the target
	assert.InDeltaSlice(t, []float32{1, 0, 7}, corners.Points[0][:], 1e-4)
	assert.InDeltaSlice(t, cellCenter(7, 7), corners.Points[1][:], 1e-4)
	assert.NotZero(t, corners.Flags[1]&detour.DT_STRAIGHTPATH_END)
}

func TestPathCorridorMovePosition(t *testing.T) {
	_, q := newGridMesh(t, 1, 1, 8, nil)
	filter := detour.NewDtQueryFilter()
	c := loadCorridor(t, q, 0, 0, 5, 0)
	n := c.GetPathCount()

	require.True(t, c.MovePosition(cellCenter(1, 0), q, filter))
	assert.Equal(t, cellRef(t, q, 1, 0), c.GetFirstPoly())
	pos := c.GetPos()
	assert.InDeltaSlice(t, cellCenter(1, 0), pos[:], 1e-4)
	assert.Equal(t, n-1, c.GetPathCount())

	// a move off the mesh is clamped to the border
	require.True(t, c.MovePosition([]float32{1.5, 0, -3}, q, filter))
	pos = c.GetPos()
	assert.InDelta(t, 0, pos[2], 1e-4)

	require.True(t, c.MoveTargetPosition(cellCenter(6, 0), q, filter))
	assert.Equal(t, cellRef(t, q, 6, 0), c.GetLastPoly())
	target := c.GetTarget()
	assert.InDeltaSlice(t, cellCenter(6, 0), target[:], 1e-4)
}

func TestPathCorridorValidity(t *testing.T) {
	_, q := newGridMesh(t, 1, 1, 8, nil)
	c := loadCorridor(t, q, 0, 0, 4, 0)
	filter := detour.NewDtQueryFilter()
	assert.True(t, c.IsValid(10, q, filter))

	blocked := detour.NewDtQueryFilter()
	blocked.SetExcludeFlags(1)
	assert.False(t, c.IsValid(10, q, blocked))

	safe := cellRef(t, q, 2, 2)
	require.True(t, c.TrimInvalidPath(safe, cellCenter(2, 2), q, blocked))
	assert.Equal(t, []detour.DtPolyRef{safe}, c.GetPath())
	pos := c.GetPos()
	assert.InDeltaSlice(t, cellCenter(2, 2), pos[:], 1e-5)

	c.Reset(safe, cellCenter(2, 2))
	c.FixPathStart(cellRef(t, q, 3, 3), cellCenter(3, 3))
	assert.Equal(t, []detour.DtPolyRef{cellRef(t, q, 3, 3), 0, safe}, c.GetPath())
	// the placeholder forces a replan
	assert.False(t, c.IsValid(10, q, filter))
}

func TestPathCorridorOptimizeVisibility(t *testing.T) {
	_, q := newGridMesh(t, 1, 1, 8, nil)
	filter := detour.NewDtQueryFilter()
	c := NewPathCorridor(64)
	c.Reset(cellRef(t, q, 0, 0), cellCenter(0, 0))
	// a detour through the second row
	path := []detour.DtPolyRef{
		cellRef(t, q, 0, 0), cellRef(t, q, 0, 1), cellRef(t, q, 1, 1), cellRef(t, q, 2, 1),
		cellRef(t, q, 3, 1), cellRef(t, q, 3, 0), cellRef(t, q, 4, 0),
	}
	c.SetCorridor(cellCenter(4, 0), path)

	c.OptimizePathVisibility(cellCenter(4, 0), 6, q, filter)
	assert.Less(t, c.GetPathCount(), len(path))
	assert.Equal(t, cellRef(t, q, 0, 0), c.GetFirstPoly())
	assert.Equal(t, cellRef(t, q, 4, 0), c.GetLastPoly())
	assert.NotContains(t, c.GetPath(), cellRef(t, q, 1, 1))
}

func TestPathCorridorOptimizeTopology(t *testing.T) {
	_, q := newGridMesh(t, 1, 1, 8, nil)
	filter := detour.NewDtQueryFilter()
	c := NewPathCorridor(64)
	c.Reset(cellRef(t, q, 0, 0), cellCenter(0, 0))
	assert.False(t, c.OptimizePathTopology(q, filter))

	path := []detour.DtPolyRef{
		cellRef(t, q, 0, 0), cellRef(t, q, 0, 1), cellRef(t, q, 0, 2), cellRef(t, q, 1, 2),
		cellRef(t, q, 2, 2), cellRef(t, q, 2, 1), cellRef(t, q, 2, 0),
	}
	c.SetCorridor(cellCenter(2, 0), path)
	require.True(t, c.OptimizePathTopology(q, filter))
	assert.Less(t, c.GetPathCount(), len(path))
	assert.Equal(t, cellRef(t, q, 0, 0), c.GetFirstPoly())
	assert.Equal(t, cellRef(t, q, 2, 0), c.GetLastPoly())
}
