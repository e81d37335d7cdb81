package detour_crowd

import (
	"testing"

	"github.com/gorustyt/navrt/detour"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPathQueue(t *testing.T, walkable func(x, z int) bool) (*PathQueue, *detour.DtNavMesh, *detour.DtNavMeshQuery) {
	t.Helper()
	nav, q := newGridMesh(t, 1, 1, 8, walkable)
	pq, err := NewPathQueue(nav, 256, 1024)
	require.NoError(t, err)
	return pq, nav, q
}

func requestCells(t *testing.T, pq *PathQueue, q *detour.DtNavMeshQuery, sx, sz, ex, ez int) Ticket {
	t.Helper()
	ticket, err := pq.Request(cellRef(t, q, sx, sz), cellRef(t, q, ex, ez), cellCenter(sx, sz), cellCenter(ex, ez),
		detour.NewDtQueryFilter())
	require.NoError(t, err)
	require.NotEqual(t, DT_PATHQ_INVALID, ticket)
	return ticket
}

func TestPathQueueRequestAndPoll(t *testing.T) {
	pq, _, q := newPathQueue(t, nil)
	ticket := requestCells(t, pq, q, 0, 0, 7, 7)

	res := pq.Poll(ticket)
	assert.Equal(t, PathPending, res.State)

	pq.Update(1000)
	res = pq.Poll(ticket)
	require.Equal(t, PathReady, res.State, res.Status.String())
	require.NotEmpty(t, res.Path)
	assert.Equal(t, cellRef(t, q, 0, 0), res.Path[0])
	assert.Equal(t, cellRef(t, q, 7, 7), res.Path[len(res.Path)-1])
	assert.Equal(t, 0, pq.Pending())

	// reading released the ticket
	res = pq.Poll(ticket)
	assert.Equal(t, PathFailed, res.State)
	assert.True(t, res.Status.Detail(detour.DT_INVALID_PARAM))
}

func TestPathQueueFull(t *testing.T) {
	pq, _, q := newPathQueue(t, nil)
	seen := map[Ticket]bool{}
	for i := 0; i < PATHQ_MAX_QUEUE; i++ {
		ticket := requestCells(t, pq, q, 0, 0, i, 7)
		assert.False(t, seen[ticket])
		seen[ticket] = true
	}
	assert.Equal(t, PATHQ_MAX_QUEUE, pq.Pending())

	ticket, err := pq.Request(cellRef(t, q, 0, 0), cellRef(t, q, 1, 1), cellCenter(0, 0), cellCenter(1, 1),
		detour.NewDtQueryFilter())
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, DT_PATHQ_INVALID, ticket)
	assert.Equal(t, PATHQ_MAX_QUEUE, pq.Pending())
}

func TestPathQueueOneSearchPerUpdate(t *testing.T) {
	pq, _, q := newPathQueue(t, nil)
	first := requestCells(t, pq, q, 0, 0, 7, 7)
	second := requestCells(t, pq, q, 7, 0, 0, 7)

	pq.Update(1000)
	assert.Equal(t, PathReady, pq.Poll(first).State)
	assert.Equal(t, PathPending, pq.Poll(second).State)

	pq.Update(1000)
	assert.Equal(t, PathReady, pq.Poll(second).State)
}

func TestPathQueueSlicedBudget(t *testing.T) {
	pq, _, q := newPathQueue(t, nil)
	ticket := requestCells(t, pq, q, 0, 0, 7, 7)

	// a single expansion per update keeps the search in flight
	pq.Update(1)
	assert.True(t, pq.GetRequestStatus(ticket).InProgress())
	assert.Equal(t, PathPending, pq.Poll(ticket).State)

	for i := 0; i < 200 && pq.GetRequestStatus(ticket).InProgress(); i++ {
		pq.Update(1)
	}
	res := pq.Poll(ticket)
	require.Equal(t, PathReady, res.State)

	full, status := q.FindPath(cellRef(t, q, 0, 0), cellRef(t, q, 7, 7), cellCenter(0, 0), cellCenter(7, 7),
		detour.NewDtQueryFilter(), 256)
	require.True(t, status.Succeed())
	assert.Equal(t, full, res.Path)
}

func TestPathQueueKeepAlive(t *testing.T) {
	pq, _, q := newPathQueue(t, nil)
	ticket := requestCells(t, pq, q, 0, 0, 3, 3)

	pq.Update(1000)
	require.True(t, pq.GetRequestStatus(ticket).Succeed())
	for i := 0; i < PATHQ_MAX_KEEP_ALIVE; i++ {
		pq.Update(1000)
		assert.True(t, pq.GetRequestStatus(ticket).Succeed(), "tick %d", i)
	}

	// unread results are recycled
	pq.Update(1000)
	assert.Equal(t, PathFailed, pq.Poll(ticket).State)
	assert.Equal(t, 0, pq.Pending())
}

func TestPathQueueCancel(t *testing.T) {
	pq, _, q := newPathQueue(t, nil)
	idle := requestCells(t, pq, q, 0, 0, 7, 7)
	pq.Cancel(idle)
	assert.Equal(t, 0, pq.Pending())
	assert.Equal(t, PathFailed, pq.Poll(idle).State)

	// cancelling a search in flight frees the query for the next request
	busy := requestCells(t, pq, q, 0, 0, 7, 7)
	pq.Update(1)
	require.True(t, pq.GetRequestStatus(busy).InProgress())
	pq.Cancel(busy)

	next := requestCells(t, pq, q, 7, 7, 0, 0)
	pq.Update(1000)
	res := pq.Poll(next)
	require.Equal(t, PathReady, res.State)
	assert.Equal(t, cellRef(t, q, 0, 0), res.Path[len(res.Path)-1])

	pq.Cancel(DT_PATHQ_INVALID)
	pq.Cancel(Ticket(12345))
}

func TestPathQueueRejectsSeparateIslands(t *testing.T) {
	pq, nav, q := newPathQueue(t, func(x, z int) bool { return x != 3 })
	islands := detour.NewDtIslandManager(nav, nil)
	islands.Build()
	assert.Equal(t, 2, islands.Count())
	pq.SetIslands(islands)

	ticket := requestCells(t, pq, q, 0, 0, 6, 6)
	// no update needed, the request fails on arrival
	res := pq.Poll(ticket)
	assert.Equal(t, PathFailed, res.State)
	assert.True(t, res.Status.Detail(detour.DT_NOT_FOUND))

	ticket = requestCells(t, pq, q, 0, 0, 2, 7)
	pq.Update(1000)
	assert.Equal(t, PathReady, pq.Poll(ticket).State)
}

func TestPathQueueIslandsFollowTheRequestFilter(t *testing.T) {
	// column x == 3 carries flag 0x2
	nav, status := detour.NewGridNavMesh(&detour.GridMeshParams{
		CellSize:   1,
		CellHeight: 0.2,
		TileCells:  8,
		TilesX:     1,
		TilesZ:     1,
		Flags: func(x, z int) uint16 {
			if x == 3 {
				return 0x2
			}
			return 0x1
		},
		WalkableHeight: 2,
		WalkableRadius: 0.3,
		WalkableClimb:  0.5,
	})
	require.True(t, status.Succeed(), status.String())
	q, status := detour.NewDtNavMeshQuery(nav, 2048)
	require.True(t, status.Succeed(), status.String())
	pq, err := NewPathQueue(nav, 256, 1024)
	require.NoError(t, err)

	strict := detour.NewDtQueryFilter()
	strict.SetExcludeFlags(0x2)
	islands := detour.NewDtIslandManager(nav, strict)
	islands.Build()
	require.Equal(t, 2, islands.Count())
	pq.SetIslands(islands)

	// the default filter crosses the flagged column
	ticket := requestCells(t, pq, q, 0, 0, 6, 6)
	pq.Update(1000)
	res := pq.Poll(ticket)
	require.Equal(t, PathReady, res.State, res.Status.String())
	assert.Equal(t, cellRef(t, q, 6, 6), res.Path[len(res.Path)-1])

	stricter := detour.NewDtQueryFilter()
	stricter.SetIncludeFlags(0x1)
	stricter.SetExcludeFlags(0x6)
	for _, filter := range []*detour.DtQueryFilter{strict, stricter} {
		ticket, err = pq.Request(cellRef(t, q, 0, 0), cellRef(t, q, 6, 6), cellCenter(0, 0), cellCenter(6, 6), filter)
		require.NoError(t, err)
		res = pq.Poll(ticket)
		assert.Equal(t, PathFailed, res.State)
		assert.True(t, res.Status.Detail(detour.DT_NOT_FOUND))
	}
}

func TestPathStateString(t *testing.T) {
	assert.Equal(t, "pending", PathPending.String())
	assert.Equal(t, "ready", PathReady.String())
	assert.Equal(t, "failed", PathFailed.String())
}
