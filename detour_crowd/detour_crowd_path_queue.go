package detour_crowd

import (
	"errors"

	"github.com/gorustyt/navrt/detour"
)

// Ticket identifies a path request handed out by PathQueue.Request.
type Ticket uint32

const (
	DT_PATHQ_INVALID Ticket = 0

	// Number of request slots in the queue.
	PATHQ_MAX_QUEUE = 8
	// Ticks a finished result stays readable before its slot is recycled.
	PATHQ_MAX_KEEP_ALIVE = 2
)

var ErrQueueFull = errors.New("path queue is full")

type PathState int

const (
	PathPending PathState = iota
	PathReady
	PathFailed
)

func (s PathState) String() string {
	switch s {
	case PathPending:
		return "pending"
	case PathReady:
		return "ready"
	case PathFailed:
		return "failed"
	}
	return "unknown"
}

// PathResult is the outcome of polling a ticket.
type PathResult struct {
	State  PathState
	Path   []detour.DtPolyRef
	Status detour.DtStatus
}

type pathQuery struct {
	ticket Ticket
	// Path find start and end location.
	startPos, endPos [3]float32
	startRef, endRef detour.DtPolyRef
	// Result.
	path []detour.DtPolyRef
	// State.
	status    detour.DtStatus
	keepAlive int
	filter    *detour.DtQueryFilter
}

// PathQueue runs up to PATHQ_MAX_QUEUE sliced searches on a private query object.
// Every Update spends its iteration budget on a single search, taking the active
// requests in turn.
type PathQueue struct {
	m_queue       [PATHQ_MAX_QUEUE]pathQuery
	m_nextHandle  Ticket
	m_maxPathSize int
	m_queueHead   int
	m_navquery    *detour.DtNavMeshQuery
	m_islands     *detour.DtIslandManager
}

func NewPathQueue(nav *detour.DtNavMesh, maxPathSize, maxSearchNodeCount int) (*PathQueue, error) {
	q, status := detour.NewDtNavMeshQuery(nav, maxSearchNodeCount)
	if status.Failed() {
		return nil, status.Err()
	}
	return &PathQueue{
		m_navquery:    q,
		m_maxPathSize: maxPathSize,
		m_nextHandle:  1,
	}, nil
}

func (d *PathQueue) GetNavQuery() *detour.DtNavMeshQuery { return d.m_navquery }

// SetIslands installs a connectivity labelling used to reject requests whose
// endpoints can never be joined. Only requests whose filter is covered by the
// labelling are checked. Nil disables the check.
func (d *PathQueue) SetIslands(m *detour.DtIslandManager) { d.m_islands = m }

// Update advances the next active search by at most maxIters node expansions and
// ages finished results.
func (d *PathQueue) Update(maxIters int) {
	// Age finished results first so that an unread slot is recycled on time.
	for i := range d.m_queue {
		q := &d.m_queue[i]
		if q.ticket == DT_PATHQ_INVALID || !(q.status.Succeed() || q.status.Failed()) {
			continue
		}
		// If the path result has not been read in few frames, free the slot.
		q.keepAlive++
		if q.keepAlive > PATHQ_MAX_KEEP_ALIVE {
			q.ticket = DT_PATHQ_INVALID
			q.status = 0
			q.path = q.path[:0]
		}
	}

	// The query object holds a single sliced search, so the head stays on a
	// request until it has finished.
	for i := 0; i < PATHQ_MAX_QUEUE; i++ {
		q := &d.m_queue[d.m_queueHead%PATHQ_MAX_QUEUE]
		if q.ticket == DT_PATHQ_INVALID || q.status.Succeed() || q.status.Failed() {
			d.m_queueHead++
			continue
		}

		// Handle query start.
		if q.status == 0 {
			q.status = d.m_navquery.InitSlicedFindPath(q.startRef, q.endRef, q.startPos[:], q.endPos[:], q.filter)
		}
		// Handle query in progress.
		if q.status.InProgress() {
			_, q.status = d.m_navquery.UpdateSlicedFindPath(maxIters)
		}
		if q.status.Succeed() {
			q.path, q.status = d.m_navquery.FinalizeSlicedFindPath(d.m_maxPathSize)
		} else if q.status.Failed() {
			// Release the query object for the next request.
			d.m_navquery.FinalizeSlicedFindPath(0)
		}
		if !q.status.InProgress() {
			d.m_queueHead++
		}
		return
	}
}

// Request reserves a slot for a path search. The search itself starts on a
// later Update.
func (d *PathQueue) Request(startRef, endRef detour.DtPolyRef, startPos, endPos []float32,
	filter *detour.DtQueryFilter) (Ticket, error) {
	// Find empty slot
	slot := -1
	for i := range d.m_queue {
		if d.m_queue[i].ticket == DT_PATHQ_INVALID {
			slot = i
			break
		}
	}
	// Could not find slot.
	if slot == -1 {
		return DT_PATHQ_INVALID, ErrQueueFull
	}

	ticket := d.m_nextHandle
	d.m_nextHandle++
	if d.m_nextHandle == DT_PATHQ_INVALID {
		d.m_nextHandle++
	}

	q := &d.m_queue[slot]
	q.ticket = ticket
	copy(q.startPos[:], startPos)
	q.startRef = startRef
	copy(q.endPos[:], endPos)
	q.endRef = endRef
	q.status = 0
	q.path = q.path[:0]
	q.filter = filter
	q.keepAlive = 0

	if d.m_islands != nil && d.m_islands.Covers(filter) && !d.m_islands.CheckPathExists(startRef, endRef) {
		q.status = detour.DT_FAILURE | detour.DT_NOT_FOUND
	}
	return ticket, nil
}

func (d *PathQueue) find(ticket Ticket) *pathQuery {
	if ticket == DT_PATHQ_INVALID {
		return nil
	}
	for i := range d.m_queue {
		if d.m_queue[i].ticket == ticket {
			return &d.m_queue[i]
		}
	}
	return nil
}

// GetRequestStatus returns the raw search status of a ticket without consuming it.
func (d *PathQueue) GetRequestStatus(ticket Ticket) detour.DtStatus {
	q := d.find(ticket)
	if q == nil {
		return detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	return q.status
}

// Poll reports the state of a ticket. Reading a finished result releases its slot.
func (d *PathQueue) Poll(ticket Ticket) PathResult {
	q := d.find(ticket)
	if q == nil {
		return PathResult{State: PathFailed, Status: detour.DT_FAILURE | detour.DT_INVALID_PARAM}
	}
	if q.status == 0 || q.status.InProgress() {
		return PathResult{State: PathPending, Status: q.status}
	}
	res := PathResult{Status: q.status}
	if q.status.Succeed() {
		res.State = PathReady
		res.Path = append([]detour.DtPolyRef(nil), q.path...)
	} else {
		res.State = PathFailed
	}
	// Free request for reuse.
	q.ticket = DT_PATHQ_INVALID
	q.status = 0
	return res
}

// Cancel drops a request. A search in flight on the query object is abandoned.
func (d *PathQueue) Cancel(ticket Ticket) {
	q := d.find(ticket)
	if q == nil {
		return
	}
	if q.status.InProgress() {
		d.m_navquery.FinalizeSlicedFindPath(0)
	}
	q.ticket = DT_PATHQ_INVALID
	q.status = 0
	q.path = q.path[:0]
}

// Pending returns the number of occupied slots.
func (d *PathQueue) Pending() int {
	n := 0
	for i := range d.m_queue {
		if d.m_queue[i].ticket != DT_PATHQ_INVALID {
			n++
		}
	}
	return n
}
