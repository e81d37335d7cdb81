package detour

import (
	"math"

	"github.com/gorustyt/navrt/common"
)

// / Vertex flags returned by DtNavMeshQuery::findStraightPath.
const (
	DT_STRAIGHTPATH_START              = 0x01 ///< The vertex is the start position in the path.
	DT_STRAIGHTPATH_END                = 0x02 ///< The vertex is the end position in the path.
	DT_STRAIGHTPATH_OFFMESH_CONNECTION = 0x04 ///< The vertex is the start of an off-mesh connection.
)

// / Options for DtNavMeshQuery::findStraightPath.
const (
	DT_STRAIGHTPATH_AREA_CROSSINGS = 0x01 ///< Add a vertex at every polygon edge crossing where area changes.
	DT_STRAIGHTPATH_ALL_CROSSINGS  = 0x02 ///< Add a vertex at every polygon edge crossing.
)

// / Options for DtNavMeshQuery::raycast
const (
	DT_RAYCAST_USE_COSTS = 0x01 ///< Raycast should calculate movement cost along the ray and fill RaycastHit::cost
)

// / Defines polygon filtering and traversal costs for navigation mesh query operations.
type DtQueryFilter struct {
	m_areaCost     [DT_MAX_AREAS]float32 ///< Cost per area type. (Used by default implementation.)
	m_includeFlags uint16                ///< Flags for polygons that can be visited. (Used by default implementation.)
	m_excludeFlags uint16                ///< Flags for polygons that should not be visited. (Used by default implementation.)
}

func NewDtQueryFilter() *DtQueryFilter {
	f := &DtQueryFilter{m_includeFlags: 0xffff}
	for i := range f.m_areaCost {
		f.m_areaCost[i] = 1.0
	}
	return f
}

// / Returns true if the polygon can be visited.  (I.e. Is traversable.)
func (f *DtQueryFilter) PassFilter(ref DtPolyRef, tile *DtMeshTile, poly *DtPoly) bool {
	return (poly.Flags&f.m_includeFlags) != 0 && (poly.Flags&f.m_excludeFlags) == 0
}

// / Returns cost to move from the beginning to the end of a line segment
// / that is fully contained within a polygon.
func (f *DtQueryFilter) GetCost(pa, pb []float32, curPoly *DtPoly) float32 {
	return common.Vdist(pa, pb) * f.m_areaCost[curPoly.GetArea()]
}

func (f *DtQueryFilter) GetAreaCost(i int) float32     { return f.m_areaCost[i] }
func (f *DtQueryFilter) SetAreaCost(i int, cost float32) { f.m_areaCost[i] = cost }
func (f *DtQueryFilter) GetIncludeFlags() uint16         { return f.m_includeFlags }
func (f *DtQueryFilter) SetIncludeFlags(flags uint16)    { f.m_includeFlags = flags }
func (f *DtQueryFilter) GetExcludeFlags() uint16         { return f.m_excludeFlags }
func (f *DtQueryFilter) SetExcludeFlags(flags uint16)    { f.m_excludeFlags = flags }

// / Provides custom polygon query behavior.
// / Used by DtNavMeshQuery::queryPolygons.
type DtPolyQuery interface {
	// / Called for each batch of unique polygons touched by the search area in DtNavMeshQuery::queryPolygons.
	// / This can be called multiple times for a single query.
	Process(tile *DtMeshTile, polys []*DtPoly, refs []DtPolyRef)
}

type dtCollectPolysQuery struct {
	polys      []DtPolyRef
	maxPolys   int
	overflow   bool
}

func (q *dtCollectPolysQuery) Process(tile *DtMeshTile, polys []*DtPoly, refs []DtPolyRef) {
	numLeft := q.maxPolys - len(q.polys)
	toCopy := len(refs)
	if toCopy > numLeft {
		q.overflow = true
		toCopy = numLeft
	}
	q.polys = append(q.polys, refs[:toCopy]...)
}

type dtFindNearestPolyQuery struct {
	query              *DtNavMeshQuery
	center             []float32
	nearestDistanceSqr float32
	nearestRef         DtPolyRef
	nearestPoint       [3]float32
	overPoly           bool
}

func (q *dtFindNearestPolyQuery) Process(tile *DtMeshTile, polys []*DtPoly, refs []DtPolyRef) {
	for _, ref := range refs {
		closestPtPoly, posOverPoly := q.query.m_nav.ClosestPointOnPoly(ref, q.center)

		// If a point is directly over a polygon and closer than
		// climb height, favor that instead of straight line nearest point.
		var diff [3]float32
		common.Vsub(diff[:], q.center, closestPtPoly[:])
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

		if d < q.nearestDistanceSqr {
			q.nearestPoint = closestPtPoly
			q.nearestDistanceSqr = d
			q.nearestRef = ref
			q.overPoly = posOverPoly
		}
	}
}

type dtQueryData struct {
	status           DtStatus
	lastBestNode     *DtNode
	lastBestNodeCost float32
	startRef, endRef DtPolyRef
	startPos, endPos [3]float32
	filter           *DtQueryFilter
}

// / Provides the ability to perform pathfinding related queries against
// / a navigation mesh.
// / A query object is not safe for concurrent use; give each goroutine its own.
type DtNavMeshQuery struct {
	m_nav          *DtNavMesh   ///< Pointer to navmesh data.
	m_query        dtQueryData  ///< Sliced query state.
	m_tinyNodePool *DtNodePool  ///< Pointer to small node pool.
	m_nodePool     *DtNodePool  ///< Pointer to node pool.
	m_openList     *DtNodeQueue ///< Pointer to open list queue.
}

// NewDtNavMeshQuery creates a query bound to nav with a search node pool of maxNodes.
func NewDtNavMeshQuery(nav *DtNavMesh, maxNodes int) (*DtNavMeshQuery, DtStatus) {
	if nav == nil || maxNodes <= 0 || maxNodes > (1<<DT_NODE_PARENT_BITS)-1 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}
	hashSize := int(common.NextPow2(uint32(maxNodes / 4)))
	if hashSize < 1 {
		hashSize = 1
	}
	q := &DtNavMeshQuery{
		m_nav:          nav,
		m_nodePool:     NewDtNodePool(maxNodes, hashSize),
		m_tinyNodePool: NewDtNodePool(64, 32),
		m_openList:     NewDtNodeQueue(maxNodes),
	}
	return q, DT_SUCCESS
}

// / Gets the navigation mesh the query object is using.
func (q *DtNavMeshQuery) GetAttachedNavMesh() *DtNavMesh { return q.m_nav }

// / Gets the node pool of the last search.
func (q *DtNavMeshQuery) GetNodePool() *DtNodePool { return q.m_nodePool }

// / Returns true if the polygon reference is valid and passes the filter restrictions.
func (q *DtNavMeshQuery) IsValidPolyRef(ref DtPolyRef, filter *DtQueryFilter) bool {
	tile, poly, status := q.m_nav.GetTileAndPolyByRef(ref)
	// If cannot get polygon, assume it does not exists and boundary is invalid.
	if status.Failed() {
		return false
	}
	// If cannot pass filter, assume flags has changed and boundary is invalid.
	return filter == nil || filter.PassFilter(ref, tile, poly)
}

// / Returns true if the polygon reference is in the closed list.
func (q *DtNavMeshQuery) IsInClosedList(ref DtPolyRef) bool {
	if q.m_nodePool == nil {
		return false
	}
	for _, n := range q.m_nodePool.FindNodes(ref, DT_MAX_STATES_PER_NODE) {
		if n.Flags&DT_NODE_CLOSED != 0 {
			return true
		}
	}
	return false
}

// / Finds the closest point on the specified polygon.
func (q *DtNavMeshQuery) ClosestPointOnPoly(ref DtPolyRef, pos []float32) (closest [3]float32, posOverPoly bool, status DtStatus) {
	if !q.m_nav.IsValidPolyRef(ref) || len(pos) < 3 || !common.Visfinite(pos) {
		return closest, false, DT_FAILURE | DT_INVALID_PARAM
	}
	closest, posOverPoly = q.m_nav.ClosestPointOnPoly(ref, pos)
	return closest, posOverPoly, DT_SUCCESS
}

// / Returns a point on the boundary closest to the source point if the source point is outside the
// / polygon's xz-bounds.
func (q *DtNavMeshQuery) ClosestPointOnPolyBoundary(ref DtPolyRef, pos []float32) (closest [3]float32, status DtStatus) {
	tile, poly, status := q.m_nav.GetTileAndPolyByRef(ref)
	if status.Failed() {
		return closest, DT_FAILURE | DT_INVALID_PARAM
	}
	if len(pos) < 3 || !common.Visfinite(pos) {
		return closest, DT_FAILURE | DT_INVALID_PARAM
	}

	// Collect vertices.
	var verts [DT_VERTS_PER_POLYGON * 3]float32
	var edged, edget [DT_VERTS_PER_POLYGON]float32
	nv := int(poly.VertCount)
	for i := 0; i < nv; i++ {
		copy(verts[i*3:], tile.vert(poly.Verts[i]))
	}

	inside := DtDistancePtPolyEdgesSqr(pos, verts[:], nv, edged[:], edget[:])
	if inside {
		// Point is inside the polygon, return the point.
		copy(closest[:], pos)
		return closest, DT_SUCCESS
	}

	// Point is outside the polygon, dtClamp to nearest edge.
	dmin := edged[0]
	imin := 0
	for i := 1; i < nv; i++ {
		if edged[i] < dmin {
			dmin = edged[i]
			imin = i
		}
	}
	va := verts[imin*3:]
	vb := verts[((imin+1)%nv)*3:]
	common.Vlerp(closest[:], va, vb, edget[imin])
	return closest, DT_SUCCESS
}

// / Gets the height of the polygon at the provided position using the height detail. (Most accurate.)
func (q *DtNavMeshQuery) GetPolyHeight(ref DtPolyRef, pos []float32) (float32, DtStatus) {
	tile, poly, status := q.m_nav.GetTileAndPolyByRef(ref)
	if status.Failed() {
		return 0, DT_FAILURE | DT_INVALID_PARAM
	}
	if len(pos) < 3 || !common.Visfinite2D(pos) {
		return 0, DT_FAILURE | DT_INVALID_PARAM
	}

	// We used to return success for offmesh connections, but the
	// getPolyHeight in DetourNavMesh does not do this, so special
	// case it here.
	if poly.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
		v0 := tile.vert(poly.Verts[0])
		v1 := tile.vert(poly.Verts[1])
		t, _ := DtDistancePtSegSqr2D(pos, v0, v1)
		return v0[1] + (v1[1]-v0[1])*t, DT_SUCCESS
	}

	if h, ok := q.m_nav.getPolyHeight(tile, q.m_nav.DecodePolyIdPoly(ref), pos); ok {
		return h, DT_SUCCESS
	}
	return 0, DT_FAILURE | DT_INVALID_PARAM
}

// / Finds the polygon nearest to the specified center point.
// / When nothing lies within the query box the status is DT_FAILURE|DT_NOT_FOUND.
func (q *DtNavMeshQuery) FindNearestPoly(center, halfExtents []float32, filter *DtQueryFilter) (nearestRef DtPolyRef, nearestPt [3]float32, isOverPoly bool, status DtStatus) {
	query := &dtFindNearestPolyQuery{
		query:              q,
		center:             center,
		nearestDistanceSqr: math.MaxFloat32,
	}
	status = q.QueryPolygons(center, halfExtents, filter, query)
	if status.Failed() {
		return 0, nearestPt, false, status
	}
	if query.nearestRef == 0 {
		copy(nearestPt[:], center)
		return 0, nearestPt, false, DT_FAILURE | DT_NOT_FOUND
	}
	return query.nearestRef, query.nearestPoint, query.overPoly, DT_SUCCESS
}

// / Queries polygons within a tile.
func (q *DtNavMeshQuery) queryPolygonsInTile(tile *DtMeshTile, qmin, qmax []float32, filter *DtQueryFilter, query DtPolyQuery) {
	const batchSize = 32
	polyRefs := make([]DtPolyRef, 0, batchSize)
	polys := make([]*DtPoly, 0, batchSize)
	flush := func() {
		if len(polyRefs) > 0 {
			query.Process(tile, polys, polyRefs)
			polyRefs = polyRefs[:0]
			polys = polys[:0]
		}
	}
	add := func(ref DtPolyRef, poly *DtPoly) {
		polyRefs = append(polyRefs, ref)
		polys = append(polys, poly)
		// If the batch is full, process it and reset.
		if len(polyRefs) == batchSize {
			flush()
		}
	}

	base := q.m_nav.GetPolyRefBase(tile)
	if len(tile.BvTree) > 0 {
		bmin, bmax := quantizeQueryBounds(tile, qmin, qmax)
		// Traverse tree
		for i := 0; i < len(tile.BvTree); {
			node := &tile.BvTree[i]
			overlap := DtOverlapQuantBounds(bmin[:], bmax[:], node.Bmin[:], node.Bmax[:])
			isLeafNode := node.I >= 0

			if isLeafNode && overlap {
				ref := base | DtPolyRef(node.I)
				if filter.PassFilter(ref, tile, &tile.Polys[node.I]) {
					add(ref, &tile.Polys[node.I])
				}
			}

			if overlap || isLeafNode {
				i++
			} else {
				escapeIndex := -node.I
				i += int(escapeIndex)
			}
		}
	} else {
		for i := range tile.Polys {
			p := &tile.Polys[i]
			// Do not return off-mesh connection polygons.
			if p.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
				continue
			}
			// Must pass filter
			ref := base | DtPolyRef(i)
			if !filter.PassFilter(ref, tile, p) {
				continue
			}
			// Calc polygon bounds.
			bmin, bmax := polyBounds(tile, p)
			if common.OverlapBounds(qmin, qmax, bmin[:], bmax[:]) {
				add(ref, p)
			}
		}
	}
	// Process the last polygons that didn't make a full batch.
	flush()
}

// / Finds polygons that overlap the search box and hands them to query in batches.
func (q *DtNavMeshQuery) QueryPolygons(center, halfExtents []float32, filter *DtQueryFilter, query DtPolyQuery) DtStatus {
	if len(center) < 3 || len(halfExtents) < 3 || !common.Visfinite(center) || !common.Visfinite(halfExtents) ||
		halfExtents[0] < 0 || halfExtents[1] < 0 || halfExtents[2] < 0 || filter == nil || query == nil {
		return DT_FAILURE | DT_INVALID_PARAM
	}

	var bmin, bmax [3]float32
	common.Vsub(bmin[:], center, halfExtents)
	common.Vadd(bmax[:], center, halfExtents)

	// Find tiles the query touches.
	minx, miny := q.m_nav.CalcTileLoc(bmin[:])
	maxx, maxy := q.m_nav.CalcTileLoc(bmax[:])

	for y := miny; y <= maxy; y++ {
		for x := minx; x <= maxx; x++ {
			for _, tile := range q.m_nav.GetTilesAt(x, y) {
				q.queryPolygonsInTile(tile, bmin[:], bmax[:], filter, query)
			}
		}
	}
	return DT_SUCCESS
}

// / Finds polygons that overlap the search box.
// / The status carries DT_BUFFER_TOO_SMALL when more than maxPolys polygons were found.
func (q *DtNavMeshQuery) QueryPolygonsCollect(center, halfExtents []float32, filter *DtQueryFilter, maxPolys int) ([]DtPolyRef, DtStatus) {
	if maxPolys < 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}
	collector := &dtCollectPolysQuery{maxPolys: maxPolys}
	status := q.QueryPolygons(center, halfExtents, filter, collector)
	if status.Failed() {
		return nil, status
	}
	if collector.overflow {
		return collector.polys, DT_SUCCESS | DT_BUFFER_TOO_SMALL
	}
	return collector.polys, DT_SUCCESS
}

// / Returns portal points between two polygons.
func (q *DtNavMeshQuery) getPortalPointsByRef(from, to DtPolyRef) (left, right [3]float32, fromType, toType uint8, status DtStatus) {
	fromTile, fromPoly, status := q.m_nav.GetTileAndPolyByRef(from)
	if status.Failed() {
		return left, right, 0, 0, DT_FAILURE | DT_INVALID_PARAM
	}
	fromType = fromPoly.GetType()

	toTile, toPoly, status := q.m_nav.GetTileAndPolyByRef(to)
	if status.Failed() {
		return left, right, 0, 0, DT_FAILURE | DT_INVALID_PARAM
	}
	toType = toPoly.GetType()

	left, right, status = q.getPortalPoints(from, fromPoly, fromTile, to, toPoly, toTile)
	return left, right, fromType, toType, status
}

// Returns portal points between two polygons.
func (q *DtNavMeshQuery) getPortalPoints(from DtPolyRef, fromPoly *DtPoly, fromTile *DtMeshTile,
	to DtPolyRef, toPoly *DtPoly, toTile *DtMeshTile) (left, right [3]float32, status DtStatus) {
	// Find the link that points to the 'to' polygon.
	var link *DtLink
	for i := fromPoly.FirstLink; i != DT_NULL_LINK; i = fromTile.Links[i].Next {
		if fromTile.Links[i].Ref == to {
			link = &fromTile.Links[i]
			break
		}
	}
	if link == nil {
		return left, right, DT_FAILURE | DT_INVALID_PARAM
	}

	// Handle off-mesh connections.
	if fromPoly.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
		// Find link that points to first vertex.
		for i := fromPoly.FirstLink; i != DT_NULL_LINK; i = fromTile.Links[i].Next {
			if fromTile.Links[i].Ref == to {
				v := fromTile.Links[i].Edge
				copy(left[:], fromTile.vert(fromPoly.Verts[v]))
				copy(right[:], fromTile.vert(fromPoly.Verts[v]))
				return left, right, DT_SUCCESS
			}
		}
		return left, right, DT_FAILURE | DT_INVALID_PARAM
	}

	if toPoly.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
		for i := toPoly.FirstLink; i != DT_NULL_LINK; i = toTile.Links[i].Next {
			if toTile.Links[i].Ref == from {
				v := toTile.Links[i].Edge
				copy(left[:], toTile.vert(toPoly.Verts[v]))
				copy(right[:], toTile.vert(toPoly.Verts[v]))
				return left, right, DT_SUCCESS
			}
		}
		return left, right, DT_FAILURE | DT_INVALID_PARAM
	}

	// Find portal vertices.
	v0 := fromPoly.Verts[link.Edge]
	v1 := fromPoly.Verts[(int(link.Edge)+1)%int(fromPoly.VertCount)]
	copy(left[:], fromTile.vert(v0))
	copy(right[:], fromTile.vert(v1))

	// If the link is at tile boundary, dtClamp the vertices to
	// the link width.
	if link.Side != 0xff {
		// Unpack portal limits.
		if link.Bmin != 0 || link.Bmax != 255 {
			const s = 1.0 / 255.0
			tmin := float32(link.Bmin) * s
			tmax := float32(link.Bmax) * s
			common.Vlerp(left[:], fromTile.vert(v0), fromTile.vert(v1), tmin)
			common.Vlerp(right[:], fromTile.vert(v0), fromTile.vert(v1), tmax)
		}
	}
	return left, right, DT_SUCCESS
}

// Returns edge mid point between two polygons.
func (q *DtNavMeshQuery) getEdgeMidPoint(from DtPolyRef, fromPoly *DtPoly, fromTile *DtMeshTile,
	to DtPolyRef, toPoly *DtPoly, toTile *DtMeshTile) (mid [3]float32, status DtStatus) {
	left, right, status := q.getPortalPoints(from, fromPoly, fromTile, to, toPoly, toTile)
	if status.Failed() {
		return mid, DT_FAILURE | DT_INVALID_PARAM
	}
	mid[0] = (left[0] + right[0]) * 0.5
	mid[1] = (left[1] + right[1]) * 0.5
	mid[2] = (left[2] + right[2]) * 0.5
	return mid, DT_SUCCESS
}

// / Gets the portal midpoint between two polygons given by reference.
func (q *DtNavMeshQuery) GetEdgeMidPoint(from, to DtPolyRef) ([3]float32, DtStatus) {
	left, right, _, _, status := q.getPortalPointsByRef(from, to)
	var mid [3]float32
	if status.Failed() {
		return mid, status
	}
	common.Vlerp(mid[:], left[:], right[:], 0.5)
	return mid, DT_SUCCESS
}

// expandNeighbour relaxes the edge bestNode -> neighbourRef of an A* search. It returns the
// heuristic of the neighbour, or a negative value when the node was not updated.
func (q *DtNavMeshQuery) expandNeighbour(bestNode *DtNode, bestRef DtPolyRef, bestTile *DtMeshTile, bestPoly *DtPoly,
	link *DtLink, endRef DtPolyRef, endPos []float32, filter *DtQueryFilter) (heuristic float32, outOfNodes bool) {
	neighbourRef := link.Ref
	neighbourTile, neighbourPoly := q.m_nav.GetTileAndPolyByRefUnsafe(neighbourRef)

	if !filter.PassFilter(neighbourRef, neighbourTile, neighbourPoly) {
		return -1, false
	}

	// deal explicitly with crossing tile boundaries
	var crossSide uint8
	if link.Side != 0xff {
		crossSide = link.Side >> 1
	}

	// get the node
	neighbourNode := q.m_nodePool.GetNode(neighbourRef, crossSide)
	if neighbourNode == nil {
		return -1, true
	}

	// If the node is visited the first time, calculate node position.
	if neighbourNode.Flags == 0 {
		neighbourNode.Pos, _ = q.getEdgeMidPoint(bestRef, bestPoly, bestTile, neighbourRef, neighbourPoly, neighbourTile)
	}

	// Calculate cost and heuristic.
	var cost float32
	// Special case for last node.
	if neighbourRef == endRef {
		// Cost
		curCost := filter.GetCost(bestNode.Pos[:], neighbourNode.Pos[:], bestPoly)
		endCost := filter.GetCost(neighbourNode.Pos[:], endPos, neighbourPoly)
		cost = bestNode.Cost + curCost + endCost
		heuristic = 0
	} else {
		// Cost
		curCost := filter.GetCost(bestNode.Pos[:], neighbourNode.Pos[:], bestPoly)
		cost = bestNode.Cost + curCost
		heuristic = common.Vdist(neighbourNode.Pos[:], endPos) * H_SCALE
	}

	total := cost + heuristic

	// The node is already in open list and the new result is worse, skip.
	if (neighbourNode.Flags&DT_NODE_OPEN) != 0 && total >= neighbourNode.Total {
		return -1, false
	}
	// The node is already visited and process, and the new result is worse, skip.
	if (neighbourNode.Flags&DT_NODE_CLOSED) != 0 && total >= neighbourNode.Total {
		return -1, false
	}

	// Add or update the node.
	neighbourNode.Pidx = q.m_nodePool.GetNodeIdx(bestNode)
	neighbourNode.Id = neighbourRef
	neighbourNode.Flags = neighbourNode.Flags &^ (DT_NODE_CLOSED | DT_NODE_PARENT_DETACHED)
	neighbourNode.Cost = cost
	neighbourNode.Total = total

	if (neighbourNode.Flags & DT_NODE_OPEN) != 0 {
		// Already in open, update node location.
		q.m_openList.Modify(neighbourNode)
	} else {
		// Put the node in open list.
		neighbourNode.Flags |= DT_NODE_OPEN
		q.m_openList.Push(neighbourNode)
	}

	// Update nearest node to target so far.
	if heuristic < q.m_query.lastBestNodeCost {
		q.m_query.lastBestNodeCost = heuristic
		q.m_query.lastBestNode = neighbourNode
	}
	return heuristic, false
}

// / Finds a path from the start polygon to the end polygon.
// / Running out of nodes returns the path to the node closest to the goal flagged
// / DT_PARTIAL_RESULT|DT_OUT_OF_NODES. An unreachable goal is DT_FAILURE|DT_NOT_FOUND.
func (q *DtNavMeshQuery) FindPath(startRef, endRef DtPolyRef, startPos, endPos []float32, filter *DtQueryFilter, maxPath int) ([]DtPolyRef, DtStatus) {
	// Validate input
	if !q.m_nav.IsValidPolyRef(startRef) || !q.m_nav.IsValidPolyRef(endRef) ||
		len(startPos) < 3 || len(endPos) < 3 || !common.Visfinite(startPos) || !common.Visfinite(endPos) ||
		filter == nil || maxPath <= 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}

	if startRef == endRef {
		return []DtPolyRef{startRef}, DT_SUCCESS
	}

	q.m_nodePool.Clear()
	q.m_openList.Clear()

	startNode := q.m_nodePool.GetNode(startRef, 0)
	copy(startNode.Pos[:], startPos)
	startNode.Pidx = 0
	startNode.Cost = 0
	startNode.Total = common.Vdist(startPos, endPos) * H_SCALE
	startNode.Id = startRef
	startNode.Flags = DT_NODE_OPEN
	q.m_openList.Push(startNode)

	q.m_query.lastBestNode = startNode
	q.m_query.lastBestNodeCost = startNode.Total

	outOfNodes := false
	for !q.m_openList.Empty() {
		// Remove node from open list and put it in closed list.
		bestNode := q.m_openList.Pop()
		bestNode.Flags &^= DT_NODE_OPEN
		bestNode.Flags |= DT_NODE_CLOSED

		// Reached the goal, stop searching.
		if bestNode.Id == endRef {
			q.m_query.lastBestNode = bestNode
			break
		}

		// Get current poly and tile.
		// The API input has been checked already, skip checking internal data.
		bestRef := bestNode.Id
		bestTile, bestPoly := q.m_nav.GetTileAndPolyByRefUnsafe(bestRef)

		// Get parent poly and tile.
		var parentRef DtPolyRef
		if bestNode.Pidx != 0 {
			parentRef = q.m_nodePool.GetNodeAtIdx(bestNode.Pidx).Id
		}

		for i := bestPoly.FirstLink; i != DT_NULL_LINK; i = bestTile.Links[i].Next {
			link := &bestTile.Links[i]
			// Skip invalid ids and do not expand back to where we came from.
			if link.Ref == 0 || link.Ref == parentRef {
				continue
			}
			if _, oon := q.expandNeighbour(bestNode, bestRef, bestTile, bestPoly, link, endRef, endPos, filter); oon {
				outOfNodes = true
			}
		}
	}

	lastBestNode := q.m_query.lastBestNode
	q.m_query = dtQueryData{}
	return q.finishPath(lastBestNode, endRef, outOfNodes, maxPath)
}

// finishPath converts the search result into a path and status.
func (q *DtNavMeshQuery) finishPath(lastBestNode *DtNode, endRef DtPolyRef, outOfNodes bool, maxPath int) ([]DtPolyRef, DtStatus) {
	path, status := q.getPathToNode(lastBestNode, maxPath)
	if lastBestNode.Id != endRef {
		if !outOfNodes {
			// The whole reachable set was searched without reaching the goal.
			return path, DT_FAILURE | DT_NOT_FOUND
		}
		status |= DT_PARTIAL_RESULT
	}
	if outOfNodes {
		status |= DT_OUT_OF_NODES
	}
	return path, status
}

// Gets the path leading to the specified end node.
func (q *DtNavMeshQuery) getPathToNode(endNode *DtNode, maxPath int) ([]DtPolyRef, DtStatus) {
	// Find the length of the entire path.
	curNode := endNode
	length := 0
	for curNode != nil {
		length++
		curNode = q.m_nodePool.GetNodeAtIdx(curNode.Pidx)
	}

	// If the path cannot be fully stored then advance to the last node we will be able to store.
	curNode = endNode
	writeCount := length
	for ; writeCount > maxPath; writeCount-- {
		curNode = q.m_nodePool.GetNodeAtIdx(curNode.Pidx)
	}

	// Write path
	path := make([]DtPolyRef, writeCount)
	for i := writeCount - 1; i >= 0; i-- {
		path[i] = curNode.Id
		curNode = q.m_nodePool.GetNodeAtIdx(curNode.Pidx)
	}

	if length > maxPath {
		return path, DT_SUCCESS | DT_BUFFER_TOO_SMALL
	}
	return path, DT_SUCCESS
}

// / Intializes a sliced path query.
func (q *DtNavMeshQuery) InitSlicedFindPath(startRef, endRef DtPolyRef, startPos, endPos []float32, filter *DtQueryFilter) DtStatus {
	// Init path state.
	q.m_query = dtQueryData{}
	q.m_query.status = DT_FAILURE
	q.m_query.startRef = startRef
	q.m_query.endRef = endRef
	if len(startPos) >= 3 {
		copy(q.m_query.startPos[:], startPos)
	}
	if len(endPos) >= 3 {
		copy(q.m_query.endPos[:], endPos)
	}
	q.m_query.filter = filter

	// Validate input
	if !q.m_nav.IsValidPolyRef(startRef) || !q.m_nav.IsValidPolyRef(endRef) ||
		len(startPos) < 3 || len(endPos) < 3 || !common.Visfinite(startPos) || !common.Visfinite(endPos) || filter == nil {
		q.m_query.status = DT_FAILURE | DT_INVALID_PARAM
		return q.m_query.status
	}

	if startRef == endRef {
		q.m_query.status = DT_SUCCESS
		return q.m_query.status
	}

	q.m_nodePool.Clear()
	q.m_openList.Clear()

	startNode := q.m_nodePool.GetNode(startRef, 0)
	copy(startNode.Pos[:], startPos)
	startNode.Pidx = 0
	startNode.Cost = 0
	startNode.Total = common.Vdist(startPos, endPos) * H_SCALE
	startNode.Id = startRef
	startNode.Flags = DT_NODE_OPEN
	q.m_openList.Push(startNode)

	q.m_query.status = DT_IN_PROGRESS
	q.m_query.lastBestNode = startNode
	q.m_query.lastBestNodeCost = startNode.Total
	return q.m_query.status
}

// / Updates an in-progress sliced path query.
// / A start or end polygon that disappeared since the last call fails the query with DT_INVALID_PARAM.
func (q *DtNavMeshQuery) UpdateSlicedFindPath(maxIter int) (doneIters int, status DtStatus) {
	if !q.m_query.status.InProgress() {
		return 0, q.m_query.status
	}

	// Make sure the request is still valid.
	if !q.m_nav.IsValidPolyRef(q.m_query.startRef) || !q.m_nav.IsValidPolyRef(q.m_query.endRef) {
		q.m_query.status = DT_FAILURE | DT_INVALID_PARAM
		return 0, q.m_query.status
	}

	iter := 0
	for iter < maxIter && !q.m_openList.Empty() {
		iter++

		// Remove node from open list and put it in closed list.
		bestNode := q.m_openList.Pop()
		bestNode.Flags &^= DT_NODE_OPEN
		bestNode.Flags |= DT_NODE_CLOSED

		// Reached the goal, stop searching.
		if bestNode.Id == q.m_query.endRef {
			q.m_query.lastBestNode = bestNode
			details := q.m_query.status & DT_STATUS_DETAIL_MASK
			q.m_query.status = DT_SUCCESS | details
			return iter, q.m_query.status
		}

		// Get current poly and tile.
		// The API input has been checked already, skip checking internal
		// data.
		bestRef := bestNode.Id
		bestTile, bestPoly, st := q.m_nav.GetTileAndPolyByRef(bestRef)
		if st.Failed() {
			// The polygon has disappeared during the sliced query, fail.
			q.m_query.status = DT_FAILURE | DT_INVALID_PARAM
			return iter, q.m_query.status
		}

		// Get parent and grand parent poly and tile.
		var parentRef DtPolyRef
		if bestNode.Pidx != 0 {
			parentRef = q.m_nodePool.GetNodeAtIdx(bestNode.Pidx).Id
		}
		if parentRef != 0 && !q.m_nav.IsValidPolyRef(parentRef) {
			// The polygon has disappeared during the sliced query, fail.
			q.m_query.status = DT_FAILURE | DT_INVALID_PARAM
			return iter, q.m_query.status
		}

		for i := bestPoly.FirstLink; i != DT_NULL_LINK; i = bestTile.Links[i].Next {
			link := &bestTile.Links[i]
			// Skip invalid ids and do not expand back to where we came from.
			if link.Ref == 0 || link.Ref == parentRef {
				continue
			}
			if _, oon := q.expandNeighbour(bestNode, bestRef, bestTile, bestPoly, link,
				q.m_query.endRef, q.m_query.endPos[:], q.m_query.filter); oon {
				q.m_query.status |= DT_OUT_OF_NODES
			}
		}
	}

	// Exhausted all nodes, but could not find path.
	if q.m_openList.Empty() {
		details := q.m_query.status & DT_STATUS_DETAIL_MASK
		q.m_query.status = DT_SUCCESS | details
	}
	return iter, q.m_query.status
}

// / Finalizes and returns the results of a sliced path query.
func (q *DtNavMeshQuery) FinalizeSlicedFindPath(maxPath int) ([]DtPolyRef, DtStatus) {
	defer func() { q.m_query = dtQueryData{} }()
	if maxPath <= 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}
	if q.m_query.status.Failed() {
		return nil, q.m_query.status
	}
	if q.m_query.startRef == q.m_query.endRef {
		// Special case: the search starts and ends at same poly.
		return []DtPolyRef{q.m_query.startRef}, DT_SUCCESS
	}
	if q.m_query.lastBestNode == nil {
		return nil, DT_FAILURE
	}
	outOfNodes := q.m_query.status.Detail(DT_OUT_OF_NODES)
	if q.m_query.status.InProgress() && q.m_query.lastBestNode.Id != q.m_query.endRef {
		// Finalized early, the best node so far is a partial answer.
		path, status := q.getPathToNode(q.m_query.lastBestNode, maxPath)
		return path, status | DT_PARTIAL_RESULT
	}
	return q.finishPath(q.m_query.lastBestNode, q.m_query.endRef, outOfNodes, maxPath)
}

// / Finalizes and returns the results of an incomplete sliced path query, returning the path to the furthest
// / polygon on the existing path that was visited during the search.
func (q *DtNavMeshQuery) FinalizeSlicedFindPathPartial(existing []DtPolyRef, maxPath int) ([]DtPolyRef, DtStatus) {
	defer func() { q.m_query = dtQueryData{} }()
	if len(existing) == 0 || maxPath <= 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}
	if q.m_query.status.Failed() {
		return nil, q.m_query.status
	}
	if q.m_query.startRef == q.m_query.endRef {
		// Special case: the search starts and ends at same poly.
		return []DtPolyRef{q.m_query.startRef}, DT_SUCCESS
	}

	// Find furthest existing node that was visited.
	var node *DtNode
	for i := len(existing) - 1; i >= 0; i-- {
		nodes := q.m_nodePool.FindNodes(existing[i], 1)
		if len(nodes) > 0 {
			node = nodes[0]
			break
		}
	}

	var status DtStatus
	if node == nil {
		status |= DT_PARTIAL_RESULT
		node = q.m_query.lastBestNode
	}
	if node == nil {
		return nil, DT_FAILURE
	}
	if node.Id != q.m_query.endRef {
		status |= DT_PARTIAL_RESULT
	}
	path, st := q.getPathToNode(node, maxPath)
	details := (q.m_query.status | status | st) & DT_STATUS_DETAIL_MASK
	return path, DT_SUCCESS | details
}

// / Gets the current status of the sliced query.
func (q *DtNavMeshQuery) SlicedStatus() DtStatus { return q.m_query.status }
