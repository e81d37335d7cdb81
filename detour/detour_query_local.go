package detour

import (
	"github.com/gorustyt/navrt/common"
)

// DtPolyResult is one polygon reached by a Dijkstra style local search.
type DtPolyResult struct {
	Ref    DtPolyRef
	Parent DtPolyRef
	Cost   float32
}

// / Finds the polygons along the navigation graph that touch the specified circle.
// / The results are ordered from least to highest cost to reach the polygon.
func (q *DtNavMeshQuery) FindPolysAroundCircle(startRef DtPolyRef, centerPos []float32, radius float32,
	filter *DtQueryFilter, maxResult int) ([]DtPolyResult, DtStatus) {
	// Validate input
	if !q.m_nav.IsValidPolyRef(startRef) || len(centerPos) < 3 || !common.Visfinite(centerPos) ||
		radius < 0 || !common.IsFinite(radius) || filter == nil || maxResult < 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}

	radiusSqr := common.Sqr(radius)
	return q.dijkstra(startRef, centerPos, filter, maxResult, func(va, vb []float32) bool {
		// If the circle is not touching the next polygon, skip it.
		_, distSqr := DtDistancePtSegSqr2D(centerPos, va, vb)
		return distSqr <= radiusSqr
	})
}

// / Finds the polygons along the naviation graph that touch the specified convex polygon.
// / The results are ordered from least to highest cost.
func (q *DtNavMeshQuery) FindPolysAroundShape(startRef DtPolyRef, verts []float32, nverts int,
	filter *DtQueryFilter, maxResult int) ([]DtPolyResult, DtStatus) {
	// Validate input
	if !q.m_nav.IsValidPolyRef(startRef) || nverts < 3 || len(verts) < nverts*3 || filter == nil || maxResult < 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}

	var centerPos [3]float32
	for i := 0; i < nverts; i++ {
		common.Vadd(centerPos[:], centerPos[:], verts[i*3:])
	}
	common.Vscale(centerPos[:], centerPos[:], 1.0/float32(nverts))

	return q.dijkstra(startRef, centerPos[:], filter, maxResult, func(va, vb []float32) bool {
		// If the poly is not touching the edge to the next polygon, skip the connection it.
		tmin, tmax, _, _, ok := DtIntersectSegmentPoly2D(va, vb, verts, nverts)
		if !ok {
			return false
		}
		return tmin <= 1.0 && tmax >= 0.0
	})
}

// dijkstra expands from startRef across the portals accepted by touches, collecting
// every visited polygon with its parent and the cost to reach it.
func (q *DtNavMeshQuery) dijkstra(startRef DtPolyRef, centerPos []float32, filter *DtQueryFilter, maxResult int,
	touches func(va, vb []float32) bool) ([]DtPolyResult, DtStatus) {
	q.m_nodePool.Clear()
	q.m_openList.Clear()

	startNode := q.m_nodePool.GetNode(startRef, 0)
	copy(startNode.Pos[:], centerPos)
	startNode.Pidx = 0
	startNode.Cost = 0
	startNode.Total = 0
	startNode.Id = startRef
	startNode.Flags = DT_NODE_OPEN
	q.m_openList.Push(startNode)

	status := DT_SUCCESS
	var results []DtPolyResult

	for !q.m_openList.Empty() {
		bestNode := q.m_openList.Pop()
		bestNode.Flags &^= DT_NODE_OPEN
		bestNode.Flags |= DT_NODE_CLOSED

		// Get poly and tile.
		// The API input has been checked already, skip checking internal data.
		bestRef := bestNode.Id
		bestTile, bestPoly := q.m_nav.GetTileAndPolyByRefUnsafe(bestRef)

		// Get parent poly and tile.
		var parentRef DtPolyRef
		if bestNode.Pidx != 0 {
			parentRef = q.m_nodePool.GetNodeAtIdx(bestNode.Pidx).Id
		}

		if len(results) < maxResult {
			results = append(results, DtPolyResult{Ref: bestRef, Parent: parentRef, Cost: bestNode.Total})
		} else {
			status |= DT_BUFFER_TOO_SMALL
		}

		for i := bestPoly.FirstLink; i != DT_NULL_LINK; i = bestTile.Links[i].Next {
			link := &bestTile.Links[i]
			neighbourRef := link.Ref
			// Skip invalid neighbours and do not follow back to parent.
			if neighbourRef == 0 || neighbourRef == parentRef {
				continue
			}

			// Expand to neighbour
			neighbourTile, neighbourPoly := q.m_nav.GetTileAndPolyByRefUnsafe(neighbourRef)

			// Do not advance if the polygon is excluded by the filter.
			if !filter.PassFilter(neighbourRef, neighbourTile, neighbourPoly) {
				continue
			}

			// Find edge and calc distance to the edge.
			va, vb, st := q.getPortalPoints(bestRef, bestPoly, bestTile, neighbourRef, neighbourPoly, neighbourTile)
			if st.Failed() {
				continue
			}

			if !touches(va[:], vb[:]) {
				continue
			}

			neighbourNode := q.m_nodePool.GetNode(neighbourRef, 0)
			if neighbourNode == nil {
				status |= DT_OUT_OF_NODES
				continue
			}

			if neighbourNode.Flags&DT_NODE_CLOSED != 0 {
				continue
			}

			// Cost
			if neighbourNode.Flags == 0 {
				common.Vlerp(neighbourNode.Pos[:], va[:], vb[:], 0.5)
			}

			cost := filter.GetCost(bestNode.Pos[:], neighbourNode.Pos[:], bestPoly)

			total := bestNode.Total + cost

			// The node is already in open list and the new result is worse, skip.
			if (neighbourNode.Flags&DT_NODE_OPEN) != 0 && total >= neighbourNode.Total {
				continue
			}

			neighbourNode.Id = neighbourRef
			neighbourNode.Pidx = q.m_nodePool.GetNodeIdx(bestNode)
			neighbourNode.Total = total

			if neighbourNode.Flags&DT_NODE_OPEN != 0 {
				q.m_openList.Modify(neighbourNode)
			} else {
				neighbourNode.Flags = DT_NODE_OPEN
				q.m_openList.Push(neighbourNode)
			}
		}
	}
	return results, status
}

// / Finds the non-overlapping navigation polygons in the local neighbourhood around the center position.
// / The search is a breadth first walk limited to radius that skips polygons overlapping any
// / polygon already accepted.
func (q *DtNavMeshQuery) FindLocalNeighbourhood(startRef DtPolyRef, centerPos []float32, radius float32,
	filter *DtQueryFilter, maxResult int) ([]DtPolyResult, DtStatus) {
	// Validate input
	if !q.m_nav.IsValidPolyRef(startRef) || len(centerPos) < 3 || !common.Visfinite(centerPos) ||
		radius < 0 || !common.IsFinite(radius) || filter == nil || maxResult < 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}

	const MAX_STACK = 48
	stack := make([]*DtNode, 0, MAX_STACK)

	q.m_tinyNodePool.Clear()

	startNode := q.m_tinyNodePool.GetNode(startRef, 0)
	startNode.Pidx = 0
	startNode.Id = startRef
	startNode.Flags = DT_NODE_CLOSED
	stack = append(stack, startNode)

	radiusSqr := common.Sqr(radius)

	var pa, pb [DT_VERTS_PER_POLYGON * 3]float32

	status := DT_SUCCESS

	results := make([]DtPolyResult, 0, maxResult)
	if maxResult > 0 {
		results = append(results, DtPolyResult{Ref: startNode.Id})
	} else {
		status |= DT_BUFFER_TOO_SMALL
	}

	for len(stack) > 0 {
		// Pop front.
		curNode := stack[0]
		stack = stack[1:]

		// Get poly and tile.
		// The API input has been checked already, skip checking internal data.
		curRef := curNode.Id
		curTile, curPoly := q.m_nav.GetTileAndPolyByRefUnsafe(curRef)

		for i := curPoly.FirstLink; i != DT_NULL_LINK; i = curTile.Links[i].Next {
			link := &curTile.Links[i]
			neighbourRef := link.Ref
			// Skip invalid neighbours.
			if neighbourRef == 0 {
				continue
			}

			// Skip if cannot alloca more nodes.
			neighbourNode := q.m_tinyNodePool.GetNode(neighbourRef, 0)
			if neighbourNode == nil {
				continue
			}
			// Skip visited.
			if neighbourNode.Flags&DT_NODE_CLOSED != 0 {
				continue
			}

			// Expand to neighbour
			neighbourTile, neighbourPoly := q.m_nav.GetTileAndPolyByRefUnsafe(neighbourRef)

			// Skip off-mesh connections.
			if neighbourPoly.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
				continue
			}

			// Do not advance if the polygon is excluded by the filter.
			if !filter.PassFilter(neighbourRef, neighbourTile, neighbourPoly) {
				continue
			}

			// Find edge and calc distance to the edge.
			va, vb, st := q.getPortalPoints(curRef, curPoly, curTile, neighbourRef, neighbourPoly, neighbourTile)
			if st.Failed() {
				continue
			}

			// If the circle is not touching the next polygon, skip it.
			if _, distSqr := DtDistancePtSegSqr2D(centerPos, va[:], vb[:]); distSqr > radiusSqr {
				continue
			}

			// Mark node visited, this is done before the overlap test so that
			// we will not visit the poly again if the test fails.
			neighbourNode.Flags |= DT_NODE_CLOSED
			neighbourNode.Pidx = q.m_tinyNodePool.GetNodeIdx(curNode)

			// Check that the polygon does not collide with existing polygons.

			// Collect vertices of the neighbour poly.
			npa := int(neighbourPoly.VertCount)
			for k := 0; k < npa; k++ {
				copy(pa[k*3:], neighbourTile.vert(neighbourPoly.Verts[k]))
			}

			overlap := false
			for j := range results {
				pastRef := results[j].Ref

				// Connected polys do not overlap.
				connected := false
				for k := curPoly.FirstLink; k != DT_NULL_LINK; k = curTile.Links[k].Next {
					if curTile.Links[k].Ref == pastRef {
						connected = true
						break
					}
				}
				if connected {
					continue
				}

				// Potentially overlapping.
				pastTile, pastPoly := q.m_nav.GetTileAndPolyByRefUnsafe(pastRef)

				// Get vertices and test overlap
				npb := int(pastPoly.VertCount)
				for k := 0; k < npb; k++ {
					copy(pb[k*3:], pastTile.vert(pastPoly.Verts[k]))
				}

				if DtOverlapPolyPoly2D(pa[:], npa, pb[:], npb) {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}

			// This poly is fine, store and advance to the poly.
			if len(results) < maxResult {
				results = append(results, DtPolyResult{Ref: neighbourRef, Parent: curRef})
			} else {
				status |= DT_BUFFER_TOO_SMALL
			}

			if len(stack) < MAX_STACK {
				stack = append(stack, neighbourNode)
			}
		}
	}
	return results, status
}

type dtSegInterval struct {
	ref        DtPolyRef
	tmin, tmax int16
}

func insertInterval(ints []dtSegInterval, maxInts int, tmin, tmax int16, ref DtPolyRef) []dtSegInterval {
	if len(ints)+1 > maxInts {
		return ints
	}
	// Find insertion point.
	idx := 0
	for idx < len(ints) {
		if tmax <= ints[idx].tmin {
			break
		}
		idx++
	}
	// Move current results.
	ints = append(ints, dtSegInterval{})
	copy(ints[idx+1:], ints[idx:len(ints)-1])
	// Store
	ints[idx] = dtSegInterval{ref: ref, tmin: tmin, tmax: tmax}
	return ints
}

// DtWallSegments holds the result of DtNavMeshQuery.GetPolyWallSegments.
// Verts stores six floats per segment: start xyz followed by end xyz.
// Refs holds the neighbour across each segment, 0 for walls.
type DtWallSegments struct {
	Verts []float32
	Refs  []DtPolyRef
}

func (s *DtWallSegments) Len() int { return len(s.Refs) }

// Segment returns the start and end points of segment i.
func (s *DtWallSegments) Segment(i int) (a, b []float32) {
	return s.Verts[i*6 : i*6+3], s.Verts[i*6+3 : i*6+6]
}

// / Returns the segments for the specified polygon, optionally including portals.
// / With storePortals the edges that lead to passable neighbours are also returned
// / carrying the neighbour reference.
func (q *DtNavMeshQuery) GetPolyWallSegments(ref DtPolyRef, filter *DtQueryFilter, maxSegments int, storePortals bool) (*DtWallSegments, DtStatus) {
	out := &DtWallSegments{}
	tile, poly, status := q.m_nav.GetTileAndPolyByRef(ref)
	if status.Failed() {
		return out, DT_FAILURE | DT_INVALID_PARAM
	}
	if filter == nil || maxSegments < 0 {
		return out, DT_FAILURE | DT_INVALID_PARAM
	}

	const MAX_INTERVAL = 16
	ints := make([]dtSegInterval, 0, MAX_INTERVAL)

	status = DT_SUCCESS
	push := func(a, b []float32, nref DtPolyRef) {
		if out.Len() < maxSegments {
			out.Verts = append(out.Verts, a[0], a[1], a[2], b[0], b[1], b[2])
			out.Refs = append(out.Refs, nref)
		} else {
			status |= DT_BUFFER_TOO_SMALL
		}
	}

	nv := int(poly.VertCount)
	for i, j := 0, nv-1; i < nv; j, i = i, i+1 {
		// Skip non-solid edges.
		ints = ints[:0]
		if poly.Neis[j]&DT_EXT_LINK != 0 {
			// Tile border.
			for k := poly.FirstLink; k != DT_NULL_LINK; k = tile.Links[k].Next {
				link := &tile.Links[k]
				if int(link.Edge) == j {
					if link.Ref != 0 {
						neiTile, neiPoly := q.m_nav.GetTileAndPolyByRefUnsafe(link.Ref)
						if filter.PassFilter(link.Ref, neiTile, neiPoly) {
							ints = insertInterval(ints, MAX_INTERVAL, int16(link.Bmin), int16(link.Bmax), link.Ref)
						}
					}
				}
			}
		} else {
			// Internal edge
			var neiRef DtPolyRef
			if poly.Neis[j] != 0 {
				idx := uint32(poly.Neis[j] - 1)
				neiRef = q.m_nav.GetPolyRefBase(tile) | DtPolyRef(idx)
				if !filter.PassFilter(neiRef, tile, &tile.Polys[idx]) {
					neiRef = 0
				}
			}

			// If the edge leads to another polygon and portals are not stored, skip.
			if neiRef != 0 && !storePortals {
				continue
			}

			vj := tile.vert(poly.Verts[j])
			vi := tile.vert(poly.Verts[i])
			push(vj, vi, neiRef)
			continue
		}

		// Add sentinels
		ints = insertInterval(ints, MAX_INTERVAL, -1, 0, 0)
		ints = insertInterval(ints, MAX_INTERVAL, 255, 256, 0)

		// Store segments.
		vj := tile.vert(poly.Verts[j])
		vi := tile.vert(poly.Verts[i])
		for k := 1; k < len(ints); k++ {
			// Portal segment.
			if storePortals && ints[k].ref != 0 {
				tmin := float32(ints[k].tmin) / 255.0
				tmax := float32(ints[k].tmax) / 255.0
				var a, b [3]float32
				common.Vlerp(a[:], vj, vi, tmin)
				common.Vlerp(b[:], vj, vi, tmax)
				push(a[:], b[:], ints[k].ref)
			}

			// Wall segment.
			imin := ints[k-1].tmax
			imax := ints[k].tmin
			if imin != imax {
				tmin := float32(imin) / 255.0
				tmax := float32(imax) / 255.0
				var a, b [3]float32
				common.Vlerp(a[:], vj, vi, tmin)
				common.Vlerp(b[:], vj, vi, tmax)
				push(a[:], b[:], 0)
			}
		}
	}
	return out, status
}

// / Finds the distance from the specified position to the nearest polygon wall.
// / hitPos is the nearest wall point and hitNormal points from the wall toward centerPos.
// / When no wall lies within maxRadius the distance is maxRadius.
func (q *DtNavMeshQuery) FindDistanceToWall(startRef DtPolyRef, centerPos []float32, maxRadius float32,
	filter *DtQueryFilter) (hitDist float32, hitPos, hitNormal [3]float32, status DtStatus) {
	// Validate input
	if !q.m_nav.IsValidPolyRef(startRef) || len(centerPos) < 3 || !common.Visfinite(centerPos) ||
		maxRadius < 0 || !common.IsFinite(maxRadius) || filter == nil {
		return 0, hitPos, hitNormal, DT_FAILURE | DT_INVALID_PARAM
	}

	q.m_nodePool.Clear()
	q.m_openList.Clear()

	startNode := q.m_nodePool.GetNode(startRef, 0)
	copy(startNode.Pos[:], centerPos)
	startNode.Pidx = 0
	startNode.Cost = 0
	startNode.Total = 0
	startNode.Id = startRef
	startNode.Flags = DT_NODE_OPEN
	q.m_openList.Push(startNode)

	radiusSqr := common.Sqr(maxRadius)

	status = DT_SUCCESS

	for !q.m_openList.Empty() {
		bestNode := q.m_openList.Pop()
		bestNode.Flags &^= DT_NODE_OPEN
		bestNode.Flags |= DT_NODE_CLOSED

		// Get poly and tile.
		// The API input has been checked already, skip checking internal data.
		bestRef := bestNode.Id
		bestTile, bestPoly := q.m_nav.GetTileAndPolyByRefUnsafe(bestRef)

		// Get parent poly and tile.
		var parentRef DtPolyRef
		if bestNode.Pidx != 0 {
			parentRef = q.m_nodePool.GetNodeAtIdx(bestNode.Pidx).Id
		}

		// Hit test walls.
		nv := int(bestPoly.VertCount)
		for i, j := 0, nv-1; i < nv; j, i = i, i+1 {
			// Skip non-solid edges.
			if bestPoly.Neis[j]&DT_EXT_LINK != 0 {
				// Tile border.
				solid := true
				for k := bestPoly.FirstLink; k != DT_NULL_LINK; k = bestTile.Links[k].Next {
					link := &bestTile.Links[k]
					if int(link.Edge) == j {
						if link.Ref != 0 {
							neiTile, neiPoly := q.m_nav.GetTileAndPolyByRefUnsafe(link.Ref)
							if filter.PassFilter(link.Ref, neiTile, neiPoly) {
								solid = false
							}
						}
						break
					}
				}
				if !solid {
					continue
				}
			} else if bestPoly.Neis[j] != 0 {
				// Internal edge
				idx := uint32(bestPoly.Neis[j] - 1)
				ref := q.m_nav.GetPolyRefBase(bestTile) | DtPolyRef(idx)
				if filter.PassFilter(ref, bestTile, &bestTile.Polys[idx]) {
					continue
				}
			}

			// Calc distance to the edge.
			vj := bestTile.vert(bestPoly.Verts[j])
			vi := bestTile.vert(bestPoly.Verts[i])
			tseg, distSqr := DtDistancePtSegSqr2D(centerPos, vj, vi)

			// Edge is too far, skip.
			if distSqr > radiusSqr {
				continue
			}

			// Hit wall, update radius.
			radiusSqr = distSqr
			// Calculate hit pos.
			hitPos[0] = vj[0] + (vi[0]-vj[0])*tseg
			hitPos[1] = vj[1] + (vi[1]-vj[1])*tseg
			hitPos[2] = vj[2] + (vi[2]-vj[2])*tseg
		}

		for i := bestPoly.FirstLink; i != DT_NULL_LINK; i = bestTile.Links[i].Next {
			link := &bestTile.Links[i]
			neighbourRef := link.Ref
			// Skip invalid neighbours and do not follow back to parent.
			if neighbourRef == 0 || neighbourRef == parentRef {
				continue
			}

			// Expand to neighbour.
			neighbourTile, neighbourPoly := q.m_nav.GetTileAndPolyByRefUnsafe(neighbourRef)

			// Skip off-mesh connections.
			if neighbourPoly.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
				continue
			}

			// Calc distance to the edge.
			va := bestTile.vert(bestPoly.Verts[link.Edge])
			vb := bestTile.vert(bestPoly.Verts[(int(link.Edge)+1)%nv])
			_, distSqr := DtDistancePtSegSqr2D(centerPos, va, vb)

			// If the circle is not touching the next polygon, skip it.
			if distSqr > radiusSqr {
				continue
			}

			if !filter.PassFilter(neighbourRef, neighbourTile, neighbourPoly) {
				continue
			}

			neighbourNode := q.m_nodePool.GetNode(neighbourRef, 0)
			if neighbourNode == nil {
				status |= DT_OUT_OF_NODES
				continue
			}

			if neighbourNode.Flags&DT_NODE_CLOSED != 0 {
				continue
			}

			// Cost
			if neighbourNode.Flags == 0 {
				mid, _ := q.getEdgeMidPoint(bestRef, bestPoly, bestTile, neighbourRef, neighbourPoly, neighbourTile)
				neighbourNode.Pos = mid
			}

			total := bestNode.Total + common.Vdist(bestNode.Pos[:], neighbourNode.Pos[:])

			// The node is already in open list and the new result is worse, skip.
			if (neighbourNode.Flags&DT_NODE_OPEN) != 0 && total >= neighbourNode.Total {
				continue
			}

			neighbourNode.Id = neighbourRef
			neighbourNode.Flags = neighbourNode.Flags &^ DT_NODE_CLOSED
			neighbourNode.Pidx = q.m_nodePool.GetNodeIdx(bestNode)
			neighbourNode.Total = total

			if neighbourNode.Flags&DT_NODE_OPEN != 0 {
				q.m_openList.Modify(neighbourNode)
			} else {
				neighbourNode.Flags |= DT_NODE_OPEN
				q.m_openList.Push(neighbourNode)
			}
		}
	}

	// Calc hit normal.
	common.Vsub(hitNormal[:], centerPos, hitPos[:])
	common.Vnormalize(hitNormal[:])

	hitDist = common.Sqrt(radiusSqr)
	return hitDist, hitPos, hitNormal, status
}

// / Gets a path from the explored nodes in the previous search.
// / Valid after FindPolysAroundCircle or FindPolysAroundShape; the path runs from
// / the search start to endRef.
func (q *DtNavMeshQuery) GetPathFromDijkstraSearch(endRef DtPolyRef, maxPath int) ([]DtPolyRef, DtStatus) {
	if !q.m_nav.IsValidPolyRef(endRef) || maxPath <= 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}
	nodes := q.m_nodePool.FindNodes(endRef, 1)
	if len(nodes) == 0 || nodes[0].Flags&DT_NODE_CLOSED == 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}
	return q.getPathToNode(nodes[0], maxPath)
}
