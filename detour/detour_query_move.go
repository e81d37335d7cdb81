package detour

import (
	"math"

	"github.com/gorustyt/navrt/common"
)

// / Moves from the start to the end position constrained to the navigation mesh.
// / The result position is clamped to the surface reached; the visited polygons
// / run from startRef to the polygon holding the result.
func (q *DtNavMeshQuery) MoveAlongSurface(startRef DtPolyRef, startPos, endPos []float32, filter *DtQueryFilter,
	maxVisitedSize int) (resultPos [3]float32, visited []DtPolyRef, status DtStatus) {
	// Validate input
	if !q.m_nav.IsValidPolyRef(startRef) || len(startPos) < 3 || len(endPos) < 3 ||
		!common.Visfinite(startPos) || !common.Visfinite(endPos) || filter == nil || maxVisitedSize <= 0 {
		return resultPos, nil, DT_FAILURE | DT_INVALID_PARAM
	}

	status = DT_SUCCESS

	const MAX_STACK = 48
	stack := make([]*DtNode, 0, MAX_STACK)

	q.m_tinyNodePool.Clear()

	startNode := q.m_tinyNodePool.GetNode(startRef, 0)
	startNode.Pidx = 0
	startNode.Cost = 0
	startNode.Total = 0
	startNode.Id = startRef
	startNode.Flags = DT_NODE_CLOSED
	stack = append(stack, startNode)

	var bestPos [3]float32
	bestDist := float32(math.MaxFloat32)
	var bestNode *DtNode
	copy(bestPos[:], startPos)

	// Search constraints
	var searchPos [3]float32
	common.Vlerp(searchPos[:], startPos, endPos, 0.5)
	searchRadSqr := common.Sqr(common.Vdist(startPos, endPos)/2.0 + 0.001)

	var verts [DT_VERTS_PER_POLYGON * 3]float32

	for len(stack) > 0 {
		// Pop front.
		curNode := stack[0]
		stack = stack[1:]

		// Get poly and tile.
		// The API input has been checked already, skip checking internal data.
		curRef := curNode.Id
		curTile, curPoly := q.m_nav.GetTileAndPolyByRefUnsafe(curRef)

		// Collect vertices.
		nverts := int(curPoly.VertCount)
		for i := 0; i < nverts; i++ {
			copy(verts[i*3:], curTile.vert(curPoly.Verts[i]))
		}

		// If target is inside the poly, stop search.
		if DtPointInPolygon(endPos, verts[:], nverts) {
			bestNode = curNode
			copy(bestPos[:], endPos)
			break
		}

		// Find wall edges and find nearest point inside the walls.
		for i, j := 0, nverts-1; i < nverts; j, i = i, i+1 {
			// Find links to neighbours.
			const MAX_NEIS = 8
			neis := make([]DtPolyRef, 0, MAX_NEIS)

			if curPoly.Neis[j]&DT_EXT_LINK != 0 {
				// Tile border.
				for k := curPoly.FirstLink; k != DT_NULL_LINK; k = curTile.Links[k].Next {
					link := &curTile.Links[k]
					if int(link.Edge) == j {
						if link.Ref != 0 {
							neiTile, neiPoly := q.m_nav.GetTileAndPolyByRefUnsafe(link.Ref)
							if filter.PassFilter(link.Ref, neiTile, neiPoly) {
								if len(neis) < MAX_NEIS {
									neis = append(neis, link.Ref)
								}
							}
						}
					}
				}
			} else if curPoly.Neis[j] != 0 {
				idx := uint32(curPoly.Neis[j] - 1)
				ref := q.m_nav.GetPolyRefBase(curTile) | DtPolyRef(idx)
				if filter.PassFilter(ref, curTile, &curTile.Polys[idx]) {
					// Internal edge, encode id.
					neis = append(neis, ref)
				}
			}

			if len(neis) == 0 {
				// Wall edge, calc distance.
				vj := verts[j*3:]
				vi := verts[i*3:]
				tseg, distSqr := DtDistancePtSegSqr2D(endPos, vj, vi)
				if distSqr < bestDist {
					// Update nearest distance.
					common.Vlerp(bestPos[:], vj, vi, tseg)
					bestDist = distSqr
					bestNode = curNode
				}
			} else {
				for _, nei := range neis {
					// Skip if no node can be allocated.
					neighbourNode := q.m_tinyNodePool.GetNode(nei, 0)
					if neighbourNode == nil {
						continue
					}
					// Skip if already visited.
					if neighbourNode.Flags&DT_NODE_CLOSED != 0 {
						continue
					}

					// Skip the link if it is too far from search constraint.
					vj := verts[j*3:]
					vi := verts[i*3:]
					if _, distSqr := DtDistancePtSegSqr2D(searchPos[:], vj, vi); distSqr > searchRadSqr {
						continue
					}

					// Mark as the node as visited and push to queue.
					if len(stack) < MAX_STACK {
						neighbourNode.Pidx = q.m_tinyNodePool.GetNodeIdx(curNode)
						neighbourNode.Flags |= DT_NODE_CLOSED
						stack = append(stack, neighbourNode)
					}
				}
			}
		}
	}

	if bestNode != nil {
		// Reverse the path.
		var prev *DtNode
		node := bestNode
		for node != nil {
			next := q.m_tinyNodePool.GetNodeAtIdx(node.Pidx)
			node.Pidx = q.m_tinyNodePool.GetNodeIdx(prev)
			prev = node
			node = next
		}

		// Store result
		node = prev
		for node != nil {
			visited = append(visited, node.Id)
			if len(visited) >= maxVisitedSize {
				if q.m_tinyNodePool.GetNodeAtIdx(node.Pidx) != nil {
					status |= DT_BUFFER_TOO_SMALL
				}
				break
			}
			node = q.m_tinyNodePool.GetNodeAtIdx(node.Pidx)
		}
	}

	resultPos = bestPos
	return resultPos, visited, status
}

// / Returns random location on navmesh.
// / Polygons are chosen weighted by area. The search runs in linear time relative to number of polygons.
// / frand is a function returning a random number [0..1).
func (q *DtNavMeshQuery) FindRandomPoint(filter *DtQueryFilter, frand func() float32) (randomRef DtPolyRef, randomPt [3]float32, status DtStatus) {
	if filter == nil || frand == nil {
		return 0, randomPt, DT_FAILURE | DT_INVALID_PARAM
	}

	// Randomly pick one tile. Assume that all tiles cover roughly the same area.
	var tile *DtMeshTile
	var tsum float32
	for i := 0; i < q.m_nav.GetMaxTiles(); i++ {
		t := q.m_nav.GetTile(i)
		if t == nil || t.Header == nil {
			continue
		}

		// Choose random tile using reservoi sampling.
		const area = 1.0 // Could be tile area too.
		tsum += area
		u := frand()
		if u*tsum <= area {
			tile = t
		}
	}
	if tile == nil {
		return 0, randomPt, DT_FAILURE
	}

	// Randomly pick one polygon weighted by polygon area.
	var poly *DtPoly
	var polyRef DtPolyRef
	base := q.m_nav.GetPolyRefBase(tile)

	var areaSum float32
	for i := range tile.Polys {
		p := &tile.Polys[i]
		// Do not return off-mesh connection polygons.
		if p.GetType() != DT_POLYTYPE_GROUND {
			continue
		}
		// Must pass filter
		ref := base | DtPolyRef(i)
		if !filter.PassFilter(ref, tile, p) {
			continue
		}

		// Calc area of the polygon.
		var polyArea float32
		for j := 2; j < int(p.VertCount); j++ {
			va := tile.vert(p.Verts[0])
			vb := tile.vert(p.Verts[j-1])
			vc := tile.vert(p.Verts[j])
			polyArea += common.TriArea2D(va, vb, vc)
		}

		// Choose random polygon weighted by area, using reservoi sampling.
		areaSum += polyArea
		u := frand()
		if u*areaSum <= polyArea {
			poly = p
			polyRef = ref
		}
	}

	if poly == nil {
		return 0, randomPt, DT_FAILURE
	}

	// Randomly pick point on polygon.
	var verts [3 * DT_VERTS_PER_POLYGON]float32
	var areas [DT_VERTS_PER_POLYGON]float32
	for j := 0; j < int(poly.VertCount); j++ {
		copy(verts[j*3:], tile.vert(poly.Verts[j]))
	}

	s := frand()
	t := frand()

	pt := DtRandomPointInConvexPoly(verts[:], int(poly.VertCount), areas[:], s, t)
	h, status := q.GetPolyHeight(polyRef, pt[:])
	if status.Failed() {
		return 0, randomPt, status
	}
	pt[1] = h

	return polyRef, pt, DT_SUCCESS
}

// / Returns random location on navmesh within the reach of specified location.
// / Polygons are chosen weighted by area. The search runs in linear time relative to number of polygons.
// / The location is not exactly constrained by the circle, but it limits the visited polygons.
func (q *DtNavMeshQuery) FindRandomPointAroundCircle(startRef DtPolyRef, centerPos []float32, maxRadius float32,
	filter *DtQueryFilter, frand func() float32) (randomRef DtPolyRef, randomPt [3]float32, status DtStatus) {
	// Validate input
	if !q.m_nav.IsValidPolyRef(startRef) || len(centerPos) < 3 || !common.Visfinite(centerPos) ||
		maxRadius < 0 || !common.IsFinite(maxRadius) || filter == nil || frand == nil {
		return 0, randomPt, DT_FAILURE | DT_INVALID_PARAM
	}

	startTile, startPoly := q.m_nav.GetTileAndPolyByRefUnsafe(startRef)
	if !filter.PassFilter(startRef, startTile, startPoly) {
		return 0, randomPt, DT_FAILURE | DT_INVALID_PARAM
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

	status = DT_SUCCESS

	radiusSqr := common.Sqr(maxRadius)
	var areaSum float32

	var randomTile *DtMeshTile
	var randomPoly *DtPoly
	var randomPolyRef DtPolyRef

	for !q.m_openList.Empty() {
		bestNode := q.m_openList.Pop()
		bestNode.Flags &^= DT_NODE_OPEN
		bestNode.Flags |= DT_NODE_CLOSED

		// Get poly and tile.
		// The API input has been checked already, skip checking internal data.
		bestRef := bestNode.Id
		bestTile, bestPoly := q.m_nav.GetTileAndPolyByRefUnsafe(bestRef)

		// Place random locations on on ground.
		if bestPoly.GetType() == DT_POLYTYPE_GROUND {
			// Calc area of the polygon.
			var polyArea float32
			for j := 2; j < int(bestPoly.VertCount); j++ {
				va := bestTile.vert(bestPoly.Verts[0])
				vb := bestTile.vert(bestPoly.Verts[j-1])
				vc := bestTile.vert(bestPoly.Verts[j])
				polyArea += common.TriArea2D(va, vb, vc)
			}
			// Choose random polygon weighted by area, using reservoi sampling.
			areaSum += polyArea
			u := frand()
			if u*areaSum <= polyArea {
				randomTile = bestTile
				randomPoly = bestPoly
				randomPolyRef = bestRef
			}
		}

		// Get parent poly and tile.
		var parentRef DtPolyRef
		if bestNode.Pidx != 0 {
			parentRef = q.m_nodePool.GetNodeAtIdx(bestNode.Pidx).Id
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

			// If the circle is not touching the next polygon, skip it.
			if _, distSqr := DtDistancePtSegSqr2D(centerPos, va[:], vb[:]); distSqr > radiusSqr {
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
				neighbourNode.Flags = DT_NODE_OPEN
				q.m_openList.Push(neighbourNode)
			}
		}
	}

	if randomPoly == nil {
		return 0, randomPt, DT_FAILURE
	}

	// Randomly pick point on polygon.
	var verts [3 * DT_VERTS_PER_POLYGON]float32
	var areas [DT_VERTS_PER_POLYGON]float32
	for j := 0; j < int(randomPoly.VertCount); j++ {
		copy(verts[j*3:], randomTile.vert(randomPoly.Verts[j]))
	}

	s := frand()
	t := frand()

	pt := DtRandomPointInConvexPoly(verts[:], int(randomPoly.VertCount), areas[:], s, t)
	h, st := q.GetPolyHeight(randomPolyRef, pt[:])
	if st.Failed() {
		return 0, randomPt, st
	}
	pt[1] = h

	return randomPolyRef, pt, status
}
