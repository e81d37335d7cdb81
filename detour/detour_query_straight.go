package detour

import (
	"github.com/gorustyt/navrt/common"
)

// DtStraightPath is the string-pulled result of DtNavMeshQuery.FindStraightPath.
// All slices have the same length.
type DtStraightPath struct {
	Points [][3]float32
	Flags  []uint8
	Refs   []DtPolyRef
}

func (p *DtStraightPath) Len() int { return len(p.Points) }

func (q *DtNavMeshQuery) appendVertex(pos []float32, flags uint8, ref DtPolyRef, out *DtStraightPath, maxStraightPath int) DtStatus {
	n := len(out.Points)
	if n > 0 && common.Vequal(out.Points[n-1][:], pos) {
		// The vertices are equal, update flags and poly.
		out.Flags[n-1] = flags
		out.Refs[n-1] = ref
	} else {
		var p [3]float32
		copy(p[:], pos)
		out.Points = append(out.Points, p)
		out.Flags = append(out.Flags, flags)
		out.Refs = append(out.Refs, ref)

		// If there is no space to append more vertices, return.
		if len(out.Points) >= maxStraightPath {
			return DT_SUCCESS | DT_BUFFER_TOO_SMALL
		}

		// If reached end of path, return.
		if flags == DT_STRAIGHTPATH_END {
			return DT_SUCCESS
		}
	}
	return DT_IN_PROGRESS
}

func (q *DtNavMeshQuery) appendPortals(startIdx, endIdx int, endPos []float32, path []DtPolyRef,
	out *DtStraightPath, maxStraightPath int, options int) DtStatus {
	startPos := out.Points[len(out.Points)-1]
	// Append or update last vertex
	for i := startIdx; i < endIdx; i++ {
		// Calculate portal
		from := path[i]
		fromTile, fromPoly, status := q.m_nav.GetTileAndPolyByRef(from)
		if status.Failed() {
			return DT_FAILURE | DT_INVALID_PARAM
		}

		to := path[i+1]
		toTile, toPoly, status := q.m_nav.GetTileAndPolyByRef(to)
		if status.Failed() {
			return DT_FAILURE | DT_INVALID_PARAM
		}

		left, right, status := q.getPortalPoints(from, fromPoly, fromTile, to, toPoly, toTile)
		if status.Failed() {
			break
		}

		if options&DT_STRAIGHTPATH_AREA_CROSSINGS != 0 {
			// Skip intersection if only area crossings are requested.
			if fromPoly.GetArea() == toPoly.GetArea() {
				continue
			}
		}

		// Append intersection
		if _, t, ok := DtIntersectSegSeg2D(startPos[:], endPos, left[:], right[:]); ok {
			var pt [3]float32
			common.Vlerp(pt[:], left[:], right[:], t)
			stat := q.appendVertex(pt[:], 0, path[i+1], out, maxStraightPath)
			if stat != DT_IN_PROGRESS {
				return stat
			}
		}
	}
	return DT_IN_PROGRESS
}

// / Finds the straight path from the start to the end position within the polygon corridor.
// / Every returned point lies on the corridor; the first is flagged DT_STRAIGHTPATH_START and
// / a complete path ends with a point flagged DT_STRAIGHTPATH_END.
func (q *DtNavMeshQuery) FindStraightPath(startPos, endPos []float32, path []DtPolyRef, maxStraightPath int, options int) (*DtStraightPath, DtStatus) {
	out := &DtStraightPath{}
	if len(startPos) < 3 || len(endPos) < 3 || !common.Visfinite(startPos) || !common.Visfinite(endPos) ||
		len(path) == 0 || path[0] == 0 || maxStraightPath <= 0 {
		return out, DT_FAILURE | DT_INVALID_PARAM
	}

	closestStartPos, status := q.ClosestPointOnPolyBoundary(path[0], startPos)
	if status.Failed() {
		return out, DT_FAILURE | DT_INVALID_PARAM
	}

	closestEndPos, status := q.ClosestPointOnPolyBoundary(path[len(path)-1], endPos)
	if status.Failed() {
		return out, DT_FAILURE | DT_INVALID_PARAM
	}

	// Add start point.
	stat := q.appendVertex(closestStartPos[:], DT_STRAIGHTPATH_START, path[0], out, maxStraightPath)
	if stat != DT_IN_PROGRESS {
		return out, stat
	}

	pathSize := len(path)
	if pathSize > 1 {
		portalApex := closestStartPos
		portalLeft := portalApex
		portalRight := portalApex
		apexIndex := 0
		leftIndex := 0
		rightIndex := 0

		var leftPolyType, rightPolyType uint8

		leftPolyRef := path[0]
		rightPolyRef := path[0]

		for i := 0; i < pathSize; i++ {
			var left, right [3]float32
			var toType uint8

			if i+1 < pathSize {
				// Next portal.
				left, right, _, toType, status = q.getPortalPointsByRef(path[i], path[i+1])
				if status.Failed() {
					// Failed to get portal points, in practice this means that path[i+1] is invalid polygon.
					// Clamp the end point to path[i], and return the path so far.
					closestEndPos, status = q.ClosestPointOnPolyBoundary(path[i], endPos)
					if status.Failed() {
						// This should only happen when the first polygon is invalid.
						return out, DT_FAILURE | DT_INVALID_PARAM
					}

					// Apeend portals along the current straight path segment.
					if options&(DT_STRAIGHTPATH_AREA_CROSSINGS|DT_STRAIGHTPATH_ALL_CROSSINGS) != 0 {
						// Ignore status return value as we're just about to return anyway.
						q.appendPortals(apexIndex, i, closestEndPos[:], path, out, maxStraightPath, options)
					}

					// Ignore status return value as we're just about to return anyway.
					q.appendVertex(closestEndPos[:], 0, path[i], out, maxStraightPath)

					st := DT_SUCCESS | DT_PARTIAL_RESULT
					if len(out.Points) >= maxStraightPath {
						st |= DT_BUFFER_TOO_SMALL
					}
					return out, st
				}

				// If starting really close the portal, advance.
				if i == 0 {
					if _, d := DtDistancePtSegSqr2D(portalApex[:], left[:], right[:]); d < common.Sqr(float32(0.001)) {
						continue
					}
				}
			} else {
				// End of the path.
				left = closestEndPos
				right = closestEndPos
				toType = DT_POLYTYPE_GROUND
			}

			// Right vertex.
			if common.TriArea2D(portalApex[:], portalRight[:], right[:]) <= 0.0 {
				if common.Vequal(portalApex[:], portalRight[:]) || common.TriArea2D(portalApex[:], portalLeft[:], right[:]) > 0.0 {
					portalRight = right
					if i+1 < pathSize {
						rightPolyRef = path[i+1]
					} else {
						rightPolyRef = 0
					}
					rightPolyType = toType
					rightIndex = i
				} else {
					// Append portals along the current straight path segment.
					if options&(DT_STRAIGHTPATH_AREA_CROSSINGS|DT_STRAIGHTPATH_ALL_CROSSINGS) != 0 {
						stat = q.appendPortals(apexIndex, leftIndex, portalLeft[:], path, out, maxStraightPath, options)
						if stat != DT_IN_PROGRESS {
							return out, stat
						}
					}

					portalApex = portalLeft
					apexIndex = leftIndex

					var flags uint8
					if leftPolyRef == 0 {
						flags = DT_STRAIGHTPATH_END
					} else if leftPolyType == DT_POLYTYPE_OFFMESH_CONNECTION {
						flags = DT_STRAIGHTPATH_OFFMESH_CONNECTION
					}
					ref := leftPolyRef

					// Append or update vertex
					stat = q.appendVertex(portalApex[:], flags, ref, out, maxStraightPath)
					if stat != DT_IN_PROGRESS {
						return out, stat
					}

					portalLeft = portalApex
					portalRight = portalApex
					leftIndex = apexIndex
					rightIndex = apexIndex

					// Restart
					i = apexIndex
					continue
				}
			}

			// Left vertex.
			if common.TriArea2D(portalApex[:], portalLeft[:], left[:]) >= 0.0 {
				if common.Vequal(portalApex[:], portalLeft[:]) || common.TriArea2D(portalApex[:], portalRight[:], left[:]) < 0.0 {
					portalLeft = left
					if i+1 < pathSize {
						leftPolyRef = path[i+1]
					} else {
						leftPolyRef = 0
					}
					leftPolyType = toType
					leftIndex = i
				} else {
					// Append portals along the current straight path segment.
					if options&(DT_STRAIGHTPATH_AREA_CROSSINGS|DT_STRAIGHTPATH_ALL_CROSSINGS) != 0 {
						stat = q.appendPortals(apexIndex, rightIndex, portalRight[:], path, out, maxStraightPath, options)
						if stat != DT_IN_PROGRESS {
							return out, stat
						}
					}

					portalApex = portalRight
					apexIndex = rightIndex

					var flags uint8
					if rightPolyRef == 0 {
						flags = DT_STRAIGHTPATH_END
					} else if rightPolyType == DT_POLYTYPE_OFFMESH_CONNECTION {
						flags = DT_STRAIGHTPATH_OFFMESH_CONNECTION
					}
					ref := rightPolyRef

					// Append or update vertex
					stat = q.appendVertex(portalApex[:], flags, ref, out, maxStraightPath)
					if stat != DT_IN_PROGRESS {
						return out, stat
					}

					portalLeft = portalApex
					portalRight = portalApex
					leftIndex = apexIndex
					rightIndex = apexIndex

					// Restart
					i = apexIndex
					continue
				}
			}
		}

		// Append portals along the current straight path segment.
		if options&(DT_STRAIGHTPATH_AREA_CROSSINGS|DT_STRAIGHTPATH_ALL_CROSSINGS) != 0 {
			stat = q.appendPortals(apexIndex, pathSize-1, closestEndPos[:], path, out, maxStraightPath, options)
			if stat != DT_IN_PROGRESS {
				return out, stat
			}
		}
	}

	// Ignore status return value as we're just about to return anyway.
	q.appendVertex(closestEndPos[:], DT_STRAIGHTPATH_END, 0, out, maxStraightPath)

	st := DT_SUCCESS
	if len(out.Points) >= maxStraightPath {
		st |= DT_BUFFER_TOO_SMALL
	}
	return out, st
}
