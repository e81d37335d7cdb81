package detour

import (
	"math"

	"github.com/gorustyt/navrt/common"
)

// / Provides information about raycast hit
// / filled by DtNavMeshQuery::raycast
type DtRaycastHit struct {
	// / The hit parameter. (FLT_MAX if no wall hit.)
	T float32
	// / hitNormal	The normal of the nearest wall hit. [(x, y, z)]
	HitNormal [3]float32
	// / the index of the edge on the final polygon where the wall was hit.
	HitEdgeIndex int
	// / The visited polygons along the ray.
	Path []DtPolyRef
	// / The cost of the path until hit.
	PathCost float32
}

// Hit reports whether the ray stopped at a wall.
func (h *DtRaycastHit) Hit() bool { return h.T != math.MaxFloat32 }

// / Casts a 'walkability' ray along the surface of the navigation mesh from
// / the start position toward the end position.
// / The T of the result is FLT_MAX when the ray reaches the end position, otherwise
// / the wall was hit at startPos + (endPos - startPos) * T.
func (q *DtNavMeshQuery) Raycast(startRef DtPolyRef, startPos, endPos []float32, filter *DtQueryFilter, options int,
	maxPath int, prevRef DtPolyRef) (*DtRaycastHit, DtStatus) {
	hit := &DtRaycastHit{}

	// Validate input
	if !q.m_nav.IsValidPolyRef(startRef) || len(startPos) < 3 || len(endPos) < 3 ||
		!common.Visfinite(startPos) || !common.Visfinite(endPos) || filter == nil ||
		(prevRef != 0 && !q.m_nav.IsValidPolyRef(prevRef)) {
		return hit, DT_FAILURE | DT_INVALID_PARAM
	}

	var dir, curPos, lastPos [3]float32
	var verts [DT_VERTS_PER_POLYGON*3 + 3]float32
	status := DT_SUCCESS

	copy(curPos[:], startPos)
	common.Vsub(dir[:], endPos, startPos)

	// The API input has been checked already, skip checking internal data.
	curRef := startRef
	tile, poly := q.m_nav.GetTileAndPolyByRefUnsafe(curRef)
	nextTile, nextPoly := tile, poly

	for curRef != 0 {
		// Cast ray against current polygon.

		// Collect vertices.
		nv := 0
		for i := 0; i < int(poly.VertCount); i++ {
			copy(verts[nv*3:], tile.vert(poly.Verts[i]))
			nv++
		}

		_, tmax, _, segMax, ok := DtIntersectSegmentPoly2D(startPos, endPos, verts[:], nv)
		if !ok {
			// Could not hit the polygon, keep the old t and report hit.
			return hit, status
		}

		hit.HitEdgeIndex = segMax

		// Keep track of furthest t so far.
		if tmax > hit.T {
			hit.T = tmax
		}

		// Store visited polygons.
		if len(hit.Path) < maxPath {
			hit.Path = append(hit.Path, curRef)
		} else {
			status |= DT_BUFFER_TOO_SMALL
		}

		// Ray end is completely inside the polygon.
		if segMax == -1 {
			hit.T = math.MaxFloat32

			// add the cost
			if options&DT_RAYCAST_USE_COSTS != 0 {
				hit.PathCost += filter.GetCost(curPos[:], endPos, poly)
			}
			return hit, status
		}

		// Follow neighbours.
		var nextRef DtPolyRef

		for i := poly.FirstLink; i != DT_NULL_LINK; i = tile.Links[i].Next {
			link := &tile.Links[i]

			// Find link which contains this edge.
			if int(link.Edge) != segMax {
				continue
			}

			// Get pointer to the next polygon.
			nextTile, nextPoly = q.m_nav.GetTileAndPolyByRefUnsafe(link.Ref)

			// Skip off-mesh connections.
			if nextPoly.GetType() == DT_POLYTYPE_OFFMESH_CONNECTION {
				continue
			}

			// Skip links based on filter.
			if !filter.PassFilter(link.Ref, nextTile, nextPoly) {
				continue
			}

			// If the link is internal, just return the ref.
			if link.Side == 0xff {
				nextRef = link.Ref
				break
			}

			// If the link is at tile boundary,

			// Check if the link spans the whole edge, and accept.
			if link.Bmin == 0 && link.Bmax == 255 {
				nextRef = link.Ref
				break
			}

			// Check for partial edge links.
			v0 := poly.Verts[link.Edge]
			v1 := poly.Verts[(int(link.Edge)+1)%int(poly.VertCount)]
			left := tile.vert(v0)
			right := tile.vert(v1)

			// Check that the intersection lies inside the link portal.
			if link.Side == 0 || link.Side == 4 {
				// Calculate link size.
				const s = 1.0 / 255.0
				lmin := left[2] + (right[2]-left[2])*(float32(link.Bmin)*s)
				lmax := left[2] + (right[2]-left[2])*(float32(link.Bmax)*s)
				if lmin > lmax {
					lmin, lmax = lmax, lmin
				}

				// Find Z intersection.
				z := startPos[2] + (endPos[2]-startPos[2])*tmax
				if z >= lmin && z <= lmax {
					nextRef = link.Ref
					break
				}
			} else if link.Side == 2 || link.Side == 6 {
				// Calculate link size.
				const s = 1.0 / 255.0
				lmin := left[0] + (right[0]-left[0])*(float32(link.Bmin)*s)
				lmax := left[0] + (right[0]-left[0])*(float32(link.Bmax)*s)
				if lmin > lmax {
					lmin, lmax = lmax, lmin
				}

				// Find X intersection.
				x := startPos[0] + (endPos[0]-startPos[0])*tmax
				if x >= lmin && x <= lmax {
					nextRef = link.Ref
					break
				}
			}
		}

		// add the cost
		if options&DT_RAYCAST_USE_COSTS != 0 {
			// compute the intersection point at the furthest end of the polygon
			// and correct the height (since the raycast moves in 2d)
			lastPos = curPos
			common.Vmad(curPos[:], startPos, dir[:], hit.T)
			e1 := verts[segMax*3:]
			e2 := verts[((segMax+1)%nv)*3:]
			var eDir, diff [3]float32
			common.Vsub(eDir[:], e2, e1)
			common.Vsub(diff[:], curPos[:], e1)
			var s float32
			if common.Sqr(eDir[0]) > common.Sqr(eDir[2]) {
				s = diff[0] / eDir[0]
			} else {
				s = diff[2] / eDir[2]
			}
			curPos[1] = e1[1] + eDir[1]*s

			hit.PathCost += filter.GetCost(lastPos[:], curPos[:], poly)
		}

		if nextRef == 0 {
			// No neighbour, we hit a wall.

			// Calculate hit normal.
			a := segMax
			b := 0
			if segMax+1 < nv {
				b = segMax + 1
			}
			va := verts[a*3:]
			vb := verts[b*3:]
			dx := vb[0] - va[0]
			dz := vb[2] - va[2]
			hit.HitNormal = [3]float32{dz, 0, -dx}
			common.Vnormalize(hit.HitNormal[:])
			return hit, status
		}

		// No hit, advance to neighbour polygon.
		curRef = nextRef
		tile, poly = nextTile, nextPoly
	}
	return hit, status
}
