package detour

import (
	"github.com/gorustyt/navrt/common"
)

// DtDistancePtSegSqr2D returns the parametric position of the closest point on segment pq
// and the squared xz distance from pt to it.
func DtDistancePtSegSqr2D(pt, p, q []float32) (t float32, distSqr float32) {
	pqx := q[0] - p[0]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dz := pt[2] - p[2]
	d := pqx*pqx + pqz*pqz
	t = pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	dx = p[0] + t*pqx - pt[0]
	dz = p[2] + t*pqz - pt[2]
	return t, dx*dx + dz*dz
}

// / Derives the centroid of a convex polygon.
func DtCalcPolyCenter(idx []uint16, nidx int, verts []float32) (tc [3]float32) {
	for j := 0; j < nidx; j++ {
		v := common.GetVert3(verts, idx[j])
		tc[0] += v[0]
		tc[1] += v[1]
		tc[2] += v[2]
	}
	s := 1.0 / float32(nidx)
	tc[0] *= s
	tc[1] *= s
	tc[2] *= s
	return tc
}

// / Derives the y-axis height of the closest point on the triangle from the specified reference point.
func DtClosestHeightPointTriangle(p, a, b, c []float32) (h float32, ok bool) {
	const EPS = 1e-6
	var v0, v1, v2 [3]float32
	common.Vsub(v0[:], c, a)
	common.Vsub(v1[:], b, a)
	common.Vsub(v2[:], p, a)

	// Compute scaled barycentric coordinates
	denom := v0[0]*v1[2] - v0[2]*v1[0]
	if common.Abs(denom) < EPS {
		return 0, false
	}

	u := v1[2]*v2[0] - v1[0]*v2[2]
	v := v0[0]*v2[2] - v0[2]*v2[0]

	if denom < 0 {
		denom = -denom
		u = -u
		v = -v
	}

	// If point lies inside the triangle, return interpolated ycoord.
	if u >= 0.0 && v >= 0.0 && (u+v) <= denom {
		return a[1] + (v0[1]*u+v1[1]*v)/denom, true
	}
	return 0, false
}

// / Determines if the specified point is inside the convex polygon on the xz-plane.
func DtPointInPolygon(pt, verts []float32, nverts int) bool {
	c := false
	for i, j := 0, nverts-1; i < nverts; j, i = i, i+1 {
		vi := verts[i*3:]
		vj := verts[j*3:]
		if ((vi[2] > pt[2]) != (vj[2] > pt[2])) &&
			(pt[0] < (vj[0]-vi[0])*(pt[2]-vi[2])/(vj[2]-vi[2])+vi[0]) {
			c = !c
		}
	}
	return c
}

// DtDistancePtPolyEdgesSqr fills ed and et with the squared distance and segment parameter
// of pt to every polygon edge, and reports whether pt lies inside the polygon.
func DtDistancePtPolyEdgesSqr(pt, verts []float32, nverts int, ed, et []float32) bool {
	c := false
	for i, j := 0, nverts-1; i < nverts; j, i = i, i+1 {
		vi := verts[i*3:]
		vj := verts[j*3:]
		if ((vi[2] > pt[2]) != (vj[2] > pt[2])) &&
			(pt[0] < (vj[0]-vi[0])*(pt[2]-vi[2])/(vj[2]-vi[2])+vi[0]) {
			c = !c
		}
		et[j], ed[j] = DtDistancePtSegSqr2D(pt, vj, vi)
	}
	return c
}

// DtIntersectSegmentPoly2D clips segment p0-p1 against a convex polygon. segMin and segMax are
// the indices of the entering and leaving edges, -1 when the segment starts or ends inside.
func DtIntersectSegmentPoly2D(p0, p1, verts []float32, nverts int) (tmin, tmax float32, segMin, segMax int, ok bool) {
	const EPS = 0.000001
	tmin = 0
	tmax = 1
	segMin = -1
	segMax = -1

	var dir [3]float32
	common.Vsub(dir[:], p1, p0)

	for i, j := 0, nverts-1; i < nverts; j, i = i, i+1 {
		var edge, diff [3]float32
		common.Vsub(edge[:], verts[i*3:], verts[j*3:])
		common.Vsub(diff[:], p0, verts[j*3:])
		n := common.Vperp2D(edge[:], diff[:])
		d := common.Vperp2D(dir[:], edge[:])
		if common.Abs(d) < EPS {
			// S is nearly parallel to this edge
			if n < 0 {
				return tmin, tmax, segMin, segMax, false
			}
			continue
		}
		t := n / d
		if d < 0 {
			// segment S is entering across this edge
			if t > tmin {
				tmin = t
				segMin = j
				// S enters after leaving polygon
				if tmin > tmax {
					return tmin, tmax, segMin, segMax, false
				}
			}
		} else {
			// segment S is leaving across this edge
			if t < tmax {
				tmax = t
				segMax = j
				// S leaves before entering polygon
				if tmax < tmin {
					return tmin, tmax, segMin, segMax, false
				}
			}
		}
	}
	return tmin, tmax, segMin, segMax, true
}

func vperpXZ(a, b []float32) float32 { return a[0]*b[2] - a[2]*b[0] }

// DtIntersectSegSeg2D intersects segments ap-aq and bp-bq on the xz-plane.
func DtIntersectSegSeg2D(ap, aq, bp, bq []float32) (s, t float32, ok bool) {
	var u, v, w [3]float32
	common.Vsub(u[:], aq, ap)
	common.Vsub(v[:], bq, bp)
	common.Vsub(w[:], ap, bp)
	d := vperpXZ(u[:], v[:])
	if common.Abs(d) < 1e-6 {
		return 0, 0, false
	}
	s = vperpXZ(v[:], w[:]) / d
	t = vperpXZ(u[:], w[:]) / d
	return s, t, true
}

func projectPoly(axis, poly []float32, npoly int) (rmin, rmax float32) {
	rmin = common.Vdot2D(axis, poly)
	rmax = rmin
	for i := 1; i < npoly; i++ {
		d := common.Vdot2D(axis, poly[i*3:])
		rmin = min(rmin, d)
		rmax = max(rmax, d)
	}
	return rmin, rmax
}

func overlapRange(amin, amax, bmin, bmax, eps float32) bool {
	return !((amin+eps) > bmax || (amax-eps) < bmin)
}

// / Determines if the two convex polygons overlap on the xz-plane.
// / All vertices are projected onto the xz-plane, so the y-values are ignored.
func DtOverlapPolyPoly2D(polya []float32, npolya int, polyb []float32, npolyb int) bool {
	const eps = 1e-4
	for i, j := 0, npolya-1; i < npolya; j, i = i, i+1 {
		va := polya[j*3:]
		vb := polya[i*3:]
		n := []float32{vb[2] - va[2], 0, -(vb[0] - va[0])}
		amin, amax := projectPoly(n, polya, npolya)
		bmin, bmax := projectPoly(n, polyb, npolyb)
		if !overlapRange(amin, amax, bmin, bmax, eps) {
			// Found separating axis
			return false
		}
	}
	for i, j := 0, npolyb-1; i < npolyb; j, i = i, i+1 {
		va := polyb[j*3:]
		vb := polyb[i*3:]
		n := []float32{vb[2] - va[2], 0, -(vb[0] - va[0])}
		amin, amax := projectPoly(n, polya, npolya)
		bmin, bmax := projectPoly(n, polyb, npolyb)
		if !overlapRange(amin, amax, bmin, bmax, eps) {
			return false
		}
	}
	return true
}

// DtRandomPointInConvexPoly picks a point inside a convex polygon from two uniform samples.
// areas is scratch space of at least npts elements.
func DtRandomPointInConvexPoly(pts []float32, npts int, areas []float32, s, t float32) (out [3]float32) {
	// Calc triangle araes
	var areasum float32
	for i := 2; i < npts; i++ {
		areas[i] = common.TriArea2D(pts, pts[(i-1)*3:], pts[i*3:])
		areasum += max(0.001, areas[i])
	}
	// Find sub triangle weighted by area.
	thr := s * areasum
	var acc float32
	u := float32(1.0)
	tri := npts - 1
	for i := 2; i < npts; i++ {
		dacc := areas[i]
		if thr >= acc && thr < (acc+dacc) {
			u = (thr - acc) / dacc
			tri = i
			break
		}
		acc += dacc
	}

	v := common.Sqrt(t)

	a := 1 - v
	b := (1 - u) * v
	c := u * v
	pa := pts[0:]
	pb := pts[(tri-1)*3:]
	pc := pts[tri*3:]

	out[0] = a*pa[0] + b*pb[0] + c*pc[0]
	out[1] = a*pa[1] + b*pb[1] + c*pc[1]
	out[2] = a*pa[2] + b*pb[2] + c*pc[2]
	return out
}

// / Determines if two axis-aligned bounding boxes overlap.
func DtOverlapQuantBounds(amin, amax, bmin, bmax []uint16) bool {
	if amin[0] > bmax[0] || amax[0] < bmin[0] {
		return false
	}
	if amin[1] > bmax[1] || amax[1] < bmin[1] {
		return false
	}
	if amin[2] > bmax[2] || amax[2] < bmin[2] {
		return false
	}
	return true
}

// DtOppositeTile returns the side code facing the given neighbour side.
func DtOppositeTile(side int) int { return (side + 4) & 0x7 }
