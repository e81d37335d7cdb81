package detour_crowd

import (
	"math"

	"github.com/gorustyt/navrt/common"
	"github.com/gorustyt/navrt/detour"
)

const (
	MAX_LOCAL_SEGS  = 8
	MAX_LOCAL_POLYS = 16
)

type boundarySegment struct {
	s [6]float32 ///< Segment start/end
	d float32    ///< Distance for pruning.
}

// LocalBoundary caches the wall segments closest to an agent.
type LocalBoundary struct {
	m_center [3]float32
	m_segs   [MAX_LOCAL_SEGS]boundarySegment
	m_nsegs  int
	m_polys  []detour.DtPolyRef
}

func NewLocalBoundary() *LocalBoundary {
	d := &LocalBoundary{m_polys: make([]detour.DtPolyRef, 0, MAX_LOCAL_POLYS)}
	d.Reset()
	return d
}

func (d *LocalBoundary) GetCenter() [3]float32       { return d.m_center }
func (d *LocalBoundary) GetSegmentCount() int        { return d.m_nsegs }
func (d *LocalBoundary) GetSegment(i int) [6]float32 { return d.m_segs[i].s }

func (d *LocalBoundary) Reset() {
	common.Vset(d.m_center[:], math.MaxFloat32, math.MaxFloat32, math.MaxFloat32)
	d.m_polys = d.m_polys[:0]
	d.m_nsegs = 0
}

// addSegment keeps the segments sorted by distance, dropping the furthest on overflow.
func (d *LocalBoundary) addSegment(dist float32, s []float32) {
	// Insert neighbour based on the distance.
	var i int
	if d.m_nsegs == 0 {
		// First, trivial accept.
		i = 0
	} else if dist >= d.m_segs[d.m_nsegs-1].d {
		// Further than the last segment, skip.
		if d.m_nsegs >= MAX_LOCAL_SEGS {
			return
		}
		// Last, trivial accept.
		i = d.m_nsegs
	} else {
		// Insert inbetween.
		for i = 0; i < d.m_nsegs; i++ {
			if dist <= d.m_segs[i].d {
				break
			}
		}
		tgt := i + 1
		n := min(d.m_nsegs-i, MAX_LOCAL_SEGS-tgt)
		common.AssertTrue(tgt+n <= MAX_LOCAL_SEGS)
		if n > 0 {
			copy(d.m_segs[tgt:tgt+n], d.m_segs[i:i+n])
		}
	}
	seg := &d.m_segs[i]
	seg.d = dist
	copy(seg.s[:], s[:6])
	if d.m_nsegs < MAX_LOCAL_SEGS {
		d.m_nsegs++
	}
}

// Update collects the walls around pos from the non-overlapping polygons near ref.
func (d *LocalBoundary) Update(ref detour.DtPolyRef, pos []float32, collisionQueryRange float32,
	navquery *detour.DtNavMeshQuery, filter *detour.DtQueryFilter) {
	const MAX_SEGS_PER_POLY = detour.DT_VERTS_PER_POLYGON * 3

	if ref == 0 {
		d.Reset()
		return
	}

	copy(d.m_center[:], pos)
	d.m_nsegs = 0
	d.m_polys = d.m_polys[:0]

	// First query non-overlapping polygons.
	polys, status := navquery.FindLocalNeighbourhood(ref, pos, collisionQueryRange, filter, MAX_LOCAL_POLYS)
	if status.Failed() {
		return
	}
	for _, p := range polys {
		d.m_polys = append(d.m_polys, p.Ref)
	}

	// Secondly, store all polygon edges.
	for _, p := range d.m_polys {
		segs, st := navquery.GetPolyWallSegments(p, filter, MAX_SEGS_PER_POLY, false)
		if st.Failed() {
			continue
		}
		for k := 0; k < segs.Len(); k++ {
			s := segs.Verts[k*6 : k*6+6]
			// Skip too distant segments.
			_, distSqr := detour.DtDistancePtSegSqr2D(pos, s[:3], s[3:])
			if distSqr > common.Sqr(collisionQueryRange) {
				continue
			}
			d.addSegment(distSqr, s)
		}
	}
}

// IsValid reports whether every cached polygon still exists and passes the filter.
func (d *LocalBoundary) IsValid(navquery *detour.DtNavMeshQuery, filter *detour.DtQueryFilter) bool {
	if len(d.m_polys) == 0 {
		return false
	}
	// Check that all polygons still pass query filter.
	for _, ref := range d.m_polys {
		if !navquery.IsValidPolyRef(ref, filter) {
			return false
		}
	}
	return true
}
