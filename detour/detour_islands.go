package detour

// DtIslandManager labels connected components of the navigation graph under a filter.
// Two polygons with the same label are mutually reachable through links whose
// target polygons pass the filter. Labels are stale after a tile is added or removed
// until Build runs again. One-way off-mesh connections are not modelled, labels
// assume links can be walked both ways.
type DtIslandManager struct {
	nav     *DtNavMesh
	filter  *DtQueryFilter
	islands map[DtPolyRef]int32
	count   int32
	stack   []DtPolyRef
}

func NewDtIslandManager(nav *DtNavMesh, filter *DtQueryFilter) *DtIslandManager {
	if filter == nil {
		filter = NewDtQueryFilter()
	}
	return &DtIslandManager{nav: nav, filter: filter, islands: map[DtPolyRef]int32{}}
}

// Build relabels every polygon of the mesh.
func (m *DtIslandManager) Build() {
	clear(m.islands)
	m.count = 0
	for i := 0; i < m.nav.GetMaxTiles(); i++ {
		tile := m.nav.GetTile(i)
		if tile.Header == nil {
			continue
		}
		base := m.nav.GetPolyRefBase(tile)
		for ip := range tile.Polys {
			ref := base | DtPolyRef(ip)
			if _, ok := m.islands[ref]; ok {
				continue
			}
			if !m.filter.PassFilter(ref, tile, &tile.Polys[ip]) {
				continue
			}
			m.count++
			m.flood(ref, m.count)
		}
	}
}

func (m *DtIslandManager) flood(start DtPolyRef, label int32) {
	m.stack = append(m.stack[:0], start)
	m.islands[start] = label
	for len(m.stack) > 0 {
		ref := m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
		tile, poly := m.nav.GetTileAndPolyByRefUnsafe(ref)
		for l := poly.FirstLink; l != DT_NULL_LINK; l = tile.Links[l].Next {
			nei := tile.Links[l].Ref
			if nei == 0 {
				continue
			}
			if _, ok := m.islands[nei]; ok {
				continue
			}
			neiTile, neiPoly := m.nav.GetTileAndPolyByRefUnsafe(nei)
			if !m.filter.PassFilter(nei, neiTile, neiPoly) {
				continue
			}
			m.islands[nei] = label
			m.stack = append(m.stack, nei)
		}
	}
}

// Island returns the label of ref, 0 when the polygon is unknown or filtered out.
func (m *DtIslandManager) Island(ref DtPolyRef) int32 {
	return m.islands[ref]
}

// Covers reports whether the labels hold for searches under filter, that is
// every polygon filter admits also passes the labelling filter. A search under
// a more permissive filter may join islands the labels keep apart.
func (m *DtIslandManager) Covers(filter *DtQueryFilter) bool {
	if filter == nil {
		return false
	}
	if filter == m.filter {
		return true
	}
	return filter.m_includeFlags&^m.filter.m_includeFlags == 0 &&
		m.filter.m_excludeFlags&^filter.m_excludeFlags == 0
}

// Filter returns the filter the labels are built with.
func (m *DtIslandManager) Filter() *DtQueryFilter { return m.filter }

// Count returns the number of islands found by the last Build.
func (m *DtIslandManager) Count() int { return int(m.count) }

// CheckPathExists reports whether end is reachable from start. Unknown polygons are
// assumed reachable so that a stale labelling never rejects a valid request.
func (m *DtIslandManager) CheckPathExists(start, end DtPolyRef) bool {
	a, okA := m.islands[start]
	b, okB := m.islands[end]
	if !okA || !okB {
		return true
	}
	return a == b
}
