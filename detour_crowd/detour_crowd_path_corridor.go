package detour_crowd

import (
	"github.com/gorustyt/navrt/common"
	"github.com/gorustyt/navrt/detour"
)

// findFurthestCommon returns the last index pair (path, visited) naming the same polygon,
// scanning the path from its end, or -1, -1.
func findFurthestCommon(path, visited []detour.DtPolyRef) (furthestPath, furthestVisited int) {
	for i := len(path) - 1; i >= 0; i-- {
		for j := len(visited) - 1; j >= 0; j-- {
			if path[i] == visited[j] {
				return i, j
			}
		}
	}
	return -1, -1
}

// MergeCorridorStartMoved replaces the start of path with the polygons walked through
// by a surface move. Polygons walked past are discarded from the front. A result
// that still exceeds maxPath loses polygons at the far end, which a later replan
// restores.
func MergeCorridorStartMoved(path []detour.DtPolyRef, maxPath int, visited []detour.DtPolyRef) []detour.DtPolyRef {
	furthestPath, furthestVisited := findFurthestCommon(path, visited)

	// If no intersection found just return current path.
	if furthestPath == -1 || furthestVisited == -1 {
		return path
	}

	// Concatenate paths.
	// Adjust beginning of the buffer to include the visited.
	req := len(visited) - furthestVisited
	orig := min(furthestPath+1, len(path))
	size := max(0, len(path)-orig)
	if req+size > maxPath {
		size = max(0, maxPath-req)
	}

	out := make([]detour.DtPolyRef, req+size, max(maxPath, req+size))
	copy(out[req:], path[orig:orig+size])
	// Store visited
	for i := 0; i < req; i++ {
		out[i] = visited[(len(visited)-1)-i]
	}
	return out
}

// MergeCorridorEndMoved appends the polygons walked through by a target move.
func MergeCorridorEndMoved(path []detour.DtPolyRef, maxPath int, visited []detour.DtPolyRef) []detour.DtPolyRef {
	furthestPath, furthestVisited := -1, -1

	// Find furthest common polygon.
	for i := 0; i < len(path) && furthestPath == -1; i++ {
		for j := len(visited) - 1; j >= 0; j-- {
			if path[i] == visited[j] {
				furthestPath = i
				furthestVisited = j
				break
			}
		}
	}

	// If no intersection found just return current path.
	if furthestPath == -1 || furthestVisited == -1 {
		return path
	}

	// Concatenate paths.
	ppos := furthestPath + 1
	vpos := furthestVisited + 1
	count := max(0, min(len(visited)-vpos, maxPath-ppos))
	common.AssertTrue(ppos+count <= maxPath, "corridor end merge overflow")

	out := make([]detour.DtPolyRef, ppos+count, maxPath)
	copy(out, path[:ppos])
	copy(out[ppos:], visited[vpos:vpos+count])
	return out
}

// MergeCorridorStartShortcut replaces the start of path with a shortcut found by a
// raycast or a local search.
func MergeCorridorStartShortcut(path []detour.DtPolyRef, maxPath int, visited []detour.DtPolyRef) []detour.DtPolyRef {
	furthestPath, furthestVisited := findFurthestCommon(path, visited)

	// If no intersection found just return current path.
	if furthestPath == -1 || furthestVisited == -1 {
		return path
	}

	// Adjust beginning of the buffer to include the visited.
	req := furthestVisited
	if req <= 0 {
		return path
	}

	orig := furthestPath
	size := max(0, len(path)-orig)
	if req+size > maxPath {
		size = max(0, maxPath-req)
	}

	out := make([]detour.DtPolyRef, req+size, max(maxPath, req+size))
	copy(out[req:], path[orig:orig+size])
	// Store visited
	copy(out, visited[:req])
	return out
}

// / Represents a dynamic polygon corridor used to plan agent movement.
// /
// / The corridor is loaded with a path, usually from FindPath, and then keeps the
// / position in its first polygon and the target in its last as both move. Moves use
// / local surface searches, so they work best in small increments. The path never
// / grows past its capacity. Walked polygons are the oldest and are discarded from
// / the front on every move, so at the cap only polygons ahead remain and a merge
// / that overflows drops polygons from the far end.
type PathCorridor struct {
	m_pos     [3]float32
	m_target  [3]float32
	m_path    []detour.DtPolyRef
	m_maxPath int
}

func NewPathCorridor(maxPath int) *PathCorridor {
	common.AssertTrue(maxPath >= 3, "corridor capacity")
	return &PathCorridor{
		m_path:    make([]detour.DtPolyRef, 0, maxPath),
		m_maxPath: maxPath,
	}
}

// / Gets the current position within the corridor. (In the first polygon.)
func (d *PathCorridor) GetPos() [3]float32 { return d.m_pos }

// / Gets the current target within the corridor. (In the last polygon.)
func (d *PathCorridor) GetTarget() [3]float32 { return d.m_target }

// / The polygon reference id of the first polygon in the corridor, the polygon containing the position.
func (d *PathCorridor) GetFirstPoly() detour.DtPolyRef {
	if len(d.m_path) > 0 {
		return d.m_path[0]
	}
	return 0
}

// / The polygon reference id of the last polygon in the corridor, the polygon containing the target.
func (d *PathCorridor) GetLastPoly() detour.DtPolyRef {
	if len(d.m_path) > 0 {
		return d.m_path[len(d.m_path)-1]
	}
	return 0
}

func (d *PathCorridor) GetPath() []detour.DtPolyRef { return d.m_path }
func (d *PathCorridor) GetPathCount() int           { return len(d.m_path) }
func (d *PathCorridor) GetMaxPath() int             { return d.m_maxPath }

// / Resets the path corridor to a single polygon with the target equal to the position.
func (d *PathCorridor) Reset(ref detour.DtPolyRef, pos []float32) {
	copy(d.m_pos[:], pos)
	copy(d.m_target[:], pos)
	d.m_path = append(d.m_path[:0], ref)
}

// / Finds the corners in the corridor from the position toward the target.
// / At most maxCorners-1 corners are returned. If the target is within range it is
// / the last corner with a zero polygon reference.
func (d *PathCorridor) FindCorners(maxCorners int, navquery *detour.DtNavMeshQuery) *detour.DtStraightPath {
	const MIN_TARGET_DIST = 0.01

	corners, status := navquery.FindStraightPath(d.m_pos[:], d.m_target[:], d.m_path, maxCorners, 0)
	if status.Failed() || corners == nil {
		return &detour.DtStraightPath{}
	}

	// Prune points in the beginning of the path which are too close.
	for corners.Len() > 0 {
		if corners.Flags[0]&detour.DT_STRAIGHTPATH_OFFMESH_CONNECTION != 0 ||
			common.Vdist2DSqr(corners.Points[0][:], d.m_pos[:]) > common.Sqr(float32(MIN_TARGET_DIST)) {
			break
		}
		corners.Points = corners.Points[1:]
		corners.Flags = corners.Flags[1:]
		corners.Refs = corners.Refs[1:]
	}

	// Prune points after an off-mesh connection.
	for i := range corners.Flags {
		if corners.Flags[i]&detour.DT_STRAIGHTPATH_OFFMESH_CONNECTION != 0 {
			corners.Points = corners.Points[:i+1]
			corners.Flags = corners.Flags[:i+1]
			corners.Refs = corners.Refs[:i+1]
			break
		}
	}
	return corners
}

// / Attempts to optimize the path if the specified point is visible from the current position.
// / The corridor changes only if next is visible and walking straight to it beats the
// / existing path. Not suitable for long distance searches.
func (d *PathCorridor) OptimizePathVisibility(next []float32, pathOptimizationRange float32,
	navquery *detour.DtNavMeshQuery, filter *detour.DtQueryFilter) {
	// Clamp the ray to max distance.
	var goal [3]float32
	copy(goal[:], next)
	dist := common.Vdist2D(d.m_pos[:], goal[:])

	// If too close to the goal, do not try to optimize.
	if dist < 0.01 {
		return
	}

	// Overshoot a little. This helps to optimize open fields in tiled meshes.
	dist = min(dist+0.01, pathOptimizationRange)

	// Adjust ray length.
	var delta [3]float32
	common.Vsub(delta[:], goal[:], d.m_pos[:])
	common.Vmad(goal[:], d.m_pos[:], delta[:], pathOptimizationRange/dist)

	const MAX_RES = 32
	hit, status := navquery.Raycast(d.m_path[0], d.m_pos[:], goal[:], filter, 0, MAX_RES, 0)
	if status.Failed() || hit == nil {
		return
	}
	if len(hit.Path) > 1 && hit.T > 0.99 {
		d.m_path = MergeCorridorStartShortcut(d.m_path, d.m_maxPath, hit.Path)
	}
}

// / Attempts to optimize the path using a local area search (partial replanning).
// / Returns true if the corridor was changed.
func (d *PathCorridor) OptimizePathTopology(navquery *detour.DtNavMeshQuery, filter *detour.DtQueryFilter) bool {
	if len(d.m_path) < 3 {
		return false
	}

	const MAX_ITER = 32
	const MAX_RES = 32

	navquery.InitSlicedFindPath(d.m_path[0], d.m_path[len(d.m_path)-1], d.m_pos[:], d.m_target[:], filter)
	navquery.UpdateSlicedFindPath(MAX_ITER)
	res, status := navquery.FinalizeSlicedFindPathPartial(d.m_path, MAX_RES)
	if status.Succeed() && len(res) > 0 {
		d.m_path = MergeCorridorStartShortcut(d.m_path, d.m_maxPath, res)
		return true
	}
	return false
}

// MoveOverOffmeshConnection advances the path over the off-mesh connection and
// returns the polygon before it, the connection itself and its end points.
func (d *PathCorridor) MoveOverOffmeshConnection(offMeshConRef detour.DtPolyRef, navquery *detour.DtNavMeshQuery) (
	refs [2]detour.DtPolyRef, startPos, endPos [3]float32, ok bool) {
	// Advance the path up to and over the off-mesh connection.
	var prevRef detour.DtPolyRef
	polyRef := d.m_path[0]
	npos := 0
	for npos < len(d.m_path) && polyRef != offMeshConRef {
		prevRef = polyRef
		polyRef = d.m_path[npos]
		npos++
	}
	if npos == len(d.m_path) {
		// Could not find offMeshConRef
		return refs, startPos, endPos, false
	}

	// Prune path
	d.m_path = append(d.m_path[:0], d.m_path[npos:]...)

	refs[0] = prevRef
	refs[1] = polyRef

	nav := navquery.GetAttachedNavMesh()
	startPos, endPos, status := nav.GetOffMeshConnectionPolyEndPoints(refs[0], refs[1])
	if status.Succeed() {
		d.m_pos = endPos
		return refs, startPos, endPos, true
	}
	return refs, startPos, endPos, false
}

// / Moves the position from the current location to the desired location, adjusting the corridor as needed to reflect the change.
// / The new position lies in the adjusted corridor's first polygon and differs from
// / npos when npos is off the mesh or out of reach of a local search.
func (d *PathCorridor) MovePosition(npos []float32, navquery *detour.DtNavMeshQuery, filter *detour.DtQueryFilter) bool {
	// Move along navmesh and update new position.
	const MAX_VISITED = 16
	result, visited, status := navquery.MoveAlongSurface(d.m_path[0], d.m_pos[:], npos, filter, MAX_VISITED)
	if status.Failed() {
		return false
	}
	d.m_path = MergeCorridorStartMoved(d.m_path, d.m_maxPath, visited)

	// Adjust the position to stay on top of the navmesh.
	if h, st := navquery.GetPolyHeight(d.m_path[0], result[:]); st.Succeed() {
		result[1] = h
	} else {
		result[1] = d.m_pos[1]
	}
	d.m_pos = result
	return true
}

// / Moves the target from the current location to the desired location, adjusting the corridor as needed to reflect the change.
func (d *PathCorridor) MoveTargetPosition(npos []float32, navquery *detour.DtNavMeshQuery, filter *detour.DtQueryFilter) bool {
	// Move along navmesh and update new position.
	const MAX_VISITED = 16
	result, visited, status := navquery.MoveAlongSurface(d.m_path[len(d.m_path)-1], d.m_target[:], npos, filter, MAX_VISITED)
	if status.Failed() {
		return false
	}
	d.m_path = MergeCorridorEndMoved(d.m_path, d.m_maxPath, visited)
	d.m_target = result
	return true
}

// / Loads a new path and target into the corridor.
// / The position is expected to be within the first polygon of the path and the
// / target within the last. A path longer than the capacity is cut at the far end
// / and the corridor's last polygon no longer holds the target until a replan.
func (d *PathCorridor) SetCorridor(target []float32, path []detour.DtPolyRef) {
	common.AssertTrue(len(path) > 0, "empty corridor")
	copy(d.m_target[:], target)
	n := min(len(path), d.m_maxPath)
	d.m_path = append(d.m_path[:0], path[:n]...)
}

// FixPathStart replaces the first polygon with safeRef and forces the next step
// through a placeholder so that the corridor is replanned.
func (d *PathCorridor) FixPathStart(safeRef detour.DtPolyRef, safePos []float32) bool {
	copy(d.m_pos[:], safePos)
	if len(d.m_path) < 3 && len(d.m_path) > 0 {
		last := d.m_path[len(d.m_path)-1]
		d.m_path = append(d.m_path[:0], safeRef, 0, last)
	} else if len(d.m_path) > 0 {
		d.m_path[0] = safeRef
		d.m_path[1] = 0
	} else {
		d.m_path = append(d.m_path, safeRef)
	}
	return true
}

// TrimInvalidPath keeps the valid prefix of the corridor. When even the first polygon
// is invalid the corridor collapses to safeRef at safePos.
func (d *PathCorridor) TrimInvalidPath(safeRef detour.DtPolyRef, safePos []float32,
	navquery *detour.DtNavMeshQuery, filter *detour.DtQueryFilter) bool {
	// Keep valid path as far as possible.
	n := 0
	for n < len(d.m_path) && navquery.IsValidPolyRef(d.m_path[n], filter) {
		n++
	}

	if n == len(d.m_path) {
		// All valid, no need to fix.
		return true
	} else if n == 0 {
		// The first polyref is bad, use current safe values.
		copy(d.m_pos[:], safePos)
		d.m_path = append(d.m_path[:0], safeRef)
	} else {
		// The path is partially usable.
		d.m_path = d.m_path[:n]
	}

	// Clamp target pos to last poly
	if tgt, status := navquery.ClosestPointOnPolyBoundary(d.m_path[len(d.m_path)-1], d.m_target[:]); status.Succeed() {
		d.m_target = tgt
	}
	return true
}

// / Checks the current corridor path to see if its polygon references remain valid.
// / The path can be invalidated by a tile rebuild or by a polygon that no longer passes the filter.
func (d *PathCorridor) IsValid(maxLookAhead int, navquery *detour.DtNavMeshQuery, filter *detour.DtQueryFilter) bool {
	// Check that all polygons still pass query filter.
	n := min(len(d.m_path), maxLookAhead)
	for i := 0; i < n; i++ {
		if !navquery.IsValidPolyRef(d.m_path[i], filter) {
			return false
		}
	}
	return true
}
