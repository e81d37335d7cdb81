package scene

import (
	"github.com/gorustyt/navrt/common"
	"github.com/gorustyt/navrt/detour"
	"github.com/gorustyt/navrt/detour_crowd"
	"go.uber.org/zap"
)

var DEFAULT_HALF_EXTENTS = [3]float32{0.6, 2.0, 0.6}

const (
	maxMoveVisited   = 16
	maxRandomRetries = 32
	moveEpsilon      = 1e-4
	maxAOIPool       = 0xfffe
)

// Mover is a kinematic body sliding along the navmesh surface with a fixed
// velocity. It stops when it runs into a wall or into another mover.
type Mover struct {
	id          uint64
	scene       *Scene
	halfExtents [3]float32
	pos         [3]float32
	vel         [3]float32
	ref         detour.DtPolyRef
	filter      *detour.DtQueryFilter

	// OnHit is called from Tick when the mover stops; other is nil for walls.
	OnHit func(m, other *Mover)
}

type MoveResult struct {
	Pos [3]float32
	Ref detour.DtPolyRef
	// Hit is set when the surface stopped the move short of the requested end.
	Hit bool
}

// AddMover registers a mover. It is not placed until SetPosition or RandomPosition.
func (s *Scene) AddMover(id uint64, halfExtents []float32) (*Mover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movers[id]; ok || id == 0 {
		return nil, ErrMoverExists
	}
	m := &Mover{id: id, scene: s, halfExtents: DEFAULT_HALF_EXTENTS}
	if len(halfExtents) >= 3 {
		copy(m.halfExtents[:], halfExtents)
	}
	s.movers[id] = m
	s.aoiDirty = true
	return m, nil
}

func (s *Scene) RemoveMover(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.movers[id]; ok {
		m.scene = nil
		delete(s.movers, id)
		s.aoiDirty = true
	}
}

func (s *Scene) Mover(id uint64) *Mover {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.movers[id]
}

func (s *Scene) MoverCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.movers)
}

func (s *Scene) rebuildAOI() {
	if !s.aoiDirty {
		return
	}
	s.aoiIndex = s.aoiIndex[:0]
	for _, m := range s.movers {
		if m.ref != 0 {
			s.aoiIndex = append(s.aoiIndex, m)
		}
	}
	cs := s.aoi.GetCellSize()
	need := 1
	for _, m := range s.aoiIndex {
		cx := int(m.halfExtents[0]*2/cs) + 2
		cz := int(m.halfExtents[2]*2/cs) + 2
		need += cx * cz
	}
	if need > s.aoi.GetPoolSize() {
		s.aoi = detour_crowd.NewProximityGrid(min(need, maxAOIPool), cs)
	}
	s.aoi.Clear()
	for i, m := range s.aoiIndex {
		minx, minz, maxx, maxz := m.rect(m.pos[0], m.pos[2])
		s.aoi.AddItem(uint16(i), minx, minz, maxx, maxz)
	}
	s.aoiDirty = false
}

// overlapping returns a placed mover other than m whose rectangle overlaps m's
// rectangle centred on (x, z).
func (s *Scene) overlapping(m *Mover, x, z float32) *Mover {
	s.rebuildAOI()
	minx, minz, maxx, maxz := m.rect(x, z)
	for _, idx := range s.aoi.QueryItems(minx, minz, maxx, maxz, len(s.aoiIndex)) {
		other := s.aoiIndex[idx]
		if other == m {
			continue
		}
		ominx, ominz, omaxx, omaxz := other.rect(other.pos[0], other.pos[2])
		if minx <= omaxx && maxx >= ominx && minz <= omaxz && maxz >= ominz {
			return other
		}
	}
	return nil
}

func (m *Mover) rect(x, z float32) (minx, minz, maxx, maxz float32) {
	return x - m.halfExtents[0], z - m.halfExtents[2], x + m.halfExtents[0], z + m.halfExtents[2]
}

func (m *Mover) ID() uint64 { return m.id }

func (m *Mover) Position() [3]float32 {
	if s := m.scene; s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return m.pos
}

func (m *Mover) Velocity() [3]float32 {
	if s := m.scene; s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return m.vel
}

func (m *Mover) PolyRef() detour.DtPolyRef {
	if s := m.scene; s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return m.ref
}

func (m *Mover) SetVelocity(v []float32) {
	if s := m.scene; s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	copy(m.vel[:], v)
}

// SetFilter overrides the scene's default filter; nil restores it.
func (m *Mover) SetFilter(f *detour.DtQueryFilter) {
	if s := m.scene; s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	m.filter = f
}

func (m *Mover) filterOf() *detour.DtQueryFilter {
	if m.filter != nil {
		return m.filter
	}
	return m.scene.filter
}

// SetPosition snaps pos to the nearest polygon. It fails when pos is off the
// mesh or the mover would overlap another one there.
func (m *Mover) SetPosition(pos []float32) error {
	s := m.scene
	if s == nil {
		return ErrNotInScene
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, nearest, _, status := s.query.FindNearestPoly(pos, m.halfExtents[:], m.filterOf())
	if status.Failed() || ref == 0 {
		return ErrOffMesh
	}
	if s.overlapping(m, nearest[0], nearest[2]) != nil {
		return ErrMoverBlocked
	}
	m.ref = ref
	m.pos = nearest
	s.aoiDirty = true
	return nil
}

// RandomPosition places the mover on a random point of the mesh that does not
// overlap another mover.
func (m *Mover) RandomPosition() error {
	s := m.scene
	if s == nil {
		return ErrNotInScene
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < maxRandomRetries; i++ {
		ref, pt, status := s.query.FindRandomPoint(m.filterOf(), s.rand.Float32)
		if status.Failed() {
			return status.Err()
		}
		if s.overlapping(m, pt[0], pt[2]) != nil {
			continue
		}
		m.ref = ref
		m.pos = pt
		s.aoiDirty = true
		return nil
	}
	return ErrMoverBlocked
}

// TryMove slides from the current position towards end without moving the mover.
func (m *Mover) TryMove(end []float32) (MoveResult, error) {
	s := m.scene
	if s == nil {
		return MoveResult{}, ErrNotInScene
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.tryMove(end)
}

func (m *Mover) tryMove(end []float32) (MoveResult, error) {
	s := m.scene
	filter := m.filterOf()
	start := m.pos
	ref := m.ref
	if !s.nav.IsValidPolyRef(ref) {
		// The tile under the mover was rebuilt.
		var status detour.DtStatus
		ref, start, _, status = s.query.FindNearestPoly(m.pos[:], m.halfExtents[:], filter)
		if status.Failed() || ref == 0 {
			return MoveResult{}, ErrOffMesh
		}
	}

	res, visited, status := s.query.MoveAlongSurface(ref, start[:], end, filter, maxMoveVisited)
	if status.Failed() {
		return MoveResult{}, status.Err()
	}
	out := MoveResult{Pos: res, Ref: ref}
	if len(visited) > 0 {
		out.Ref = visited[len(visited)-1]
	}
	if h, status := s.query.GetPolyHeight(out.Ref, out.Pos[:]); status.Succeed() {
		out.Pos[1] = h
	}
	out.Hit = common.Vdist2DSqr(out.Pos[:], end) > moveEpsilon*moveEpsilon
	return out, nil
}

// Raycast casts a walkability ray towards end. hitPos is only meaningful when hit is set.
func (m *Mover) Raycast(end []float32) (hit bool, hitPos [3]float32, err error) {
	s := m.scene
	if s == nil {
		return false, hitPos, ErrNotInScene
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, status := s.query.Raycast(m.ref, m.pos[:], end, m.filterOf(), 0, maxMoveVisited, 0)
	if status.Failed() {
		return false, hitPos, status.Err()
	}
	if !r.Hit() || r.T > 1 {
		return false, hitPos, nil
	}
	common.Vlerp(hitPos[:], m.pos[:], end, r.T)
	if len(r.Path) > 0 {
		if h, status := s.query.GetPolyHeight(r.Path[len(r.Path)-1], hitPos[:]); status.Succeed() {
			hitPos[1] = h
		}
	}
	return true, hitPos, nil
}

// update is called by Tick with the scene lock held.
func (m *Mover) update(dt float32) {
	if m.vel == [3]float32{} || m.ref == 0 {
		return
	}
	s := m.scene
	end := [3]float32{m.pos[0] + m.vel[0]*dt, m.pos[1] + m.vel[1]*dt, m.pos[2] + m.vel[2]*dt}
	if other := s.overlapping(m, end[0], end[2]); other != nil {
		m.stop(other)
		return
	}
	res, err := m.tryMove(end[:])
	if err != nil {
		s.log.Debug("mover cannot move", zap.Uint64("mover", m.id), zap.Error(err))
		return
	}
	if res.Hit {
		m.stop(nil)
		return
	}
	m.ref = res.Ref
	if res.Pos[0] != m.pos[0] || res.Pos[2] != m.pos[2] {
		s.aoiDirty = true
	}
	m.pos = res.Pos
}

func (m *Mover) stop(other *Mover) {
	m.vel = [3]float32{}
	if m.OnHit != nil {
		m.OnHit(m, other)
	}
}
