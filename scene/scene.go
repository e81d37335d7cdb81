// Package scene wraps a navmesh, an optional tile cache, a crowd and a set of
// kinematic movers behind a single tick.
package scene

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorustyt/navrt/common/logger"
	"github.com/gorustyt/navrt/config"
	"github.com/gorustyt/navrt/detour"
	"github.com/gorustyt/navrt/detour_crowd"
	"github.com/gorustyt/navrt/detour_tile_cache"
	"go.uber.org/zap"
)

var (
	ErrStaticScene  = errors.New("scene: obstacles need a tile cache")
	ErrCrowdFull    = errors.New("scene: crowd is full")
	ErrNoAgent      = errors.New("scene: no such agent")
	ErrMoverExists  = errors.New("scene: mover id in use")
	ErrOffMesh      = errors.New("scene: position is not on the navmesh")
	ErrUnknownArea  = errors.New("scene: unknown area")
	ErrNotInScene   = errors.New("scene: mover is not in a scene")
	ErrMoverBlocked = errors.New("scene: position overlaps another mover")
)

// Scene is safe for concurrent use. Tick advances the tile cache by one
// rebuild step, then the crowd, then the movers.
type Scene struct {
	mu sync.Mutex

	id  uuid.UUID
	log *zap.Logger

	grid    *detour.GridMeshParams
	nav     *detour.DtNavMesh
	query   *detour.DtNavMeshQuery
	tc      *detour_tile_cache.TileCache
	crowd   *detour_crowd.Crowd
	islands *detour.DtIslandManager
	filter  *detour.DtQueryFilter

	halfExtents [3]float32
	rand        *rand.Rand

	movers   map[uint64]*Mover
	aoi      *detour_crowd.ProximityGrid
	aoiIndex []*Mover
	aoiDirty bool

	// Obstacle changes not yet rebuilt into the navmesh.
	cacheBusy bool
	// Tile rebuilds the island labels account for.
	rebuilds int

	ticks int
}

// GridParams converts the map section of the configuration into grid mesh parameters.
func GridParams(m *config.MapConfig) (*detour.GridMeshParams, error) {
	areas := make([]uint8, len(m.Areas))
	for i, a := range m.Areas {
		id, ok := AreaByName(a.Area)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownArea, a.Area)
		}
		areas[i] = id
	}
	areaAt := func(x, z int) uint8 {
		// Later rectangles win.
		for i := len(m.Areas) - 1; i >= 0; i-- {
			if m.Areas[i].Contains(x, z) {
				return areas[i]
			}
		}
		return AREA_GROUND
	}
	return &detour.GridMeshParams{
		Orig:       m.Origin,
		CellSize:   m.CellSize,
		CellHeight: m.CellHeight,
		TileCells:  m.TileCells,
		TilesX:     m.TilesX,
		TilesZ:     m.TilesZ,
		Walkable: func(x, z int) bool {
			for _, r := range m.Blocked {
				if r.Contains(x, z) {
					return false
				}
			}
			return true
		},
		Area:           areaAt,
		Flags:          func(x, z int) uint16 { return AreaFlags(areaAt(x, z)) },
		WalkableHeight: m.WalkableHeight,
		WalkableRadius: m.WalkableRadius,
		WalkableClimb:  m.WalkableClimb,
	}, nil
}

// NewTileCache compresses every tile of the configured grid into a new tile cache.
func NewTileCache(cfg *config.Config, log *zap.Logger) (*detour_tile_cache.TileCache, error) {
	p, err := GridParams(&cfg.NavMesh)
	if err != nil {
		return nil, err
	}
	tc, err := detour_tile_cache.NewTileCache(tileCacheParams(cfg, p), detour_tile_cache.S2Compressor{}, meshProcess, log)
	if err != nil {
		return nil, err
	}
	if _, status := tc.AddGridLayers(p); status.Failed() {
		return nil, fmt.Errorf("scene: compress tiles: %w", status.Err())
	}
	return tc, nil
}

func tileCacheParams(cfg *config.Config, p *detour.GridMeshParams) *detour_tile_cache.DtTileCacheParams {
	params := detour_tile_cache.GridTileCacheParams(p, cfg.TileCache.MaxObstacles)
	if cfg.TileCache.MaxSimplificationError > 0 {
		params.MaxSimplificationError = cfg.TileCache.MaxSimplificationError
	}
	return params
}

// TileCacheParams returns the tile cache parameters New uses for cfg.
func TileCacheParams(cfg *config.Config) (*detour_tile_cache.DtTileCacheParams, error) {
	p, err := GridParams(&cfg.NavMesh)
	if err != nil {
		return nil, err
	}
	return tileCacheParams(cfg, p), nil
}

// New builds the scene described by cfg. With the tile cache enabled the
// navmesh is built from compressed layers and obstacles can be added.
func New(cfg *config.Config, log *zap.Logger) (*Scene, error) {
	if !cfg.TileCache.Enabled {
		return newScene(cfg, nil, log)
	}
	tc, err := NewTileCache(cfg, log)
	if err != nil {
		return nil, err
	}
	return newScene(cfg, tc, log)
}

// NewWithTileCache builds a dynamic scene around an existing tile cache, e.g.
// one loaded from a tilestore. The cache's mesh-process hook is replaced.
func NewWithTileCache(cfg *config.Config, tc *detour_tile_cache.TileCache, log *zap.Logger) (*Scene, error) {
	if tc == nil {
		return nil, fmt.Errorf("scene: nil tile cache: %w", detour.ErrInvalidParam)
	}
	return newScene(cfg, tc, log)
}

func newScene(cfg *config.Config, tc *detour_tile_cache.TileCache, log *zap.Logger) (*Scene, error) {
	s := &Scene{
		id:          uuid.New(),
		filter:      NewDefaultFilter(),
		halfExtents: cfg.Query.HalfExtents,
		rand:        rand.New(rand.NewSource(cfg.Scenario.Seed)),
		movers:      make(map[uint64]*Mover),
		tc:          tc,
	}
	s.log = logger.OrNop(log).With(zap.Stringer("scene", s.id))

	var err error
	if s.grid, err = GridParams(&cfg.NavMesh); err != nil {
		return nil, err
	}

	var status detour.DtStatus
	if tc == nil {
		if s.nav, status = detour.NewGridNavMesh(s.grid); status.Failed() {
			return nil, fmt.Errorf("scene: build navmesh: %w", status.Err())
		}
	} else {
		tc.SetLogger(s.log)
		tc.SetMeshProcess(meshProcess)
		if s.nav, status = detour.NewDtNavMesh(s.grid.NavMeshParams()); status.Failed() {
			return nil, fmt.Errorf("scene: navmesh: %w", status.Err())
		}
		if status = tc.BuildAll(s.nav); status.Failed() {
			return nil, fmt.Errorf("scene: build tiles: %w", status.Err())
		}
		s.cacheBusy = true
	}

	if s.query, status = detour.NewDtNavMeshQuery(s.nav, cfg.Query.MaxNodes); status.Failed() {
		return nil, fmt.Errorf("scene: navmesh query: %w", status.Err())
	}
	if s.crowd, err = detour_crowd.NewCrowd(cfg.Crowd, s.nav, s.log); err != nil {
		return nil, err
	}
	s.crowd.SetFilter(0, s.filter)
	s.islands = detour.NewDtIslandManager(s.nav, s.filter)
	s.islands.Build()
	s.crowd.SetIslands(s.islands)
	if tc != nil {
		s.rebuilds = tc.Rebuilds()
	}

	s.aoi = detour_crowd.NewProximityGrid(1024, max(cfg.Crowd.MaxAgentRadius*4, s.grid.CellSize*4))

	bmin, bmax := s.bounds()
	s.log.Info("scene created",
		zap.Bool("dynamic", tc != nil),
		zap.Int("islands", s.islands.Count()),
		zap.Float32s("bmin", bmin[:]),
		zap.Float32s("bmax", bmax[:]))
	return s, nil
}

func (s *Scene) ID() uuid.UUID                           { return s.id }
func (s *Scene) NavMesh() *detour.DtNavMesh              { return s.nav }
func (s *Scene) Query() *detour.DtNavMeshQuery           { return s.query }
func (s *Scene) Crowd() *detour_crowd.Crowd              { return s.crowd }
func (s *Scene) TileCache() *detour_tile_cache.TileCache { return s.tc }
func (s *Scene) Islands() *detour.DtIslandManager        { return s.islands }
func (s *Scene) DefaultFilter() *detour.DtQueryFilter    { return s.filter }
func (s *Scene) Dynamic() bool                           { return s.tc != nil }
func (s *Scene) GridParams() *detour.GridMeshParams      { return s.grid }

func (s *Scene) Bounds() (bmin, bmax [3]float32) { return s.bounds() }

func (s *Scene) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

func (s *Scene) bounds() (bmin, bmax [3]float32) {
	bmin = s.grid.Orig
	bmax = [3]float32{
		bmin[0] + float32(s.grid.TilesX)*s.grid.TileWidth(),
		bmin[1] + s.grid.WalkableHeight,
		bmin[2] + float32(s.grid.TilesZ)*s.grid.TileWidth(),
	}
	return bmin, bmax
}

// Tick advances the scene by dt seconds.
func (s *Scene) Tick(dt float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.tc != nil && s.cacheBusy {
		upToDate, status := s.tc.Update(dt, s.nav)
		if status.Failed() {
			err = fmt.Errorf("scene: tile cache update: %w", status.Err())
		}
		// Tiles were replaced, connectivity may have changed.
		if n := s.tc.Rebuilds(); n != s.rebuilds {
			s.rebuilds = n
			s.islands.Build()
		}
		s.cacheBusy = !upToDate
		if upToDate {
			s.log.Debug("navmesh up to date", zap.Int("tick", s.ticks), zap.Int("islands", s.islands.Count()))
		}
	}

	s.crowd.Update(dt, nil)

	ids := make([]uint64, 0, len(s.movers))
	for id := range s.movers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s.movers[id].update(dt)
	}
	s.ticks++
	return err
}

// UpToDate reports whether every obstacle change has been rebuilt into the navmesh.
func (s *Scene) UpToDate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cacheBusy
}

func (s *Scene) addObstacle(add func() (detour_tile_cache.DtObstacleRef, detour.DtStatus)) (detour_tile_cache.DtObstacleRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tc == nil {
		return 0, ErrStaticScene
	}
	ref, status := add()
	if status.Failed() {
		return 0, fmt.Errorf("scene: add obstacle: %w", status.Err())
	}
	s.cacheBusy = true
	return ref, nil
}

// AddCapsuleObstacle blocks a vertical cylinder standing on pos.
func (s *Scene) AddCapsuleObstacle(pos []float32, radius, height float32) (detour_tile_cache.DtObstacleRef, error) {
	return s.addObstacle(func() (detour_tile_cache.DtObstacleRef, detour.DtStatus) {
		return s.tc.AddObstacle(pos, radius, height)
	})
}

func (s *Scene) AddBoxObstacle(bmin, bmax []float32) (detour_tile_cache.DtObstacleRef, error) {
	return s.addObstacle(func() (detour_tile_cache.DtObstacleRef, detour.DtStatus) {
		return s.tc.AddBoxObstacle(bmin, bmax)
	})
}

func (s *Scene) AddOrientedBoxObstacle(center, halfExtents []float32, yRadians float32) (detour_tile_cache.DtObstacleRef, error) {
	return s.addObstacle(func() (detour_tile_cache.DtObstacleRef, detour.DtStatus) {
		return s.tc.AddOrientedBoxObstacle(center, halfExtents, yRadians)
	})
}

func (s *Scene) RemoveObstacle(ref detour_tile_cache.DtObstacleRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tc == nil {
		return ErrStaticScene
	}
	if status := s.tc.RemoveObstacle(ref); status.Failed() {
		return fmt.Errorf("scene: remove obstacle: %w", status.Err())
	}
	s.cacheBusy = true
	return nil
}

// AddAgent places a crowd agent on the navmesh near pos.
func (s *Scene) AddAgent(pos []float32, params detour_crowd.CrowdAgentParams) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.crowd.AddAgent(pos, params)
	if idx < 0 {
		return -1, ErrCrowdFull
	}
	return idx, nil
}

func (s *Scene) RemoveAgent(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent(idx) == nil {
		return ErrNoAgent
	}
	s.crowd.RemoveAgent(idx)
	return nil
}

func (s *Scene) agent(idx int) *detour_crowd.CrowdAgent {
	if ag := s.crowd.GetAgent(idx); ag != nil && ag.Active {
		return ag
	}
	return nil
}

// RequestMoveTarget snaps pos to the navmesh and hands it to the crowd.
func (s *Scene) RequestMoveTarget(idx int, pos []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ag := s.agent(idx)
	if ag == nil {
		return ErrNoAgent
	}
	ext := s.crowd.GetQueryHalfExtents()
	ref, nearest, _, status := s.query.FindNearestPoly(pos, ext[:], s.crowd.GetFilter(ag.Params.QueryFilterType))
	if status.Failed() || ref == 0 {
		return ErrOffMesh
	}
	if !s.crowd.RequestMoveTarget(idx, ref, nearest[:]) {
		return ErrNoAgent
	}
	return nil
}

// AgentState is a copy of the externally interesting agent fields.
type AgentState struct {
	Pos         [3]float32
	Vel         [3]float32
	State       detour_crowd.CrowdAgentState
	TargetState detour_crowd.MoveRequestState
	Partial     bool
}

func (s *Scene) Agent(idx int) (AgentState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ag := s.agent(idx)
	if ag == nil {
		return AgentState{}, false
	}
	return AgentState{Pos: ag.Npos, Vel: ag.Vel, State: ag.State, TargetState: ag.TargetState, Partial: ag.Partial}, true
}

// PathExists reports whether a path between the polygons under a and b may exist.
func (s *Scene) PathExists(a, b []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, _, _, sa := s.query.FindNearestPoly(a, s.halfExtents[:], s.filter)
	rb, _, _, sb := s.query.FindNearestPoly(b, s.halfExtents[:], s.filter)
	if sa.Failed() || sb.Failed() || ra == 0 || rb == 0 {
		return false
	}
	return s.islands.CheckPathExists(ra, rb)
}

// FindPath runs a full path search between the polygons under start and end.
func (s *Scene) FindPath(start, end []float32) ([]detour.DtPolyRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sref, _, _, status := s.query.FindNearestPoly(start, s.halfExtents[:], s.filter)
	if status.Failed() || sref == 0 {
		return nil, ErrOffMesh
	}
	eref, _, _, status := s.query.FindNearestPoly(end, s.halfExtents[:], s.filter)
	if status.Failed() || eref == 0 {
		return nil, ErrOffMesh
	}
	path, status := s.query.FindPath(sref, eref, start, end, s.filter, 256)
	if status.Failed() {
		return nil, status.Err()
	}
	return path, nil
}
