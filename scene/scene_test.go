package scene

import (
	"context"
	"testing"

	"github.com/gorustyt/navrt/common"
	"github.com/gorustyt/navrt/config"
	"github.com/gorustyt/navrt/detour"
	"github.com/gorustyt/navrt/detour_crowd"
	"github.com/gorustyt/navrt/detour_tile_cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	corridorStart = []float32{1, 0, 4}
	corridorEnd   = []float32{14, 0, 4}
)

// corridorConfig is a 16x8m map of two tiles with a 2m wide walkable corridor
// along z=3..5.
func corridorConfig(dynamic bool) *config.Config {
	cfg := config.Default()
	cfg.NavMesh.TileCells = 16
	cfg.NavMesh.TilesX = 2
	cfg.NavMesh.TilesZ = 1
	cfg.NavMesh.Blocked = []config.Rect{
		{MinX: 0, MinZ: 0, MaxX: 31, MaxZ: 5},
		{MinX: 0, MinZ: 10, MaxX: 31, MaxZ: 15},
	}
	cfg.TileCache.Enabled = dynamic
	cfg.Crowd.MaxAgents = 8
	cfg.Scenario.Seed = 7
	return cfg
}

func newTestScene(t *testing.T, dynamic bool) *Scene {
	t.Helper()
	s, err := New(corridorConfig(dynamic), zaptest.NewLogger(t))
	require.NoError(t, err)
	settle(t, s)
	return s
}

func settle(t *testing.T, s *Scene) {
	t.Helper()
	for i := 0; i < 32; i++ {
		require.NoError(t, s.Tick(0.1))
		if s.UpToDate() {
			return
		}
	}
	t.Fatal("navmesh did not settle")
}

func TestSceneStatic(t *testing.T) {
	s := newTestScene(t, false)
	assert.False(t, s.Dynamic())
	assert.Nil(t, s.TileCache())
	assert.True(t, s.UpToDate())
	assert.Equal(t, 1, s.Islands().Count())

	bmin, bmax := s.Bounds()
	assert.Equal(t, [3]float32{0, 0, 0}, bmin)
	assert.Equal(t, [3]float32{16, 2, 8}, bmax)

	assert.True(t, s.PathExists(corridorStart, corridorEnd))
	path, err := s.FindPath(corridorStart, corridorEnd)
	require.NoError(t, err)
	require.NotEmpty(t, path)
	_, tile0, _ := s.NavMesh().DecodePolyId(path[0])
	_, tile1, _ := s.NavMesh().DecodePolyId(path[len(path)-1])
	assert.NotEqual(t, tile0, tile1)

	_, err = s.FindPath([]float32{4, 0, -5}, corridorEnd)
	assert.ErrorIs(t, err, ErrOffMesh)
	assert.False(t, s.PathExists([]float32{4, 0, -5}, corridorEnd))

	_, err = s.AddCapsuleObstacle([]float32{4, 0, 4}, 1, 2)
	assert.ErrorIs(t, err, ErrStaticScene)
	_, err = s.AddBoxObstacle([]float32{3, 0, 3}, []float32{5, 1, 5})
	assert.ErrorIs(t, err, ErrStaticScene)
	assert.ErrorIs(t, s.RemoveObstacle(1), ErrStaticScene)
}

func TestSceneObstacleBlocksPath(t *testing.T) {
	s := newTestScene(t, true)
	require.True(t, s.Dynamic())
	require.True(t, s.PathExists(corridorStart, corridorEnd))

	// straddles both tiles
	rebuilds := s.TileCache().Rebuilds()
	ref, err := s.AddBoxObstacle([]float32{7, -1, 2.5}, []float32{9, 2, 5.5})
	require.NoError(t, err)
	assert.False(t, s.UpToDate())
	settle(t, s)
	assert.Equal(t, rebuilds+2, s.TileCache().Rebuilds())

	assert.False(t, s.PathExists(corridorStart, corridorEnd))
	assert.Equal(t, 2, s.Islands().Count())

	require.NoError(t, s.RemoveObstacle(ref))
	settle(t, s)
	assert.True(t, s.PathExists(corridorStart, corridorEnd))
	_, err = s.FindPath(corridorStart, corridorEnd)
	assert.NoError(t, err)

	// away from every tile, nothing is rebuilt
	rebuilds = s.TileCache().Rebuilds()
	_, err = s.AddCapsuleObstacle([]float32{40, 0, 40}, 0.5, 1)
	require.NoError(t, err)
	settle(t, s)
	assert.Equal(t, rebuilds, s.TileCache().Rebuilds())
	assert.Equal(t, 1, s.Islands().Count())

	_, err = s.AddOrientedBoxObstacle([]float32{8, 0, 4}, []float32{0.5, 1, 2}, 0.2)
	assert.NoError(t, err)
	_, err = s.AddCapsuleObstacle([]float32{4, 0, 4}, -1, 2)
	assert.ErrorIs(t, err, detour.ErrInvalidParam)
}

func TestSceneAgentArrives(t *testing.T) {
	s := newTestScene(t, false)
	idx, err := s.AddAgent(corridorStart, detour_crowd.DefaultCrowdAgentParams(0.3, 2))
	require.NoError(t, err)
	require.NoError(t, s.RequestMoveTarget(idx, corridorEnd))

	assert.ErrorIs(t, s.RequestMoveTarget(idx, []float32{4, 0, -10}), ErrOffMesh)
	assert.ErrorIs(t, s.RequestMoveTarget(5, corridorEnd), ErrNoAgent)
	assert.ErrorIs(t, s.RequestMoveTarget(99, corridorEnd), ErrNoAgent)

	for i := 0; i < 200; i++ {
		require.NoError(t, s.Tick(0.1))
	}
	st, ok := s.Agent(idx)
	require.True(t, ok)
	assert.Equal(t, detour_crowd.DT_CROWDAGENT_STATE_WALKING, st.State)
	assert.Less(t, common.Vdist2D(st.Pos[:], corridorEnd), float32(0.5))
	assert.Equal(t, 200, s.Ticks())

	require.NoError(t, s.RemoveAgent(idx))
	_, ok = s.Agent(idx)
	assert.False(t, ok)
	assert.ErrorIs(t, s.RemoveAgent(idx), ErrNoAgent)
}

func TestSceneCrowdFull(t *testing.T) {
	cfg := corridorConfig(false)
	cfg.Crowd.MaxAgents = 1
	s, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = s.AddAgent(corridorStart, detour_crowd.DefaultCrowdAgentParams(0.3, 2))
	require.NoError(t, err)
	_, err = s.AddAgent(corridorEnd, detour_crowd.DefaultCrowdAgentParams(0.3, 2))
	assert.ErrorIs(t, err, ErrCrowdFull)
}

func TestMoverSurface(t *testing.T) {
	s := newTestScene(t, false)
	m, err := s.AddMover(1, nil)
	require.NoError(t, err)
	_, err = s.AddMover(1, nil)
	assert.ErrorIs(t, err, ErrMoverExists)
	assert.Same(t, m, s.Mover(1))

	assert.ErrorIs(t, m.SetPosition([]float32{2, 0, -10}), ErrOffMesh)
	require.NoError(t, m.SetPosition([]float32{2.2, 0, 4.2}))
	assert.InDelta(t, 2.2, m.Position()[0], 1e-4)
	assert.InDelta(t, 4.2, m.Position()[2], 1e-4)
	assert.NotZero(t, m.PolyRef())

	res, err := m.TryMove([]float32{3.2, 0, 4.2})
	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.InDelta(t, 3.2, res.Pos[0], 1e-4)
	assert.InDelta(t, 2.2, m.Position()[0], 1e-4, "TryMove does not move")

	res, err = m.TryMove([]float32{2.2, 0, 8})
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.InDelta(t, 5, res.Pos[2], 1e-3)

	hit, pos, err := m.Raycast([]float32{2.2, 0, 8})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.InDelta(t, 5, pos[2], 1e-3)
	hit, _, err = m.Raycast([]float32{12, 0, 4.2})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMoverCollisions(t *testing.T) {
	s := newTestScene(t, false)
	hits := map[uint64]*Mover{}
	onHit := func(m, other *Mover) { hits[m.ID()] = other }

	m1, _ := s.AddMover(1, nil)
	m2, _ := s.AddMover(2, nil)
	m3, _ := s.AddMover(3, nil)
	for _, m := range []*Mover{m1, m2, m3} {
		m.OnHit = onHit
	}
	require.NoError(t, m1.SetPosition([]float32{2.05, 0, 4.1}))
	assert.ErrorIs(t, m2.SetPosition([]float32{2.55, 0, 4.1}), ErrMoverBlocked)
	require.NoError(t, m2.SetPosition([]float32{6.05, 0, 4.1}))
	require.NoError(t, m3.SetPosition([]float32{10.1, 0, 4.1}))

	m1.SetVelocity([]float32{1, 0, 0})
	m3.SetVelocity([]float32{0, 0, 5})
	for i := 0; i < 40; i++ {
		require.NoError(t, s.Tick(0.1))
	}

	require.Contains(t, hits, uint64(1))
	assert.Same(t, m2, hits[1])
	assert.Equal(t, [3]float32{}, m1.Velocity())
	// stops one step before the rectangles touch at x=4.85
	assert.InDelta(t, 4.8, m1.Position()[0], 0.11)

	require.Contains(t, hits, uint64(3))
	assert.Nil(t, hits[3], "walls have no mover")
	assert.Equal(t, [3]float32{}, m3.Velocity())
	assert.InDelta(t, 4.6, m3.Position()[2], 1e-3, "the blocked step is not taken")
	assert.NotContains(t, hits, uint64(2))

	s.RemoveMover(2)
	assert.Nil(t, s.Mover(2))
	assert.ErrorIs(t, m2.SetPosition([]float32{6.05, 0, 4.1}), ErrNotInScene)
	// the freed spot can be taken
	assert.NoError(t, m1.SetPosition([]float32{6.05, 0, 4.1}))
	assert.Equal(t, 2, s.MoverCount())
}

func TestMoverRandomPosition(t *testing.T) {
	s := newTestScene(t, false)
	var movers []*Mover
	for id := uint64(1); id <= 5; id++ {
		m, err := s.AddMover(id, []float32{0.4, 1, 0.4})
		require.NoError(t, err)
		require.NoError(t, m.RandomPosition())
		movers = append(movers, m)
	}
	for i, a := range movers {
		pa := a.Position()
		assert.True(t, pa[0] >= 0 && pa[0] <= 16, "x %v", pa[0])
		assert.True(t, pa[2] >= 3 && pa[2] <= 5, "z %v", pa[2])
		for _, b := range movers[i+1:] {
			pb := b.Position()
			dx, dz := pa[0]-pb[0], pa[2]-pb[2]
			assert.True(t, dx > 0.8 || dx < -0.8 || dz > 0.8 || dz < -0.8, "movers %d and %d overlap", a.ID(), b.ID())
		}
	}
}

func TestGridParamsAreas(t *testing.T) {
	cfg := corridorConfig(false)
	cfg.NavMesh.Areas = []config.AreaRect{
		{Rect: config.Rect{MinX: 0, MinZ: 0, MaxX: 3, MaxZ: 15}, Area: "water"},
		{Rect: config.Rect{MinX: 2, MinZ: 0, MaxX: 2, MaxZ: 15}, Area: "door"},
	}
	p, err := GridParams(&cfg.NavMesh)
	require.NoError(t, err)
	assert.Equal(t, AREA_WATER, p.Area(1, 7))
	assert.Equal(t, AREA_DOOR, p.Area(2, 7), "later rectangles win")
	assert.Equal(t, AREA_GROUND, p.Area(10, 7))
	assert.Equal(t, FLAG_SWIM, p.Flags(1, 7))
	assert.Equal(t, FLAG_WALK|FLAG_DOOR, p.Flags(2, 7))
	assert.False(t, p.Walkable(4, 0))
	assert.True(t, p.Walkable(4, 7))

	cfg.NavMesh.Areas = append(cfg.NavMesh.Areas, config.AreaRect{Area: "lava"})
	_, err = GridParams(&cfg.NavMesh)
	assert.ErrorIs(t, err, ErrUnknownArea)
}

func TestDefaultFilterAndMeshProcess(t *testing.T) {
	f := NewDefaultFilter()
	assert.Equal(t, float32(10), f.GetAreaCost(int(AREA_WATER)))
	assert.Equal(t, float32(2), f.GetAreaCost(int(AREA_GRASS)))
	assert.Zero(t, f.GetIncludeFlags()&FLAG_DISABLED)

	params := &detour.DtNavMeshCreateParams{PolyCount: 3}
	areas := []uint8{detour_tile_cache.DT_TILECACHE_WALKABLE_AREA, AREA_WATER, AREA_JUMP}
	flags := make([]uint16, 3)
	meshProcess(params, areas, flags)
	assert.Equal(t, []uint8{AREA_GROUND, AREA_WATER, AREA_JUMP}, areas)
	assert.Equal(t, []uint16{FLAG_WALK, FLAG_SWIM, FLAG_JUMP}, flags)

	a, ok := AreaByName("grass")
	assert.True(t, ok)
	assert.Equal(t, AREA_GRASS, a)
}

func TestDynamicSceneWithWaterStrip(t *testing.T) {
	cfg := corridorConfig(true)
	cfg.NavMesh.Areas = []config.AreaRect{
		{Rect: config.Rect{MinX: 10, MinZ: 0, MaxX: 11, MaxZ: 15}, Area: "water"},
	}
	s, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	settle(t, s)
	assert.True(t, s.PathExists(corridorStart, corridorEnd))

	walkers := detour.NewDtQueryFilter()
	walkers.SetIncludeFlags(FLAG_WALK)
	m, err := s.AddMover(1, nil)
	require.NoError(t, err)
	require.NoError(t, m.SetPosition([]float32{3.1, 0, 4.1}))
	m.SetFilter(walkers)
	res, err := m.TryMove([]float32{7.1, 0, 4.1})
	require.NoError(t, err)
	assert.True(t, res.Hit, "walkers stop at the water")
	assert.InDelta(t, 5, res.Pos[0], 1e-3)

	m.SetFilter(nil)
	res, err = m.TryMove([]float32{7.1, 0, 4.1})
	require.NoError(t, err)
	assert.False(t, res.Hit)
}

func scenarioConfig() *config.Config {
	cfg := corridorConfig(true)
	cfg.Scenario.Ticks = 300
	cfg.Scenario.Agents = []config.AgentConfig{
		{Name: "runner", Position: [3]float32{1, 0, 4}, Target: [3]float32{14, 0, 4}, Radius: 0.3, Height: 2, MaxSpeed: 3},
	}
	cfg.Scenario.Obstacles = []config.ObstacleEvent{
		{Tick: 3, Name: "post", Remove: true},
		{Tick: 0, Name: "post", Shape: config.ObstacleCylinder, Pos: [3]float32{8, 0, 3.2}, Radius: 0.2, Height: 2},
	}
	return cfg
}

func TestScenarioRun(t *testing.T) {
	cfg := scenarioConfig()
	require.NoError(t, cfg.Validate())
	s, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	report, err := Run(context.Background(), s, &cfg.Scenario, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Obstacles)
	assert.Equal(t, 1, report.Arrived())
	require.Len(t, report.Agents, 1)
	assert.Equal(t, "runner", report.Agents[0].Name)
	assert.GreaterOrEqual(t, report.Agents[0].ArrivedAt, 3)
	assert.Less(t, report.Ticks, cfg.Scenario.Ticks, "stops once everyone arrived")
	assert.Equal(t, report.Ticks, s.Ticks())
}

func TestScenarioErrors(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Scenario.Obstacles = []config.ObstacleEvent{{Tick: 0, Name: "ghost", Remove: true}}
	s, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = Run(context.Background(), s, &cfg.Scenario, nil)
	assert.ErrorContains(t, err, "ghost")

	cfg = scenarioConfig()
	s, err = New(cfg, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := Run(ctx, s, &cfg.Scenario, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Ticks)

	cfg = scenarioConfig()
	cfg.Scenario.Agents[0].Target = [3]float32{4, 0, -20}
	s, err = New(cfg, nil)
	require.NoError(t, err)
	_, err = Run(context.Background(), s, &cfg.Scenario, nil)
	assert.ErrorIs(t, err, ErrOffMesh)
}
