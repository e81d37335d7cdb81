package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

const yamlConfig = `
logger:
  level: debug
  console: false
navmesh:
  tile_cells: 16
  tiles_x: 3
  blocked:
    - {min_x: 10, min_z: 0, max_x: 12, max_z: 20}
  areas:
    - {min_x: 0, min_z: 0, max_x: 4, max_z: 4, area: water}
crowd:
  maxAgents: 8
scenario:
  ticks: 100
  agents:
    - name: a
      position: [1, 0, 1]
      target: [20, 0, 1]
      radius: 0.4
      height: 2
      max_speed: 3
  obstacles:
    - {tick: 10, name: rock, shape: cylinder, pos: [5, 0, 5], radius: 1, height: 2}
    - {tick: 50, name: rock, remove: true}
`

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "sim.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.False(t, cfg.Logger.Console)
	assert.Equal(t, 16, cfg.NavMesh.TileCells)
	assert.Equal(t, 3, cfg.NavMesh.TilesX)
	// untouched fields keep their defaults
	assert.Equal(t, 2, cfg.NavMesh.TilesZ)
	assert.Equal(t, float32(0.5), cfg.NavMesh.CellSize)
	assert.Equal(t, 8, cfg.Crowd.MaxAgents)
	assert.Equal(t, float32(0.6), cfg.Crowd.MaxAgentRadius)

	require.Len(t, cfg.NavMesh.Blocked, 1)
	assert.True(t, cfg.NavMesh.Blocked[0].Contains(11, 20))
	assert.False(t, cfg.NavMesh.Blocked[0].Contains(13, 0))
	require.Len(t, cfg.NavMesh.Areas, 1)
	assert.Equal(t, "water", cfg.NavMesh.Areas[0].Area)
	assert.Equal(t, 4, cfg.NavMesh.Areas[0].MaxX)

	require.Len(t, cfg.Scenario.Agents, 1)
	assert.Equal(t, [3]float32{20, 0, 1}, cfg.Scenario.Agents[0].Target)
	require.Len(t, cfg.Scenario.Obstacles, 2)
	assert.Equal(t, ObstacleCylinder, cfg.Scenario.Obstacles[0].Shape)
	assert.True(t, cfg.Scenario.Obstacles[1].Remove)
}

func TestLoadHJSON(t *testing.T) {
	cfg, err := Load(writeFile(t, "sim.hjson", `{
  # comments and unquoted strings are allowed
  store: {
    url: "sqlite://tiles.db"
    map: arena
  }
  tile_cache: {
    max_obstacles: 16
  }
  query: {
    max_nodes: 512
  }
}`))
	require.NoError(t, err)
	assert.Equal(t, "sqlite://tiles.db", cfg.Store.URL)
	assert.Equal(t, "arena", cfg.Store.Map)
	assert.Equal(t, 16, cfg.TileCache.MaxObstacles)
	assert.True(t, cfg.TileCache.Enabled)
	assert.Equal(t, 512, cfg.Query.MaxNodes)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "sim.toml", "a = 1"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(writeFile(t, "sim.yaml", "navmesh: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "sim.yaml", "navmesh: {cell_size: -1}"))
	assert.ErrorContains(t, err, "cell_size")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Logger.Level = "loud"
	cfg.NavMesh.TileCells = 300
	cfg.Query.MaxNodes = 0
	cfg.Scenario.Dt = 0
	cfg.Scenario.Agents = []AgentConfig{{Name: "big", Radius: 2, Height: 2}}
	cfg.Scenario.Obstacles = []ObstacleEvent{
		{Name: "x", Shape: "sphere"},
		{Shape: ObstacleBox, Bmin: [3]float32{1, 0, 1}, Bmax: [3]float32{0, 1, 0}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 8)
	assert.ErrorContains(t, err, "unknown shape")
	assert.ErrorContains(t, err, "radius 2")
}

func TestObstaclesNeedTileCache(t *testing.T) {
	cfg := Default()
	cfg.TileCache.Enabled = false
	cfg.TileCache.MaxObstacles = 0
	assert.NoError(t, cfg.Validate())

	cfg.Scenario.Obstacles = []ObstacleEvent{{Name: "a", Remove: true}}
	assert.ErrorContains(t, cfg.Validate(), "tile_cache.enabled")
}

func TestSchema(t *testing.T) {
	data, err := SchemaJSON()
	require.NoError(t, err)
	s := string(data)
	for _, key := range []string{`"navmesh"`, `"tile_cells"`, `"scenario"`, `"maxAgents"`, `"oriented_box"`, `"track_line"`} {
		assert.Contains(t, s, key)
	}
	assert.NotContains(t, s, "UserData")
}
