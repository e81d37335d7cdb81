// Package config loads the runtime and scenario settings of navsim.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorustyt/navrt/common/logger"
	"github.com/gorustyt/navrt/detour_crowd"
	"github.com/hjson/hjson-go/v4"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// Rect is an inclusive range of global grid cells.
type Rect struct {
	MinX int `yaml:"min_x" json:"min_x"`
	MinZ int `yaml:"min_z" json:"min_z"`
	MaxX int `yaml:"max_x" json:"max_x"`
	MaxZ int `yaml:"max_z" json:"max_z"`
}

func (r Rect) Contains(x, z int) bool {
	return x >= r.MinX && x <= r.MaxX && z >= r.MinZ && z <= r.MaxZ
}

// AreaRect paints an area preset (ground, water, road, door, grass, jump) over cells.
type AreaRect struct {
	Rect `yaml:",inline"`
	Area string `yaml:"area" json:"area" jsonschema:"enum=ground,enum=water,enum=road,enum=door,enum=grass,enum=jump"`
}

// MapConfig describes the flat tiled grid the scenario runs on.
type MapConfig struct {
	Origin         [3]float32 `yaml:"origin" json:"origin"`
	CellSize       float32    `yaml:"cell_size" json:"cell_size"`
	CellHeight     float32    `yaml:"cell_height" json:"cell_height"`
	TileCells      int        `yaml:"tile_cells" json:"tile_cells"`
	TilesX         int        `yaml:"tiles_x" json:"tiles_x"`
	TilesZ         int        `yaml:"tiles_z" json:"tiles_z"`
	WalkableHeight float32    `yaml:"walkable_height" json:"walkable_height"`
	WalkableRadius float32    `yaml:"walkable_radius" json:"walkable_radius"`
	WalkableClimb  float32    `yaml:"walkable_climb" json:"walkable_climb"`
	Blocked        []Rect     `yaml:"blocked" json:"blocked,omitempty"`
	Areas          []AreaRect `yaml:"areas" json:"areas,omitempty"`
}

type QueryConfig struct {
	MaxNodes    int        `yaml:"max_nodes" json:"max_nodes"`
	HalfExtents [3]float32 `yaml:"half_extents" json:"half_extents"`
}

type TileCacheConfig struct {
	// Dynamic obstacles need the tile cache; a static scene builds the tiles once.
	Enabled                bool    `yaml:"enabled" json:"enabled"`
	MaxObstacles           int     `yaml:"max_obstacles" json:"max_obstacles"`
	MaxSimplificationError float32 `yaml:"max_simplification_error" json:"max_simplification_error"`
}

type StoreConfig struct {
	// sqlite://file.db, mysql://dsn, mongodb://host/db or file://dir. Empty disables persistence.
	URL string `yaml:"url" json:"url,omitempty"`
	// Key under which the tiles of this map are stored.
	Map string `yaml:"map" json:"map"`
}

type AgentConfig struct {
	Name     string     `yaml:"name" json:"name"`
	Position [3]float32 `yaml:"position" json:"position"`
	Target   [3]float32 `yaml:"target" json:"target"`
	Radius   float32    `yaml:"radius" json:"radius"`
	Height   float32    `yaml:"height" json:"height"`
	MaxSpeed float32    `yaml:"max_speed" json:"max_speed"`
}

const (
	ObstacleCylinder    = "cylinder"
	ObstacleBox         = "box"
	ObstacleOrientedBox = "oriented_box"
)

// ObstacleEvent adds or removes a named obstacle at a given tick.
type ObstacleEvent struct {
	Tick        int        `yaml:"tick" json:"tick"`
	Name        string     `yaml:"name" json:"name"`
	Remove      bool       `yaml:"remove" json:"remove,omitempty"`
	Shape       string     `yaml:"shape" json:"shape,omitempty" jsonschema:"enum=cylinder,enum=box,enum=oriented_box"`
	Pos         [3]float32 `yaml:"pos" json:"pos"`
	Radius      float32    `yaml:"radius" json:"radius,omitempty"`
	Height      float32    `yaml:"height" json:"height,omitempty"`
	Bmin        [3]float32 `yaml:"bmin" json:"bmin"`
	Bmax        [3]float32 `yaml:"bmax" json:"bmax"`
	HalfExtents [3]float32 `yaml:"half_extents" json:"half_extents"`
	YRadians    float32    `yaml:"y_radians" json:"y_radians,omitempty"`
}

type ScenarioConfig struct {
	Ticks        int             `yaml:"ticks" json:"ticks"`
	Dt           float32         `yaml:"dt" json:"dt"`
	Seed         int64           `yaml:"seed" json:"seed"`
	ArriveRadius float32         `yaml:"arrive_radius" json:"arrive_radius"`
	Agents       []AgentConfig   `yaml:"agents" json:"agents,omitempty"`
	Obstacles    []ObstacleEvent `yaml:"obstacles" json:"obstacles,omitempty"`
}

type Config struct {
	Logger    logger.Config            `yaml:"logger" json:"logger"`
	NavMesh   MapConfig                `yaml:"navmesh" json:"navmesh"`
	Query     QueryConfig              `yaml:"query" json:"query"`
	Crowd     detour_crowd.CrowdConfig `yaml:"crowd" json:"crowd"`
	TileCache TileCacheConfig          `yaml:"tile_cache" json:"tile_cache"`
	Store     StoreConfig              `yaml:"store" json:"store"`
	Scenario  ScenarioConfig           `yaml:"scenario" json:"scenario"`
}

// Default is an open 2x2 grid of 32 cell tiles with the tile cache enabled.
func Default() *Config {
	return &Config{
		Logger: logger.DefaultConfig(),
		NavMesh: MapConfig{
			CellSize:       0.5,
			CellHeight:     0.2,
			TileCells:      32,
			TilesX:         2,
			TilesZ:         2,
			WalkableHeight: 2,
			WalkableRadius: 0.6,
			WalkableClimb:  0.9,
		},
		Query: QueryConfig{
			MaxNodes:    2048,
			HalfExtents: [3]float32{2, 4, 2},
		},
		Crowd: detour_crowd.DefaultCrowdConfig(),
		TileCache: TileCacheConfig{
			Enabled:                true,
			MaxObstacles:           128,
			MaxSimplificationError: 1.3,
		},
		Store: StoreConfig{Map: "default"},
		Scenario: ScenarioConfig{
			Ticks:        600,
			Dt:           0.1,
			ArriveRadius: 0.5,
		},
	}
}

// Load reads a yaml (.yaml, .yml) or hjson (.hjson, .json) file over the
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".hjson", ".json":
		err = hjson.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem found, combined with multierr.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("config: "+format, args...))
		}
	}

	if _, lerr := logger.ParseLevel(c.Logger.Level); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("config: logger: %w", lerr))
	}

	m := &c.NavMesh
	check(m.CellSize > 0, "navmesh.cell_size must be positive, got %v", m.CellSize)
	check(m.CellHeight > 0, "navmesh.cell_height must be positive, got %v", m.CellHeight)
	check(m.TileCells > 0 && m.TileCells <= 255, "navmesh.tile_cells must be in 1..255, got %d", m.TileCells)
	check(m.TilesX > 0 && m.TilesZ > 0, "navmesh needs at least one tile, got %dx%d", m.TilesX, m.TilesZ)
	check(m.WalkableHeight > 0, "navmesh.walkable_height must be positive")
	for i, a := range m.Areas {
		check(a.Area != "", "navmesh.areas[%d] has no area", i)
	}

	check(c.Query.MaxNodes > 0 && c.Query.MaxNodes <= 65535, "query.max_nodes must be in 1..65535, got %d", c.Query.MaxNodes)
	check(c.Crowd.MaxAgents > 0, "crowd.maxAgents must be positive")
	check(c.Crowd.MaxAgentRadius > 0, "crowd.maxAgentRadius must be positive")
	check(len(c.Scenario.Agents) <= c.Crowd.MaxAgents, "scenario has %d agents, crowd holds %d",
		len(c.Scenario.Agents), c.Crowd.MaxAgents)

	if c.TileCache.Enabled {
		check(c.TileCache.MaxObstacles > 0 && c.TileCache.MaxObstacles <= 0xffff,
			"tile_cache.max_obstacles must be in 1..65535, got %d", c.TileCache.MaxObstacles)
	} else {
		check(len(c.Scenario.Obstacles) == 0, "scenario obstacles need tile_cache.enabled")
	}

	check(c.Scenario.Dt > 0, "scenario.dt must be positive, got %v", c.Scenario.Dt)
	check(c.Scenario.Ticks >= 0, "scenario.ticks must not be negative")
	for i, ag := range c.Scenario.Agents {
		check(ag.Radius > 0 && ag.Radius <= c.Crowd.MaxAgentRadius,
			"scenario.agents[%d] radius %v outside (0, %v]", i, ag.Radius, c.Crowd.MaxAgentRadius)
		check(ag.Height > 0, "scenario.agents[%d] height must be positive", i)
	}
	for i, ev := range c.Scenario.Obstacles {
		check(ev.Name != "", "scenario.obstacles[%d] has no name", i)
		if ev.Remove {
			continue
		}
		switch ev.Shape {
		case ObstacleCylinder:
			check(ev.Radius > 0 && ev.Height > 0, "scenario.obstacles[%d] cylinder needs radius and height", i)
		case ObstacleBox:
			check(ev.Bmin[0] < ev.Bmax[0] && ev.Bmin[2] < ev.Bmax[2], "scenario.obstacles[%d] box is empty", i)
		case ObstacleOrientedBox:
			check(ev.HalfExtents[0] > 0 && ev.HalfExtents[2] > 0, "scenario.obstacles[%d] oriented box is empty", i)
		default:
			check(false, "scenario.obstacles[%d] unknown shape %q", i, ev.Shape)
		}
	}
	return err
}
