// Package tilestore persists compressed tile-cache layers and the obstacle
// list of a map.
package tilestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gorustyt/navrt/common/logger"
	"github.com/gorustyt/navrt/detour_tile_cache"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedURL = errors.New("tilestore: unsupported url")
	ErrNoTiles        = errors.New("tilestore: map has no tiles")
)

// Tile is one compressed layer as produced by detour_tile_cache.DtBuildTileCacheLayer.
type Tile struct {
	X, Y, Layer int32
	Data        []byte
}

type Store interface {
	// SaveTile stores or replaces the layer at (X, Y, Layer) of the map.
	SaveTile(ctx context.Context, mapName string, tile Tile) error
	LoadTiles(ctx context.Context, mapName string) ([]Tile, error)
	// SaveObstacles replaces the whole obstacle list of the map.
	SaveObstacles(ctx context.Context, mapName string, obstacles []detour_tile_cache.ObstacleShape) error
	LoadObstacles(ctx context.Context, mapName string) ([]detour_tile_cache.ObstacleShape, error)
	Close() error
}

// Open picks the backend from the url scheme: sqlite://, mysql://, mongodb:// or file://.
func Open(ctx context.Context, url string, log *zap.Logger) (Store, error) {
	log = logger.OrNop(log)
	switch {
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return openMongo(ctx, url, log)
	case strings.HasPrefix(url, "mysql://"):
		return openMySQL(strings.TrimPrefix(url, "mysql://"), log)
	case strings.HasPrefix(url, "sqlite://"):
		return openSQLite(strings.TrimPrefix(url, "sqlite://"), log)
	case strings.HasPrefix(url, "file://"):
		return openFile(strings.TrimPrefix(url, "file://"), log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, url)
	}
}

func encodeObstacles(obstacles []detour_tile_cache.ObstacleShape) ([]byte, error) {
	if obstacles == nil {
		obstacles = []detour_tile_cache.ObstacleShape{}
	}
	return msgpack.Marshal(obstacles)
}

func decodeObstacles(data []byte) ([]detour_tile_cache.ObstacleShape, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var obstacles []detour_tile_cache.ObstacleShape
	if err := msgpack.Unmarshal(data, &obstacles); err != nil {
		return nil, fmt.Errorf("tilestore: decode obstacles: %w", err)
	}
	return obstacles, nil
}

// SaveTileCache writes every compressed tile and the live obstacles of tc.
func SaveTileCache(ctx context.Context, s Store, mapName string, tc *detour_tile_cache.TileCache) error {
	for i := 0; i < tc.GetTileCount(); i++ {
		tile := tc.GetTile(i)
		if tile.Header == nil {
			continue
		}
		err := s.SaveTile(ctx, mapName, Tile{X: tile.Header.Tx, Y: tile.Header.Ty, Layer: tile.Header.Tlayer, Data: tile.Data})
		if err != nil {
			return err
		}
	}
	return s.SaveObstacles(ctx, mapName, tc.Obstacles())
}

// LoadTileCache creates a tile cache holding the stored tiles of the map and
// queues its obstacles. The caller still has to build the navmesh tiles.
func LoadTileCache(ctx context.Context, s Store, mapName string, params *detour_tile_cache.DtTileCacheParams,
	tcomp detour_tile_cache.DtTileCacheCompressor, tmproc detour_tile_cache.MeshProcessFunc, log *zap.Logger) (*detour_tile_cache.TileCache, error) {
	tiles, err := s.LoadTiles(ctx, mapName)
	if err != nil {
		return nil, err
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoTiles, mapName)
	}
	obstacles, err := s.LoadObstacles(ctx, mapName)
	if err != nil {
		return nil, err
	}

	tc, err := detour_tile_cache.NewTileCache(params, tcomp, tmproc, log)
	if err != nil {
		return nil, err
	}
	for _, t := range tiles {
		if _, status := tc.AddTile(t.Data); status.Failed() {
			return nil, fmt.Errorf("tilestore: tile (%d,%d,%d): %w", t.X, t.Y, t.Layer, status.Err())
		}
	}
	if _, status := tc.AddObstacles(obstacles); status.Failed() {
		return nil, fmt.Errorf("tilestore: obstacles: %w", status.Err())
	}
	return tc, nil
}
