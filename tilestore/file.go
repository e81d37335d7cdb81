package tilestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gorustyt/navrt/detour_tile_cache"
	"go.uber.org/zap"
)

const obstacleFile = "obstacles.msgpack"

// fileStore keeps one directory per map with a file per tile layer.
type fileStore struct {
	root string
	log  *zap.Logger
}

func openFile(root string, log *zap.Logger) (Store, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrUnsupportedURL)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("tilestore: %w", err)
	}
	log.Info("tile store opened", zap.String("dialect", "file"), zap.String("root", root))
	return &fileStore{root: root, log: log}, nil
}

func (s *fileStore) mapDir(mapName string) (string, error) {
	if mapName == "" || mapName != filepath.Base(mapName) || mapName == "." || mapName == ".." {
		return "", fmt.Errorf("tilestore: bad map name %q", mapName)
	}
	return filepath.Join(s.root, mapName), nil
}

func tileFileName(t Tile) string {
	return fmt.Sprintf("tile_%d_%d_%d.bin", t.X, t.Y, t.Layer)
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) SaveTile(ctx context.Context, mapName string, tile Tile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.mapDir(mapName)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tilestore: %w", err)
	}
	if err = writeFile(filepath.Join(dir, tileFileName(tile)), tile.Data); err != nil {
		return fmt.Errorf("tilestore: save tile (%d,%d,%d): %w", tile.X, tile.Y, tile.Layer, err)
	}
	return nil
}

func (s *fileStore) LoadTiles(ctx context.Context, mapName string) ([]Tile, error) {
	dir, err := s.mapDir(mapName)
	if err != nil {
		return nil, err
	}
	names, err := filepath.Glob(filepath.Join(dir, "tile_*_*_*.bin"))
	if err != nil {
		return nil, err
	}
	var tiles []Tile
	for _, name := range names {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		var t Tile
		if _, err = fmt.Sscanf(filepath.Base(name), "tile_%d_%d_%d.bin", &t.X, &t.Y, &t.Layer); err != nil {
			s.log.Warn("skipping unrecognised tile file", zap.String("file", name))
			continue
		}
		if t.Data, err = os.ReadFile(name); err != nil {
			return nil, fmt.Errorf("tilestore: load tiles: %w", err)
		}
		tiles = append(tiles, t)
	}
	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i], tiles[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Layer < b.Layer
	})
	return tiles, nil
}

func (s *fileStore) SaveObstacles(ctx context.Context, mapName string, obstacles []detour_tile_cache.ObstacleShape) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.mapDir(mapName)
	if err != nil {
		return err
	}
	data, err := encodeObstacles(obstacles)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tilestore: %w", err)
	}
	if err = writeFile(filepath.Join(dir, obstacleFile), data); err != nil {
		return fmt.Errorf("tilestore: save obstacles: %w", err)
	}
	return nil
}

func (s *fileStore) LoadObstacles(ctx context.Context, mapName string) ([]detour_tile_cache.ObstacleShape, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.mapDir(mapName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, obstacleFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tilestore: load obstacles: %w", err)
	}
	return decodeObstacles(data)
}

func (s *fileStore) Close() error { return nil }
