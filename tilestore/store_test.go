package tilestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gorustyt/navrt/detour"
	"github.com/gorustyt/navrt/detour_tile_cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	stores := map[string]Store{}
	for name, url := range map[string]string{
		"sqlite": "sqlite://" + filepath.Join(t.TempDir(), "tiles.db"),
		"file":   "file://" + filepath.Join(t.TempDir(), "tiles"),
	} {
		s, err := Open(ctx, url, log)
		require.NoError(t, err, name)
		t.Cleanup(func() { assert.NoError(t, s.Close()) })
		stores[name] = s
	}
	return stores
}

func TestStoreTiles(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			tiles, err := s.LoadTiles(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, tiles)

			require.NoError(t, s.SaveTile(ctx, "arena", Tile{X: 1, Y: 0, Data: []byte{1}}))
			require.NoError(t, s.SaveTile(ctx, "arena", Tile{X: 0, Y: 1, Data: []byte{2}}))
			require.NoError(t, s.SaveTile(ctx, "arena", Tile{X: 0, Y: 0, Data: []byte{3}}))
			// replaces the first tile
			require.NoError(t, s.SaveTile(ctx, "arena", Tile{X: 1, Y: 0, Data: []byte{4, 5}}))
			require.NoError(t, s.SaveTile(ctx, "other", Tile{X: 0, Y: 0, Data: []byte{9}}))

			tiles, err = s.LoadTiles(ctx, "arena")
			require.NoError(t, err)
			assert.Equal(t, []Tile{
				{X: 0, Y: 0, Data: []byte{3}},
				{X: 1, Y: 0, Data: []byte{4, 5}},
				{X: 0, Y: 1, Data: []byte{2}},
			}, tiles)
		})
	}
}

func TestStoreObstacles(t *testing.T) {
	ctx := context.Background()
	obstacles := []detour_tile_cache.ObstacleShape{
		{Type: detour_tile_cache.DT_OBSTACLE_CYLINDER, Pos: [3]float32{1, 0, 2}, Radius: 0.5, Height: 2},
		{Type: detour_tile_cache.DT_OBSTACLE_BOX, Bmin: [3]float32{0, 0, 0}, Bmax: [3]float32{1, 1, 1}},
		{Type: detour_tile_cache.DT_OBSTACLE_ORIENTED_BOX, Center: [3]float32{3, 0, 3}, HalfExtents: [3]float32{1, 1, 0.5}, YRadians: 0.7},
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.LoadObstacles(ctx, "arena")
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, s.SaveObstacles(ctx, "arena", obstacles))
			got, err = s.LoadObstacles(ctx, "arena")
			require.NoError(t, err)
			assert.Equal(t, obstacles, got)

			require.NoError(t, s.SaveObstacles(ctx, "arena", nil))
			got, err = s.LoadObstacles(ctx, "arena")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestTileCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := &detour.GridMeshParams{
		CellSize:       1,
		CellHeight:     0.2,
		TileCells:      8,
		TilesX:         2,
		TilesZ:         2,
		WalkableHeight: 2,
		WalkableRadius: 0.3,
		WalkableClimb:  0.5,
	}
	params := detour_tile_cache.GridTileCacheParams(p, 8)
	comp := detour_tile_cache.S2Compressor{}

	tc, err := detour_tile_cache.NewTileCache(params, comp, detour_tile_cache.DefaultMeshProcess, nil)
	require.NoError(t, err)
	_, status := tc.AddGridLayers(p)
	require.True(t, status.Succeed())
	_, status = tc.AddObstacle([]float32{4, 0, 4}, 1, 2)
	require.True(t, status.Succeed())
	// covers the whole of tile (1,1)
	_, status = tc.AddBoxObstacle([]float32{7.9, -1, 7.9}, []float32{16.1, 2, 16.1})
	require.True(t, status.Succeed())

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := LoadTileCache(ctx, s, "grid", params, comp, nil, nil)
			assert.ErrorIs(t, err, ErrNoTiles)

			require.NoError(t, SaveTileCache(ctx, s, "grid", tc))
			loaded, err := LoadTileCache(ctx, s, "grid", params, comp, detour_tile_cache.DefaultMeshProcess, zaptest.NewLogger(t))
			require.NoError(t, err)
			assert.Equal(t, tc.Obstacles(), loaded.Obstacles())
			for tz := int32(0); tz < 2; tz++ {
				for tx := int32(0); tx < 2; tx++ {
					refs := loaded.GetTilesAt(tx, tz)
					require.Len(t, refs, 1)
					want := tc.GetTileByRef(tc.GetTilesAt(tx, tz)[0]).Data
					assert.Equal(t, want, loaded.GetTileByRef(refs[0]).Data)
				}
			}

			nav, status := detour.NewDtNavMesh(p.NavMeshParams())
			require.True(t, status.Succeed())
			require.True(t, loaded.BuildAll(nav).Succeed())
			for i := 0; i < 16; i++ {
				upToDate, status := loaded.Update(0.1, nav)
				require.True(t, status.Succeed())
				if upToDate {
					break
				}
			}
			assert.NotNil(t, nav.GetTileAt(0, 0, 0))
			assert.Nil(t, nav.GetTileAt(1, 1, 0), "the stored obstacle is applied")
		})
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), "redis://localhost", nil)
	assert.ErrorIs(t, err, ErrUnsupportedURL)
	_, err = Open(context.Background(), "file://", nil)
	assert.ErrorIs(t, err, ErrUnsupportedURL)

	s, err := Open(context.Background(), "file://"+t.TempDir(), nil)
	require.NoError(t, err)
	assert.Error(t, s.SaveTile(context.Background(), "../escape", Tile{}))
}

func TestMongoDatabaseName(t *testing.T) {
	assert.Equal(t, "maps", mongoDatabase("mongodb://localhost:27017/maps"))
	assert.Equal(t, defaultMongoDatabase, mongoDatabase("mongodb://localhost:27017"))
	assert.Equal(t, defaultMongoDatabase, mongoDatabase("mongodb://localhost:27017/?replicaSet=rs0"))
}
