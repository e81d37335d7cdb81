package tilestore

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorustyt/navrt/detour_tile_cache"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type TileGorm struct {
	ID    uint   `gorm:"primaryKey"`
	Map   string `gorm:"uniqueIndex:idx_tile_pos;size:64"`
	X     int32  `gorm:"uniqueIndex:idx_tile_pos"`
	Y     int32  `gorm:"uniqueIndex:idx_tile_pos"`
	Layer int32  `gorm:"uniqueIndex:idx_tile_pos"`
	Data  []byte
}

func (TileGorm) TableName() string { return "nav_tiles" }

type ObstacleListGorm struct {
	Map  string `gorm:"primaryKey;size:64"`
	Data []byte // msgpack []ObstacleShape
}

func (ObstacleListGorm) TableName() string { return "nav_obstacles" }

type gormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// zapPrintf feeds gorm's logger into zap.
type zapPrintf struct{ s *zap.SugaredLogger }

func (w zapPrintf) Printf(format string, args ...any) { w.s.Debugf(format, args...) }

func gormConfig(log *zap.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.New(zapPrintf{log.Sugar()}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

func openSQLite(dsn string, log *zap.Logger) (Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("tilestore: open sqlite %q: %w", dsn, err)
	}
	return newGormStore(db, log)
}

func openMySQL(dsn string, log *zap.Logger) (Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("tilestore: open mysql: %w", err)
	}
	sqlDb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDb.SetMaxIdleConns(4)
	sqlDb.SetMaxOpenConns(16)
	sqlDb.SetConnMaxLifetime(time.Hour)
	return newGormStore(db, log)
}

func newGormStore(db *gorm.DB, log *zap.Logger) (*gormStore, error) {
	for _, table := range []any{new(TileGorm), new(ObstacleListGorm)} {
		if err := db.AutoMigrate(table); err != nil {
			return nil, fmt.Errorf("tilestore: auto migrate: %w", err)
		}
	}
	log.Info("tile store opened", zap.String("dialect", db.Dialector.Name()))
	return &gormStore{db: db, log: log}, nil
}

func (s *gormStore) SaveTile(ctx context.Context, mapName string, tile Tile) error {
	row := &TileGorm{Map: mapName, X: tile.X, Y: tile.Y, Layer: tile.Layer, Data: tile.Data}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "map"}, {Name: "x"}, {Name: "y"}, {Name: "layer"}},
		DoUpdates: clause.AssignmentColumns([]string{"data"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("tilestore: save tile (%d,%d,%d): %w", tile.X, tile.Y, tile.Layer, err)
	}
	return nil
}

func (s *gormStore) LoadTiles(ctx context.Context, mapName string) ([]Tile, error) {
	var rows []TileGorm
	err := s.db.WithContext(ctx).Where("map = ?", mapName).Order("y, x, layer").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("tilestore: load tiles: %w", err)
	}
	tiles := make([]Tile, len(rows))
	for i, r := range rows {
		tiles[i] = Tile{X: r.X, Y: r.Y, Layer: r.Layer, Data: r.Data}
	}
	return tiles, nil
}

func (s *gormStore) SaveObstacles(ctx context.Context, mapName string, obstacles []detour_tile_cache.ObstacleShape) error {
	data, err := encodeObstacles(obstacles)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Save(&ObstacleListGorm{Map: mapName, Data: data}).Error
	if err != nil {
		return fmt.Errorf("tilestore: save obstacles: %w", err)
	}
	return nil
}

func (s *gormStore) LoadObstacles(ctx context.Context, mapName string) ([]detour_tile_cache.ObstacleShape, error) {
	var rows []ObstacleListGorm
	if err := s.db.WithContext(ctx).Where("map = ?", mapName).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("tilestore: load obstacles: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return decodeObstacles(rows[0].Data)
}

func (s *gormStore) Close() error {
	sqlDb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}
