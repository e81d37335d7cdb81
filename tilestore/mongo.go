package tilestore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorustyt/navrt/detour_tile_cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const defaultMongoDatabase = "navrt"

type tileDoc struct {
	Map   string `bson:"map"`
	X     int32  `bson:"x"`
	Y     int32  `bson:"y"`
	Layer int32  `bson:"layer"`
	Data  []byte `bson:"data"`
}

type obstacleDoc struct {
	Map  string `bson:"_id"`
	Data []byte `bson:"data"`
}

type mongoStore struct {
	client    *mongo.Client
	tiles     *mongo.Collection
	obstacles *mongo.Collection
	log       *zap.Logger
}

// mongoDatabase takes the database name from the url path.
func mongoDatabase(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

func openMongo(ctx context.Context, uri string, log *zap.Logger) (Store, error) {
	clientOptions := options.Client().ApplyURI(uri)
	clientOptions = clientOptions.SetMinPoolSize(1)
	clientOptions = clientOptions.SetMaxPoolSize(16)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("tilestore: mongo connect: %w", err)
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("tilestore: mongo ping: %w", err)
	}
	db := client.Database(mongoDatabase(uri))
	s := &mongoStore{
		client:    client,
		tiles:     db.Collection("nav_tiles"),
		obstacles: db.Collection("nav_obstacles"),
		log:       log,
	}
	_, err = s.tiles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "map", Value: 1}, {Key: "x", Value: 1}, {Key: "y", Value: 1}, {Key: "layer", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("tilestore: mongo index: %w", err)
	}
	log.Info("tile store opened", zap.String("dialect", "mongodb"), zap.String("database", db.Name()))
	return s, nil
}

func (s *mongoStore) SaveTile(ctx context.Context, mapName string, tile Tile) error {
	doc := tileDoc{Map: mapName, X: tile.X, Y: tile.Y, Layer: tile.Layer, Data: tile.Data}
	filter := bson.M{"map": mapName, "x": tile.X, "y": tile.Y, "layer": tile.Layer}
	_, err := s.tiles.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("tilestore: save tile (%d,%d,%d): %w", tile.X, tile.Y, tile.Layer, err)
	}
	return nil
}

func (s *mongoStore) LoadTiles(ctx context.Context, mapName string) ([]Tile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "y", Value: 1}, {Key: "x", Value: 1}, {Key: "layer", Value: 1}})
	cursor, err := s.tiles.Find(ctx, bson.M{"map": mapName}, opts)
	if err != nil {
		return nil, fmt.Errorf("tilestore: load tiles: %w", err)
	}
	var docs []tileDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("tilestore: load tiles: %w", err)
	}
	tiles := make([]Tile, len(docs))
	for i, d := range docs {
		tiles[i] = Tile{X: d.X, Y: d.Y, Layer: d.Layer, Data: d.Data}
	}
	return tiles, nil
}

func (s *mongoStore) SaveObstacles(ctx context.Context, mapName string, obstacles []detour_tile_cache.ObstacleShape) error {
	data, err := encodeObstacles(obstacles)
	if err != nil {
		return err
	}
	_, err = s.obstacles.ReplaceOne(ctx, bson.M{"_id": mapName}, obstacleDoc{Map: mapName, Data: data},
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("tilestore: save obstacles: %w", err)
	}
	return nil
}

func (s *mongoStore) LoadObstacles(ctx context.Context, mapName string) ([]detour_tile_cache.ObstacleShape, error) {
	var doc obstacleDoc
	err := s.obstacles.FindOne(ctx, bson.M{"_id": mapName}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tilestore: load obstacles: %w", err)
	}
	return decodeObstacles(doc.Data)
}

func (s *mongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
