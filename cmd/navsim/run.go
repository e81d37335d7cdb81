package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/gorustyt/navrt/config"
	"github.com/gorustyt/navrt/detour_tile_cache"
	"github.com/gorustyt/navrt/scene"
	"github.com/gorustyt/navrt/tilestore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func RunCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the configured scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configFile)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cfg, log)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	s, err := openScene(ctx, cfg, log)
	if err != nil {
		return err
	}
	report, err := scene.Run(ctx, s, &cfg.Scenario, log)
	if err != nil {
		return err
	}
	for _, a := range report.Agents {
		log.Info("agent",
			zap.String("name", a.Name),
			zap.Int("arrived_at", a.ArrivedAt),
			zap.Float32s("pos", a.Pos[:]),
			zap.Stringer("target", a.Target),
			zap.Bool("partial", a.Partial))
	}
	log.Info("scenario finished",
		zap.Stringer("scene", s.ID()),
		zap.Int("ticks", report.Ticks),
		zap.Int("arrived", report.Arrived()),
		zap.Int("agents", len(report.Agents)),
		zap.Int("obstacle_events", report.Obstacles),
		zap.Duration("elapsed", report.Elapsed))
	return nil
}

// openScene uses the baked tiles of the configured store when there are any
// and builds them from the map otherwise.
func openScene(ctx context.Context, cfg *config.Config, log *zap.Logger) (*scene.Scene, error) {
	if !cfg.TileCache.Enabled || cfg.Store.URL == "" {
		return scene.New(cfg, log)
	}
	store, err := tilestore.Open(ctx, cfg.Store.URL, log)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	params, err := scene.TileCacheParams(cfg)
	if err != nil {
		return nil, err
	}
	tc, err := tilestore.LoadTileCache(ctx, store, cfg.Store.Map, params, detour_tile_cache.S2Compressor{}, nil, log)
	if errors.Is(err, tilestore.ErrNoTiles) {
		log.Info("no baked tiles, building from the map", zap.String("map", cfg.Store.Map))
		return scene.New(cfg, log)
	}
	if err != nil {
		return nil, err
	}
	log.Info("loaded baked tiles", zap.String("map", cfg.Store.Map), zap.Int("obstacles", len(tc.Obstacles())))
	return scene.NewWithTileCache(cfg, tc, log)
}
