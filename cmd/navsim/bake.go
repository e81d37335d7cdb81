package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gorustyt/navrt/config"
	"github.com/gorustyt/navrt/scene"
	"github.com/gorustyt/navrt/tilestore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func BakeCmd(configFile *string) *cobra.Command {
	var url string
	c := &cobra.Command{
		Use:   "bake",
		Short: "compress the map tiles and save them to the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configFile)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if url != "" {
				cfg.Store.URL = url
			}
			return bake(cmd.Context(), cfg, log)
		},
	}
	c.Flags().StringVar(&url, "store", "", "store url, overrides store.url")
	return c
}

func bake(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Store.URL == "" {
		return fmt.Errorf("bake: no store url configured")
	}
	tc, err := scene.NewTileCache(cfg, log)
	if err != nil {
		return err
	}
	store, err := tilestore.Open(ctx, cfg.Store.URL, log)
	if err != nil {
		return err
	}
	defer store.Close()
	if err = tilestore.SaveTileCache(ctx, store, cfg.Store.Map, tc); err != nil {
		return err
	}
	log.Info("tiles baked", zap.String("map", cfg.Store.Map), zap.Int("tiles", cfg.NavMesh.TilesX*cfg.NavMesh.TilesZ))
	return nil
}

func SchemaCmd() *cobra.Command {
	var out string
	c := &cobra.Command{
		Use:   "schema",
		Short: "print the json schema of the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.SchemaJSON()
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	c.Flags().StringVar(&out, "out", "", "output file, stdout when empty")
	return c
}
