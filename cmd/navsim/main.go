package main

import (
	"fmt"
	"os"

	"github.com/gorustyt/navrt/common/logger"
	"github.com/gorustyt/navrt/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var VERSION = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFile string
	c := &cobra.Command{
		Use:           "navsim",
		Short:         "navigation mesh crowd simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.PersistentFlags().StringVar(&configFile, "config", "", "config file (.yaml or .hjson), defaults when empty")
	c.AddCommand(
		RunCmd(&configFile),
		BakeCmd(&configFile),
		SchemaCmd(),
		VersionCmd(),
	)
	return c
}

// setup loads the configuration and builds the process logger from it.
func setup(configFile string) (*config.Config, *zap.Logger, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, nil, err
		}
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), VERSION)
		},
	}
}
