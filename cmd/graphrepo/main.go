package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/internal/config"
	"github.com/systemshift/graphrepo/internal/logger"
)

var cfgFile string

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "graphrepo",
		Short: "Typed repositories over a property graph",
		Long: `graphrepo serves typed entity repositories over HTTP, backed by Neo4j or an
embedded SQLite graph.

Configuration comes from the file given with --config, then GRAPHREPO_*
environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	root.AddCommand(newServeCommand(), newSchemaCommand())
	return root
}

// setup loads the configuration and builds the logger every command uses.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return cfg, log, nil
}
