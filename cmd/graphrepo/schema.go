package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/internal/server/graph"
	"github.com/systemshift/graphrepo/pkg/repository"
)

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the key constraints and indexes of every entity type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return schema(cmd.Context())
		},
	}
}

// schemaTarget is the part of a repository the schema command needs.
type schemaTarget interface {
	TypeName() string
	CreateConstraint(ctx context.Context) (bool, error)
	CreateIndex(ctx context.Context, properties ...string) (bool, error)
}

func schema(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := graph.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	targets := []struct {
		repo    schemaTarget
		indexes [][]string
	}{
		{repository.New[*Person](store), [][]string{{"Name"}, {"Email"}}},
		{repository.New[*Team](store), [][]string{{"Name"}}},
		{repository.New[*Ticket](store), [][]string{{"Closed", "Points"}}},
	}

	for _, t := range targets {
		if _, err := t.repo.CreateConstraint(ctx); err != nil {
			return err
		}
		for _, props := range t.indexes {
			if _, err := t.repo.CreateIndex(ctx, props...); err != nil {
				return err
			}
		}
		log.Info("schema created", zap.String("type", t.repo.TypeName()), zap.Int("indexes", len(t.indexes)))
	}
	return nil
}
