package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/internal/server/api"
	"github.com/systemshift/graphrepo/internal/server/graph"
	"github.com/systemshift/graphrepo/internal/server/subscriptions"
	"github.com/systemshift/graphrepo/pkg/repository"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the entity repositories over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := graph.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open graph store", zap.Error(err))
		return err
	}
	defer store.Close(context.Background())

	// Subscriptions persist through the store and hear every write made by it
	subMgr := subscriptions.NewManager(store, log)
	store.Use(func(next graph.Executor) graph.Executor {
		return subscriptions.Emitting(next, subMgr.Emitter())
	})
	if err := subMgr.Start(ctx); err != nil {
		return err
	}
	defer subMgr.Stop()

	repoOpts := []repository.Option{repository.WithLogger(log)}
	people := repository.New[*Person](store, repoOpts...)
	teams := repository.New[*Team](store, repoOpts...)
	tickets := repository.New[*Ticket](store, repoOpts...)

	// Initialize API server
	apiServer := api.New(store, log)
	routes := apiServer.Routes(func(r chi.Router) {
		api.Mount(apiServer, r, "/people", people)
		api.Mount(apiServer, r, "/teams", teams)
		api.Mount(apiServer, r, "/tickets", tickets)
		api.MountRelation[*Person, *Team](apiServer, r, "/people", people, memberOf)
		apiServer.MountSubscriptions(r, subMgr)
	})

	// Setup HTTP router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Mount("/", routes)

	// HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting graphrepo server", zap.String("addr", srv.Addr), zap.String("backend", cfg.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
		return err
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("server exited")
	return nil
}
