package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/studio-sync/internal/mcpserver"
	"github.com/alexjbarnes/studio-sync/internal/server"
	"github.com/alexjbarnes/studio-sync/internal/syncer"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync endpoints over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, a)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	a.logger.Info("studio-sync starting",
		slog.String("version", Version),
		slog.String("output", a.cfg.OutputDir),
		slog.Bool("mcp", a.cfg.EnableMCP),
		slog.Bool("watch", a.cfg.EnableWatch),
	)

	history, err := a.openState()
	if err != nil {
		return err
	}
	defer history.Close()

	locks := server.NewLocks()

	var mcpHandler http.Handler
	if a.cfg.EnableMCP {
		mcpServer := mcp.NewServer(
			&mcp.Implementation{Name: "studio-sync", Version: Version},
			nil,
		)
		mcpserver.RegisterTools(mcpServer, a.engine)

		mcpHandler = mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return mcpServer
		}, nil)
	}

	mux := server.NewMux(server.Config{
		Engine:     a.engine,
		Logger:     a.logger.With(slog.String("service", "http")),
		History:    history,
		Locks:      locks,
		MCPHandler: mcpHandler,
	})

	srv := &http.Server{
		Addr:         a.cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var watcher *syncer.Watcher
	if a.cfg.EnableWatch {
		dir, err := a.open("")
		if err != nil {
			return err
		}

		watcher = a.engine.NewWatcher(dir, locks.For(dir.Root()), func(e syncer.LocalEdit) {
			a.logger.Debug("local edit",
				slog.String("type", string(e.Type)),
				slog.String("rel_path", e.RelPath),
				slog.String("state", string(e.State)),
			)
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveHTTP(gctx, srv, a.logger)
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// serveHTTP runs srv until ctx is cancelled.
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	go func() {
		<-ctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting HTTP server", slog.String("listen", srv.Addr))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}
