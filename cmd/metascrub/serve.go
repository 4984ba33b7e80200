package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/metascrub/backend/internal/api"
	"github.com/metascrub/backend/internal/storage"
	"github.com/metascrub/backend/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := storage.NewLocalStore(
		cfg.Storage.UploadsDirectory,
		cfg.Storage.CleanedDirectory,
		cfg.Storage.TempDirectory,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if retention := cfg.Retention(); retention > 0 {
		go sweepLoop(ctx, store, retention, cfg.SweepInterval())
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger = appLog

	api.SetupMiddleware(e, api.MiddlewareConfig{
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		BodyLimit:      cfg.Server.BodyLimit,
		EnableCORS:     cfg.Server.EnableCORS,
		AllowOrigins:   cfg.Server.AllowOrigins,
		Verbose:        verbose,
	})

	handlers := api.NewHandlers(&api.Dependencies{
		Store:      store,
		Dispatcher: newDispatcher(store.TempDir()),
		Version:    Version,
	})
	api.RegisterRoutes(e, handlers)

	embedded := web.HasEmbeddedFiles()
	if embedded {
		if err := web.RegisterStaticRoutes(e); err != nil {
			appLog.Warnf("failed to register static routes: %v", err)
			embedded = false
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(embedded)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	appLog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// sweepLoop removes stored files older than retention until ctx is done
func sweepLoop(ctx context.Context, store storage.Store, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(retention)
			if err != nil {
				appLog.Warnf("retention sweep: %v", err)
				continue
			}
			if n > 0 {
				appLog.Infof("retention sweep removed %d files", n)
			}
		}
	}
}

func printBanner(embedded bool) {
	mode := "API only"
	if embedded {
		mode = "API + upload page"
	}

	retention := "disabled"
	if r := cfg.Retention(); r > 0 {
		retention = r.String()
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           metascrub server                                ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", cfgFile)
	fmt.Printf("║  Listen:    http://%-39s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("║  Retention: %-46s║\n", retention)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embedded {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}
