package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/emuctl"
	"github.com/loykin/emuctl/internal/config"
	"github.com/loykin/emuctl/internal/lifecycle"
	"github.com/loykin/emuctl/internal/logger"
	"github.com/loykin/emuctl/internal/privilege"
	"github.com/loykin/emuctl/internal/server"
	emutls "github.com/loykin/emuctl/internal/tls"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, flags ServeFlags, out io.Writer) error {
	if flags.Daemonize {
		return daemonize(flags, out)
	}
	cfg, err := emuctl.LoadConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.LogFile != "" {
		cfg.Log.File = flags.LogFile
	}
	log, closer, err := logger.New(cfg.Log, out)
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(log)

	if cfg.RequireAdmin {
		if err := privilege.Require(); err != nil {
			log.Error("privilege check failed", "error", err)
			return err
		}
	}
	if flags.PIDFile != "" {
		if err := writePidFile(flags.PIDFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PIDFile) }()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, log)
}

// serve runs the control service until ctx is done.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	logBanner(log, cfg)
	config.WarnMissingDirs(log, cfg.Catalog)

	tlsConfig, err := emutls.Setup(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls setup: %w", err)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		if err := emuctl.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		metricsSrv = emuctl.NewMetricsServer(cfg.Metrics.Listen)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "listen", cfg.Metrics.Listen, "error", err)
			}
		}()
		log.Info("metrics enabled", "listen", cfg.Metrics.Listen)
	}

	launcher := lifecycle.ExecLauncher{Logger: log, Output: cfg.Log.OutputWriters}
	svc := emuctl.New(cfg.Catalog, emuctl.WithLogger(log), emuctl.WithLauncher(launcher))
	router := svc.Router(cfg.Port)
	api := server.NewServer(cfg.Addr(), router, tlsConfig)

	scheme := "http"
	if tlsConfig != nil {
		scheme = "https"
	}
	log.Info("control service started", "url", fmt.Sprintf("%s://localhost:%d", scheme, cfg.Port), "listen", api.Addr)
	for name, ep := range router.Endpoints() {
		log.Info("endpoint", "name", name, "route", ep)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe(api) }()

	var serveErr error
	select {
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error("control service failed; check that the port is free and the service has the rights to bind it", "addr", api.Addr, "error", serveErr)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Warn("control service shutdown", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return serveErr
}

func logBanner(log *slog.Logger, cfg *config.Config) {
	log.Info("emulator control service", "config", cfg.File, "port", cfg.Port, "servers", cfg.Catalog.Len(), "single", cfg.Catalog.Single())
	for _, p := range cfg.Catalog.Profiles() {
		log.Info("server configured",
			"id", p.ID,
			"name", p.Name,
			"path", p.Path,
			"enabled", p.Enabled,
			"emulators", len(p.Processes))
	}
}
