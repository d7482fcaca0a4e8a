package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sesteves/rugged-main/internal/api"
	"github.com/sesteves/rugged-main/internal/auth"
	"github.com/sesteves/rugged-main/internal/rugged"
	"github.com/sesteves/rugged-main/internal/scenario"
	"github.com/sesteves/rugged-main/internal/stream"
)

// serveCmd starts the localization HTTP service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the localization HTTP service",
	Long: `Start an HTTP server exposing the localization engine:
  POST /api/v1/localize/direct   - localize the pixels of a sensor line
  POST /api/v1/localize/inverse  - find the pixel observing a ground point
  GET  /api/v1/localize/stream   - SSE stream of per-line localizations
  GET  /api/v1/scenario          - loaded scenario metadata
plus /healthz, /readyz and Prometheus /metrics.

Requests are served by a pool of engine instances, one tile cache each.
Configuration comes from flags and RUGGED_* environment variables; flags
take precedence.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger(cmd)

		scenarioPath, _ := cmd.Flags().GetString("scenario")
		built, err := scenario.Load(scenarioPath, logger)
		if err != nil {
			logger.Error("loading scenario failed", "error", err, "path", scenarioPath)
			os.Exit(1)
		}
		logger.Info("scenario loaded", "name", built.Name, "sensors", len(built.Sensors))

		engines := loadIntSetting(cmd, logger, "engines", "RUGGED_ENGINES", runtime.NumCPU())
		pool, err := api.NewPool(engines, func() (*rugged.Rugged, error) {
			return built.NewEngine()
		}, logger)
		if err != nil {
			logger.Error("building engine pool failed", "error", err)
			os.Exit(1)
		}

		addr := os.Getenv("RUGGED_HTTP_ADDR")
		if addr == "" {
			addr = ":8080"
		}
		if v, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			addr = v
		}

		authCfg, err := loadAuthConfig(logger)
		if err != nil {
			logger.Error("invalid auth configuration", "error", err)
			os.Exit(1)
		}

		streamCfg := stream.Config{
			MaxConcurrentPerIP: loadIntSetting(cmd, logger, "", "RUGGED_STREAM_MAX_CONCURRENT", 4),
			MaxLinesPerRequest: loadIntSetting(cmd, logger, "", "RUGGED_STREAM_MAX_LINES", 100000),
		}

		srv := api.NewServer(addr, pool, built, streamCfg, authCfg, logger)

		// Graceful shutdown on SIGINT/SIGTERM.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go func() {
			logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "engines", engines)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server listen error", "error", err)
				os.Exit(1)
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
			os.Exit(1)
		}

		logger.Info("server stopped")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().Int("engines", 0, "Engine pool size (default: number of CPUs)")
}

// loadIntSetting resolves an integer setting from a flag (when set), then an
// environment variable, then the default. Invalid values warn and fall back.
func loadIntSetting(cmd *cobra.Command, logger *slog.Logger, flag, env string, def int) int {
	if flag != "" && cmd.Flags().Changed(flag) {
		if v, err := cmd.Flags().GetInt(flag); err == nil && v > 0 {
			return v
		}
	}
	if v := os.Getenv(env); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid value, using default", "variable", env, "value", v, "default", def)
		} else {
			return n
		}
	}
	return def
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("RUGGED_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("RUGGED_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("RUGGED_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("RUGGED_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}
