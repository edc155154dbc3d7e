package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/skywatch/internal/adapters/astrosource"
	"github.com/manthysbr/skywatch/internal/adapters/docker"
	"github.com/manthysbr/skywatch/internal/adapters/duckdb"
	"github.com/manthysbr/skywatch/internal/config"
	"github.com/manthysbr/skywatch/internal/core/ports"
	"github.com/manthysbr/skywatch/internal/core/services"
	"github.com/manthysbr/skywatch/internal/observability"
	"github.com/manthysbr/skywatch/pkg/kernel"
)

const configEnv = "SKYWATCH_CONFIG"

var (
	configFile string
	verbose    bool

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "skywatch",
	Short:             "Run AstroSource analyses from a web form and stream their logs",
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: initSkywatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		version := "(devel)"
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
			version = info.Main.Version
		}
		cmd.Println("skywatch", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is skywatch.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error("skywatch failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// initSkywatch resolves configuration: .env, then the config file (flag,
// then SKYWATCH_CONFIG, then ./skywatch.yaml), then SKYWATCH_* overrides.
func initSkywatch(_ *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	path := configFile
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		path = "skywatch.yaml"
	}

	var err error
	cfg, err = config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return err
	}
	if verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func run(ctx context.Context) error {
	logger.Info("starting skywatch",
		"listen", cfg.Listen,
		"workspace", cfg.WorkspaceDir,
		"analyzer", cfg.Analyzer.Runtime,
		"secret_key", config.MaskSecret(cfg.SecretKey))

	var repo ports.Repository
	if cfg.DatabasePath != "" {
		r, err := duckdb.NewRepository(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to init repository: %w", err)
		}
		defer r.Close()
		repo = r
	}

	analyzer, err := buildAnalyzer(cfg.Analyzer)
	if err != nil {
		return err
	}

	secret, err := config.NewSecretKey(cfg.SecretKey, filepath.Join(cfg.WorkspaceDir, "secret.key"))
	if err != nil {
		return fmt.Errorf("failed to init secret key: %w", err)
	}

	metrics := observability.NewMetrics()
	eventBus := services.NewEventBus(logger)
	feed := services.NewFeed(logger, eventBus, repo)
	if repo != nil {
		msgs, err := repo.ListMessages(ctx, 100)
		if err != nil {
			logger.Warn("failed to restore notifications", "error", err)
		} else {
			feed.Restore(msgs)
		}
	}

	registry := services.NewJobRegistry(logger, services.NewWorkspaceManager(cfg.WorkspaceDir))
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("failed to close job logs", "error", err)
		}
	}()

	scheduler := services.NewJobScheduler(logger)
	lifecycle := services.NewWorkerLifecycle(logger, scheduler, registry, analyzer, repo, eventBus, feed, metrics)
	streamer := services.NewLogStreamer(logger, feed, metrics, services.StreamerConfig{
		PollInterval: cfg.Stream.PollInterval,
		MaxStreams:   cfg.Stream.MaxStreams,
	})

	server := kernel.NewServer(logger, kernel.Deps{
		Lifecycle:   lifecycle,
		Registry:    registry,
		Validator:   services.NewInputValidator(logger),
		Streamer:    streamer,
		Feed:        feed,
		EventBus:    eventBus,
		Metrics:     metrics,
		Secret:      secret,
		Repo:        repo,
		CORSOrigins: cfg.CORSOrigins,
	})

	g, gCtx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end with the server instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return gCtx },
	}

	g.Go(func() error {
		return lifecycle.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildAnalyzer(c config.AnalyzerConfig) (ports.Analyzer, error) {
	switch c.Runtime {
	case "docker":
		a, err := docker.NewAnalyzer(logger, docker.Config{
			Image:      c.Image,
			Entrypoint: c.Args,
			Timeout:    c.PhaseTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init docker analyzer: %w", err)
		}
		return a, nil
	default:
		return astrosource.NewExecAnalyzer(logger, astrosource.Command{
			Path:    c.Path,
			Args:    c.Args,
			Timeout: c.PhaseTimeout,
		}), nil
	}
}
