// Forged is a daemon that runs natural-language ask and edit requests
// against cloned git repositories through the Claude Code CLI, and for
// edits commits, pushes, and opens a merge request.
//
// Usage:
//
//	# Start the daemon with defaults
//	forged serve
//
//	# Use an explicit config file
//	forged serve --config /etc/forged/config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forged/internal/claude"
	"github.com/fyrsmithlabs/forged/internal/config"
	"github.com/fyrsmithlabs/forged/internal/git"
	"github.com/fyrsmithlabs/forged/internal/gitflow"
	"github.com/fyrsmithlabs/forged/internal/hosting"
	"github.com/fyrsmithlabs/forged/internal/httpapi"
	"github.com/fyrsmithlabs/forged/internal/logging"
	"github.com/fyrsmithlabs/forged/internal/queue"
	"github.com/fyrsmithlabs/forged/internal/secrets"
	"github.com/fyrsmithlabs/forged/internal/services"
	"github.com/fyrsmithlabs/forged/internal/workspace"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "forged",
	Short: "Daemon running AI ask/edit requests against cloned repositories",
	RunE:  runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forged daemon",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("forged\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(*cobra.Command, []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx)
}

// run initializes every service, starts the queue workers and HTTP
// server, and blocks until the context is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting forged",
		zap.String("version", version),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.Int("workers", cfg.Queue.Workers))

	store, err := workspace.NewFileStore(cfg.Workspaces.DataDir)
	if err != nil {
		return fmt.Errorf("opening workspace store: %w", err)
	}

	gitClient := git.NewClient(
		git.WithBinary(cfg.Git.Binary),
		git.WithTimeout(cfg.Git.Timeout.Duration()),
	)

	detector, err := buildDetector(ctx, cfg.Hosting)
	if err != nil {
		return fmt.Errorf("configuring hosting providers: %w", err)
	}
	var providerDetector gitflow.ProviderDetector
	if detector != nil {
		providerDetector = detector
	} else {
		logger.Warn(ctx, "no hosting token configured, merge requests disabled")
	}

	scrubber := secrets.MustNew(secrets.DefaultConfig())
	engine := gitflow.NewEngine(gitClient, store, logger)
	finalizer := gitflow.NewFinalizer(gitClient, providerDetector, logger)
	runner := claude.NewRunner(cfg.Claude, logger)

	q := queue.New(cfg.Queue, store, gitClient, logger)
	queue.NewHandlers(store, gitClient, engine, finalizer, runner, providerDetector, logger).RegisterAll(q)

	registry := services.NewRegistry(services.Options{
		Workspaces: store,
		Queue:      q,
		Git:        gitClient,
		Engine:     engine,
		Finalizer:  finalizer,
		Runner:     runner,
		Hosting:    detector,
		Scrubber:   scrubber,
	})

	manager := workspace.NewManager(store, gitClient, cfg.Workspaces.Root, logger)
	srv, err := httpapi.NewServer(registry.Queue(), registry.Workspaces(), manager, registry.Scrubber(), logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	q.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		q.Stop()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down",
		zap.Duration("timeout", cfg.Server.ShutdownTimeout.Duration()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "http shutdown failed", zap.Error(err))
	}
	q.Stop()
	return nil
}

func buildLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.LevelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Format
	return logging.NewLogger(logCfg)
}

// buildDetector creates providers for whichever forge tokens are
// configured. Returns nil when none are.
func buildDetector(ctx context.Context, cfg config.HostingConfig) (*hosting.Detector, error) {
	var gh *hosting.GitHub
	if cfg.GitHubToken.IsSet() {
		var err error
		gh, err = hosting.NewGitHub(ctx, cfg.GitHubToken)
		if err != nil {
			return nil, err
		}
	}

	var gl *hosting.GitLab
	if cfg.GitLabToken.IsSet() {
		var err error
		gl, err = hosting.NewGitLab(cfg.GitLabToken, cfg.GitLabBaseURL)
		if err != nil {
			return nil, err
		}
	}

	if gh == nil && gl == nil {
		return nil, nil
	}
	return hosting.NewDetector(gh, gl), nil
}
