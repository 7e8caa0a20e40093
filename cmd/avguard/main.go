// Package main is the entry point for the avguard server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vyrodovalexey/avguard/internal/config"
	"github.com/vyrodovalexey/avguard/internal/observability"
	"github.com/vyrodovalexey/avguard/internal/perm"
	"github.com/vyrodovalexey/avguard/internal/server"
	"github.com/vyrodovalexey/avguard/internal/store"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	runServer(app, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AVGUARD_CONFIG_PATH", "configs/avguard.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("AVGUARD_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AVGUARD_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("avguard version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting avguard",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("addr", cfg.Server.Addr),
		observability.String("cache_type", cfg.Cache.Type),
		observability.Bool("cache_enabled", cfg.Cache.Enabled),
		observability.Int("groups", len(cfg.Groups)),
		observability.Int("routes", len(cfg.Routes)),
	)

	return cfg
}

// application holds all application components.
type application struct {
	server *server.Server
	store  store.Store
	config *config.Config
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	registry := initRegistry()

	resolver := staticGroupResolver(cfg.Groups)

	permMetrics := perm.NewMetricsWithRegisterer("avguard", registry)
	permMetrics.Init()

	engineOpts := []perm.EngineOption{
		perm.WithLogger(logger),
		perm.WithMetrics(permMetrics),
		perm.WithGroupResolver(resolver),
	}

	var st store.Store
	if cfg.Cache.Enabled {
		var err error
		st, err = store.New(&cfg.Cache, logger)
		if err != nil {
			logger.Fatal("failed to initialize membership store", observability.Error(err))
		}

		storeMetrics := store.GetStoreMetrics()
		storeMetrics.MustRegister(registry)
		storeMetrics.Init()

		membership, err := perm.NewMembership(resolver, st, cfg.Cache.TTL.Duration(),
			perm.WithMembershipLogger(logger),
			perm.WithMembershipMetrics(permMetrics),
		)
		if err != nil {
			logger.Fatal("failed to initialize membership cache", observability.Error(err))
		}

		engineOpts = append(engineOpts, perm.WithMembership(membership))
	}

	engine := perm.NewEngine(engineOpts...)

	srv, err := server.New(cfg, engine,
		server.WithServerLogger(logger),
		server.WithRegistry(registry),
	)
	if err != nil {
		logger.Fatal("failed to initialize server", observability.Error(err))
	}

	return &application{
		server: srv,
		store:  st,
		config: cfg,
	}
}

// initRegistry builds the metrics registry with process collectors.
func initRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// staticGroupResolver builds a resolver from the configured
// group-to-members map.
func staticGroupResolver(groups map[string][]string) perm.GroupResolver {
	membership := make(map[string][]string)
	for group, members := range groups {
		for _, member := range members {
			membership[member] = append(membership[member], group)
		}
	}

	return func(_ context.Context, user string) ([]string, error) {
		return membership[user], nil
	}
}

// runServer runs the server and handles shutdown.
func runServer(app *application, logger observability.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start(context.Background())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", observability.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if app.store != nil {
		if err := app.store.Close(); err != nil {
			logger.Error("failed to close membership store", observability.Error(err))
		}
	}

	logger.Info("avguard stopped")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
