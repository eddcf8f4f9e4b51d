// Package main is the entry point for the integration gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
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
	envFile     string
	seedPath    string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	if err := loadEnvFile(flags.envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting integrationgw",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.String("documentStore", cfg.DocumentStore.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger, flags.seedPath)
	if err != nil {
		logger.Fatal("failed to initialize application", observability.Error(err))
	}

	run(ctx, app, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config",
		getEnvOrDefault("INTEGRATIONGW_CONFIG_PATH", "configs/integrationgw.yaml"),
		"Path to configuration file")
	envFile := flag.String("env-file", getEnvOrDefault("INTEGRATIONGW_ENV_FILE", ".env"),
		"Path to an optional .env file")
	seedPath := flag.String("seed", getEnvOrDefault("INTEGRATIONGW_SEED_PATH", ""),
		"Path to a documents YAML file written to the document store at startup")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		envFile:     *envFile,
		seedPath:    *seedPath,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("integrationgw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the process logger from the configuration.
func initLogger(cfg *config.Config) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	return logger
}
