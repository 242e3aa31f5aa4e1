package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/brojonat/mintsales/service/app"
	"github.com/brojonat/mintsales/service/config"
	"github.com/brojonat/mintsales/service/ingest"
	"github.com/urfave/cli/v2"
)

// loadConfig reads the environment and applies any global flags given on the
// command line on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = c.String("log-level")
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("rpc-url") {
		cfg.SolanaRPCURLs = c.StringSlice("rpc-url")
	}
	if c.IsSet("workers") {
		cfg.FetchWorkers = c.Int("workers")
	}
	if c.IsSet("cache-backend") {
		cfg.CacheBackend = c.String("cache-backend")
	}
	if c.IsSet("sale-layouts") {
		cfg.SaleLayoutsFile = c.String("sale-layouts")
	}
	if c.IsSet("database-url") {
		cfg.DatabaseURL = c.String("database-url")
	}
	if c.IsSet("nats-url") {
		cfg.NATSURL = c.String("nats-url")
	}
	if c.IsSet("temporal-host") {
		cfg.TemporalHost = c.String("temporal-host")
	}
	if c.IsSet("temporal-namespace") {
		cfg.TemporalNamespace = c.String("temporal-namespace")
	}
	if c.IsSet("temporal-task-queue") {
		cfg.TemporalTaskQueue = c.String("temporal-task-queue")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getRuntime loads configuration and connects everything it names.
func getRuntime(c *cli.Context) (*app.Runtime, *slog.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	return newRuntime(cfg)
}

func newRuntime(cfg *config.Config) (*app.Runtime, *slog.Logger, error) {
	logger := setupLogger(cfg.LogLevel)
	r, err := app.New(context.Background(), cfg, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return r, logger, nil
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// outputJSON writes data as indented JSON to stdout.
func outputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// selectStreams resolves the stream arguments, or every stream in dependency
// order when none are given.
func selectStreams(c *cli.Context, cfg *config.Config) ([]ingest.Stream, error) {
	all := app.ConfiguredStreams(cfg)
	if c.NArg() == 0 {
		return all, nil
	}
	selected := make([]ingest.Stream, 0, c.NArg())
	for _, name := range c.Args().Slice() {
		stream, err := ingest.FindStream(all, name)
		if err != nil {
			return nil, err
		}
		selected = append(selected, stream)
	}
	return selected, nil
}

func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() != n {
		return fmt.Errorf("requires exactly %d argument(s): %s", n, usage)
	}
	return nil
}
