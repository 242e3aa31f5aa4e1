package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/brojonat/mintsales/service/ingest"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "mintsales",
		Usage: "Reconstruct mint, purchase and resale history from the Solana ledger",
		Description: `Discovers transaction signatures for each stream's address, caches every
transaction locally, classifies the cached documents and exports the records.

Streams: purchases, mints, secondary. The mints and secondary streams need the
purchases export, so run purchases first.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			runCommand(),
			syncCommand(),
			{
				Name:  "cache",
				Usage: "Inspect cached transaction documents",
				Subcommands: []*cli.Command{
					showCachedCommand(),
					classifyCachedCommand(),
					balanceDeltaCommand(),
				},
			},
			{
				Name:  "db",
				Usage: "Database inspection commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					listRecordsCommand(),
					countCachedCommand(),
				},
			},
			{
				Name:  "nats",
				Usage: "NATS record streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			{
				Name:  "temporal",
				Usage: "Temporal schedule management commands",
				Subcommands: []*cli.Command{
					scheduleCommand(),
					unscheduleCommand(),
					listSchedulesCommand(),
					triggerCommand(),
				},
			},
		},
		// Global flags override the matching environment variables.
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Folder holding the per-stream caches and exports",
				EnvVars: []string{"DATA_DIR"},
			},
			&cli.StringSliceFlag{
				Name:    "rpc-url",
				Usage:   "Solana JSON-RPC endpoint (repeatable; one is picked at random)",
				EnvVars: []string{"SOLANA_RPC_URLS"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Concurrent transaction fetches",
				EnvVars: []string{"FETCH_WORKERS"},
			},
			&cli.StringFlag{
				Name:    "cache-backend",
				Usage:   "Transaction cache backend (file or postgres)",
				EnvVars: []string{"CACHE_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "sale-layouts",
				Usage:   "YAML file with secondary sale account layouts",
				EnvVars: []string{"SALE_LAYOUTS_FILE"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL (enables the postgres sink)",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL (enables the NATS sink)",
				EnvVars: []string{"NATS_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status. A missing
// prerequisite exits 2 so callers can tell it apart from a failed run.
func exitCode(err error) int {
	var missing *ingest.PrerequisiteMissingError
	if errors.As(err, &missing) {
		return 2
	}
	return 1
}
