package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/brojonat/mintsales/service/ingest"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Sync, classify and export streams",
		ArgsUsage: "[stream...]",
		Description: `Runs one batch pass per stream: discover signatures, cache missing
transactions, classify every cached transaction oldest first and export the
records. With no arguments every stream runs in dependency order.

Exits with status 2 without touching any file if a stream's prerequisite
dataset is missing.`,
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			streams, err := selectStreams(c, cfg)
			if err != nil {
				return err
			}
			// Before any connection, migration or cache folder.
			if err := ingest.CheckRunPrerequisites(streams); err != nil {
				return err
			}

			r, logger, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var results []runSummary
			for _, stream := range streams {
				name := stream.Name
				p, err := r.Pipeline(name)
				if err != nil {
					return err
				}
				logger.Info("running stream", "stream", name)

				res, err := p.Run(ctx)
				if err != nil {
					return fmt.Errorf("stream %s: %w", name, err)
				}
				summary := summarizeRun(name, res)
				results = append(results, summary)
				if !c.Bool("json") {
					printRunSummary(os.Stdout, summary)
				}
			}

			if c.Bool("json") {
				return outputJSON(results)
			}
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Discover and cache transactions without classifying",
		ArgsUsage: "[stream...]",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			streams, err := selectStreams(c, cfg)
			if err != nil {
				return err
			}
			// sync exports nothing, so every prerequisite must already exist.
			for _, stream := range streams {
				if err := ingest.CheckPrerequisites(stream); err != nil {
					return err
				}
			}

			r, _, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var results []runSummary
			for _, stream := range streams {
				name := stream.Name
				p, err := r.Pipeline(name)
				if err != nil {
					return err
				}
				res, err := p.Sync(ctx)
				if err != nil {
					return fmt.Errorf("stream %s: %w", name, err)
				}
				summary := summarizeRun(name, &ingest.RunResult{Sync: res})
				results = append(results, summary)
				if !c.Bool("json") {
					printRunSummary(os.Stdout, summary)
				}
			}

			if c.Bool("json") {
				return outputJSON(results)
			}
			return nil
		},
	}
}

type runSummary struct {
	Stream         string  `json:"stream"`
	Signatures     int     `json:"signatures"`
	NewlyCached    int     `json:"newly_cached"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Classified     bool    `json:"-"`
	Records        int     `json:"records"`
	Unrecognized   int     `json:"unrecognized"`
	Errored        int     `json:"errored"`
}

func summarizeRun(stream string, res *ingest.RunResult) runSummary {
	s := runSummary{Stream: stream}
	if res.Sync != nil {
		s.Signatures = len(res.Sync.Signatures)
		s.NewlyCached = res.Sync.NewlyCached
		s.ElapsedSeconds = res.Sync.Elapsed.Seconds()
	}
	if res.Report != nil {
		s.Classified = true
		s.Records = len(res.Report.Records)
		s.Unrecognized = len(res.Report.Unrecognized)
		s.Errored = res.Report.Errored
	}
	return s
}

func printRunSummary(w io.Writer, s runSummary) {
	fmt.Fprintf(w, "[%s] New transactions cached: %d (Took %.2f seconds)\n", s.Stream, s.NewlyCached, s.ElapsedSeconds)
	if s.Classified {
		fmt.Fprintf(w, "[%s] Records exported: %d (trades/transfers skipped: %d, errored: %d)\n",
			s.Stream, s.Records, s.Unrecognized, s.Errored)
	}
}
