package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/mintsales/service/ingest"
	"github.com/brojonat/mintsales/service/temporal"
	"github.com/urfave/cli/v2"
)

var allStreams = []string{ingest.StreamPurchases, ingest.StreamMints, ingest.StreamSecondary}

func getTemporalClient(c *cli.Context) (*temporal.Client, time.Duration, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, 0, err
	}
	logger := setupLogger(cfg.LogLevel)
	tc, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		return nil, 0, err
	}
	return tc, cfg.SyncInterval, nil
}

func streamsOrAll(c *cli.Context) []string {
	if c.NArg() == 0 {
		return allStreams
	}
	return c.Args().Slice()
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "Create or update the sync schedule of streams",
		ArgsUsage: "[stream...]",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Time between batch passes (defaults to SYNC_INTERVAL)",
				EnvVars: []string{"SYNC_INTERVAL"},
			},
		},
		Action: func(c *cli.Context) error {
			tc, interval, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if c.IsSet("interval") {
				interval = c.Duration("interval")
			}
			streams := streamsOrAll(c)
			if err := temporal.ScheduleStreams(context.Background(), tc, streams, interval); err != nil {
				return err
			}
			fmt.Printf("Scheduled %d stream(s) every %s\n", len(streams), interval)
			return nil
		},
	}
}

func unscheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "unschedule",
		Usage:     "Delete the sync schedule of streams",
		ArgsUsage: "[stream...]",
		Action: func(c *cli.Context) error {
			tc, _, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			for _, stream := range streamsOrAll(c) {
				if err := tc.DeleteStreamSchedule(context.Background(), stream); err != nil {
					return err
				}
				fmt.Printf("Deleted schedule for %s\n", stream)
			}
			return nil
		},
	}
}

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List stream sync schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			tc, _, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			schedules, err := tc.ListStreamSchedules(context.Background())
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(schedules)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE ID\tSTREAM\tINTERVAL\tPAUSED\tNEXT RUN")
			for _, s := range schedules {
				next := "-"
				if s.NextRun != nil {
					next = s.NextRun.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", s.ID, s.Stream, s.Interval, s.Paused, next)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d schedules\n", len(schedules))
			return nil
		},
	}
}

func triggerCommand() *cli.Command {
	return &cli.Command{
		Name:      "trigger",
		Usage:     "Run one sync workflow for a stream now and wait for it",
		ArgsUsage: "<stream>",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<stream>"); err != nil {
				return err
			}
			tc, _, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			res, err := tc.TriggerStreamSync(context.Background(), c.Args().First())
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(res)
			}
			fmt.Printf("[%s] signatures: %d, newly cached: %d, records: %d, skipped: %d, errored: %d\n",
				res.Stream, res.Signatures, res.NewlyCached, res.Records, res.Unrecognized, res.Errored)
			return nil
		},
	}
}
