package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/mintsales/service/app"
	"github.com/brojonat/mintsales/service/config"
	"github.com/brojonat/mintsales/service/db"
	"github.com/urfave/cli/v2"
)

// getStore returns the runtime and its store, failing when no database is configured.
func getStore(c *cli.Context) (*db.Store, *app.Runtime, error) {
	r, _, err := getRuntime(c)
	if err != nil {
		return nil, nil, err
	}
	if r.Store() == nil {
		r.Close()
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	return r.Store(), r, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the cache and record tables",
		Action: func(c *cli.Context) error {
			// Connecting the runtime applies the schema.
			_, r, err := getStore(c)
			if err != nil {
				return err
			}
			defer r.Close()
			fmt.Println("schema is up to date")
			return nil
		},
	}
}

func listRecordsCommand() *cli.Command {
	return &cli.Command{
		Name:      "records",
		Usage:     "List exported records of a stream",
		ArgsUsage: "<stream>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "since",
				Usage: "Only records at or after this time (unix seconds or RFC 3339)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of records",
				Value:   100,
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<stream>"); err != nil {
				return err
			}
			params := db.ListRecordsParams{
				Stream: c.Args().First(),
				Limit:  int32(c.Int("limit")),
			}
			if s := c.String("since"); s != "" {
				since, err := config.ParseTime(s)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				params.Since = &since
			}

			store, r, err := getStore(c)
			if err != nil {
				return err
			}
			defer r.Close()

			records, err := store.ListRecords(context.Background(), params)
			if err != nil {
				return fmt.Errorf("failed to list records: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(records)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BLOCK TIME\tKIND\tSIGNATURE\tFIELDS")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					rec.BlockTime.UTC().Format(time.RFC3339),
					rec.Kind,
					rec.Signature,
					string(rec.Fields),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d records\n", len(records))
			return nil
		},
	}
}

func countCachedCommand() *cli.Command {
	return &cli.Command{
		Name:      "count-cached",
		Usage:     "Count transactions cached in postgres for a stream",
		ArgsUsage: "<stream>",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<stream>"); err != nil {
				return err
			}
			store, r, err := getStore(c)
			if err != nil {
				return err
			}
			defer r.Close()

			n, err := store.CountCachedTransactions(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to count cached transactions: %w", err)
			}
			fmt.Println(n)
			return nil
		},
	}
}
