package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/mintsales/service/nats"
	"github.com/urfave/cli/v2"
)

// subscribeCommand prints record events as they are published for a stream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to record events for a stream",
		ArgsUsage: "<stream>",
		Description: `Streams record events published to NATS JetStream for one ingestion stream.
Events are published to the subject: records.{stream}

Example:
  mintsales nats subscribe secondary --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "durable",
				Usage: "Durable consumer name (survives restarts)",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "<stream>"); err != nil {
				return err
			}
			natsURL := c.String("nats-url")
			if natsURL == "" {
				natsURL = "nats://localhost:4222"
			}
			stream := c.Args().First()
			jsonOutput := c.Bool("json")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(os.Stderr, "Subscribed to %s (Ctrl+C to stop)\n", natspkg.Subject(stream))
			count := 0
			err := natspkg.Subscribe(ctx, natsURL, stream, natspkg.SubscribeOptions{Durable: c.String("durable")},
				func(event *natspkg.RecordEvent) {
					count++
					if jsonOutput {
						data, _ := json.Marshal(event)
						fmt.Println(string(data))
						return
					}
					fmt.Printf("%s  %-16s %s  %s\n",
						event.BlockTime.UTC().Format(time.RFC3339),
						event.Kind,
						event.Signature,
						string(event.Fields),
					)
				})
			fmt.Fprintf(os.Stderr, "\nReceived %d events\n", count)
			return err
		},
	}
}
