package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/brojonat/mintsales/service/app"
	"github.com/brojonat/mintsales/service/classify"
	"github.com/brojonat/mintsales/service/ingest"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// readCached loads one cached document of a stream.
func readCached(ctx context.Context, r *app.Runtime, streamName, signature string) (json.RawMessage, ingest.Stream, error) {
	stream, err := ingest.FindStream(r.Streams(), streamName)
	if err != nil {
		return nil, ingest.Stream{}, err
	}
	c, err := r.Cache(stream)
	if err != nil {
		return nil, ingest.Stream{}, err
	}
	doc, err := c.Read(ctx, signature)
	if err != nil {
		return nil, ingest.Stream{}, err
	}
	return doc, stream, nil
}

func showCachedCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a cached transaction document",
		ArgsUsage: "<stream> <signature>",
		Description: `Prints the cached getTransaction document. With --jq the document is run
through a jq filter first, e.g.

  mintsales cache show mints <signature> --jq '.meta.postBalances[0]'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to the document",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 2, "<stream> <signature>"); err != nil {
				return err
			}
			r, _, err := getRuntime(c)
			if err != nil {
				return err
			}
			defer r.Close()

			doc, _, err := readCached(context.Background(), r, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}

			filter := c.String("jq")
			if filter == "" {
				filter = "."
			}
			results, err := runJQ(doc, filter)
			if err != nil {
				return err
			}
			for _, v := range results {
				if err := outputJSON(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// runJQ applies a jq filter to a JSON document and collects every output.
func runJQ(doc json.RawMessage, filter string) ([]interface{}, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	var input interface{}
	if err := json.Unmarshal(doc, &input); err != nil {
		return nil, fmt.Errorf("cached document is not valid JSON: %w", err)
	}

	var out []interface{}
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq filter %q failed: %w", filter, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func classifyCachedCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Classify one cached transaction with its stream's strategy",
		ArgsUsage: "<stream> <signature>",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 2, "<stream> <signature>"); err != nil {
				return err
			}
			r, _, err := getRuntime(c)
			if err != nil {
				return err
			}
			defer r.Close()

			signature := c.Args().Get(1)
			doc, stream, err := readCached(context.Background(), r, c.Args().Get(0), signature)
			if err != nil {
				return err
			}
			classifier, err := r.Classifier(stream)
			if err != nil {
				return err
			}
			res, err := classifier.Classify(signature, doc)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(struct {
					Outcome string           `json:"outcome"`
					Record  *classify.Record `json:"record,omitempty"`
				}{res.Outcome.String(), res.Record})
			}

			fmt.Printf("Outcome: %s\n", res.Outcome)
			if res.Record != nil {
				names := res.Record.Names()
				for i, value := range res.Record.Strings() {
					fmt.Printf("  %-22s %s\n", names[i]+":", value)
				}
			}
			return nil
		},
	}
}

func balanceDeltaCommand() *cli.Command {
	return &cli.Command{
		Name:      "delta",
		Usage:     "Print the SOL balance change of one account in a cached transaction",
		ArgsUsage: "<stream> <signature> <account-index>",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 3, "<stream> <signature> <account-index>"); err != nil {
				return err
			}
			index, err := strconv.Atoi(c.Args().Get(2))
			if err != nil {
				return fmt.Errorf("invalid account index %q: %w", c.Args().Get(2), err)
			}
			r, _, err := getRuntime(c)
			if err != nil {
				return err
			}
			defer r.Close()

			signature := c.Args().Get(1)
			doc, _, err := readCached(context.Background(), r, c.Args().Get(0), signature)
			if err != nil {
				return err
			}
			delta, err := classify.BalanceDifference(signature, doc, index)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, classify.FormatValue(delta))
			return nil
		},
	}
}
