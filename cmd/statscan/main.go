// Command statscan is a small CLI demonstrating pkg/statreader end to
// end: open a file, print its schema, or run a scan and report row/
// chunk counts. It wires parser.DefaultFactory, so both "schema" and
// "scan" fail with an Unsupported error (opening a file already runs the
// metadata pass through the factory) until a real cgo-backed Parser is
// registered in place of DefaultFactory — the three byte-level format
// parsers are out of scope for this module.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/statreader/statreader/internal/metrics"
	"github.com/statreader/statreader/internal/parser"
	"github.com/statreader/statreader/internal/pool"
	"github.com/statreader/statreader/pkg/log"
	"github.com/statreader/statreader/pkg/statreader"
)

func optionsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "chunk-size", Usage: "rows per emitted chunk (0 = default)"},
		&cli.IntFlag{Name: "thread-budget", Usage: "max concurrent workers (0 = default)"},
		&cli.Int64Flag{Name: "offset", Usage: "skip this many rows before the first delivered row"},
		&cli.Int64Flag{Name: "limit", Usage: "deliver at most this many rows (0 = no limit)"},
		&cli.StringSliceFlag{Name: "project", Aliases: []string{"p"}, Usage: "column to include (repeatable); default is every column"},
		&cli.BoolFlag{Name: "preserve-order", Usage: "reassemble chunks in file order"},
		&cli.BoolFlag{Name: "use-mmap", Usage: "memory-map local files instead of positioned reads"},
		&cli.BoolFlag{Name: "value-labels-as-strings", Usage: "resolve labelled numeric codes to their label text"},
		&cli.BoolFlag{Name: "missing-string-as-null", Usage: "treat empty strings as null instead of \"\""},
		&cli.StringFlag{Name: "s3-endpoint", Usage: "S3-compatible endpoint override (minio, etc)"},
		&cli.BoolFlag{Name: "s3-path-style", Usage: "use path-style S3 addressing"},
	}
}

func optionsFromFlags(c *cli.Context) (json.RawMessage, error) {
	opts := map[string]any{}
	if v := c.Int("chunk-size"); v > 0 {
		opts["chunk_size"] = v
	}
	if v := c.Int("thread-budget"); v > 0 {
		opts["thread_budget"] = v
	}
	if v := c.Int64("offset"); v > 0 {
		opts["offset"] = v
	}
	if v := c.Int64("limit"); v > 0 {
		opts["limit"] = v
	}
	if cols := c.StringSlice("project"); len(cols) > 0 {
		opts["projection"] = cols
	}
	if c.Bool("preserve-order") {
		opts["preserve_order"] = true
	}
	if c.Bool("use-mmap") {
		opts["use_mmap"] = true
	}
	if c.Bool("value-labels-as-strings") {
		opts["value_labels_as_strings"] = true
	}
	if c.Bool("missing-string-as-null") {
		opts["missing_string_as_null"] = true
	}
	if v := c.String("s3-endpoint"); v != "" {
		opts["s3_endpoint"] = v
	}
	if c.Bool("s3-path-style") {
		opts["s3_use_path_style"] = true
	}
	return json.Marshal(opts)
}

func runSchema(c *cli.Context) error {
	uri := c.Args().First()
	if uri == "" {
		return cli.Exit("statscan schema: missing file argument", 1)
	}
	rawOpts, err := optionsFromFlags(c)
	if err != nil {
		return err
	}

	s, err := statreader.Open(c.Context, uri, parser.DefaultFactory, rawOpts, nil, nil)
	if err != nil {
		return cli.Exit(fmt.Sprintf("statscan: %v", err), 1)
	}

	schema, err := s.Schema()
	if err != nil {
		return cli.Exit(fmt.Sprintf("statscan: %v", err), 1)
	}
	for _, col := range schema {
		fmt.Printf("%s\t%s\n", col.Name, col.Type)
	}
	return nil
}

func runScan(c *cli.Context) error {
	uri := c.Args().First()
	if uri == "" {
		return cli.Exit("statscan scan: missing file argument", 1)
	}
	rawOpts, err := optionsFromFlags(c)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	p, err := pool.New(pool.Config{
		ThreadBudget:  c.Int("thread-budget"),
		SweepInterval: 5 * time.Minute,
		Metrics:       reg,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("statscan: %v", err), 1)
	}
	defer p.Shutdown()

	s, err := p.Open(c.Context, uri, parser.DefaultFactory, rawOpts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("statscan: %v", err), 1)
	}

	o, err := s.NewScan(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("statscan: %v", err), 1)
	}
	defer o.Close()

	var chunks, rows int
	for {
		b, err := o.Next()
		if err != nil {
			return cli.Exit(fmt.Sprintf("statscan: %v", err), 1)
		}
		if b == nil {
			break
		}
		chunks++
		if len(b.Columns) > 0 {
			rows += b.Columns[0].Len()
		}
	}
	log.Infof("statscan: %q: %d chunk(s), %d row(s)", uri, chunks, rows)
	return nil
}

func main() {
	app := &cli.App{
		Name:  "statscan",
		Usage: "inspect and scan SAS/Stata/SPSS binary table files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "loglevel", Value: "warn", Usage: "debug, info, warn, err, crit"},
		},
		Before: func(c *cli.Context) error {
			log.SetLogLevel(strings.ToLower(c.String("loglevel")))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "schema",
				Usage:     "print the projected schema of a file and exit",
				ArgsUsage: "<file>",
				Flags:     optionsFlags(),
				Action:    runSchema,
			},
			{
				Name:      "scan",
				Usage:     "run a full scan and report chunk/row counts",
				ArgsUsage: "<file>",
				Flags:     optionsFlags(),
				Action:    runScan,
			},
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
