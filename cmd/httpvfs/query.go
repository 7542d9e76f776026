package main

import (
	"fmt"
	"io"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/xet7/httpvfs"
	"github.com/xet7/httpvfs/domain/model"
)

func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "path or URL of the database config (json, yaml or toml)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "chunk-compression",
			Usage: "compression of the chunk files on the server: gz, bz2, xz, zstd",
		},
		&cli.Int64Flag{
			Name:  "series-max-rows",
			Usage: "row limit of generate_series without a stop value (0 means default)",
		},
	}
}

func queryFlags() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "run SQL against a remote database",
		ArgsUsage: "SQL",
		Action:    query,
		Flags: append(databaseFlags(),
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "write the last result set to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "csv",
				Usage:   "output format: csv, tsv, ltsv, json, parquet, xlsx",
			},
			&cli.StringFlag{
				Name:  "compress",
				Usage: "compress the output: gz, xz, zstd",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "print fetch statistics to stderr",
			},
		),
	}
}

func statsFlags() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "run SQL and show how much of the remote database it fetched",
		ArgsUsage: "[SQL]",
		Action:    stats,
		Flags: append(databaseFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print statistics as JSON",
			},
		),
	}
}

// parseSize parses a human readable byte count such as 10MiB
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid size %q: %w", model.ErrConfig, s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: size %q is too large", model.ErrConfig, s)
	}
	return int64(n), nil
}

func openDatabase(c *cli.Context) (*httpvfs.Database, error) {
	limit, err := parseSize(c.String("download-limit"))
	if err != nil {
		return nil, err
	}
	compression, err := model.ParseCompressionType(c.String("chunk-compression"))
	if err != nil {
		return nil, err
	}

	builder := httpvfs.NewBuilder().
		WithConfigFile(c.String("config")).
		WithDownloadLimit(limit).
		WithChunkCompression(compression)
	if n := c.Int64("series-max-rows"); n > 0 {
		builder = builder.WithSeriesMaxRows(n)
	}
	return builder.Open(c.Context)
}

func query(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("exactly one SQL argument is needed, got %d", c.Args().Len())
	}
	format, err := model.ParseOutputFormat(c.String("format"))
	if err != nil {
		return err
	}
	compression, err := model.ParseCompressionType(c.String("compress"))
	if err != nil {
		return err
	}
	opts := model.NewExportOptions().WithFormat(format).WithCompression(compression)

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	sets, err := db.Exec(c.Context, c.Args().First())
	if err != nil {
		return err
	}

	if out := c.String("out"); out != "" {
		if len(sets) == 0 {
			return fmt.Errorf("query returned no rows, nothing written to %s", out)
		}
		last := sets[len(sets)-1]
		if err := httpvfs.ExportFile(out, last, opts); err != nil {
			return err
		}
		logger.Infof("wrote %d rows to %s", last.Len(), out)
	} else {
		for _, rs := range sets {
			if err := httpvfs.ExportResult(c.App.Writer, rs, opts); err != nil {
				return err
			}
		}
	}

	if c.Bool("stats") {
		printStats(c.App.ErrWriter, db.Stats())
	}
	return nil
}

func stats(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Args().Present() {
		if _, err := db.Exec(c.Context, c.Args().First()); err != nil {
			return err
		}
	}

	s := db.Stats()
	if c.Bool("json") {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.App.Writer, string(data))
		return err
	}
	printStats(c.App.Writer, s)
	return nil
}

func printStats(w io.Writer, s model.Stats) {
	label := color.New(color.FgHiCyan).SprintFunc()
	value := color.New(color.FgHiWhite, color.Bold).SprintFunc()

	var share float64
	if s.TotalBytes > 0 {
		share = float64(s.TotalFetchedBytes) / float64(s.TotalBytes) * 100
	}
	fmt.Fprintf(w, "%s %s\n", label("file:    "), value(s.Filename))
	fmt.Fprintf(w, "%s %s\n", label("size:    "), value(humanize.IBytes(uint64(max(s.TotalBytes, 0)))))
	fmt.Fprintf(w, "%s %s (%.1f%%)\n", label("fetched: "), value(humanize.IBytes(uint64(max(s.TotalFetchedBytes, 0)))), share)
	fmt.Fprintf(w, "%s %s\n", label("requests:"), value(humanize.Comma(s.TotalRequests)))
}
