package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/xet7/httpvfs"
)

func splitFlags() *cli.Command {
	return &cli.Command{
		Name:      "split",
		Usage:     "split a SQLite database into chunk files and write config.json",
		ArgsUsage: "SRC DSTDIR",
		Action:    split,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "chunk-size",
				Value: "10MiB",
				Usage: "size of every chunk file",
			},
			&cli.IntFlag{
				Name:  "suffix-length",
				Value: 3,
				Usage: "number of digits in chunk file names",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "do not show the progress bar",
			},
		},
	}
}

// newProgressBar returns a byte progress bar, silent when quiet or not on a terminal
func newProgressBar(title string, quiet bool) (*mpb.Progress, *mpb.Bar) {
	var progress *mpb.Progress
	if !quiet && isatty.IsTerminal(os.Stdout.Fd()) {
		progress = mpb.New(mpb.WithWidth(64))
	} else {
		progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(nil))
	}
	bar := progress.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(title, decor.WCSyncWidth),
			decor.CountersKibiByte("% .1f / % .1f"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
		),
	)
	return progress, bar
}

func split(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("SRC and DSTDIR are needed")
	}
	chunkSize, err := parseSize(c.String("chunk-size"))
	if err != nil {
		return err
	}

	progress, bar := newProgressBar("split", c.Bool("quiet"))
	cfg, err := httpvfs.SplitFile(c.Args().Get(0), c.Args().Get(1), chunkSize, c.Int("suffix-length"),
		httpvfs.WithSplitProgress(func(written, total int64) {
			bar.SetTotal(total, false)
			bar.SetCurrent(written)
		}))
	if err != nil {
		bar.Abort(true)
		progress.Wait()
		return err
	}
	bar.SetTotal(-1, true)
	progress.Wait()

	chunks := (cfg.DatabaseLengthBytes + cfg.ServerChunkSize - 1) / cfg.ServerChunkSize
	_, err = fmt.Fprintf(c.App.Writer, "wrote %d chunks of %s (page size %s) to %s\n",
		chunks, humanize.IBytes(uint64(cfg.ServerChunkSize)), humanize.IBytes(uint64(cfg.RequestChunkSize)), c.Args().Get(1))
	return err
}
