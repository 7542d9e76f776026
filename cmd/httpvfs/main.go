// Command httpvfs queries SQLite databases served as static chunk files,
// splits databases into chunks and serves them with range support.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/xet7/httpvfs/internal/logging"
)

var logger = logging.GetLogger("cli")

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgHiRed).Sprint(err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "httpvfs",
		Usage: "query SQLite databases over HTTP range requests",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug log",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "write logs to this file instead of stderr",
			},
			&cli.StringFlag{
				Name:  "download-limit",
				Usage: "bandwidth limit for chunk downloads per second, e.g. 512KiB (0 means unlimited)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			queryFlags(),
			statsFlags(),
			splitFlags(),
			serveFlags(),
		},
	}
}

func setup(c *cli.Context) error {
	if c.Bool("verbose") {
		logging.SetLogLevel(logrus.DebugLevel)
	}
	if name := c.String("log-file"); name != "" {
		if err := logging.SetOutFile(name); err != nil {
			return err
		}
	}
	if f, ok := c.App.Writer.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		color.NoColor = true
	}
	return nil
}
