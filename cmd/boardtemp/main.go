package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/boardtemp/cmd/boardtemp/console"
	"github.com/mklimuk/boardtemp/config"
)

var commit string
var date string

func main() {
	os.Exit(run())
}

func run() int {
	// BOARDTEMP_* variables from .env feed the flag defaults below
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		console.Warnf("could not load .env: %s", err)
	}
	app := cli.NewApp()
	app.Name = "boardtemp"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", config.Version, date, commit)
	app.Usage = "MAX17262 board temperature reader"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "enable verbose logging",
			EnvVars: []string{"BOARDTEMP_VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "boardtemp.yaml",
			Usage:   "configuration file",
			EnvVars: []string{"BOARDTEMP_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   "bus adapter: generic, nanopi, mcp2221 or mock (overrides config)",
			EnvVars: []string{"BOARDTEMP_ADAPTER"},
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "periph bus name for the generic adapter (overrides config)",
			EnvVars: []string{"BOARDTEMP_DEVICE"},
		},
		&cli.IntFlag{
			Name:    "index",
			Aliases: []string{"i"},
			Value:   -1,
			Usage:   "mcp2221 adapter index from 'usb detect' when several are connected (overrides config)",
			EnvVars: []string{"BOARDTEMP_INDEX"},
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stdout, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&readCmd,
		&watchCmd,
		&statusCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		return 1
	}
	return 0
}
