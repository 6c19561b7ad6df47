package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/boardtemp/board"
	"github.com/mklimuk/boardtemp/cmd/boardtemp/console"
)

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Usage:   "read the board temperature once",
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		conf, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		src, _, closer, err := openGauge(ctx, conf)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer closeQuietly(closer)

		temp := board.NewTemp(src, conf.TempOpts()...)
		temp.Begin(ctx)
		temp.Poll1Hz(ctx)
		f := temp.GetF()
		if f == board.Unavailable {
			return console.Exit(2, "temperature unavailable (%d)", f)
		}
		console.Printf("%s %s °F\n", console.PictoThermometer, console.White(f))
		return nil
	},
}

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "poll the board temperature from a main loop and print changes",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "tick",
			Value: 100 * time.Millisecond,
			Usage: "main loop period; the gauge is still read at most once per poll interval",
		},
	},
	Action: func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		conf, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		src, _, closer, err := openGauge(ctx, conf)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer closeQuietly(closer)

		temp := board.NewTemp(src, conf.TempOpts()...)
		board.SetDefault(temp)
		board.Begin()

		ticker := time.NewTicker(c.Duration("tick"))
		defer ticker.Stop()
		last := board.Unavailable
		printReading(last)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				board.Poll1Hz()
				if f := board.GetF(); f != last {
					last = f
					printReading(f)
				}
			}
		}
	},
}

func printReading(f int) {
	if f == board.Unavailable {
		console.Printf("%s %s\n", console.PictoThermometer, console.Yellow("unavailable"))
		return
	}
	console.Printf("%s %s °F\n", console.PictoThermometer, console.White(f))
}
