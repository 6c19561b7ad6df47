package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/boardtemp/board"
	"github.com/mklimuk/boardtemp/cmd/boardtemp/console"
	"github.com/mklimuk/boardtemp/environment"
)

type gaugeStatus struct {
	Adapter     string  `yaml:"adapter"`
	Address     string  `yaml:"address,omitempty"`
	DeviceName  string  `yaml:"device_name,omitempty"`
	MAX17262    bool    `yaml:"max17262"`
	Celsius     float64 `yaml:"celsius,omitempty"`
	Fahrenheit  int     `yaml:"fahrenheit"`
	Error       string  `yaml:"error,omitempty"`
	BusTimeout  string  `yaml:"bus_timeout"`
	MinF        int     `yaml:"min_f"`
	MaxF        int     `yaml:"max_f"`
	Description string  `yaml:"description,omitempty"`
}

var statusCmd = cli.Command{
	Name:  "status",
	Usage: "probe the gauge and print its state as YAML",
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		conf, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		src, dev, closer, err := openGauge(ctx, conf)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer closeQuietly(closer)

		status := gaugeStatus{
			Adapter:    conf.Bus.Adapter,
			Fahrenheit: board.Unavailable,
			BusTimeout: conf.BusTimeout().String(),
			MinF:       conf.Poll.MinF,
			MaxF:       conf.Poll.MaxF,
		}
		if dev != nil {
			status.Address = fmt.Sprintf("%#x", dev.Address())
			probeCtx, cancel := context.WithTimeout(ctx, conf.BusTimeout())
			name, err := dev.DeviceName(probeCtx)
			cancel()
			if err != nil {
				status.Error = err.Error()
			} else {
				status.DeviceName = fmt.Sprintf("%#04x", name)
				status.MAX17262 = name == environment.MAX17262DevName
			}
		} else {
			status.Description = "mock gauge"
		}
		if status.Error == "" {
			t, f, err := pollOnce(ctx, src, conf.TempOpts()...)
			if err != nil {
				status.Error = err.Error()
			} else {
				status.Celsius = t.Celsius()
				status.Fahrenheit = f
			}
		}
		return encodeYAML(status)
	},
}

// recordingSource keeps the outcome of the last reading it passed on.
type recordingSource struct {
	source board.TemperatureSource
	last   physic.Temperature
	err    error
}

func (r *recordingSource) GetTemperature(ctx context.Context) (physic.Temperature, error) {
	r.last, r.err = r.source.GetTemperature(ctx)
	return r.last, r.err
}

// pollOnce reads the gauge a single time through board.Temp and returns the
// raw reading next to the value reported by GetF.
func pollOnce(ctx context.Context, src board.TemperatureSource, opts ...board.TempOpt) (physic.Temperature, int, error) {
	rec := &recordingSource{source: src}
	temp := board.NewTemp(rec, opts...)
	temp.Begin(ctx)
	temp.Poll1Hz(ctx)
	return rec.last, temp.GetF(), rec.err
}
