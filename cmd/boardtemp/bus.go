package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/boardtemp"
	"github.com/mklimuk/boardtemp/adapter"
	"github.com/mklimuk/boardtemp/board"
	"github.com/mklimuk/boardtemp/cmd/boardtemp/console"
	"github.com/mklimuk/boardtemp/config"
	"github.com/mklimuk/boardtemp/environment"
	"github.com/mklimuk/boardtemp/i2c"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	conf, err := config.Load(c.String("config"))
	if err != nil {
		return conf, err
	}
	if a := c.String("adapter"); a != "" {
		conf.Bus.Adapter = a
	}
	if d := c.String("device"); d != "" {
		conf.Bus.Device = d
	}
	if c.IsSet("index") {
		conf.Bus.Index = c.Int("index")
	}
	return conf, conf.Validate()
}

func openBus(ctx context.Context, conf config.Config) (boardtemp.I2CBus, io.Closer, error) {
	switch conf.Bus.Adapter {
	case config.AdapterMCP2221:
		ad := newMCP2221(conf)
		ctx, cancel := context.WithTimeout(ctx, conf.BusTimeout())
		defer cancel()
		if err := ad.Init(ctx); err != nil {
			closeQuietly(ad)
			return nil, nil, err
		}
		return ad, ad, nil
	case config.AdapterNanoPi:
		bus, err := i2c.NewNanoPiBus(conf.Bus.Number)
		if err != nil {
			return nil, nil, err
		}
		return bus, bus, nil
	case config.AdapterGeneric:
		bus, err := i2c.NewGenericBus(conf.Bus.Device)
		if err != nil {
			return nil, nil, err
		}
		if conf.Bus.SpeedHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(conf.Bus.SpeedHz) * physic.Hertz); err != nil {
				_ = bus.Close()
				return nil, nil, fmt.Errorf("could not set bus speed: %w", err)
			}
		}
		return bus, bus, nil
	}
	return nil, nil, fmt.Errorf("adapter %q has no bus", conf.Bus.Adapter)
}

func newMCP2221(conf config.Config) *adapter.MCP2221 {
	return adapter.NewMCP2221(adapter.WithDeviceIndex(conf.Bus.Index))
}

// gauge is the temperature source together with its identity for status output.
type gauge interface {
	board.TemperatureSource
	board.Prober
}

func openGauge(ctx context.Context, conf config.Config) (gauge, *environment.MAX17262, io.Closer, error) {
	if conf.Bus.Adapter == config.AdapterMock {
		return environment.NewMockMAX17262(conf.Gauge.MockCelsius), nil, nopCloser{}, nil
	}
	bus, closer, err := openBus(ctx, conf)
	if err != nil {
		return nil, nil, nil, err
	}
	dev := environment.NewMAX17262(bus, environment.WithAddress(conf.Gauge.Address))
	return dev, dev, closer, nil
}

func closeQuietly(closer io.Closer) {
	if err := closer.Close(); err != nil {
		console.Errorf("error closing bus: %s", console.Red(err))
	}
}
