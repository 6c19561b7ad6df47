package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/boardtemp/adapter"
	"github.com/mklimuk/boardtemp/board"
)

// Version is injected at build time.
var Version = "dev"

const (
	AdapterGeneric = "generic"
	AdapterNanoPi  = "nanopi"
	AdapterMCP2221 = "mcp2221"
	AdapterMock    = "mock"
)

type Config struct {
	Bus   Bus   `yaml:"bus"`
	Gauge Gauge `yaml:"gauge"`
	Poll  Poll  `yaml:"poll"`
}

type Bus struct {
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name used by the generic adapter, empty for the first bus.
	Device string `yaml:"device"`
	// Number is the bus number used by the nanopi adapter.
	Number int `yaml:"number"`
	// SpeedHz changes the bus clock when not zero.
	SpeedHz int64 `yaml:"speed_hz"`
	// Index selects the mcp2221 adapter when several are connected, -1 when only one is.
	Index int `yaml:"index"`
}

type Gauge struct {
	Address byte `yaml:"address"`
	// MockCelsius is reported by the mock adapter.
	MockCelsius float64 `yaml:"mock_celsius"`
}

type Poll struct {
	Interval time.Duration `yaml:"interval"`
	// BusTimeout bounds a single gauge transaction. Zero selects the adapter default.
	BusTimeout time.Duration `yaml:"bus_timeout"`
	MinF       int           `yaml:"min_f"`
	MaxF       int           `yaml:"max_f"`
}

func Default() Config {
	return Config{
		Bus: Bus{
			Adapter: AdapterGeneric,
			Number:  0,
			Index:   -1,
		},
		Gauge: Gauge{
			Address:     0x36,
			MockCelsius: 25,
		},
		Poll: Poll{
			Interval: board.DefaultInterval,
			MinF:     board.DefaultMinF,
			MaxF:     board.DefaultMaxF,
		},
	}
}

// Load reads a YAML file on top of the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("could not read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Bus.Adapter {
	case AdapterGeneric, AdapterNanoPi, AdapterMCP2221, AdapterMock:
	default:
		return fmt.Errorf("unknown adapter %q", c.Bus.Adapter)
	}
	if c.Bus.Index < -1 {
		return fmt.Errorf("invalid adapter index %d", c.Bus.Index)
	}
	if c.Gauge.Address == 0 || c.Gauge.Address > 0x7F {
		return fmt.Errorf("invalid gauge address %#x", c.Gauge.Address)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.BusTimeout < 0 {
		return fmt.Errorf("bus timeout must not be negative, got %s", c.Poll.BusTimeout)
	}
	if c.Poll.MinF >= c.Poll.MaxF {
		return fmt.Errorf("empty plausible range %d..%d", c.Poll.MinF, c.Poll.MaxF)
	}
	return nil
}

// BusTimeout returns the configured bus timeout or the default of the adapter.
// A register read over the mcp2221 takes three USB round trips.
func (c Config) BusTimeout() time.Duration {
	if c.Poll.BusTimeout > 0 {
		return c.Poll.BusTimeout
	}
	if c.Bus.Adapter == AdapterMCP2221 {
		return adapter.DefaultBusTimeout
	}
	return board.DefaultBusTimeout
}

func (c Config) TempOpts() []board.TempOpt {
	return []board.TempOpt{
		board.WithInterval(c.Poll.Interval),
		board.WithBusTimeout(c.BusTimeout()),
		board.WithPlausibleRange(c.Poll.MinF, c.Poll.MaxF),
	}
}
