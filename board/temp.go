// Package board keeps the last known board temperature read from the
// MAX17262 fuel gauge.
//
// Call Begin once at startup, Poll1Hz on every iteration of the main loop and
// GetF whenever the temperature is needed. Poll1Hz talks to the gauge at most
// once per second no matter how often it is called. GetF returns Unavailable
// until a plausible reading is obtained and again after any failed reading.
package board

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Unavailable is returned by GetF when there is no valid reading.
const Unavailable = -999

const (
	DefaultInterval   = time.Second
	DefaultBusTimeout = 50 * time.Millisecond
	// DefaultMinF and DefaultMaxF match the MAX17262 operating range of -40..85 °C.
	DefaultMinF = -40
	DefaultMaxF = 185
)

// TemperatureSource provides a single temperature reading per call.
type TemperatureSource interface {
	GetTemperature(ctx context.Context) (physic.Temperature, error)
}

// Prober is implemented by sources able to check device presence.
type Prober interface {
	Probe(ctx context.Context) error
}

type TempOpts struct {
	Interval   time.Duration
	BusTimeout time.Duration
	MinF       int
	MaxF       int
	Clock      func() time.Time
}

type TempOpt func(*TempOpts)

func WithInterval(interval time.Duration) TempOpt {
	return func(o *TempOpts) {
		o.Interval = interval
	}
}

func WithBusTimeout(timeout time.Duration) TempOpt {
	return func(o *TempOpts) {
		o.BusTimeout = timeout
	}
}

// WithPlausibleRange sets the inclusive range of Fahrenheit values accepted as valid.
func WithPlausibleRange(minF, maxF int) TempOpt {
	return func(o *TempOpts) {
		o.MinF = minF
		o.MaxF = maxF
	}
}

func WithClock(clock func() time.Time) TempOpt {
	return func(o *TempOpts) {
		o.Clock = clock
	}
}

// Temp caches the board temperature in whole degrees Fahrenheit.
type Temp struct {
	mx     sync.Mutex
	source TemperatureSource
	config TempOpts

	begun    bool
	polled   bool
	lastPoll time.Time

	reading atomic.Int32
}

func NewTemp(source TemperatureSource, opts ...TempOpt) *Temp {
	config := TempOpts{
		Interval:   DefaultInterval,
		BusTimeout: DefaultBusTimeout,
		MinF:       DefaultMinF,
		MaxF:       DefaultMaxF,
		Clock:      time.Now,
	}
	for _, opt := range opts {
		opt(&config)
	}
	t := &Temp{source: source, config: config}
	t.reading.Store(Unavailable)
	return t
}

// Begin prepares the gauge. Only the first call has any effect.
func (t *Temp) Begin(ctx context.Context) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.begun {
		return
	}
	t.begun = true
	if p, ok := t.source.(Prober); ok {
		ctx, cancel := context.WithTimeout(ctx, t.config.BusTimeout)
		defer cancel()
		if err := p.Probe(ctx); err != nil {
			slog.Warn("board temperature sensor not responding", "error", err)
			return
		}
		slog.Debug("board temperature sensor found")
	}
}

// Poll1Hz refreshes the reading when at least one interval passed since the
// previous attempt. It never waits on the bus longer than the bus timeout and
// does nothing before Begin.
func (t *Temp) Poll1Hz(ctx context.Context) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if !t.begun {
		return
	}
	now := t.config.Clock()
	if t.polled {
		// a clock going backwards makes the poll due
		elapsed := now.Sub(t.lastPoll)
		if elapsed >= 0 && elapsed < t.config.Interval {
			return
		}
	}
	t.polled = true
	t.lastPoll = now

	ctx, cancel := context.WithTimeout(ctx, t.config.BusTimeout)
	defer cancel()
	temp, err := t.source.GetTemperature(ctx)
	if err != nil {
		t.invalidate("board temperature read failed", "error", err)
		return
	}
	f := toFahrenheit(temp)
	if f < t.config.MinF || f > t.config.MaxF {
		t.invalidate("implausible board temperature", "fahrenheit", f)
		return
	}
	if prev := t.reading.Swap(int32(f)); prev == Unavailable {
		slog.Info("board temperature available", "fahrenheit", f)
	}
}

// invalidate drops the reading, logging only when a valid one is lost.
func (t *Temp) invalidate(msg string, args ...any) {
	if prev := t.reading.Swap(Unavailable); prev != Unavailable {
		slog.Warn(msg, args...)
		return
	}
	slog.Debug(msg, args...)
}

// GetF returns the last reading in Fahrenheit or Unavailable.
func (t *Temp) GetF() int {
	return int(t.reading.Load())
}

func toFahrenheit(temp physic.Temperature) int {
	return int(math.Round(temp.Fahrenheit()))
}
