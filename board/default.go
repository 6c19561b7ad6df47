package board

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/boardtemp/environment"
	"github.com/mklimuk/boardtemp/i2c"
	"periph.io/x/conn/v3/physic"
)

var std struct {
	mx   sync.Mutex
	temp *Temp
}

// openDefault builds the instance used when Begin runs without SetDefault.
var openDefault = func() (*Temp, error) {
	bus, err := i2c.NewGenericBus("")
	if err != nil {
		return nil, err
	}
	return NewTemp(environment.NewMAX17262(bus)), nil
}

// SetDefault replaces the instance used by Begin, Poll1Hz and GetF.
func SetDefault(t *Temp) {
	std.mx.Lock()
	defer std.mx.Unlock()
	std.temp = t
}

// Default returns the instance used by the package level functions, nil before
// Begin or SetDefault.
func Default() *Temp {
	std.mx.Lock()
	defer std.mx.Unlock()
	return std.temp
}

// Begin sets up the default instance, opening the first I2C bus of the host
// when none was set. A bus that cannot be opened leaves the reading Unavailable.
func Begin() {
	std.mx.Lock()
	if std.temp == nil {
		t, err := openDefault()
		if err != nil {
			slog.Warn("could not open board temperature bus", "error", err)
			t = NewTemp(unavailableSource{err: err})
		}
		std.temp = t
	}
	t := std.temp
	std.mx.Unlock()
	t.Begin(context.Background())
}

// Poll1Hz polls the default instance. It does nothing before Begin.
func Poll1Hz() {
	if t := Default(); t != nil {
		t.Poll1Hz(context.Background())
	}
}

// GetF returns the default instance reading.
func GetF() int {
	if t := Default(); t != nil {
		return t.GetF()
	}
	return Unavailable
}

type unavailableSource struct {
	err error
}

func (s unavailableSource) GetTemperature(ctx context.Context) (physic.Temperature, error) {
	return 0, fmt.Errorf("no temperature source: %w", s.err)
}
