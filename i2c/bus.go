package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/boardtemp"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ boardtemp.I2CBus = &GenericBus{}

// GenericBus adapts a periph I2C bus to boardtemp.I2CBus.
//
// periph transfers cannot be interrupted, so every transfer runs in its own
// goroutine and the caller only waits until its context is done. An abandoned
// transfer keeps the bus busy until it returns.
type GenericBus struct {
	guard  Guard
	bus    i2c.Bus
	closer func() error
}

// NewGenericBus initializes the host drivers and opens the named bus. An empty
// name opens the first available bus.
func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	b := NewBus(bus)
	b.closer = bus.Close
	return b, nil
}

// NewBus wraps an already opened bus. Closing the returned GenericBus does not
// close the wrapped one.
func NewBus(bus i2c.Bus) *GenericBus {
	return &GenericBus{bus: bus}
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.tx(ctx, address, nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.tx(ctx, address, buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) tx(ctx context.Context, address byte, w, r []byte) error {
	// the transfer owns its own read buffer so an abandoned transfer never
	// writes into the caller's memory
	var rbuf []byte
	if len(r) > 0 {
		rbuf = make([]byte, len(r))
	}
	err := b.guard.Run(ctx, address, func() error {
		return b.bus.Tx(uint16(address), w, rbuf)
	})
	if err != nil {
		return err
	}
	copy(r, rbuf)
	return nil
}

// SetSpeed changes the bus clock. On linux it usually affects all buses on the host.
func (b *GenericBus) SetSpeed(f physic.Frequency) error {
	return b.bus.SetSpeed(f)
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}
