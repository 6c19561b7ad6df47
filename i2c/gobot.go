package i2c

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/boardtemp"
	gi2c "gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
)

var _ boardtemp.I2CBus = &GobotBus{}

// GobotBus talks to I2C devices through a gobot connector, one connection per
// device address.
type GobotBus struct {
	guard     Guard
	mx        sync.Mutex
	connector gi2c.Connector
	busNr     int
	conns     map[byte]gi2c.Connection
	finalize  func() error
}

// NewNanoPiBus connects the NanoPi NEO I2C adaptor and uses the given bus number.
func NewNanoPiBus(busNr int) (*GobotBus, error) {
	npi := nanopi.NewNeoAdaptor()
	err := npi.I2cBusAdaptor.Connect()
	if err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	b := NewGobotBus(npi, busNr)
	b.finalize = npi.I2cBusAdaptor.Finalize
	return b, nil
}

func NewGobotBus(connector gi2c.Connector, busNr int) *GobotBus {
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     make(map[byte]gi2c.Connection),
	}
}

func (b *GobotBus) connection(address byte) (gi2c.Connection, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not get connection to %x on bus %d: %w", address, b.busNr, err)
	}
	b.conns[address] = c
	return c, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	c, err := b.connection(address)
	if err != nil {
		return err
	}
	rbuf := make([]byte, len(buffer))
	err = b.guard.Run(ctx, address, func() error {
		n, err := c.Read(rbuf)
		if err != nil {
			return err
		}
		if n != len(rbuf) {
			return fmt.Errorf("short read: %d of %d", n, len(rbuf))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	copy(buffer, rbuf)
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	c, err := b.connection(address)
	if err != nil {
		return err
	}
	err = b.guard.Run(ctx, address, func() error {
		n, err := c.Write(buffer)
		if err != nil {
			return err
		}
		if n != len(buffer) {
			return fmt.Errorf("short write: %d of %d", n, len(buffer))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close closes all device connections and finalizes the adaptor when the bus owns it.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var firstErr error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not close connection to %x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	if b.finalize != nil {
		if err := b.finalize(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not finalize adaptor: %w", err)
		}
	}
	return firstErr
}
