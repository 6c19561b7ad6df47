package environment

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/mklimuk/boardtemp"
	"periph.io/x/conn/v3/physic"
)

const max17262DefaultAddress = 0x36

// Registers are 16 bits wide and sent LSB first.
const (
	max17262TempRegister    = 0x08
	max17262DevNameRegister = 0x21
)

// MAX17262DevName is the value of the DevName register reported by a MAX17262.
const MAX17262DevName uint16 = 0x4039

// one LSB of the Temp register is 1/256 °C
const max17262TempLSB = physic.Kelvin / 256

const (
	// MAX17262MinTemperature is the lowest temperature the gauge operates at.
	MAX17262MinTemperature physic.Temperature = physic.ZeroCelsius - 40*physic.Kelvin
	// MAX17262MaxTemperature is the highest temperature the gauge operates at.
	MAX17262MaxTemperature physic.Temperature = physic.ZeroCelsius + 85*physic.Kelvin
)

var ErrImplausible = fmt.Errorf("temperature outside of the operating range")

// MAX17262 represents an Analog Devices (Maxim) MAX17262 fuel gauge. Only the
// temperature reported by the gauge is read.
// See: https://www.analog.com/media/en/technical-documentation/data-sheets/MAX17262.pdf
//
// Usage: Instantiate with NewMAX17262, then call GetTemperature(ctx)
type MAX17262 struct {
	transport boardtemp.I2CBus
	address   byte
}

type MAX17262Config struct {
	Address byte
}

type MAX17262ConfigOption func(*MAX17262Config)

func WithAddress(address byte) MAX17262ConfigOption {
	return func(c *MAX17262Config) {
		c.Address = address
	}
}

// NewMAX17262 creates a new MAX17262 connector with the given I2CBus transport.
// The default address 0x36 is used unless overridden with WithAddress.
func NewMAX17262(trans boardtemp.I2CBus, opts ...MAX17262ConfigOption) *MAX17262 {
	config := &MAX17262Config{
		Address: max17262DefaultAddress,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &MAX17262{transport: trans, address: config.Address}
}

func (gauge *MAX17262) Address() byte {
	return gauge.address
}

// DeviceName reads the DevName register.
func (gauge *MAX17262) DeviceName(ctx context.Context) (uint16, error) {
	name, err := gauge.readRegister(ctx, max17262DevNameRegister)
	if err != nil {
		return 0, fmt.Errorf("max17262: could not read device name: %w", err)
	}
	return name, nil
}

// Probe checks that a device answers at the gauge address. A device name other
// than MAX17262DevName is not an error since register compatible parts exist.
func (gauge *MAX17262) Probe(ctx context.Context) error {
	_, err := gauge.DeviceName(ctx)
	return err
}

// GetTemperature reads the Temp register. Readings outside of the gauge
// operating range are reported with ErrImplausible.
func (gauge *MAX17262) GetTemperature(ctx context.Context) (physic.Temperature, error) {
	raw, err := gauge.readRegister(ctx, max17262TempRegister)
	if err != nil {
		return 0, fmt.Errorf("max17262: could not read temperature: %w", err)
	}
	temp := convertMAX17262Temperature(raw)
	if temp < MAX17262MinTemperature || temp > MAX17262MaxTemperature {
		return temp, fmt.Errorf("max17262: %s: %w", temp, ErrImplausible)
	}
	return temp, nil
}

func (gauge *MAX17262) readRegister(ctx context.Context, register byte) (uint16, error) {
	err := gauge.transport.WriteToAddr(ctx, gauge.address, []byte{register})
	if err != nil {
		return 0, fmt.Errorf("could not write register %#x request: %w", register, err)
	}
	resp := make([]byte, 2)
	err = gauge.transport.ReadFromAddr(ctx, gauge.address, resp)
	if err != nil {
		return 0, fmt.Errorf("could not read register %#x: %w", register, err)
	}
	return binary.LittleEndian.Uint16(resp), nil
}

// convertMAX17262Temperature converts the two's complement Temp register value.
func convertMAX17262Temperature(raw uint16) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(int16(raw))*max17262TempLSB
}
