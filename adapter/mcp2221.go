package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/boardtemp"
	"github.com/mklimuk/boardtemp/i2c"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const reportSize = 64

// HID command codes
const (
	cmdStatusSetParameters byte = 0x10
	cmdI2CWriteData        byte = 0x90
	cmdI2CReadData         byte = 0x91
	cmdI2CGetData          byte = 0x40

	cancelTransfer byte = 0x10
	i2cReadError   byte = 0x41
)

var ErrDeviceNotFound = errors.New("MCP2221 device not found")

var _ boardtemp.I2CBus = &MCP2221{}

// DefaultBusTimeout covers the three USB round trips of a register read.
const DefaultBusTimeout = 250 * time.Millisecond

// hidDevice is the part of *hid.Device used by the adapter.
type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// MCP2221 is a Microchip MCP2221 USB to I2C bridge.
// See: https://ww1.microchip.com/downloads/en/DeviceDoc/20005565B.pdf
//
// hid reads block until the adapter answers, so every exchange runs behind an
// i2c.Guard. The device is opened on first use and kept until Close.
type MCP2221 struct {
	guard        i2c.Guard
	dev          hidDevice
	request      []byte
	response     []byte
	responseWait time.Duration
	index        int
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type MCP2221Opt func(*MCP2221)

// WithDeviceIndex selects the adapter when several are connected.
func WithDeviceIndex(index int) MCP2221Opt {
	return func(d *MCP2221) {
		d.index = index
	}
}

// WithResponseWait sets the time given to the adapter to prepare a response.
func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	d := &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 10 * time.Millisecond,
		index:        -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init opens the adapter and frees a bus left busy by a previous, interrupted
// transfer.
func (d *MCP2221) Init(ctx context.Context) error {
	if !hid.Supported() {
		return fmt.Errorf("hid is not supported on this platform")
	}
	status, err := d.ReleaseBus(ctx)
	if err != nil {
		return err
	}
	slog.Debug("mcp2221 ready", "speed_divider", status.I2CSpeedDivider, "timeout", status.I2CTimeout)
	return nil
}

// Index returns the adapter index given with WithDeviceIndex, -1 when unset.
func (d *MCP2221) Index() int {
	return d.index
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	data := append([]byte(nil), buffer...)
	err := d.guard.Run(ctx, address, func() error {
		d.resetBuffers()
		d.request[0] = cmdI2CWriteData
		binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(data)))
		d.request[3] = address << 1
		copy(d.request[4:], data)
		if err := d.exchange(); err != nil {
			return err
		}
		if d.response[1] == 0x01 {
			slog.Debug("mcp2221 busy", "address", fmt.Sprintf("%#x", address))
			return boardtemp.ErrBusBusy
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	data := make([]byte, len(buffer))
	err := d.guard.Run(ctx, address, func() error {
		d.resetBuffers()
		d.request[0] = cmdI2CReadData
		binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(data)))
		d.request[3] = address<<1 + 1
		if err := d.exchange(); err != nil {
			return err
		}
		if d.response[1] == 0x01 {
			return boardtemp.ErrBusBusy
		}
		d.resetBuffers()
		d.request[0] = cmdI2CGetData
		if err := d.exchange(); err != nil {
			return fmt.Errorf("error getting read data from adapter: %w", err)
		}
		return readData(d.response, data)
	})
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	copy(buffer, data)
	return nil
}

// readData copies the payload of a get-data response into buffer.
func readData(response, buffer []byte) error {
	if response[1] == i2cReadError {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if response[3] == 127 || int(response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), response[3])
	}
	copy(buffer, response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	status, err := d.statusParameters(ctx, 0x00)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return status, nil
}

func (d *MCP2221) statusParameters(ctx context.Context, cancel byte) (*MCP2221Status, error) {
	var status *MCP2221Status
	err := d.guard.Run(ctx, 0, func() error {
		d.resetBuffers()
		d.request[0] = cmdStatusSetParameters
		d.request[2] = cancel
		if err := d.exchange(); err != nil {
			return err
		}
		status = bufferToStatus(d.response)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		ReadPending:            int(buffer[25]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
	}
}

func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

// ReleaseBus cancels the current I2C transfer and returns the adapter status.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	status, err := d.statusParameters(ctx, cancelTransfer)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return status, nil
}

// Close closes the USB device. It fails with boardtemp.ErrBusBusy while an
// abandoned exchange is still waiting for the adapter.
func (d *MCP2221) Close() error {
	return d.guard.Run(context.Background(), 0, func() error {
		if d.dev == nil {
			return nil
		}
		err := d.dev.Close()
		d.dev = nil
		return err
	})
}

func (d *MCP2221) open() (*hid.Device, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, ErrDeviceNotFound
	}
	if d.index < 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification: %d adapters connected", len(devs))
		}
		return devs[0].Open()
	}
	if d.index >= len(devs) {
		return nil, fmt.Errorf("no device with index %d", d.index)
	}
	return devs[d.index].Open()
}

// exchange sends the request report and reads the response report. It must
// only run behind the guard. A failed exchange closes the device so the next
// one opens it again.
func (d *MCP2221) exchange() error {
	if d.dev == nil {
		dev, err := d.open()
		if err != nil {
			return fmt.Errorf("error opening device: %w", err)
		}
		d.dev = dev
	}
	slog.Debug("sending message to adapter", "request", hex.EncodeToString(d.request[:8]))
	n, err := d.dev.Write(d.request)
	if err != nil {
		d.drop()
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if d.responseWait > 0 {
		time.Sleep(d.responseWait)
	}
	n, err = d.dev.Read(d.response)
	if err != nil {
		d.drop()
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	slog.Debug("read message from adapter", "response", hex.EncodeToString(d.response[:8]))
	return nil
}

func (d *MCP2221) drop() {
	if err := d.dev.Close(); err != nil {
		slog.Debug("could not close mcp2221", "error", err)
	}
	d.dev = nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
