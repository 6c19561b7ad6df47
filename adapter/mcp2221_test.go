package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/boardtemp"
)

// fakeHID answers requests with the queued reports. When block is set every
// read waits until it is closed.
type fakeHID struct {
	mx        sync.Mutex
	requests  [][]byte
	responses [][]byte
	block     chan struct{}
	closed    bool
}

func (f *fakeHID) queue(reports ...[]byte) {
	f.mx.Lock()
	defer f.mx.Unlock()
	for _, r := range reports {
		report := make([]byte, reportSize)
		copy(report, r)
		f.responses = append(f.responses, report)
	}
}

func (f *fakeHID) Write(b []byte) (int, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.requests = append(f.requests, append([]byte(nil), b...))
	return len(b), nil
}

func (f *fakeHID) Read(b []byte) (int, error) {
	if f.block != nil {
		<-f.block
	}
	f.mx.Lock()
	defer f.mx.Unlock()
	if len(f.responses) == 0 {
		return 0, errors.New("device disconnected")
	}
	copy(b, f.responses[0])
	f.responses = f.responses[1:]
	return reportSize, nil
}

func (f *fakeHID) Close() error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHID) isClosed() bool {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.closed
}

func newTestAdapter(dev *fakeHID) *MCP2221 {
	d := NewMCP2221(WithResponseWait(0))
	d.dev = dev
	return d
}

func TestMCP2221_BufferToStatus(t *testing.T) {
	buf := make([]byte, reportSize)
	buf[9], buf[10] = 0x02, 0x00
	buf[11], buf[12] = 0x01, 0x00
	buf[13] = 3
	buf[14] = 0x76
	buf[15] = 0x20
	buf[16], buf[17] = 0x6c, 0x00
	buf[25] = 1

	status := bufferToStatus(buf)
	assert.Equal(t, &MCP2221Status{
		I2CDataBufferCounter:   3,
		I2CSpeedDivider:        0x76,
		I2CTimeout:             0x20,
		CurrentAddress:         "6c00",
		LastWriteRequestedSize: 2,
		LastWriteSentSize:      1,
		ReadPending:            1,
	}, status)
}

func TestMCP2221_ReadData(t *testing.T) {
	tests := []struct {
		name     string
		response []byte
		size     int
		expected []byte
		err      string
	}{
		{
			name:     "temperature register",
			response: []byte{cmdI2CGetData, 0x00, 0x00, 0x02, 0x00, 0x19},
			size:     2,
			expected: []byte{0x00, 0x19},
		},
		{
			name:     "engine error",
			response: []byte{cmdI2CGetData, i2cReadError, 0x00, 0x00},
			size:     2,
			err:      "error reading the I2C slave data from the I2C engine",
		},
		{
			name:     "invalid size",
			response: []byte{cmdI2CGetData, 0x00, 0x00, 127},
			size:     2,
			err:      "invalid data size byte; expected 2, got 127",
		},
		{
			name:     "size mismatch",
			response: []byte{cmdI2CGetData, 0x00, 0x00, 0x01, 0x19},
			size:     2,
			err:      "invalid data size byte; expected 2, got 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := make([]byte, reportSize)
			copy(response, tt.response)
			buf := make([]byte, tt.size)
			err := readData(response, buf)
			if tt.err != "" {
				assert.EqualError(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, buf)
		})
	}
}

func TestMCP2221_Options(t *testing.T) {
	d := NewMCP2221(WithDeviceIndex(1), WithResponseWait(0))
	assert.Equal(t, 1, d.index)
	assert.Zero(t, d.responseWait)
	assert.Len(t, d.request, reportSize)
	assert.Equal(t, 1, d.Index())
	assert.Equal(t, -1, NewMCP2221().Index())
}

func TestMCP2221_ReadRegister(t *testing.T) {
	dev := &fakeHID{}
	dev.queue(
		[]byte{cmdI2CWriteData, 0x00},
		[]byte{cmdI2CReadData, 0x00},
		[]byte{cmdI2CGetData, 0x00, 0x00, 0x02, 0x00, 0x19},
	)
	d := newTestAdapter(dev)
	ctx := context.Background()

	require.NoError(t, d.WriteToAddr(ctx, 0x36, []byte{0x08}))
	buf := make([]byte, 2)
	require.NoError(t, d.ReadFromAddr(ctx, 0x36, buf))
	assert.Equal(t, []byte{0x00, 0x19}, buf)

	require.Len(t, dev.requests, 3)
	assert.Equal(t, []byte{cmdI2CWriteData, 0x01, 0x00, 0x6c, 0x08}, dev.requests[0][:5])
	assert.Equal(t, []byte{cmdI2CReadData, 0x02, 0x00, 0x6d}, dev.requests[1][:4])
	assert.Equal(t, cmdI2CGetData, dev.requests[2][0])

	require.NoError(t, d.Close())
	assert.True(t, dev.isClosed())
}

func TestMCP2221_EngineBusy(t *testing.T) {
	dev := &fakeHID{}
	dev.queue([]byte{cmdI2CWriteData, 0x01})
	d := newTestAdapter(dev)
	err := d.WriteToAddr(context.Background(), 0x36, []byte{0x08})
	assert.ErrorIs(t, err, boardtemp.ErrBusBusy)
}

func TestMCP2221_UnresponsiveAdapter(t *testing.T) {
	dev := &fakeHID{block: make(chan struct{})}
	d := newTestAdapter(dev)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := d.ReadFromAddr(ctx, 0x36, make([]byte, 2))
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, boardtemp.ErrBusTimeout)

	// the abandoned exchange still waits for the adapter
	err = d.WriteToAddr(context.Background(), 0x36, []byte{0x08})
	assert.ErrorIs(t, err, boardtemp.ErrBusBusy)
	assert.ErrorIs(t, d.Close(), boardtemp.ErrBusBusy)

	dev.queue(
		[]byte{cmdI2CReadData, 0x00},
		[]byte{cmdI2CGetData, 0x00, 0x00, 0x02, 0x00, 0x19},
		[]byte{cmdI2CWriteData, 0x00},
	)
	close(dev.block)
	assert.Eventually(t, func() bool {
		return d.WriteToAddr(context.Background(), 0x36, []byte{0x08}) == nil
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, d.Close())
}

func TestMCP2221_FailedExchangeClosesDevice(t *testing.T) {
	dev := &fakeHID{}
	d := newTestAdapter(dev)
	err := d.WriteToAddr(context.Background(), 0x36, []byte{0x08})
	assert.EqualError(t, err, "write to 36 failed: could not read response: device disconnected")
	assert.True(t, dev.isClosed())
	assert.Nil(t, d.dev)
}
