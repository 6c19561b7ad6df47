package environment

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

// MockI2CBus is a mock implementation of boardtemp.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func expectRegister(bus *MockI2CBus, addr byte, register byte, resp []byte) {
	bus.On("WriteToAddr", mock.Anything, addr, []byte{register}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, addr, mock.Anything).Return(resp, nil).Once()
}

func TestMAX17262_ConvertTemp(t *testing.T) {
	tests := []struct {
		given    []byte
		expected physic.Temperature
	}{
		{[]byte{0x00, 0x00}, physic.ZeroCelsius},
		{[]byte{0x00, 0x19}, physic.ZeroCelsius + 25*physic.Kelvin},
		{[]byte{0x80, 0x00}, physic.ZeroCelsius + 500*physic.MilliKelvin},
		{[]byte{0x00, 0xE7}, physic.ZeroCelsius - 25*physic.Kelvin},
		{[]byte{0xFF, 0xFF}, physic.ZeroCelsius - 3906250*physic.NanoKelvin},
		{[]byte{0x00, 0xD8}, physic.ZeroCelsius - 40*physic.Kelvin},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.given), func(t *testing.T) {
			raw := uint16(test.given[0]) | uint16(test.given[1])<<8
			assert.Equal(t, test.expected, convertMAX17262Temperature(raw))
		})
	}
}

func TestMAX17262_GetTemperature(t *testing.T) {
	bus := new(MockI2CBus)
	gauge := NewMAX17262(bus)
	expectRegister(bus, max17262DefaultAddress, max17262TempRegister, []byte{0x00, 0x19})

	temp, err := gauge.GetTemperature(context.Background())
	require.NoError(t, err)
	assert.Equal(t, physic.ZeroCelsius+25*physic.Kelvin, temp)
	assert.InDelta(t, 77.0, temp.Fahrenheit(), 1e-6)
	bus.AssertExpectations(t)
}

func TestMAX17262_OperatingRangeBounds(t *testing.T) {
	tests := []struct {
		name  string
		resp  []byte
		valid bool
	}{
		{"minimum", []byte{0x00, 0xD8}, true},
		{"maximum", []byte{0x00, 0x55}, true},
		{"too hot", []byte{0x00, 0x5A}, false},
		{"too cold", []byte{0x00, 0xC0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			gauge := NewMAX17262(bus)
			expectRegister(bus, max17262DefaultAddress, max17262TempRegister, tt.resp)

			_, err := gauge.GetTemperature(context.Background())
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrImplausible)
			}
			bus.AssertExpectations(t)
		})
	}
}

func TestMAX17262_GetTemperature_ErrorCases(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(*MockI2CBus)
		expectedError string
	}{
		{
			name: "write error",
			setupMock: func(bus *MockI2CBus) {
				bus.On("WriteToAddr", mock.Anything, byte(max17262DefaultAddress), mock.Anything).
					Return(errors.New("i2c write failed")).Once()
			},
			expectedError: "max17262: could not read temperature: could not write register 0x8 request: i2c write failed",
		},
		{
			name: "read error after write",
			setupMock: func(bus *MockI2CBus) {
				bus.On("WriteToAddr", mock.Anything, byte(max17262DefaultAddress), mock.Anything).
					Return(nil).Once()
				bus.On("ReadFromAddr", mock.Anything, byte(max17262DefaultAddress), mock.Anything).
					Return(nil, errors.New("i2c read failed")).Once()
			},
			expectedError: "max17262: could not read temperature: could not read register 0x8: i2c read failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			gauge := NewMAX17262(bus)
			tt.setupMock(bus)

			_, err := gauge.GetTemperature(context.Background())
			assert.EqualError(t, err, tt.expectedError)
			bus.AssertExpectations(t)
		})
	}
}

func TestMAX17262_Probe(t *testing.T) {
	bus := new(MockI2CBus)
	gauge := NewMAX17262(bus, WithAddress(0x37))
	expectRegister(bus, 0x37, max17262DevNameRegister, []byte{0x39, 0x40})

	name, err := gauge.DeviceName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MAX17262DevName, name)
	assert.Equal(t, byte(0x37), gauge.Address())

	bus.On("WriteToAddr", mock.Anything, byte(0x37), []byte{max17262DevNameRegister}).
		Return(errors.New("no ack")).Once()
	assert.Error(t, gauge.Probe(context.Background()))
	bus.AssertExpectations(t)
}
