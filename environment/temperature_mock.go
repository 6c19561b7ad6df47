package environment

import (
	"context"

	"periph.io/x/conn/v3/physic"
)

// TemperatureBehaviorFunc defines the function signature for temperature behavior.
type TemperatureBehaviorFunc func(ctx context.Context) (physic.Temperature, error)

// ProbeBehaviorFunc defines the function signature for device probing behavior.
type ProbeBehaviorFunc func(ctx context.Context) error

// MockTemperatureSensor is a mock implementation of a temperature source that uses behavior functions
// to produce results without requiring any hardware.
// This can be used in place of the MAX17262 gauge.
type MockTemperatureSensor struct {
	behavior      TemperatureBehaviorFunc
	probeBehavior ProbeBehaviorFunc
}

// NewMockTemperatureSensor creates a new mock temperature sensor with the given behavior function.
// The behavior function is called whenever GetTemperature is invoked.
//
// Example usage:
//
//	sensor := NewMockTemperatureSensor(func(ctx context.Context) (physic.Temperature, error) {
//		return physic.ZeroCelsius + 25*physic.Kelvin, nil
//	})
func NewMockTemperatureSensor(behavior TemperatureBehaviorFunc) *MockTemperatureSensor {
	return &MockTemperatureSensor{behavior: behavior}
}

// WithProbe sets the behavior used by Probe. Without it Probe always succeeds.
func (m *MockTemperatureSensor) WithProbe(behavior ProbeBehaviorFunc) *MockTemperatureSensor {
	m.probeBehavior = behavior
	return m
}

// GetTemperature returns the temperature by calling the behavior function.
func (m *MockTemperatureSensor) GetTemperature(ctx context.Context) (physic.Temperature, error) {
	return m.behavior(ctx)
}

// Probe calls the probe behavior if one was set.
func (m *MockTemperatureSensor) Probe(ctx context.Context) error {
	if m.probeBehavior == nil {
		return nil
	}
	return m.probeBehavior(ctx)
}

// NewMockMAX17262 creates a mock gauge reporting a constant temperature in Celsius.
func NewMockMAX17262(celsius float64) *MockTemperatureSensor {
	return NewMockTemperatureSensor(func(ctx context.Context) (physic.Temperature, error) {
		return physic.ZeroCelsius + physic.Temperature(celsius*float64(physic.Kelvin)), nil
	})
}
