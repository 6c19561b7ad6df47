package board

import (
	"errors"
	"testing"

	"github.com/mklimuk/boardtemp/environment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetDefault(t *testing.T) {
	t.Helper()
	prevOpen := openDefault
	SetDefault(nil)
	t.Cleanup(func() {
		openDefault = prevOpen
		SetDefault(nil)
	})
}

func TestDefault_PackageLevelFunctions(t *testing.T) {
	resetDefault(t)
	SetDefault(NewTemp(environment.NewMockMAX17262(21.5)))

	assert.Equal(t, Unavailable, GetF())
	Begin()
	assert.Equal(t, Unavailable, GetF())
	Poll1Hz()
	assert.Equal(t, 71, GetF())
}

func TestDefault_BeforeBegin(t *testing.T) {
	resetDefault(t)
	openDefault = func() (*Temp, error) {
		t.Fatal("bus must not be opened before Begin")
		return nil, nil
	}
	Poll1Hz()
	assert.Equal(t, Unavailable, GetF())
	assert.Nil(t, Default())
}

func TestDefault_BeginOpensBusOnce(t *testing.T) {
	resetDefault(t)
	opened := 0
	openDefault = func() (*Temp, error) {
		opened++
		return NewTemp(environment.NewMockMAX17262(25)), nil
	}
	Begin()
	Begin()
	assert.Equal(t, 1, opened)
	Poll1Hz()
	assert.Equal(t, 77, GetF())
}

func TestDefault_MissingBusDegradesToSentinel(t *testing.T) {
	resetDefault(t)
	openDefault = func() (*Temp, error) {
		return nil, errors.New("no i2c bus")
	}
	Begin()
	require.NotNil(t, Default())
	Poll1Hz()
	assert.Equal(t, Unavailable, GetF())
}
