package grid

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/model"
)

func testConns() []config.ServedConnection {
	return []config.ServedConnection{
		{
			Port: 502,
			Slaves: []config.ServedSlave{
				{
					ID:                  1,
					MaxHoldingRegisters: 65535,
					Values: []config.ServedValue{
						{
							ID:              "counter",
							StartingAddress: 10,
							Table:           model.HoldingRegisters,
							BitLength:       16,
							DataType:        model.Uint16,
							DefaultValue:    model.NewInteger(big.NewInt(7)),
						},
						{
							ID:              "alarm",
							StartingAddress: 0,
							Table:           model.Coils,
							BitLength:       1,
							DataType:        model.Boolean,
							DefaultValue:    model.NewBool(true),
						},
					},
				},
			},
		},
	}
}

func TestNew_InstallsDefaultValues(t *testing.T) {
	g, err := New(testConns())
	require.NoError(t, err)

	regs, err := g.ReadRegisters(1, model.HoldingRegisters, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{7}, regs)

	bits, err := g.ReadBits(1, model.Coils, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, bits)
}

func TestReadRegisters_UnknownAddress(t *testing.T) {
	g, err := New(testConns())
	require.NoError(t, err)

	_, err = g.ReadRegisters(1, model.HoldingRegisters, 999, 1)
	assert.ErrorIs(t, err, ErrIllegalDataAddress)
}

func TestReadRegisters_UnknownSlave(t *testing.T) {
	g, err := New(testConns())
	require.NoError(t, err)

	_, err = g.ReadRegisters(9, model.HoldingRegisters, 10, 1)
	assert.ErrorIs(t, err, ErrIllegalDataAddress)
}

func TestWriteHoldingRegisters_UpdatesInPlace(t *testing.T) {
	g, err := New(testConns())
	require.NoError(t, err)

	require.NoError(t, g.WriteHoldingRegisters(1, 10, []uint16{99}))

	regs, err := g.ReadRegisters(1, model.HoldingRegisters, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{99}, regs)
}

func TestGetAndSetValue_RoundTrip(t *testing.T) {
	g, err := New(testConns())
	require.NoError(t, err)

	v, err := g.GetValue("counter")
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(7).Cmp(v.Int))

	require.NoError(t, g.SetValue("counter", model.NewInteger(big.NewInt(123))))

	v, err = g.GetValue("counter")
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(123).Cmp(v.Int))
}

func TestGetValue_UnknownID(t *testing.T) {
	g, err := New(testConns())
	require.NoError(t, err)

	_, err = g.GetValue("nope")
	assert.ErrorIs(t, err, ErrUnknownValue)
}
