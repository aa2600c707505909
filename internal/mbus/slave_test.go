package mbus

import (
	"math/big"
	"testing"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/grid"
	"github.com/jordise2002/modbus-watch/internal/model"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()
	g, err := grid.New([]config.ServedConnection{
		{
			Port: 502,
			Slaves: []config.ServedSlave{
				{
					ID:                  1,
					MaxHoldingRegisters: 65535,
					Values: []config.ServedValue{
						{
							ID:              "reg",
							StartingAddress: 5,
							Table:           model.HoldingRegisters,
							BitLength:       16,
							DataType:        model.Uint16,
							DefaultValue:    model.NewInteger(big.NewInt(11)),
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	return NewHandler(g)
}

func TestHandleHoldingRegisters_Read(t *testing.T) {
	h := testHandler(t)
	res, err := h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{UnitId: 1, Addr: 5, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint16{11}, res)
}

func TestHandleHoldingRegisters_UnknownAddress(t *testing.T) {
	h := testHandler(t)
	_, err := h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{UnitId: 1, Addr: 999, Quantity: 1})
	assert.ErrorIs(t, err, modbus.ErrIllegalDataAddress)
}

func TestHandleHoldingRegisters_Write(t *testing.T) {
	h := testHandler(t)
	_, err := h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		UnitId: 1, Addr: 5, Quantity: 1, IsWrite: true, Args: []uint16{42},
	})
	require.NoError(t, err)

	res, err := h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{UnitId: 1, Addr: 5, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint16{42}, res)
}
