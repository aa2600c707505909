package codec

import (
	"fmt"
	"math"
	"math/big"

	"github.com/jordise2002/modbus-watch/internal/model"
)

// ValueToRegisters implements value_to_registers, the inverse path
// used by the slave grid.
func ValueToRegisters(v model.Value, fmt_ model.ValueFormattingParams, table model.ModbusTable) (RegisterWindow, error) {
	if table.IsBitAddressed() {
		if v.Kind != model.BoolKind {
			return RegisterWindow{}, fmt.Errorf("codec: %s table requires a Boolean value, got kind %d", table, v.Kind)
		}
		return RegisterWindow{Coils: []bool{v.Bool}}, nil
	}

	if fmt_.DataType.IsFloat() {
		if v.Kind != model.FloatKind {
			return RegisterWindow{}, fmt.Errorf("codec: %s expects a Float value, got kind %d", fmt_.DataType, v.Kind)
		}
		bits := new(big.Int).SetUint64(math.Float64bits(v.Float))
		registerCount := fmt_.RegisterCount(table)
		postSwapBuf := embedBitWindow(bits, fmt_.StartingBit, fmt_.BitLength, registerCount)
		preSwapBuf := applySwaps(postSwapBuf, fmt_.ByteSwap, fmt_.WordSwap, fmt_.DoubleWordSwap)
		return RegisterWindow{Words: decodeRegistersLE(preSwapBuf)}, nil
	}

	if v.Kind != model.IntegerKind {
		return RegisterWindow{}, fmt.Errorf("codec: %s expects an Integer value, got kind %d", fmt_.DataType, v.Kind)
	}
	if v.Int == nil {
		return RegisterWindow{}, fmt.Errorf("codec: nil integer value")
	}

	n := fmt_.DataType.ByteSize()
	leBytes := twosComplementLE(v.Int, n)
	unsigned := new(big.Int).SetBytes(reverseBytes(leBytes))

	registerCount := fmt_.RegisterCount(table)
	postSwapBuf := embedBitWindow(unsigned, fmt_.StartingBit, fmt_.BitLength, registerCount)
	preSwapBuf := applySwaps(postSwapBuf, fmt_.ByteSwap, fmt_.WordSwap, fmt_.DoubleWordSwap)
	return RegisterWindow{Words: decodeRegistersLE(preSwapBuf)}, nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}
