package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/jordise2002/modbus-watch/internal/model"
)

// FormatValue implements format_value: it interprets the bytes
// produced by RegistersToBytes (or read back from a
// storage blob) according to dataType.
func FormatValue(raw []byte, dataType model.DataType) (model.Value, error) {
	if len(raw) == 0 {
		return model.Value{}, fmt.Errorf("codec: empty buffer for %s", dataType)
	}

	if dataType == model.Boolean {
		if len(raw) != 1 {
			return model.Value{}, fmt.Errorf("codec: Boolean requires exactly 1 byte, got %d", len(raw))
		}
		return model.NewBool(raw[0] != 0), nil
	}

	if dataType.IsFloat() {
		if len(raw) != 8 {
			return model.Value{}, fmt.Errorf("codec: %s requires exactly 8 bytes, got %d", dataType, len(raw))
		}
		bits := binary.LittleEndian.Uint64(raw)
		return model.NewFloat(math.Float64frombits(bits)), nil
	}

	n := dataType.ByteSize()
	if len(raw) < n {
		return model.Value{}, fmt.Errorf("codec: %s requires at least %d significant bytes, got %d", dataType, n, len(raw))
	}
	significant := raw[:n]

	v := new(big.Int)
	for i := n - 1; i >= 0; i-- {
		v.Lsh(v, 8)
		v.Or(v, big.NewInt(int64(significant[i])))
	}
	if dataType.Signed() {
		signBit := new(big.Int).Lsh(big.NewInt(1), uint(n*8-1))
		if v.Cmp(signBit) >= 0 {
			full := new(big.Int).Lsh(big.NewInt(1), uint(n*8))
			v.Sub(v, full)
		}
	}
	return model.NewInteger(v), nil
}

// ValueToBytes implements value_to_bytes: the canonical, type-erased
// on-store encoding. Integers use a 16-byte
// (i128) little-endian two's-complement encoding, floats an 8-byte
// little-endian f64, booleans a single byte.
func ValueToBytes(v model.Value) ([]byte, error) {
	switch v.Kind {
	case model.IntegerKind:
		if v.Int == nil {
			return nil, fmt.Errorf("codec: nil integer value")
		}
		return twosComplementLE(v.Int, 16), nil
	case model.FloatKind:
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, math.Float64bits(v.Float))
		return out, nil
	case model.BoolKind:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	default:
		return nil, fmt.Errorf("codec: value has no kind set")
	}
}

// twosComplementLE renders v (which may be negative) as an n-byte
// little-endian two's-complement buffer.
func twosComplementLE(v *big.Int, n int) []byte {
	out := make([]byte, n)
	u := new(big.Int)
	if v.Sign() < 0 {
		full := new(big.Int).Lsh(big.NewInt(1), uint(n*8))
		u.Add(full, v)
	} else {
		u.Set(v)
	}
	tmp := new(big.Int).Set(u)
	mask8 := big.NewInt(0xFF)
	for i := 0; i < n; i++ {
		b := new(big.Int).And(tmp, mask8)
		out[i] = byte(b.Uint64())
		tmp.Rsh(tmp, 8)
	}
	return out
}
