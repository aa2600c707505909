// Package codec implements the bidirectional mapping between Modbus
// register/coil windows and typed model.Value instances:
// registers_to_bytes, format_value, value_to_registers and
// value_to_bytes.
package codec

import (
	"fmt"
	"math/big"

	"github.com/jordise2002/modbus-watch/internal/model"
)

// RegisterWindow is the raw cell content read from (or to be written
// to) a contiguous Modbus span. Exactly one of Coils or Words is
// populated, matching the table the window was read from.
type RegisterWindow struct {
	Coils []bool
	Words []uint16
}

func (w RegisterWindow) isCoils() bool { return w.Coils != nil }

// RegistersToBytes implements registers_to_bytes: it materialises
// the window into bytes, applies the three endian swaps
// in order, and — for non-Boolean types — masks out the configured
// bit window.
func RegistersToBytes(window RegisterWindow, fmt_ model.ValueFormattingParams) ([]byte, error) {
	if window.isCoils() {
		if len(window.Coils) == 0 {
			return nil, fmt.Errorf("codec: empty coil window")
		}
		// Coils/DiscreteInputs are always Boolean, starting_bit=0,
		// bit_length=1: one coil, one byte, no masking.
		if window.Coils[0] {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}

	if len(window.Words) == 0 {
		return nil, fmt.Errorf("codec: empty register window")
	}

	buf := materializeRegisters(window.Words)
	buf = applySwaps(buf, fmt_.ByteSwap, fmt_.WordSwap, fmt_.DoubleWordSwap)

	if fmt_.DataType == model.Boolean {
		return buf, nil
	}
	return extractBitWindow(buf, fmt_.StartingBit, fmt_.BitLength), nil
}

// materializeRegisters appends each register in little-endian byte
// order.
func materializeRegisters(words []uint16) []byte {
	buf := make([]byte, 0, len(words)*2)
	for _, w := range words {
		buf = append(buf, byte(w), byte(w>>8))
	}
	return buf
}

// applySwaps applies byte_swap, word_swap and double_word_swap in
// that exact order, each over fixed-size chunks with the trailing
// incomplete chunk left untouched.
func applySwaps(buf []byte, byteSwap, wordSwap, doubleWordSwap bool) []byte {
	if byteSwap {
		buf = swapChunks(buf, 2, 1)
	}
	if wordSwap {
		buf = swapChunks(buf, 4, 2)
	}
	if doubleWordSwap {
		buf = swapChunks(buf, 8, 4)
	}
	return buf
}

// swapChunks swaps the two halves (each half half-width bytes) of
// every complete chunkSize-byte chunk, leaving a trailing incomplete
// chunk untouched.
func swapChunks(buf []byte, chunkSize, half int) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	for i := 0; i+chunkSize <= len(out); i += chunkSize {
		for j := 0; j < half; j++ {
			out[i+j], out[i+half+j] = out[i+half+j], out[i+j]
		}
	}
	return out
}

// extractBitWindow gathers a bit window out of registers. The
// post-swap byte buffer is reinterpreted as a sequence of 16-bit registers (each
// decoded back from its own little-endian 2-byte chunk) concatenated
// MSB-first into one big-endian bit-significance value; the window
// [starting_bit, starting_bit+bit_length) is sliced out of that value
// and re-encoded as a little-endian byte buffer of
// ceil(bit_length/8) bytes, ready for format_value.
//
// This is the precise inverse of embedBitWindow below, which
// value_to_registers relies on for round-trip correctness — see
// DESIGN.md's Open Questions entry on the
// original source's buggy move_to_mask_position.
func extractBitWindow(buf []byte, startBit uint8, bitLength uint16) []byte {
	regs := decodeRegistersLE(buf)
	big_ := concatRegistersBE(regs)
	totalBits := len(regs) * 16
	shift := totalBits - int(startBit) - int(bitLength)
	if shift < 0 {
		shift = 0
	}
	extracted := new(big.Int).Rsh(big_, uint(shift))
	extracted.And(extracted, bitMask(bitLength))
	return leBytesOf(extracted, int((bitLength+7)/8))
}

// embedBitWindow is the literal inverse of extractBitWindow: given a
// bitLength-bit value, it places it at [starting_bit, starting_bit+
// bit_length) of a registerCount*16-bit buffer (zero elsewhere) and
// returns the resulting registers in the post-swap chunk arrangement.
func embedBitWindow(value *big.Int, startBit uint8, bitLength uint16, registerCount int) []byte {
	totalBits := registerCount * 16
	shift := totalBits - int(startBit) - int(bitLength)
	if shift < 0 {
		shift = 0
	}
	masked := new(big.Int).And(value, bitMask(bitLength))
	big_ := new(big.Int).Lsh(masked, uint(shift))
	regs := splitRegistersBE(big_, registerCount)
	return materializeRegisters(regs)
}

func decodeRegistersLE(buf []byte) []uint16 {
	n := len(buf) / 2
	regs := make([]uint16, n)
	for i := 0; i < n; i++ {
		regs[i] = uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
	}
	return regs
}

func concatRegistersBE(regs []uint16) *big.Int {
	v := new(big.Int)
	for _, r := range regs {
		v.Lsh(v, 16)
		v.Or(v, new(big.Int).SetUint64(uint64(r)))
	}
	return v
}

func splitRegistersBE(v *big.Int, count int) []uint16 {
	regs := make([]uint16, count)
	tmp := new(big.Int).Set(v)
	mask16 := big.NewInt(0xFFFF)
	for i := count - 1; i >= 0; i-- {
		word := new(big.Int).And(tmp, mask16)
		regs[i] = uint16(word.Uint64())
		tmp.Rsh(tmp, 16)
	}
	return regs
}

func bitMask(bitLength uint16) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bitLength)), big.NewInt(1))
}

func leBytesOf(v *big.Int, n int) []byte {
	out := make([]byte, n)
	tmp := new(big.Int).Set(v)
	mask8 := big.NewInt(0xFF)
	for i := 0; i < n; i++ {
		b := new(big.Int).And(tmp, mask8)
		out[i] = byte(b.Uint64())
		tmp.Rsh(tmp, 8)
	}
	return out
}
