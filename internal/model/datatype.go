// Package model defines the shared entities of the Modbus monitoring
// and emulation core: data types, addressing, typed values and the
// register/coil bit-window parameters that describe how a logical
// value maps onto Modbus cells.
package model

import (
	"encoding/json"
	"fmt"
)

// DataType is the logical type a PolledValue or ServedValue decodes to.
type DataType int

const (
	Boolean DataType = iota
	Byte
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

var dataTypeNames = map[DataType]string{
	Boolean:  "Boolean",
	Byte:     "Byte",
	Uint16:   "u16",
	Int16:    "i16",
	Uint32:   "u32",
	Int32:    "i32",
	Uint64:   "u64",
	Int64:    "i64",
	Float32:  "Float32",
	Float64:  "Float64",
}

var namesToDataType = func() map[string]DataType {
	m := make(map[string]DataType, len(dataTypeNames))
	for k, v := range dataTypeNames {
		m[v] = k
	}
	return m
}()

func (d DataType) String() string {
	if s, ok := dataTypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// MinBitSize is the smallest legal bit_length for this type: full
// width for floats, a single bit for everything else (a flag packed
// into any integer-backed register).
func (d DataType) MinBitSize() uint16 {
	switch d {
	case Float32:
		return 32
	case Float64:
		return 64
	default:
		return 1
	}
}

// ByteSize is the natural storage width of the type, used to decide
// how many significant bytes format_value and value_to_registers read
// or write.
func (d DataType) ByteSize() int {
	switch d {
	case Boolean, Byte:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	case Float32:
		return 4
	default:
		return 0
	}
}

// Signed reports whether the type's integer carrier should be sign-
// extended on decode.
func (d DataType) Signed() bool {
	switch d {
	case Int16, Int32, Int64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether the type decodes through the f64 float path.
func (d DataType) IsFloat() bool {
	return d == Float32 || d == Float64
}

func (d DataType) MarshalJSON() ([]byte, error) {
	s, ok := dataTypeNames[d]
	if !ok {
		return nil, fmt.Errorf("model: unknown data type %d", int(d))
	}
	return json.Marshal(s)
}

func (d *DataType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dt, ok := namesToDataType[s]
	if !ok {
		return fmt.Errorf("model: unknown data type %q", s)
	}
	*d = dt
	return nil
}
