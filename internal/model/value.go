package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
)

// ValueKind discriminates the variants of Value.
type ValueKind int

const (
	IntegerKind ValueKind = iota
	FloatKind
	BoolKind
)

// Value is a typed logical reading or setpoint. Only one of the three
// carriers is meaningful, selected by Kind. Integer values are carried
// in a 128-bit signed big.Int, wide enough to hold any decoded integer
// width without truncation.
type Value struct {
	Kind  ValueKind
	Int   *big.Int
	Float float64
	Bool  bool
}

func NewInteger(v *big.Int) Value { return Value{Kind: IntegerKind, Int: v} }
func NewFloat(v float64) Value    { return Value{Kind: FloatKind, Float: v} }
func NewBool(v bool) Value        { return Value{Kind: BoolKind, Bool: v} }

func (v Value) String() string {
	switch v.Kind {
	case IntegerKind:
		if v.Int == nil {
			return "<nil int>"
		}
		return v.Int.String()
	case FloatKind:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case BoolKind:
		return strconv.FormatBool(v.Bool)
	default:
		return "<invalid value>"
	}
}

// MarshalJSON renders the value the way its untagged Rust counterpart
// would: a bare JSON number or boolean, never a wrapper object.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case IntegerKind:
		if v.Int == nil {
			return nil, fmt.Errorf("model: nil integer value")
		}
		return []byte(v.Int.String()), nil
	case FloatKind:
		return json.Marshal(v.Float)
	case BoolKind:
		return json.Marshal(v.Bool)
	default:
		return nil, fmt.Errorf("model: value has no kind set")
	}
}

// UnmarshalJSON infers the kind from the raw token: true/false is
// Bool, a token containing '.' or an exponent is Float, otherwise
// it's parsed as an arbitrary-precision Integer.
func (v *Value) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = NewBool(b)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("model: value is neither bool nor number: %w", err)
	}
	s := num.String()
	if looksLikeFloat(s) {
		f, err := num.Float64()
		if err != nil {
			return fmt.Errorf("model: invalid float value %q: %w", s, err)
		}
		*v = NewFloat(f)
		return nil
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("model: invalid integer value %q", s)
	}
	*v = NewInteger(i)
	return nil
}

func looksLikeFloat(s string) bool {
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return true
		}
	}
	return false
}

// Period is an aggregation cadence. NoGrouping is used only in API
// queries and is never persisted.
type Period int

const (
	NoGrouping Period = 0
	Minute     Period = 1
	Hour       Period = 2
	Day        Period = 3
)

func (p Period) Duration() int64 {
	switch p {
	case Minute:
		return 60
	case Hour:
		return 3600
	case Day:
		return 86400
	default:
		return 0
	}
}

func (p Period) String() string {
	switch p {
	case NoGrouping:
		return "NoGrouping"
	case Minute:
		return "Minute"
	case Hour:
		return "Hour"
	case Day:
		return "Day"
	default:
		return fmt.Sprintf("Period(%d)", int(p))
	}
}

// ValueFormattingParams parameterises the codec: where within
// the register/coil window the logical value's bits live, its type,
// and the three endian-swap knobs.
type ValueFormattingParams struct {
	StartingBit    uint8    `json:"starting_bit"`
	BitLength      uint16   `json:"bit_length"`
	DataType       DataType `json:"data_type"`
	ByteSwap       bool     `json:"byte_swap"`
	WordSwap       bool     `json:"word_swap"`
	DoubleWordSwap bool     `json:"double_word_swap"`
}

// RegisterCount is the number of table cells this window spans.
func (f ValueFormattingParams) RegisterCount(table ModbusTable) int {
	return RegisterCount(f.StartingBit, f.BitLength, table.RegisterWidth())
}
