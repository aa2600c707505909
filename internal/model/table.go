package model

import (
	"encoding/json"
	"fmt"
)

// ModbusTable is one of the four addressable Modbus spaces.
type ModbusTable int

const (
	Coils ModbusTable = iota
	DiscreteInputs
	InputRegisters
	HoldingRegisters
)

var tableNames = map[ModbusTable]string{
	Coils:            "Coils",
	DiscreteInputs:   "DiscreteInputs",
	InputRegisters:   "InputRegisters",
	HoldingRegisters: "HoldingRegisters",
}

var namesToTable = func() map[string]ModbusTable {
	m := make(map[string]ModbusTable, len(tableNames))
	for k, v := range tableNames {
		m[v] = k
	}
	return m
}()

func (t ModbusTable) String() string {
	if s, ok := tableNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ModbusTable(%d)", int(t))
}

// RegisterWidth is the addressable bit width of one cell: 1 for the
// bit tables, 16 for the word tables.
func (t ModbusTable) RegisterWidth() int {
	switch t {
	case Coils, DiscreteInputs:
		return 1
	default:
		return 16
	}
}

// IsBitAddressed reports whether cells of this table are single bits.
func (t ModbusTable) IsBitAddressed() bool {
	return t == Coils || t == DiscreteInputs
}

func (t ModbusTable) MarshalJSON() ([]byte, error) {
	s, ok := tableNames[t]
	if !ok {
		return nil, fmt.Errorf("model: unknown table %d", int(t))
	}
	return json.Marshal(s)
}

func (t *ModbusTable) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	tb, ok := namesToTable[s]
	if !ok {
		return fmt.Errorf("model: unknown table %q", s)
	}
	*t = tb
	return nil
}

// ModbusAddress uniquely identifies a single cell on a connection.
type ModbusAddress struct {
	SlaveID uint8
	Table   ModbusTable
	Address uint16
}

// RegisterCount returns the number of register_width(table)-sized
// cells spanned by a bit window of bitLength bits starting at
// startBit: ceil((starting_bit+bit_length)/register_width).
func RegisterCount(startBit uint8, bitLength uint16, width int) int {
	total := int(startBit) + int(bitLength)
	return (total + width - 1) / width
}
