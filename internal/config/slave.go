package config

import (
	"encoding/json"
	"fmt"

	"github.com/jordise2002/modbus-watch/internal/model"
)

// ServedValue is one named register/coil window the slave emulates:
// the same shape as PolledValue plus a default_value, minus poll_time
// and retention.
type ServedValue struct {
	ID              string            `json:"id" validate:"required"`
	StartingAddress uint16            `json:"starting_address"`
	Table           model.ModbusTable `json:"table"`

	StartingBit    uint8          `json:"starting_bit"`
	BitLength      uint16         `json:"bit_length" validate:"required"`
	DataType       model.DataType `json:"data_type"`
	ByteSwap       bool           `json:"byte_swap"`
	WordSwap       bool           `json:"word_swap"`
	DoubleWordSwap bool           `json:"double_word_swap"`

	DefaultValue model.Value `json:"default_value"`
}

func (v ServedValue) Formatting() model.ValueFormattingParams {
	return model.ValueFormattingParams{
		StartingBit:    v.StartingBit,
		BitLength:      v.BitLength,
		DataType:       v.DataType,
		ByteSwap:       v.ByteSwap,
		WordSwap:       v.WordSwap,
		DoubleWordSwap: v.DoubleWordSwap,
	}
}

func (v ServedValue) RegisterCount() int {
	return v.Formatting().RegisterCount(v.Table)
}

func (v ServedValue) EndingAddress() uint16 {
	return v.StartingAddress + uint16(v.RegisterCount()) - 1
}

func (v ServedValue) Validate(maxRegisters uint32) *ValidationError {
	errs := &ValidationError{}
	validateTags(v, errs)
	if v.Table.IsBitAddressed() {
		if v.DataType != model.Boolean {
			errs.Add("served value %q: %s requires data_type=Boolean", v.ID, v.Table)
		}
		if v.StartingBit != 0 || v.BitLength != 1 {
			errs.Add("served value %q: %s requires starting_bit=0, bit_length=1", v.ID, v.Table)
		}
	}
	if v.BitLength < v.DataType.MinBitSize() {
		errs.Add("served value %q: bit_length %d is below %s's minimum of %d", v.ID, v.BitLength, v.DataType, v.DataType.MinBitSize())
	}
	if uint32(v.EndingAddress()) > maxRegisters {
		errs.Add("served value %q: ending address %d exceeds the slave's register limit of %d", v.ID, v.EndingAddress(), maxRegisters)
	}
	return errs
}

// ServedSlave is one Modbus slave (unit) the slave binary emulates.
type ServedSlave struct {
	ID                uint8         `json:"id"`
	ResponseDelay     *Duration     `json:"response_delay"`
	MaxCoils          uint16        `json:"max_coils"`
	MaxDiscreteInputs uint16        `json:"max_discrete_inputs"`
	MaxHoldingRegisters uint16      `json:"max_holding_registers"`
	MaxInputRegisters uint16        `json:"max_input_registers"`
	Values            []ServedValue `json:"values"`
}

func (s *ServedSlave) UnmarshalJSON(data []byte) error {
	type alias ServedSlave
	a := alias{
		ID:                  1,
		MaxCoils:            65535,
		MaxDiscreteInputs:   65535,
		MaxHoldingRegisters: 65535,
		MaxInputRegisters:   65535,
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = ServedSlave(a)
	return nil
}

// MaxRegistersFor returns this slave's configured ceiling for table.
func (s ServedSlave) MaxRegistersFor(table model.ModbusTable) uint32 {
	switch table {
	case model.Coils:
		return uint32(s.MaxCoils)
	case model.DiscreteInputs:
		return uint32(s.MaxDiscreteInputs)
	case model.InputRegisters:
		return uint32(s.MaxInputRegisters)
	default:
		return uint32(s.MaxHoldingRegisters)
	}
}

func (s ServedSlave) Validate() *ValidationError {
	errs := &ValidationError{}
	for _, v := range s.Values {
		errs.AddAll(v.Validate(s.MaxRegistersFor(v.Table)))
	}
	return errs
}

// ServedConnection is one TCP listener the slave binary binds.
type ServedConnection struct {
	Port                   uint16        `json:"port"`
	ConnectionTimeToLive   Duration      `json:"connection_time_to_live"`
	Slaves                 []ServedSlave `json:"slaves"`
}

func (c *ServedConnection) UnmarshalJSON(data []byte) error {
	type alias ServedConnection
	a := alias{Port: 502, ConnectionTimeToLive: Duration(3e9)} // 3s
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = ServedConnection(a)
	return nil
}

func (c ServedConnection) Validate() *ValidationError {
	errs := &ValidationError{}
	if c.Port == 0 {
		errs.Add("served connection: port must not be 0")
	}
	for _, s := range c.Slaves {
		errs.AddAll(s.Validate())
	}

	seen := map[string]bool{}
	repeated := map[string]bool{}
	for _, s := range c.Slaves {
		for _, v := range s.Values {
			if seen[v.ID] && !repeated[v.ID] {
				errs.Add("served connection: duplicate value id %q", v.ID)
				repeated[v.ID] = true
			}
			seen[v.ID] = true
		}
	}
	return errs
}

// LoadSlaveConfig reads and validates the slave's connection list
// from a JSON file.
func LoadSlaveConfig(data []byte) ([]ServedConnection, error) {
	var conns []ServedConnection
	if err := json.Unmarshal(data, &conns); err != nil {
		return nil, fmt.Errorf("config: failed to parse slave config: %w", err)
	}
	errs := &ValidationError{}
	for _, c := range conns {
		errs.AddAll(c.Validate())
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return conns, nil
}
