package config

import (
	"encoding/json"
	"fmt"

	"github.com/jordise2002/modbus-watch/internal/model"
)

// Default retention magnitudes, applied only when the corresponding
// JSON key is absent.
const (
	defaultMaxPollsToKeep               = 24 * 3 * 60 * 60 * 10 // ~3 days of 100ms samples
	defaultMaxMinuteAggregationsToKeep  = 24 * 60 * 3 * 7       // ~3 weeks
	defaultMaxHourAggregationsToKeep    = 24 * 365              // ~1 year
)

// PolledValue is one named register/coil window the master polls,
// decodes and persists, plus its retention defaults.
type PolledValue struct {
	ID              string          `json:"id" validate:"required"`
	StartingAddress uint16          `json:"starting_address"`
	Table           model.ModbusTable `json:"table"`

	StartingBit    uint8           `json:"starting_bit"`
	BitLength      uint16          `json:"bit_length" validate:"required"`
	DataType       model.DataType  `json:"data_type"`
	ByteSwap       bool            `json:"byte_swap"`
	WordSwap       bool            `json:"word_swap"`
	DoubleWordSwap bool            `json:"double_word_swap"`

	PollTime Duration `json:"poll_time" validate:"required"`

	MaxPollsToKeep              *uint64 `json:"max_polls_to_keep"`
	MaxMinuteAggregationsToKeep *uint64 `json:"max_minute_aggregations_to_keep"`
	MaxHourAggregationsToKeep   *uint64 `json:"max_hour_aggregations_to_keep"`
	MaxDayAggregationsToKeep    *uint64 `json:"max_day_aggregations_to_keep"`
}

// Formatting assembles the codec's parameter struct from the value's
// flattened JSON fields.
func (v PolledValue) Formatting() model.ValueFormattingParams {
	return model.ValueFormattingParams{
		StartingBit:    v.StartingBit,
		BitLength:      v.BitLength,
		DataType:       v.DataType,
		ByteSwap:       v.ByteSwap,
		WordSwap:       v.WordSwap,
		DoubleWordSwap: v.DoubleWordSwap,
	}
}

func (v PolledValue) RegisterCount() int {
	return v.Formatting().RegisterCount(v.Table)
}

func (v PolledValue) EndingAddress() uint16 {
	return v.StartingAddress + uint16(v.RegisterCount()) - 1
}

// UnmarshalJSON distinguishes an absent retention key (apply the
// documented default) from an explicit JSON null (unbounded), the
// same distinction a missing JSON key draws against an explicit
// zero value.
func (v *PolledValue) UnmarshalJSON(data []byte) error {
	type alias PolledValue
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	applyDefault := func(key string, ptr **uint64, def uint64) {
		if _, present := raw[key]; !present {
			d := def
			*ptr = &d
		}
	}
	applyDefault("max_polls_to_keep", &a.MaxPollsToKeep, defaultMaxPollsToKeep)
	applyDefault("max_minute_aggregations_to_keep", &a.MaxMinuteAggregationsToKeep, defaultMaxMinuteAggregationsToKeep)
	applyDefault("max_hour_aggregations_to_keep", &a.MaxHourAggregationsToKeep, defaultMaxHourAggregationsToKeep)
	// max_day_aggregations_to_keep has no default: absent or explicit
	// null both mean unbounded.

	*v = PolledValue(a)
	return nil
}

// Validate checks one value's structural invariants.
func (v PolledValue) Validate(maxRegisterAmmount uint32) *ValidationError {
	errs := &ValidationError{}
	validateTags(v, errs)
	if v.Table.IsBitAddressed() {
		if v.DataType != model.Boolean {
			errs.Add("value %q: %s requires data_type=Boolean", v.ID, v.Table)
		}
		if v.StartingBit != 0 {
			errs.Add("value %q: %s requires starting_bit=0", v.ID, v.Table)
		}
		if v.BitLength != 1 {
			errs.Add("value %q: %s requires bit_length=1", v.ID, v.Table)
		}
	}
	if v.BitLength < v.DataType.MinBitSize() {
		errs.Add("value %q: bit_length %d is below %s's minimum of %d", v.ID, v.BitLength, v.DataType, v.DataType.MinBitSize())
	}
	if v.BitLength > 64 {
		errs.Add("value %q: bit_length %d exceeds the maximum of 64", v.ID, v.BitLength)
	}
	if count := v.RegisterCount(); uint32(count) > maxRegisterAmmount {
		errs.Add("value %q: spans %d registers, exceeding the slave's max_register_ammount of %d", v.ID, count, maxRegisterAmmount)
	}
	return errs
}

// PolledSlave is one Modbus slave (unit) on a Connection.
type PolledSlave struct {
	ID                 uint8         `json:"id"`
	MaxRegisterAmmount uint32        `json:"max_register_ammount"`
	MaxGapSizeInQuery  uint32        `json:"max_gap_size_in_query"`
	Values             []PolledValue `json:"values"`
}

const (
	defaultPolledSlaveID                 = 1
	defaultMaxRegisterAmmount    uint32   = 255
	defaultMaxGapSizeInQuery     uint32   = 0
)

func (s *PolledSlave) UnmarshalJSON(data []byte) error {
	type alias PolledSlave
	a := alias{ID: defaultPolledSlaveID, MaxRegisterAmmount: defaultMaxRegisterAmmount, MaxGapSizeInQuery: defaultMaxGapSizeInQuery}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = PolledSlave(a)
	return nil
}

func (s PolledSlave) Validate() *ValidationError {
	errs := &ValidationError{}
	for _, v := range s.Values {
		errs.AddAll(v.Validate(s.MaxRegisterAmmount))
	}
	return errs
}

// PolledConnection is one master-side TCP connection to a Modbus
// device, grouping one or more slaves (units).
type PolledConnection struct {
	IP                          string        `json:"ip"`
	Port                        uint16        `json:"port"`
	MaxSimultaneousConnections  uint32        `json:"max_simultaneous_connections"`
	MaxResponseTime             Duration      `json:"max_response_time"`
	Slaves                      []PolledSlave `json:"slaves"`
}

func (c *PolledConnection) UnmarshalJSON(data []byte) error {
	type alias PolledConnection
	a := alias{
		IP:                         "127.0.0.1",
		Port:                       502,
		MaxSimultaneousConnections: 1,
		MaxResponseTime:            Duration(1e9), // 1s
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = PolledConnection(a)
	return nil
}

// Validate checks the whole connection tree, aggregating every
// violation (duplicate ids across the connection, per-slave and
// per-value invariants) into one report.
func (c PolledConnection) Validate() *ValidationError {
	errs := &ValidationError{}
	if c.Port == 0 {
		errs.Add("connection %s: port must not be 0", c.IP)
	}
	for _, s := range c.Slaves {
		errs.AddAll(s.Validate())
	}

	seen := map[string]bool{}
	repeated := map[string]bool{}
	for _, s := range c.Slaves {
		for _, v := range s.Values {
			if seen[v.ID] && !repeated[v.ID] {
				errs.Add("connection %s: duplicate value id %q", c.IP, v.ID)
				repeated[v.ID] = true
			}
			seen[v.ID] = true
		}
	}
	return errs
}

// LoadMasterConfig reads and validates the master's connection list
// from a JSON file.
func LoadMasterConfig(data []byte) ([]PolledConnection, error) {
	var conns []PolledConnection
	if err := json.Unmarshal(data, &conns); err != nil {
		return nil, fmt.Errorf("config: failed to parse master config: %w", err)
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
