package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordise2002/modbus-watch/internal/model"
)

func validHoldingValue(id string) PolledValue {
	return PolledValue{
		ID:              id,
		StartingAddress: 0,
		Table:           model.HoldingRegisters,
		BitLength:       16,
		DataType:        model.Uint16,
		PollTime:        Duration(1e8),
	}
}

func TestPolledValue_Validate_RejectsEmptyID(t *testing.T) {
	v := validHoldingValue("")
	errs := v.Validate(255)
	assert.True(t, errs.HasErrors())
}

func TestPolledValue_Validate_BitTableRequiresBoolean(t *testing.T) {
	v := validHoldingValue("coil")
	v.Table = model.Coils
	v.DataType = model.Uint16
	v.BitLength = 1
	errs := v.Validate(255)
	assert.True(t, errs.HasErrors())
}

func TestPolledValue_Validate_RejectsRegisterCountOverLimit(t *testing.T) {
	v := validHoldingValue("wide")
	v.BitLength = 64
	v.DataType = model.Float64
	errs := v.Validate(2)
	assert.True(t, errs.HasErrors())
}

func TestPolledValue_Validate_AcceptsWellFormedValue(t *testing.T) {
	v := validHoldingValue("counter")
	errs := v.Validate(255)
	require.False(t, errs.HasErrors())
}

func TestPolledSlave_Validate_DoesNotDedupeValueIDs(t *testing.T) {
	// Deduplication is a connection-wide concern (see
	// TestPolledConnection_Validate_ReportsSameSlaveDuplicateOnce);
	// a slave validated in isolation only checks its values' own fields.
	s := PolledSlave{
		ID:                 1,
		MaxRegisterAmmount: 255,
		Values:             []PolledValue{validHoldingValue("dup"), validHoldingValue("dup")},
	}
	errs := s.Validate()
	assert.False(t, errs.HasErrors())
}

func TestPolledConnection_Validate_RejectsZeroPort(t *testing.T) {
	c := PolledConnection{IP: "127.0.0.1", Port: 0}
	errs := c.Validate()
	assert.True(t, errs.HasErrors())
}

func TestPolledConnection_Validate_RejectsDuplicateIDsAcrossSlaves(t *testing.T) {
	c := PolledConnection{
		IP:   "127.0.0.1",
		Port: 502,
		Slaves: []PolledSlave{
			{ID: 1, MaxRegisterAmmount: 255, Values: []PolledValue{validHoldingValue("shared")}},
			{ID: 2, MaxRegisterAmmount: 255, Values: []PolledValue{validHoldingValue("shared")}},
		},
	}
	errs := c.Validate()
	require.Len(t, errs.Violations, 1)
}

func TestPolledConnection_Validate_ReportsSameSlaveDuplicateOnce(t *testing.T) {
	c := PolledConnection{
		IP:   "127.0.0.1",
		Port: 502,
		Slaves: []PolledSlave{
			{ID: 1, MaxRegisterAmmount: 255, Values: []PolledValue{validHoldingValue("dup"), validHoldingValue("dup")}},
		},
	}
	errs := c.Validate()
	require.Len(t, errs.Violations, 1)
}

func TestPolledConnection_Validate_ReportsTripleDuplicateOnce(t *testing.T) {
	c := PolledConnection{
		IP:   "127.0.0.1",
		Port: 502,
		Slaves: []PolledSlave{
			{ID: 1, MaxRegisterAmmount: 255, Values: []PolledValue{validHoldingValue("dup")}},
			{ID: 2, MaxRegisterAmmount: 255, Values: []PolledValue{validHoldingValue("dup")}},
			{ID: 3, MaxRegisterAmmount: 255, Values: []PolledValue{validHoldingValue("dup")}},
		},
	}
	errs := c.Validate()
	require.Len(t, errs.Violations, 1)
}

func TestLoadMasterConfig_AppliesDefaultsAndRetentionDefaults(t *testing.T) {
	data := []byte(`[{
		"ip": "192.168.1.10",
		"port": 502,
		"slaves": [{
			"id": 1,
			"values": [{
				"id": "temp",
				"starting_address": 10,
				"table": "HoldingRegisters",
				"bit_length": 16,
				"data_type": "u16",
				"poll_time": "500ms"
			}]
		}]
	}]`)

	conns, err := LoadMasterConfig(data)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	require.Len(t, conns[0].Slaves, 1)
	v := conns[0].Slaves[0].Values[0]

	assert.Equal(t, "temp", v.ID)
	require.NotNil(t, v.MaxPollsToKeep)
	assert.Equal(t, uint64(defaultMaxPollsToKeep), *v.MaxPollsToKeep)
	assert.Nil(t, v.MaxDayAggregationsToKeep)
}

func TestLoadMasterConfig_RespectsExplicitNullAsUnbounded(t *testing.T) {
	data := []byte(`[{
		"ip": "192.168.1.10",
		"port": 502,
		"slaves": [{
			"id": 1,
			"values": [{
				"id": "temp",
				"table": "HoldingRegisters",
				"bit_length": 16,
				"data_type": "u16",
				"poll_time": "500ms",
				"max_polls_to_keep": null
			}]
		}]
	}]`)

	conns, err := LoadMasterConfig(data)
	require.NoError(t, err)
	assert.Nil(t, conns[0].Slaves[0].Values[0].MaxPollsToKeep)
}

func TestLoadMasterConfig_RejectsInvalidTree(t *testing.T) {
	data := []byte(`[{"ip": "bad-conn", "port": 0, "slaves": []}]`)
	_, err := LoadMasterConfig(data)
	assert.Error(t, err)
}
