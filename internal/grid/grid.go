// Package grid implements the slave register grid: the in-memory
// state a slave process serves over Modbus-TCP and HTTP.
package grid

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jordise2002/modbus-watch/internal/codec"
	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/model"
)

var (
	ErrIllegalDataAddress = errors.New("grid: illegal data address")
	ErrServerDeviceFailure = errors.New("grid: server device failure")
	ErrUnknownValue        = errors.New("grid: unknown value id")
)

// owner identifies which configured value roots a given address, and
// the register offset of that address within the value's span.
type owner struct {
	valueID string
	offset  int
}

// slaveTables holds one slave (unit id)'s four independent register
// spaces plus a reverse owner index recording which value roots each
// address. Reads and writes look up the register maps directly; the
// owner index is not consulted on those paths.
type slaveTables struct {
	coils            map[uint16]bool
	discreteInputs   map[uint16]bool
	holdingRegisters map[uint16]uint16
	inputRegisters   map[uint16]uint16

	owners map[model.ModbusTable]map[uint16]owner
	values map[string]config.ServedValue
}

func newSlaveTables() *slaveTables {
	return &slaveTables{
		coils:            map[uint16]bool{},
		discreteInputs:   map[uint16]bool{},
		holdingRegisters: map[uint16]uint16{},
		inputRegisters:   map[uint16]uint16{},
		owners: map[model.ModbusTable]map[uint16]owner{
			model.Coils:            {},
			model.DiscreteInputs:   {},
			model.InputRegisters:   {},
			model.HoldingRegisters: {},
		},
		values: map[string]config.ServedValue{},
	}
}

// Grid is the mutex-protected register state for every slave a
// process serves. A single mutex protects all reads and writes.
type Grid struct {
	mu     sync.Mutex
	slaves map[uint8]*slaveTables
}

// New builds a Grid from a validated set of served connections,
// encoding each value's default_value into its register span once.
func New(conns []config.ServedConnection) (*Grid, error) {
	g := &Grid{slaves: map[uint8]*slaveTables{}}
	for _, conn := range conns {
		for _, slave := range conn.Slaves {
			st, ok := g.slaves[slave.ID]
			if !ok {
				st = newSlaveTables()
				g.slaves[slave.ID] = st
			}
			for _, v := range slave.Values {
				if err := st.install(v); err != nil {
					return nil, fmt.Errorf("grid: slave %d value %q: %w", slave.ID, v.ID, err)
				}
			}
		}
	}
	return g, nil
}

func (st *slaveTables) install(v config.ServedValue) error {
	window, err := codec.ValueToRegisters(v.DefaultValue, v.Formatting(), v.Table)
	if err != nil {
		return fmt.Errorf("failed to encode default value: %w", err)
	}
	st.values[v.ID] = v

	if v.Table.IsBitAddressed() {
		table := bitTable(st, v.Table)
		for i, bit := range window.Coils {
			addr := v.StartingAddress + uint16(i)
			table[addr] = bit
			st.owners[v.Table][addr] = owner{valueID: v.ID, offset: i}
		}
		return nil
	}

	table := regTable(st, v.Table)
	for i, word := range window.Words {
		addr := v.StartingAddress + uint16(i)
		table[addr] = word
		st.owners[v.Table][addr] = owner{valueID: v.ID, offset: i}
	}
	return nil
}

func bitTable(st *slaveTables, table model.ModbusTable) map[uint16]bool {
	if table == model.Coils {
		return st.coils
	}
	return st.discreteInputs
}

func regTable(st *slaveTables, table model.ModbusTable) map[uint16]uint16 {
	if table == model.HoldingRegisters {
		return st.holdingRegisters
	}
	return st.inputRegisters
}

func (g *Grid) slave(slaveID uint8) (*slaveTables, error) {
	st, ok := g.slaves[slaveID]
	if !ok {
		return nil, ErrIllegalDataAddress
	}
	return st, nil
}

// ReadBits serves a read of quantity coils/discrete-inputs starting at
// addr, the Modbus on-read callback path.
func (g *Grid) ReadBits(slaveID uint8, table model.ModbusTable, addr, quantity uint16) ([]bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.slave(slaveID)
	if err != nil {
		return nil, err
	}
	src := bitTable(st, table)
	out := make([]bool, quantity)
	for i := range out {
		v, ok := src[addr+uint16(i)]
		if !ok {
			return nil, ErrIllegalDataAddress
		}
		out[i] = v
	}
	return out, nil
}

// ReadRegisters serves a read of quantity holding/input registers
// starting at addr.
func (g *Grid) ReadRegisters(slaveID uint8, table model.ModbusTable, addr, quantity uint16) ([]uint16, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.slave(slaveID)
	if err != nil {
		return nil, err
	}
	src := regTable(st, table)
	out := make([]uint16, quantity)
	for i := range out {
		v, ok := src[addr+uint16(i)]
		if !ok {
			return nil, ErrIllegalDataAddress
		}
		out[i] = v
	}
	return out, nil
}

// WriteCoils serves a write to the coil table; discrete inputs are
// read-only by the Modbus protocol and never routed here.
func (g *Grid) WriteCoils(slaveID uint8, addr uint16, values []bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.slave(slaveID)
	if err != nil {
		return err
	}
	for i, v := range values {
		a := addr + uint16(i)
		if _, ok := st.coils[a]; !ok {
			return ErrIllegalDataAddress
		}
		st.coils[a] = v
	}
	return nil
}

// WriteHoldingRegisters serves a write to the holding-register table.
func (g *Grid) WriteHoldingRegisters(slaveID uint8, addr uint16, values []uint16) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.slave(slaveID)
	if err != nil {
		return err
	}
	for i, v := range values {
		a := addr + uint16(i)
		if _, ok := st.holdingRegisters[a]; !ok {
			return ErrIllegalDataAddress
		}
		st.holdingRegisters[a] = v
	}
	return nil
}

// GetValue collects every register/coil of a named value across every
// slave and decodes it, for the HTTP GET /values/{id} endpoint.
func (g *Grid) GetValue(valueID string) (model.Value, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, st := range g.slaves {
		v, ok := st.values[valueID]
		if !ok {
			continue
		}
		window, err := st.collectWindow(v)
		if err != nil {
			return model.Value{}, fmt.Errorf("%w: %v", ErrServerDeviceFailure, err)
		}
		raw, err := codec.RegistersToBytes(window, v.Formatting())
		if err != nil {
			return model.Value{}, fmt.Errorf("%w: %v", ErrServerDeviceFailure, err)
		}
		return codec.FormatValue(raw, v.DataType)
	}
	return model.Value{}, ErrUnknownValue
}

// SetValue re-encodes v via the configured formatting and overwrites
// the full register vector, for HTTP PUT /values/{id}.
func (g *Grid) SetValue(valueID string, v model.Value) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, st := range g.slaves {
		desc, ok := st.values[valueID]
		if !ok {
			continue
		}
		window, err := codec.ValueToRegisters(v, desc.Formatting(), desc.Table)
		if err != nil {
			return fmt.Errorf("grid: failed to encode value %q: %w", valueID, err)
		}
		if desc.Table.IsBitAddressed() {
			table := bitTable(st, desc.Table)
			for i, bit := range window.Coils {
				table[desc.StartingAddress+uint16(i)] = bit
			}
			return nil
		}
		table := regTable(st, desc.Table)
		for i, word := range window.Words {
			table[desc.StartingAddress+uint16(i)] = word
		}
		return nil
	}
	return ErrUnknownValue
}

func (st *slaveTables) collectWindow(v config.ServedValue) (codec.RegisterWindow, error) {
	count := v.RegisterCount()
	if v.Table.IsBitAddressed() {
		bits := make([]bool, count)
		src := bitTable(st, v.Table)
		for i := range bits {
			val, ok := src[v.StartingAddress+uint16(i)]
			if !ok {
				return codec.RegisterWindow{}, ErrIllegalDataAddress
			}
			bits[i] = val
		}
		return codec.RegisterWindow{Coils: bits}, nil
	}
	words := make([]uint16, count)
	src := regTable(st, v.Table)
	for i := range words {
		val, ok := src[v.StartingAddress+uint16(i)]
		if !ok {
			return codec.RegisterWindow{}, ErrIllegalDataAddress
		}
		words[i] = val
	}
	return codec.RegisterWindow{Words: words}, nil
}
