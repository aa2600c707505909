// Package mbus wraps github.com/simonvetter/modbus into the
// batch-query master collaborator and the slave's request handler.
package mbus

import (
	"fmt"
	"sync"

	"github.com/simonvetter/modbus"

	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/model"
	"github.com/jordise2002/modbus-watch/internal/planner"
)

// RegisterValue is one register or coil returned by a batch query.
type RegisterValue struct {
	Word uint16
	Bit  bool
}

// MasterConn is the shared Modbus-TCP connection for one Connection,
// serialised behind a mutex so that contending poll buckets queue
// rather than interleave transactions.
type MasterConn struct {
	mu     sync.Mutex
	client *modbus.ModbusClient
}

// Dial opens a TCP Modbus connection per the given PolledConnection's
// address and response-time budget.
func Dial(conn config.PolledConnection) (*MasterConn, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", conn.IP, conn.Port),
		Timeout: conn.MaxResponseTime.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("mbus: failed to create client for %s:%d: %w", conn.IP, conn.Port, err)
	}
	if err := client.Open(); err != nil {
		return nil, fmt.Errorf("mbus: failed to open connection to %s:%d: %w", conn.IP, conn.Port, err)
	}
	return &MasterConn{client: client}, nil
}

func (m *MasterConn) Close() error {
	return m.client.Close()
}

// Query issues every query in the batch sequentially under the
// connection's mutex. A transport error on any single query fails
// only that query's addresses; the caller logs and continues with
// whatever succeeded, matching the "log, skip, wait the next tick"
// policy at the per-bucket level.
func (m *MasterConn) Query(queries []planner.Query) (map[model.ModbusAddress]RegisterValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make(map[model.ModbusAddress]RegisterValue)
	var firstErr error

	for _, q := range queries {
		if err := m.runQuery(q, results); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if len(results) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return results, firstErr
}

func (m *MasterConn) runQuery(q planner.Query, out map[model.ModbusAddress]RegisterValue) error {
	quantity := uint16(q.Count())
	unitID := modbus.WithUnitID(q.SlaveID)

	switch q.Table {
	case model.Coils:
		bits, err := m.client.ReadCoils(q.StartingAddress, quantity, unitID)
		if err != nil {
			return fmt.Errorf("mbus: read coils %d..%d on slave %d: %w", q.StartingAddress, q.EndingAddress, q.SlaveID, err)
		}
		for i, b := range bits {
			out[model.ModbusAddress{SlaveID: q.SlaveID, Table: q.Table, Address: q.StartingAddress + uint16(i)}] = RegisterValue{Bit: b}
		}
	case model.DiscreteInputs:
		bits, err := m.client.ReadDiscreteInputs(q.StartingAddress, quantity, unitID)
		if err != nil {
			return fmt.Errorf("mbus: read discrete inputs %d..%d on slave %d: %w", q.StartingAddress, q.EndingAddress, q.SlaveID, err)
		}
		for i, b := range bits {
			out[model.ModbusAddress{SlaveID: q.SlaveID, Table: q.Table, Address: q.StartingAddress + uint16(i)}] = RegisterValue{Bit: b}
		}
	case model.InputRegisters:
		regs, err := m.client.ReadRegisters(q.StartingAddress, quantity, modbus.INPUT_REGISTER, unitID)
		if err != nil {
			return fmt.Errorf("mbus: read input registers %d..%d on slave %d: %w", q.StartingAddress, q.EndingAddress, q.SlaveID, err)
		}
		for i, w := range regs {
			out[model.ModbusAddress{SlaveID: q.SlaveID, Table: q.Table, Address: q.StartingAddress + uint16(i)}] = RegisterValue{Word: w}
		}
	default: // model.HoldingRegisters
		regs, err := m.client.ReadRegisters(q.StartingAddress, quantity, modbus.HOLDING_REGISTER, unitID)
		if err != nil {
			return fmt.Errorf("mbus: read holding registers %d..%d on slave %d: %w", q.StartingAddress, q.EndingAddress, q.SlaveID, err)
		}
		for i, w := range regs {
			out[model.ModbusAddress{SlaveID: q.SlaveID, Table: q.Table, Address: q.StartingAddress + uint16(i)}] = RegisterValue{Word: w}
		}
	}
	return nil
}
