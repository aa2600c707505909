// Package planner builds the minimal set of Modbus batch queries that
// cover a connection's configured values.
package planner

import (
	"sort"

	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/model"
)

// Query is one contiguous register span to be read in a single
// Modbus transaction.
type Query struct {
	SlaveID         uint8
	Table           model.ModbusTable
	StartingAddress uint16
	EndingAddress   uint16
	PollTime        config.Duration
}

func (q Query) Count() uint32 {
	return uint32(q.EndingAddress) - uint32(q.StartingAddress) + 1
}

// Binding is one value rooted at a particular starting address. A
// single address may root several overlapping bindings.
type Binding struct {
	Value         config.PolledValue
	RegisterCount int
}

// bindingKey identifies a (slave, table, address) triple in the
// binding index.
type bindingKey struct {
	SlaveID uint8
	Table   model.ModbusTable
	Address uint16
}

// Plan is the full output of planning one connection: the queries
// grouped by cadence bucket, and the address→value binding index used
// to route returned registers back to the values that requested them.
type Plan struct {
	// Buckets maps poll_time to the queries that must be issued at
	// that cadence.
	Buckets map[config.Duration][]Query
	// Bindings maps a (slave, table, starting address) to the values
	// rooted there.
	Bindings map[bindingKey][]Binding
}

// Lookup returns the bindings rooted at the given address, if any.
func (p Plan) Lookup(slaveID uint8, table model.ModbusTable, address uint16) ([]Binding, bool) {
	b, ok := p.Bindings[bindingKey{slaveID, table, address}]
	return b, ok
}

type valueSpan struct {
	value           config.PolledValue
	startingAddress uint16
	registerCount   int
	endingRegister  uint16
}

// Build walks a single validated connection's slaves and values,
// emitting one Plan covering every configured
// value exactly once.
func Build(conn config.PolledConnection) Plan {
	plan := Plan{
		Buckets:  map[config.Duration][]Query{},
		Bindings: map[bindingKey][]Binding{},
	}

	for _, slave := range conn.Slaves {
		groups := groupBySlaveAndTable(slave)
		for table, spans := range groups {
			queries := planGroup(slave, table, spans)
			for _, q := range queries {
				plan.Buckets[q.PollTime] = append(plan.Buckets[q.PollTime], q)
			}
		}
		for _, v := range slave.Values {
			key := bindingKey{SlaveID: slave.ID, Table: v.Table, Address: v.StartingAddress}
			plan.Bindings[key] = append(plan.Bindings[key], Binding{Value: v, RegisterCount: v.RegisterCount()})
		}
	}
	return plan
}

func groupBySlaveAndTable(slave config.PolledSlave) map[model.ModbusTable][]valueSpan {
	groups := map[model.ModbusTable][]valueSpan{}
	for _, v := range slave.Values {
		count := v.RegisterCount()
		span := valueSpan{
			value:           v,
			startingAddress: v.StartingAddress,
			registerCount:   count,
			endingRegister:  v.StartingAddress + uint16(count) - 1,
		}
		groups[v.Table] = append(groups[v.Table], span)
	}
	for _, spans := range groups {
		sort.Slice(spans, func(i, j int) bool {
			return spans[i].startingAddress < spans[j].startingAddress
		})
	}
	return groups
}

// planGroup walks one (slave, table) group in address order, merging
// adjacent spans into a query when all three merge conditions (gap,
// resulting size, matching cadence) hold, and emitting a fresh query
// otherwise.
func planGroup(slave config.PolledSlave, table model.ModbusTable, spans []valueSpan) []Query {
	if len(spans) == 0 {
		return nil
	}

	var queries []Query
	var open *Query

	for _, span := range spans {
		if open != nil {
			gap := int64(span.startingAddress) - int64(open.EndingAddress)
			resultingCount := uint32(span.endingRegister) - uint32(open.StartingAddress) + 1
			sameCadence := open.PollTime == span.value.PollTime
			if gap <= int64(slave.MaxGapSizeInQuery) && resultingCount <= slave.MaxRegisterAmmount && sameCadence {
				if span.endingRegister > open.EndingAddress {
					open.EndingAddress = span.endingRegister
				}
				continue
			}
			queries = append(queries, *open)
			open = nil
		}
		q := Query{
			SlaveID:         slave.ID,
			Table:           table,
			StartingAddress: span.startingAddress,
			EndingAddress:   span.endingRegister,
			PollTime:        span.value.PollTime,
		}
		open = &q
	}
	if open != nil {
		queries = append(queries, *open)
	}
	return queries
}
