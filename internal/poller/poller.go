// Package poller implements the poll pipeline: one task per
// (connection, poll_time) cadence bucket.
package poller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jordise2002/modbus-watch/internal/codec"
	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/logger"
	"github.com/jordise2002/modbus-watch/internal/mbus"
	"github.com/jordise2002/modbus-watch/internal/metrics"
	"github.com/jordise2002/modbus-watch/internal/model"
	"github.com/jordise2002/modbus-watch/internal/planner"
)

// Querier issues one batch of queries against a shared Modbus
// connection. *mbus.MasterConn satisfies this; tests supply fakes.
type Querier interface {
	Query(queries []planner.Query) (map[model.ModbusAddress]mbus.RegisterValue, error)
}

// Poller drives every cadence bucket of one Modbus connection against
// a shared MasterConn, emitting decoded Samples onto a bounded
// channel.
type Poller struct {
	connLabel  string
	masterConn Querier
	plan       planner.Plan
	sampleCh   chan<- model.Sample
	log        *zap.Logger
}

// New builds a Poller for one connection's plan, writing decoded
// samples to sampleCh (expected to be a bounded, size-1024 channel).
func New(connLabel string, masterConn Querier, plan planner.Plan, sampleCh chan<- model.Sample) *Poller {
	return &Poller{
		connLabel:  connLabel,
		masterConn: masterConn,
		plan:       plan,
		sampleCh:   sampleCh,
		log:        logger.Get().With(zap.String("connection", connLabel)),
	}
}

// Run starts one goroutine per cadence bucket and blocks until ctx is
// cancelled or a bucket task returns an error.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for pollTime, queries := range p.plan.Buckets {
		pollTime, queries := pollTime, queries
		g.Go(func() error {
			return p.runBucket(ctx, pollTime, queries)
		})
	}
	return g.Wait()
}

// runBucket ticks at pollTime's cadence, issuing the bucket's batch
// and routing results on every tick. There is no retry within a
// cycle: the next tick is the retry.
func (p *Poller) runBucket(ctx context.Context, pollTime config.Duration, queries []planner.Query) error {
	ticker := time.NewTicker(pollTime.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx, queries)
		}
	}
}

func (p *Poller) poll(ctx context.Context, queries []planner.Query) {
	cycleID := uuid.New().String()
	results, err := p.masterConn.Query(queries)
	if err != nil && len(results) == 0 {
		metrics.PollCycles.WithLabelValues(p.connLabel, "failed").Inc()
		p.log.Warn("batch query failed, skipping cycle", zap.String("cycle_id", cycleID), zap.Error(err))
		return
	}
	if err != nil {
		metrics.PollCycles.WithLabelValues(p.connLabel, "partial").Inc()
		p.log.Warn("batch query partially failed", zap.String("cycle_id", cycleID), zap.Error(err))
	} else {
		metrics.PollCycles.WithLabelValues(p.connLabel, "success").Inc()
	}

	now := time.Now().Unix()
	for _, q := range queries {
		for addr := q.StartingAddress; ; addr++ {
			p.routeAddress(ctx, results, q, addr, now)
			if addr == q.EndingAddress {
				break
			}
		}
	}
}

func (p *Poller) routeAddress(ctx context.Context, results map[model.ModbusAddress]mbus.RegisterValue, q planner.Query, addr uint16, now int64) {
	bindings, ok := p.plan.Lookup(q.SlaveID, q.Table, addr)
	if !ok {
		return
	}
	for _, binding := range bindings {
		window, ok := collectWindow(results, q.SlaveID, q.Table, addr, binding.RegisterCount)
		if !ok {
			p.log.Warn("missing registers for bound value, skipping", zap.String("value_id", binding.Value.ID))
			continue
		}
		raw, err := codec.RegistersToBytes(window, binding.Value.Formatting())
		if err != nil {
			p.log.Warn("codec failure decoding value, skipping", zap.String("value_id", binding.Value.ID), zap.Error(err))
			continue
		}
		v, err := codec.FormatValue(raw, binding.Value.DataType)
		if err != nil {
			p.log.Warn("codec failure formatting value, skipping", zap.String("value_id", binding.Value.ID), zap.Error(err))
			continue
		}
		sample := model.Sample{ValueID: binding.Value.ID, Timestamp: now, Value: v}
		select {
		case p.sampleCh <- sample:
		case <-ctx.Done():
			return
		}
	}
}

// collectWindow gathers count consecutive registers/coils starting at
// addr from a batch result map. Missing or errored registers fail the
// whole collection.
func collectWindow(results map[model.ModbusAddress]mbus.RegisterValue, slaveID uint8, table model.ModbusTable, addr uint16, count int) (codec.RegisterWindow, bool) {
	if table.IsBitAddressed() {
		bits := make([]bool, count)
		for i := 0; i < count; i++ {
			rv, ok := results[model.ModbusAddress{SlaveID: slaveID, Table: table, Address: addr + uint16(i)}]
			if !ok {
				return codec.RegisterWindow{}, false
			}
			bits[i] = rv.Bit
		}
		return codec.RegisterWindow{Coils: bits}, true
	}

	words := make([]uint16, count)
	for i := 0; i < count; i++ {
		rv, ok := results[model.ModbusAddress{SlaveID: slaveID, Table: table, Address: addr + uint16(i)}]
		if !ok {
			return codec.RegisterWindow{}, false
		}
		words[i] = rv.Word
	}
	return codec.RegisterWindow{Words: words}, true
}
