// Package aggregator implements the aggregation engine: a
// 30-second-cadence watermark-based aggregate builder plus retention
// enforcement.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/logger"
	"github.com/jordise2002/modbus-watch/internal/metrics"
	"github.com/jordise2002/modbus-watch/internal/model"
)

const tickInterval = 30 * time.Second

// Store is the slice of the storage gateway the aggregation engine
// needs; *store.Store satisfies it.
type Store interface {
	SamplesBetween(valueID string, dataType model.DataType, t0, t1 int64) ([]model.Sample, error)
	InsertAggregate(agg model.Aggregate) error
	DeleteExceedingPolls(valueID string, maxRows uint64) error
	DeleteExceedingAggregates(valueID string, period model.Period, maxRows uint64) error
}

type watermarks struct {
	minute, hour, day int64
}

// Engine owns one set of forward-looking watermarks per configured
// value and advances them on each tick.
type Engine struct {
	store  Store
	values []config.PolledValue
	marks  map[string]*watermarks
	log    *zap.Logger
}

// New builds an Engine whose watermarks are initialised to the
// current wall-clock time — aggregates are forward-looking only.
func New(store Store, values []config.PolledValue) *Engine {
	now := time.Now().Unix()
	marks := make(map[string]*watermarks, len(values))
	for _, v := range values {
		marks[v.ID] = &watermarks{minute: now, hour: now, day: now}
	}
	return &Engine{store: store, values: values, marks: marks, log: logger.Get()}
}

// Run ticks every 30 seconds until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	now := time.Now().Unix()
	for _, v := range e.values {
		wm := e.marks[v.ID]
		e.advance(v, model.Minute, &wm.minute, now)
		e.advance(v, model.Hour, &wm.hour, now)
		e.advance(v, model.Day, &wm.day, now)
		e.enforceRetention(v)
	}
}

// advance fills every complete [w_start, w_start+P) window this
// period is behind "now", computing and writing an aggregate per
// non-empty window and always advancing the watermark — empty windows
// are skipped silently.
func (e *Engine) advance(v config.PolledValue, period model.Period, watermark *int64, now int64) {
	duration := period.Duration()
	for now-*watermark >= duration {
		wStart := *watermark
		wEnd := wStart + duration

		samples, err := e.store.SamplesBetween(v.ID, v.DataType, wStart, wEnd-1)
		if err != nil {
			e.log.Error("aggregator: failed to load samples for window", zap.String("value_id", v.ID), zap.Error(err))
			*watermark = wEnd
			continue
		}

		if len(samples) > 0 {
			if agg, err := buildAggregate(v.ID, period, wStart, wEnd, samples); err != nil {
				e.log.Warn("aggregator: failed to compute aggregate", zap.String("value_id", v.ID), zap.Error(err))
			} else if err := e.store.InsertAggregate(agg); err != nil {
				e.log.Error("aggregator: failed to write aggregate", zap.String("value_id", v.ID), zap.Error(err))
			} else {
				metrics.AggregatesWritten.WithLabelValues(period.String()).Inc()
			}
		}
		*watermark = wEnd
	}
}

func buildAggregate(valueID string, period model.Period, start, finish int64, samples []model.Sample) (model.Aggregate, error) {
	values := make([]model.Value, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	c, err := compute(values)
	if err != nil {
		return model.Aggregate{}, fmt.Errorf("value %q window [%d,%d): %w", valueID, start, finish, err)
	}
	return model.Aggregate{
		ValueID: valueID,
		Period:  period,
		Start:   start,
		Finish:  finish,
		Average: c.average,
		Median:  c.median,
		Mode:    c.mode,
		Min:     c.min,
		Max:     c.max,
		Count:   c.count,
	}, nil
}

// enforceRetention invokes delete_exceeding_* for each max_* the
// value's configuration specifies; an absent field means unbounded
// retention for that tier.
func (e *Engine) enforceRetention(v config.PolledValue) {
	if v.MaxPollsToKeep != nil {
		if err := e.store.DeleteExceedingPolls(v.ID, *v.MaxPollsToKeep); err != nil {
			e.log.Error("aggregator: failed to enforce poll retention", zap.String("value_id", v.ID), zap.Error(err))
		}
	}
	if v.MaxMinuteAggregationsToKeep != nil {
		if err := e.store.DeleteExceedingAggregates(v.ID, model.Minute, *v.MaxMinuteAggregationsToKeep); err != nil {
			e.log.Error("aggregator: failed to enforce minute-aggregate retention", zap.String("value_id", v.ID), zap.Error(err))
		}
	}
	if v.MaxHourAggregationsToKeep != nil {
		if err := e.store.DeleteExceedingAggregates(v.ID, model.Hour, *v.MaxHourAggregationsToKeep); err != nil {
			e.log.Error("aggregator: failed to enforce hour-aggregate retention", zap.String("value_id", v.ID), zap.Error(err))
		}
	}
	if v.MaxDayAggregationsToKeep != nil {
		if err := e.store.DeleteExceedingAggregates(v.ID, model.Day, *v.MaxDayAggregationsToKeep); err != nil {
			e.log.Error("aggregator: failed to enforce day-aggregate retention", zap.String("value_id", v.ID), zap.Error(err))
		}
	}
}
