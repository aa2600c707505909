// Package store is the storage gateway: a pooled SQLite-backed
// relational store exposing the sample/aggregate operations, plus the
// single sample-writer task that owns the write side of the bounded
// sample channel.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jordise2002/modbus-watch/internal/codec"
	"github.com/jordise2002/modbus-watch/internal/logger"
	"github.com/jordise2002/modbus-watch/internal/model"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS value_descriptors (
	name TEXT PRIMARY KEY,
	address INTEGER NOT NULL,
	modbus_table TEXT NOT NULL,
	slave_id INTEGER NOT NULL,
	config_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS polls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	value_id TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	value BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_polls_value_timestamp ON polls(value_id, timestamp);

CREATE TABLE IF NOT EXISTS aggregates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	value_id TEXT NOT NULL,
	period INTEGER NOT NULL,
	start INTEGER NOT NULL,
	finish INTEGER NOT NULL,
	average BLOB,
	median BLOB,
	mode BLOB,
	min BLOB,
	max BLOB,
	count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_aggregates_value_period_start ON aggregates(value_id, period, start);
`

// Store is the pooled SQLite gateway shared by the poller, the
// aggregation engine and the HTTP API.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ValueDescriptor is a `value_descriptors` row: rewritten wholesale
// on every startup.
type ValueDescriptor struct {
	Name       string
	Address    uint16
	Table      model.ModbusTable
	SlaveID    uint8
	ConfigJSON string
}

// SyncDescriptors replaces the value_descriptors table contents with
// descs, inside one transaction.
func (s *Store) SyncDescriptors(descs []ValueDescriptor) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM value_descriptors`); err != nil {
		return fmt.Errorf("store: failed to clear value_descriptors: %w", err)
	}
	for _, d := range descs {
		_, err := tx.Exec(
			`INSERT INTO value_descriptors (name, address, modbus_table, slave_id, config_json) VALUES (?, ?, ?, ?, ?)`,
			d.Name, d.Address, d.Table.String(), d.SlaveID, d.ConfigJSON,
		)
		if err != nil {
			return fmt.Errorf("store: failed to insert descriptor %q: %w", d.Name, err)
		}
	}
	return tx.Commit()
}

// InsertSample performs one raw-sample insert.
func (s *Store) InsertSample(sample model.Sample) error {
	blob, err := codec.ValueToBytes(sample.Value)
	if err != nil {
		return fmt.Errorf("store: failed to encode sample for %q: %w", sample.ValueID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO polls (value_id, timestamp, value) VALUES (?, ?, ?)`,
		sample.ValueID, sample.Timestamp, blob,
	)
	return err
}

// InsertAggregate performs one aggregate-row insert.
func (s *Store) InsertAggregate(agg model.Aggregate) error {
	avg, err := codec.ValueToBytes(agg.Average)
	if err != nil {
		return fmt.Errorf("store: failed to encode aggregate average: %w", err)
	}
	median, err := codec.ValueToBytes(agg.Median)
	if err != nil {
		return fmt.Errorf("store: failed to encode aggregate median: %w", err)
	}
	mode, err := codec.ValueToBytes(agg.Mode)
	if err != nil {
		return fmt.Errorf("store: failed to encode aggregate mode: %w", err)
	}
	min, err := codec.ValueToBytes(agg.Min)
	if err != nil {
		return fmt.Errorf("store: failed to encode aggregate min: %w", err)
	}
	max, err := codec.ValueToBytes(agg.Max)
	if err != nil {
		return fmt.Errorf("store: failed to encode aggregate max: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO aggregates (value_id, period, start, finish, average, median, mode, min, max, count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agg.ValueID, int64(agg.Period), agg.Start, agg.Finish, avg, median, mode, min, max, agg.Count,
	)
	return err
}

type pollRow struct {
	Timestamp int64  `db:"timestamp"`
	Value     []byte `db:"value"`
}

// LastSample returns the most recent sample for valueID, or nil if
// none exists.
func (s *Store) LastSample(valueID string, dataType model.DataType) (*model.Sample, error) {
	var row pollRow
	err := s.db.Get(&row, `SELECT timestamp, value FROM polls WHERE value_id = ? ORDER BY timestamp DESC LIMIT 1`, valueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: failed to load last sample for %q: %w", valueID, err)
	}
	v, err := codec.FormatValue(row.Value, dataType)
	if err != nil {
		return nil, fmt.Errorf("store: failed to decode last sample for %q: %w", valueID, err)
	}
	return &model.Sample{ValueID: valueID, Timestamp: row.Timestamp, Value: v}, nil
}

// SamplesBetween returns every sample for valueID in [t0, t1], ordered
// by timestamp ascending.
func (s *Store) SamplesBetween(valueID string, dataType model.DataType, t0, t1 int64) ([]model.Sample, error) {
	var rows []pollRow
	err := s.db.Select(&rows, `SELECT timestamp, value FROM polls WHERE value_id = ? AND timestamp BETWEEN ? AND ? ORDER BY timestamp ASC`, valueID, t0, t1)
	if err != nil {
		return nil, fmt.Errorf("store: failed to load samples for %q: %w", valueID, err)
	}
	samples := make([]model.Sample, 0, len(rows))
	for _, r := range rows {
		v, err := codec.FormatValue(r.Value, dataType)
		if err != nil {
			logger.Get().Warn("store: skipping unreadable sample", zap.String("value_id", valueID), zap.Error(err))
			continue
		}
		samples = append(samples, model.Sample{ValueID: valueID, Timestamp: r.Timestamp, Value: v})
	}
	return samples, nil
}

type aggregateRow struct {
	Period  int64  `db:"period"`
	Start   int64  `db:"start"`
	Finish  int64  `db:"finish"`
	Average []byte `db:"average"`
	Median  []byte `db:"median"`
	Mode    []byte `db:"mode"`
	Min     []byte `db:"min"`
	Max     []byte `db:"max"`
	Count   int64  `db:"count"`
}

// AggregatesBetween returns every aggregate row for valueID in
// [t0, t1] whose period lies within [minPeriod, maxPeriod].
func (s *Store) AggregatesBetween(valueID string, dataType model.DataType, t0, t1 int64, minPeriod, maxPeriod model.Period) ([]model.Aggregate, error) {
	var rows []aggregateRow
	err := s.db.Select(&rows,
		`SELECT period, start, finish, average, median, mode, min, max, count FROM aggregates
		 WHERE value_id = ? AND start >= ? AND finish <= ? AND period BETWEEN ? AND ?
		 ORDER BY start ASC`,
		valueID, t0, t1, int64(minPeriod), int64(maxPeriod),
	)
	if err != nil {
		return nil, fmt.Errorf("store: failed to load aggregates for %q: %w", valueID, err)
	}

	modeType := dataType
	if dataType.IsFloat() {
		modeType = model.Int64
	}

	aggs := make([]model.Aggregate, 0, len(rows))
	for _, r := range rows {
		avg, err1 := codec.FormatValue(r.Average, dataType)
		median, err2 := codec.FormatValue(r.Median, dataType)
		mode, err3 := codec.FormatValue(r.Mode, modeType)
		min, err4 := codec.FormatValue(r.Min, dataType)
		max, err5 := codec.FormatValue(r.Max, dataType)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			logger.Get().Warn("store: skipping unreadable aggregate", zap.String("value_id", valueID))
			continue
		}
		aggs = append(aggs, model.Aggregate{
			ValueID: valueID,
			Period:  model.Period(r.Period),
			Start:   r.Start,
			Finish:  r.Finish,
			Average: avg,
			Median:  median,
			Mode:    mode,
			Min:     min,
			Max:     max,
			Count:   r.Count,
		})
	}
	return aggs, nil
}

// DeleteExceedingPolls keeps only the newest maxRows polls for
// valueID, ordered by timestamp descending.
func (s *Store) DeleteExceedingPolls(valueID string, maxRows uint64) error {
	_, err := s.db.Exec(
		`DELETE FROM polls WHERE value_id = ? AND id NOT IN (
			SELECT id FROM polls WHERE value_id = ? ORDER BY timestamp DESC LIMIT ?
		)`,
		valueID, valueID, maxRows,
	)
	return err
}

// DeleteExceedingAggregates keeps only the newest maxRows aggregate
// rows for (valueID, period), ordered by start descending.
func (s *Store) DeleteExceedingAggregates(valueID string, period model.Period, maxRows uint64) error {
	_, err := s.db.Exec(
		`DELETE FROM aggregates WHERE value_id = ? AND period = ? AND id NOT IN (
			SELECT id FROM aggregates WHERE value_id = ? AND period = ? ORDER BY start DESC LIMIT ?
		)`,
		valueID, int64(period), valueID, int64(period), maxRows,
	)
	return err
}

// RunWriter is the single sample-writer task: it owns the write side
// of the bounded channel and performs one insert per message until ch
// is closed or ctx is cancelled. Store failures are logged at ERROR
// and the message is dropped.
func (s *Store) RunWriter(ctx context.Context, ch <-chan model.Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			if err := s.InsertSample(sample); err != nil {
				logger.Get().Error("store: failed to write sample", zap.String("value_id", sample.ValueID), zap.Error(err))
			}
		}
	}
}
