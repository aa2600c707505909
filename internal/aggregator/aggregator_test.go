package aggregator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/model"
)

type fakeStore struct {
	samples             map[string][]model.Sample
	insertedAggregates  []model.Aggregate
	deletedPollsMax     map[string]uint64
	deletedAggregateMax map[string]uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		samples:             map[string][]model.Sample{},
		deletedPollsMax:     map[string]uint64{},
		deletedAggregateMax: map[string]uint64{},
	}
}

func (f *fakeStore) SamplesBetween(valueID string, dataType model.DataType, t0, t1 int64) ([]model.Sample, error) {
	var out []model.Sample
	for _, s := range f.samples[valueID] {
		if s.Timestamp >= t0 && s.Timestamp <= t1 {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertAggregate(agg model.Aggregate) error {
	f.insertedAggregates = append(f.insertedAggregates, agg)
	return nil
}

func (f *fakeStore) DeleteExceedingPolls(valueID string, maxRows uint64) error {
	f.deletedPollsMax[valueID] = maxRows
	var kept []model.Sample
	all := f.samples[valueID]
	if uint64(len(all)) > maxRows {
		kept = all[uint64(len(all))-maxRows:]
	} else {
		kept = all
	}
	f.samples[valueID] = kept
	return nil
}

func (f *fakeStore) DeleteExceedingAggregates(valueID string, period model.Period, maxRows uint64) error {
	f.deletedAggregateMax[valueID] = maxRows
	return nil
}

func uintPtr(v uint64) *uint64 { return &v }

// max_polls_to_keep=2 with samples at t=100,200,300
// leaves exactly the samples at 200 and 300.
func TestEnforceRetention_ScenarioS6(t *testing.T) {
	store := newFakeStore()
	store.samples["v1"] = []model.Sample{
		{ValueID: "v1", Timestamp: 100, Value: model.NewInteger(big.NewInt(1))},
		{ValueID: "v1", Timestamp: 200, Value: model.NewInteger(big.NewInt(2))},
		{ValueID: "v1", Timestamp: 300, Value: model.NewInteger(big.NewInt(3))},
	}
	v := config.PolledValue{ID: "v1", MaxPollsToKeep: uintPtr(2)}

	e := &Engine{store: store, log: testLogger()}
	e.enforceRetention(v)

	require.Len(t, store.samples["v1"], 2)
	assert.Equal(t, int64(200), store.samples["v1"][0].Timestamp)
	assert.Equal(t, int64(300), store.samples["v1"][1].Timestamp)
}

func TestEnforceRetention_UnboundedWhenNil(t *testing.T) {
	store := newFakeStore()
	v := config.PolledValue{ID: "v1"}
	e := &Engine{store: store, log: testLogger()}
	e.enforceRetention(v)
	_, called := store.deletedPollsMax["v1"]
	assert.False(t, called)
}

func TestAdvance_EmptyWindowSkipsButAdvancesWatermark(t *testing.T) {
	store := newFakeStore()
	v := config.PolledValue{ID: "v1", DataType: model.Uint16}
	e := &Engine{store: store, log: testLogger()}

	watermark := int64(0)
	e.advance(v, model.Minute, &watermark, 60)

	assert.Equal(t, int64(60), watermark)
	assert.Empty(t, store.insertedAggregates)
}

func TestAdvance_NonEmptyWindowWritesAggregateAndAdvances(t *testing.T) {
	store := newFakeStore()
	store.samples["v1"] = []model.Sample{
		{ValueID: "v1", Timestamp: 10, Value: model.NewInteger(big.NewInt(1))},
		{ValueID: "v1", Timestamp: 20, Value: model.NewInteger(big.NewInt(3))},
	}
	v := config.PolledValue{ID: "v1", DataType: model.Uint16}
	e := &Engine{store: store, log: testLogger()}

	watermark := int64(0)
	e.advance(v, model.Minute, &watermark, 60)

	assert.Equal(t, int64(60), watermark)
	require.Len(t, store.insertedAggregates, 1)
	assert.Equal(t, int64(2), store.insertedAggregates[0].Count)
}

func TestNew_InitializesWatermarksToNow(t *testing.T) {
	store := newFakeStore()
	e := New(store, []config.PolledValue{{ID: "v1"}})
	wm := e.marks["v1"]
	require.NotNil(t, wm)
	assert.Greater(t, wm.minute, int64(0))
	assert.Equal(t, wm.minute, wm.hour)
	assert.Equal(t, wm.hour, wm.day)
}

func testLogger() *zap.Logger { return zap.NewNop() }
