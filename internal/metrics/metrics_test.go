package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jordise2002/modbus-watch/internal/model"
)

func TestPollCycles_CountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(PollCycles.WithLabelValues("conn-a", "success"))
	PollCycles.WithLabelValues("conn-a", "success").Inc()
	after := testutil.ToFloat64(PollCycles.WithLabelValues("conn-a", "success"))
	assert.Equal(t, before+1, after)
}

func TestWatchChannelDepth_ReflectsBufferedLength(t *testing.T) {
	ch := make(chan model.Sample, 4)
	ch <- model.Sample{}
	ch <- model.Sample{}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	WatchChannelDepth(ctx, ch, 5*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(SampleChannelDepth))
}
