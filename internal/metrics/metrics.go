// Package metrics exposes the poll pipeline's Prometheus metrics: per
// (connection, outcome) batch poll-cycle counters and the
// bounded sample channel's depth, grounded on the arx-os-arxos pack
// member's promauto-built CounterVec/GaugeVec pattern.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordise2002/modbus-watch/internal/model"
)

var (
	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modbus_watch",
		Name:      "poll_cycles_total",
		Help:      "Number of batch poll cycles, partitioned by outcome.",
	}, []string{"connection", "outcome"})

	SampleChannelDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "modbus_watch",
		Name:      "sample_channel_depth",
		Help:      "Current number of buffered samples in the master's bounded sample channel.",
	})

	AggregatesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modbus_watch",
		Name:      "aggregates_written_total",
		Help:      "Number of aggregate rows written, partitioned by period.",
	}, []string{"period"})
)

// Server serves the /metrics and /health endpoints on their own
// listener, separate from the master/slave's value API.
type Server struct {
	server *http.Server
}

func NewServer(port uint16) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return &Server{server: &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}}
}

func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics: server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// WatchChannelDepth samples ch's length into SampleChannelDepth every
// interval until ctx is cancelled.
func WatchChannelDepth(ctx context.Context, ch chan model.Sample, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			SampleChannelDepth.Set(float64(len(ch)))
		}
	}
}
