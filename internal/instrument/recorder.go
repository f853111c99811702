// Package instrument wraps backend calls with timing logs and metrics.
package instrument

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"vfzsync/internal/syncerr"
)

// Recorder times backend calls. A nil *Recorder is valid and only runs fn.
type Recorder struct {
	Logger *zap.Logger

	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec
	passTotal    *prometheus.CounterVec
	passWrites   *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
}

func NewRecorder(logger *zap.Logger, registerer prometheus.Registerer) *Recorder {
	r := &Recorder{
		Logger: logger,
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vfzsync_backend_call_duration_seconds",
				Help:    "Duration of backend calls by system and operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"system", "op"},
		),
		callErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfzsync_backend_call_errors_total",
				Help: "Failed backend calls by system, operation and error kind",
			},
			[]string{"system", "op", "kind"},
		),
		passTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfzsync_passes_total",
				Help: "Reconciliation sub-passes by scope and outcome",
			},
			[]string{"scope", "outcome"},
		),
		passWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfzsync_pass_writes_total",
				Help: "Writes performed by reconciliation sub-passes",
			},
			[]string{"scope", "action"},
		),
		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vfzsync_pass_duration_seconds",
				Help:    "Duration of reconciliation sub-passes",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"scope"},
		),
	}
	if registerer != nil {
		registerer.MustRegister(r.callDuration, r.callErrors, r.passTotal, r.passWrites, r.passDuration)
	}
	return r
}

// Call runs fn and records its duration and error kind.
func (r *Recorder) Call(ctx context.Context, system, op string, fn func(ctx context.Context) error) error {
	if r == nil {
		return fn(ctx)
	}
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if r.callDuration != nil {
		r.callDuration.WithLabelValues(system, op).Observe(elapsed.Seconds())
	}
	if err != nil {
		if r.callErrors != nil {
			r.callErrors.WithLabelValues(system, op, syncerr.KindOf(err).String()).Inc()
		}
		if r.Logger != nil {
			r.Logger.Debug("backend call failed",
				zap.String("system", system),
				zap.String("op", op),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
		}
		return err
	}
	if r.Logger != nil {
		r.Logger.Debug("backend call",
			zap.String("system", system),
			zap.String("op", op),
			zap.Duration("elapsed", elapsed),
		)
	}
	return nil
}

// ObservePass records one finished sub-pass.
func (r *Recorder) ObservePass(scope, outcome string, elapsed time.Duration, writes map[string]int) {
	if r == nil {
		return
	}
	if r.passTotal != nil {
		r.passTotal.WithLabelValues(scope, outcome).Inc()
	}
	if r.passDuration != nil {
		r.passDuration.WithLabelValues(scope).Observe(elapsed.Seconds())
	}
	if r.passWrites != nil {
		for action, n := range writes {
			if n > 0 {
				r.passWrites.WithLabelValues(scope, action).Add(float64(n))
			}
		}
	}
}
