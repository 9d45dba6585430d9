package finrag

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// observer logs and counts SDK calls. A nil observer is a no-op.
type observer struct {
	logger   *slog.Logger
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg == nil {
		return o, nil
	}

	o.calls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finrag",
		Subsystem: "sdk",
		Name:      "requests_total",
		Help:      "SDK calls by operation and outcome (ok, an API error code, or transport).",
	}, []string{"operation", "outcome"})
	o.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "finrag",
		Subsystem: "sdk",
		Name:      "request_duration_seconds",
		Help:      "SDK call duration, including the whole answer stream for chat_stream.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"operation"})

	if err := reuseOnConflict(reg, &o.calls); err != nil {
		return nil, err
	}
	if err := reuseOnConflict(reg, &o.duration); err != nil {
		return nil, err
	}
	return o, nil
}

// reuseOnConflict registers c, or swaps in the collector a previous client already registered.
func reuseOnConflict[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("finrag: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("finrag: metric registered with a different type: %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	elapsed := time.Since(start)
	result := outcome(err)

	if o.calls != nil {
		o.calls.WithLabelValues(op, result).Inc()
		o.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
	if o.logger == nil {
		return
	}
	if err != nil {
		o.logger.Warn("finrag call failed", "op", op, "outcome", result, "duration", elapsed, "error", err)
		return
	}
	o.logger.Debug("finrag call", "op", op, "duration", elapsed)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != "" {
			return apiErr.Code
		}
		return "http_" + strconv.Itoa(apiErr.StatusCode)
	}
	return "transport"
}
