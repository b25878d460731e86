package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/storefront-auth/internal/core/domain"
)

// Namespace prefixes every collector the service exports.
const Namespace = "shop"

// Metrics holds the non-HTTP collectors: background sweeps and outbound mail.
type Metrics struct {
	SweepRuns     *prometheus.CounterVec
	SweepDeleted  prometheus.Counter
	SweepDuration prometheus.Histogram
	MailSent      *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg, reusing any already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "refresh_sweep",
			Name:      "runs_total",
			Help:      "Refresh token sweeps partitioned by result.",
		}, []string{"result"}),
		SweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "refresh_sweep",
			Name:      "deleted_total",
			Help:      "Expired refresh token records removed by the sweep.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "refresh_sweep",
			Name:      "duration_seconds",
			Help:      "Duration of refresh token sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		MailSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "mail",
			Name:      "messages_total",
			Help:      "Outbound account emails partitioned by kind and result.",
		}, []string{"kind", "result"}),
	}

	var err error
	if m.SweepRuns, err = register(reg, m.SweepRuns); err != nil {
		return nil, err
	}
	if m.SweepDeleted, err = register(reg, m.SweepDeleted); err != nil {
		return nil, err
	}
	if m.SweepDuration, err = register(reg, m.SweepDuration); err != nil {
		return nil, err
	}
	if m.MailSent, err = register(reg, m.MailSent); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the collector already registered under the same descriptor, if any.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// ObserveSweep records a sweep outcome. It matches scheduler.Observer.
func (m *Metrics) ObserveSweep(deleted int64, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.SweepRuns.WithLabelValues("error").Inc()
		return
	}
	m.SweepRuns.WithLabelValues("ok").Inc()
	m.SweepDeleted.Add(float64(deleted))
}

// ObserveMail records a delivery attempt handed to the mail transport.
func (m *Metrics) ObserveMail(kind domain.MailKind, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MailSent.WithLabelValues(string(kind), result).Inc()
}
