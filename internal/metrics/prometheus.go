package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink bridges the Sink interface onto Prometheus collectors.
//
// Counter names arrive as dotted paths ("queue.op.success"); they become
// the "name" label on a single counter vector rather than one collector
// per metric, so new names never require re-registration.
type PromSink struct {
	counters  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPromSink registers the tally collectors on reg and returns the sink.
// Registration failures are reported once at construction; after that the
// sink is fire-and-forget per the Sink contract.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "events_total",
		Help:      "Counter events emitted by the write gate and repair engine.",
	}, []string{"name"})

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tally",
		Name:      "operation_duration_seconds",
		Help:      "Observed durations of gated write operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"name"})

	if err := reg.Register(counters); err != nil {
		return nil, err
	}
	if err := reg.Register(durations); err != nil {
		return nil, err
	}

	return &PromSink{counters: counters, durations: durations}, nil
}

func (p *PromSink) Increment(name string) {
	p.counters.WithLabelValues(name).Inc()
}

func (p *PromSink) Timing(name string, d time.Duration) {
	p.durations.WithLabelValues(name).Observe(d.Seconds())
}
