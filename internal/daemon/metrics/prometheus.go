// Package metrics exposes daemon counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grovetools/wastenet/errors"
)

const namespace = "wastenet"

// Recorder implements the store and notifier metric hooks. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	reg *prom.Registry

	mutations       *prom.CounterVec
	transitions     *prom.CounterVec
	published       prom.Counter
	fanout          prom.Histogram
	dropped         *prom.CounterVec
	observers       prom.Gauge
	detaches        *prom.CounterVec
	snapshots       prom.Counter
	requestDuration *prom.HistogramVec
}

// NewRecorder constructs and registers the daemon metrics.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{reg: reg}
	r.mutations = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "mutations_total",
		Help:      "Store operations by name and result",
	}, []string{"operation", "result"})
	r.transitions = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Mutations that changed a bin's status",
	}, []string{"operation"})
	r.published = prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Status change events handed to the notifier",
	})
	r.fanout = prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "event_fanout",
		Help:      "Number of observers attached when an event was published",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})
	r.dropped = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events not enqueued because an observer queue was full",
	}, []string{"observer"})
	r.observers = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "observers",
		Help:      "Currently attached observers",
	})
	r.detaches = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "observer_detaches_total",
		Help:      "Observer detaches by reason",
	}, []string{"reason"})
	r.snapshots = prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_served_total",
		Help:      "Snapshots served to observers",
	})
	r.requestDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prom.DefBuckets,
	}, []string{"route", "code"})
	reg.MustRegister(r.mutations, r.transitions, r.published, r.fanout, r.dropped,
		r.observers, r.detaches, r.snapshots, r.requestDuration)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prom.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObserveMutation implements store.MutationObserver.
func (r *Recorder) ObserveMutation(op string, transitioned bool, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(errors.GetCode(err))
		if result == "" {
			result = "error"
		}
	}
	r.mutations.WithLabelValues(op, result).Inc()
	if transitioned {
		r.transitions.WithLabelValues(op).Inc()
	}
}

// EventPublished implements notifier.Recorder.
func (r *Recorder) EventPublished(subscribers int) {
	if r == nil {
		return
	}
	r.published.Inc()
	r.fanout.Observe(float64(subscribers))
}

// EventDropped implements notifier.Recorder.
func (r *Recorder) EventDropped(name string) {
	if r == nil {
		return
	}
	r.dropped.WithLabelValues(name).Inc()
}

// ObserverAttached implements notifier.Recorder.
func (r *Recorder) ObserverAttached(active int) {
	if r == nil {
		return
	}
	r.observers.Set(float64(active))
}

// ObserverDetached implements notifier.Recorder.
func (r *Recorder) ObserverDetached(reason string, active int) {
	if r == nil {
		return
	}
	r.detaches.WithLabelValues(reason).Inc()
	r.observers.Set(float64(active))
}

// IncSnapshot counts one served snapshot.
func (r *Recorder) IncSnapshot() {
	if r == nil {
		return
	}
	r.snapshots.Inc()
}

// ObserveRequest records one HTTP request.
func (r *Recorder) ObserveRequest(route string, code int, d time.Duration) {
	if r == nil {
		return
	}
	r.requestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}

// HTTPHandler serves the recorder's registry.
func (r *Recorder) HTTPHandler() http.Handler {
	reg := r.Registry()
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
