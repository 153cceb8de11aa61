package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/kelurahan-portal/internal/application/dispatcher"
	"github.com/garyjia/kelurahan-portal/internal/domain/event"
	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

const namespace = "kelurahan"

// Recorder exports workflow measurements to Prometheus.
// It satisfies the engine's MetricsRecorder.
type Recorder struct {
	registry *prometheus.Registry

	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	documents          *prometheus.CounterVec
	documentDuration   prometheus.Histogram
	retries            *prometheus.CounterVec
	events             *prometheus.CounterVec
	applicationsByStep *prometheus.CounterVec
}

// NewRecorder registers the workflow collectors on a fresh registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_transitions_total",
				Help:      "Status transition attempts by source, target and outcome",
			},
			[]string{"from", "to", "outcome"},
		),
		transitionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_transition_duration_seconds",
				Help:      "Duration of status transitions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"to"},
		),
		documents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "document_generations_total",
				Help:      "Document generation requests by outcome",
			},
			[]string{"outcome"},
		),
		documentDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_generation_duration_seconds",
				Help:      "Duration of document generation in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_retries_total",
				Help:      "Retried engine operations",
			},
			[]string{"op"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_events_total",
				Help:      "Domain events dispatched after commit",
			},
			[]string{"type"},
		),
		applicationsByStep: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applications_entered_status_total",
				Help:      "Applications that entered each status",
			},
			[]string{"status"},
		),
	}
}

// ObserveTransition records one UpdateApplicationStatus call
func (r *Recorder) ObserveTransition(from, to domainwf.State, outcome string, elapsed time.Duration) {
	r.transitions.WithLabelValues(string(from), string(to), outcome).Inc()
	r.transitionDuration.WithLabelValues(string(to)).Observe(elapsed.Seconds())
}

// ObserveDocument records one GenerateApplicationDocument call
func (r *Recorder) ObserveDocument(outcome string, elapsed time.Duration) {
	r.documents.WithLabelValues(outcome).Inc()
	r.documentDuration.Observe(elapsed.Seconds())
}

// ObserveRetry records a retried attempt
func (r *Recorder) ObserveRetry(op string) {
	r.retries.WithLabelValues(op).Inc()
}

// Subscribe counts committed events on d
func (r *Recorder) Subscribe(d dispatcher.Dispatcher) error {
	return d.Subscribe("metrics", r.handleEvent)
}

func (r *Recorder) handleEvent(ctx context.Context, evt *event.Event) error {
	r.events.WithLabelValues(evt.Type.String()).Inc()

	switch evt.Type {
	case event.TypeApplicationCreated:
		r.applicationsByStep.WithLabelValues(string(domainwf.StateSubmitted)).Inc()
	case event.TypeStatusChanged:
		if status := evt.GetPayloadString("new_status"); status != "" {
			r.applicationsByStep.WithLabelValues(status).Inc()
		}
	}
	return nil
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
