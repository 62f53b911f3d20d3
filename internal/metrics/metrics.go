// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors updated by a pipeline pass.
type Metrics struct {
	registry *prometheus.Registry

	PassesTotal       *prometheus.CounterVec // result: ok, error
	PassDuration      prometheus.Histogram
	MessagesScanned   prometheus.Counter
	AttachmentsParsed *prometheus.CounterVec // result: ok, empty, error
	EventsUploaded    *prometheus.CounterVec // destination, result: uploaded, failed, skipped
	MailsProcessed    *prometheus.CounterVec // result: success, failure, dry_run
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PassesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailcal_passes_total",
			Help: "Pipeline passes by result.",
		}, []string{"result"}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailcal_pass_duration_seconds",
			Help:    "Duration of a full pipeline pass.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		MessagesScanned: f.NewCounter(prometheus.CounterOpts{
			Name: "mailcal_messages_scanned_total",
			Help: "Messages fetched from the mailbox.",
		}),
		AttachmentsParsed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailcal_attachments_parsed_total",
			Help: "Calendar attachments parsed by result.",
		}, []string{"result"}),
		EventsUploaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailcal_events_total",
			Help: "Events handed to the uploader by destination and result.",
		}, []string{"destination", "result"}),
		MailsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailcal_mails_total",
			Help: "Processed mails by overall upload result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
