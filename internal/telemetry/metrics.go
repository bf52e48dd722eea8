package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/huskyapply/gateway"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Stream metrics
	StreamConnectionsCreated metric.Int64Counter
	StreamConnectionsActive  metric.Int64UpDownCounter
	StreamConnectionsRemoved metric.Int64Counter
	StreamConnectionsRefused metric.Int64Counter
	StreamMessagesSent       metric.Int64Counter
	StreamMessagesDropped    metric.Int64Counter
	StreamHeartbeatsSent     metric.Int64Counter

	// Ingestion metrics
	IngestEventsTotal   metric.Int64Counter
	IngestEventsDropped metric.Int64Counter

	// Queue metrics
	QueuePublishTotal       metric.Int64Counter
	QueuePublishErrorsTotal metric.Int64Counter
	QueuePublishDuration    metric.Float64Histogram

	// Job lifecycle metrics
	JobsCreatedTotal   metric.Int64Counter
	JobsCompletedTotal metric.Int64Counter
	JobsFailedTotal    metric.Int64Counter
	ArtifactsSaved     metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Stream metrics
	m.StreamConnectionsCreated, _ = meter.Int64Counter(
		"gateway.stream.connections.created.total",
		metric.WithDescription("Total number of SSE connections registered"),
		metric.WithUnit("{connection}"),
	)

	m.StreamConnectionsActive, _ = meter.Int64UpDownCounter(
		"gateway.stream.connections.active",
		metric.WithDescription("Number of currently active SSE connections"),
		metric.WithUnit("{connection}"),
	)

	m.StreamConnectionsRemoved, _ = meter.Int64Counter(
		"gateway.stream.connections.removed.total",
		metric.WithDescription("Total number of SSE connections removed, by reason"),
		metric.WithUnit("{connection}"),
	)

	m.StreamConnectionsRefused, _ = meter.Int64Counter(
		"gateway.stream.connections.refused.total",
		metric.WithDescription("Total number of SSE connections refused at the capacity limit"),
		metric.WithUnit("{connection}"),
	)

	m.StreamMessagesSent, _ = meter.Int64Counter(
		"gateway.stream.messages.sent.total",
		metric.WithDescription("Total number of frames delivered to subscribers"),
		metric.WithUnit("{message}"),
	)

	m.StreamMessagesDropped, _ = meter.Int64Counter(
		"gateway.stream.messages.dropped.total",
		metric.WithDescription("Total number of frames dropped due to subscriber overflow"),
		metric.WithUnit("{message}"),
	)

	m.StreamHeartbeatsSent, _ = meter.Int64Counter(
		"gateway.stream.heartbeats.sent.total",
		metric.WithDescription("Total number of heartbeat frames delivered"),
		metric.WithUnit("{message}"),
	)

	// Ingestion metrics
	m.IngestEventsTotal, _ = meter.Int64Counter(
		"gateway.ingest.events.total",
		metric.WithDescription("Total number of status events received"),
		metric.WithUnit("{event}"),
	)

	m.IngestEventsDropped, _ = meter.Int64Counter(
		"gateway.ingest.events.dropped.total",
		metric.WithDescription("Total number of status events dropped, by reason"),
		metric.WithUnit("{event}"),
	)

	// Queue metrics
	m.QueuePublishTotal, _ = meter.Int64Counter(
		"gateway.queue.publish.total",
		metric.WithDescription("Total number of broker publish attempts"),
		metric.WithUnit("{message}"),
	)

	m.QueuePublishErrorsTotal, _ = meter.Int64Counter(
		"gateway.queue.publish.errors.total",
		metric.WithDescription("Total number of broker publish failures"),
		metric.WithUnit("{error}"),
	)

	m.QueuePublishDuration, _ = meter.Float64Histogram(
		"gateway.queue.publish.duration",
		metric.WithDescription("Duration of broker publish operations including confirms"),
		metric.WithUnit("ms"),
	)

	// Job lifecycle metrics
	m.JobsCreatedTotal, _ = meter.Int64Counter(
		"gateway.jobs.created.total",
		metric.WithDescription("Total number of jobs accepted"),
		metric.WithUnit("{job}"),
	)

	m.JobsCompletedTotal, _ = meter.Int64Counter(
		"gateway.jobs.completed.total",
		metric.WithDescription("Total number of jobs that reached COMPLETED"),
		metric.WithUnit("{job}"),
	)

	m.JobsFailedTotal, _ = meter.Int64Counter(
		"gateway.jobs.failed.total",
		metric.WithDescription("Total number of jobs that reached FAILED"),
		metric.WithUnit("{job}"),
	)

	m.ArtifactsSaved, _ = meter.Int64Counter(
		"gateway.artifacts.saved.total",
		metric.WithDescription("Total number of artifacts captured"),
		metric.WithUnit("{artifact}"),
	)

	return m
}
