package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Mail metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmail_mail_send_success_total",
		Help: "Total number of log records delivered as mail",
	}, []string{"transport"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmail_mail_send_failure_total",
		Help: "Total number of log records whose mail delivery failed",
	}, []string{"transport"})
	MailVerifyFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmail_mail_verify_failure_total",
		Help: "Total number of failed mail server connectivity checks",
	}, []string{"transport"})
	MailSendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logmail_mail_send_duration_seconds",
		Help:    "Time spent handing a log record to the mail endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport"})
	MailInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logmail_mail_in_flight",
		Help: "Number of mail sends currently in progress",
	}, []string{"transport"})

	// Event metrics
	EventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmail_events_emitted_total",
		Help: "Total number of transport events emitted, by kind",
	}, []string{"transport", "kind"})
	EventSinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmail_event_sink_errors_total",
		Help: "Total number of errors writing transport events to a sink",
	}, []string{"sink", "error_type"})
	EventSinkConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logmail_event_sink_connected",
		Help: "Whether an event sink is currently connected (1) or not (0)",
	}, []string{"sink"})
	EventSinkCircuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logmail_event_sink_circuit_state",
		Help: "Circuit breaker state of an event sink (0=closed, 1=open, 2=half-open)",
	}, []string{"sink"})
	EventSinkCircuitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmail_event_sink_circuit_rejections_total",
		Help: "Total number of events rejected because the sink circuit was open",
	}, []string{"sink"})
	EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmail_events_dropped_total",
		Help: "Total number of transport events dropped before reaching a sink",
	}, []string{"sink", "reason"})
	EventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmail_events_processed_total",
		Help: "Total number of queued transport events written to a sink",
	}, []string{"sink"})
	EventSinkQueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logmail_event_sink_queue_length",
		Help: "Number of transport events waiting in a sink queue",
	}, []string{"sink"})

	// HTTP intake metrics
	HTTPRateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmail_http_rate_limited_total",
		Help: "Total number of HTTP requests rejected by the rate limiter",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailVerifyFailure)
	prometheus.MustRegister(MailSendDuration)
	prometheus.MustRegister(MailInFlight)
	prometheus.MustRegister(EventsEmitted)
	prometheus.MustRegister(EventSinkErrors)
	prometheus.MustRegister(EventSinkConnected)
	prometheus.MustRegister(EventSinkCircuitState)
	prometheus.MustRegister(EventSinkCircuitRejections)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(EventsProcessed)
	prometheus.MustRegister(EventSinkQueueLength)
	prometheus.MustRegister(HTTPRateLimited)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
