// Package metrics holds the Prometheus collectors of the service. All
// Record* methods are safe on a nil *Metrics so collaborators can run
// without instrumentation in tests.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusDryRun  = "dry_run"
	StatusGone    = "gone"

	ResultVerified = "verified"
	ResultInvalid  = "invalid"
	ResultLocked   = "locked"
)

type Metrics struct {
	otpIssued          *prometheus.CounterVec
	otpVerifications   *prometheus.CounterVec
	whatsappDeliveries *prometheus.CounterVec
	pushDeliveries     *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// Panics if registration fails (following prometheus convention).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		otpIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwanotify_otp_issued_total",
			Help: "Total number of OTP codes issued",
		}, []string{"reason"}),
		otpVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwanotify_otp_verifications_total",
			Help: "Total number of OTP verification attempts",
		}, []string{"result"}),
		whatsappDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwanotify_whatsapp_deliveries_total",
			Help: "Total number of WhatsApp OTP deliveries",
		}, []string{"status"}),
		pushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwanotify_push_deliveries_total",
			Help: "Total number of web push deliveries",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwanotify_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pwanotify_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.otpIssued,
		m.otpVerifications,
		m.whatsappDeliveries,
		m.pushDeliveries,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// RecordOTPIssued counts an issued code. reason is register, login or resend.
func (m *Metrics) RecordOTPIssued(reason string) {
	if m == nil {
		return
	}
	m.otpIssued.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordOTPVerification(result string) {
	if m == nil {
		return
	}
	m.otpVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordWhatsAppDelivery(status string) {
	if m == nil {
		return
	}
	m.whatsappDeliveries.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordPushDelivery(status string) {
	if m == nil {
		return
	}
	m.pushDeliveries.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
