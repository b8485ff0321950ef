package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailMetricsExistAndIncrement(t *testing.T) {
	// Use a test label to avoid colliding with other tests
	lbl := "test-transport"

	MailSendSuccess.WithLabelValues(lbl).Inc()
	if v := testutil.ToFloat64(MailSendSuccess.WithLabelValues(lbl)); v < 1 {
		t.Fatalf("expected MailSendSuccess >= 1, got %v", v)
	}

	MailSendFailure.WithLabelValues(lbl).Add(2)
	if v := testutil.ToFloat64(MailSendFailure.WithLabelValues(lbl)); v < 2 {
		t.Fatalf("expected MailSendFailure >= 2, got %v", v)
	}

	MailVerifyFailure.WithLabelValues(lbl).Inc()
	if v := testutil.ToFloat64(MailVerifyFailure.WithLabelValues(lbl)); v < 1 {
		t.Fatalf("expected MailVerifyFailure >= 1, got %v", v)
	}
}

func TestEventMetricsLabelCardinality(t *testing.T) {
	EventsEmitted.Reset()
	defer EventsEmitted.Reset()

	EventsEmitted.WithLabelValues("mail", "info").Inc()
	EventsEmitted.WithLabelValues("mail", "error").Inc()
	EventsEmitted.WithLabelValues("mail", "error").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(EventsEmitted.WithLabelValues("mail", "info")))
	assert.Equal(t, float64(2), testutil.ToFloat64(EventsEmitted.WithLabelValues("mail", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(EventsEmitted))
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	MailSendSuccess.WithLabelValues("handler-test").Inc()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `logmail_mail_send_success_total{transport="handler-test"}`)
}
