package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTransition("enter")
	m.ObserveEvaluationError()
	m.ObserveEvaluation(time.Millisecond)
	m.ObserveAlert("sos")
	m.ObserveDeliveryFailure()
	m.ObserveSample("accepted")
}

func TestCountersAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTransition("enter")
	m.ObserveTransition("enter")
	m.ObserveTransition("exit")
	m.ObserveEvaluationError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("enter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("exit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluationErrors))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tracking_geofence_transitions_total"))
}
