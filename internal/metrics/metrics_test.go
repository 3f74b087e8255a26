package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRatesMetrics_IndependentRegistries(t *testing.T) {
	first := NewRatesMetrics()
	second := NewRatesMetrics()

	first.FetchTotal.WithLabelValues("feed", ResultSuccess).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(first.FetchTotal.WithLabelValues("feed", ResultSuccess)))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.FetchTotal.WithLabelValues("feed", ResultSuccess)))
}

func TestRatesMetrics_Handler(t *testing.T) {
	m := NewRatesMetrics()
	m.ConversionsTotal.WithLabelValues(ResultSuccess).Add(3)
	m.SnapshotSize.Set(3)

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `conversions_total{result="success"} 3`)
	assert.Contains(t, string(body), "rates_snapshot_size 3")
}
