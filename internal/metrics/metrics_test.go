package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/require"
)

func TestRecordRequestExposedInTextFormat(t *testing.T) {
	m := New()
	m.RecordRequest("qwen2.5-7b", "chat/completions", "200", 150*time.Millisecond)
	m.RecordTokens("qwen2.5-7b", 42, 128)
	m.SetModelsLoaded(2)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err)

	requests, ok := families["lemonade_gateway_requests_total"]
	require.True(t, ok)
	require.Len(t, requests.Metric, 1)

	loaded, ok := families["lemonade_gateway_models_loaded"]
	require.True(t, ok)
	require.Equal(t, 2.0, loaded.Metric[0].GetGauge().GetValue())
}

func TestDownloadStartedFinishedTracksActiveGauge(t *testing.T) {
	m := New()
	m.DownloadStarted()
	m.DownloadStarted()
	m.DownloadFinished()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err)

	active := families["lemonade_gateway_downloads_active"]
	require.Equal(t, 1.0, active.Metric[0].GetGauge().GetValue())
}
