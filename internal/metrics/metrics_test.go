package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ServesPipelineMetrics(t *testing.T) {
	m := New()
	m.PassesTotal.WithLabelValues("ok").Inc()
	m.EventsUploaded.WithLabelValues("music", "uploaded").Add(2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `mailcal_passes_total{result="ok"} 1`)
	assert.Contains(t, string(body), `mailcal_events_total{destination="music",result="uploaded"} 2`)
	assert.Contains(t, string(body), "go_goroutines")
}
