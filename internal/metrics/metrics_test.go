package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should register all collectors without panicking", func(t *testing.T) {
		m := New()
		require.NotNil(t, m)
		require.NotNil(t, m.Registry())
	})

	t.Run("should count run outcomes by agent and status", func(t *testing.T) {
		m := New()
		m.RunsTotal.WithLabelValues("triage", "ok").Inc()
		m.RunsTotal.WithLabelValues("triage", "ok").Inc()
		m.RunsTotal.WithLabelValues("triage", "error").Inc()

		assert.Equal(t, float64(2), testutil.ToFloat64(m.RunsTotal.WithLabelValues("triage", "ok")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("triage", "error")))
	})

	t.Run("should track capability server connection gauge", func(t *testing.T) {
		m := New()
		m.ServerConnected.WithLabelValues("files").Set(1)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ServerConnected.WithLabelValues("files")))

		m.ServerConnected.WithLabelValues("files").Set(0)
		assert.Equal(t, float64(0), testutil.ToFloat64(m.ServerConnected.WithLabelValues("files")))
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ApprovalDecisionTotal.WithLabelValues("approved").Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}
