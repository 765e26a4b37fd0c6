package metrics_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunchhieng/saveit/internal/metrics"
)

func TestSetLinkCounts(t *testing.T) {
	// Arrange
	counts := map[string]int{"unread": 3, "completed": 1}

	// Act
	metrics.SetLinkCounts(counts)

	// Assert
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.Links.WithLabelValues("unread")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Links.WithLabelValues("reading")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Links.WithLabelValues("completed")))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServer(t *testing.T) {
	// Arrange
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	addr := freeAddr(t)
	metrics.SetLinkCounts(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- metrics.NewServer(addr, logger).Start(ctx) }()

	// Act
	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	metricsResp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	metricsBody, err := io.ReadAll(metricsResp.Body)
	metricsResp.Body.Close()
	require.NoError(t, err)

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
	assert.Contains(t, string(metricsBody), "saveit_links")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
