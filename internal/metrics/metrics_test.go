package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGauges(t *testing.T) {
	SetSnippets(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(metricSnippets))

	SetLocks(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(metricLocks))

	before := testutil.ToFloat64(metricHosts)
	HostAttached(1)
	HostAttached(1)
	HostAttached(-1)
	assert.Equal(t, before+1, testutil.ToFloat64(metricHosts))

	Reloaded("store")
	assert.Equal(t, 1.0, testutil.ToFloat64(metricReloads.WithLabelValues("store")))
}

func TestServer(t *testing.T) {
	_, err := Listen("", nil)
	require.Error(t, err)

	s, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	SetSnippets(3)
	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "textstorm_snippets_indexed 3")

	cancel()
	assert.NoError(t, <-done)
}
