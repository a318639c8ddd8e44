// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func startServer(t *testing.T, checker ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", checker)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, nil)

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")

	m := server.Metrics()
	m.RecordLogin("success")
	m.RecordLogin("success")
	m.RecordLogin("invalid_credentials")
	m.RecordRegistration("bootstrap")
	m.RecordLogout()
	m.RecordRequest("redirect_self", http.StatusSeeOther)

	_, body = get(t, server, "/metrics")
	assert.Contains(t, body, `smalllogin_logins_total{outcome="success"} 2`)
	assert.Contains(t, body, `smalllogin_logins_total{outcome="invalid_credentials"} 1`)
	assert.Contains(t, body, `smalllogin_registrations_total{outcome="bootstrap"} 1`)
	assert.Contains(t, body, "smalllogin_logouts_total 1")
	assert.Contains(t, body, `smalllogin_http_requests_total{outcome="redirect_self",status="303"} 1`)
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRegistration("created")
	m.RecordRegistration("duplicate")
	m.RecordRegistration("duplicate")

	assert.InDelta(t, 1, testutil.ToFloat64(m.RegistrationsTotal.WithLabelValues("created")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.RegistrationsTotal.WithLabelValues("duplicate")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.LogoutsTotal), 0)
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, func(context.Context) error { return errors.New("down") })

	status, body := get(t, server, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		checker    ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{name: "nil checker is ready", checker: nil, wantStatus: http.StatusOK, wantBody: "ok"},
		{
			name:       "store reachable",
			checker:    func(context.Context) error { return nil },
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "store unreachable",
			checker:    func(context.Context) error { return errors.New("connection refused") },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not ready",
		},
		{
			name: "checker gets a deadline",
			checker: func(ctx context.Context) error {
				if _, ok := ctx.Deadline(); !ok {
					return errors.New("no deadline")
				}
				return nil
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.checker)
			status, body := get(t, server, "/healthz/readiness")
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(body))
		})
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)

	_, err := server.Start()
	assert.Error(t, err)
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Stop(ctx), "stop without start should not error")
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	require.NoError(t, err)
	require.NotEmpty(t, server.Addr())

	// Closing the listener underneath Serve simulates an unexpected failure.
	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error on error channel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Stop(ctx)
}

func TestServer_StopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}
