// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"

	"github.com/smalllogin/smalllogin/internal/observability"
)

// mockMigrator implements Migrator for testing.
type mockMigrator struct {
	upFunc      func() error
	downFunc    func() error
	versionFunc func() (uint, bool, error)
	forceFunc   func(int) error
	pendingFunc func() ([]uint, error)
	closeFunc   func() error

	upCalls    int
	closeCalls int
}

func (m *mockMigrator) Up() error {
	m.upCalls++
	if m.upFunc != nil {
		return m.upFunc()
	}
	return nil
}

func (m *mockMigrator) Down() error {
	if m.downFunc != nil {
		return m.downFunc()
	}
	return nil
}

func (m *mockMigrator) Version() (uint, bool, error) {
	if m.versionFunc != nil {
		return m.versionFunc()
	}
	return 0, false, nil
}

func (m *mockMigrator) Force(version int) error {
	if m.forceFunc != nil {
		return m.forceFunc(version)
	}
	return nil
}

func (m *mockMigrator) PendingMigrations() ([]uint, error) {
	if m.pendingFunc != nil {
		return m.pendingFunc()
	}
	return nil, nil
}

func (m *mockMigrator) Close() error {
	m.closeCalls++
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

// mockObservabilityServer implements ObservabilityServer for testing.
type mockObservabilityServer struct {
	startFunc func() (<-chan error, error)
	stopFunc  func(ctx context.Context) error
	metrics   *observability.Metrics

	stopped chan struct{}
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	if m.startFunc != nil {
		return m.startFunc()
	}
	return make(chan error, 1), nil
}

func (m *mockObservabilityServer) Stop(ctx context.Context) error {
	if m.stopped != nil {
		close(m.stopped)
	}
	if m.stopFunc != nil {
		return m.stopFunc(ctx)
	}
	return nil
}

func (m *mockObservabilityServer) Addr() string {
	return "127.0.0.1:9100"
}

func (m *mockObservabilityServer) Metrics() *observability.Metrics {
	return m.metrics
}

// newTestCmd returns a bare command whose output is captured.
func newTestCmd() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "test"}
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd, out, errOut
}

// restoreDefaultLogger undoes the slog.SetDefault done by setupLogging.
func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}
