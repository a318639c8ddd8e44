// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/smalllogin/smalllogin/internal/logging"
	"github.com/smalllogin/smalllogin/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("STORE_CONNECTION_FAILED").
		With("operation", "find user").
		Errorf("connection refused")

	errutil.LogError(logger, "request failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "request failed", logEntry["msg"])
	assert.Equal(t, "STORE_CONNECTION_FAILED", logEntry["code"])
	ctx, ok := logEntry["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "find user", ctx["operation"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "request failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

func TestLogErrorContext_AttachesTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("smalllogin", "test", "json", "info", &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	errutil.LogErrorContext(ctx, logger, "request failed", oops.Code("AUTH_STATE_FAILED").Errorf("boom"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", logEntry["trace_id"])
	assert.Equal(t, "AUTH_STATE_FAILED", logEntry["code"])
}
