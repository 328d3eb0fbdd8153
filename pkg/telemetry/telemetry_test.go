// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/seiklabs/mcpgate/pkg/errors"
)

func TestConfigureSlog_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "text")

	logger.Info("should be filtered")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Errorf("info record leaked through warn level: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestConfigureSlog_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	logger.Info("hello", slog.String("action", "list_tools"))

	out := buf.String()
	if !strings.Contains(out, `"action":"list_tools"`) {
		t.Errorf("expected JSON output, got %s", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDispatchMetrics_RecordsWithoutPanic(t *testing.T) {
	dm, err := NewDispatchMetrics()
	if err != nil {
		t.Fatalf("NewDispatchMetrics error: %v", err)
	}

	ctx := context.Background()
	dm.RecordDispatch(ctx, "list_tools", 5*time.Millisecond, nil)
	dm.RecordDispatch(ctx, "execute_tool", 10*time.Millisecond,
		errors.New(errors.CodeToolNotFound, "tool not found", nil))
	dm.RecordTruncation(ctx, "file:///big.txt")

	// nil receiver must be safe for disabled metrics
	var disabled *DispatchMetrics
	disabled.RecordDispatch(ctx, "list_tools", time.Millisecond, nil)
	disabled.RecordTruncation(ctx, "file:///big.txt")
}

func TestInitWithConfig_RejectsUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("mcpgate-test", "0.0.1", Config{Exporter: "bogus"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
	if _, err := InitWithConfig("mcpgate-test", "0.0.1", Config{Exporter: "otlp"}); err == nil {
		t.Fatal("expected error when otlp endpoint missing")
	}
}
