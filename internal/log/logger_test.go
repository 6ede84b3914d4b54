// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected *Config
	}{
		{
			name:    "defaults when no env vars",
			envVars: map[string]string{},
			expected: &Config{
				Level: "info", Format: FormatJSON, AddSource: false,
			},
		},
		{
			name:     "LOG_LEVEL=debug",
			envVars:  map[string]string{"LOG_LEVEL": "debug"},
			expected: &Config{Level: "debug", Format: FormatJSON, AddSource: false},
		},
		{
			name:     "LOG_LEVEL=DEBUG case insensitive",
			envVars:  map[string]string{"LOG_LEVEL": "DEBUG"},
			expected: &Config{Level: "debug", Format: FormatJSON, AddSource: false},
		},
		{
			name:     "LOG_FORMAT=text",
			envVars:  map[string]string{"LOG_FORMAT": "text"},
			expected: &Config{Level: "info", Format: FormatText, AddSource: false},
		},
		{
			name:     "LOG_SOURCE=1",
			envVars:  map[string]string{"LOG_SOURCE": "1"},
			expected: &Config{Level: "info", Format: FormatJSON, AddSource: true},
		},
		{
			name: "BUS_LOG_LEVEL takes precedence over LOG_LEVEL",
			envVars: map[string]string{
				"BUS_LOG_LEVEL": "warn",
				"LOG_LEVEL":     "error",
			},
			expected: &Config{Level: "warn", Format: FormatJSON, AddSource: false},
		},
		{
			name:     "BUS_DEBUG forces debug and source",
			envVars:  map[string]string{"BUS_DEBUG": "1", "LOG_LEVEL": "error"},
			expected: &Config{Level: "debug", Format: FormatJSON, AddSource: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"BUS_DEBUG", "BUS_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				os.Unsetenv(k)
			}
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.envVars {
					os.Unsetenv(k)
				}
			}()

			cfg := FromEnv()
			if cfg.Level != tt.expected.Level {
				t.Errorf("expected level %q, got %q", tt.expected.Level, cfg.Level)
			}
			if cfg.Format != tt.expected.Format {
				t.Errorf("expected format %q, got %q", tt.expected.Format, cfg.Format)
			}
			if cfg.AddSource != tt.expected.AddSource {
				t.Errorf("expected AddSource %v, got %v", tt.expected.AddSource, cfg.AddSource)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	logger.Info("test message", "key", "value")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	if logEntry["msg"] != "test message" {
		t.Errorf("expected msg field to be 'test message', got: %v", logEntry["msg"])
	}
	if logEntry["level"] != "INFO" {
		t.Errorf("expected level field to be 'INFO', got: %v", logEntry["level"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})
	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") || !strings.Contains(output, "key=value") {
		t.Errorf("unexpected text output: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("expected level %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestWithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	WithCorrelationID(logger, "corr-1").Info("test message")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}
	if logEntry[CorrelationIDKey] != "corr-1" {
		t.Errorf("expected correlation_id to be 'corr-1', got: %v", logEntry[CorrelationIDKey])
	}
}

func TestWithCorrelationID_Empty(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	WithCorrelationID(logger, "").Info("test message")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}
	if _, ok := logEntry[CorrelationIDKey]; ok {
		t.Errorf("expected no correlation_id field when empty")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	WithComponent(logger, "bus").Info("test message")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}
	if logEntry["component"] != "bus" {
		t.Errorf("expected component field to be 'bus', got: %v", logEntry["component"])
	}
}

func TestWithWorkflowContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	WithWorkflowContext(logger, "wf-123", "order-saga").Info("test message")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}
	if logEntry[WorkflowIDKey] != "wf-123" {
		t.Errorf("expected %s to be 'wf-123', got: %v", WorkflowIDKey, logEntry[WorkflowIDKey])
	}
	if logEntry[WorkflowNameKey] != "order-saga" {
		t.Errorf("expected %s to be 'order-saga', got: %v", WorkflowNameKey, logEntry[WorkflowNameKey])
	}
}

func TestAddSource(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf, AddSource: true})
	logger.Info("test message")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}
	if _, ok := logEntry["source"]; !ok {
		t.Errorf("expected source field to be present")
	}
}

func TestAttrHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	logger.Info("test message",
		String("string_key", "string_value"),
		Int("int_key", 42),
		Bool("bool_key", true),
		Duration("duration_key", 1500),
	)

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}
	if logEntry["string_key"] != "string_value" {
		t.Errorf("expected string_key to be 'string_value', got: %v", logEntry["string_key"])
	}
	if logEntry["int_key"] != float64(42) {
		t.Errorf("expected int_key to be 42, got: %v", logEntry["int_key"])
	}
	if logEntry["bool_key"] != true {
		t.Errorf("expected bool_key to be true, got: %v", logEntry["bool_key"])
	}
	if logEntry["duration_key_ms"] != float64(1500) {
		t.Errorf("expected duration_key_ms to be 1500, got: %v", logEntry["duration_key_ms"])
	}
}

func TestErrorAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "error", Format: FormatJSON, Output: &buf})
	testErr := errors.New("test error")
	logger.Error("test error message", Error(testErr))

	if !strings.Contains(buf.String(), testErr.Error()) {
		t.Errorf("expected error message in output, got: %s", buf.String())
	}
}

func TestNilConfig(t *testing.T) {
	logger := New(nil)
	if logger == nil {
		t.Errorf("expected non-nil logger when nil config passed")
	}
}

func TestTrace_FilteredBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	Trace(logger, "should not appear")
	if buf.Len() != 0 {
		t.Errorf("expected trace log to be filtered at debug level, got: %s", buf.String())
	}
}

func TestTrace_EmittedAtTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "trace", Format: FormatJSON, Output: &buf})
	Trace(logger, "trace message")
	if !strings.Contains(buf.String(), "trace message") {
		t.Errorf("expected trace message in output, got: %s", buf.String())
	}
}

func BenchmarkLogger_JSON(b *testing.B) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", "iteration", i, "key1", "value1")
	}
}
