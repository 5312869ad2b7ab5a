package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"espadl/pkg/config"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.LoggingConfig
		wantErr bool
	}{
		{
			name:    "info level",
			config:  &config.LoggingConfig{Level: "info"},
			wantErr: false,
		},
		{
			name:    "debug level",
			config:  &config.LoggingConfig{Level: "debug"},
			wantErr: false,
		},
		{
			name:    "invalid level",
			config:  &config.LoggingConfig{Level: "chatty"},
			wantErr: true,
		},
		{
			name: "rotating file output",
			config: &config.LoggingConfig{
				Level:      "info",
				File:       filepath.Join(t.TempDir(), "logs", "espadl.log"),
				MaxSize:    1,
				MaxBackups: 1,
				MaxAge:     1,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestFileOutputCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "espadl.log")

	l, err := New(&config.LoggingConfig{Level: "info", File: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file does not contain message: %s", data)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if level != tt.expected {
				t.Errorf("parseLogLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.WarnLevel)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Error("messages below warn level should be filtered")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message not found in output")
	}
	if !strings.Contains(output, "error message") {
		t.Error("Error message not found in output")
	}
	if !strings.Contains(output, `"app":"espadl"`) {
		t.Error("app field not found in output")
	}
}

func TestWithFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	base := logger.WithField("order_id", "espa-1")
	base.
		WithField("file", "LC08.tar.gz").
		WithFields(map[string]interface{}{
			"bytes":   int64(300),
			"skipped": false,
		}).
		Info("chained fields")

	output := buf.String()
	for _, want := range []string{
		"chained fields",
		`"order_id":"espa-1"`,
		`"file":"LC08.tar.gz"`,
		`"bytes":300`,
		`"skipped":false`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}

	// Derived loggers must not leak fields back into their parent
	buf.Reset()
	base.Info("parent only")
	if strings.Contains(buf.String(), "LC08.tar.gz") {
		t.Error("child field leaked into parent logger")
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}

	logger.WithError(errors.New("connection reset")).Error("transfer failed")

	output := buf.String()
	if !strings.Contains(output, "transfer failed") {
		t.Error("Message not found in output")
	}
	if !strings.Contains(output, "connection reset") {
		t.Error("Error message not found in output")
	}
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	logger.InfoWithFields("all types", map[string]interface{}{
		"string":   "test",
		"int":      123,
		"int64":    int64(456),
		"float":    3.5,
		"bool":     true,
		"time":     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		"duration": 5 * time.Second,
		"strings":  []string{"a", "b"},
		"custom":   struct{ Name string }{Name: "test"},
	})

	output := buf.String()
	for _, want := range []string{`"string":"test"`, `"int":123`, `"int64":456`, `"bool":true`, `"strings":["a","b"]`} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestGlobalLogger(t *testing.T) {
	if err := Initialize(&config.LoggingConfig{Level: "error"}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil")
	}

	// Just ensure the convenience functions don't panic
	Debug("debug message")
	Info("info message")
	Warn("warn message")
	WithField("key", "value").Info("with field")
	WithFields(map[string]interface{}{"k1": "v1"}).Info("with fields")
	WithError(errors.New("boom")).Debug("with error")
}

func TestLogTransfer(t *testing.T) {
	tl := NewTestLogger()

	LogTransfer(tl, "espa-1", "a.tar.gz", 100, false, nil)
	LogTransfer(tl, "espa-1", "b.tar.gz", 0, true, nil)
	LogTransfer(tl, "espa-1", "c.tar.gz", 10, false, errors.New("short read"))

	if !tl.HasMessage("Transfer completed") {
		t.Error("completed transfer not logged")
	}
	if len(tl.GetMessagesByLevel("DEBUG")) != 1 {
		t.Error("skipped transfer should log at debug level")
	}
	errs := tl.GetMessagesByLevel("ERROR")
	if len(errs) != 1 {
		t.Fatalf("expected 1 error message, got %d", len(errs))
	}
	if errs[0].Fields["file"] != "c.tar.gz" || errs[0].Error == nil {
		t.Errorf("error message missing context: %+v", errs[0])
	}
}

func TestLogRequest(t *testing.T) {
	tl := NewTestLogger()

	LogRequest(tl, "GET", "http://host/a", 200, time.Millisecond)
	LogRequest(tl, "GET", "http://host/b", 404, time.Millisecond)
	LogRequest(tl, "GET", "http://host/c", 503, time.Millisecond)

	if n := len(tl.GetMessagesByLevel("DEBUG")); n != 1 {
		t.Errorf("expected 1 debug message, got %d", n)
	}
	if n := len(tl.GetMessagesByLevel("WARN")); n != 1 {
		t.Errorf("expected 1 warn message, got %d", n)
	}
	if !tl.HasError() {
		t.Error("5xx should be logged as error")
	}

	tl.Clear()
	if len(tl.GetMessages()) != 0 {
		t.Error("Clear() did not remove messages")
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.WithField("a", 1).WithError(errors.New("x")).Error("ignored")
	l.InfoWithFields("ignored", nil)
}
