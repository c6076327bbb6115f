package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected zerolog.Level
	}{
		{name: "debug", level: LevelDebug, expected: zerolog.DebugLevel},
		{name: "info", level: LevelInfo, expected: zerolog.InfoLevel},
		{name: "warn", level: LevelWarn, expected: zerolog.WarnLevel},
		{name: "warning alias", level: LogLevel("warning"), expected: zerolog.WarnLevel},
		{name: "error", level: LevelError, expected: zerolog.ErrorLevel},
		{name: "mixed case", level: LogLevel("DEBUG"), expected: zerolog.DebugLevel},
		{name: "unknown defaults to info", level: LogLevel("bogus"), expected: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLevel(tt.level); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := Setup(Config{
		Level:  LevelInfo,
		Output: &buf,
	})
	defer closeFn()

	logger.Info().Str("key", "value").Msg("test message")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if entry["message"] != "test message" {
		t.Errorf("message = %v, want %q", entry["message"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Log entry missing timestamp")
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := Setup(Config{
		Level:  LevelWarn,
		Output: &buf,
	})
	defer closeFn()

	logger.Info().Msg("should be filtered")
	logger.Warn().Msg("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Error("Info message logged despite warn level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("Warn message missing")
	}
}

func TestSetup_FileTee(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "collection.log")

	var buf bytes.Buffer
	logger, closeFn := Setup(Config{
		Level:    LevelInfo,
		Output:   &buf,
		FilePath: logPath,
	})

	logger.Info().Msg("teed message")

	if err := closeFn(); err != nil {
		t.Fatalf("closeFn() error = %v", err)
	}

	if !strings.Contains(buf.String(), "teed message") {
		t.Error("Console output missing teed message")
	}

	fileData, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Read log file: %v", err)
	}
	if !strings.Contains(string(fileData), "teed message") {
		t.Error("Log file missing teed message")
	}
}

func TestSetup_BadFilePathFallsBack(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := Setup(Config{
		Level:    LevelInfo,
		Output:   &buf,
		FilePath: filepath.Join(t.TempDir(), "missing", "nested", "collection.log"),
	})
	defer closeFn()

	logger.Info().Msg("still logging")

	if !strings.Contains(buf.String(), "still logging") {
		t.Error("Console logging broken after file open failure")
	}
}

func TestNewLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	_, closeFn := Setup(Config{Level: LevelInfo, Output: &buf})
	defer closeFn()

	logger := NewLogger("fetcher")
	logger.Info().Msg("component test")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if entry["component"] != "fetcher" {
		t.Errorf("component = %v, want %q", entry["component"], "fetcher")
	}
}
