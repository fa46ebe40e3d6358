package monitoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "log", "default.log")

	cfg := &LogConfig{
		Level:      "info",
		Format:     "json",
		Output:     "file",
		FilePath:   logPath,
		MaxSizeMB:  10,
		MaxBackups: 2,
		MaxAgeDays: 7,
		Compress:   false,
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("test message", zap.String("key", "value"))
	logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Log file was not created: %v", err)
	}
	if !strings.Contains(string(data), `"key":"value"`) {
		t.Errorf("Log file missing structured field: %s", data)
	}
}

func TestNewLoggerConsole(t *testing.T) {
	cfg := &LogConfig{
		Level:  "debug",
		Format: "console",
		Output: "console",
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create console logger: %v", err)
	}
	defer logger.Sync()

	logger.Debug("debug message")
	logger.Info("info message")
}

func TestNewLoggerBothOutputs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	cfg := &LogConfig{
		Level:    "info",
		Format:   "console",
		Output:   "both",
		FilePath: logPath,
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("test message to both outputs")
	logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Log file was not created: %v", err)
	}
	if strings.Contains(string(data), "\x1b[") {
		t.Error("File output should not contain color escapes")
	}
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig("/srv/ytm")

	if cfg.FilePath != filepath.Join("/srv/ytm", "log", "default.log") {
		t.Errorf("FilePath = %s", cfg.FilePath)
	}
	if cfg.Output != "both" {
		t.Errorf("Output = %s, want both", cfg.Output)
	}
}

func TestNewLoggerInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  LogConfig
	}{
		{"invalid level", LogConfig{Level: "invalid", Format: "json", Output: "console"}},
		{"invalid format", LogConfig{Level: "info", Format: "xml", Output: "console"}},
		{"invalid output", LogConfig{Level: "info", Format: "json", Output: "syslog"}},
		{"file without path", LogConfig{Level: "info", Format: "json", Output: "file"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if _, err := NewLogger(&cfg); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestWithRunAndOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	logger := zap.NewExample()
	if OrNop(logger) != logger {
		t.Error("OrNop should return the given logger")
	}
	WithRun(logger, "run-1").Info("tagged")
}
