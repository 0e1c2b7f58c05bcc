package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stadiumhq/pkg/config"
)

func TestInit(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	// Leftover from a previous run gets rotated
	if err := os.WriteFile(serverLog, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server: config.LogSettings{
			Path:  serverLog,
			Level: "DEBUG",
		},
		Requests: config.LogSettings{
			Path:  requestLog,
			Level: "INFO",
		},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	slog.Debug("debug line", "title", "Anfield")
	RequestLogger.Info("GET", "url", "https://example.org")
	cleanup()

	content, err := os.ReadFile(serverLog)
	if err != nil {
		t.Fatalf("Server log file not created: %v", err)
	}
	if !strings.Contains(string(content), "title=Anfield") {
		t.Errorf("server log missing debug record: %s", content)
	}
	if strings.Contains(string(content), "previous run") {
		t.Error("server log was not rotated")
	}
	if _, err := os.Stat(serverLog + ".old"); err != nil {
		t.Errorf("rotated file missing: %v", err)
	}

	reqContent, err := os.ReadFile(requestLog)
	if err != nil {
		t.Fatalf("Request log file not created: %v", err)
	}
	if !strings.Contains(string(reqContent), "url=https://example.org") {
		t.Errorf("request log missing record: %s", reqContent)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
