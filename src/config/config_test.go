package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"region-ocr/src/enhance"
)

func TestLoad(t *testing.T) {
	t.Setenv("OCR_ENDPOINT", "http://ocr.test/api/ocr/enhanced")
	t.Setenv("OCR_API_KEY", "test_api_key")
	t.Setenv("ENABLE_FILE_LOGGING", "true")
	t.Setenv("HOTKEY", "Ctrl+Shift+T")
	t.Setenv("DEFAULT_MODE", "contrast-stretch")
	t.Setenv("OCR_DEADLINE_SEC", "5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NOTIFY_INTERVAL_MS", "500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Endpoint != "http://ocr.test/api/ocr/enhanced" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.APIKey != "test_api_key" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if !cfg.EnableFileLogging {
		t.Error("EnableFileLogging should be true")
	}
	if cfg.Hotkey != "Ctrl+Shift+T" {
		t.Errorf("Hotkey = %q", cfg.Hotkey)
	}
	if cfg.DefaultMode != enhance.ModeContrastStretch {
		t.Errorf("DefaultMode = %q", cfg.DefaultMode)
	}
	if cfg.Deadline() != 5*time.Second {
		t.Errorf("Deadline = %v", cfg.Deadline())
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.NotifyInterval != 500*time.Millisecond {
		t.Errorf("NotifyInterval = %v", cfg.NotifyInterval)
	}
}

func TestDefaults(t *testing.T) {
	for _, k := range []string{"OCR_ENDPOINT", "DEFAULT_MODE", "OCR_DEADLINE_SEC", "MIN_SELECTION", "HISTORY_LIMIT", "OCR_LANGUAGE"} {
		t.Setenv(k, "")
	}
	t.Setenv("OCR_DEADLINE_SEC", "-3")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != DefaultEndpoint || cfg.Language != "eng" {
		t.Errorf("endpoint/language = %q/%q", cfg.Endpoint, cfg.Language)
	}
	if cfg.DefaultMode != enhance.ModeGrayscaleThreshold {
		t.Errorf("DefaultMode = %q", cfg.DefaultMode)
	}
	if cfg.OCRDeadlineSec != 20 || cfg.MinSelection != 10 || cfg.HistoryLimit != 20 {
		t.Errorf("deadline=%d min=%v limit=%d", cfg.OCRDeadlineSec, cfg.MinSelection, cfg.HistoryLimit)
	}
}

func TestAPIKeyFileTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	if err := os.WriteFile(keyFile, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(APIKeyEnvVar, "from-env")
	t.Setenv(APIKeyPathEnvVar, "")

	cfg, err := LoadWithOptions(LoadOptions{APIKeyPathOverride: keyFile})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "from-file" {
		t.Errorf("APIKey = %q, want from-file", cfg.APIKey)
	}

	cfg, _ = LoadWithOptions(LoadOptions{APIKeyPathOverride: filepath.Join(dir, "missing")})
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env fallback", cfg.APIKey)
	}
}

func TestDotenvOverride(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	content := "OCR_LANGUAGE=deu\nHISTORY_LIMIT=7\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv.Load never overrides variables that are already set.
	t.Setenv("OCR_LANGUAGE", "")
	os.Unsetenv("OCR_LANGUAGE")
	t.Setenv("HISTORY_LIMIT", "")
	os.Unsetenv("HISTORY_LIMIT")

	cfg, err := LoadWithOptions(LoadOptions{EnvPathOverride: envFile})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Language != "deu" || cfg.HistoryLimit != 7 {
		t.Errorf("language=%q limit=%d", cfg.Language, cfg.HistoryLimit)
	}
}

func TestDefaultModeOverride(t *testing.T) {
	cfg, err := LoadWithOptions(LoadOptions{DefaultModeOverride: "local_threshold"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultMode != enhance.ModeLocalThreshold {
		t.Errorf("DefaultMode = %q", cfg.DefaultMode)
	}
	if _, err := LoadWithOptions(LoadOptions{DefaultModeOverride: "sepia"}); err == nil {
		t.Error("unknown override should fail")
	}
}
