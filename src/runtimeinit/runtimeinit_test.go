package runtimeinit

import (
	"os"
	"path/filepath"
	"testing"

	"region-ocr/src/config"
	"region-ocr/src/enhance"
)

func TestBootstrap(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HISTORY_DB", filepath.Join(dir, "history.db"))
	t.Setenv("OCR_ENDPOINT", "http://127.0.0.1:1/api/ocr/enhanced")
	t.Setenv("ENABLE_FILE_LOGGING", "false")

	rt, err := Bootstrap(Options{LoadOptions: config.LoadOptions{DefaultModeOverride: "contrastStretch"}})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer rt.Close()

	if rt.Config.DefaultMode != enhance.ModeContrastStretch {
		t.Errorf("mode = %q", rt.Config.DefaultMode)
	}
	if rt.History == nil || rt.Transcriber == nil || rt.Enhancer == nil || rt.Notifier == nil {
		t.Fatalf("missing services: %+v", rt)
	}
	if _, err := os.Stat(filepath.Join(dir, "history.db")); err != nil {
		t.Errorf("history database not created: %v", err)
	}
}

func TestBootstrapRejectsBadMode(t *testing.T) {
	if _, err := Bootstrap(Options{NoHistory: true, LoadOptions: config.LoadOptions{DefaultModeOverride: "sepia"}}); err == nil {
		t.Error("unknown mode override should fail")
	}
}

func TestBootstrapProfiles(t *testing.T) {
	t.Setenv("ENHANCE_PROFILES", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Bootstrap(Options{NoHistory: true}); err == nil {
		t.Error("missing profiles file should fail")
	}
}
