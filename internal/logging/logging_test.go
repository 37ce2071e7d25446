package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger_CreatesDirAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	log, err := NewLogger(dir, "debug")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("test_message_from_logging_test")
	_ = log.Sync()

	if _, err := os.Stat(filepath.Join(dir, "edgeprobe.log")); err != nil {
		t.Fatalf("log file missing: %v", err)
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, err := NewLogger(t.TempDir(), "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
