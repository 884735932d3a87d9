package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// logToFile builds a file-backed logger, runs fn against it and
// returns what was written.
func logToFile(t *testing.T, format string, fn func(log *Logger)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.log")

	log, err := New("debug", format, path)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	fn(log)
	log.Sync()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestLevelAliases(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "warning", "error", "ERROR"} {
		if _, err := New(lvl, "text", "stderr"); err != nil {
			t.Errorf("level %q rejected: %v", lvl, err)
		}
	}
}

func TestUnknownLevelRejected(t *testing.T) {
	if _, err := New("loud", "text", "stderr"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestTextOutputCarriesKeyValues(t *testing.T) {
	out := logToFile(t, "text", func(log *Logger) {
		log.Info("page written", "page_id", 7)
	})
	if !strings.Contains(out, "page written") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "page_id") {
		t.Errorf("output missing key: %q", out)
	}
}

func TestJSONOutputHasFields(t *testing.T) {
	out := logToFile(t, "json", func(log *Logger) {
		log.Info("recovery complete", "records_applied", 3)
	})
	for _, want := range []string{`"msg"`, `"timestamp"`, `"records_applied"`} {
		if !strings.Contains(out, want) {
			t.Errorf("json output missing %s: %q", want, out)
		}
	}
}

func TestNamedSubsystemAppearsInOutput(t *testing.T) {
	out := logToFile(t, "json", func(log *Logger) {
		log.Named("wal").Named("recovery").Info("redo started")
	})
	if !strings.Contains(out, "wal.recovery") {
		t.Errorf("expected dotted subsystem name in output: %q", out)
	}
}

func TestWithAttachesContext(t *testing.T) {
	out := logToFile(t, "json", func(log *Logger) {
		log.With("cache_id", 2).Error("format mismatch")
	})
	if !strings.Contains(out, "cache_id") {
		t.Errorf("expected attached field in output: %q", out)
	}
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	log, err := New("error", "text", path)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Debug("purge candidate skipped")
	log.Info("purge finished")
	log.Sync()

	content, _ := os.ReadFile(path)
	if strings.Contains(string(content), "purge") {
		t.Errorf("messages below error level leaked: %q", content)
	}
}

func TestNopLoggerIsSilentAndSafe(t *testing.T) {
	log := NewNop()
	log.Debug("a")
	log.Info("b", "k", "v")
	log.Warn("c")
	log.Error("d")
	if err := log.Sync(); err != nil {
		t.Errorf("sync: %v", err)
	}

	// Derived loggers must stay usable too.
	log.Named("tree").With("key", "k").Info("e")
}
