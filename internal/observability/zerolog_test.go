package observability

import (
	"bytes"
	"strings"
	"testing"
)

func TestZerologLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, "debug")

	logger.Info("route settled", Field{Key: "execution_id", Value: "abc"}, Field{Key: "hops", Value: 3})

	line := buf.String()
	for _, want := range []string{`"message":"route settled"`, `"execution_id":"abc"`, `"hops":3`, `"level":"info"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %s", line, want)
		}
	}
}

func TestZerologLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, "error")

	logger.Debug("noisy")
	logger.Info("ignored")
	logger.Warn("also ignored")
	if buf.Len() != 0 {
		t.Fatalf("expected debug/info/warn suppressed at error level, got %q", buf.String())
	}
	logger.Error("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("error line missing: %q", buf.String())
	}
}

func TestZerologLoggerWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, "warn")

	logger.Info("below threshold")
	if buf.Len() != 0 {
		t.Fatalf("expected info suppressed at warn level, got %q", buf.String())
	}
	logger.Warn("queue saturated", Field{Key: "pool", Value: "execute"})
	line := buf.String()
	for _, want := range []string{`"level":"warn"`, `"message":"queue saturated"`, `"pool":"execute"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %s", line, want)
		}
	}
}

func TestSetLoggerNilRestoresNoop(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewZerologLogger(&buf, "info"))
	t.Cleanup(func() { SetLogger(nil) })

	Log().Info("visible")
	if buf.Len() == 0 {
		t.Fatal("expected global logger to write")
	}

	SetLogger(nil)
	before := buf.Len()
	Log().Info("dropped")
	if buf.Len() != before {
		t.Fatal("noop logger must not write")
	}
}
