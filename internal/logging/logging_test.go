package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "debug", "JSON")
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level: %v", l.GetLevel())
	}
	l.WithField("component", "world").Debug("tick")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if rec["component"] != "world" || rec["msg"] != "tick" {
		t.Fatalf("record: %v", rec)
	}
}

func TestNewLoggerDefaults(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "loud", "")
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("bad level must fall back to info, got %v", l.GetLevel())
	}
	l.Debug("hidden")
	l.Info("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("output: %q", out)
	}
}
