package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func bufLogger(buf *bytes.Buffer, level zerolog.Level) Logger {
	return Logger{base: zerolog.New(buf).Level(level), hasBase: true}
}

func TestLoggerWritesStructuredLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := bufLogger(&buf, zerolog.InfoLevel)
	log.Info("status updated", String("comp", "roster"), Int64("guild", -100))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line not JSON: %v (%q)", err, buf.String())
	}
	if line["message"] != "status updated" || line["comp"] != "roster" {
		t.Fatalf("line = %v", line)
	}
	if line["guild"] != float64(-100) {
		t.Fatalf("guild = %v", line["guild"])
	}
	if _, ok := line[zerolog.CallerFieldName]; !ok {
		t.Fatalf("caller missing: %v", line)
	}
}

func TestLoggerLevelGate(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := bufLogger(&buf, zerolog.WarnLevel)
	log.Debug("quiet")
	if buf.Len() != 0 {
		t.Fatalf("debug wrote below level: %q", buf.String())
	}
	log.Warn("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Fatalf("warn missing: %q", buf.String())
	}
}

func TestWithCarriesFixedFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := bufLogger(&buf, zerolog.InfoLevel).With(String("comp", "cron"))
	log.Info("tick")
	if !strings.Contains(buf.String(), `"comp":"cron"`) {
		t.Fatalf("fixed field missing: %q", buf.String())
	}
}

func TestNopNeverWrites(t *testing.T) {
	t.Parallel()
	log := Nop()
	log.Error("dropped", Err(nil))
	if log.IsZero() {
		t.Fatal("Nop logger should not be the zero value")
	}
}
