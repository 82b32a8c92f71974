package telemetry

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestReporterFlushesOnClose(t *testing.T) {
	var buf strings.Builder
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)

	r := NewReporter(log)
	r.Report("round started", logrus.Fields{"generation": 1})
	r.Report("venue result", logrus.Fields{"venue": "oneinch"})
	r.Close()

	out := buf.String()
	if !strings.Contains(out, "round started") {
		t.Fatalf("round event not flushed: %q", out)
	}
	if !strings.Contains(out, "venue result") {
		t.Fatalf("venue event not flushed: %q", out)
	}
}

func TestReporterReportAfterCloseIsNoop(t *testing.T) {
	r := NewReporter(NewSilentLogger())
	r.Close()
	r.Report("late event", nil)
	r.Close()
}

func TestNilReporterIsSafe(t *testing.T) {
	var r *Reporter
	r.Report("ignored", logrus.Fields{"k": "v"})
	r.Close()
}
