package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
)

func TestDateRange(t *testing.T) {
	now := time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC)

	start, end, err := dateRange("", "", now)
	if err != nil {
		t.Fatal(err)
	}
	if !end.Equal(now) || !start.Equal(now.AddDate(0, 0, -7)) {
		t.Errorf("default range = %v..%v", start, end)
	}

	start, end, err = dateRange("2025-02-01", "2025-02-10", now)
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	// a bare end date covers the whole day
	if end.Before(time.Date(2025, 2, 10, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("end = %v", end)
	}

	if _, _, err := dateRange("2025-02-10", "2025-02-01", now); err == nil {
		t.Error("expected inverted range error")
	}
	if _, _, err := dateRange("last week", "", now); err == nil {
		t.Error("expected parse error")
	}
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	err := printResults(&buf, []model.AgentResult{
		{Agent: "gao-reports", Status: model.StatusSuccess, FetchedCount: 3, ProcessedCount: 2, RejectedCount: 1},
		{Agent: "congress", Status: model.StatusError, Errors: []string{"unexpected status: 503 Service Unavailable"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"AGENT", "gao-reports", "SUCCESS", "✗ congress: unexpected status: 503"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if n := failedAgents([]model.AgentResult{{Status: model.StatusError}, {Status: model.StatusNoData}}); n != 1 {
		t.Errorf("failedAgents = %d", n)
	}
}

func TestSignalsListCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"--config", "/nonexistent/config.yaml", "--store", "memory", "--json", "signals", "list"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		jsonOutput = false
		storeDriver = ""
		cfgFile = ""
	})

	if err := Execute(); err != nil {
		t.Fatal(err)
	}
	var signals []model.EscalationSignal
	if err := json.Unmarshal(buf.Bytes(), &signals); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}
	if len(signals) == 0 {
		t.Error("expected the default signal library")
	}
}
