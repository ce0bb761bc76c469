package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ppiankov/signalwatch/internal/correlate"
	"github.com/ppiankov/signalwatch/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printResults(w io.Writer, results []model.AgentResult) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "AGENT\tSTATUS\tFETCHED\tPROCESSED\tESCALATED\tREJECTED\tDUPLICATES")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			r.Agent, r.Status, r.FetchedCount, r.ProcessedCount, r.EscalationCount, r.RejectedCount, r.DuplicateCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, r := range results {
		for _, e := range r.Errors {
			fmt.Fprintf(w, "✗ %s: %s\n", r.Agent, e)
		}
	}
	return nil
}

func printCorrelation(w io.Writer, s correlate.Summary) {
	fmt.Fprintf(w, "Correlation: %d rule(s), %d signal(s) derived, %d new\n", s.Rules, s.Found, len(s.Created))
	for _, sig := range s.Created {
		fmt.Fprintf(w, "  ⚠️  [%s] %.2f %s\n", sig.RuleID, sig.Severity, sig.Narrative)
	}
}

func printCompounds(w io.Writer, signals []model.CompoundSignal) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tRULE\tSEVERITY\tMEMBERS\tTOPICS\tCREATED\tRESOLVED")
	for _, s := range signals {
		resolved := "-"
		if s.ResolvedAt != nil {
			resolved = s.ResolvedAt.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\t%s\t%s\n",
			s.ID, s.RuleID, s.Severity, len(s.Members), strings.Join(s.Topics, ","), s.CreatedAt.Format(time.DateOnly), resolved)
	}
	return tw.Flush()
}

func failedAgents(results []model.AgentResult) int {
	n := 0
	for _, r := range results {
		if r.Status == model.StatusError {
			n++
		}
	}
	return n
}

// parseDate accepts a date or an RFC 3339 timestamp
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC 3339)", s)
	}
	return t.UTC(), nil
}

// dateRange resolves --from/--to, defaulting to the trailing week. A bare
// --to date covers the whole day.
func dateRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC()
	if to != "" {
		t, err := parseDate(to)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
		if len(to) == len(time.DateOnly) {
			end = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	start := end.AddDate(0, 0, -7)
	if from != "" {
		t, err := parseDate(from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return start, end, nil
}
