package handoff

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newLog(t *testing.T) (*Log, string) {
	t.Helper()
	root := t.TempDir()
	return NewLog(root), filepath.Join(root, "logs", "specialist-handoffs.jsonl")
}

func TestAppendAndReadAll(t *testing.T) {
	l, _ := newLog(t)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(l.Append(Event{ID: "h1", IssueID: "PAN-1", FromSpecialist: "review", ToSpecialist: "merge", Status: StatusQueued, Timestamp: time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)}))
	must(l.Append(Event{ID: "h2", IssueID: "PAN-2", FromSpecialist: "test", ToSpecialist: "review", Status: StatusQueued, Timestamp: time.Date(2026, 2, 10, 11, 0, 0, 0, time.UTC)}))

	all, err := l.ReadAll(0)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d events, want 2", len(all))
	}
	// Most recent first.
	if all[0].ID != "h2" || all[1].ID != "h1" {
		t.Errorf("order = %s, %s", all[0].ID, all[1].ID)
	}

	limited, err := l.ReadAll(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].ID != "h2" {
		t.Errorf("limited = %+v", limited)
	}
}

func TestAmendmentLatestWins(t *testing.T) {
	l, _ := newLog(t)
	base := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	if err := l.Append(Event{ID: "h1", IssueID: "PAN-1", FromSpecialist: "review", ToSpecialist: "merge", Status: StatusQueued, Priority: "high", Timestamp: base}); err != nil {
		t.Fatal(err)
	}
	// Amendment carries only id, status, and result.
	if err := l.Append(Event{ID: "h1", Status: StatusCompleted, Result: "merged", Timestamp: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	all, err := l.ReadAll(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("amended handoff should fold to one row, got %d", len(all))
	}
	got := all[0]
	if got.Status != StatusCompleted || got.Result != "merged" {
		t.Errorf("amendment lost: %+v", got)
	}
	// Fields absent from the amendment are inherited.
	if got.IssueID != "PAN-1" || got.FromSpecialist != "review" || got.Priority != "high" {
		t.Errorf("inherited fields lost: %+v", got)
	}
}

func TestReadByIssue(t *testing.T) {
	l, _ := newLog(t)
	for _, e := range []Event{
		{ID: "h1", IssueID: "PAN-1", Status: StatusQueued},
		{ID: "h2", IssueID: "PAN-2", Status: StatusQueued},
		{ID: "h3", IssueID: "PAN-1", Status: StatusCompleted},
	} {
		if err := l.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	got, err := l.ReadByIssue("PAN-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d events for PAN-1, want 2", len(got))
	}
}

func TestReadTodayUsesUTC(t *testing.T) {
	l, _ := newLog(t)
	now := time.Now().UTC()
	if err := l.Append(Event{ID: "today", IssueID: "PAN-1", Status: StatusQueued, Timestamp: now}); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(Event{ID: "old", IssueID: "PAN-2", Status: StatusQueued, Timestamp: now.Add(-48 * time.Hour)}); err != nil {
		t.Fatal(err)
	}
	got, err := l.ReadToday()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "today" {
		t.Errorf("today = %+v", got)
	}
}

func TestStats(t *testing.T) {
	l, _ := newLog(t)
	now := time.Now().UTC()
	for _, e := range []Event{
		{ID: "h1", FromSpecialist: "review", ToSpecialist: "merge", Status: StatusCompleted, Timestamp: now},
		{ID: "h2", FromSpecialist: "review", ToSpecialist: "merge", Status: StatusFailed, Timestamp: now},
		{ID: "h3", FromSpecialist: "test", ToSpecialist: "review", Status: StatusQueued, Timestamp: now},
		{ID: "h4", FromSpecialist: "plan", ToSpecialist: "review", Status: StatusProcessing, Timestamp: now},
	} {
		if err := l.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	s, err := l.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if s.TotalHandoffs != 4 || s.TodayCount != 4 {
		t.Errorf("totals = %d/%d", s.TotalHandoffs, s.TodayCount)
	}
	// queued/processing excluded from the success denominator.
	if s.SuccessRate != 0.5 {
		t.Errorf("successRate = %v, want 0.5", s.SuccessRate)
	}
	if s.QueueDepth != 2 {
		t.Errorf("queueDepth = %d, want 2", s.QueueDepth)
	}
	if tr := s.BySpecialist["review"]; tr.Sent != 2 || tr.Received != 2 {
		t.Errorf("review traffic = %+v", tr)
	}
	if s.ByStatus[StatusCompleted] != 1 || s.ByStatus[StatusQueued] != 1 {
		t.Errorf("byStatus = %v", s.ByStatus)
	}
}

func TestMalformedLineIsReadError(t *testing.T) {
	l, path := newLog(t)
	if err := l.Append(Event{ID: "h1", Status: StatusQueued}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("\n{truncated\n"); err != nil {
		t.Fatal(err)
	}
	f.Close() //nolint:errcheck // test write

	if _, err := l.ReadAll(0); err == nil {
		t.Error("malformed line must abort the reader")
	}
	if _, err := l.Stats(); err == nil {
		t.Error("stats over a corrupt log must error, not understate")
	}
}

func TestBlankLinesTolerated(t *testing.T) {
	l, path := newLog(t)
	if err := l.Append(Event{ID: "h1", Status: StatusQueued}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("\n\n"); err != nil {
		t.Fatal(err)
	}
	f.Close() //nolint:errcheck // test write

	all, err := l.ReadAll(0)
	if err != nil {
		t.Fatalf("blank lines should be tolerated: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("got %d events, want 1", len(all))
	}
}

func TestMissingFileReadsEmpty(t *testing.T) {
	l, _ := newLog(t)
	all, err := l.ReadAll(0)
	if err != nil || all != nil {
		t.Errorf("missing log = (%v, %v), want (nil, nil)", all, err)
	}
	s, err := l.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalHandoffs != 0 {
		t.Errorf("stats over missing log = %+v", s)
	}
}
