// Package handoff keeps the append-only JSONL log of inter-specialist
// handoffs.
//
// The log lives at logs/specialist-handoffs.jsonl. Appends use O_APPEND
// with newline framing. Readers tolerate blank lines but treat any
// malformed line as a read error, so stats are never silently
// understated. Later rows with the same id amend earlier ones; queries
// see the amended view.
package handoff

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Handoff status values.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Event is one handoff log line.
type Event struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	IssueID        string            `json:"issueId"`
	FromSpecialist string            `json:"fromSpecialist"`
	ToSpecialist   string            `json:"toSpecialist"`
	Status         string            `json:"status"`
	Result         string            `json:"result,omitempty"`
	Priority       string            `json:"priority,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
}

// Stats is the aggregate view produced by [Log.Stats].
type Stats struct {
	TotalHandoffs int                          `json:"totalHandoffs"`
	TodayCount    int                          `json:"todayCount"`
	SuccessRate   float64                      `json:"successRate"`
	QueueDepth    int                          `json:"queueDepth"`
	BySpecialist  map[string]SpecialistTraffic `json:"bySpecialist"`
	ByStatus      map[string]int               `json:"byStatus"`
}

// SpecialistTraffic counts handoffs sent from and received by one
// specialist.
type SpecialistTraffic struct {
	Sent     int `json:"sent"`
	Received int `json:"received"`
}

// Log appends to and queries the handoff log file.
type Log struct {
	mu   sync.Mutex
	path string
}

// NewLog returns a Log at <root>/logs/specialist-handoffs.jsonl.
func NewLog(root string) *Log {
	return &Log{path: filepath.Join(root, "logs", "specialist-handoffs.jsonl")}
}

// Append writes one event line. Timestamp is filled if zero.
func (l *Log) Append(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating handoff log directory: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling handoff: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening handoff log: %w", err)
	}
	defer f.Close() //nolint:errcheck // write error captured below
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending handoff: %w", err)
	}
	return nil
}

// readRaw scans every line in append order. Blank lines are skipped;
// a malformed line aborts with an error.
func (l *Log) readRaw() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading handoff log: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	var out []Event
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("handoff log line %d: %w", lineNo, err)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning handoff log: %w", err)
	}
	return out, nil
}

// fold collapses amendments: for each id the latest row wins, with
// empty fields inherited from the earlier row. Returned events keep
// first-appearance order.
func fold(raw []Event) []Event {
	byID := make(map[string]int)
	var out []Event
	for _, e := range raw {
		i, seen := byID[e.ID]
		if !seen {
			byID[e.ID] = len(out)
			out = append(out, e)
			continue
		}
		prev := out[i]
		if e.Timestamp.IsZero() {
			e.Timestamp = prev.Timestamp
		}
		if e.IssueID == "" {
			e.IssueID = prev.IssueID
		}
		if e.FromSpecialist == "" {
			e.FromSpecialist = prev.FromSpecialist
		}
		if e.ToSpecialist == "" {
			e.ToSpecialist = prev.ToSpecialist
		}
		if e.Status == "" {
			e.Status = prev.Status
		}
		if e.Result == "" {
			e.Result = prev.Result
		}
		if e.Priority == "" {
			e.Priority = prev.Priority
		}
		if e.Context == nil {
			e.Context = prev.Context
		}
		out[i] = e
	}
	return out
}

// ReadAll returns the folded handoffs, most recent first. limit <= 0
// means no limit.
func (l *Log) ReadAll(limit int) ([]Event, error) {
	raw, err := l.readRaw()
	if err != nil {
		return nil, err
	}
	events := fold(raw)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// ReadByIssue returns the folded handoffs for one issue, most recent
// first.
func (l *Log) ReadByIssue(issueID string) ([]Event, error) {
	all, err := l.ReadAll(0)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range all {
		if e.IssueID == issueID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ReadToday returns the folded handoffs stamped on the current UTC
// calendar day.
func (l *Log) ReadToday() ([]Event, error) {
	return l.readOnDay(time.Now().UTC())
}

func (l *Log) readOnDay(now time.Time) ([]Event, error) {
	all, err := l.ReadAll(0)
	if err != nil {
		return nil, err
	}
	y, m, d := now.UTC().Date()
	var out []Event
	for _, e := range all {
		ey, em, ed := e.Timestamp.UTC().Date()
		if ey == y && em == m && ed == d {
			out = append(out, e)
		}
	}
	return out, nil
}

// Stats aggregates the folded log. Success rate counts only terminal
// rows: completed / (completed + failed); queued and processing rows
// are excluded from the denominator.
func (l *Log) Stats() (Stats, error) {
	all, err := l.ReadAll(0)
	if err != nil {
		return Stats{}, err
	}
	today, err := l.readOnDay(time.Now().UTC())
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		TotalHandoffs: len(all),
		TodayCount:    len(today),
		BySpecialist:  make(map[string]SpecialistTraffic),
		ByStatus:      make(map[string]int),
	}
	var completed, failed int
	for _, e := range all {
		s.ByStatus[e.Status]++
		switch e.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		case StatusQueued, StatusProcessing:
			s.QueueDepth++
		}
		if e.FromSpecialist != "" {
			t := s.BySpecialist[e.FromSpecialist]
			t.Sent++
			s.BySpecialist[e.FromSpecialist] = t
		}
		if e.ToSpecialist != "" {
			t := s.BySpecialist[e.ToSpecialist]
			t.Received++
			s.BySpecialist[e.ToSpecialist] = t
		}
	}
	if completed+failed > 0 {
		s.SuccessRate = float64(completed) / float64(completed+failed)
	}
	return s, nil
}
