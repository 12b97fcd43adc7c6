// Package queue stores per-agent priority queues as one file per agent.
//
// Items live at hooks/<id>.json in priority order: a stable sort by
// (priority rank, insertion time). Writes are temp+rename under a
// best-effort advisory lock; on lock timeout the write proceeds and the
// last writer wins, which is acceptable at patrol cadence.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/steveyegge/panopticon/internal/fsys"
)

// Priorities, strongest first.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// priorityRank orders priorities; lower drains first. Unknown strings
// rank below low so malformed items never starve real work.
func priorityRank(p string) int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// ErrReorderMismatch is returned when a reorder's id multiset does not
// match the stored queue.
var ErrReorderMismatch = errors.New("reorder ids do not match queue contents")

// Item is one queued unit of work or message.
type Item struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "task" or "message"
	Priority  string    `json:"priority"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Payload   Payload   `json:"payload"`
}

// Payload carries the work context. Known fields are first-class;
// producers and consumers agree on Context bag keys case by case.
type Payload struct {
	IssueID   string            `json:"issueId"`
	Workspace string            `json:"workspace,omitempty"`
	Branch    string            `json:"branch,omitempty"`
	PRURL     string            `json:"prUrl,omitempty"`
	Notes     string            `json:"notes,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// CheckResult summarizes a queue without draining it.
type CheckResult struct {
	HasWork     bool   `json:"hasWork"`
	UrgentCount int    `json:"urgentCount"`
	Items       []Item `json:"items"`
}

// Store reads and writes per-agent queue files under a root directory.
type Store struct {
	fs   fsys.FS
	root string
}

// NewStore returns a Store rooted at the persistence root.
func NewStore(fs fsys.FS, root string) *Store {
	return &Store{fs: fs, root: root}
}

func (s *Store) path(agentID string) string {
	return filepath.Join(s.root, "hooks", agentID+".json")
}

// read returns the stored queue, empty when the file is absent or
// unparseable.
func (s *Store) read(agentID string) []Item {
	data, err := s.fs.ReadFile(s.path(agentID))
	if err != nil {
		return nil
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	return items
}

func (s *Store) write(agentID string, items []Item) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling queue for %s: %w", agentID, err)
	}
	return fsys.WriteFileAtomic(s.fs, s.path(agentID), data, 0o644)
}

// Submit inserts the item at the position that keeps the stored sequence
// a stable sort by (priority rank, insertion order). CreatedAt is filled
// if zero.
func (s *Store) Submit(agentID string, item Item) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	return fsys.WithFileLock(s.path(agentID), func() error {
		items := s.read(agentID)
		// Insert after the last item of equal or stronger priority.
		pos := len(items)
		for i, it := range items {
			if priorityRank(it.Priority) > priorityRank(item.Priority) {
				pos = i
				break
			}
		}
		items = append(items[:pos], append([]Item{item}, items[pos:]...)...)
		return s.write(agentID, items)
	})
}

// PeekNext returns the head of the queue without removing it, or
// (nil) when empty.
func (s *Store) PeekNext(agentID string) *Item {
	items := s.read(agentID)
	if len(items) == 0 {
		return nil
	}
	head := items[0]
	return &head
}

// Complete removes the item with the given id. Reports whether a
// removal occurred.
func (s *Store) Complete(agentID, itemID string) (bool, error) {
	removed := false
	err := fsys.WithFileLock(s.path(agentID), func() error {
		items := s.read(agentID)
		kept := items[:0]
		for _, it := range items {
			if it.ID == itemID && !removed {
				removed = true
				continue
			}
			kept = append(kept, it)
		}
		if !removed {
			return nil
		}
		return s.write(agentID, kept)
	})
	return removed, err
}

// Check summarizes the queue.
func (s *Store) Check(agentID string) CheckResult {
	items := s.read(agentID)
	res := CheckResult{HasWork: len(items) > 0, Items: items}
	for _, it := range items {
		if it.Priority == PriorityUrgent {
			res.UrgentCount++
		}
	}
	return res
}

// Reorder replaces the queue ordering with the supplied id sequence.
// When the id multiset does not exactly match the stored queue, nothing
// changes and ErrReorderMismatch is returned.
func (s *Store) Reorder(agentID string, idsInNewOrder []string) error {
	return fsys.WithFileLock(s.path(agentID), func() error {
		items := s.read(agentID)
		if len(items) != len(idsInNewOrder) {
			return ErrReorderMismatch
		}
		byID := make(map[string][]Item, len(items))
		for _, it := range items {
			byID[it.ID] = append(byID[it.ID], it)
		}
		reordered := make([]Item, 0, len(items))
		for _, id := range idsInNewOrder {
			bucket := byID[id]
			if len(bucket) == 0 {
				return ErrReorderMismatch
			}
			reordered = append(reordered, bucket[0])
			byID[id] = bucket[1:]
		}
		return s.write(agentID, reordered)
	})
}
