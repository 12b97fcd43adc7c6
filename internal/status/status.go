// Package status reads and heals the shared review-status file.
//
// review-status.json maps issue id to the review, test, and merge state
// written by specialists. The supervisor's only mutation is orphan
// healing: downgrading an in-flight status back to pending when the
// owning specialist is not active. Writes are temp+rename under the
// advisory lock discipline shared with the queue store.
package status

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/steveyegge/panopticon/internal/fsys"
)

// Status values shared by the review and test pipelines.
const (
	Pending   = "pending"
	Reviewing = "reviewing"
	Testing   = "testing"
	Passed    = "passed"
	Failed    = "failed"
	Merging   = "merging"
	Merged    = "merged"
)

// Row is one issue's pipeline state.
type Row struct {
	ReviewStatus  string `json:"reviewStatus,omitempty"`
	TestStatus    string `json:"testStatus,omitempty"`
	MergeStatus   string `json:"mergeStatus,omitempty"`
	ReadyForMerge bool   `json:"readyForMerge,omitempty"`
}

// File reads and writes review-status.json under a root directory.
type File struct {
	fs   fsys.FS
	root string
}

// NewFile returns a File rooted at the persistence root.
func NewFile(fs fsys.FS, root string) *File {
	return &File{fs: fs, root: root}
}

func (f *File) path() string {
	return filepath.Join(f.root, "review-status.json")
}

// Load returns the status map, empty when the file is absent or
// unparseable.
func (f *File) Load() map[string]Row {
	data, err := f.fs.ReadFile(f.path())
	if err != nil {
		return map[string]Row{}
	}
	var rows map[string]Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return map[string]Row{}
	}
	if rows == nil {
		rows = map[string]Row{}
	}
	return rows
}

// Save replaces the status map atomically under the advisory lock.
func (f *File) Save(rows map[string]Row) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling review status: %w", err)
	}
	return fsys.WithFileLock(f.path(), func() error {
		return fsys.WriteFileAtomic(f.fs, f.path(), data, 0o644)
	})
}

// Heal is one orphan correction applied by HealOrphans.
type Heal struct {
	IssueID string
	Field   string // "reviewStatus" or "testStatus"
}

// HealOrphans downgrades reviewing to pending when the review
// specialist is not active, and testing to pending when the test
// specialist is not active. isActive reports whether the named
// specialist's runtime state is active. The file is written only when
// something changed, so repeated application is a no-op.
func (f *File) HealOrphans(isActive func(specialist string) bool) ([]Heal, error) {
	rows := f.Load()
	var heals []Heal
	for issue, row := range rows {
		if row.ReviewStatus == Reviewing && !isActive("review") {
			row.ReviewStatus = Pending
			heals = append(heals, Heal{IssueID: issue, Field: "reviewStatus"})
		}
		if row.TestStatus == Testing && !isActive("test") {
			row.TestStatus = Pending
			heals = append(heals, Heal{IssueID: issue, Field: "testStatus"})
		}
		rows[issue] = row
	}
	if len(heals) == 0 {
		return nil, nil
	}
	sort.Slice(heals, func(i, j int) bool {
		if heals[i].IssueID != heals[j].IssueID {
			return heals[i].IssueID < heals[j].IssueID
		}
		return heals[i].Field < heals[j].Field
	})
	if err := f.Save(rows); err != nil {
		return nil, err
	}
	return heals, nil
}

// InReviewPipeline reports whether the issue has been handed off to the
// review pipeline: any review or test status recorded, or the row is
// flagged ready for merge. Used to gate lazy-behavior nudges.
func (f *File) InReviewPipeline(issueID string) bool {
	row, ok := f.Load()[issueID]
	if !ok {
		return false
	}
	return row.ReviewStatus != "" || row.TestStatus != "" || row.MergeStatus != "" || row.ReadyForMerge
}
