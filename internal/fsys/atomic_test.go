package fsys

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	fake := NewFake()
	err := WriteFileAtomic(fake, "/work/agents/alice/state.json", []byte(`{"id":"alice"}`), 0o644)
	if err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	if got := string(fake.Files["/work/agents/alice/state.json"]); got != `{"id":"alice"}` {
		t.Errorf("final content = %q", got)
	}
	if _, ok := fake.Files["/work/agents/alice/state.json.tmp"]; ok {
		t.Error("temp file should not survive a successful write")
	}

	// The write must go through temp then rename, never direct.
	var sawTmpWrite, sawRename bool
	for _, c := range fake.Calls {
		if c.Method == "WriteFile" && c.Path == "/work/agents/alice/state.json.tmp" {
			sawTmpWrite = true
		}
		if c.Method == "WriteFile" && c.Path == "/work/agents/alice/state.json" {
			t.Error("data written directly to target path")
		}
		if c.Method == "Rename" {
			sawRename = true
		}
	}
	if !sawTmpWrite || !sawRename {
		t.Errorf("expected temp write then rename, calls: %+v", fake.Calls)
	}
}

func TestWriteFileAtomicTempWriteFailure(t *testing.T) {
	fake := NewFake()
	fake.Files["/work/x.json"] = []byte("old")
	boom := errors.New("disk full")
	fake.Errors["/work/x.json.tmp"] = boom

	err := WriteFileAtomic(fake, "/work/x.json", []byte("new"), 0o644)
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if got := string(fake.Files["/work/x.json"]); got != "old" {
		t.Errorf("target must be untouched after failed write, got %q", got)
	}
}

func TestWithFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	ran := false
	err := WithFileLock(path, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithFileLock failed: %v", err)
	}
	if !ran {
		t.Error("fn did not run")
	}
}

func TestWithFileLockPropagatesFnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	boom := errors.New("write failed")
	if err := WithFileLock(path, func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("got %v, want fn error", err)
	}
}

func TestFakeRemoveAll(t *testing.T) {
	fake := NewFake()
	fake.Dirs["/work/agents/alice"] = true
	fake.Files["/work/agents/alice/state.json"] = []byte("{}")
	fake.Files["/work/agents/bob/state.json"] = []byte("{}")

	if err := fake.RemoveAll("/work/agents/alice"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if _, ok := fake.Files["/work/agents/alice/state.json"]; ok {
		t.Error("child file should be gone")
	}
	if _, ok := fake.Files["/work/agents/bob/state.json"]; !ok {
		t.Error("sibling file should survive")
	}
	// Removing a missing path is a no-op.
	if err := fake.RemoveAll("/work/agents/ghost"); err != nil {
		t.Errorf("RemoveAll on missing path: %v", err)
	}
}
