package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
)

// resetInstruments resets the sync.Once so initInstruments re-runs against
// the current (noop) global MeterProvider during tests.
func resetInstruments(t *testing.T) {
	t.Helper()
	instOnce = sync.Once{}
	t.Cleanup(func() { instOnce = sync.Once{} })
}

// --- helper functions ---

func TestStatusStr(t *testing.T) {
	if got := statusStr(nil); got != "ok" {
		t.Errorf("statusStr(nil) = %q, want \"ok\"", got)
	}
	if got := statusStr(errors.New("boom")); got != "error" {
		t.Errorf("statusStr(err) = %q, want \"error\"", got)
	}
}

func TestTruncateOutput(t *testing.T) {
	if got := truncateOutput("hello", 10); got != "hello" {
		t.Errorf("short string should not be truncated, got %q", got)
	}
	if got := truncateOutput("abcde", 5); got != "abcde" {
		t.Errorf("string at exact limit should not be truncated, got %q", got)
	}
	if got := truncateOutput("abcdefghij", 5); got != "abcde…" {
		t.Errorf("truncateOutput = %q, want %q", got, "abcde…")
	}
	if got := truncateOutput("", 10); got != "" {
		t.Errorf("empty string changed: %q", got)
	}
}

func TestSeverity(t *testing.T) {
	if got := severity(nil); got != otellog.SeverityInfo {
		t.Errorf("severity(nil) = %v, want SeverityInfo", got)
	}
	if got := severity(errors.New("err")); got != otellog.SeverityError {
		t.Errorf("severity(err) = %v, want SeverityError", got)
	}
}

func TestErrKV(t *testing.T) {
	if kv := errKV(nil); kv.Value.AsString() != "" {
		t.Errorf("errKV(nil) value = %q, want empty", kv.Value.AsString())
	}
	if kv := errKV(errors.New("test error")); kv.Value.AsString() != "test error" {
		t.Errorf("errKV(err) value = %q, want %q", kv.Value.AsString(), "test error")
	}
}

// --- Record* functions (noop providers, must not panic) ---

func TestRecordPatrolCycle(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordPatrolCycle(ctx, 1, 0, 12.5)
	RecordPatrolCycle(ctx, 2, 3, 250.0)
}

func TestRecordForceKill(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordForceKill(ctx, "review", 1, nil)
	RecordForceKill(ctx, "test", 2, errors.New("kill error"))
}

func TestRecordSuspendResume(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordSuspend(ctx, "alice", 360000, nil)
	RecordSuspend(ctx, "bob", 600001, errors.New("suspend error"))
	RecordResume(ctx, "alice", true, nil)
	RecordResume(ctx, "bob", false, errors.New("resume error"))
}

func TestRecordQueueDrain(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordQueueDrain(ctx, "review", "item-1", nil)
	RecordQueueDrain(ctx, "merge", "item-2", errors.New("drain error"))
}

func TestRecordNudge(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordNudge(ctx, "alice", "lazy", nil)
	RecordNudge(ctx, "bob", "violation", errors.New("nudge error"))
}

func TestRecordMassDeath(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordMassDeath(ctx, 2, "some output")
	bigOutput := string(make([]byte, maxScrollbackLog+100))
	RecordMassDeath(ctx, 3, bigOutput)
}

func TestRecordOrphanHeal(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordOrphanHeal(ctx, "PAN-123", "reviewStatus")
}

func TestRecordViolationNudge(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordViolationNudge(ctx, "alice", "hook_idle", 1, nil)
	RecordViolationNudge(ctx, "bob", "hook_idle", 3, errors.New("send error"))
}

func TestRecordRecovery(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordRecovery(ctx, "alice", nil)
	RecordRecovery(ctx, "bob", errors.New("recover error"))
}

func TestRecordSupervisorLifecycle(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()

	RecordSupervisorLifecycle(ctx, "started")
	RecordSupervisorLifecycle(ctx, "stopped")
}
