// Package telemetry — recorder.go
// Recording helper functions for all Panopticon telemetry events.
// Each function emits both an OTel log event and increments a metric
// counter.
package telemetry

import (
	"context"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterRecorderName = "github.com/steveyegge/panopticon"
	loggerName        = "panopticon"
)

// recorderInstruments holds all lazy-initialized OTel metric instruments.
type recorderInstruments struct {
	// Counters
	patrolCycleTotal    metric.Int64Counter
	forceKillTotal      metric.Int64Counter
	suspendTotal        metric.Int64Counter
	resumeTotal         metric.Int64Counter
	queueDrainTotal     metric.Int64Counter
	nudgeTotal          metric.Int64Counter
	massDeathTotal      metric.Int64Counter
	orphanHealTotal     metric.Int64Counter
	violationNudgeTotal metric.Int64Counter
	recoveryTotal       metric.Int64Counter
	supervisorTotal     metric.Int64Counter

	// Histograms
	patrolDurationHist metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     recorderInstruments
)

// initInstruments registers all recorder metric instruments against the
// current global MeterProvider. Must be called after telemetry.Init so
// the real provider is set. Also called lazily on first use as a safety
// net.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterRecorderName)

		inst.patrolCycleTotal, _ = m.Int64Counter("pan.patrol.cycles.total",
			metric.WithDescription("Total patrol cycles completed"),
		)
		inst.forceKillTotal, _ = m.Int64Counter("pan.specialist.force_kills.total",
			metric.WithDescription("Total specialist force-kills"),
		)
		inst.suspendTotal, _ = m.Int64Counter("pan.agent.suspends.total",
			metric.WithDescription("Total idle agent suspensions"),
		)
		inst.resumeTotal, _ = m.Int64Counter("pan.agent.resumes.total",
			metric.WithDescription("Total suspended agent resumes"),
		)
		inst.queueDrainTotal, _ = m.Int64Counter("pan.queue.drains.total",
			metric.WithDescription("Total queue items drained to specialists"),
		)
		inst.nudgeTotal, _ = m.Int64Counter("pan.session.nudges.total",
			metric.WithDescription("Total session nudge sends"),
		)
		inst.massDeathTotal, _ = m.Int64Counter("pan.massdeath.alerts.total",
			metric.WithDescription("Total mass-death alerts raised"),
		)
		inst.orphanHealTotal, _ = m.Int64Counter("pan.status.orphan_heals.total",
			metric.WithDescription("Total orphaned status rows healed"),
		)
		inst.violationNudgeTotal, _ = m.Int64Counter("pan.violation.nudges.total",
			metric.WithDescription("Total hook-idle violation nudges sent"),
		)
		inst.recoveryTotal, _ = m.Int64Counter("pan.agent.recoveries.total",
			metric.WithDescription("Total crash recoveries performed"),
		)
		inst.supervisorTotal, _ = m.Int64Counter("pan.supervisor.lifecycle.total",
			metric.WithDescription("Total supervisor lifecycle events"),
		)

		inst.patrolDurationHist, _ = m.Float64Histogram("pan.patrol.duration_ms",
			metric.WithDescription("Wall-clock duration of one patrol in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
}

// statusStr returns "ok" or "error" depending on whether err is nil.
func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// emit sends an OTel log event with the given body and key-value attributes.
func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

// errKV returns a log KeyValue with the error message, or empty string if nil.
func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", err.Error())
	}
	return otellog.String("error", "")
}

// severity returns SeverityInfo on success, SeverityError on failure.
func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}

// maxScrollbackLog is the maximum number of bytes of captured scrollback
// included in a log event.
const maxScrollbackLog = 2048

// truncateOutput trims s to max bytes and appends "…" when truncated.
// Avoids splitting multi-byte UTF-8 characters at the boundary.
func truncateOutput(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	truncated := s[:limit]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "…"
}

// RecordPatrolCycle records one completed patrol with its duration and
// the number of phases that reported errors.
func RecordPatrolCycle(ctx context.Context, cycle int, phaseErrors int, durationMs float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.Int("phase_errors", phaseErrors),
	)
	inst.patrolCycleTotal.Add(ctx, 1, attrs)
	inst.patrolDurationHist.Record(ctx, durationMs, attrs)
	emit(ctx, "patrol.cycle", otellog.SeverityInfo,
		otellog.Int("cycle", cycle),
		otellog.Int("phase_errors", phaseErrors),
		otellog.Float64("duration_ms", durationMs),
	)
}

// RecordForceKill records a specialist force-kill (metrics + log event).
func RecordForceKill(ctx context.Context, specialist string, killCount int, err error) {
	initInstruments()
	status := statusStr(err)
	inst.forceKillTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("specialist", specialist),
			attribute.String("status", status),
		),
	)
	emit(ctx, "specialist.force_kill", otellog.SeverityWarn,
		otellog.String("specialist", specialist),
		otellog.Int("kill_count", killCount),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordSuspend records an idle agent suspension (metrics + log event).
func RecordSuspend(ctx context.Context, agent string, idleMs float64, err error) {
	initInstruments()
	status := statusStr(err)
	inst.suspendTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent", agent),
			attribute.String("status", status),
		),
	)
	emit(ctx, "agent.suspend", severity(err),
		otellog.String("agent", agent),
		otellog.Float64("idle_ms", idleMs),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordResume records a suspended agent resume. ready reports whether
// the ready signal arrived before the wait deadline.
func RecordResume(ctx context.Context, agent string, ready bool, err error) {
	initInstruments()
	status := statusStr(err)
	inst.resumeTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent", agent),
			attribute.Bool("ready", ready),
			attribute.String("status", status),
		),
	)
	emit(ctx, "agent.resume", severity(err),
		otellog.String("agent", agent),
		otellog.Bool("ready", ready),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordQueueDrain records a queue item handed to a specialist.
func RecordQueueDrain(ctx context.Context, specialist, itemID string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.queueDrainTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("specialist", specialist),
			attribute.String("status", status),
		),
	)
	emit(ctx, "queue.drain", severity(err),
		otellog.String("specialist", specialist),
		otellog.String("item", itemID),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordNudge records a session nudge send. reason labels what prompted
// it ("lazy", "violation", "wake").
func RecordNudge(ctx context.Context, target, reason string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.nudgeTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("target", target),
			attribute.String("reason", reason),
			attribute.String("status", status),
		),
	)
	emit(ctx, "session.nudge", severity(err),
		otellog.String("target", target),
		otellog.String("reason", reason),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordMassDeath records a mass-death alert with the death count and
// the scrollback of the most recent casualty (truncated).
func RecordMassDeath(ctx context.Context, deaths int, lastOutput string) {
	initInstruments()
	inst.massDeathTotal.Add(ctx, 1)
	emit(ctx, "massdeath.alert", otellog.SeverityError,
		otellog.Int("deaths", deaths),
		otellog.String("last_output", truncateOutput(lastOutput, maxScrollbackLog)),
	)
}

// RecordOrphanHeal records a healed status row (metrics + log event).
func RecordOrphanHeal(ctx context.Context, issueID, field string) {
	initInstruments()
	inst.orphanHealTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("field", field)),
	)
	emit(ctx, "status.orphan_heal", otellog.SeverityInfo,
		otellog.String("issue", issueID),
		otellog.String("field", field),
	)
}

// RecordViolationNudge records a hook-idle violation nudge at its escalation
// level (metrics + log event).
func RecordViolationNudge(ctx context.Context, agent, violationType string, nudgeCount int, err error) {
	initInstruments()
	status := statusStr(err)
	inst.violationNudgeTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent", agent),
			attribute.String("type", violationType),
			attribute.String("status", status),
		),
	)
	emit(ctx, "violation.nudge", otellog.SeverityWarn,
		otellog.String("agent", agent),
		otellog.String("type", violationType),
		otellog.Int("nudge_count", nudgeCount),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordRecovery records a crash recovery attempt (metrics + log event).
func RecordRecovery(ctx context.Context, agent string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.recoveryTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent", agent),
			attribute.String("status", status),
		),
	)
	emit(ctx, "agent.recovery", severity(err),
		otellog.String("agent", agent),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordSupervisorLifecycle records a supervisor lifecycle event.
// event is "started" or "stopped".
func RecordSupervisorLifecycle(ctx context.Context, event string) {
	initInstruments()
	inst.supervisorTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("event", event)),
	)
	emit(ctx, "supervisor.lifecycle", otellog.SeverityInfo,
		otellog.String("event", event),
	)
}
