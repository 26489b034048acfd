// Package audithook bridges ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/coinledger/event"
	"github.com/xraph/coinledger/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnCoinCreated     = (*Extension)(nil)
	_ plugin.OnCoinRemoved     = (*Extension)(nil)
	_ plugin.OnCoinEmitted     = (*Extension)(nil)
	_ plugin.OnCoinBurned      = (*Extension)(nil)
	_ plugin.OnCoinHeld        = (*Extension)(nil)
	_ plugin.OnCoinUnheld      = (*Extension)(nil)
	_ plugin.OnCoinTransferred = (*Extension)(nil)
	_ plugin.OnCoinNullified   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Coin lifecycle hooks
// ──────────────────────────────────────────────────

// OnCoinCreated implements plugin.OnCoinCreated.
func (e *Extension) OnCoinCreated(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, evt, SeverityInfo, ResourceCoin, evt.CoinUID, CategoryLifecycle,
		"owner_uid", evt.ObjectUID,
	)
}

// OnCoinRemoved implements plugin.OnCoinRemoved.
func (e *Extension) OnCoinRemoved(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, evt, SeverityWarning, ResourceCoin, evt.CoinUID, CategoryLifecycle)
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnCoinEmitted implements plugin.OnCoinEmitted.
func (e *Extension) OnCoinEmitted(ctx context.Context, evt *event.Event) error {
	return e.recordAccount(ctx, evt, SeverityInfo, CategorySupply)
}

// OnCoinBurned implements plugin.OnCoinBurned.
func (e *Extension) OnCoinBurned(ctx context.Context, evt *event.Event) error {
	return e.recordAccount(ctx, evt, SeverityInfo, CategorySupply)
}

// OnCoinNullified implements plugin.OnCoinNullified.
func (e *Extension) OnCoinNullified(ctx context.Context, evt *event.Event) error {
	return e.recordAccount(ctx, evt, SeverityWarning, CategorySupply)
}

// OnCoinHeld implements plugin.OnCoinHeld.
func (e *Extension) OnCoinHeld(ctx context.Context, evt *event.Event) error {
	return e.recordAccount(ctx, evt, SeverityInfo, CategoryCustody)
}

// OnCoinUnheld implements plugin.OnCoinUnheld.
func (e *Extension) OnCoinUnheld(ctx context.Context, evt *event.Event) error {
	return e.recordAccount(ctx, evt, SeverityInfo, CategoryCustody)
}

// OnCoinTransferred implements plugin.OnCoinTransferred.
func (e *Extension) OnCoinTransferred(ctx context.Context, evt *event.Event) error {
	return e.recordAccount(ctx, evt, SeverityInfo, CategoryTransfer,
		"target_uid", evt.TargetUID,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (e *Extension) recordAccount(ctx context.Context, evt *event.Event, severity, category string, kvPairs ...any) error {
	kvPairs = append(kvPairs,
		"coin_uid", evt.CoinUID,
		"amount", evt.Amount.String(),
		"held", evt.Held,
	)
	return e.record(ctx, evt, severity, ResourceAccount, evt.ObjectUID, category, kvPairs...)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	evt *event.Event,
	severity, resource, resourceID, category string,
	kvPairs ...any,
) error {
	action := string(evt.Kind)
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}
	meta["event_id"] = evt.ID.String()
	meta["operation_id"] = evt.OperationID.String()

	audit := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		ActorID:    evt.InitiatorUID,
		Metadata:   meta,
		Outcome:    OutcomeSuccess,
		Severity:   severity,
	}

	if recErr := e.recorder.Record(ctx, audit); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
