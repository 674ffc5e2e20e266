// Package telemetry records operational events for session lifecycles.
package telemetry

import (
	"context"
	"time"

	"github.com/louisbranch/pairline/internal/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt storage.TelemetryEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendTelemetry(ctx, evt)
}

// Session records a session lifecycle event. Persistence failures are the
// caller's to log; they never affect session handling.
func (e *Emitter) Session(ctx context.Context, severity Severity, sessionID, event, message string) error {
	return e.Emit(ctx, storage.TelemetryEvent{
		Severity:  string(severity),
		SessionID: sessionID,
		Event:     event,
		Message:   message,
	})
}
