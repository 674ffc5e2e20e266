// Package storage defines persistence contracts for the gateway.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// CredentialRecord holds a session's upstream authentication material. The
// credential blob format is owned by the transport and opaque to the gateway.
type CredentialRecord struct {
	SessionID   string
	Credentials []byte
	UpdatedAt   time.Time
}

// CredentialStore persists per-session authentication material. Records are
// read on session creation, rewritten on every credential update from the
// transport, and deleted when a session logs out.
type CredentialStore interface {
	PutCredentials(ctx context.Context, rec CredentialRecord) error
	GetCredentials(ctx context.Context, sessionID string) (CredentialRecord, error)
	DeleteCredentials(ctx context.Context, sessionID string) error
}

// TelemetryEvent records one operational event for a session.
type TelemetryEvent struct {
	Timestamp time.Time
	Severity  string
	SessionID string
	Event     string
	Message   string
}

// TelemetryStore appends operational telemetry events.
type TelemetryStore interface {
	AppendTelemetry(ctx context.Context, evt TelemetryEvent) error
}
