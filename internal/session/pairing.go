package session

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/pairline/internal/telemetry"
	"github.com/louisbranch/pairline/internal/transport"
)

// RequestPairing creates (or supersedes) the session and asks the upstream
// network for a one-time pairing code bound to the phone number.
//
// The code request waits for the connection's readiness signal, falling
// back to the configured settle interval when the transport never signals.
// The returned code is handed to the caller only: it is never persisted and
// never broadcast.
func (m *Manager) RequestPairing(ctx context.Context, sessionID, phoneNumber string) (string, error) {
	digits := transport.NormalizePhone(phoneNumber)
	if digits == "" {
		return "", ErrInvalidPhoneNumber
	}

	if err := m.Create(ctx, sessionID, digits); err != nil {
		return "", err
	}

	client, ok := m.registry.Client(sessionID)
	if !ok {
		return "", ErrSessionNotFound
	}

	settle := time.NewTimer(m.settle)
	defer settle.Stop()
	select {
	case <-client.Ready():
	case <-settle.C:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	code, err := client.RequestPairingCode(ctx, digits)
	if err != nil {
		return "", fmt.Errorf("request pairing code: %w", err)
	}

	m.emit(ctx, telemetry.SeverityInfo, sessionID, "session.pairing_requested", "pairing code issued")
	return code, nil
}
