package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/pairline/internal/storage"
	"github.com/louisbranch/pairline/internal/telemetry"
	"github.com/louisbranch/pairline/internal/transport"
)

// commandSigil marks inbound messages that expect a synchronous
// acknowledgement reply.
const commandSigil = "/"

// pump consumes the transport event stream for one connection. It exits
// when the stream closes or when the registry generation moves past gen,
// which means this connection was superseded or removed; its remaining
// events are discarded so they can never leak into a newer entry.
func (m *Manager) pump(sessionID, phoneNumber string, client transport.Client, gen uint64) {
	for ev := range client.Events() {
		if m.registry.Generation(sessionID) != gen {
			return
		}
		m.handleEvent(context.Background(), sessionID, phoneNumber, client, gen, ev)
	}
}

func (m *Manager) handleEvent(ctx context.Context, sessionID, phoneNumber string, client transport.Client, gen uint64, ev transport.Event) {
	switch ev := ev.(type) {
	case transport.PairingEvent:
		m.broadcaster.Publish(sessionID, Envelope{Type: "qr", Data: ev.Data})

	case transport.OpenedEvent:
		if !m.registry.SetStatus(sessionID, gen, StatusConnected) {
			return
		}
		m.clearRetry(sessionID)
		m.broadcaster.Publish(sessionID, Envelope{Type: "connection", Status: StatusConnected})
		m.emit(ctx, telemetry.SeverityInfo, sessionID, "session.connected", "connection opened")
		log.Printf("session %q connected", sessionID)

	case transport.ClosedEvent:
		m.handleClose(ctx, sessionID, phoneNumber, client, gen, ev.Reason)

	case transport.MessageEvent:
		m.handleMessage(ctx, sessionID, client, ev)

	case transport.CredentialEvent:
		if m.creds == nil {
			return
		}
		err := m.creds.PutCredentials(ctx, storage.CredentialRecord{
			SessionID:   sessionID,
			Credentials: ev.Credentials,
		})
		if err != nil {
			log.Printf("session %q: persist credentials: %v", sessionID, err)
		}
	}
}

func (m *Manager) handleClose(ctx context.Context, sessionID, phoneNumber string, client transport.Client, gen uint64, reason transport.CloseReason) {
	if reason == transport.CloseReasonLoggedOut {
		// Guarded by gen: a logout delivered on a superseded handle must
		// not remove the entry that replaced it.
		if _, ok := m.registry.RemoveIf(sessionID, gen); !ok {
			return
		}
		m.clearRetry(sessionID)
		_ = client.Close()
		if m.creds != nil {
			if err := m.creds.DeleteCredentials(ctx, sessionID); err != nil {
				log.Printf("session %q: delete credentials: %v", sessionID, err)
			}
		}
		m.broadcaster.Publish(sessionID, Envelope{Type: "connection", Status: StatusLoggedOut})
		m.emit(ctx, telemetry.SeverityWarn, sessionID, "session.logged_out", "remote logout, session removed")
		log.Printf("session %q logged out", sessionID)
		return
	}

	m.registry.SetStatus(sessionID, gen, StatusConnecting)
	m.scheduleReconnect(sessionID, phoneNumber, gen)
}

// scheduleReconnect arms one reconnect timer for the session. The timer
// checks the registry generation when it fires, so a session disconnected
// or superseded in the meantime stays gone.
func (m *Manager) scheduleReconnect(sessionID, phoneNumber string, gen uint64) {
	delay, attempts := m.nextRetry(sessionID)
	if m.policy.MaxAttempts > 0 && attempts > m.policy.MaxAttempts {
		if _, ok := m.registry.RemoveIf(sessionID, gen); ok {
			m.clearRetry(sessionID)
			m.emit(context.Background(), telemetry.SeverityError, sessionID, "session.reconnect_exhausted",
				fmt.Sprintf("gave up after %d attempts", attempts-1))
			log.Printf("session %q: reconnect gave up after %d attempts", sessionID, attempts-1)
		}
		return
	}

	log.Printf("session %q: reconnecting in %s (attempt %d)", sessionID, delay, attempts)
	time.AfterFunc(delay, func() {
		if m.registry.Generation(sessionID) != gen {
			return
		}
		if err := m.Create(context.Background(), sessionID, phoneNumber); err != nil {
			// A failed dial produces no close event to drive the next
			// attempt, so the timer chain continues from here.
			log.Printf("session %q: reconnect attempt %d: %v", sessionID, attempts, err)
			m.scheduleReconnect(sessionID, phoneNumber, gen)
		}
	})
}

func (m *Manager) handleMessage(ctx context.Context, sessionID string, client transport.Client, ev transport.MessageEvent) {
	if ev.FromSelf || !ev.Live {
		return
	}
	text := ev.PlainText()
	if text == "" {
		return
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	m.broadcaster.Publish(sessionID, Envelope{
		Type: "message",
		Data: Message{From: ev.From, Text: text, Timestamp: ts.Unix()},
	})

	if !strings.HasPrefix(text, commandSigil) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(text, commandSigil))
	if len(fields) == 0 {
		return
	}
	command := strings.ToLower(fields[0])
	reply := fmt.Sprintf("Command received: %s", command)
	if err := client.SendText(ctx, ev.From, reply); err != nil {
		log.Printf("session %q: command ack %q: %v", sessionID, command, err)
	}
}
