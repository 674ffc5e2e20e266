package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/pairline/internal/storage"
	"github.com/louisbranch/pairline/internal/telemetry"
	"github.com/louisbranch/pairline/internal/transport"
)

// ErrSessionNotFound indicates an operation against an id with no registry
// entry.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionNotConnected indicates an operation that requires an
// authenticated connection.
var ErrSessionNotConnected = errors.New("session not connected")

// ErrInvalidPhoneNumber indicates a pairing request whose phone number
// contains no digits.
var ErrInvalidPhoneNumber = errors.New("phone number must contain digits")

// Config defines the collaborators and tunables for a session manager.
type Config struct {
	// Dialer establishes upstream connections. Required.
	Dialer transport.Dialer
	// Credentials persists authentication material between dials.
	// Optional: nil disables persistence.
	Credentials storage.CredentialStore
	// Telemetry records lifecycle events. Optional.
	Telemetry *telemetry.Emitter
	// Reconnect is the delay schedule after connection loss.
	Reconnect ReconnectPolicy
	// PairingSettle bounds the wait for pairing readiness after a dial.
	PairingSettle time.Duration
	// DefaultDomain completes bare phone numbers into full addresses.
	DefaultDomain string
}

// Manager drives every managed session: it owns the registry and
// broadcaster, consumes each connection's transport events, and applies the
// reconnect policy. One manager serves the whole process.
type Manager struct {
	dialer    transport.Dialer
	creds     storage.CredentialStore
	telemetry *telemetry.Emitter
	policy    ReconnectPolicy
	settle    time.Duration
	domain    string

	registry    *Registry
	broadcaster *Broadcaster

	mu      sync.Mutex
	retries map[string]*retryState
}

// NewManager creates a session manager from cfg.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("transport dialer is required")
	}
	settle := cfg.PairingSettle
	if settle <= 0 {
		settle = DefaultPairingSettle
	}
	domain := strings.TrimSpace(cfg.DefaultDomain)
	if domain == "" {
		domain = transport.DefaultDomain
	}
	return &Manager{
		dialer:      cfg.Dialer,
		creds:       cfg.Credentials,
		telemetry:   cfg.Telemetry,
		policy:      cfg.Reconnect.normalized(),
		settle:      settle,
		domain:      domain,
		registry:    NewRegistry(),
		broadcaster: NewBroadcaster(),
	}, nil
}

// Registry exposes the session registry for read paths.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Create dials a new upstream connection for sessionID and registers it
// with status connecting. An existing session under the same id is
// superseded: its handle is closed and its in-flight events are discarded.
func (m *Manager) Create(ctx context.Context, sessionID, phoneNumber string) error {
	if !validSessionID(sessionID) {
		return errors.New("session id is required")
	}

	var creds []byte
	if m.creds != nil {
		rec, err := m.creds.GetCredentials(ctx, sessionID)
		switch {
		case err == nil:
			creds = rec.Credentials
		case errors.Is(err, storage.ErrNotFound):
		default:
			// A broken credential read falls back to a fresh pairing
			// rather than blocking the session.
			log.Printf("session %q: read credentials: %v", sessionID, err)
		}
	}

	client, err := m.dialer.Dial(ctx, transport.DialOptions{
		SessionID:   sessionID,
		PhoneNumber: phoneNumber,
		Credentials: creds,
	})
	if err != nil {
		return fmt.Errorf("dial transport: %w", err)
	}

	prev, gen := m.registry.Register(sessionID, phoneNumber, client)
	if prev != nil {
		_ = prev.Close()
	}

	go m.pump(sessionID, phoneNumber, client, gen)
	return nil
}

// Status reports the current connection status for sessionID.
func (m *Manager) Status(sessionID string) Status {
	return m.registry.Status(sessionID)
}

// Send forwards a text message through the session's connection. The
// recipient is used verbatim when it already names a domain, otherwise it
// is completed with the manager's default domain.
func (m *Manager) Send(ctx context.Context, sessionID, to, text string) error {
	sess, ok := m.registry.Lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if sess.Status != StatusConnected {
		return ErrSessionNotConnected
	}
	client, ok := m.registry.Client(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	addr := transport.NormalizeAddress(to, m.domain)
	if addr == "" {
		return errors.New("recipient is required")
	}
	if err := client.SendText(ctx, addr, text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Disconnect logs the session out of the upstream network and removes it
// from the registry. Disconnecting an unknown session is a no-op.
func (m *Manager) Disconnect(ctx context.Context, sessionID string) error {
	client, ok := m.registry.Remove(sessionID)
	if !ok {
		return nil
	}
	m.clearRetry(sessionID)

	if err := client.Logout(ctx); err != nil {
		log.Printf("session %q: logout: %v", sessionID, err)
	}
	_ = client.Close()

	if m.creds != nil {
		if err := m.creds.DeleteCredentials(ctx, sessionID); err != nil {
			log.Printf("session %q: delete credentials: %v", sessionID, err)
		}
	}

	m.broadcaster.Publish(sessionID, Envelope{Type: "connection", Status: StatusLoggedOut})
	m.emit(ctx, telemetry.SeverityInfo, sessionID, "session.disconnected", "explicit disconnect")
	return nil
}

// Subscribe attaches ch to the session's event stream. When the session
// currently exists its status snapshot is pushed to ch immediately, best
// effort; a subscriber may attach before its session is ever created.
func (m *Manager) Subscribe(sessionID string, ch chan Envelope) {
	m.broadcaster.Subscribe(sessionID, ch)
	if sess, ok := m.registry.Lookup(sessionID); ok {
		select {
		case ch <- Envelope{Type: "connection", Status: sess.Status}:
		default:
		}
	}
}

// Unsubscribe detaches ch from the session's event stream.
func (m *Manager) Unsubscribe(sessionID string, ch chan Envelope) {
	m.broadcaster.Unsubscribe(sessionID, ch)
}

// ActiveSessions reports how many sessions are registered.
func (m *Manager) ActiveSessions() int {
	return m.registry.Len()
}

func (m *Manager) emit(ctx context.Context, severity telemetry.Severity, sessionID, event, message string) {
	if err := m.telemetry.Session(ctx, severity, sessionID, event, message); err != nil {
		log.Printf("session %q: telemetry %s: %v", sessionID, event, err)
	}
}

func (m *Manager) nextRetry(sessionID string) (time.Duration, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.retries == nil {
		m.retries = make(map[string]*retryState)
	}
	state, ok := m.retries[sessionID]
	if !ok {
		state = &retryState{delay: m.policy.newBackOff()}
		m.retries[sessionID] = state
	}
	state.attempts++
	return state.delay.NextBackOff(), state.attempts
}

func (m *Manager) clearRetry(sessionID string) {
	m.mu.Lock()
	delete(m.retries, sessionID)
	m.mu.Unlock()
}
