package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/pairline/internal/session"
)

// subscriberBuffer bounds the per-subscriber event queue. A client that
// cannot drain this many events starts losing them, by the broadcaster's
// skip-on-full contract.
const subscriberBuffer = 64

func handleWS(manager *session.Manager, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Reject before the upgrade so the client sees a plain HTTP error
	// instead of an immediate close.
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		log.Printf("gateway: websocket rejected: missing sessionId from %s", r.RemoteAddr)
		http.Error(w, "sessionId query parameter is required", http.StatusBadRequest)
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		streamSessionEvents(manager, conn, sessionID)
	}).ServeHTTP(w, r)
}

func streamSessionEvents(manager *session.Manager, conn *websocket.Conn, sessionID string) {
	defer func() {
		_ = conn.Close()
	}()

	events := make(chan session.Envelope, subscriberBuffer)
	manager.Subscribe(sessionID, events)
	defer manager.Unsubscribe(sessionID, events)

	// The client sends nothing meaningful; the read loop only notices when
	// the peer goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var discard json.RawMessage
			if err := websocket.JSON.Receive(conn, &discard); err != nil {
				if err != io.EOF {
					log.Printf("gateway: websocket session %q read: %v", sessionID, err)
				}
				return
			}
		}
	}()

	encoder := json.NewEncoder(conn)
	for {
		select {
		case env := <-events:
			if err := encoder.Encode(env); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
