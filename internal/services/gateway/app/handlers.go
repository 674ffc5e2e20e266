package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/pairline/internal/session"
)

type pairRequest struct {
	SessionID   string `json:"sessionId"`
	PhoneNumber string `json:"phoneNumber"`
}

type pairResponse struct {
	Success  bool   `json:"success"`
	PairCode string `json:"pairCode,omitempty"`
	Message  string `json:"message,omitempty"`
}

type sendRequest struct {
	SessionID string `json:"sessionId"`
	To        string `json:"to"`
	Message   string `json:"message"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type statusResponse struct {
	Status session.Status `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"activeSessions"`
	Uptime         string `json:"uptime"`
}

func newHandler(manager *session.Manager, guard *bearerGuard, uptime func() time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:         "ok",
			ActiveSessions: manager.ActiveSessions(),
			Uptime:         uptime().Round(time.Second).String(),
		})
	})

	mux.HandleFunc("/api/pair", guarded(guard, func(w http.ResponseWriter, r *http.Request) {
		handlePair(manager, w, r)
	}))
	mux.HandleFunc("/api/status/", guarded(guard, func(w http.ResponseWriter, r *http.Request) {
		handleStatus(manager, w, r)
	}))
	mux.HandleFunc("/api/send", guarded(guard, func(w http.ResponseWriter, r *http.Request) {
		handleSend(manager, w, r)
	}))
	mux.HandleFunc("/api/disconnect/", guarded(guard, func(w http.ResponseWriter, r *http.Request) {
		handleDisconnect(manager, w, r)
	}))

	mux.HandleFunc("/ws", guarded(guard, func(w http.ResponseWriter, r *http.Request) {
		handleWS(manager, w, r)
	}))

	return mux
}

func guarded(guard *bearerGuard, next http.HandlerFunc) http.HandlerFunc {
	if guard == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := guard.authorize(r); err != nil {
			log.Printf("gateway: unauthorized %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
			return
		}
		next(w, r)
	}
}

func handlePair(manager *session.Manager, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sessionId is required"})
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "phoneNumber is required"})
		return
	}

	code, err := manager.RequestPairing(r.Context(), req.SessionID, req.PhoneNumber)
	if err != nil {
		if errors.Is(err, session.ErrInvalidPhoneNumber) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		log.Printf("gateway: pair session %q: %v", req.SessionID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, pairResponse{
		Success:  true,
		PairCode: code,
		Message:  "enter this code on the paired device",
	})
}

func handleStatus(manager *session.Manager, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/status/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sessionId is required"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: manager.Status(sessionID)})
}

func handleSend(manager *session.Manager, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sessionId is required"})
		return
	}
	if strings.TrimSpace(req.To) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "to is required"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	if err := manager.Send(r.Context(), req.SessionID, req.To, req.Message); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionNotConnected):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			log.Printf("gateway: send via session %q: %v", req.SessionID, err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func handleDisconnect(manager *session.Manager, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/disconnect/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sessionId is required"})
		return
	}

	// Disconnecting an unknown session succeeds: the desired end state
	// already holds.
	if err := manager.Disconnect(r.Context(), sessionID); err != nil {
		log.Printf("gateway: disconnect session %q: %v", sessionID, err)
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("gateway: encode response: %v", err)
	}
}
