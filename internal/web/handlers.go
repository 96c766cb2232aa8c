package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chaz8081/whisperclip/internal/backend"
	"github.com/chaz8081/whisperclip/internal/control"
	"github.com/chaz8081/whisperclip/internal/models"
	"github.com/chaz8081/whisperclip/internal/session"
)

const (
	maxCommandBody = 64 << 10
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// commandStatus maps command errors to HTTP statuses and short codes.
func commandStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, control.ErrInvalidCommand),
		errors.Is(err, backend.ErrInvalidConfig),
		errors.Is(err, models.ErrUnknownSize):
		return http.StatusBadRequest, "invalid_command"
	case errors.Is(err, session.ErrModelUnavailable):
		return http.StatusPreconditionFailed, "model_unavailable"
	case errors.Is(err, session.ErrMissingCredential):
		return http.StatusPreconditionFailed, "missing_credential"
	default:
		return http.StatusInternalServerError, "failed"
	}
}

// handleStatus returns the current status snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.surface.Status())
}

// handleCommand runs /api/commands/{name}; the request body is the argument.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "could not read request body", Code: "invalid_command"})
		return
	}

	if err := s.surface.Execute(r.PathValue("name"), string(body)); err != nil {
		status, code := commandStatus(err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
		return
	}
	writeJSON(w, http.StatusAccepted, s.surface.Status())
}

// handleEvents returns buffered events after ?since=seq.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		since = n
	}
	writeJSON(w, http.StatusOK, s.events.Since(since))
}

// handleHistory returns the most recent transcriptions (?limit=, default 20)
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "History disabled", http.StatusNotFound)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := s.history.RecentTranscriptions(r.Context(), limit)
	if err != nil {
		s.log.Error("Failed to read history", "error", err)
		http.Error(w, "Failed to read history", http.StatusInternalServerError)
		return
	}

	type item struct {
		ID         string    `json:"id"`
		CreatedAt  time.Time `json:"created_at"`
		Backend    string    `json:"backend"`
		Text       string    `json:"text"`
		DurationMs int64     `json:"duration_ms"`
		Success    bool      `json:"success"`
		Error      string    `json:"error,omitempty"`
	}
	out := make([]item, 0, len(rows))
	for _, t := range rows {
		out = append(out, item{
			ID:         t.ID,
			CreatedAt:  t.CreatedAt.UTC(),
			Backend:    t.Backend,
			Text:       t.Text,
			DurationMs: t.Duration.Milliseconds(),
			Success:    t.Success,
			Error:      t.Error,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// wsMessage is one frame on /ws: the status snapshot on connect, then events.
type wsMessage struct {
	Type   string          `json:"type"`
	Status *session.Status `json:"status,omitempty"`
	Event  *session.Event  `json:"event,omitempty"`
}

// handleWebSocket streams events until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.events.Subscribe(256)
	defer unsubscribe()

	// Drain client frames so close and pong control messages are handled.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	status := s.surface.Status()
	if err := s.send(conn, wsMessage{Type: "status", Status: &status}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.send(conn, wsMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg wsMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Debug("WebSocket write failed", "error", err)
		return err
	}
	return nil
}
