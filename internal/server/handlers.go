package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ebttikar/oip-assistant/internal/logging"
	"github.com/ebttikar/oip-assistant/internal/session"
	"github.com/ebttikar/oip-assistant/internal/stream"
)

// maxBodyBytes caps request bodies; turn text is short.
const maxBodyBytes = 1 << 20

// errorResponse is the JSON body for all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := s.sessions.Create(r.Context(), req.Username, req.UserRole, req.UserRoleCode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProjectNames != nil || req.TeamNames != nil || req.RegionNames != nil {
		s.sessions.ApplyFilters(sess, session.Filters{
			Projects: req.ProjectNames,
			Teams:    req.TeamNames,
			Regions:  req.RegionNames,
		})
	}
	logging.FromContext(r.Context()).Info("session created",
		"session_id", sess.ID,
		"username", sess.Username,
		"role", sess.UserRole,
	)
	writeJSON(w, http.StatusCreated, s.sessions.Snapshot(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": s.sessions.IDs(),
		"count":    s.sessions.Count(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Snapshot(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	logging.FromContext(r.Context()).Info("session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleRun processes one conversational turn. With streaming=true the
// response is an SSE frame stream ending in [DONE]; otherwise the frames
// are buffered and the final answer is returned as JSON.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	text := joinParts(req.NewMessage)
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "message text is required")
		return
	}

	// One turn at a time per session; concurrent runs queue here.
	unlock := s.sessions.LockTurn(sess)
	defer unlock()

	if req.ProjectNames != nil || req.TeamNames != nil || req.RegionNames != nil {
		s.sessions.ApplyFilters(sess, session.Filters{
			Projects: req.ProjectNames,
			Teams:    req.TeamNames,
			Regions:  req.RegionNames,
		})
	}

	log := logging.FromContext(r.Context())
	if req.Streaming {
		s.runStreaming(w, r, sess, text, log)
		return
	}
	s.runBuffered(w, r, sess, text, log)
}

func (s *Server) runStreaming(w http.ResponseWriter, r *http.Request, sess *session.Session, text string, log *slog.Logger) {
	em, err := stream.NewSSE(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	s.metrics.activeStreams.Inc()
	defer s.metrics.activeStreams.Dec()

	start := time.Now()
	intent, err := s.responder.Respond(r.Context(), sess, text, em)
	s.metrics.observeTurn(intent, err, time.Since(start))
	if err != nil {
		// Headers are already sent; the protocol still terminated with a
		// safe answer and [DONE], so just log.
		log.Error("turn failed", "session_id", sess.ID, "error", err)
	}
}

func (s *Server) runBuffered(w http.ResponseWriter, r *http.Request, sess *session.Session, text string, log *slog.Logger) {
	em := stream.NewBuffer()
	start := time.Now()
	intent, err := s.responder.Respond(r.Context(), sess, text, em)
	s.metrics.observeTurn(intent, err, time.Since(start))
	if err != nil {
		log.Error("turn failed", "session_id", sess.ID, "error", err)
	}
	if !em.Completed() {
		writeError(w, http.StatusInternalServerError, "turn did not complete")
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		SessionID: sess.ID,
		UserID:    sess.Username,
		Response:  em.AnswerText(),
	})
}

func joinParts(m newMessage) string {
	parts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}
