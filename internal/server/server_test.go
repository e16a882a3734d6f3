package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ebttikar/oip-assistant/internal/router"
	"github.com/ebttikar/oip-assistant/internal/session"
	"github.com/ebttikar/oip-assistant/internal/stream"
)

// fakeResponder emits a fixed protocol-complete turn.
type fakeResponder struct {
	answer  string
	err     error
	calls   int
	gotText string
}

func (f *fakeResponder) Respond(_ context.Context, _ *session.Session, text string, em stream.Emitter) (router.Intent, error) {
	f.calls++
	f.gotText = text
	_ = em.Status("working on it")
	if f.err != nil {
		_ = em.Answer("I encountered an issue while processing your request.")
		_ = em.Done()
		return router.IntentDocumentQA, f.err
	}
	_ = em.Answer(f.answer)
	_ = em.Done()
	return router.IntentDocumentQA, nil
}

func newTestServer(t *testing.T, cfg *Config) (*Server, *fakeResponder, *session.Store) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	sessions := session.NewStore(nil)
	resp := &fakeResponder{answer: "The fiber rollout follows the OIP playbook."}
	s, err := New(cfg, sessions, resp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, resp, sessions
}

func createSession(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: got %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var sess struct {
		ID string `json:"sessionId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("create session: empty sessionId")
	}
	return sess.ID
}

func runBody(sessionID, text string, streaming bool) string {
	return fmt.Sprintf(`{"sessionId":%q,"username":"jdoe","streaming":%t,"newMessage":{"role":"user","parts":[{"text":%q}]}}`,
		sessionID, streaming, text)
}

func TestCreateSession(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)

	id := createSession(t, s.Handler(), `{"username":"jdoe","userRole":"Manager"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: got %d, want 200", rec.Code)
	}
	var got struct {
		Username string `json:"username"`
		UserRole string `json:"userRole"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Username != "jdoe" || got.UserRole != "Manager" {
		t.Errorf("got %+v, want jdoe/Manager", got)
	}
}

func TestCreateSessionRequiresUsername(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"userRole":"Manager"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		req := httptest.NewRequest(method, "/api/sessions/nope", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: got %d, want 404", method, rec.Code)
		}
	}
}

func TestListSessions(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)
	a := createSession(t, s.Handler(), `{"username":"jdoe"}`)
	b := createSession(t, s.Handler(), `{"username":"asmith"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var got struct {
		Sessions []string `json:"sessions"`
		Count    int      `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Count != 2 || len(got.Sessions) != 2 {
		t.Fatalf("got %+v, want 2 sessions", got)
	}
	for _, id := range []string{a, b} {
		found := false
		for _, s := range got.Sessions {
			if s == id {
				found = true
			}
		}
		if !found {
			t.Errorf("session %s missing from listing", id)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)
	id := createSession(t, s.Handler(), `{"username":"jdoe"}`)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d, want 204", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: got %d, want 404", rec.Code)
	}
}

func TestRunBuffered(t *testing.T) {
	t.Parallel()
	s, resp, _ := newTestServer(t, nil)
	id := createSession(t, s.Handler(), `{"username":"jdoe"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(runBody(id, "what is the OIP playbook?", false)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got runResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SessionID != id {
		t.Errorf("sessionId = %q, want %q", got.SessionID, id)
	}
	if got.Response != resp.answer {
		t.Errorf("response = %q, want %q", got.Response, resp.answer)
	}
	if resp.gotText != "what is the OIP playbook?" {
		t.Errorf("responder got %q", resp.gotText)
	}
}

func TestRunStreaming(t *testing.T) {
	t.Parallel()
	s, resp, _ := newTestServer(t, nil)
	id := createSession(t, s.Handler(), `{"username":"jdoe"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(runBody(id, "hello there, how are fiber tickets tracked?", true)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	var events []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(events), events)
	}
	if events[len(events)-1] != "[DONE]" {
		t.Errorf("last event = %q, want [DONE]", events[len(events)-1])
	}
	var answer stream.Frame
	if err := json.Unmarshal([]byte(events[1]), &answer); err != nil {
		t.Fatalf("decode answer frame: %v", err)
	}
	if answer.Type != stream.FrameAnswer || answer.Text != resp.answer {
		t.Errorf("answer frame = %+v", answer)
	}
}

func TestRunStreamingResponderFailure(t *testing.T) {
	t.Parallel()
	s, resp, _ := newTestServer(t, nil)
	resp.err = errors.New("upstream 502")
	id := createSession(t, s.Handler(), `{"username":"jdoe"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(runBody(id, "anything", true)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "data: [DONE]") {
		t.Error("stream missing [DONE] terminator after failure")
	}
	if strings.Contains(body, "502") {
		t.Error("internal error leaked to client")
	}
}

func TestRunUnknownSession(t *testing.T) {
	t.Parallel()
	s, resp, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(runBody("missing", "hi", false)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
	if resp.calls != 0 {
		t.Errorf("responder called %d times for unknown session", resp.calls)
	}
}

func TestRunRequiresUsername(t *testing.T) {
	t.Parallel()
	s, resp, _ := newTestServer(t, nil)
	id := createSession(t, s.Handler(), `{"username":"jdoe"}`)

	body := fmt.Sprintf(`{"sessionId":%q,"newMessage":{"role":"user","parts":[{"text":"hi"}]}}`, id)
	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
	if resp.calls != 0 {
		t.Errorf("responder called without username")
	}
}

func TestRunEmptyMessage(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)
	id := createSession(t, s.Handler(), `{"username":"jdoe"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(runBody(id, "   ", false)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestRunAppliesFilterUpdates(t *testing.T) {
	t.Parallel()
	s, _, sessions := newTestServer(t, nil)
	id := createSession(t, s.Handler(), `{"username":"jdoe","projectNames":["Fiber Rollout"]}`)

	body := fmt.Sprintf(`{"sessionId":%q,"username":"jdoe","teamNames":["NOC"],"newMessage":{"role":"user","parts":[{"text":"show my tickets"}]}}`, id)
	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: got %d: %s", rec.Code, rec.Body.String())
	}

	sess, err := sessions.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	snap := sessions.Snapshot(sess)
	if len(snap.Filters.Projects) != 1 || snap.Filters.Projects[0] != "Fiber Rollout" {
		t.Errorf("projects = %v, want [Fiber Rollout]", snap.Filters.Projects)
	}
	if len(snap.Filters.Teams) != 1 || snap.Filters.Teams[0] != "NOC" {
		t.Errorf("teams = %v, want [NOC]", snap.Filters.Teams)
	}
}
