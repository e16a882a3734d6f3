package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ebttikar/oip-assistant/internal/router"
	"github.com/ebttikar/oip-assistant/internal/session"
	"github.com/ebttikar/oip-assistant/internal/stream"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
}

// responder is the interface handleRun calls to process one turn.
// *router.Router satisfies it; tests inject a fake.
type responder interface {
	Respond(ctx context.Context, sess *session.Session, rawText string, em stream.Emitter) (router.Intent, error)
}

// Server is the HTTP server that exposes the assistant API.
type Server struct {
	// responder runs one classified turn and emits its frames.
	responder responder
	// sessions is the session registry shared with the router.
	sessions *session.Store
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this instance's Prometheus metrics.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// messagePart is one part of an incoming message.
type messagePart struct {
	Text string `json:"text"`
}

// newMessage is the message payload of a run request.
type newMessage struct {
	Role  string        `json:"role"`
	Parts []messagePart `json:"parts"`
}

// createSessionRequest is the JSON body for POST /api/sessions.
type createSessionRequest struct {
	// Username identifies the user; required.
	Username string `json:"username"`
	// UserRole and UserRoleCode describe the user's role for visibility
	// scoping ("Engineer", "Manager", ...).
	UserRole     string `json:"userRole,omitempty"`
	UserRoleCode string `json:"userRoleCode,omitempty"`
	// Initial scope filters, all optional.
	ProjectNames []string `json:"projectNames,omitempty"`
	TeamNames    []string `json:"teamNames,omitempty"`
	RegionNames  []string `json:"regionNames,omitempty"`
}

// runRequest is the JSON body for POST /api/run.
type runRequest struct {
	// AppName, UserID and the role fields are accepted for client
	// compatibility; visibility scoping uses the role stored on the session.
	AppName      string `json:"appName,omitempty"`
	UserID       string `json:"userId,omitempty"`
	UserRole     string `json:"userRole,omitempty"`
	UserRoleCode string `json:"userRoleCode,omitempty"`
	// SessionID identifies an existing session; required.
	SessionID string `json:"sessionId"`
	// Username must be sent on every turn; required.
	Username string `json:"username"`
	// NewMessage carries the user's turn text in its parts.
	NewMessage newMessage `json:"newMessage"`
	// Streaming selects SSE frames (true) or a single JSON answer (false).
	Streaming bool `json:"streaming"`
	// Filter updates for this and later turns. A dimension that is absent
	// keeps its current value; an empty list clears it.
	ProjectNames []string `json:"projectNames,omitempty"`
	TeamNames    []string `json:"teamNames,omitempty"`
	RegionNames  []string `json:"regionNames,omitempty"`
}

// runResponse is the JSON response for non-streaming POST /api/run.
type runResponse struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Response  string `json:"response"`
}
