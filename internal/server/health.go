package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ebttikar/oip-assistant/internal/logging"
)

// probeTimeout bounds each dependency check on the readiness endpoint.
const probeTimeout = 5 * time.Second

// Pinger is a named dependency that can be probed for liveness.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name identifies the dependency in readiness output.
	Name() string
}

// readyCheck reports one dependency's probe result.
type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body of GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleHealth reports process liveness only. It never touches
// dependencies, so load balancers can use it for cheap probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady probes every configured dependency and returns 503 if any
// probe fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Ready: true, Checks: make([]readyCheck, 0, len(s.pingers))}
	for _, p := range s.pingers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Ping(ctx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.Ready = false
			logging.FromContext(r.Context()).Warn("readiness probe failed",
				"dependency", p.Name(),
				"error", err,
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
