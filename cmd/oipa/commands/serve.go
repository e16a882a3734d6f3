package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ebttikar/oip-assistant/internal/completion"
	"github.com/ebttikar/oip-assistant/internal/logging"
	"github.com/ebttikar/oip-assistant/internal/router"
	"github.com/ebttikar/oip-assistant/internal/server"
	"github.com/ebttikar/oip-assistant/internal/session"
	"github.com/ebttikar/oip-assistant/internal/tickets"
)

// NewServeCmd constructs the `oipa serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OIP assistant HTTP API",
		Long: `Start the OIP assistant HTTP server on localhost.

The server exposes session management and the run endpoint (SSE streaming
or buffered JSON). Run 'oipa ingest' first to build the document index, and
point TICKETS_DB at the ticket metrics database to enable metrics answers.

Examples:
  oipa serve
  oipa serve --port 9090
  VECTOR_BACKEND=qdrant oipa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Flags win over env; env (including YAML-applied values) wins
			// over the built-in defaults.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("OIPA_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("OIPA_PORT", port)
			}

			gateway, err := completion.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: completion gateway: %w", err)
			}
			log.Info("completion gateway initialised", slog.String("base_url", getEnvOrDefault("COMPLETION_BASE_URL", "https://openrouter.ai/api/v1")))

			backend, err := openVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer backend.close()

			retriever, err := buildRetriever(backend.store, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{
				server.NewPinger("completion", gateway.Ping),
				backend.pinger,
			}

			// Ticket metrics are optional; without TICKETS_DB the assistant
			// still answers documentation questions.
			var ticketStore tickets.Store
			if dbPath := os.Getenv("TICKETS_DB"); dbPath != "" {
				ts, err := tickets.Open(dbPath)
				if err != nil {
					return fmt.Errorf("serve: open ticket store %s: %w", dbPath, err)
				}
				defer func() { _ = ts.Close() }()
				ticketStore = ts
				pingers = append(pingers, server.NewPinger("tickets", ts.Ping))
				log.Info("ticket store opened", slog.String("path", dbPath))
			} else {
				log.Warn("TICKETS_DB not set, ticket metrics unavailable")
			}

			// Transcript persistence is optional. SESSION_DB=disabled keeps
			// history in process memory only.
			var transcript session.TranscriptStore
			if dbPath := os.Getenv("SESSION_DB"); dbPath != "" && dbPath != "disabled" {
				ts, err := session.OpenTranscript(dbPath)
				if err != nil {
					log.Warn("transcript store unavailable, keeping history in memory", slog.Any("error", err))
				} else {
					transcript = ts
					defer func() { _ = ts.Close() }()
					log.Info("transcript store opened", slog.String("path", dbPath))
				}
			}
			sessions := session.NewStore(transcript)

			rtr := router.New(retriever, gateway, ticketStore, sessions)

			srv, err := server.New(&server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				APIKey:    os.Getenv("OIPA_API_KEY"),
				RateLimit: getEnvFloat("OIPA_RATE_LIMIT", 0),
				RateBurst: getEnvInt("OIPA_RATE_BURST", 0),
			}, sessions, rtr)
			if err != nil {
				return fmt.Errorf("serve: create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
