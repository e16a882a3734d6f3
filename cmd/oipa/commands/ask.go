package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ebttikar/oip-assistant/internal/completion"
	"github.com/ebttikar/oip-assistant/internal/logging"
	"github.com/ebttikar/oip-assistant/internal/router"
	"github.com/ebttikar/oip-assistant/internal/session"
	"github.com/ebttikar/oip-assistant/internal/stream"
	"github.com/ebttikar/oip-assistant/internal/tickets"
)

// NewAskCmd constructs the `oipa ask` command, which answers a single
// question without starting the server.
func NewAskCmd() *cobra.Command {
	var username string
	var projects, teams, regions []string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the OIP assistant a single question",
		Long: `Ask one question and print the answer to stdout.

The question goes through the same pipeline as the API: greetings,
documentation retrieval and ticket metrics (when TICKETS_DB is set).
Set --user to scope ticket visibility to a specific account.

Examples:
  oipa ask "what is the escalation procedure for P1 incidents?"
  oipa ask --user jdoe "show my open tickets for last month"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			gateway, err := completion.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ask: completion gateway: %w", err)
			}

			backend, err := openVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer backend.close()

			retriever, err := buildRetriever(backend.store, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			var ticketStore tickets.Store
			if dbPath := os.Getenv("TICKETS_DB"); dbPath != "" {
				ts, err := tickets.Open(dbPath)
				if err != nil {
					return fmt.Errorf("ask: open ticket store %s: %w", dbPath, err)
				}
				defer func() { _ = ts.Close() }()
				ticketStore = ts
			}

			sessions := session.NewStore(nil)
			sess, err := sessions.Create(ctx, username, "", "")
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			rtr := router.New(retriever, gateway, ticketStore, sessions)

			em := stream.NewBuffer()
			// Scope flags travel as filter tags, the same wire form API
			// clients embed in message text.
			question := router.ApplyTags(strings.Join(args, " "), session.Filters{
				Projects: projects,
				Teams:    teams,
				Regions:  regions,
			})
			if _, err := rtr.Respond(ctx, sess, question, em); err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Println(em.AnswerText())
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "cli", "Username for ticket visibility scoping")
	cmd.Flags().StringSliceVar(&projects, "project", nil, "Project filter (repeatable)")
	cmd.Flags().StringSliceVar(&teams, "team", nil, "Team filter (repeatable)")
	cmd.Flags().StringSliceVar(&regions, "region", nil, "Region filter (repeatable)")

	return cmd
}
