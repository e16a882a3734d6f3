// Package commands defines all Cobra CLI commands for the oipa binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ebttikar/oip-assistant/internal/audit"
	"github.com/ebttikar/oip-assistant/internal/config"
	"github.com/ebttikar/oip-assistant/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "oipa",
		Short: "OIP Assistant — conversational operations intelligence for Ebttikar",
		Long: `OIP Assistant answers questions about the Operations Intelligence Platform.

It combines documentation retrieval (RAG over the OIP knowledge base) with
live ticket metrics: ask about procedures and playbooks, or request ticket
summaries and charts scoped to your projects, teams and regions.

Configuration comes from environment variables, optionally layered on a
YAML config file (~/.oipa/config.yaml). A local .env file is loaded if
present. See 'oipa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Local .env first so YAML loading sees those values as "env set".
			_ = godotenv.Load()

			log := logging.New()

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.oipa/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewVersionCmd(),
	)

	return root
}
