package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/deckscan/internal/mcpserver"
	"github.com/MeKo-Tech/deckscan/internal/version"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve extraction tools over the Model Context Protocol (stdio)",
	Long: `Run a Model Context Protocol server on stdin/stdout.

Tools:
  extract_pdf_text  - extract the text of a PDF file
  pdf_info          - report page count and encryption of a PDF file

Logs are written to stderr.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()
		if err := applyExtractionFlags(cmd, cfg); err != nil {
			return err
		}
		ex, err := newExtractor(cfg)
		if err != nil {
			return err
		}
		srv, err := mcpserver.NewServer(ex, "deckscan", version.Version, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Debug("starting MCP server on stdio")
		return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	addExtractionFlags(mcpCmd.Flags())
}
