package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentflow-dev/toolsets/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the toolset configuration API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
