package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <instance-id>",
	Short: "Reset the caller's credential for an instance",
	Long:  `Marks the caller's stored credential as unauthenticated so the next connect starts a fresh flow.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.ReauthenticateToolsetInstance(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Credential reset. Re-authenticate with: toolsets connect", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
