package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var uninstallCredentialsOnly bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <instance-id>",
	Short: "Delete a toolset instance",
	Long: `Deletes a toolset instance and every user's credentials for it.
With --credentials-only, removes only the caller's own credential and
leaves the instance in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		instanceID := args[0]

		if uninstallCredentialsOnly {
			if err := c.RemoveToolsetCredentials(cmd.Context(), instanceID); err != nil {
				return err
			}
			fmt.Println("Removed your credentials for", instanceID)
			return nil
		}

		if err := c.DeleteToolsetInstance(cmd.Context(), instanceID); err != nil {
			return err
		}
		fmt.Println("Deleted instance", instanceID)
		return nil
	},
}

func init() {
	uninstallCmd.Flags().BoolVar(&uninstallCredentialsOnly, "credentials-only", false, "remove only your own credential")
	rootCmd.AddCommand(uninstallCmd)
}
