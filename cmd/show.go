package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <instance-id>",
	Short: "Show details of a toolset instance",
	Long:  `Shows the configuration of one toolset instance, including its shared OAuth app when it has one.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		detail, err := c.GetToolsetInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		instance := detail.Instance
		fmt.Println("Instance:     ", instance.InstanceName)
		fmt.Println("ID:           ", instance.ID)
		fmt.Println("Type:         ", instance.ToolsetType)
		fmt.Println("Auth type:    ", instance.AuthType)
		if instance.BaseURL != "" {
			fmt.Println("Base URL:     ", instance.BaseURL)
		}
		fmt.Println("Created by:   ", instance.CreatedBy)

		if detail.OAuthConfig != nil {
			fmt.Println()
			fmt.Println("OAuth app:    ", detail.OAuthConfig.Name)
			fmt.Println("Client ID:    ", detail.OAuthConfig.ClientID)
			fmt.Println("Secret set:   ", detail.OAuthConfig.ClientSecretSet)
			fmt.Println("Scopes:       ", strings.Join(detail.OAuthConfig.Scopes, ", "))
			fmt.Println("Redirect URI: ", detail.OAuthConfig.RedirectURI)
			fmt.Printf("Authenticated users: %d\n", detail.AuthenticatedUserCount)
		}

		status := c.GetInstanceStatus(cmd.Context(), instance.ID)
		fmt.Println()
		fmt.Println("Configured:   ", status.IsConfigured)
		fmt.Println("Authenticated:", status.IsAuthenticated)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
