package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

var (
	configureName        string
	configureAuthType    string
	configureBaseURL     string
	configureOAuthConfig string
	configureOAuthApp    string
	configureFields      []string
)

var configureCmd = &cobra.Command{
	Use:   "configure <toolset-type>",
	Short: "Create a toolset instance",
	Long: `Creates an org-wide toolset instance. Credential fields are passed as
--set key=value pairs; the registry schema endpoint lists which fields a
toolset type expects.

OAuth instances additionally need either --oauth-config to reuse a shared
OAuth app, or --oauth-app to register a new one from the provided fields.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if configureName == "" {
			return fmt.Errorf("--name is required")
		}
		fields, err := parseKeyValues(configureFields)
		if err != nil {
			return err
		}

		params := client.CreateInstanceParams{
			InstanceName:      configureName,
			ToolsetType:       args[0],
			AuthType:          client.AuthType(strings.ToUpper(configureAuthType)),
			BaseURL:           configureBaseURL,
			AuthConfig:        fields,
			OAuthConfigID:     configureOAuthConfig,
			OAuthInstanceName: configureOAuthApp,
		}
		instance, err := c.CreateToolsetInstance(cmd.Context(), params)
		if err != nil {
			return err
		}

		fmt.Printf("Created instance %q (%s)\n", instance.InstanceName, instance.ID)
		if instance.AuthType == client.AuthTypeOAuth {
			fmt.Println("Users must authenticate separately: toolsets connect", instance.ID)
		}
		return nil
	},
}

// parseKeyValues turns repeated --set key=value flags into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set value %q (expected key=value)", pair)
		}
		out[key] = value
	}
	return out, nil
}

func init() {
	configureCmd.Flags().StringVar(&configureName, "name", "", "instance display name (required)")
	configureCmd.Flags().StringVar(&configureAuthType, "auth", "OAUTH", "auth type (OAUTH, API_TOKEN, BEARER_TOKEN, USERNAME_PASSWORD, NONE)")
	configureCmd.Flags().StringVar(&configureBaseURL, "base-url", "", "instance base URL for self-hosted providers")
	configureCmd.Flags().StringVar(&configureOAuthConfig, "oauth-config", "", "reuse an existing shared OAuth app by id")
	configureCmd.Flags().StringVar(&configureOAuthApp, "oauth-app", "", "register a new shared OAuth app under this name")
	configureCmd.Flags().StringArrayVar(&configureFields, "set", nil, "credential field as key=value (repeatable)")
	rootCmd.AddCommand(configureCmd)
}
