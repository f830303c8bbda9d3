package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

var (
	serverURL string
	userID    string
	orgID     string
)

var rootCmd = &cobra.Command{
	Use:   "toolsets",
	Short: "Toolset configuration service",
	Long:  `toolsets manages admin-provisioned toolset instances, shared OAuth configs and per-user credentials for agent flows.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("TOOLSETS_SERVER", "http://localhost:8080"), "toolset service base URL")
	rootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("TOOLSETS_USER_ID"), "user id sent as X-User-ID")
	rootCmd.PersistentFlags().StringVar(&orgID, "org", os.Getenv("TOOLSETS_ORG_ID"), "organization id sent as X-Org-ID")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newClient builds the API client from the global connection flags.
func newClient() (*client.Client, error) {
	if userID == "" || orgID == "" {
		return nil, fmt.Errorf("--user and --org are required (or set TOOLSETS_USER_ID / TOOLSETS_ORG_ID)")
	}
	return client.New(serverURL, userID, orgID), nil
}
