package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

var (
	listSearch string
	listLimit  int
	listPage   int
)

var listCmd = &cobra.Command{
	Use:   "list [instances|registry]",
	Short: "List toolset instances or the registry catalog",
	Long:  `Lists the caller's configured toolset instances, or the registry of available toolset types.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		target := "instances"
		if len(args) == 1 {
			target = args[0]
		}

		switch target {
		case "instances":
			return listInstances(cmd, c)
		case "registry":
			return listRegistry(cmd, c)
		default:
			return fmt.Errorf("unknown resource %q (expected 'instances' or 'registry')", target)
		}
	},
}

func listInstances(cmd *cobra.Command, c *client.Client) error {
	toolsets, err := c.GetMyToolsets(cmd.Context(), listSearch)
	if err != nil {
		return err
	}
	if len(toolsets) == 0 {
		fmt.Println("No toolset instances configured")
		fmt.Println("Configure one first: toolsets configure <toolset-type> --name <name>")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Instance ID", "Name", "Type", "Auth", "Configured", "Authenticated"})
	for _, ts := range toolsets {
		t.AppendRow(table.Row{ts.InstanceID, ts.InstanceName, ts.ToolsetType, ts.AuthType, ts.IsConfigured, ts.IsAuthenticated})
	}
	t.Render()
	return nil
}

func listRegistry(cmd *cobra.Command, c *client.Client) error {
	page, err := c.GetRegistryToolsets(cmd.Context(), client.RegistryFilters{
		Page:             listPage,
		Limit:            listLimit,
		Search:           listSearch,
		IncludeToolCount: true,
	})
	if err != nil {
		return err
	}
	if len(page.Toolsets) == 0 {
		fmt.Println("No toolset types found")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Type", "Name", "Category", "Auth Types", "Tools"})
	for _, entry := range page.Toolsets {
		authTypes := make([]string, 0, len(entry.AuthTypes))
		for _, a := range entry.AuthTypes {
			authTypes = append(authTypes, string(a))
		}
		t.AppendRow(table.Row{entry.Type, entry.DisplayName, entry.Category, strings.Join(authTypes, ", "), entry.ToolCount})
	}
	t.Render()
	fmt.Printf("Showing %d of %d toolset types\n", len(page.Toolsets), page.TotalCount)
	return nil
}

func init() {
	listCmd.Flags().StringVar(&listSearch, "search", "", "filter by name or type")
	listCmd.Flags().IntVar(&listLimit, "limit", 30, "page size for registry listings")
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number for registry listings")
	rootCmd.AddCommand(listCmd)
}
