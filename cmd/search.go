package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var searchApp string

var searchCmd = &cobra.Command{
	Use:   "search <search-term>",
	Short: "Search tools across the registry",
	Long:  `Search the tool catalog by name or description, optionally scoped to one toolset type.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		tools, err := c.SearchTools(cmd.Context(), searchApp, args[0])
		if err != nil {
			return err
		}
		if len(tools) == 0 {
			fmt.Println("No results found")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Tool", "Full Name", "Description"})
		for _, tool := range tools {
			t.AppendRow(table.Row{tool.Name, tool.FullName, tool.Description})
		}
		t.Render()
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchApp, "app", "", "restrict the search to one toolset type")
	rootCmd.AddCommand(searchCmd)
}
