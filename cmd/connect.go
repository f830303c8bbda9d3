package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentflow-dev/toolsets/pkg/client"
	"github.com/agentflow-dev/toolsets/pkg/dialog"
)

var connectFields []string

var connectCmd = &cobra.Command{
	Use:   "connect <instance-id>",
	Short: "Authenticate against a toolset instance",
	Long: `Stores the caller's credential for a toolset instance. OAuth instances
open the provider's consent page in the browser and wait for the flow to
finish; other auth types take their fields as --set key=value pairs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		instanceID := args[0]

		detail, err := c.GetToolsetInstance(cmd.Context(), instanceID)
		if err != nil {
			return err
		}

		if detail.Instance.AuthType == client.AuthTypeOAuth {
			return connectOAuth(cmd, c, &detail.Instance)
		}

		credentials, err := parseKeyValues(connectFields)
		if err != nil {
			return err
		}
		if len(credentials) == 0 {
			return fmt.Errorf("this instance needs credential fields, pass them with --set key=value")
		}
		if err := c.AuthenticateToolsetInstance(cmd.Context(), instanceID, credentials); err != nil {
			return err
		}
		fmt.Println("Authenticated", detail.Instance.InstanceName)
		return nil
	},
}

func connectOAuth(cmd *cobra.Command, c *client.Client, instance *client.ToolsetInstance) error {
	d, err := dialog.New(dialog.Options{
		API:         c,
		Mode:        dialog.ModeManage,
		ToolsetType: instance.ToolsetType,
		InstanceID:  instance.ID,
		Popup:       statusOpener{client: c, instanceID: instance.ID, ctx: cmd.Context()},
	})
	if err != nil {
		return err
	}
	defer d.Close()

	results, err := d.StartOAuthFlow(cmd.Context())
	if err != nil {
		if banner := d.Banner(); banner != "" {
			return fmt.Errorf("%s", banner)
		}
		return err
	}

	fmt.Println("Waiting for the browser flow to finish...")
	result := <-results
	if result.Err != nil {
		return result.Err
	}
	if !result.Authenticated {
		return fmt.Errorf("authentication failed or was cancelled")
	}
	fmt.Println("Authenticated", instance.InstanceName)
	return nil
}

// statusOpener launches the system browser. An external browser cannot
// report window closure, so the popup counts as closed once the backend
// sees the credential.
type statusOpener struct {
	client     *client.Client
	instanceID string
	ctx        context.Context
}

func (o statusOpener) Open(url string, width, height int) (dialog.Popup, error) {
	inner, err := dialog.BrowserOpener{}.Open(url, width, height)
	if err != nil {
		return nil, err
	}
	return &statusPopup{inner: inner, client: o.client, instanceID: o.instanceID, ctx: o.ctx}, nil
}

type statusPopup struct {
	inner      dialog.Popup
	client     *client.Client
	instanceID string
	ctx        context.Context
}

func (p *statusPopup) Closed() bool {
	if p.inner.Closed() {
		return true
	}
	return p.client.GetInstanceStatus(p.ctx, p.instanceID).IsAuthenticated
}

func (p *statusPopup) Close() {
	p.inner.Close()
}

func init() {
	connectCmd.Flags().StringArrayVar(&connectFields, "set", nil, "credential field as key=value (repeatable)")
	rootCmd.AddCommand(connectCmd)
}
