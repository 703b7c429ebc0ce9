package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAuthorizeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Run the authorization flow and cache the tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(*configPath)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.WaitUntilAuthorized(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "authorized with scopes: %s\n",
				strings.Join(client.Scopes(), " "))
			return nil
		},
	}
}
