package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <haid>",
		Short: "Show the current status values of an appliance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(*configPath)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.WaitUntilAuthorized(cmd.Context()); err != nil {
				return err
			}
			status, err := client.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE\tUNIT")
			for _, st := range status {
				fmt.Fprintf(w, "%s\t%v\t%s\n", st.Key, st.Value, st.Unit)
			}
			return w.Flush()
		},
	}
}
