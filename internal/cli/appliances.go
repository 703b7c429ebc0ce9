package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAppliancesCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "appliances",
		Short: "List paired appliances",
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
			appliances, err := client.GetAppliances(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HAID\tNAME\tTYPE\tBRAND\tCONNECTED")
			for _, ha := range appliances {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
					ha.HAID, ha.Name, ha.Type, ha.Brand, ha.Connected)
			}
			return w.Flush()
		},
	}
}
