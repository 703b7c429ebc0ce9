package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSettingsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "settings <haid> [key] [value]",
		Short: "List, show or change appliance settings",
		Long: `With only an appliance id, lists all settings. With a key, shows that
setting and its constraints. With a key and a value, changes the setting;
the value is parsed as JSON ("Standby", true, 42) and falls back to a
plain string.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(*configPath)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.WaitUntilAuthorized(cmd.Context()); err != nil {
				return err
			}

			haid := args[0]
			switch len(args) {
			case 1:
				settings, err := client.GetSettings(cmd.Context(), haid)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tVALUE\tUNIT")
				for _, st := range settings {
					fmt.Fprintf(w, "%s\t%v\t%s\n", st.Key, st.Value, st.Unit)
				}
				return w.Flush()

			case 2:
				setting, err := client.GetSetting(cmd.Context(), haid, args[1])
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(setting, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil

			default:
				return client.SetSetting(cmd.Context(), haid, args[1], parseValue(args[2]))
			}
		},
	}
}

// parseValue interprets a CLI argument as JSON where possible, so booleans
// and numbers survive the trip. Anything unparseable is a string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
