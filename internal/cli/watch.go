package cli

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <haid>",
		Short: "Stream live events from an appliance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(*configPath)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := client.WaitUntilAuthorized(ctx); err != nil {
				return err
			}
			stream, err := client.WatchEvents(args[0])
			if err != nil {
				return err
			}
			defer stream.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-stream.Events():
					if !ok {
						return stream.Err()
					}
					line := ev.Name
					if ev.Data != nil {
						data, err := json.Marshal(ev.Data)
						if err == nil {
							line += " " + string(data)
						}
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
			}
		},
	}
}
