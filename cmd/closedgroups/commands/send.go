package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"closedgroups/internal/app"
)

// send <group> <message>: encrypt and send a text message to a group.
func sendCmd() *cobra.Command {
	return groupCmd("send <group-pubkey> <message>", "Encrypt and send a message to a group",
		cobra.ExactArgs(2),
		func(ctx context.Context, cmd *cobra.Command, w *app.Wire, args []string) error {
			keys, err := parseKeys(args[:1])
			if err != nil {
				return err
			}
			if err := w.Sender.SendText(ctx, keys[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		})
}
