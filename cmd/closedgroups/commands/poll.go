package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// poll: fetch and process new group and direct messages.
func pollCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Fetch and process new messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			w, err := openWire(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			if once {
				ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
				defer cancel()
				return w.Poller.PollOnce(ctx)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			w.Poller.Start(ctx)
			<-ctx.Done()
			// Let the current tick finish before the database closes.
			w.Poller.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "poll a single time and exit")
	return cmd
}
