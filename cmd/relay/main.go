package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"closedgroups/internal/app"
	"closedgroups/internal/relay"
)

func main() {
	var (
		listen     string
		retain     int
		debugLevel string
		logFile    string
	)
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "In-memory message relay for closedgroups",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := app.NewLogBackend(logFile, debugLevel, os.Stdout)
			if err != nil {
				return err
			}
			defer logs.Close()
			log := logs.Logger(app.SubsysRelay)

			srv := &http.Server{
				Addr:              listen,
				Handler:           relay.NewServer(relay.NewMailbox(retain), log).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Infof("Relay listening on %s", listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Infof("Relay stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8080", "listen address")
	cmd.Flags().IntVar(&retain, "retain", relay.DefaultRetain, "envelopes kept per public key")
	cmd.Flags().StringVarP(&debugLevel, "debuglevel", "d", "info", "log level, or subsys=level pairs")
	cmd.Flags().StringVar(&logFile, "logfile", "", "rotated log file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
