package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"closedgroups/internal/app"
	"closedgroups/internal/domain"
)

var (
	home       string
	passphrase string
	configPath string
	relayURL   string
	debugLevel string
	logFile    string

	cfg  app.Config
	logs *app.LogBackend
)

// Execute runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:           "closedgroups",
		Short:         "End-to-end encrypted closed group chat CLI",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := app.DefaultHome()
				if err != nil {
					return err
				}
				home = dir
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			var err error
			cfg, err = app.LoadConfig(home, configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("relay") {
				cfg.RelayURL = relayURL
			}
			if flags.Changed("debuglevel") {
				cfg.DebugLevel = debugLevel
			}
			if flags.Changed("logfile") {
				cfg.LogFile = logFile
			}

			logs, err = app.NewLogBackend(cfg.LogFile, cfg.DebugLevel, os.Stderr)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logs == nil {
				return nil
			}
			return logs.Close()
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.closedgroups)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to protect keys")
	root.PersistentFlags().StringVarP(&configPath, "config", "C", "", "config file (default <home>/closedgroups.conf)")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVarP(&debugLevel, "debuglevel", "d", "info", "log level, or subsys=level pairs")
	root.PersistentFlags().StringVar(&logFile, "logfile", "", "rotated log file")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		createCmd(),
		addCmd(),
		removeCmd(),
		leaveCmd(),
		renameCmd(),
		groupsCmd(),
		sendCmd(),
		pollCmd(),
	)
	return root.Execute()
}

// openWire unlocks the identity and builds the app for it. The caller must
// Close the result.
func openWire(cmd *cobra.Command) (*app.Wire, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase required (-p)")
	}
	id, err := app.NewIdentityService(home).LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	return app.NewWire(cfg, id, logs, app.NewPrinter(cmd.OutOrStdout()))
}

// requireRelay fails early for commands that need the network.
func requireRelay() error {
	if cfg.RelayURL == "" {
		return app.ErrNoRelay
	}
	return nil
}

// parseKeys decodes hex public keys given on the command line.
func parseKeys(args []string) ([]domain.X25519Public, error) {
	keys := make([]domain.X25519Public, 0, len(args))
	for _, a := range args {
		pk, err := domain.ParseX25519Public(a)
		if err != nil {
			return nil, fmt.Errorf("invalid public key %q: %w", a, err)
		}
		keys = append(keys, pk)
	}
	return keys, nil
}

// opTimeout bounds one group operation including its dispatch.
const opTimeout = 30 * time.Second
