package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"closedgroups/internal/app"
	"closedgroups/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity fingerprint and public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.NewIdentityService(home).LoadIdentity(passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\nPublic key:  %s\n",
				crypto.Fingerprint(id.XPub), id.XPub)
			return nil
		},
	}
}
