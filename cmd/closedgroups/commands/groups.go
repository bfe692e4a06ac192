package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"closedgroups/internal/app"
	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
)

// groupCmd builds a command that runs fn against an open app with a
// bounded context.
func groupCmd(use, short string, args cobra.PositionalArgs,
	fn func(ctx context.Context, cmd *cobra.Command, w *app.Wire, args []string) error) *cobra.Command {

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			w, err := openWire(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()
			return fn(ctx, cmd, w, args)
		},
	}
}

func createCmd() *cobra.Command {
	return groupCmd("create <name> [member-pubkey...]", "Create a group with you as admin",
		cobra.MinimumNArgs(1),
		func(ctx context.Context, cmd *cobra.Command, w *app.Wire, args []string) error {
			members, err := parseKeys(args[1:])
			if err != nil {
				return err
			}
			meta, err := w.Groups.CreateGroup(ctx, args[0], members)
			if meta.PublicKey.IsZero() {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Group %q created: %s\n", meta.Name, meta.PublicKey)
			return err
		})
}

func addCmd() *cobra.Command {
	return groupCmd("add <group-pubkey> <member-pubkey...>", "Add members to a group",
		cobra.MinimumNArgs(2),
		func(ctx context.Context, cmd *cobra.Command, w *app.Wire, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			return w.Groups.AddMembers(ctx, keys[0], keys[1:])
		})
}

func removeCmd() *cobra.Command {
	return groupCmd("remove <group-pubkey> <member-pubkey...>", "Remove members from a group",
		cobra.MinimumNArgs(2),
		func(ctx context.Context, cmd *cobra.Command, w *app.Wire, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			return w.Groups.RemoveMembers(ctx, keys[0], keys[1:])
		})
}

func leaveCmd() *cobra.Command {
	return groupCmd("leave <group-pubkey>", "Leave a group", cobra.ExactArgs(1),
		func(ctx context.Context, cmd *cobra.Command, w *app.Wire, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			return w.Groups.Leave(ctx, keys[0])
		})
}

func renameCmd() *cobra.Command {
	return groupCmd("rename <group-pubkey> <name>", "Rename a group", cobra.ExactArgs(2),
		func(ctx context.Context, cmd *cobra.Command, w *app.Wire, args []string) error {
			keys, err := parseKeys(args[:1])
			if err != nil {
				return err
			}
			return w.Groups.Rename(ctx, keys[0], args[1])
		})
}

func groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List known groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWire(cmd)
			if err != nil {
				return err
			}
			defer w.Close()

			groups, err := w.Groups.Groups()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, g := range groups {
				role := "member"
				switch {
				case !g.IsMember(w.Identity.XPub):
					role = "left"
				case g.IsAdmin(w.Identity.XPub):
					role = "admin"
				}
				fmt.Fprintf(out, "%s %q (%s, %d members)\n", g.PublicKey, g.Name, role, len(g.Members))
				for _, m := range g.Members {
					fmt.Fprintf(out, "    %s %s%s\n", crypto.Fingerprint(m), m, adminMark(g, m))
				}
			}
			return nil
		},
	}
}

func adminMark(g domain.GroupMetadata, k domain.X25519Public) string {
	if g.IsAdmin(k) {
		return " (admin)"
	}
	return ""
}
