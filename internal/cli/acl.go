package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davidthor/platctl/pkg/acl"
	"github.com/davidthor/platctl/pkg/identity"
)

type locationFlags struct {
	account    string
	fileSystem string
}

func (f *locationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.account, "account", "", "Storage account name (required)")
	cmd.Flags().StringVar(&f.fileSystem, "file-system", "", "File system (container) name (required)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("file-system")
}

func (f *locationFlags) at(path string) acl.Location {
	return acl.Location{Account: f.account, FileSystem: f.fileSystem, Path: path}
}

func newACLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acl",
		Short: "Manage data lake access control entries",
		Long:  "Grant, revoke and inspect ADLS Gen2 access control entries.\n\n" + principalHelp,
	}

	cmd.AddCommand(newACLShowCmd())
	cmd.AddCommand(newACLApplyCmd())
	cmd.AddCommand(newACLRemoveCmd())
	cmd.AddCommand(newACLGrantOwnersCmd())

	return cmd
}

func newACLShowCmd() *cobra.Command {
	var (
		loc          locationFlags
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "show <path>",
		Short: "List the named entries on a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(outputFormat); err != nil {
				return err
			}
			c, err := newComponents()
			if err != nil {
				return err
			}
			entries, err := c.Propagator.Entries(cmd.Context(), loc.at(args[0]))
			if err != nil {
				return err
			}

			if outputFormat == outputJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "TYPE\tPRINCIPAL\tPERMISSIONS\tNAME")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.PrincipalType, e.Principal, e.Permissions,
					c.Resolver.DisplayName(cmd.Context(), e.Principal))
			}
			return tw.Flush()
		},
	}
	loc.register(cmd)
	cmd.Flags().StringVarP(&outputFormat, "output", "o", outputTable, "Output format (table, json)")
	return cmd
}

func newACLApplyCmd() *cobra.Command {
	var (
		loc         locationFlags
		principal   string
		permissions string
		recursive   bool
	)

	cmd := &cobra.Command{
		Use:   "apply <path>",
		Short: "Grant a principal access to a path",
		Long: `Grant a principal access to a path. Existing entries for other principals are
kept; an existing entry for the same principal is replaced. With --recursive
the entry is applied to every descendant as well.`,
		Example: "  platctl acl apply /sales --account lake --file-system raw --principal email:ana@example.com --permissions r-x --recursive",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := identity.ParseRef(principal)
			if err != nil {
				return err
			}
			c, err := newComponents()
			if err != nil {
				return err
			}
			e, err := c.Propagator.Apply(cmd.Context(), loc.at(args[0]), ref, permissions, recursive)
			if err != nil {
				return err
			}
			scope := "path"
			if e.Recursive {
				scope = "path and descendants"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Granted %s:%s:%s on %s (%s)\n", e.PrincipalType, e.Principal, e.Permissions, e.Path, scope)
			return nil
		},
	}
	loc.register(cmd)
	cmd.Flags().StringVar(&principal, "principal", "", "Principal to grant (required)")
	cmd.Flags().StringVar(&permissions, "permissions", "r-x", "Permissions as rwx with - for absent bits")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Apply to descendants as well")
	_ = cmd.MarkFlagRequired("principal")
	return cmd
}

func newACLRemoveCmd() *cobra.Command {
	var (
		loc       locationFlags
		principal string
	)

	cmd := &cobra.Command{
		Use:   "remove <path>",
		Short: "Remove a principal's entry from a path and its descendants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := identity.ParseRef(principal)
			if err != nil {
				return err
			}
			c, err := newComponents()
			if err != nil {
				return err
			}
			if err := c.Propagator.Remove(cmd.Context(), loc.at(args[0]), ref); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", ref, args[0])
			return nil
		},
	}
	loc.register(cmd)
	cmd.Flags().StringVar(&principal, "principal", "", "Principal to remove (required)")
	_ = cmd.MarkFlagRequired("principal")
	return cmd
}

func newACLGrantOwnersCmd() *cobra.Command {
	var (
		app   string
		group string
	)

	cmd := &cobra.Command{
		Use:   "grant-owners",
		Short: "Make every user in a group an owner of an app registration",
		Long: `Make every direct user member of a group an owner of an app registration.
Members that are not users, including nested groups, are skipped.`,
		Example: "  platctl acl grant-owners --app app:reporting --group group:data-engineers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appRef, err := identity.ParseRef(app)
			if err != nil {
				return err
			}
			groupRef, err := identity.ParseRef(group)
			if err != nil {
				return err
			}
			c, err := newComponents()
			if err != nil {
				return err
			}
			n, err := c.Propagator.GrantOwnerToGroupMembers(cmd.Context(), appRef, groupRef)
			fmt.Fprintf(cmd.OutOrStdout(), "Granted ownership to %d users\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&app, "app", "", "App registration (required)")
	cmd.Flags().StringVar(&group, "group", "", "Group whose users become owners (required)")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}
