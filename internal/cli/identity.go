package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/davidthor/platctl/pkg/identity"
)

const principalHelp = `Principals are written <kind>:<value>. Kinds: object-id (id), email (user),
group, service-principal (sp), app-registration (app), current-user (me).`

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Resolve directory principals",
		Long:  "Resolve users, groups, service principals and app registrations.\n\n" + principalHelp,
	}

	cmd.AddCommand(newIdentityResolveCmd())
	cmd.AddCommand(newIdentityNameCmd())
	cmd.AddCommand(newIdentityMembersCmd())

	return cmd
}

func newIdentityResolveCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:     "resolve <principal>",
		Short:   "Resolve a principal to its object id",
		Example: "  platctl identity resolve email:ana@example.com\n  platctl identity resolve sp:reporting -o json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(outputFormat); err != nil {
				return err
			}
			ref, err := identity.ParseRef(args[0])
			if err != nil {
				return err
			}
			c, err := newComponents()
			if err != nil {
				return err
			}
			p, err := c.Resolver.ResolvePrincipal(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if outputFormat == outputJSON {
				return printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ObjectID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", outputTable, "Output format (table, json)")
	return cmd
}

func newIdentityNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name <object-id>",
		Short: "Print the display name of an object id",
		Long: `Print the display name of an object id, probing users, groups and service
principals in turn. Unknown ids print nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newComponents()
			if err != nil {
				return err
			}
			if name := c.Resolver.DisplayName(cmd.Context(), identity.ObjectID(args[0])); name != "" {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newIdentityMembersCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "members <group>",
		Short: "List the direct members of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(outputFormat); err != nil {
				return err
			}
			arg := args[0]
			if !strings.Contains(arg, ":") {
				arg = string(identity.KindGroup) + ":" + arg
			}
			ref, err := identity.ParseRef(arg)
			if err != nil {
				return err
			}
			c, err := newComponents()
			if err != nil {
				return err
			}
			members, err := c.Resolver.GroupMembers(cmd.Context(), ref)
			if err != nil {
				return err
			}

			if outputFormat == outputJSON {
				return printJSON(cmd.OutOrStdout(), members)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "OBJECT ID\tTYPE\tDISPLAY NAME")
			for _, m := range members {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ObjectID, m.ObjectType, m.DisplayName)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", outputTable, "Output format (table, json)")
	return cmd
}
