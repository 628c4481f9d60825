package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/zedb"
)

func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <identifier>",
		Short: "Load one entity by identifier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			et, err := s.entityType(args[0])
			if err != nil {
				return err
			}
			e, err := s.DB.Load(cmd.Context(), et, args[1])
			if err != nil {
				return err
			}
			if e == nil {
				return fmt.Errorf("%s not found", zedb.StoreKey(et, args[1]))
			}
			return printEntity(cmd.OutOrStdout(), rootOpts.Format, e)
		},
	}
}

func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <type> <field=value>...",
		Short: "Create or overwrite an entity",
		Long: `Create or overwrite an entity from field=value pairs. Integer fields are
parsed as integers; auto-generated fields are assigned on first save.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			et, err := s.entityType(args[0])
			if err != nil {
				return err
			}
			vals := make(zedb.Values)
			for _, arg := range args[1:] {
				name, raw, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("invalid argument %q, expected field=value", arg)
				}
				v, err := parseValue(et, name, raw)
				if err != nil {
					return err
				}
				if v != nil {
					vals[name] = v
				}
			}
			e, err := et.New(vals)
			if err != nil {
				return err
			}
			if err := s.DB.Save(cmd.Context(), e); err != nil {
				return err
			}
			return printEntity(cmd.OutOrStdout(), rootOpts.Format, e)
		},
	}
}

func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <identifier>",
		Short: "Delete one entity and its index entries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			et, err := s.entityType(args[0])
			if err != nil {
				return err
			}
			ok, err := s.DB.DeleteByID(cmd.Context(), et, args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s not found", zedb.StoreKey(et, args[1]))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", zedb.StoreKey(et, args[1]))
			return nil
		},
	}
}
