package cli

import (
	"github.com/spf13/cobra"

	"github.com/andreyvit/zedb"
)

func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	var noEntries bool
	cmd := &cobra.Command{
		Use:   "dump [type...]",
		Short: "Print records, indexes and counters",
		Long: `Print the records, index sets and sequence counters of the given entity
types, or of every type declared in the schema.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			types, err := s.entityTypes(args)
			if err != nil {
				return err
			}
			flags := zedb.DumpAll
			if noEntries {
				flags &^= zedb.DumpIndexEntries
			}
			return s.DB.Dump(cmd.Context(), cmd.OutOrStdout(), flags, types...)
		},
	}
	cmd.Flags().BoolVar(&noEntries, "no-entries", false, "list index sets without their entries")
	return cmd
}
