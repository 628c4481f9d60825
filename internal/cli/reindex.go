package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [type...]",
		Short: "Rebuild indexes from stored records",
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
			for _, et := range types {
				n, err := s.DB.Reindex(cmd.Context(), et)
				if err != nil {
					return fmt.Errorf("%s: %w", et.Name(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: reindexed %d records\n", et.Name(), n)
			}
			return nil
		},
	}
}

func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [type...]",
		Short: "Count records, index entries and sequence values",
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
			w := cmd.OutOrStdout()
			for _, et := range types {
				st, err := s.DB.Stats(cmd.Context(), et)
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					if err := printJSON(w, map[string]any{"type": et.Name(), "stats": st}); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(w, "%s: records = %d, index_entries = %d", et.Name(), st.Records, st.IndexEntries)
				for _, f := range et.AutoFields() {
					fmt.Fprintf(w, ", seq.%s = %d", f.Name(), st.Sequences[f.Name()])
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
}
