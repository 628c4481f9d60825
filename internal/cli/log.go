package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var since uint64
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the change journal",
		Long: `Print the saves and deletes recorded in the change journal (--journal),
oldest first. Deletions show the values that were deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.Journal == "" {
				return errors.New("no journal: pass --journal (or set ZEDB_JOURNAL)")
			}
			jrnl, err := openJournal(rootOpts, newLogger(rootOpts, cmd))
			if err != nil {
				return err
			}
			defer jrnl.Close()

			w := cmd.OutOrStdout()
			for e, err := range jrnl.Entries() {
				if err != nil {
					return err
				}
				if e.Seq <= since {
					continue
				}
				if rootOpts.Format == "json" {
					if err := printJSON(w, e); err != nil {
						return err
					}
					continue
				}
				values, err := json.Marshal(e.Values)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "#%d %s %s %s %s\n", e.Seq, e.Time.Format(time.RFC3339), e.Op, e.StoreKey(), values)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&since, "since", 0, "skip records up to this sequence number")
	return cmd
}
