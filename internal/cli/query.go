package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type queryOptions struct {
	OrderBy string
	Limit   int
	Offset  int
	IDsOnly bool
}

func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <type> [field=value[,value...]]...",
		Short: "Find entities by indexed field values",
		Long: `Find entities by indexed field values. Multiple values for one field
(comma-separated) match any of them; conditions on different fields must all
match. Use <nil> to match entities on which the field is unset.`,
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
			q := s.DB.Query(et)
			for _, arg := range args[1:] {
				name, raw, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("invalid condition %q, expected field=value", arg)
				}
				var values []any
				for _, part := range strings.Split(raw, ",") {
					v, err := parseValue(et, name, part)
					if err != nil {
						return err
					}
					values = append(values, v)
				}
				if len(values) == 1 {
					q.Filter(name, values[0])
				} else {
					q.Filter(name, values)
				}
			}
			if opts.OrderBy != "" {
				q.OrderBy(opts.OrderBy)
			}
			if opts.Limit >= 0 {
				q.Limit(opts.Limit)
			}
			q.Offset(opts.Offset)

			w := cmd.OutOrStdout()
			if opts.IDsOnly {
				ids, err := q.IDs(cmd.Context())
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return printJSON(w, ids)
				}
				for _, id := range ids {
					fmt.Fprintln(w, id)
				}
				return nil
			}
			for e, err := range q.Iter(cmd.Context()) {
				if err != nil {
					return err
				}
				if err := printEntity(w, rootOpts.Format, e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.OrderBy, "order", "o", "", "order by field, prefix with - for descending")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", -1, "maximum number of results (-1 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of results to skip")
	cmd.Flags().BoolVar(&opts.IDsOnly, "ids", false, "print identifiers only")
	return cmd
}
