package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/andreyvit/zedb"
	"github.com/andreyvit/zedb/journal"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Redis   string
	Bolt    string
	Schema  string
	Journal string
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// envOverrides maps persistent flags to the environment variables that
// supply them when the flag is not given explicitly.
var envOverrides = map[string]string{
	"redis":   "ZEDB_REDIS",
	"bolt":    "ZEDB_BOLT",
	"schema":  "ZEDB_SCHEMA",
	"journal": "ZEDB_JOURNAL",
	"verbose": "ZEDB_VERBOSE",
}

// NewRootCommand creates the root command for the zedb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "zedb",
		Short: "zedb - inspect and maintain indexed entities",
		Long: `Inspect and maintain entities stored by zedb in Redis or a bbolt file.

Entity types are read from a YAML schema file. Every global flag can also be
set via its ZEDB_* environment variable; explicit flags win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyEnv(cmd.Flags()); err != nil {
				return err
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Redis, "redis", "", "Redis URL, e.g. redis://localhost:6379/0")
	cmd.PersistentFlags().StringVar(&opts.Bolt, "bolt", "", "path to a bbolt database file (instead of Redis)")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "schema.yaml", "YAML file declaring entity types")
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", "", "directory of the change journal; saves and deletes are appended to it")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every store operation")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))

	return cmd
}

func applyEnv(flags *pflag.FlagSet) error {
	for name, env := range envOverrides {
		f := flags.Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		v, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		if err := f.Value.Set(v); err != nil {
			return fmt.Errorf("%s=%q: %w", env, v, err)
		}
	}
	return nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// session is an open database plus the schema registry and, optionally, the
// change journal.
type session struct {
	DB      *zedb.DB
	Schema  *zedb.Registry
	Journal *journal.Journal
}

func (s *session) Close() error {
	err := s.DB.Close()
	if s.Journal != nil {
		err = errors.Join(err, s.Journal.Close())
	}
	return err
}

func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	reg, err := zedb.LoadSchemasYAML(opts.Schema)
	if err != nil {
		return nil, err
	}

	var store zedb.Store
	switch {
	case opts.Bolt != "":
		store, err = zedb.OpenBoltStore(opts.Bolt)
	case opts.Redis != "":
		store, err = zedb.DialRedis(opts.Redis)
	default:
		err = errors.New("no store: pass --redis or --bolt (or set ZEDB_REDIS / ZEDB_BOLT)")
	}
	if err != nil {
		return nil, err
	}

	logger := newLogger(opts, cmd)
	dbOpts := zedb.Options{
		Logger:  logger,
		Verbose: opts.Verbose,
	}
	var jrnl *journal.Journal
	if opts.Journal != "" {
		jrnl, err = openJournal(opts, logger)
		if err != nil {
			closeStore(store)
			return nil, err
		}
		dbOpts.OnChange = jrnl.OnChange
	}

	db, err := zedb.Open(store, dbOpts)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	return &session{DB: db, Schema: reg, Journal: jrnl}, nil
}

func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func openJournal(opts *RootOptions, logger *slog.Logger) (*journal.Journal, error) {
	return journal.Open(opts.Journal, journal.Options{
		FileName: journalFileName,
		Logger:   logger,
		Verbose:  opts.Verbose,
	})
}

const journalFileName = "changes-*.wal"

func closeStore(store zedb.Store) {
	if c, ok := store.(io.Closer); ok {
		c.Close()
	}
}

func (s *session) entityType(name string) (*zedb.EntityType, error) {
	et := s.Schema.Type(name)
	if et == nil {
		return nil, fmt.Errorf("unknown entity type %q", name)
	}
	return et, nil
}

// entityTypes resolves names, or returns every declared type if names is
// empty.
func (s *session) entityTypes(names []string) ([]*zedb.EntityType, error) {
	if len(names) == 0 {
		return s.Schema.Types(), nil
	}
	result := make([]*zedb.EntityType, 0, len(names))
	for _, name := range names {
		et, err := s.entityType(name)
		if err != nil {
			return nil, err
		}
		result = append(result, et)
	}
	return result, nil
}

// parseValue converts a command-line value to the field's type. "<nil>"
// stands for an unset field.
func parseValue(et *zedb.EntityType, field, s string) (any, error) {
	if s == nilLiteral {
		return nil, nil
	}
	f := et.Field(field)
	if f == nil || f.Type() != zedb.TypeInt {
		return s, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not an integer", field, s)
	}
	return n, nil
}

const nilLiteral = "<nil>"
