// Package main provides the Grafeo admin CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grafeo-db/grafeo/config"
	"github.com/grafeo-db/grafeo/session"
)

// Exit codes per spec §6: 0 success, 1 operational failure (validate
// detected inconsistency, backup refused), 2 usage error.
const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

var (
	flagPath       string
	flagConfigFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "grafeo",
		Short:         "Grafeo admin CLI",
		Long:          "grafeo is the administrative command-line tool for a Grafeo graph database: open a database, inspect it, validate it, and checkpoint it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagPath, "path", "", "database directory (GRAFEO_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "grafeo.yaml configuration file")

	rootCmd.AddCommand(
		newInfoCmd(),
		newStatsCmd(),
		newSchemaCmd(),
		newValidateCmd(),
		newWALCmd(),
		newSaveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		if uerr, ok := err.(*usageError); ok {
			fmt.Fprintln(os.Stderr, uerr.Error())
			os.Exit(exitUsage)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitFailure)
	}
}

// usageError marks an error that should exit 2 (bad arguments) rather than
// 1 (the admin operation ran and found a problem).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// openDatabase loads Options from --config (if given) and overlays
// environment variables and --path, then opens the database, following the
// teacher's "config file as base, env/flags as overrides" layering
// (cmd/nornicdb/main.go's config.DataDir assignment pattern, generalized).
func openDatabase() (*session.Database, error) {
	var base *config.Options
	if flagConfigFile != "" {
		loaded, err := config.LoadFile(flagConfigFile)
		if err != nil {
			return nil, err
		}
		base = loaded
	}

	opts, err := config.LoadFromEnv(base)
	if err != nil {
		return nil, err
	}
	if flagPath != "" {
		opts.Path = flagPath
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return session.Open(opts)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print database mode, counts, and persistence state",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			return printJSON(db.NewSession().Info())
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print detailed arena and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			return printJSON(db.NewSession().DetailedStats())
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print labels, edge types, property keys, constraints, and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			return printJSON(db.NewSession().Schema())
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Walk all live records and verify invariants 1 and 2 (3-5 are not checked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			report := db.NewSession().Validate()
			if err := printJSON(report); err != nil {
				return err
			}
			if !report.OK {
				return fmt.Errorf("validation found %d violation(s)", len(report.Violations))
			}
			return nil
		},
	}
}

func newWALCmd() *cobra.Command {
	walCmd := &cobra.Command{
		Use:   "wal",
		Short: "WAL status and checkpoint operations",
	}
	walCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the WAL's current sequence and checkpoint watermark",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			status, err := db.NewSession().WALStatus()
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	})
	walCmd.AddCommand(&cobra.Command{
		Use:   "checkpoint",
		Short: "Force an immediate checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			return db.NewSession().WALCheckpoint()
		},
	})
	return walCmd
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save [path]",
		Short: "Save the database's live contents as a Neo4j-compatible interchange file",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return &usageError{msg: "save requires exactly one path argument"}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			return db.NewSession().Save(args[0])
		},
	}
}
