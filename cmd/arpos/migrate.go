package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/arpositioning/internal/db"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session journal schema",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Journal database (default: database_path from config)")

	open := func() (*db.DB, error) {
		path := dbPath
		if path == "" {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return nil, err
			}
			path = cfg.GetDatabasePath()
		}
		if path == "" {
			return nil, errors.New("no journal database: pass --db or set database_path")
		}
		raw, err := db.OpenRaw(path)
		if err != nil {
			return nil, err
		}
		return &db.DB{DB: raw}, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()
			if err := database.MigrateUp(); err != nil {
				return err
			}
			return printVersion(cmd, database)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()
			if err := database.MigrateDown(); err != nil {
				return err
			}
			return printVersion(cmd, database)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()
			return printVersion(cmd, database)
		},
	})
	return cmd
}

func printVersion(cmd *cobra.Command, database *db.DB) error {
	v, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", v, state)
	return err
}
