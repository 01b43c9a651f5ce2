package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/user/monitoring/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Open the database, creating it when missing and upgrading older schema
versions step by step. A failed upgrade leaves the database at its previous
version.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	switch v := db.Version(); {
	case v < storage.SchemaVersion:
		return errors.Errorf("database %s is still at schema version %d, upgrade to %d failed (see log)",
			cfg.DBPath, v, storage.SchemaVersion)
	case v > storage.SchemaVersion:
		fmt.Printf("Database %s has schema version %d, newer than supported version %d\n",
			cfg.DBPath, v, storage.SchemaVersion)
	default:
		fmt.Printf("Database %s is at schema version %d\n", cfg.DBPath, v)
	}
	return nil
}
