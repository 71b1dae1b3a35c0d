package main

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type dbAction func(ctx context.Context, db *sql.DB, logger *zap.Logger) error

func withDB(cmd *cobra.Command, action dbAction) error {
	a, err := newApp(cmd.Context(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	db, err := a.requireDB()
	if err != nil {
		return err
	}
	return action(cmd.Context(), db, logger)
}
