package migrations

import (
	"context"
	"fmt"

	"fee-lottery/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded winner-ledger schema.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := loadSQL(postgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, err := pool.Exec(ctx, f.body); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
	}
	return nil
}
