package watchlist

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore keeps the watchlist in the watchlist table (see db.RunMigrations).
type PostgresStore struct {
	DB *sql.DB
}

func (p *PostgresStore) Load(ctx context.Context) ([]string, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT login FROM watchlist ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var logins []string
	for rows.Next() {
		var login string
		if err := rows.Scan(&login); err != nil {
			return nil, fmt.Errorf("scan watchlist: %w", err)
		}
		logins = append(logins, login)
	}
	return logins, rows.Err()
}

// Save replaces all rows in one transaction.
func (p *PostgresStore) Save(ctx context.Context, logins []string) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin watchlist tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM watchlist`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear watchlist: %w", err)
	}
	for i, login := range logins {
		if _, err := tx.ExecContext(ctx, `INSERT INTO watchlist (position, login) VALUES ($1, $2)`, i, login); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert watchlist %s: %w", login, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit watchlist: %w", err)
	}
	return nil
}
