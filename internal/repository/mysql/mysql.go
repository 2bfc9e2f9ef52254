// Package mysql stores queue state in MySQL with hand-written SQL over
// database/sql, one row per job.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"docbatch/internal/queue"
	"docbatch/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS ` + repository.Table + ` (
  id         VARCHAR(64) NOT NULL PRIMARY KEY,
  position   INT         NOT NULL,
  status     VARCHAR(16) NOT NULL,
  priority   VARCHAR(16) NOT NULL,
  data       LONGBLOB    NOT NULL,
  updated_at DATETIME(6) NOT NULL,
  INDEX idx_position (position)
)`

// NormalizeDSN turns on the options the store depends on.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

// Open connects, pings and creates the table when missing.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	dsn, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s: %w", repository.Table, err)
	}
	return db, nil
}

type StateStore struct {
	DB *sql.DB
}

func NewStateStore(db *sql.DB) *StateStore {
	return &StateStore{DB: db}
}

func (s *StateStore) Load(ctx context.Context) (queue.State, error) {
	query := `SELECT id, position, status, priority, data FROM ` + repository.Table + ` ORDER BY position`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return queue.State{}, fmt.Errorf("load %s: %w", repository.Table, err)
	}
	defer rows.Close()

	var out []repository.Row
	for rows.Next() {
		var r repository.Row
		if err := rows.Scan(&r.ID, &r.Position, &r.Status, &r.Priority, &r.Data); err != nil {
			return queue.State{}, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return queue.State{}, err
	}
	return repository.StateFromRows(out)
}

// Save replaces the table contents in one transaction.
func (s *StateStore) Save(ctx context.Context, state queue.State) error {
	rows, err := repository.Rows(state)
	if err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+repository.Table); err != nil {
		return err
	}
	insert := `INSERT INTO ` + repository.Table + ` (id, position, status, priority, data, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC().Round(time.Microsecond)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, insert, r.ID, r.Position, r.Status, r.Priority, r.Data, now); err != nil {
			return fmt.Errorf("insert job %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}
