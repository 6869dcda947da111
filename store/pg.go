package store

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore keeps sheets in a single Postgres table, one row per cell. It is
// selected by configuring a DSN; the file store remains the default.
type PGStore struct {
	db *sql.DB
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS sheet_cells (
	sheet    text NOT NULL,
	cell     text NOT NULL,
	contents text NOT NULL,
	PRIMARY KEY (sheet, cell)
)`

func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PGStore{db: db}, nil
}

func (p *PGStore) Close() error {
	return p.db.Close()
}

func (p *PGStore) Save(name string, cells map[string]string) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sheet_cells WHERE sheet = $1`, name); err != nil {
		return fmt.Errorf("clear sheet %s: %w", name, err)
	}
	for cell, contents := range cells {
		if _, err := tx.Exec(
			`INSERT INTO sheet_cells (sheet, cell, contents) VALUES ($1, $2, $3)`,
			name, cell, contents,
		); err != nil {
			return fmt.Errorf("insert %s!%s: %w", name, cell, err)
		}
	}
	return tx.Commit()
}

func (p *PGStore) LoadAll() (map[string]map[string]string, error) {
	rows, err := p.db.Query(`SELECT sheet, cell, contents FROM sheet_cells`)
	if err != nil {
		return nil, fmt.Errorf("load sheets: %w", err)
	}
	defer rows.Close()

	sheets := make(map[string]map[string]string)
	for rows.Next() {
		var sheet, cell, contents string
		if err := rows.Scan(&sheet, &cell, &contents); err != nil {
			return nil, err
		}
		if sheets[sheet] == nil {
			sheets[sheet] = make(map[string]string)
		}
		sheets[sheet][cell] = contents
	}
	return sheets, rows.Err()
}
