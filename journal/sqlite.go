package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	seq  INTEGER PRIMARY KEY,
	id   TEXT NOT NULL,
	at   INTEGER NOT NULL,
	body BLOB NOT NULL,
	hash BLOB NOT NULL,
	UNIQUE(id)
);
`

// SQLiteStore keeps records in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the journal database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	// One writer; the journal is appended from a single serialized path.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var count uint64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return fmt.Errorf("count entries: %w", err)
	}
	if rec.Seq != count {
		return fmt.Errorf("%w: got %d, want %d", ErrSeqConflict, rec.Seq, count)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (seq, id, at, body, hash) VALUES (?, ?, ?, ?, ?)`,
		int64(rec.Seq), rec.ID, rec.At, rec.Body, rec.Hash,
	); err != nil {
		return fmt.Errorf("insert entry %d: %w", rec.Seq, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, id, at, body, hash FROM entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec Record
			seq int64
		)
		if err := rows.Scan(&seq, &rec.ID, &rec.At, &rec.Body, &rec.Hash); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		rec.Seq = uint64(seq)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
