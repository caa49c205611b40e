package tracker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sent_leads (
	person_id     TEXT PRIMARY KEY,
	first_sent_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tracker_meta (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	last_updated TEXT NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (IDSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT person_id FROM sent_leads`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query sent leads")
	}
	defer rows.Close() //nolint:errcheck

	ids := IDSet{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sent lead")
		}
		ids.Add(id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate sent leads")
}

// Save inserts every id of the union in one transaction. Ids already present
// keep their original first_sent_at.
func (s *SQLiteStore) Save(ctx context.Context, previous, newIDs IDSet) error {
	ts := now().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO sent_leads (person_id, first_sent_at) VALUES (?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, id := range previous.Union(newIDs).Sorted() {
		if _, err := stmt.ExecContext(ctx, id, ts); err != nil {
			return eris.Wrapf(err, "sqlite: insert sent lead %s", id)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tracker_meta (id, last_updated) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET last_updated = excluded.last_updated`,
		ts,
	); err != nil {
		return eris.Wrap(err, "sqlite: update tracker meta")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save")
}

func (s *SQLiteStore) Status(ctx context.Context) (*Status, error) {
	st := &Status{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sent_leads`).Scan(&st.Count); err != nil {
		return nil, eris.Wrap(err, "sqlite: count sent leads")
	}

	var ts string
	err := s.db.QueryRowContext(ctx, `SELECT last_updated FROM tracker_meta WHERE id = 1`).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read tracker meta")
	}
	if parsed, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
		st.LastUpdated = parsed
	}
	return st, nil
}
