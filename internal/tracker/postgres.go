package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore; pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects to connString and verifies the connection.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sent_leads (
	person_id     TEXT PRIMARY KEY,
	first_sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tracker_meta (
	id           INT PRIMARY KEY CHECK (id = 1),
	last_updated TIMESTAMPTZ NOT NULL
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (IDSet, error) {
	rows, err := s.pool.Query(ctx, `SELECT person_id FROM sent_leads`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query sent leads")
	}
	defer rows.Close()

	ids := IDSet{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sent lead")
		}
		ids.Add(id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate sent leads")
}

func (s *PostgresStore) Save(ctx context.Context, previous, newIDs IDSet) error {
	ids := previous.Union(newIDs).Sorted()
	ts := now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save")
	}

	if err := saveTx(ctx, tx, ids, ts); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save")
}

func saveTx(ctx context.Context, tx pgx.Tx, ids []string, ts time.Time) error {
	if len(ids) > 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO sent_leads (person_id, first_sent_at)
			 SELECT unnest($1::text[]), $2
			 ON CONFLICT (person_id) DO NOTHING`,
			ids, ts,
		); err != nil {
			return eris.Wrap(err, "postgres: insert sent leads")
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO tracker_meta (id, last_updated) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET last_updated = EXCLUDED.last_updated`,
		ts,
	); err != nil {
		return eris.Wrap(err, "postgres: update tracker meta")
	}
	return nil
}

func (s *PostgresStore) Status(ctx context.Context) (*Status, error) {
	st := &Status{}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sent_leads`).Scan(&st.Count); err != nil {
		return nil, eris.Wrap(err, "postgres: count sent leads")
	}

	err := s.pool.QueryRow(ctx, `SELECT last_updated FROM tracker_meta WHERE id = 1`).Scan(&st.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read tracker meta")
	}
	return st, nil
}
