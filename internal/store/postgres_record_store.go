package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
)

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRecordStore upserts records into a single table keyed by natural key.
type PostgresRecordStore struct {
	db    pgExecer
	table string
}

// OpenPostgresPool parses dsn and opens a pool capped at maxConns.
// viaBouncer switches to the simple protocol for PgBouncer transaction pooling.
func OpenPostgresPool(ctx context.Context, dsn string, maxConns int, viaBouncer bool) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg dsn parse: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)
	if viaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	return pool, nil
}

// NewPostgresRecordStore writes to table, given as "name" or "schema.name".
func NewPostgresRecordStore(db pgExecer, table string) *PostgresRecordStore {
	return &PostgresRecordStore{db: db, table: quoteTable(table)}
}

func quoteTable(table string) string {
	parts := strings.SplitN(strings.TrimSpace(table), ".", 2)
	return pgx.Identifier(parts).Sanitize()
}

// EnsureSchema creates the records table if it does not exist.
func (s *PostgresRecordStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		key        TEXT PRIMARY KEY,
		job_id     TEXT NOT NULL,
		source     TEXT NOT NULL,
		fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
		fetched_at TIMESTAMPTZ NOT NULL
	)`)
	return err
}

// Put inserts rec or overwrites the row with the same key. fetched_at keeps
// the time of the first insert.
func (s *PostgresRecordStore) Put(ctx context.Context, rec models.Record) error {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return crawler.Permanent(err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO `+s.table+` (key, job_id, source, fields, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			source = EXCLUDED.source,
			fields = EXCLUDED.fields`,
		rec.Key, rec.JobID, rec.Source, payload, rec.FetchedAt,
	)
	return classifyPgError(err)
}

// classifyPgError marks data exceptions (22), integrity violations (23) and
// syntax or access errors (42) as permanent.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return err
	}
	switch pgErr.Code[:2] {
	case "22", "23", "42":
		return crawler.Permanent(err)
	}
	return err
}
