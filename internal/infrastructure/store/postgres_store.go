package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ConnectPostgres opens and pings a PostgreSQL connection pool.
func ConnectPostgres(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// PostgresStore keeps one entity type per table with columns
// (partition, id, version, data jsonb, updated_at).
type PostgresStore[T Record] struct {
	db        *sql.DB
	table     string // quoted
	newRecord func() T
}

// NewPostgresStore creates a store over the given table. The table name is
// restricted to lower-case identifiers.
func NewPostgresStore[T Record](db *sql.DB, table string, newRecord func() T) (*PostgresStore[T], error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore[T]{
		db:        db,
		table:     pq.QuoteIdentifier(table),
		newRecord: newRecord,
	}, nil
}

// EnsureSchema creates the table when it does not exist yet.
func (s *PostgresStore[T]) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		partition  TEXT        NOT NULL,
		id         TEXT        NOT NULL,
		version    BIGINT      NOT NULL,
		data       JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (partition, id)
	)`, s.table))
	if err != nil {
		return backendErr("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore[T]) Get(ctx context.Context, partition, id string) (T, error) {
	var (
		zero    T
		version int64
		data    []byte
	)
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT version, data FROM %s WHERE partition = $1 AND id = $2`, s.table),
		partition, id,
	).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, backendErr("get %s/%s: %w", partition, id, err)
	}
	return decode(s.newRecord, data, version)
}

func (s *PostgresStore[T]) Insert(ctx context.Context, rec T) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (partition, id, version, data, updated_at)
			VALUES ($1, $2, 1, $3, now())
			ON CONFLICT (partition, id) DO NOTHING`, s.table),
		rec.PartitionKey(), rec.RowKey(), data,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrConflict
		}
		return backendErr("insert %s/%s: %w", rec.PartitionKey(), rec.RowKey(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return backendErr("insert %s/%s: %w", rec.PartitionKey(), rec.RowKey(), err)
	}
	if n == 0 {
		return ErrConflict
	}
	rec.SetVersion(1)
	return nil
}

func (s *PostgresStore[T]) Replace(ctx context.Context, rec T, expectedVersion int64) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET data = $1, version = version + 1, updated_at = now()
		WHERE partition = $2 AND id = $3`, s.table)
	args := []any{data, rec.PartitionKey(), rec.RowKey()}
	if expectedVersion != AnyVersion {
		query += ` AND version = $4`
		args = append(args, expectedVersion)
	}
	query += ` RETURNING version`

	var version int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the row is gone or someone else bumped the version.
		if _, getErr := s.Get(ctx, rec.PartitionKey(), rec.RowKey()); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionMismatch
	}
	if err != nil {
		return backendErr("replace %s/%s: %w", rec.PartitionKey(), rec.RowKey(), err)
	}
	rec.SetVersion(version)
	return nil
}

func (s *PostgresStore[T]) QueryByPartition(ctx context.Context, partition string) ([]T, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT version, data FROM %s WHERE partition = $1 ORDER BY id`, s.table),
		partition,
	)
	if err != nil {
		return nil, backendErr("query %s: %w", partition, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var (
			version int64
			data    []byte
		)
		if err := rows.Scan(&version, &data); err != nil {
			return nil, backendErr("scan %s: %w", partition, err)
		}
		rec, err := decode(s.newRecord, data, version)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore[T]) Delete(ctx context.Context, partition, id string) (DeleteResult, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE partition = $1 AND id = $2`, s.table),
		partition, id,
	)
	if err != nil {
		return 0, backendErr("delete %s/%s: %w", partition, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, backendErr("delete %s/%s: %w", partition, id, err)
	}
	if n == 0 {
		return DeleteNotFound, nil
	}
	return Deleted, nil
}
