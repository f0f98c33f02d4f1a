// Package pgstore backs docstore.Store with a single PostgreSQL table of JSONB
// documents keyed by (collection, id). See internal/db/migrations for the schema.
package pgstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

var sqlOperators = map[docstore.Operator]string{
	docstore.OpLT:  "<",
	docstore.OpLTE: "<=",
	docstore.OpEQ:  "=",
	docstore.OpGTE: ">=",
	docstore.OpGT:  ">",
}

type Store struct {
	pool DBPool
}

func New(pool DBPool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `
		SELECT fields
		FROM documents
		WHERE collection=$1 AND id=$2
	`, collection, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, fmt.Errorf("select %s/%s: %w", collection, id, err)
	}
	fields, err := decodeFields(body)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return docstore.Document{ID: id, Fields: fields}, nil
}

func (s *Store) Insert(ctx context.Context, collection, id string, fields docstore.Fields) error {
	body, err := encodeFields(fields)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, fields)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO NOTHING
	`, collection, id, body)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	body, err := encodeFields(fields)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET fields = fields || $3::jsonb, updated_at = now()
		WHERE collection=$1 AND id=$2
	`, collection, id, body)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := docstore.ValidateFilter(filter); err != nil {
		return nil, err
	}
	op := sqlOperators[filter.Op]

	var sql string
	if _, ok := filter.Value.(string); ok {
		sql = fmt.Sprintf(`
			SELECT id, fields
			FROM documents
			WHERE collection=$1 AND fields->>$2 %s $3
			ORDER BY id
		`, op)
	} else {
		sql = fmt.Sprintf(`
			SELECT id, fields
			FROM documents
			WHERE collection=$1
			  AND CASE WHEN jsonb_typeof(fields->$2) = 'number' THEN (fields->>$2)::numeric END %s $3
			ORDER BY id
		`, op)
	}

	rows, err := s.pool.Query(ctx, sql, collection, filter.Field, filter.Value)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("query %s: scan: %w", collection, err)
		}
		fields, err := decodeFields(body)
		if err != nil {
			return nil, fmt.Errorf("query %s: decode %s: %w", collection, id, err)
		}
		docs = append(docs, docstore.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return docs, nil
}

// Adjust is a single conditional UPDATE. Postgres re-checks the WHERE clause
// against the latest row version after acquiring the row lock, so the floor
// holds under concurrent writers.
func (s *Store) Adjust(ctx context.Context, collection, id string, adj docstore.Adjustment) (int, error) {
	if err := docstore.ValidateAdjustment(adj); err != nil {
		return 0, err
	}
	set, err := encodeFields(adj.Set)
	if err != nil {
		return 0, err
	}
	var floor any
	if adj.Floor != nil {
		floor = int64(*adj.Floor)
	}

	var next int64
	err = s.pool.QueryRow(ctx, `
		UPDATE documents
		SET fields = jsonb_set(fields, ARRAY[$3::text], to_jsonb(COALESCE((fields->>$3)::bigint, 0) + $4::bigint)) || $5::jsonb,
		    updated_at = now()
		WHERE collection=$1 AND id=$2
		  AND ($6::bigint IS NULL OR COALESCE((fields->>$3)::bigint, 0) + $4::bigint >= $6::bigint)
		RETURNING (fields->>$3)::bigint
	`, collection, id, adj.Field, int64(adj.Delta), set, floor).Scan(&next)
	if err == nil {
		return int(next), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjust %s/%s: %w", collection, id, err)
	}

	var current int64
	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE((fields->>$3)::bigint, 0)
		FROM documents
		WHERE collection=$1 AND id=$2
	`, collection, id, adj.Field).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, docstore.ErrNotFound
		}
		return 0, fmt.Errorf("adjust %s/%s: read current: %w", collection, id, err)
	}
	return int(current), &docstore.BelowFloorError{Current: int(current)}
}

func encodeFields(fields docstore.Fields) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(body), nil
}

func decodeFields(body []byte) (docstore.Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	fields := docstore.Fields{}
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
