package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores every collection in a single JSON documents table.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListAll(ctx context.Context, collection string) ([]Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ? ORDER BY seq`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return scanDocuments(rows)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, collection, id string) (Document, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	data, err := decodeData(raw)
	if err != nil {
		return Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return Document{ID: id, Data: data}, nil
}

func (r *SQLiteRepository) GetMany(ctx context.Context, collection string, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return []Document{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ? AND id IN (`+placeholders+`) ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("get many %s: %w", collection, err)
	}
	return scanDocuments(rows)
}

func (r *SQLiteRepository) QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	if !ValidField(field) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, data FROM documents
		 WHERE collection = ? AND json_extract(data, '$.' || ?) = ?
		 ORDER BY seq`, collection, field, value)
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	return scanDocuments(rows)
}

func (r *SQLiteRepository) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := NewID()
	raw, err := encodeData(data)
	if err != nil {
		return "", err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, seq, data)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents), ?)`,
		collection, id, raw)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}

	slog.DebugContext(ctx, "Document stored in SQLite", "collection", collection, "id", id)
	return id, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, collection, id string, data map[string]any) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, seq, data)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents), ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		collection, id, raw)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	raw, err := encodeData(patch)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET data = json_patch(data, ?), updated_at = CURRENT_TIMESTAMP
		 WHERE collection = ? AND id = ?`, raw, collection, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) Delete(ctx context.Context, collection, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	docs := make([]Document, 0)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	return docs, rows.Err()
}

func encodeData(data map[string]any) (string, error) {
	b, err := json.Marshal(CopyData(data))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(b), nil
}

func decodeData(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	data := make(map[string]any)
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}
