package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StaticSource serves records held in memory.
type StaticSource []Record

// Records returns the records.
func (s StaticSource) Records(ctx context.Context) ([]Record, error) {
	return append([]Record(nil), s...), nil
}

// FileSource reads a JSON array of records from disk.
type FileSource struct {
	Path string
}

// Records reads and parses the file.
func (f FileSource) Records(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	return records, nil
}

// PostgresSource reads records stored as JSON documents in a cards table
// with columns (card_id text, definition jsonb).
type PostgresSource struct {
	Pool  *pgxpool.Pool
	Table string
}

// NewPostgresSource connects a pool to databaseURL.
func NewPostgresSource(ctx context.Context, databaseURL string, maxConns int32) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresSource{Pool: pool, Table: "cards"}, nil
}

func (p *PostgresSource) table() string {
	table := p.Table
	if table == "" {
		table = "cards"
	}
	return pgx.Identifier{table}.Sanitize()
}

// EnsureTable creates the cards table when it does not exist.
func (p *PostgresSource) EnsureTable(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		card_id    text PRIMARY KEY,
		definition jsonb NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`, p.table()))
	if err != nil {
		return fmt.Errorf("create cards table: %w", err)
	}
	return nil
}

// Import upserts the records in batches of batchSize, one transaction per
// batch. It returns how many records were written before the first failure.
func (p *PostgresSource) Import(ctx context.Context, records []Record, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	query := fmt.Sprintf(`INSERT INTO %s (card_id, definition, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (card_id) DO UPDATE SET definition = EXCLUDED.definition, updated_at = now()`, p.table())

	imported := 0
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := &pgx.Batch{}
		for _, rec := range records[start:end] {
			definition, err := json.Marshal(rec)
			if err != nil {
				return imported, fmt.Errorf("encode card %s: %w", rec.ID, err)
			}
			batch.Queue(query, rec.ID, definition)
		}
		err := pgx.BeginFunc(ctx, p.Pool, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, batch).Close()
		})
		if err != nil {
			return imported, fmt.Errorf("import cards %d-%d: %w", start, end-1, err)
		}
		imported = end
	}
	return imported, nil
}

// Records queries every definition ordered by card id.
func (p *PostgresSource) Records(ctx context.Context) ([]Record, error) {
	rows, err := p.Pool.Query(ctx, fmt.Sprintf("SELECT card_id, definition FROM %s ORDER BY card_id", p.table()))
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var id string
		var definition []byte
		if err := rows.Scan(&id, &definition); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(definition, &rec); err != nil {
			return nil, fmt.Errorf("decode card %s: %w", id, err)
		}
		if rec.ID == "" {
			rec.ID = id
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return records, nil
}

// Close releases the pool.
func (p *PostgresSource) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}
