package anchor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// RecordStore persists anchor records for durable deployments. The manager
// treats it as write-through: the in-memory list stays authoritative for the
// current process.
type RecordStore interface {
	Append(ctx context.Context, rec Record) error
	ByHash(ctx context.Context, hash string) ([]Record, error)
	All(ctx context.Context) ([]Record, error)
}

// SQLiteRecordStore keeps anchor records in a local SQLite database.
type SQLiteRecordStore struct {
	db *sql.DB
}

// OpenSQLiteRecordStore opens (creating if needed) a record store at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLiteRecordStore(path string) (*SQLiteRecordStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	s := &SQLiteRecordStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteRecordStore wraps an existing database handle.
func NewSQLiteRecordStore(db *sql.DB) (*SQLiteRecordStore, error) {
	s := &SQLiteRecordStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRecordStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS anchor_records (
		tx_hash TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		chain TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		block_number INTEGER,
		metadata JSON
	);
	CREATE INDEX IF NOT EXISTS idx_anchor_records_hash ON anchor_records(hash);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("migrate record store: %w", err)
	}
	return nil
}

// Append inserts a record. Re-inserting the same txHash is a no-op, so
// re-importing an exported cache stays idempotent.
func (s *SQLiteRecordStore) Append(ctx context.Context, rec Record) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal record metadata: %w", err)
	}
	var block sql.NullInt64
	if rec.BlockNumber != nil {
		block = sql.NullInt64{Int64: int64(*rec.BlockNumber), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO anchor_records (tx_hash, hash, chain, timestamp, block_number, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.TxHash, rec.Hash, rec.Chain, rec.Timestamp, block, string(meta))
	if err != nil {
		return fmt.Errorf("append anchor record: %w", err)
	}
	return nil
}

// ByHash returns every stored record for a content hash, oldest first.
func (s *SQLiteRecordStore) ByHash(ctx context.Context, hash string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_hash, hash, chain, timestamp, block_number, metadata
		FROM anchor_records WHERE hash = ? ORDER BY timestamp ASC`, hash)
	if err != nil {
		return nil, fmt.Errorf("query anchor records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// All returns every stored record, oldest first.
func (s *SQLiteRecordStore) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_hash, hash, chain, timestamp, block_number, metadata
		FROM anchor_records ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("query anchor records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Close releases the underlying database handle.
func (s *SQLiteRecordStore) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			rec   Record
			block sql.NullInt64
			meta  sql.NullString
		)
		if err := rows.Scan(&rec.TxHash, &rec.Hash, &rec.Chain, &rec.Timestamp, &block, &meta); err != nil {
			return nil, fmt.Errorf("scan anchor record: %w", err)
		}
		if block.Valid {
			b := uint64(block.Int64)
			rec.BlockNumber = &b
		}
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode record metadata: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
