package receipt

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// SQLiteStore persists receipts in a SQLite database, queryable by trace.
// The full receipt is stored as its JSON body; indexed columns are
// duplicated for querying only.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a receipt database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("receipt: open sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS receipts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		receipt_id TEXT NOT NULL UNIQUE,
		receipt_type TEXT NOT NULL,
		trace_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		result TEXT NOT NULL,
		receipt_hash TEXT NOT NULL,
		body JSON NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_receipts_trace ON receipts(trace_id);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("receipt: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(r *model.Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("receipt: marshal: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO receipts (receipt_id, receipt_type, trace_id, ts, result, receipt_hash, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ReceiptID, r.ReceiptType, r.TraceID, r.Timestamp, string(r.Decision.Result), r.ReceiptHash, string(body),
	)
	if err != nil {
		return fmt.Errorf("receipt: insert %s: %w", r.ReceiptID, err)
	}
	return nil
}

func (s *SQLiteStore) List(traceID string) ([]model.Receipt, error) {
	query := `SELECT body FROM receipts ORDER BY seq`
	args := []any{}
	if traceID != "" {
		query = `SELECT body FROM receipts WHERE trace_id = ? ORDER BY seq`
		args = append(args, traceID)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("receipt: query: %w", err)
	}
	defer rows.Close()

	var out []model.Receipt
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("receipt: scan: %w", err)
		}
		var r model.Receipt
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("receipt: parse stored body: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("receipt: iterate: %w", err)
	}
	return out, nil
}

// Get returns one receipt by its identifier.
func (s *SQLiteStore) Get(receiptID string) (*model.Receipt, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM receipts WHERE receipt_id = ?`, receiptID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("receipt: %s not found", receiptID)
	}
	if err != nil {
		return nil, fmt.Errorf("receipt: get %s: %w", receiptID, err)
	}
	var r model.Receipt
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("receipt: parse stored body: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
