package receipt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// Store persists receipts in append order.
type Store interface {
	Append(r *model.Receipt) error
	// List returns receipts in append order; an empty traceID returns all.
	List(traceID string) ([]model.Receipt, error)
	Close() error
}

// OpenStore selects a backend by log path extension: ".db" and ".sqlite"
// open a SQLite database, anything else appends JSONL.
func OpenStore(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite":
		return NewSQLiteStore(path)
	}
	return NewFileStore(path)
}

// FileStore appends receipts to a single JSONL file, one per line.
type FileStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileStore opens (creating if needed) a JSONL receipt log.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("receipt: create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("receipt: open log %s: %w", path, err)
	}
	return &FileStore{path: path, f: f}, nil
}

func (s *FileStore) Append(r *model.Receipt) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("receipt: marshal: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("receipt: append: %w", err)
	}
	return s.f.Sync()
}

func (s *FileStore) List(traceID string) ([]model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadLog(s.path, traceID)
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// ReadLog parses a JSONL receipt log, optionally filtered by trace.
func ReadLog(path, traceID string) ([]model.Receipt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("receipt: open log %s: %w", path, err)
	}
	defer f.Close()

	var out []model.Receipt
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var r model.Receipt
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("receipt: parse line %d: %w", line, err)
		}
		if traceID != "" && r.TraceID != traceID {
			continue
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("receipt: scan log: %w", err)
	}
	return out, nil
}

// ReadDir loads every *.json receipt under dir (one receipt per file),
// ordered by timestamp then receipt ID.
func ReadDir(dir string) ([]model.Receipt, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("receipt: read dir %s: %w", dir, err)
	}
	var out []model.Receipt
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("receipt: read %s: %w", e.Name(), err)
		}
		var r model.Receipt
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("receipt: parse %s: %w", e.Name(), err)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ReceiptID < out[j].ReceiptID
	})
	return out, nil
}

// MemoryStore keeps receipts in memory, for tests and the demo flow.
type MemoryStore struct {
	mu       sync.Mutex
	receipts []model.Receipt
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(r *model.Receipt) error {
	s.mu.Lock()
	s.receipts = append(s.receipts, *r)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(traceID string) ([]model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Receipt
	for _, r := range s.receipts {
		if traceID == "" || r.TraceID == traceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
