package receipt

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.jsonl")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer store.Close()

	e := NewEmitter(store, nil)
	for i := 0; i < 3; i++ {
		trace := "trace-a"
		if i == 2 {
			trace = "trace-b"
		}
		if err := e.Emit(emitTestReceipt(trace, model.Allow)); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	all, err := store.List("")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d receipts, want 3", len(all))
	}

	traceA, err := store.List("trace-a")
	if err != nil {
		t.Fatalf("List trace-a: %v", err)
	}
	if len(traceA) != 2 {
		t.Errorf("trace-a has %d receipts, want 2", len(traceA))
	}

	// Persisted receipts must still re-hash and chain-verify.
	results := VerifyChain(traceA, nil)
	for i, res := range results {
		if !res.Valid() {
			t.Errorf("persisted receipt %d invalid: %v", i, res.Errors)
		}
	}
}

func TestOpenStoreSelectsBackendByExtension(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		path       string
		wantSQLite bool
	}{
		{"receipts.jsonl", false},
		{"receipts.log", false},
		{"receipts.db", true},
		{"receipts.sqlite", true},
		{"receipts.DB", true},
	}
	for _, c := range cases {
		t.Run(c.path, func(t *testing.T) {
			store, err := OpenStore(filepath.Join(dir, c.path))
			if err != nil {
				t.Fatalf("OpenStore: %v", err)
			}
			defer store.Close()
			_, isSQLite := store.(*SQLiteStore)
			if isSQLite != c.wantSQLite {
				t.Errorf("sqlite backend = %v, want %v", isSQLite, c.wantSQLite)
			}
		})
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	e := NewEmitter(store, nil)
	r := emitTestReceipt("trace-a", model.Deny)
	if err := e.Emit(r); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := e.Emit(emitTestReceipt("trace-b", model.Allow)); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	traceA, err := store.List("trace-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(traceA) != 1 || traceA[0].ReceiptID != r.ReceiptID {
		t.Fatalf("trace-a = %v", traceA)
	}
	if traceA[0].ReceiptType != model.TypeRefusal {
		t.Errorf("stored type = %s", traceA[0].ReceiptType)
	}

	got, err := store.Get(r.ReceiptID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ReceiptHash != r.ReceiptHash {
		t.Errorf("stored hash %s != emitted %s", got.ReceiptHash, r.ReceiptHash)
	}

	if _, err := store.Get("missing"); err == nil {
		t.Error("Get on unknown id should error")
	}
}

func TestReplaySummaryAndTimeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.jsonl")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer store.Close()

	e := NewEmitter(store, nil)
	if err := e.Emit(emitTestReceipt("trace-a", model.Allow)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := e.Emit(emitTestReceipt("trace-a", model.Deny)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := e.Emit(emitTestReceipt("trace-b", model.Allow)); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	result, err := Replay(path, ReplayFilter{TraceID: "trace-a"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if result.Summary.Total != 2 || result.Summary.AllowCount != 1 || result.Summary.DenyCount != 1 {
		t.Errorf("summary = %+v", result.Summary)
	}
	if result.Summary.FirstTimestamp == "" || result.Summary.LastTimestamp < result.Summary.FirstTimestamp {
		t.Errorf("timestamps out of order: %+v", result.Summary)
	}

	text := FormatTimeline(result)
	if !strings.Contains(text, "trace-a") {
		t.Errorf("timeline missing trace header:\n%s", text)
	}

	empty := FormatTimeline(&ReplayResult{TraceID: "none"})
	if !strings.Contains(empty, "No receipts") {
		t.Errorf("empty replay output: %q", empty)
	}
}
