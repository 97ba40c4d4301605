package receipt

import (
	"errors"
	"testing"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// flakyStore fails a configurable number of appends before delegating.
type flakyStore struct {
	*MemoryStore
	failures int
}

func (s *flakyStore) Append(r *model.Receipt) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Append(r)
}

func emitTestReceipt(traceID string, result model.DecisionResult) *model.Receipt {
	d := model.Allowed()
	if result == model.Deny {
		d = model.Denied(model.DenyNoPermission)
	}
	return &model.Receipt{
		TraceID:   traceID,
		Principal: model.Principal{Subject: "alice", ActorType: model.ActorUser},
		Method:    "tools/call",
		ToolName:  "fs_read",
		Decision:  d,
		TokenHandling: model.TokenHandling{
			Mode: model.TokenNone,
		},
	}
}

func TestEmitFillsIdentityAndSeals(t *testing.T) {
	store := NewMemoryStore()
	e := NewEmitter(store, nil)

	r := emitTestReceipt("trace-1", model.Allow)
	if err := e.Emit(r); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if r.ReceiptID == "" || r.Timestamp == "" {
		t.Error("emit must fill receipt_id and ts")
	}
	if r.ReceiptType != model.TypeDecision {
		t.Errorf("receipt_type = %s", r.ReceiptType)
	}
	if r.ProofTier != model.TierCore {
		t.Errorf("proof_tier = %s", r.ProofTier)
	}

	recomputed, err := HashReceipt(r)
	if err != nil || recomputed != r.ReceiptHash {
		t.Errorf("emitted receipt must be sealed: %v, %s vs %s", err, recomputed, r.ReceiptHash)
	}

	stored, err := store.List("trace-1")
	if err != nil || len(stored) != 1 {
		t.Fatalf("stored = %d receipts, err %v", len(stored), err)
	}
}

func TestEmitDenyUsesRefusalType(t *testing.T) {
	e := NewEmitter(NewMemoryStore(), nil)

	r := emitTestReceipt("trace-1", model.Deny)
	if err := e.Emit(r); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if r.ReceiptType != model.TypeRefusal {
		t.Errorf("denied receipt type = %s, want refusal", r.ReceiptType)
	}
	if !r.IsRefusal() {
		t.Error("denied receipt should report as refusal")
	}
}

func TestEmitLinksTracePredecessor(t *testing.T) {
	e := NewEmitter(NewMemoryStore(), nil)

	first := emitTestReceipt("trace-1", model.Allow)
	if err := e.Emit(first); err != nil {
		t.Fatalf("Emit first: %v", err)
	}
	if len(first.ParentHashes) != 0 {
		t.Errorf("first receipt of a trace has no parent, got %v", first.ParentHashes)
	}

	second := emitTestReceipt("trace-1", model.Allow)
	if err := e.Emit(second); err != nil {
		t.Fatalf("Emit second: %v", err)
	}
	if len(second.ParentHashes) != 1 || second.ParentHashes[0] != first.ReceiptHash {
		t.Errorf("second receipt parents = %v, want [%s]", second.ParentHashes, first.ReceiptHash)
	}

	// An unrelated trace starts a fresh chain.
	other := emitTestReceipt("trace-2", model.Allow)
	if err := e.Emit(other); err != nil {
		t.Fatalf("Emit other: %v", err)
	}
	if len(other.ParentHashes) != 0 {
		t.Errorf("fresh trace got parents %v", other.ParentHashes)
	}

	results := VerifyChain([]model.Receipt{*first, *second}, nil)
	for i, res := range results {
		if !res.Valid() {
			t.Errorf("receipt %d invalid after emit: %v", i, res.Errors)
		}
	}
}

func TestEmitFailedAppendDoesNotAdvanceChain(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	e := NewEmitter(store, nil)

	first := emitTestReceipt("trace-1", model.Allow)
	if err := e.Emit(first); err != nil {
		t.Fatalf("Emit first: %v", err)
	}
	store.failures = 1

	// The failed emission must leave no trace in the parent linkage.
	lost := emitTestReceipt("trace-1", model.Allow)
	if err := e.Emit(lost); err == nil {
		t.Fatal("Emit should surface the append failure")
	}
	if e.LastHash("trace-1") != first.ReceiptHash {
		t.Errorf("last hash = %s, want the last persisted receipt's", e.LastHash("trace-1"))
	}

	// The next receipt parents the persisted predecessor, never the lost
	// one, so the stored log still chain-verifies.
	third := emitTestReceipt("trace-1", model.Allow)
	if err := e.Emit(third); err != nil {
		t.Fatalf("Emit third: %v", err)
	}
	if len(third.ParentHashes) != 1 || third.ParentHashes[0] != first.ReceiptHash {
		t.Errorf("parents = %v, want [%s]", third.ParentHashes, first.ReceiptHash)
	}

	stored, err := store.List("trace-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for i, res := range VerifyChain(stored, nil) {
		if !res.Valid() {
			t.Errorf("stored receipt %d invalid: %v", i, res.Errors)
		}
	}
}

func TestEmitWithSigning(t *testing.T) {
	kp, err := GenerateKeyPair("emit-key")
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	e := NewEmitter(NewMemoryStore(), nil, WithSigning(kp))

	r := emitTestReceipt("trace-1", model.Allow)
	if err := e.Emit(r); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if r.ProofTier != model.TierCourt {
		t.Errorf("signed emitter should stamp court tier, got %s", r.ProofTier)
	}
	if r.Signature == nil || !VerifySignature(r, kp.Public) {
		t.Error("emitted receipt must carry a verifying signature")
	}
}

func TestEmitListenerPanicRecovered(t *testing.T) {
	e := NewEmitter(NewMemoryStore(), nil)

	var seen []string
	e.Subscribe(func(model.Receipt) { panic("boom") })
	e.Subscribe(func(r model.Receipt) { seen = append(seen, r.ReceiptID) })

	r := emitTestReceipt("trace-1", model.Allow)
	if err := e.Emit(r); err != nil {
		t.Fatalf("Emit must not fail on listener panic: %v", err)
	}
	if len(seen) != 1 {
		t.Errorf("later listener should still run, seen %v", seen)
	}
}
