package receipt

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// Listener observes emitted receipts after persistence. A panic in a
// listener is recovered; emission never fails because of an observer.
type Listener func(model.Receipt)

// Emitter finalizes and persists receipts: identifiers, timestamps,
// per-trace parent linkage, hashing, optional signing.
type Emitter struct {
	store Store
	log   *zap.Logger
	tier  model.ProofTier
	kp    *KeyPair

	mu        sync.Mutex
	lastHash  map[string]string
	listeners []Listener
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithSigning signs every emitted receipt and raises the default proof
// tier to court.
func WithSigning(kp KeyPair) EmitterOption {
	return func(e *Emitter) {
		e.kp = &kp
		e.tier = model.TierCourt
	}
}

// WithProofTier overrides the default proof tier stamped on receipts.
func WithProofTier(tier model.ProofTier) EmitterOption {
	return func(e *Emitter) { e.tier = tier }
}

// NewEmitter creates an Emitter writing to store. A nil logger disables
// logging.
func NewEmitter(store Store, log *zap.Logger, opts ...EmitterOption) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Emitter{
		store:    store,
		log:      log,
		tier:     model.TierCore,
		lastHash: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers a listener for receipts emitted after this call.
func (e *Emitter) Subscribe(l Listener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

// LastHash returns the hash of the most recent receipt on a trace, or ""
// for a fresh trace.
func (e *Emitter) LastHash(traceID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastHash[traceID]
}

// Emit finalizes r in place and persists it. Missing identifier,
// timestamp, proof tier, and receipt type are filled in; denials default
// to the refusal type. The receipt is linked to its trace predecessor
// through parent_hashes, sealed, and signed when a key is configured.
func (e *Emitter) Emit(r *model.Receipt) error {
	if r.ReceiptID == "" {
		r.ReceiptID = uuid.NewString()
	}
	if r.Timestamp == "" {
		r.Timestamp = model.UTCNow()
	}
	if r.ProofTier == "" {
		r.ProofTier = e.tier
	}
	if r.ReceiptType == "" {
		switch r.Decision.Result {
		case model.Deny, model.RequireApproval:
			// Both refuse execution; require_approval refuses until a
			// grant is recorded.
			r.ReceiptType = model.TypeRefusal
		default:
			r.ReceiptType = model.TypeDecision
		}
	}

	e.mu.Lock()
	if parent := e.lastHash[r.TraceID]; parent != "" && !hasParent(r, parent) {
		r.ParentHashes = append(r.ParentHashes, parent)
	}
	if err := Seal(r); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("receipt: seal: %w", err)
	}
	if e.kp != nil {
		if err := Sign(r, *e.kp); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	// Append before recording the hash: a failed write must not become
	// the parent of the next receipt on this trace, or the persisted log
	// would reference a receipt that was never stored.
	if err := e.store.Append(r); err != nil {
		e.mu.Unlock()
		return err
	}
	e.lastHash[r.TraceID] = r.ReceiptHash
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	e.log.Info("receipt emitted",
		zap.String("receipt_id", r.ReceiptID),
		zap.String("receipt_type", r.ReceiptType),
		zap.String("trace_id", r.TraceID),
		zap.String("result", string(r.Decision.Result)),
	)

	for _, l := range listeners {
		e.notify(l, *r)
	}
	return nil
}

func hasParent(r *model.Receipt, hash string) bool {
	for _, p := range r.ParentHashes {
		if p == hash {
			return true
		}
	}
	return false
}

func (e *Emitter) notify(l Listener, r model.Receipt) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("receipt listener panicked",
				zap.Any("panic", rec),
				zap.String("receipt_id", r.ReceiptID),
			)
		}
	}()
	l(r)
}
