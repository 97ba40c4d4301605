package approval

import (
	"testing"
	"time"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestRequestAndCheck(t *testing.T) {
	s := newTestStore(t)

	if err := s.Request("alice", "shell_exec", model.RiskCritical, "risk over ceiling"); err != nil {
		t.Fatalf("Request: %v", err)
	}

	status, err := s.Check(Key("alice", "shell_exec"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusPending {
		t.Errorf("status = %s, want pending", status)
	}

	// Re-requesting is a no-op, not an error.
	if err := s.Request("alice", "shell_exec", model.RiskCritical, "again"); err != nil {
		t.Errorf("duplicate Request: %v", err)
	}
}

func TestApproveDenyLifecycle(t *testing.T) {
	s := newTestStore(t)
	key := Key("alice", "shell_exec")

	if err := s.Request("alice", "shell_exec", model.RiskCritical, ""); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := s.Approve(key, time.Hour); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if status, _ := s.Check(key); status != StatusApproved {
		t.Errorf("status = %s, want approved", status)
	}

	if err := s.Request("bob", "db_drop", model.RiskCritical, ""); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := s.Deny(Key("bob", "db_drop")); err != nil {
		t.Fatalf("Deny: %v", err)
	}
	if status, _ := s.Check(Key("bob", "db_drop")); status != StatusDenied {
		t.Errorf("status = %s, want denied", status)
	}
}

func TestApproveUnknownKeyFails(t *testing.T) {
	s := newTestStore(t)
	if err := s.Approve("nobody.notool", time.Hour); err == nil {
		t.Fatal("approving an unknown key should fail")
	}
}

func TestExpiry(t *testing.T) {
	s := newTestStore(t)
	key := Key("alice", "shell_exec")

	if err := s.Request("alice", "shell_exec", model.RiskCritical, ""); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := s.Approve(key, -time.Minute); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	status, err := s.Check(key)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusExpired {
		t.Errorf("status = %s, want expired", status)
	}
	if s.IsGranted("alice", "shell_exec") {
		t.Error("expired approval must not grant")
	}
}

func TestIsGrantedDoesNotConsume(t *testing.T) {
	s := newTestStore(t)
	key := Key("alice", "shell_exec")

	if err := s.Request("alice", "shell_exec", model.RiskCritical, ""); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := s.Approve(key, 0); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// Checking membership any number of times leaves the grant standing.
	for i := 0; i < 3; i++ {
		if !s.IsGranted("alice", "shell_exec") {
			t.Fatalf("check %d: one-time approval should still grant", i)
		}
	}
	if status, _ := s.Check(key); status != StatusApproved {
		t.Errorf("status = %s, want approved after peeks", status)
	}
}

func TestRedeemConsumesOneTimeGrant(t *testing.T) {
	s := newTestStore(t)
	key := Key("alice", "shell_exec")

	if err := s.Request("alice", "shell_exec", model.RiskCritical, ""); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := s.Approve(key, 0); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if err := s.Redeem("alice", "shell_exec"); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if status, _ := s.Check(key); status != StatusConsumed {
		t.Errorf("status = %s, want consumed", status)
	}
	if s.IsGranted("alice", "shell_exec") {
		t.Error("redeemed one-time approval must not grant again")
	}

	if err := s.Redeem("nobody", "notool"); err == nil {
		t.Error("redeeming a missing approval should fail")
	}
}

func TestTimedGrantReusable(t *testing.T) {
	s := newTestStore(t)
	key := Key("alice", "shell_exec")

	if err := s.Request("alice", "shell_exec", model.RiskCritical, ""); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := s.Approve(key, time.Hour); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// Redeem is a no-op for timed grants: they stay usable until expiry.
	if err := s.Redeem("alice", "shell_exec"); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if !s.IsGranted("alice", "shell_exec") || !s.IsGranted("alice", "shell_exec") {
		t.Error("timed approval should grant repeatedly until expiry")
	}
}

func TestKeyValidation(t *testing.T) {
	s := newTestStore(t)

	bad := []string{"", "..escape", "a/b", "a b"}
	for _, key := range bad {
		if _, err := s.Check(key); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}

func TestListAndCleanup(t *testing.T) {
	s := newTestStore(t)

	_ = s.Request("alice", "shell_exec", model.RiskCritical, "")
	_ = s.Request("bob", "db_drop", model.RiskCritical, "")

	approvals, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(approvals) != 2 {
		t.Errorf("got %d approvals, want 2", len(approvals))
	}

	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	approvals, _ = s.List()
	if len(approvals) != 0 {
		t.Errorf("cleanup left %d approvals", len(approvals))
	}
}
