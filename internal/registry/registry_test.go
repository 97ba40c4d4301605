package registry

import (
	"testing"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

func TestRegisterAssignsTrustFromServerConfig(t *testing.T) {
	r := New()
	r.ConfigureTrust("internal-srv", model.TrustInternal)

	entry := r.Register("internal-srv", "fs_read", nil)
	if entry.TrustLevel != model.TrustInternal {
		t.Errorf("trust = %s, want internal", entry.TrustLevel)
	}

	entry = r.Register("random-srv", "fs_read", nil)
	if entry.TrustLevel != model.TrustUnknown {
		t.Errorf("unconfigured server trust = %s, want unknown", entry.TrustLevel)
	}
}

func TestRiskClassificationByName(t *testing.T) {
	r := New()

	tests := []struct {
		tool string
		want model.RiskCategory
	}{
		{"delete_user", model.RiskCritical},
		{"shell_exec", model.RiskCritical},
		{"drop_index", model.RiskCritical},
		{"fs_write", model.RiskHigh},
		{"update_record", model.RiskHigh},
		{"create_ticket", model.RiskHigh},
		{"fs_read", model.RiskMedium},
		{"list_files", model.RiskMedium},
		{"query_db", model.RiskMedium},
		{"ping", model.RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			entry := r.Register("srv", tt.tool, nil)
			if entry.RiskCategory != tt.want {
				t.Errorf("risk(%s) = %s, want %s", tt.tool, entry.RiskCategory, tt.want)
			}
		})
	}
}

func TestConfiguredRiskBeatsHeuristics(t *testing.T) {
	r := New()
	r.ConfigureRisk("read", model.RiskHigh)

	entry := r.Register("srv", "fs_read", nil)
	if entry.RiskCategory != model.RiskHigh {
		t.Errorf("configured pattern ignored, got %s", entry.RiskCategory)
	}
}

func TestGetAndList(t *testing.T) {
	r := New()
	r.Register("srv-a", "fs_read", nil)
	r.Register("srv-a", "fs_write", nil)
	r.Register("srv-b", "query_db", nil)

	if _, ok := r.Get("srv-a", "fs_read"); !ok {
		t.Fatal("expected fs_read on srv-a")
	}
	if _, ok := r.Get("srv-b", "fs_read"); ok {
		t.Fatal("lookup must be exact on (server_id, tool_name)")
	}

	if got := len(r.ListAll()); got != 3 {
		t.Errorf("ListAll = %d entries, want 3", got)
	}
	if got := len(r.ListForServer("srv-a")); got != 2 {
		t.Errorf("ListForServer(srv-a) = %d entries, want 2", got)
	}
}

func TestFindByName(t *testing.T) {
	r := New()
	r.Register("other-srv", "tool_z", nil)

	if _, ok := r.FindByName("tool_z"); !ok {
		t.Fatal("expected tool_z to be found regardless of server")
	}
	if _, ok := r.FindByName("tool_missing"); ok {
		t.Fatal("unexpected hit for unregistered tool")
	}
}
