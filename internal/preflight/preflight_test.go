package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

func containsCode(codes []model.ReasonCode, want model.ReasonCode) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}

func TestPayloadCeiling(t *testing.T) {
	v := New(10_000, "")

	d := v.Validate("tool_x", map[string]any{"data": strings.Repeat("a", 20_000)})
	if d.Result != model.Deny {
		t.Fatalf("expected deny, got %s", d.Result)
	}
	if !containsCode(d.ReasonCodes, model.DenyPayloadTooLarge) {
		t.Errorf("expected DENY_PAYLOAD_TOO_LARGE, got %v", d.ReasonCodes)
	}

	d = v.Validate("tool_x", map[string]any{"data": "small"})
	if d.Result != model.Allow {
		t.Errorf("small payload should pass, got %s with %v", d.Result, d.ReasonCodes)
	}
}

func TestUnknownFields(t *testing.T) {
	v := New(0, "")
	v.RegisterSchema("tool_x", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer"},
		},
	})

	d := v.Validate("tool_x", map[string]any{"query": "ok", "bogus": 1})
	if !containsCode(d.ReasonCodes, model.DenyUnknownFields) {
		t.Errorf("unknown field should deny, got %v", d.ReasonCodes)
	}

	d = v.Validate("tool_x", map[string]any{"query": "ok", "limit": 5})
	if d.Result != model.Allow {
		t.Errorf("schema-conformant args should pass, got %v", d.ReasonCodes)
	}

	// No schema registered: anything goes.
	d = v.Validate("tool_unregistered", map[string]any{"whatever": true})
	if d.Result != model.Allow {
		t.Errorf("unregistered tool should skip field check, got %v", d.ReasonCodes)
	}
}

func TestSchemaTypeViolation(t *testing.T) {
	v := New(0, "")
	v.RegisterSchema("tool_x", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{"type": "integer"},
		},
	})

	d := v.Validate("tool_x", map[string]any{"limit": "not a number"})
	if !containsCode(d.ReasonCodes, model.DenyUnknownFields) {
		t.Errorf("type violation should deny, got %v", d.ReasonCodes)
	}
}

func TestPathTraversal(t *testing.T) {
	ws := t.TempDir()
	v := New(0, ws)

	cases := []struct {
		name string
		path string
		want model.DecisionResult
	}{
		{"relative inside", "test.txt", model.Allow},
		{"nested inside", "sub/dir/file.txt", model.Allow},
		{"dotdot escape", "../../../etc/passwd", model.Deny},
		{"absolute outside", "/etc/passwd", model.Deny},
		{"dotdot within", "sub/../test.txt", model.Allow},
		{"workspace root itself", ".", model.Allow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := v.Validate("fs_read", map[string]any{"path": tc.path})
			if d.Result != tc.want {
				t.Errorf("path %q: got %s (%v), want %s", tc.path, d.Result, d.ReasonCodes, tc.want)
			}
			if tc.want == model.Deny && !containsCode(d.ReasonCodes, model.DenyPathTraversal) {
				t.Errorf("path %q: expected DENY_PATH_TRAVERSAL, got %v", tc.path, d.ReasonCodes)
			}
		})
	}
}

func TestSymlinkEscape(t *testing.T) {
	ws := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(ws, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	v := New(0, ws)
	d := v.Validate("fs_read", map[string]any{"path": "link/secret.txt"})
	if !containsCode(d.ReasonCodes, model.DenyPathTraversal) {
		t.Errorf("symlink escape should deny, got %v", d.ReasonCodes)
	}
}

func TestFilePathArgumentKey(t *testing.T) {
	ws := t.TempDir()
	v := New(0, ws)

	d := v.Validate("file_write", map[string]any{"file_path": "../outside.txt"})
	if !containsCode(d.ReasonCodes, model.DenyPathTraversal) {
		t.Errorf("file_path key should be checked, got %v", d.ReasonCodes)
	}
}

func TestNonFileToolSkipsPathCheck(t *testing.T) {
	ws := t.TempDir()
	v := New(0, ws)

	d := v.Validate("tool_x", map[string]any{"path": "../../../etc/passwd"})
	if d.Result != model.Allow {
		t.Errorf("non-file tool should skip path check, got %v", d.ReasonCodes)
	}
}

func TestMultipleFailuresReportedTogether(t *testing.T) {
	ws := t.TempDir()
	v := New(100, ws)
	v.RegisterSchema("fs_write", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
		},
	})

	d := v.Validate("fs_write", map[string]any{
		"path":  "../escape.txt",
		"extra": strings.Repeat("x", 200),
	})
	if d.Result != model.Deny {
		t.Fatalf("expected deny, got %s", d.Result)
	}
	for _, want := range []model.ReasonCode{model.DenyPayloadTooLarge, model.DenyUnknownFields, model.DenyPathTraversal} {
		if !containsCode(d.ReasonCodes, want) {
			t.Errorf("missing %s in %v", want, d.ReasonCodes)
		}
	}
}
