// Package sandbox computes declarative filesystem and network policy
// descriptors attached to receipts. Enforcement is external; this package
// only describes the boundary and answers containment queries.
package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Policy describes the execution boundary for untrusted tool runs.
type Policy struct {
	workspace        string
	networkAllowlist []string
	readOnly         bool
	dropCapabilities bool
}

// Option tunes Policy construction.
type Option func(*Policy)

// ReadOnly mounts the workspace read-only.
func ReadOnly() Option {
	return func(p *Policy) { p.readOnly = true }
}

// WithNetworkAllowlist permits outbound traffic to the named hosts only.
func WithNetworkAllowlist(hosts ...string) Option {
	return func(p *Policy) { p.networkAllowlist = append([]string(nil), hosts...) }
}

// KeepCapabilities retains container capabilities instead of dropping all.
func KeepCapabilities() Option {
	return func(p *Policy) { p.dropCapabilities = false }
}

// New builds a Policy rooted at workspace. The workspace is normalized to
// an absolute, symlink-free path when it exists.
func New(workspace string, opts ...Option) (*Policy, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve workspace %q: %w", workspace, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	p := &Policy{workspace: abs, dropCapabilities: true}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Workspace returns the resolved workspace root.
func (p *Policy) Workspace() string { return p.workspace }

// FSPolicy is the filesystem policy string recorded on receipts.
func (p *Policy) FSPolicy() string {
	if p.readOnly {
		return "read_only"
	}
	return "workspace_only"
}

// NetPolicy is the network policy string recorded on receipts.
func (p *Policy) NetPolicy() string {
	if len(p.networkAllowlist) > 0 {
		return "allowlist"
	}
	return "block_all"
}

// ValidatePath reports whether path stays inside the workspace after
// resolving relative segments. Relative paths are joined to the workspace.
func (p *Policy) ValidatePath(path string) bool {
	_, err := p.ResolvePath(path)
	return err == nil
}

// ResolvePath returns the cleaned absolute location of path inside the
// workspace, or an error when it escapes.
func (p *Policy) ResolvePath(path string) (string, error) {
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(p.workspace, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(p.workspace, target)
	if err != nil {
		return "", fmt.Errorf("sandbox: path %q escapes workspace", path)
	}
	if rel != "." && (rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return "", fmt.Errorf("sandbox: path %q escapes workspace", path)
	}
	return target, nil
}

// CanReachHost reports whether host is on the network allowlist. An empty
// allowlist blocks everything.
func (p *Policy) CanReachHost(host string) bool {
	for _, h := range p.networkAllowlist {
		if h == host {
			return true
		}
	}
	return false
}

// ContainerConfig renders the policy as a container runtime configuration
// map for an external enforcer.
func (p *Policy) ContainerConfig() map[string]any {
	mountMode := "rw"
	if p.readOnly {
		mountMode = "ro"
	}
	netMode := "none"
	if len(p.networkAllowlist) > 0 {
		netMode = "allowlist"
	}
	return map[string]any{
		"mounts": []map[string]any{
			{"src": p.workspace, "dst": "/workspace", "mode": mountMode},
		},
		"network": map[string]any{
			"mode":          netMode,
			"allowed_hosts": append([]string(nil), p.networkAllowlist...),
		},
		"security": map[string]any{
			"drop_all_capabilities": p.dropCapabilities,
			"no_new_privileges":     true,
		},
	}
}
