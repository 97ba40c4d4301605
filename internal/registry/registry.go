// Package registry is the capability inventory. Each registered tool gets a
// trust level from its declaring server's configuration and a risk category
// from name-pattern classification.
package registry

import (
	"strings"
	"sync"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

type toolKey struct {
	serverID string
	toolName string
}

// Registry holds registered tools. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	tools        map[toolKey]model.ToolEntry
	trustConfig  map[string]model.TrustLevel
	riskPatterns []riskPattern
}

// riskPattern is a configured substring rule. Configured rules take
// precedence over the built-in substring families.
type riskPattern struct {
	substr   string
	category model.RiskCategory
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		tools:       make(map[toolKey]model.ToolEntry),
		trustConfig: make(map[string]model.TrustLevel),
	}
}

// ConfigureTrust sets the trust level assigned to tools from a server.
// Servers without configuration default to unknown.
func (r *Registry) ConfigureTrust(serverID string, level model.TrustLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trustConfig[serverID] = level
}

// ConfigureRisk adds a tool-name substring rule mapping to a risk category.
func (r *Registry) ConfigureRisk(toolPattern string, category model.RiskCategory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.riskPatterns = append(r.riskPatterns, riskPattern{
		substr:   strings.ToLower(toolPattern),
		category: category,
	})
}

// Register adds a tool declared by a server and returns the classified entry.
// Re-registering the same (server_id, tool_name) replaces the entry.
func (r *Registry) Register(serverID, toolName string, schema map[string]any) model.ToolEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	trust, ok := r.trustConfig[serverID]
	if !ok {
		trust = model.TrustUnknown
	}

	entry := model.ToolEntry{
		ServerID:     serverID,
		ToolName:     toolName,
		TrustLevel:   trust,
		RiskCategory: r.classifyRisk(toolName),
		Schema:       schema,
	}
	r.tools[toolKey{serverID, toolName}] = entry
	return entry
}

// Get returns the entry for an exact (server_id, tool_name) key.
func (r *Registry) Get(serverID, toolName string) (model.ToolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[toolKey{serverID, toolName}]
	return entry, ok
}

// FindByName returns the first entry with the given tool name, from any server.
func (r *Registry) FindByName(toolName string) (model.ToolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, entry := range r.tools {
		if k.toolName == toolName {
			return entry, true
		}
	}
	return model.ToolEntry{}, false
}

// ListAll returns all registered tools.
func (r *Registry) ListAll() []model.ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ToolEntry, 0, len(r.tools))
	for _, entry := range r.tools {
		out = append(out, entry)
	}
	return out
}

// ListForServer returns tools declared by one server.
func (r *Registry) ListForServer(serverID string) []model.ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.ToolEntry
	for k, entry := range r.tools {
		if k.serverID == serverID {
			out = append(out, entry)
		}
	}
	return out
}

// Built-in substring families, tried CRITICAL→HIGH→MEDIUM→LOW.
var (
	criticalSubstrings = []string{"delete", "rm", "drop", "truncate", "exec", "shell"}
	highSubstrings     = []string{"write", "update", "modify", "create"}
	mediumSubstrings   = []string{"read", "get", "list", "query"}
)

// classifyRisk must be called with at least a read lock held.
func (r *Registry) classifyRisk(toolName string) model.RiskCategory {
	lower := strings.ToLower(toolName)

	for _, p := range r.riskPatterns {
		if strings.Contains(lower, p.substr) {
			return p.category
		}
	}

	for _, s := range criticalSubstrings {
		if strings.Contains(lower, s) {
			return model.RiskCritical
		}
	}
	for _, s := range highSubstrings {
		if strings.Contains(lower, s) {
			return model.RiskHigh
		}
	}
	for _, s := range mediumSubstrings {
		if strings.Contains(lower, s) {
			return model.RiskMedium
		}
	}
	return model.RiskLow
}
