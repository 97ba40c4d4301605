// Package authz implements deny-by-default authorization and identity-bound
// discovery filtering. Absence of a permission record denies everything; a
// tool over the principal's risk ceiling requires approval rather than a
// hard deny.
package authz

import (
	"sync"

	"github.com/Haserjian/csp-tool-safety-profile/internal/classify"
	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
	"github.com/Haserjian/csp-tool-safety-profile/internal/registry"
)

// Permission is the per-principal grant record. Denial always wins over
// allowance.
type Permission struct {
	Subject      string
	AllowedTools map[string]bool
	DeniedTools  map[string]bool
	MaxRisk      model.RiskCategory
}

// KillChecker reports whether a tool is currently kill-switched.
// Implemented by the incident controller.
type KillChecker interface {
	IsKilled(toolName string) bool
}

// Engine evaluates authorization against the registry and permission map.
// Safe for concurrent use.
type Engine struct {
	registry   *registry.Registry
	kill       KillChecker
	classifier *classify.Classifier

	mu          sync.RWMutex
	permissions map[string]*Permission
}

// New creates an Engine. kill may be nil when no incident controller is wired.
func New(reg *registry.Registry, kill KillChecker) *Engine {
	return &Engine{
		registry:    reg,
		kill:        kill,
		permissions: make(map[string]*Permission),
	}
}

// SetClassifier wires a command classifier so the risk ceiling sees the
// effective risk of argument text, not just the tool's registered category.
func (e *Engine) SetClassifier(c *classify.Classifier) {
	e.classifier = c
}

// Grant allows tools for a principal and sets its risk ceiling.
func (e *Engine) Grant(subject string, tools []string, maxRisk model.RiskCategory) {
	e.mu.Lock()
	defer e.mu.Unlock()

	perm := e.permissions[subject]
	if perm == nil {
		perm = &Permission{
			Subject:      subject,
			AllowedTools: make(map[string]bool),
			DeniedTools:  make(map[string]bool),
		}
		e.permissions[subject] = perm
	}
	for _, t := range tools {
		perm.AllowedTools[t] = true
	}
	perm.MaxRisk = maxRisk
}

// Deny explicitly denies tools for a principal. Explicit denial overrides
// any allowance.
func (e *Engine) Deny(subject string, tools []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	perm := e.permissions[subject]
	if perm == nil {
		perm = &Permission{
			Subject:      subject,
			AllowedTools: make(map[string]bool),
			DeniedTools:  make(map[string]bool),
		}
		e.permissions[subject] = perm
	}
	for _, t := range tools {
		perm.DeniedTools[t] = true
	}
}

// Revoke removes all permission state for a principal.
func (e *Engine) Revoke(subject string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.permissions, subject)
}

// CanDiscover reports whether a tool is visible to the principal.
// Deny-by-default: no record means nothing is visible.
func (e *Engine) CanDiscover(p model.Principal, tool model.ToolEntry) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	perm := e.permissions[p.Subject]
	if perm == nil {
		return false
	}
	if perm.DeniedTools[tool.ToolName] {
		return false
	}
	return perm.AllowedTools[tool.ToolName]
}

// FilterTools returns the subset of tools the principal may discover.
func (e *Engine) FilterTools(p model.Principal, tools []model.ToolEntry) []model.ToolEntry {
	out := make([]model.ToolEntry, 0, len(tools))
	for _, t := range tools {
		if e.CanDiscover(p, t) {
			out = append(out, t)
		}
	}
	return out
}

// Evaluate authorizes one invocation. Check order is load-bearing:
// kill switch, tool existence, permission record, explicit denial,
// allowance, risk ceiling.
func (e *Engine) Evaluate(p model.Principal, toolName string, arguments map[string]any) model.Decision {
	if e.kill != nil && e.kill.IsKilled(toolName) {
		return model.Denied(model.DenyKillSwitch)
	}

	tool, ok := e.registry.FindByName(toolName)
	if !ok {
		return model.Denied(model.DenyToolNotFound)
	}

	e.mu.RLock()
	perm := e.permissions[p.Subject]
	e.mu.RUnlock()

	if perm == nil {
		return model.Denied(model.DenyNoMatchingRule)
	}
	if perm.DeniedTools[toolName] {
		return model.Denied(model.DenyNoPermission)
	}
	if !perm.AllowedTools[toolName] {
		return model.Denied(model.DenyNoMatchingRule)
	}

	maxRisk := perm.MaxRisk
	if maxRisk == "" {
		maxRisk = model.RiskHigh
	}
	if model.RiskRank[e.EffectiveRisk(tool, arguments)] > model.RiskRank[maxRisk] {
		return model.NeedsApproval()
	}

	return model.Allowed()
}

// EffectiveRisk is the tool's registered category raised by classifying
// any command text in the arguments.
func (e *Engine) EffectiveRisk(tool model.ToolEntry, arguments map[string]any) model.RiskCategory {
	risk := tool.RiskCategory
	if risk == "" {
		risk = model.RiskLow
	}
	if e.classifier == nil {
		return risk
	}
	if cmd := commandText(arguments); cmd != "" {
		classified, _ := e.classifier.Classify(tool.ToolName, cmd)
		if model.RiskRank[classified] > model.RiskRank[risk] {
			risk = classified
		}
	}
	return risk
}

func commandText(arguments map[string]any) string {
	for _, key := range []string{"command", "query", "sql"} {
		if s, ok := arguments[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
