// Package preflight screens request arguments before dispatch: payload size,
// schema conformance, and workspace path containment. All failing checks are
// reported together in one decision.
package preflight

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// DefaultMaxPayloadBytes is the argument size ceiling when none is configured.
const DefaultMaxPayloadBytes = 1_000_000

type schemaEntry struct {
	knownFields map[string]bool
	compiled    *jsonschema.Schema
}

// Validator screens tool arguments. Safe for concurrent use.
type Validator struct {
	maxPayloadBytes int
	workspace       string

	mu        sync.RWMutex
	schemas   map[string]schemaEntry
	fileTools map[string]bool
}

// New creates a Validator. workspace may be empty to disable path checks;
// when set it is resolved to an absolute, symlink-free root.
func New(maxPayloadBytes int, workspace string) *Validator {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}

	v := &Validator{
		maxPayloadBytes: maxPayloadBytes,
		schemas:         make(map[string]schemaEntry),
		fileTools: map[string]bool{
			"fs_read":    true,
			"fs_write":   true,
			"fs_delete":  true,
			"file_read":  true,
			"file_write": true,
		},
	}
	if workspace != "" {
		abs, err := filepath.Abs(workspace)
		if err == nil {
			if resolved, err := filepath.EvalSymlinks(abs); err == nil {
				abs = resolved
			}
			v.workspace = abs
		}
	}
	return v
}

// RegisterSchema records the expected argument schema for a tool. The
// property set drives the unknown-fields check; when the document is a
// compilable JSON Schema it is also enforced structurally.
func (v *Validator) RegisterSchema(toolName string, schema map[string]any) {
	entry := schemaEntry{knownFields: make(map[string]bool)}

	if props, ok := schema["properties"].(map[string]any); ok {
		for k := range props {
			entry.knownFields[k] = true
		}
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schema); err == nil {
		if sch, err := c.Compile("schema.json"); err == nil {
			entry.compiled = sch
		}
	}

	v.mu.Lock()
	v.schemas[toolName] = entry
	v.mu.Unlock()
}

// AddFileTool marks a tool as file-touching, requiring path containment.
func (v *Validator) AddFileTool(toolName string) {
	v.mu.Lock()
	v.fileTools[toolName] = true
	v.mu.Unlock()
}

// Validate screens one request. Checks run independently; every failing
// check contributes its reason code to the returned decision.
func (v *Validator) Validate(toolName string, arguments map[string]any) model.Decision {
	var codes []model.ReasonCode

	// Payload size
	payload, err := json.Marshal(arguments)
	if err != nil {
		codes = append(codes, model.DenyUnknownFields)
	} else if len(payload) > v.maxPayloadBytes {
		codes = append(codes, model.DenyPayloadTooLarge)
	}

	v.mu.RLock()
	entry, hasSchema := v.schemas[toolName]
	isFileTool := v.fileTools[toolName]
	v.mu.RUnlock()

	// Unknown fields and structural schema violations
	if hasSchema {
		violated := false
		for key := range arguments {
			if !entry.knownFields[key] {
				violated = true
				break
			}
		}
		if !violated && entry.compiled != nil {
			var doc any
			if err := json.Unmarshal(payload, &doc); err != nil || entry.compiled.Validate(doc) != nil {
				violated = true
			}
		}
		if violated {
			codes = append(codes, model.DenyUnknownFields)
		}
	}

	// Path containment for file-touching tools
	if isFileTool && v.workspace != "" {
		if path := pathArgument(arguments); path != "" && !v.withinWorkspace(path) {
			codes = append(codes, model.DenyPathTraversal)
		}
	}

	if len(codes) > 0 {
		return model.Denied(codes...)
	}
	return model.Decision{Result: model.Allow}
}

func pathArgument(arguments map[string]any) string {
	if p, ok := arguments["path"].(string); ok && p != "" {
		return p
	}
	if p, ok := arguments["file_path"].(string); ok && p != "" {
		return p
	}
	return ""
}

// withinWorkspace canonicalizes the path (joining relative paths to the
// workspace root, resolving symlinks and "..") and checks containment by
// exact prefix of the resolved path. The workspace root itself is contained.
func (v *Validator) withinWorkspace(path string) bool {
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(v.workspace, target)
	}
	target = filepath.Clean(target)

	resolved, err := resolveExisting(target)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(v.workspace, resolved)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// resolveExisting resolves symlinks on the deepest existing ancestor and
// rejoins the non-existent remainder, so containment holds for paths that
// have not been created yet.
func resolveExisting(path string) (string, error) {
	remainder := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}
