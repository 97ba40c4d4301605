package gateway

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Haserjian/csp-tool-safety-profile/internal/alert"
	"github.com/Haserjian/csp-tool-safety-profile/internal/approval"
	"github.com/Haserjian/csp-tool-safety-profile/internal/authn"
	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// GrantConfig is one principal's tool allowance.
type GrantConfig struct {
	Subject string   `yaml:"subject"`
	Tools   []string `yaml:"tools"`
	Denied  []string `yaml:"denied,omitempty"`
	MaxRisk string   `yaml:"max_risk,omitempty"`
}

// ToolConfig registers one tool at startup.
type ToolConfig struct {
	ServerID string         `yaml:"server_id"`
	Name     string         `yaml:"name"`
	Schema   map[string]any `yaml:"schema,omitempty"`
	FileTool bool           `yaml:"file_tool,omitempty"`
}

// Config is the gateway's YAML configuration.
type Config struct {
	Workspace       string `yaml:"workspace"`
	MaxPayloadBytes int    `yaml:"max_payload_bytes"`
	// ReceiptLog selects the store by extension: ".db"/".sqlite" opens a
	// SQLite database, anything else appends JSONL.
	ReceiptLog      string `yaml:"receipt_log"`
	ApprovalDir     string `yaml:"approval_dir"`
	SigningKey      string `yaml:"signing_key,omitempty"`
	PatternFile     string `yaml:"pattern_file,omitempty"`

	// Static bearer tokens; a production deployment sets jwt_secret instead.
	Tokens    map[string]authn.Claims `yaml:"tokens,omitempty"`
	JWTSecret string                  `yaml:"jwt_secret,omitempty"`
	JWTIssuer string                  `yaml:"jwt_issuer,omitempty"`

	Trust            map[string]string `yaml:"trust,omitempty"`         // server_id -> trust level
	RiskPatterns     map[string]string `yaml:"risk_patterns,omitempty"` // tool-name substring -> category
	Tools            []ToolConfig      `yaml:"tools,omitempty"`
	Grants           []GrantConfig     `yaml:"grants,omitempty"`
	Vault            map[string]string `yaml:"vault,omitempty"`    // server_id -> credential
	Exchange         map[string]string `yaml:"exchange,omitempty"` // server_id -> audience
	ExchangeSecret   string            `yaml:"exchange_secret,omitempty"`
	PassthroughAllow []string          `yaml:"passthrough_allow,omitempty"`
	NetworkAllowlist []string          `yaml:"network_allowlist,omitempty"`
	ReadOnly         bool              `yaml:"read_only,omitempty"`

	Alerts []alert.Config `yaml:"alerts,omitempty"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Workspace:       "./workspace",
		MaxPayloadBytes: 1_000_000,
		ReceiptLog:      "receipts.jsonl",
		ApprovalDir:     approval.DefaultDir(),
	}
}

// LoadConfig reads a YAML config. A missing file or empty path falls back
// to defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("gateway: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("gateway: parse config %s: %w", path, err)
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = DefaultConfig().MaxPayloadBytes
	}
	if cfg.Workspace == "" {
		cfg.Workspace = DefaultConfig().Workspace
	}
	return cfg, nil
}

func parseTrust(s string) model.TrustLevel {
	switch s {
	case "internal":
		return model.TrustInternal
	case "verified":
		return model.TrustVerified
	case "community":
		return model.TrustCommunity
	default:
		return model.TrustUnknown
	}
}

func parseRisk(s string) model.RiskCategory {
	switch s {
	case "CRITICAL":
		return model.RiskCritical
	case "HIGH":
		return model.RiskHigh
	case "MEDIUM":
		return model.RiskMedium
	case "LOW":
		return model.RiskLow
	default:
		return ""
	}
}
