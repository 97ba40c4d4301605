// Package classify maps a command or argument string to a risk tier via
// ordered pattern precedence. CRITICAL patterns are always tried before HIGH
// so a command matching both is never under-classified.
package classify

import (
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// Pattern is one risk rule. Match is a case-insensitive regular expression.
// Unless, when set, suppresses the match (used where the original rule needs
// a negative condition, e.g. DELETE FROM without a WHERE clause).
type Pattern struct {
	Match  string `yaml:"match"`
	Unless string `yaml:"unless,omitempty"`
}

// Patterns holds the raw rule strings organized by severity.
type Patterns struct {
	Critical []Pattern `yaml:"critical"`
	High     []Pattern `yaml:"high"`
}

type compiled struct {
	re     *regexp.Regexp
	unless *regexp.Regexp
	raw    string
}

// Classifier holds compiled patterns for fast matching.
type Classifier struct {
	critical []compiled
	high     []compiled
	raw      Patterns
}

// New creates a Classifier from raw patterns, compiling regexes.
// Patterns that fail to compile are dropped.
func New(p Patterns) *Classifier {
	c := &Classifier{raw: p}
	c.critical = compileAll(p.Critical)
	c.high = compileAll(p.High)
	return c
}

// NewDefault creates a Classifier with the built-in baseline patterns.
func NewDefault() *Classifier {
	return New(DefaultPatterns)
}

// Load reads patterns from a YAML file. Falls back to defaults if the file
// doesn't exist or path is empty.
func Load(path string) (*Classifier, error) {
	if path == "" {
		return NewDefault(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, err
	}

	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}

	return New(p), nil
}

func compileAll(patterns []Pattern) []compiled {
	out := make([]compiled, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p.Match)
		if err != nil {
			continue
		}
		cp := compiled{re: re, raw: p.Match}
		if p.Unless != "" {
			if u, err := regexp.Compile("(?i)" + p.Unless); err == nil {
				cp.unless = u
			}
		}
		out = append(out, cp)
	}
	return out
}

// recognized tool kinds that default to MEDIUM when no pattern matches.
var recognizedKinds = map[string]bool{
	"shell":   true,
	"command": true,
	"db":      true,
	"sql":     true,
	"http":    true,
}

// Classify evaluates the CRITICAL list in order, then the HIGH list.
// First match wins. Returns the tier and the pattern that matched, or an
// empty pattern when classification fell through to the tool-kind heuristic.
func (c *Classifier) Classify(toolKind, command string) (model.RiskCategory, string) {
	s := strings.TrimSpace(command)

	for _, p := range c.critical {
		if p.re.MatchString(s) && (p.unless == nil || !p.unless.MatchString(s)) {
			return model.RiskCritical, p.raw
		}
	}
	for _, p := range c.high {
		if p.re.MatchString(s) && (p.unless == nil || !p.unless.MatchString(s)) {
			return model.RiskHigh, p.raw
		}
	}

	if recognizedKinds[strings.ToLower(toolKind)] {
		return model.RiskMedium, ""
	}
	return model.RiskLow, ""
}

// AddPattern adds a rule to the given severity list at runtime.
func (c *Classifier) AddPattern(severity string, p Pattern) {
	cp := compileAll([]Pattern{p})
	if len(cp) == 0 {
		return
	}
	switch strings.ToLower(severity) {
	case "critical":
		c.raw.Critical = append(c.raw.Critical, p)
		c.critical = append(c.critical, cp[0])
	case "high":
		c.raw.High = append(c.raw.High, p)
		c.high = append(c.high, cp[0])
	}
}
