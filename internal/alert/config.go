package alert

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["deny", "require_approval", "incident"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp string   `json:"timestamp"`
	Type      string   `json:"type"` // "deny", "require_approval", "incident"
	TraceID   string   `json:"trace_id,omitempty"`
	Subject   string   `json:"subject,omitempty"`
	Tool      string   `json:"tool,omitempty"`
	Risk      string   `json:"risk,omitempty"`
	Decision  string   `json:"decision,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
	Action    string   `json:"action,omitempty"` // incident action
	Target    string   `json:"target,omitempty"` // incident target
}
