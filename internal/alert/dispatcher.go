// Package alert posts gateway events (denials, escalations, incident
// transitions) to configured webhooks. Delivery is best-effort: failures
// are logged and never propagate into the request pipeline.
package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Haserjian/csp-tool-safety-profile/internal/incident"
	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []Config
	log     *zap.Logger
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config, log *zap.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{configs: configs, log: log}
}

// deliveryBudget bounds one delivery including all retries.
const deliveryBudget = 30 * time.Second

// Dispatch sends the event to all webhooks whose Events list matches.
// Matching is by event type. Fires goroutines — does not block the caller.
func (d *Dispatcher) Dispatch(event Event) {
	for _, cfg := range d.configs {
		if matches(cfg.Events, event) {
			go func(cfg Config) {
				ctx, cancel := context.WithTimeout(context.Background(), deliveryBudget)
				defer cancel()
				if err := Send(ctx, cfg, event); err != nil {
					d.log.Warn("alert delivery failed",
						zap.String("url", cfg.URL),
						zap.String("type", event.Type),
						zap.Error(err),
					)
				}
			}(cfg)
		}
	}
}

// ObserveReceipt converts an emitted receipt into an alert when its
// decision warrants one. Allows are not alerted.
func (d *Dispatcher) ObserveReceipt(r model.Receipt) {
	var eventType string
	switch r.Decision.Result {
	case model.Deny:
		eventType = "deny"
	case model.RequireApproval:
		eventType = "require_approval"
	default:
		return
	}

	reasons := make([]string, len(r.Decision.ReasonCodes))
	for i, c := range r.Decision.ReasonCodes {
		reasons[i] = string(c)
	}
	d.Dispatch(Event{
		Timestamp: r.Timestamp,
		Type:      eventType,
		TraceID:   r.TraceID,
		Subject:   r.Principal.Subject,
		Tool:      r.ToolName,
		Risk:      string(r.RiskLevel),
		Decision:  string(r.Decision.Result),
		Reasons:   reasons,
	})
}

// ObserveIncident converts an incident transition into an alert.
func (d *Dispatcher) ObserveIncident(ev incident.Event) {
	d.Dispatch(Event{
		Timestamp: ev.Timestamp,
		Type:      "incident",
		Subject:   ev.Actor,
		Action:    ev.Action,
		Target:    ev.Target,
	})
}

func matches(events []string, event Event) bool {
	for _, e := range events {
		if e == event.Type {
			return true
		}
	}
	return false
}
