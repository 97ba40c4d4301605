package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	headline := event.Decision
	if event.Type == "incident" {
		headline = event.Action
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("cspgate: %s", headline),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tool:* %s", event.Tool)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Subject:* %s", event.Subject)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Risk:* %s", event.Risk)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reasons:* %s", strings.Join(event.Reasons, ", "))},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch event.Risk {
	case "CRITICAL":
		severity = "critical"
	case "HIGH":
		severity = "error"
	case "MEDIUM":
		severity = "warning"
	}
	if event.Type == "incident" {
		severity = "critical"
	}

	summary := fmt.Sprintf("cspgate %s: %s", event.Type, event.Tool)
	if event.Type == "incident" {
		summary = fmt.Sprintf("cspgate incident: %s %s", event.Action, event.Target)
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  summary,
			"severity": severity,
			"source":   "cspgate",
			"custom_details": map[string]any{
				"tool":     event.Tool,
				"subject":  event.Subject,
				"risk":     event.Risk,
				"reasons":  event.Reasons,
				"trace_id": event.TraceID,
				"action":   event.Action,
				"target":   event.Target,
			},
		},
	}
	return json.Marshal(payload)
}
