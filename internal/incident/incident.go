// Package incident holds mutable operational state: the kill switch,
// session quarantine, and principal revocation. Every transition appends
// to an event log and fans out to listeners synchronously.
package incident

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// Actions recorded on incident events.
const (
	ActionKillActivate   = "kill_switch_activate"
	ActionKillDeactivate = "kill_switch_deactivate"
	ActionQuarantine     = "quarantine_session"
	ActionRelease        = "release_session"
	ActionRevoke         = "revoke_principal"
	ActionReinstate      = "reinstate_principal"
)

// Event is one append-only record of an operational transition. The event
// log is independent of the receipt chain.
type Event struct {
	Timestamp string `json:"ts"`
	Action    string `json:"action"`
	Target    string `json:"target"`
	Actor     string `json:"actor"`
}

// Listener observes incident events. Listeners run synchronously in
// registration order; a panic in one is recovered and does not stop the
// others or the state mutation.
type Listener func(Event)

// Controller tracks incident state. Safe for concurrent use.
type Controller struct {
	log *zap.Logger

	mu          sync.RWMutex
	killed      map[string]bool
	quarantined map[string]bool
	revoked     map[string]bool
	events      []Event
	listeners   []Listener
}

// New creates an empty Controller. A nil logger disables logging.
func New(log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		log:         log,
		killed:      make(map[string]bool),
		quarantined: make(map[string]bool),
		revoked:     make(map[string]bool),
	}
}

// Subscribe registers a listener for subsequent events.
func (c *Controller) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// ActivateKillSwitch blocks a tool name globally.
func (c *Controller) ActivateKillSwitch(toolName, actor string) {
	c.transition(ActionKillActivate, toolName, actor, func() { c.killed[toolName] = true })
}

// DeactivateKillSwitch lifts a tool block.
func (c *Controller) DeactivateKillSwitch(toolName, actor string) {
	c.transition(ActionKillDeactivate, toolName, actor, func() { delete(c.killed, toolName) })
}

// QuarantineSession isolates a session identifier.
func (c *Controller) QuarantineSession(sessionID, actor string) {
	c.transition(ActionQuarantine, sessionID, actor, func() { c.quarantined[sessionID] = true })
}

// ReleaseSession lifts a session quarantine.
func (c *Controller) ReleaseSession(sessionID, actor string) {
	c.transition(ActionRelease, sessionID, actor, func() { delete(c.quarantined, sessionID) })
}

// RevokePrincipal blocks a principal subject at the top of the pipeline.
func (c *Controller) RevokePrincipal(subject, actor string) {
	c.transition(ActionRevoke, subject, actor, func() { c.revoked[subject] = true })
}

// ReinstatePrincipal lifts a revocation.
func (c *Controller) ReinstatePrincipal(subject, actor string) {
	c.transition(ActionReinstate, subject, actor, func() { delete(c.revoked, subject) })
}

// IsKilled reports whether a tool name is kill-switched.
func (c *Controller) IsKilled(toolName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.killed[toolName]
}

// IsQuarantined reports whether a session is quarantined.
func (c *Controller) IsQuarantined(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quarantined[sessionID]
}

// IsRevoked reports whether a principal subject is revoked.
func (c *Controller) IsRevoked(subject string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revoked[subject]
}

// Events returns a copy of the event log in append order.
func (c *Controller) Events() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Controller) transition(action, target, actor string, mutate func()) {
	ev := Event{
		Timestamp: model.UTCNow(),
		Action:    action,
		Target:    target,
		Actor:     actor,
	}

	c.mu.Lock()
	mutate()
	c.events = append(c.events, ev)
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	c.log.Warn("incident transition",
		zap.String("action", action),
		zap.String("target", target),
		zap.String("actor", actor),
	)

	for _, l := range listeners {
		c.notify(l, ev)
	}
}

func (c *Controller) notify(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("incident listener panicked", zap.Any("panic", r), zap.String("action", ev.Action))
		}
	}()
	l(ev)
}
