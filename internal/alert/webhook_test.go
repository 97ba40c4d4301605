package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Haserjian/csp-tool-safety-profile/internal/incident"
	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

func TestDispatchMatchesEvents(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{"deny"}},
	}, nil)

	d.Dispatch(Event{Type: "deny", Tool: "shell_exec", Reasons: []string{"DENY_NO_PERMISSION"}})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{"deny"}},
	}, nil)

	d.Dispatch(Event{Type: "require_approval", Tool: "shell_exec"})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 0 {
		t.Errorf("expected 0 calls, got %d", called.Load())
	}
}

func TestEmptyConfigsReturnsNil(t *testing.T) {
	if d := NewDispatcher(nil, nil); d != nil {
		t.Error("empty config should yield a nil dispatcher")
	}
}

func TestObserveReceipt(t *testing.T) {
	payloads := make(chan Event, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		payloads <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{"deny", "require_approval"}},
	}, nil)

	// Allows are never alerted.
	d.ObserveReceipt(model.Receipt{Decision: model.Allowed()})

	d.ObserveReceipt(model.Receipt{
		TraceID:   "trace-1",
		Timestamp: "2026-01-15T10:30:00.000Z",
		Principal: model.Principal{Subject: "alice"},
		ToolName:  "shell_exec",
		RiskLevel: model.RiskCritical,
		Decision:  model.Denied(model.DenyKillSwitch),
	})

	select {
	case ev := <-payloads:
		if ev.Type != "deny" || ev.Tool != "shell_exec" || ev.Subject != "alice" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if len(ev.Reasons) != 1 || ev.Reasons[0] != "DENY_KILL_SWITCH" {
			t.Errorf("reasons = %v", ev.Reasons)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deny receipt did not produce an alert")
	}

	select {
	case ev := <-payloads:
		t.Errorf("allow receipt must not alert, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestObserveIncident(t *testing.T) {
	payloads := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		payloads <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{"incident"}},
	}, nil)

	d.ObserveIncident(incident.Event{
		Timestamp: "2026-01-15T10:30:00.000Z",
		Action:    incident.ActionKillActivate,
		Target:    "shell_exec",
		Actor:     "oncall",
	})

	select {
	case ev := <-payloads:
		if ev.Type != "incident" || ev.Action != incident.ActionKillActivate || ev.Target != "shell_exec" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("incident did not produce an alert")
	}
}

func TestSendRejectedOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := Send(context.Background(), Config{URL: srv.URL, Format: "generic"}, Event{Type: "deny"})
	if err == nil {
		t.Fatal("4xx should fail without retry")
	}
	if calls.Load() != 1 {
		t.Errorf("4xx retried: %d calls", calls.Load())
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Send(context.Background(), Config{URL: srv.URL, Format: "generic"}, Event{Type: "deny"})
	if err != nil {
		t.Fatalf("delivery should succeed on the third attempt: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("got %d calls, want 3", calls.Load())
	}
}

func TestSendHonorsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Send(ctx, Config{URL: srv.URL, Format: "generic"}, Event{Type: "deny"})
	if err == nil {
		t.Fatal("cancelled context should abort delivery")
	}
}

func TestFormatPayloadVariants(t *testing.T) {
	event := Event{
		Type:     "deny",
		Tool:     "shell_exec",
		Subject:  "alice",
		Risk:     "CRITICAL",
		Decision: "deny",
		Reasons:  []string{"DENY_KILL_SWITCH"},
	}

	for _, format := range []string{"generic", "slack", "pagerduty"} {
		body, err := FormatPayload(format, event)
		if err != nil {
			t.Fatalf("FormatPayload(%s): %v", format, err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(body, &decoded); err != nil {
			t.Errorf("%s payload is not valid JSON: %v", format, err)
		}
	}
}
