// Package gateway composes the decision pipeline: authenticate, incident
// check, authorize, preflight, credential brokering. Exactly one receipt
// is emitted per request, at the stage where the pipeline terminates.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Haserjian/csp-tool-safety-profile/internal/alert"
	"github.com/Haserjian/csp-tool-safety-profile/internal/approval"
	"github.com/Haserjian/csp-tool-safety-profile/internal/authn"
	"github.com/Haserjian/csp-tool-safety-profile/internal/authz"
	"github.com/Haserjian/csp-tool-safety-profile/internal/classify"
	"github.com/Haserjian/csp-tool-safety-profile/internal/credentials"
	"github.com/Haserjian/csp-tool-safety-profile/internal/incident"
	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
	"github.com/Haserjian/csp-tool-safety-profile/internal/preflight"
	"github.com/Haserjian/csp-tool-safety-profile/internal/receipt"
	"github.com/Haserjian/csp-tool-safety-profile/internal/registry"
	"github.com/Haserjian/csp-tool-safety-profile/internal/sandbox"
)

// Gateway holds shared references to the stateful components and runs the
// per-request pipeline over them.
type Gateway struct {
	log       *zap.Logger
	registry  *registry.Registry
	auth      authn.Authenticator
	engine    *authz.Engine
	preflight *preflight.Validator
	broker    *credentials.Broker
	sandbox   *sandbox.Policy
	incidents *incident.Controller
	approvals *approval.Store
	emitter   *receipt.Emitter

	mu sync.Mutex // serializes config re-application
}

// New builds a Gateway from configuration. The receipt store and approval
// directory are created as needed.
func New(cfg Config, log *zap.Logger) (*Gateway, error) {
	if log == nil {
		log = zap.NewNop()
	}

	classifier, err := classify.Load(cfg.PatternFile)
	if err != nil {
		return nil, fmt.Errorf("gateway: load risk patterns: %w", err)
	}

	reg := registry.New()
	incidents := incident.New(log.Named("incident"))

	engine := authz.New(reg, incidents)
	engine.SetClassifier(classifier)

	var auth authn.Authenticator
	if cfg.JWTSecret != "" {
		auth = authn.NewJWT([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	} else {
		static := authn.NewStatic()
		for token, claims := range cfg.Tokens {
			static.AddToken(token, claims)
		}
		auth = static
	}

	validator := preflight.New(cfg.MaxPayloadBytes, cfg.Workspace)

	broker := credentials.New([]byte(cfg.ExchangeSecret), "cspgate")

	sandboxOpts := []sandbox.Option{}
	if cfg.ReadOnly {
		sandboxOpts = append(sandboxOpts, sandbox.ReadOnly())
	}
	if len(cfg.NetworkAllowlist) > 0 {
		sandboxOpts = append(sandboxOpts, sandbox.WithNetworkAllowlist(cfg.NetworkAllowlist...))
	}
	box, err := sandbox.New(cfg.Workspace, sandboxOpts...)
	if err != nil {
		return nil, err
	}

	approvals, err := approval.NewStore(cfg.ApprovalDir)
	if err != nil {
		return nil, err
	}

	store, err := receipt.OpenStore(cfg.ReceiptLog)
	if err != nil {
		return nil, err
	}
	emitterOpts := []receipt.EmitterOption{}
	if cfg.SigningKey != "" {
		kp, err := receipt.LoadPrivateKey(cfg.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("gateway: load signing key: %w", err)
		}
		emitterOpts = append(emitterOpts, receipt.WithSigning(kp))
	}
	emitter := receipt.NewEmitter(store, log.Named("receipt"), emitterOpts...)

	if d := alert.NewDispatcher(cfg.Alerts, log.Named("alert")); d != nil {
		emitter.Subscribe(d.ObserveReceipt)
		incidents.Subscribe(d.ObserveIncident)
	}

	g := &Gateway{
		log:       log,
		registry:  reg,
		auth:      auth,
		engine:    engine,
		preflight: validator,
		broker:    broker,
		sandbox:   box,
		incidents: incidents,
		approvals: approvals,
		emitter:   emitter,
	}
	g.applyConfig(cfg)
	return g, nil
}

// applyConfig applies the mutable parts of the configuration: trust and
// risk assignments, tool registrations, grants, and credential bindings.
// Safe to call again on reload.
func (g *Gateway) applyConfig(cfg Config) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for serverID, level := range cfg.Trust {
		g.registry.ConfigureTrust(serverID, parseTrust(level))
	}
	for pattern, category := range cfg.RiskPatterns {
		if c := parseRisk(category); c != "" {
			g.registry.ConfigureRisk(pattern, c)
		}
	}
	for _, tc := range cfg.Tools {
		g.registry.Register(tc.ServerID, tc.Name, tc.Schema)
		if tc.Schema != nil {
			g.preflight.RegisterSchema(tc.Name, tc.Schema)
		}
		if tc.FileTool {
			g.preflight.AddFileTool(tc.Name)
		}
	}
	for _, grant := range cfg.Grants {
		g.engine.Grant(grant.Subject, grant.Tools, parseRisk(grant.MaxRisk))
		if len(grant.Denied) > 0 {
			g.engine.Deny(grant.Subject, grant.Denied)
		}
	}
	for serverID, cred := range cfg.Vault {
		g.broker.ConfigureVault(serverID, cred)
	}
	for serverID, audience := range cfg.Exchange {
		g.broker.ConfigureExchange(serverID, audience)
	}
	for _, serverID := range cfg.PassthroughAllow {
		g.broker.AllowPassthrough(serverID)
	}
}

// Reload re-applies a freshly loaded configuration.
func (g *Gateway) Reload(cfg Config) {
	g.applyConfig(cfg)
	g.log.Info("configuration reloaded")
}

// Registry exposes the tool registry for registration at runtime.
func (g *Gateway) Registry() *registry.Registry { return g.registry }

// Incidents exposes the incident controller for operational actions.
func (g *Gateway) Incidents() *incident.Controller { return g.incidents }

// Approvals exposes the approval store for out-of-band grants.
func (g *Gateway) Approvals() *approval.Store { return g.approvals }

// Emitter exposes the receipt emitter, e.g. for extra listeners.
func (g *Gateway) Emitter() *receipt.Emitter { return g.emitter }

// HandleToolsList authenticates the caller and returns the tools it may
// discover. Listing is non-mutating: the decision is allow or deny, never
// require_approval. One receipt is emitted.
func (g *Gateway) HandleToolsList(token, traceID string) ([]model.ToolEntry, model.Decision, *model.Receipt, error) {
	if traceID == "" {
		traceID = uuid.NewString()
	}

	principal, err := g.auth.Authenticate(token)
	if err != nil {
		d := model.Denied(authFailureCode(err))
		r, emitErr := g.emitDecision(traceID, model.Anonymous(), "tools/list", d, model.NoToken(), nil)
		return nil, d, r, emitErr
	}

	if g.incidents.IsRevoked(principal.Subject) {
		d := model.Denied(model.DenyKillSwitch)
		r, emitErr := g.emitDecision(traceID, principal, "tools/list", d, model.NoToken(), nil)
		return nil, d, r, emitErr
	}

	tools := g.engine.FilterTools(principal, g.registry.ListAll())
	d := model.Allowed()
	r, emitErr := g.emitDecision(traceID, principal, "tools/list", d, model.NoToken(), nil)
	return tools, d, r, emitErr
}

// HandleToolsCall runs the full invocation pipeline. Stages short-circuit:
// the first failing check terminates the request and its receipt records
// that stage's decision.
func (g *Gateway) HandleToolsCall(token, serverID, toolName string, arguments map[string]any, traceID string) (model.Decision, *model.Receipt, error) {
	if traceID == "" {
		traceID = uuid.NewString()
	}

	base := func(p model.Principal) *model.Receipt {
		r := &model.Receipt{
			TraceID:   traceID,
			Principal: p,
			Method:    "tools/call",
			ServerID:  serverID,
			ToolName:  toolName,
		}
		if cmd, ok := arguments["command"].(string); ok {
			r.Command = cmd
		}
		if h, err := receipt.HashArgs(arguments); err == nil {
			r.ArgsHash = h
		}
		if raw, err := json.Marshal(arguments); err == nil {
			r.SizeBytesIn = len(raw)
		}
		return r
	}

	// Authenticate
	principal, err := g.auth.Authenticate(token)
	if err != nil {
		r := base(model.Anonymous())
		r.Decision = model.Denied(authFailureCode(err))
		r.TokenHandling = model.NoToken()
		return r.Decision, r, g.emitter.Emit(r)
	}

	// Incident revocation overrides everything else.
	if g.incidents.IsRevoked(principal.Subject) {
		r := base(principal)
		r.Decision = model.Denied(model.DenyKillSwitch)
		r.TokenHandling = model.NoToken()
		return r.Decision, r, g.emitter.Emit(r)
	}

	// Authorize
	decision := g.engine.Evaluate(principal, toolName, arguments)
	if decision.Result == model.Deny {
		r := g.stampTool(base(principal), arguments)
		r.Decision = decision
		r.TokenHandling = model.NoToken()
		return decision, r, g.emitter.Emit(r)
	}
	approvalUsed := false
	if decision.Result == model.RequireApproval {
		if g.approvals.IsGranted(principal.Subject, toolName) {
			approvalUsed = true
			decision = model.Decision{
				Result:      model.Allow,
				ReasonCodes: []model.ReasonCode{model.AllowPolicyMatch, model.ReasonRequireApproval},
			}
		} else {
			risk := model.RiskCategory("")
			if tool, ok := g.registry.FindByName(toolName); ok {
				risk = g.engine.EffectiveRisk(tool, arguments)
			}
			if err := g.approvals.Request(principal.Subject, toolName, risk, "risk over ceiling"); err != nil {
				g.log.Warn("approval request failed", zap.Error(err))
			}
			r := g.stampTool(base(principal), arguments)
			r.Decision = decision
			r.TokenHandling = model.NoToken()
			return decision, r, g.emitter.Emit(r)
		}
	}

	// Preflight
	if pf := g.preflight.Validate(toolName, arguments); pf.Result == model.Deny {
		r := g.stampTool(base(principal), arguments)
		r.Decision = pf
		r.TokenHandling = model.NoToken()
		return pf, r, g.emitter.Emit(r)
	}

	// Broker upstream credentials when a target server is named.
	handling := model.NoToken()
	if serverID != "" {
		resolved, _, err := g.broker.Resolve(serverID, principal, authn.StripBearer(token))
		if err != nil {
			d := model.Denied(model.DenyPassthroughBlocked)
			r := g.stampTool(base(principal), arguments)
			r.Decision = d
			r.TokenHandling = model.TokenHandling{Mode: model.TokenBlocked}
			if emitErr := g.emitter.Emit(r); emitErr != nil {
				return d, r, emitErr
			}
			return d, r, err
		}
		if resolved.PassthroughDetected {
			d := model.Denied(model.DenyPassthroughBlocked)
			r := g.stampTool(base(principal), arguments)
			r.Decision = d
			r.TokenHandling = resolved
			return d, r, g.emitter.Emit(r)
		}
		handling = resolved
	}

	// The grant is spent only now, once every later stage has passed; a
	// deny above leaves a one-time approval intact for the retry.
	if approvalUsed {
		if err := g.approvals.Redeem(principal.Subject, toolName); err != nil {
			g.log.Warn("approval redeem failed", zap.Error(err))
		}
	}

	// Allow: attach sandbox policy strings and the success outcome.
	r := g.stampTool(base(principal), arguments)
	r.Decision = decision
	r.TokenHandling = handling
	r.Outcome = "success"
	r.SandboxFSPolicy = g.sandbox.FSPolicy()
	r.SandboxNetPolicy = g.sandbox.NetPolicy()
	return decision, r, g.emitter.Emit(r)
}

// stampTool fills trust and effective risk from the registry entry.
func (g *Gateway) stampTool(r *model.Receipt, arguments map[string]any) *model.Receipt {
	if tool, ok := g.registry.FindByName(r.ToolName); ok {
		r.TrustLevel = tool.TrustLevel
		r.RiskLevel = g.engine.EffectiveRisk(tool, arguments)
	}
	return r
}

// SubmitPlan records pre-approved intent as a plan receipt and returns it.
func (g *Gateway) SubmitPlan(subject, summary string, steps []model.PlanStep, traceID string) (*model.Receipt, error) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	plan := &model.Plan{
		PlanID:  uuid.NewString(),
		Subject: subject,
		Summary: summary,
		Steps:   steps,
	}
	r := &model.Receipt{
		ReceiptType:   model.TypePlan,
		TraceID:       traceID,
		Principal:     model.Principal{Subject: subject, ActorType: model.ActorAgent},
		Method:        "plan/submit",
		Decision:      model.Decision{Result: model.Allow},
		TokenHandling: model.NoToken(),
		PlanID:        plan.PlanID,
		Plan:          plan,
	}
	if err := g.emitter.Emit(r); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordVerdict binds an authority's verdict to a plan receipt by hash and
// emits the verdict receipt with a parent link to that plan.
func (g *Gateway) RecordVerdict(authority string, planReceipt *model.Receipt, verdict, rationale string) (*model.Receipt, error) {
	if planReceipt == nil || planReceipt.ReceiptHash == "" {
		return nil, errors.New("gateway: verdict requires a sealed plan receipt")
	}
	v := &model.Verdict{
		VerdictID: uuid.NewString(),
		PlanID:    planReceipt.PlanID,
		PlanHash:  planReceipt.ReceiptHash,
		Verdict:   verdict,
		Rationale: rationale,
		Authority: authority,
	}
	r := &model.Receipt{
		ReceiptType:   model.TypeVerdict,
		TraceID:       planReceipt.TraceID,
		Principal:     model.Principal{Subject: authority, ActorType: model.ActorSystem},
		Method:        "plan/verdict",
		Decision:      model.Decision{Result: model.Allow},
		TokenHandling: model.NoToken(),
		PlanID:        planReceipt.PlanID,
		Verdict:       v,
		ParentHashes:  []string{planReceipt.ReceiptHash},
	}
	if err := g.emitter.Emit(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (g *Gateway) emitDecision(traceID string, p model.Principal, method string, d model.Decision, th model.TokenHandling, arguments map[string]any) (*model.Receipt, error) {
	r := &model.Receipt{
		TraceID:       traceID,
		Principal:     p,
		Method:        method,
		Decision:      d,
		TokenHandling: th,
	}
	if arguments != nil {
		if h, err := receipt.HashArgs(arguments); err == nil {
			r.ArgsHash = h
		}
	}
	return r, g.emitter.Emit(r)
}

func authFailureCode(err error) model.ReasonCode {
	if errors.Is(err, authn.ErrInvalidToken) {
		return model.DenyInvalidToken
	}
	return model.DenyNoAuthn
}
