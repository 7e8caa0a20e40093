package perm

import (
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avguard/internal/observability"
)

// permTracer is the OTEL tracer used for permission evaluations.
var permTracer = otel.Tracer("avguard/perm")

// GroupResolver maps a requester identity to the groups it belongs to.
// Resolver errors are propagated to the caller of Evaluate unchanged.
type GroupResolver func(ctx context.Context, user string) ([]string, error)

// Decision represents the outcome of a permission evaluation.
type Decision struct {
	// Allowed indicates if access is granted.
	Allowed bool

	// Reason is the reason for the decision.
	Reason string

	// Cached indicates if the group lookup was answered from cache.
	Cached bool
}

// Engine evaluates permission specs against requester identities.
//
// Evaluation is deterministic: the three access checks are OR'd in the
// fixed order other, owner, group, and the first grant short-circuits.
// The engine keeps no per-request state; the same spec and identity
// always yield the same decision modulo the resolver's data.
type Engine struct {
	resolver   GroupResolver
	membership *Membership
	logger     observability.Logger
	metrics    *Metrics
}

// EngineOption is a functional option for the engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithGroupResolver sets the group resolver. Without a resolver (and
// without a membership cache) no group ever matches.
func WithGroupResolver(resolver GroupResolver) EngineOption {
	return func(e *Engine) {
		e.resolver = resolver
	}
}

// WithMembership routes group lookups through a membership cache. The
// cache takes precedence over a plain resolver.
func WithMembership(membership *Membership) EngineOption {
	return func(e *Engine) {
		e.membership = membership
	}
}

// NewEngine creates a new permission engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics("avguard")
	}

	return e
}

// Evaluate evaluates a spec against the identity of the current
// requester. An empty identity means the requester is anonymous.
//
// The returned error is nil for both grant and deny; only resolver or
// store failures produce an error, and those are returned unchanged.
func (e *Engine) Evaluate(ctx context.Context, spec Spec, identity string) (*Decision, error) {
	start := time.Now()
	form := spec.form()

	ctx, span := permTracer.Start(ctx, "perm.evaluate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("perm.form", form),
			attribute.Int("perm.mode", spec.Mode),
			attribute.String("perm.subject", identity),
		),
	)
	defer span.End()

	decision, err := e.evaluate(ctx, spec, identity)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		e.metrics.RecordEvaluation(form, "error", time.Since(start))
		return nil, err
	}

	result := "denied"
	if decision.Allowed {
		result = "granted"
	}
	e.metrics.RecordEvaluation(form, result, time.Since(start))

	span.SetAttributes(
		attribute.Bool("perm.allowed", decision.Allowed),
		attribute.String("perm.reason", decision.Reason),
		attribute.Bool("perm.cached", decision.Cached),
	)

	e.logger.Debug("permission decision",
		observability.String("subject", identity),
		observability.String("form", form),
		observability.Bool("allowed", decision.Allowed),
		observability.String("reason", decision.Reason),
	)

	return decision, nil
}

// evaluate runs the three access checks in fixed order.
func (e *Engine) evaluate(ctx context.Context, spec Spec, identity string) (*Decision, error) {
	b := spec.decode()

	// Everyone is granted access, identity does not matter.
	if b.other {
		return &Decision{Allowed: true, Reason: "other access"}, nil
	}

	// An anonymous requester must never match an unset owner.
	if b.owner && spec.Owner != "" && identity == spec.Owner {
		return &Decision{Allowed: true, Reason: "owner access"}, nil
	}

	if b.group && spec.Group != "" {
		member, cached, err := e.userInGroup(ctx, identity, spec.Group)
		if err != nil {
			return nil, err
		}
		if member {
			return &Decision{Allowed: true, Reason: "group access", Cached: cached}, nil
		}
	}

	return &Decision{Allowed: false, Reason: "no access rule matched"}, nil
}

// userInGroup answers the group-membership question through the
// membership cache if one is configured, else through the resolver.
func (e *Engine) userInGroup(ctx context.Context, user, group string) (member, cached bool, err error) {
	if e.membership != nil {
		return e.membership.Lookup(ctx, user, group)
	}

	if e.resolver == nil {
		return false, false, nil
	}

	groups, err := e.resolver(ctx, user)
	if err != nil {
		return false, false, err
	}

	return slices.Contains(groups, group), false, nil
}

// form names the rule form for metrics and tracing.
func (s Spec) form() string {
	if s.Mode != 0 {
		return "chmod"
	}
	return "chown"
}
