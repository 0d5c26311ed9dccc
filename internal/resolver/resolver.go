// Package resolver turns logical resource names into capability
// grants. It owns the decision pipeline: cached definition lookup,
// policy evaluation, descriptor construction, token signing, and the
// terminal audit event for every flow.
package resolver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/butterflysys/butterfly/internal/audit"
	"github.com/butterflysys/butterfly/internal/cache"
	"github.com/butterflysys/butterfly/internal/capability"
	"github.com/butterflysys/butterfly/internal/observability"
	"github.com/butterflysys/butterfly/internal/policy"
	"github.com/butterflysys/butterfly/internal/resource"
	"github.com/butterflysys/butterfly/internal/secrets"
	"github.com/butterflysys/butterfly/internal/storage"
)

// ownerPlaceholder is substituted in address templates with the owner
// id derived from the logical name.
const ownerPlaceholder = "{ownerId}"

// Resolver brokers access to registered resources.
type Resolver interface {
	// Resolve evaluates the caller against the named resource and
	// returns its connection descriptor, or a classified error.
	Resolve(ctx context.Context, name string, sc *SecurityContext) (capability.Descriptor, error)

	// Grant resolves the resource, checks that the satisfying claim
	// covers the requested operation, and on success signs a token
	// and wraps it in a grant for that operation.
	Grant(ctx context.Context, name string, sc *SecurityContext, op capability.Operation) (capability.Grant, error)

	// Sign issues a capability token for a resolved descriptor.
	Sign(descriptor capability.Descriptor, lifetime time.Duration) (*capability.Token, error)

	// Validate checks a token against this resolver's signing key,
	// auditing any failure.
	Validate(ctx context.Context, token *capability.Token, callerID string) error

	// RegisterConnection validates and stores a definition,
	// invalidating any cached copy before acknowledging.
	RegisterConnection(ctx context.Context, def *resource.Definition) error

	// ResolveCredential fetches the credential material referenced
	// by a descriptor, when a secrets provider is configured.
	ResolveCredential(ctx context.Context, descriptor capability.Descriptor) (*secrets.Credential, error)

	// Close releases the resolver's resources.
	Close() error
}

// resolver implements Resolver.
type resolver struct {
	store     storage.Store
	cache     *cache.DefinitionCache
	evaluator *policy.Evaluator
	auditor   audit.Logger
	provider  secrets.Provider
	logger    observability.Logger
	metrics   *Metrics

	signingKey    []byte
	tokenLifetime time.Duration
	cacheTTL      time.Duration
	cacheMetrics  *cache.Metrics
}

// Option is a functional option for the resolver.
type Option func(*resolver)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *resolver) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(r *resolver) {
		r.metrics = metrics
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(auditor audit.Logger) Option {
	return func(r *resolver) {
		r.auditor = auditor
	}
}

// WithEvaluator sets the policy evaluator.
func WithEvaluator(evaluator *policy.Evaluator) Option {
	return func(r *resolver) {
		r.evaluator = evaluator
	}
}

// WithSecretsProvider sets the credential provider.
func WithSecretsProvider(provider secrets.Provider) Option {
	return func(r *resolver) {
		r.provider = provider
	}
}

// WithSigningKey sets the token signing key. Without it a random key
// is generated, so tokens do not survive a restart.
func WithSigningKey(key []byte) Option {
	return func(r *resolver) {
		r.signingKey = key
	}
}

// WithTokenLifetime sets the default token lifetime.
func WithTokenLifetime(lifetime time.Duration) Option {
	return func(r *resolver) {
		if lifetime > 0 {
			r.tokenLifetime = lifetime
		}
	}
}

// WithCacheTTL sets the definition cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *resolver) {
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// WithCacheMetrics sets the definition cache metrics.
func WithCacheMetrics(metrics *cache.Metrics) Option {
	return func(r *resolver) {
		r.cacheMetrics = metrics
	}
}

// New creates a resolver over the store. Each resolver is an
// independent registry handle; a process may run several against
// different stores.
func New(store storage.Store, opts ...Option) (Resolver, error) {
	r := &resolver{
		store:         store,
		logger:        observability.NopLogger(),
		auditor:       audit.NopLogger(),
		tokenLifetime: capability.DefaultLifetime,
		cacheTTL:      cache.DefaultTTL,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.evaluator == nil {
		r.evaluator = policy.NewEvaluator(policy.WithLogger(r.logger))
	}
	if r.metrics == nil {
		r.metrics = NewMetrics("butterfly")
	}
	if len(r.signingKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		r.signingKey = key
	}

	cacheOpts := []cache.Option{
		cache.WithTTL(r.cacheTTL),
		cache.WithLogger(r.logger),
	}
	if r.cacheMetrics != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics(r.cacheMetrics))
	}
	r.cache = cache.New(
		func(ctx context.Context, name string) (*resource.Definition, error) {
			return store.GetConnection(ctx, name)
		},
		cacheOpts...,
	)

	return r, nil
}

// Resolve evaluates the caller against the named resource. Exactly one
// terminal audit event is recorded per call, success or failure,
// stamped with the flow's trace id.
func (r *resolver) Resolve(ctx context.Context, name string, sc *SecurityContext) (capability.Descriptor, error) {
	return r.resolveOperation(ctx, name, sc, "")
}

// resolveOperation is the instrumented pipeline shared by Resolve and
// Grant. An empty operation skips the claim coverage check.
func (r *resolver) resolveOperation(ctx context.Context, name string, sc *SecurityContext, op capability.Operation) (capability.Descriptor, error) {
	start := time.Now()

	if observability.TraceIDFromContext(ctx) == "" {
		ctx = observability.ContextWithTraceID(ctx, uuid.NewString())
	}

	tracer := otel.Tracer("butterfly/resolver")
	ctx, span := tracer.Start(ctx, "resolver.Resolve",
		trace.WithAttributes(
			attribute.String("resource.name", name),
			attribute.String("caller.id", sc.callerID()),
		),
	)
	defer span.End()

	descriptor, err := r.resolve(ctx, name, sc, op)

	outcome := outcomeFor(err)
	span.SetAttributes(attribute.String("resolve.outcome", outcome))
	r.metrics.RecordResolution(outcome, time.Since(start))

	return descriptor, err
}

func (r *resolver) resolve(ctx context.Context, name string, sc *SecurityContext, op capability.Operation) (capability.Descriptor, error) {
	caller := sc.callerID()
	log := r.logger.WithContext(ctx)

	def, err := r.cache.Get(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.auditor.LogHandshakeFailure(ctx, caller, name, "not_found")
			return capability.Descriptor{}, newResolveError(ErrNotFound, caller, name, "not_found")
		}

		log.Error("definition lookup failed",
			observability.String("resource", name),
			observability.Error(err),
		)
		r.auditor.LogHandshakeFailure(ctx, caller, name, "definition store unavailable")
		return capability.Descriptor{}, newResolveError(ErrUnavailable, caller, name, "definition store unavailable")
	}

	ownerID := resource.OwnerID(name)
	result, err := r.evaluate(def, sc, ownerID)
	if err != nil {
		log.Error("resource policy cannot be evaluated",
			observability.String("resource", name),
			observability.Error(err),
		)
		r.auditor.LogHandshakeFailure(ctx, caller, name, "malformed resource policy")
		return capability.Descriptor{}, newResolveError(ErrMalformedPolicy, caller, name, "malformed resource policy")
	}

	if !result.Met {
		r.auditor.LogHandshakeFailure(ctx, caller, name, result.Reason)
		return capability.Descriptor{}, newResolveError(ErrPolicyDenied, caller, name, result.Reason)
	}

	if op != "" && result.Claim != nil && !claimCoversOperation(result.Claim, op) {
		reason := fmt.Sprintf("claim %s does not cover operation %q", result.Claim, op)
		r.auditor.LogHandshakeFailure(ctx, caller, name, reason)
		return capability.Descriptor{}, newResolveError(ErrPolicyDenied, caller, name, reason)
	}

	descriptor := capability.Descriptor{
		Protocol:      def.Descriptor.Protocol,
		Address:       strings.ReplaceAll(def.Descriptor.AddressTemplate, ownerPlaceholder, ownerID),
		CredentialRef: def.Descriptor.CredentialRef,
	}

	r.auditor.LogHandshakeSuccess(ctx, caller, name, result.Reason)
	log.Debug("resolution granted",
		observability.String("resource", name),
		observability.String("caller", caller),
	)

	return descriptor, nil
}

// evaluate dispatches to the policy kind the definition carries.
// Definitions are validated at registration, but a store can hand back
// anything, so both-or-neither still fails closed here.
func (r *resolver) evaluate(def *resource.Definition, sc *SecurityContext, ownerID string) (policy.Result, error) {
	pc := sc.policyContext(ownerID)

	switch {
	case def.Requirement != nil && def.Vector != nil:
		return policy.Result{}, fmt.Errorf("%w: definition carries both policy kinds", policy.ErrMalformed)

	case def.Requirement != nil:
		node, err := def.Requirement.Compile()
		if err != nil {
			return policy.Result{}, err
		}
		var claims []policy.Claim
		if sc != nil {
			claims = sc.Claims
		}
		return r.evaluator.Evaluate(node, claims, pc), nil

	case def.Vector != nil:
		return r.evaluator.EvaluateVector(def.Vector, pc), nil

	default:
		return policy.Result{}, fmt.Errorf("%w: definition carries no policy", policy.ErrMalformed)
	}
}

// Grant resolves and signs in one step. The grant's operation is
// bounded by the claim that satisfied the policy: a claim granting
// only "read" never yields a delete grant.
func (r *resolver) Grant(ctx context.Context, name string, sc *SecurityContext, op capability.Operation) (capability.Grant, error) {
	descriptor, err := r.resolveOperation(ctx, name, sc, op)
	if err != nil {
		return nil, err
	}

	token, err := r.Sign(descriptor, r.tokenLifetime)
	if err != nil {
		return nil, err
	}

	return capability.NewGrant(op, token)
}

// Sign issues a capability token for a descriptor.
func (r *resolver) Sign(descriptor capability.Descriptor, lifetime time.Duration) (*capability.Token, error) {
	if lifetime <= 0 {
		lifetime = r.tokenLifetime
	}
	return capability.Sign(r.signingKey, descriptor, lifetime)
}

// Validate checks a token, auditing any failure as a pointer failure.
func (r *resolver) Validate(ctx context.Context, token *capability.Token, callerID string) error {
	err := token.Validate(r.signingKey)
	if err != nil {
		r.auditor.LogPointerFailure(ctx, callerID, token.Descriptor().Address, err.Error())
	}
	return err
}

// RegisterConnection validates, stores, and invalidates. The cached
// entry is dropped before the write is acknowledged so no reader can
// observe the old definition after registration returns.
func (r *resolver) RegisterConnection(ctx context.Context, def *resource.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	if err := r.store.RegisterConnection(ctx, def); err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return newResolveError(ErrUnavailable, "", def.Name, "definition store unavailable")
		}
		return err
	}

	r.cache.Invalidate(def.Name)

	r.logger.WithContext(ctx).Info("connection registered",
		observability.String("resource", def.Name),
	)
	return nil
}

// ResolveCredential fetches the credential behind a descriptor's
// reference. The material is returned to the caller and nowhere else.
func (r *resolver) ResolveCredential(ctx context.Context, descriptor capability.Descriptor) (*secrets.Credential, error) {
	if descriptor.CredentialRef == "" {
		return nil, nil
	}
	if r.provider == nil {
		return nil, errors.New("no secrets provider configured")
	}
	return r.provider.Resolve(ctx, descriptor.CredentialRef)
}

// Close releases the resolver's resources.
func (r *resolver) Close() error {
	r.cache.Close()
	return r.auditor.Close()
}

// claimCoversOperation reports whether the granting claim's action
// covers the requested operation. Grants earned without a claim
// (condition-only and vector policies) are not bounded here.
func claimCoversOperation(claim *policy.Claim, op capability.Operation) bool {
	return claim.Action == policy.Wildcard || claim.Action == string(op)
}

// outcomeFor maps a resolution error to its metrics label.
func outcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeGranted
	case errors.Is(err, ErrPolicyDenied):
		return OutcomeDenied
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, ErrMalformedPolicy):
		return OutcomeMalformed
	default:
		return OutcomeError
	}
}

// Ensure resolver implements Resolver.
var _ Resolver = (*resolver)(nil)
