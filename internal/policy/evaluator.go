package policy

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/butterflysys/butterfly/internal/observability"
)

// Condition tags recognized by the evaluator. Any other tag denies.
const (
	// ConditionIsOwner holds when the caller is the resource owner.
	ConditionIsOwner = "isOwner"

	// ConditionIsBusinessHours holds Monday through Friday between
	// 09:00 inclusive and 17:00 exclusive.
	ConditionIsBusinessHours = "isBusinessHours"

	// ConditionIsOnCall holds when the caller is flagged as on call.
	ConditionIsOnCall = "isOnCall"
)

// Context carries the runtime facts a requirement is evaluated
// against. It is derived from the caller's security context and the
// resource being resolved, never from the policy itself.
type Context struct {
	// CallerID identifies the caller.
	CallerID string

	// OwnerID identifies the resource owner, when the resource has
	// one. Empty means ownership is unknown, so isOwner denies.
	OwnerID string

	// OnCall indicates the caller holds an active on-call shift.
	OnCall bool

	// Now is the evaluation time. Zero means time.Now.
	Now time.Time

	// Attributes holds the caller attributes projected by vector
	// policies.
	Attributes map[string]any
}

func (c *Context) now() time.Time {
	if c == nil || c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// Evaluator evaluates boolean requirement trees and vector policies
// against caller claims and context. A single evaluator is safe for
// concurrent use and may be shared by multiple resolvers.
type Evaluator struct {
	logger  observability.Logger
	metrics *Metrics

	mu            sync.RWMutex
	compiledRegex map[string]*regexp.Regexp
}

// Option is a functional option for the evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = metrics
	}
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		logger:        observability.NopLogger(),
		compiledRegex: make(map[string]*regexp.Regexp),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics("butterfly")
	}

	return e
}

// Evaluate evaluates a requirement tree against the caller's claims.
// Evaluation is total: every tree produces a Result, and unknown
// conditions or nodes deny with a descriptive reason.
func (e *Evaluator) Evaluate(node Node, claims []Claim, ec *Context) Result {
	start := time.Now()

	result := e.eval(node, claims, ec)

	e.metrics.RecordEvaluation(EngineBoolean, decisionLabel(result.Met), time.Since(start))
	e.logger.Debug("requirement evaluated",
		observability.Bool("met", result.Met),
		observability.String("reason", result.Reason),
	)

	return result
}

func (e *Evaluator) eval(node Node, claims []Claim, ec *Context) Result {
	switch n := node.(type) {
	case Leaf:
		return e.checkPermission(n, claims, ec)
	case *Leaf:
		return e.checkPermission(*n, claims, ec)
	case ConditionNode:
		return e.evalCondition(n.Tag, ec)
	case *ConditionNode:
		return e.evalCondition(n.Tag, ec)
	case And:
		return e.evalAnd(n, claims, ec)
	case *And:
		return e.evalAnd(*n, claims, ec)
	case Or:
		return e.evalOr(n, claims, ec)
	case *Or:
		return e.evalOr(*n, claims, ec)
	case nil:
		return Result{Met: false, Reason: "malformed requirement: nil node"}
	default:
		// Unreachable with the closed grammar, but deny anyway.
		return Result{Met: false, Reason: fmt.Sprintf("unknown requirement node %T", node)}
	}
}

func (e *Evaluator) evalAnd(n And, claims []Claim, ec *Context) Result {
	var granting *Claim
	for _, clause := range n.Clauses {
		r := e.eval(clause, claims, ec)
		if !r.Met {
			return Result{Met: false, Reason: r.Reason}
		}
		if granting == nil && r.Claim != nil {
			granting = r.Claim
		}
	}
	return Result{Met: true, Claim: granting, Reason: "all clauses satisfied"}
}

func (e *Evaluator) evalOr(n Or, claims []Claim, ec *Context) Result {
	reasons := make([]string, 0, len(n.Clauses))
	for _, clause := range n.Clauses {
		r := e.eval(clause, claims, ec)
		if r.Met {
			return r
		}
		reasons = append(reasons, r.Reason)
	}
	if len(reasons) == 0 {
		return Result{Met: false, Reason: "no clause satisfied: requirement is empty"}
	}
	return Result{Met: false, Reason: "no clause satisfied: " + strings.Join(reasons, "; ")}
}

// CheckPermission reports whether any claim grants the required action
// on the required resource type. The first satisfying claim wins and
// is carried in the result; when none does, the reason echoes the
// unmet requirement.
func (e *Evaluator) CheckPermission(req Leaf, claims []Claim, ec *Context) Result {
	start := time.Now()

	result := e.checkPermission(req, claims, ec)

	e.metrics.RecordEvaluation(EngineBoolean, decisionLabel(result.Met), time.Since(start))

	return result
}

func (e *Evaluator) checkPermission(req Leaf, claims []Claim, ec *Context) Result {
	for _, claim := range claims {
		if !e.claimMatches(claim, req.Action, req.ResourceType) {
			continue
		}
		if claim.Condition != "" {
			if cond := e.evalCondition(claim.Condition, ec); !cond.Met {
				continue
			}
		}
		granted := claim
		return Result{Met: true, Claim: &granted, Reason: fmt.Sprintf("granted by claim %s", claim)}
	}
	return Result{Met: false, Reason: fmt.Sprintf("no claim grants %q on %q", req.Action, req.ResourceType)}
}

// claimMatches reports whether a claim covers the action and resource
// type. Regex resource patterns that fail to compile never match.
func (e *Evaluator) claimMatches(claim Claim, action, resourceType string) bool {
	if claim.Action != Wildcard && claim.Action != action {
		return false
	}
	if claim.ResourceType == Wildcard {
		return true
	}
	if pattern, ok := strings.CutPrefix(claim.ResourceType, RegexPrefix); ok {
		re := e.getCompiledRegex(pattern)
		return re != nil && re.MatchString(resourceType)
	}
	return claim.ResourceType == resourceType
}

func (e *Evaluator) evalCondition(tag string, ec *Context) Result {
	switch tag {
	case ConditionIsOwner:
		if ec != nil && ec.CallerID != "" && ec.CallerID == ec.OwnerID {
			return Result{Met: true, Reason: "condition isOwner satisfied"}
		}
		return Result{Met: false, Reason: "condition isOwner not satisfied: caller is not the resource owner"}

	case ConditionIsBusinessHours:
		now := ec.now()
		if isBusinessHours(now) {
			return Result{Met: true, Reason: "condition isBusinessHours satisfied"}
		}
		return Result{Met: false, Reason: fmt.Sprintf("condition isBusinessHours not satisfied: %s is outside business hours", now.Format("Mon 15:04"))}

	case ConditionIsOnCall:
		if ec != nil && ec.OnCall {
			return Result{Met: true, Reason: "condition isOnCall satisfied"}
		}
		return Result{Met: false, Reason: "condition isOnCall not satisfied: caller is not on call"}

	default:
		e.logger.Warn("unknown condition tag", observability.String("tag", tag))
		return Result{Met: false, Reason: fmt.Sprintf("unknown condition %q", tag)}
	}
}

// isBusinessHours reports whether t falls Monday through Friday with
// the hour in [9, 17).
func isBusinessHours(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return t.Hour() >= 9 && t.Hour() < 17
}

// getCompiledRegex returns a compiled regex, caching it for reuse.
func (e *Evaluator) getCompiledRegex(pattern string) *regexp.Regexp {
	e.mu.RLock()
	re, ok := e.compiledRegex[pattern]
	e.mu.RUnlock()

	if ok {
		return re
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.compiledRegex[pattern]; ok {
		return re
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		e.logger.Warn("failed to compile claim resource pattern",
			observability.String("pattern", pattern),
			observability.Error(err),
		)
		// Cache the failure so a hot malformed claim compiles once.
		e.compiledRegex[pattern] = nil
		return nil
	}

	e.compiledRegex[pattern] = compiled
	return compiled
}

func decisionLabel(met bool) string {
	if met {
		return "granted"
	}
	return "denied"
}
