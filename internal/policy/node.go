// Package policy implements the access requirement grammar attached to
// resource definitions and the engines that evaluate it: a boolean
// requirement tree and a cosine-similarity vector policy. Evaluation is
// total — every input produces a grant or a denial with a reason, and
// anything unrecognized denies.
package policy

import "fmt"

// Node is a node in a boolean requirement tree. The set of
// implementations is closed: Leaf, ConditionNode, And, Or.
type Node interface {
	// node restricts the grammar to the types defined in this package.
	node()
}

// Leaf requires the caller to hold a claim granting an action on a
// resource type.
type Leaf struct {
	// Action is the required action, e.g. "read".
	Action string

	// ResourceType is the required resource type, e.g. "report".
	ResourceType string
}

// ConditionNode requires a named runtime condition to hold.
type ConditionNode struct {
	// Tag names the condition, e.g. "isOwner".
	Tag string
}

// And requires every clause to be satisfied.
type And struct {
	Clauses []Node
}

// Or requires at least one clause to be satisfied.
type Or struct {
	Clauses []Node
}

func (Leaf) node()          {}
func (ConditionNode) node() {}
func (And) node()          {}
func (Or) node()           {}

// Result is the outcome of evaluating a node or a permission check.
type Result struct {
	// Met indicates whether the requirement was satisfied.
	Met bool

	// Claim is the claim that satisfied the requirement, when one did.
	// Nil on denial and on grants earned without a claim (condition
	// and vector policies).
	Claim *Claim

	// Reason explains the outcome. Always populated on denial; on a
	// grant it names the satisfying claim or condition.
	Reason string
}

// Wildcard matches any action or resource type in a claim.
const Wildcard = "*"

// RegexPrefix marks a claim resource type as a regular expression
// pattern applied to the requirement's resource type.
const RegexPrefix = "regex:"

// Claim is a single granted permission held by a caller.
type Claim struct {
	// Action is the granted action, or "*".
	Action string `json:"action" yaml:"action"`

	// ResourceType is the granted resource type, "*", or a
	// "regex:" pattern.
	ResourceType string `json:"resourceType" yaml:"resourceType"`

	// Condition optionally restricts the claim to a named runtime
	// condition that must hold when the claim is used.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// String renders the claim for reasons and logs.
func (c Claim) String() string {
	if c.Condition != "" {
		return fmt.Sprintf("%s:%s if %s", c.Action, c.ResourceType, c.Condition)
	}
	return fmt.Sprintf("%s:%s", c.Action, c.ResourceType)
}
