package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday 2026-01-07 is used as the in-hours anchor.
var (
	midWeekMorning = time.Date(2026, 1, 7, 10, 30, 0, 0, time.UTC)
	midWeekEvening = time.Date(2026, 1, 7, 18, 0, 0, 0, time.UTC)
	saturday       = time.Date(2026, 1, 10, 10, 30, 0, 0, time.UTC)
)

func TestEvaluateLeaf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		node    Node
		claims  []Claim
		wantMet bool
	}{
		{
			name:    "exact match",
			node:    Leaf{Action: "read", ResourceType: "report"},
			claims:  []Claim{{Action: "read", ResourceType: "report"}},
			wantMet: true,
		},
		{
			name:    "wildcard action",
			node:    Leaf{Action: "delete", ResourceType: "report"},
			claims:  []Claim{{Action: "*", ResourceType: "report"}},
			wantMet: true,
		},
		{
			name:    "wildcard resource type",
			node:    Leaf{Action: "read", ResourceType: "invoice"},
			claims:  []Claim{{Action: "read", ResourceType: "*"}},
			wantMet: true,
		},
		{
			name:    "regex resource type",
			node:    Leaf{Action: "read", ResourceType: "report-2026"},
			claims:  []Claim{{Action: "read", ResourceType: "regex:^report-"}},
			wantMet: true,
		},
		{
			name:    "regex non-match",
			node:    Leaf{Action: "read", ResourceType: "invoice"},
			claims:  []Claim{{Action: "read", ResourceType: "regex:^report-"}},
			wantMet: false,
		},
		{
			name:    "malformed regex fails closed",
			node:    Leaf{Action: "read", ResourceType: "report"},
			claims:  []Claim{{Action: "read", ResourceType: "regex:[unclosed"}},
			wantMet: false,
		},
		{
			name:    "action mismatch",
			node:    Leaf{Action: "write", ResourceType: "report"},
			claims:  []Claim{{Action: "read", ResourceType: "report"}},
			wantMet: false,
		},
		{
			name:    "no claims",
			node:    Leaf{Action: "read", ResourceType: "report"},
			claims:  nil,
			wantMet: false,
		},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := e.Evaluate(tt.node, tt.claims, &Context{Now: midWeekMorning})
			assert.Equal(t, tt.wantMet, result.Met)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestEvaluateConditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tag     string
		ec      *Context
		wantMet bool
	}{
		{
			name:    "owner matches",
			tag:     ConditionIsOwner,
			ec:      &Context{CallerID: "acct-42", OwnerID: "acct-42"},
			wantMet: true,
		},
		{
			name:    "owner mismatch",
			tag:     ConditionIsOwner,
			ec:      &Context{CallerID: "acct-99", OwnerID: "acct-42"},
			wantMet: false,
		},
		{
			name:    "owner unknown",
			tag:     ConditionIsOwner,
			ec:      &Context{CallerID: "", OwnerID: ""},
			wantMet: false,
		},
		{
			name:    "business hours weekday morning",
			tag:     ConditionIsBusinessHours,
			ec:      &Context{Now: midWeekMorning},
			wantMet: true,
		},
		{
			name:    "business hours start inclusive",
			tag:     ConditionIsBusinessHours,
			ec:      &Context{Now: time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)},
			wantMet: true,
		},
		{
			name:    "business hours end exclusive",
			tag:     ConditionIsBusinessHours,
			ec:      &Context{Now: time.Date(2026, 1, 7, 17, 0, 0, 0, time.UTC)},
			wantMet: false,
		},
		{
			name:    "business hours weekday evening",
			tag:     ConditionIsBusinessHours,
			ec:      &Context{Now: midWeekEvening},
			wantMet: false,
		},
		{
			name:    "business hours saturday",
			tag:     ConditionIsBusinessHours,
			ec:      &Context{Now: saturday},
			wantMet: false,
		},
		{
			name:    "on call",
			tag:     ConditionIsOnCall,
			ec:      &Context{OnCall: true},
			wantMet: true,
		},
		{
			name:    "not on call",
			tag:     ConditionIsOnCall,
			ec:      &Context{OnCall: false},
			wantMet: false,
		},
		{
			name:    "unknown tag fails closed",
			tag:     "isWizard",
			ec:      &Context{CallerID: "acct-42", OwnerID: "acct-42", OnCall: true},
			wantMet: false,
		},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := e.Evaluate(ConditionNode{Tag: tt.tag}, nil, tt.ec)
			assert.Equal(t, tt.wantMet, result.Met)
		})
	}
}

func TestEvaluateUnknownConditionReason(t *testing.T) {
	t.Parallel()

	e := NewEvaluator()
	result := e.Evaluate(ConditionNode{Tag: "isWizard"}, nil, &Context{})
	require.False(t, result.Met)
	assert.Contains(t, result.Reason, `unknown condition "isWizard"`)
}

func TestEvaluateAnd(t *testing.T) {
	t.Parallel()

	e := NewEvaluator()
	claims := []Claim{{Action: "read", ResourceType: "report"}}

	node := And{Clauses: []Node{
		Leaf{Action: "read", ResourceType: "report"},
		ConditionNode{Tag: ConditionIsOwner},
	}}

	// Both satisfied.
	result := e.Evaluate(node, claims, &Context{CallerID: "acct-42", OwnerID: "acct-42"})
	assert.True(t, result.Met)

	// Ownership fails: the reason names the failing clause.
	result = e.Evaluate(node, claims, &Context{CallerID: "acct-99", OwnerID: "acct-42"})
	require.False(t, result.Met)
	assert.Contains(t, result.Reason, "isOwner")
}

func TestEvaluateOr(t *testing.T) {
	t.Parallel()

	e := NewEvaluator()
	node := Or{Clauses: []Node{
		ConditionNode{Tag: ConditionIsOwner},
		ConditionNode{Tag: ConditionIsOnCall},
	}}

	// One branch suffices.
	result := e.Evaluate(node, nil, &Context{CallerID: "a", OwnerID: "b", OnCall: true})
	assert.True(t, result.Met)

	// Total failure aggregates every branch's reason.
	result = e.Evaluate(node, nil, &Context{CallerID: "a", OwnerID: "b", OnCall: false})
	require.False(t, result.Met)
	assert.Contains(t, result.Reason, "isOwner")
	assert.Contains(t, result.Reason, "isOnCall")
}

func TestEvaluateNestedTree(t *testing.T) {
	t.Parallel()

	e := NewEvaluator()

	// read permission AND (owner OR on-call during business hours)
	node := And{Clauses: []Node{
		Leaf{Action: "read", ResourceType: "report"},
		Or{Clauses: []Node{
			ConditionNode{Tag: ConditionIsOwner},
			And{Clauses: []Node{
				ConditionNode{Tag: ConditionIsOnCall},
				ConditionNode{Tag: ConditionIsBusinessHours},
			}},
		}},
	}}
	claims := []Claim{{Action: "read", ResourceType: "report"}}

	tests := []struct {
		name    string
		ec      *Context
		wantMet bool
	}{
		{
			name:    "owner out of hours",
			ec:      &Context{CallerID: "acct-42", OwnerID: "acct-42", Now: midWeekEvening},
			wantMet: true,
		},
		{
			name:    "on-call stranger in hours",
			ec:      &Context{CallerID: "acct-99", OwnerID: "acct-42", OnCall: true, Now: midWeekMorning},
			wantMet: true,
		},
		{
			name:    "on-call stranger out of hours",
			ec:      &Context{CallerID: "acct-99", OwnerID: "acct-42", OnCall: true, Now: midWeekEvening},
			wantMet: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := e.Evaluate(node, claims, tt.ec)
			assert.Equal(t, tt.wantMet, result.Met)
		})
	}
}

func TestCheckPermissionClaimCondition(t *testing.T) {
	t.Parallel()

	e := NewEvaluator()
	req := Leaf{Action: "read", ResourceType: "report"}
	claims := []Claim{{Action: "read", ResourceType: "report", Condition: ConditionIsOwner}}

	result := e.CheckPermission(req, claims, &Context{CallerID: "acct-42", OwnerID: "acct-42"})
	assert.True(t, result.Met)

	// The claim only counts while its condition holds.
	result = e.CheckPermission(req, claims, &Context{CallerID: "acct-99", OwnerID: "acct-42"})
	require.False(t, result.Met)
	assert.Contains(t, result.Reason, `no claim grants "read" on "report"`)
}

func TestResultCarriesGrantingClaim(t *testing.T) {
	t.Parallel()

	e := NewEvaluator()
	claims := []Claim{
		{Action: "write", ResourceType: "report"},
		{Action: "read", ResourceType: "report"},
	}

	// The first satisfying claim is carried on the result.
	result := e.CheckPermission(Leaf{Action: "read", ResourceType: "report"}, claims, nil)
	require.True(t, result.Met)
	require.NotNil(t, result.Claim)
	assert.Equal(t, "read:report", result.Claim.String())

	// The claim survives composition under AND.
	result = e.Evaluate(And{Clauses: []Node{
		Leaf{Action: "read", ResourceType: "report"},
		ConditionNode{Tag: ConditionIsOnCall},
	}}, claims, &Context{OnCall: true})
	require.True(t, result.Met)
	require.NotNil(t, result.Claim)
	assert.Equal(t, "read:report", result.Claim.String())

	// Denials and condition-only grants carry no claim.
	result = e.CheckPermission(Leaf{Action: "delete", ResourceType: "report"}, claims, nil)
	require.False(t, result.Met)
	assert.Nil(t, result.Claim)

	result = e.Evaluate(ConditionNode{Tag: ConditionIsOnCall}, nil, &Context{OnCall: true})
	require.True(t, result.Met)
	assert.Nil(t, result.Claim)
}

func TestEvaluateNilNode(t *testing.T) {
	t.Parallel()

	e := NewEvaluator()
	result := e.Evaluate(nil, nil, &Context{})
	require.False(t, result.Met)
	assert.Contains(t, result.Reason, "malformed requirement")
}
