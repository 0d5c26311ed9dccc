package policy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec is the serializable form of a requirement tree, as it appears
// in definition catalogs and the store. Exactly one of the three
// shapes must be set per node: an operator with clauses, an
// action/resourceType leaf, or a condition tag. Compile rejects
// anything else, so an unknown operator can never reach evaluation.
type Spec struct {
	// Operator is "and" or "or" (case-insensitive) for branch nodes.
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`

	// Clauses are the branch node's children.
	Clauses []*Spec `json:"clauses,omitempty" yaml:"clauses,omitempty"`

	// Action and ResourceType form a permission leaf.
	Action       string `json:"action,omitempty" yaml:"action,omitempty"`
	ResourceType string `json:"resourceType,omitempty" yaml:"resourceType,omitempty"`

	// Condition is a condition tag leaf. In YAML a bare scalar
	// string is shorthand for it.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Clone returns a deep copy of the requirement tree.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	out := *s
	if s.Clauses != nil {
		out.Clauses = make([]*Spec, len(s.Clauses))
		for i, c := range s.Clauses {
			out.Clauses[i] = c.Clone()
		}
	}
	return &out
}

// UnmarshalYAML accepts either a mapping node or a bare condition tag.
func (s *Spec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		s.Condition = value.Value
		return nil
	}
	type rawSpec Spec
	return value.Decode((*rawSpec)(s))
}

// Compile turns the serialized form into a requirement tree. Every
// structural defect is reported as ErrMalformed.
func (s *Spec) Compile() (Node, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil requirement", ErrMalformed)
	}

	hasBranch := s.Operator != "" || len(s.Clauses) > 0
	hasLeaf := s.Action != "" || s.ResourceType != ""
	hasCondition := s.Condition != ""

	switch {
	case hasBranch && (hasLeaf || hasCondition), hasLeaf && hasCondition:
		return nil, fmt.Errorf("%w: requirement node mixes shapes", ErrMalformed)

	case hasCondition:
		return ConditionNode{Tag: s.Condition}, nil

	case hasLeaf:
		if s.Action == "" || s.ResourceType == "" {
			return nil, fmt.Errorf("%w: permission leaf needs both action and resourceType", ErrMalformed)
		}
		return Leaf{Action: s.Action, ResourceType: s.ResourceType}, nil

	case hasBranch:
		if s.Operator == "" {
			return nil, fmt.Errorf("%w: clauses without an operator", ErrMalformed)
		}
		if len(s.Clauses) == 0 {
			return nil, fmt.Errorf("%w: operator %q has no clauses", ErrMalformed, s.Operator)
		}
		clauses := make([]Node, 0, len(s.Clauses))
		for i, c := range s.Clauses {
			node, err := c.Compile()
			if err != nil {
				return nil, fmt.Errorf("clause %d: %w", i, err)
			}
			clauses = append(clauses, node)
		}
		switch strings.ToLower(s.Operator) {
		case "and":
			return And{Clauses: clauses}, nil
		case "or":
			return Or{Clauses: clauses}, nil
		default:
			return nil, fmt.Errorf("%w: unknown operator %q", ErrMalformed, s.Operator)
		}

	default:
		return nil, fmt.Errorf("%w: empty requirement node", ErrMalformed)
	}
}
