package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSpecCompile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    *Spec
		want    Node
		wantErr bool
	}{
		{
			name: "permission leaf",
			spec: &Spec{Action: "read", ResourceType: "report"},
			want: Leaf{Action: "read", ResourceType: "report"},
		},
		{
			name: "condition leaf",
			spec: &Spec{Condition: "isOwner"},
			want: ConditionNode{Tag: "isOwner"},
		},
		{
			name: "and branch",
			spec: &Spec{
				Operator: "and",
				Clauses: []*Spec{
					{Action: "read", ResourceType: "report"},
					{Condition: "isOwner"},
				},
			},
			want: And{Clauses: []Node{
				Leaf{Action: "read", ResourceType: "report"},
				ConditionNode{Tag: "isOwner"},
			}},
		},
		{
			name: "uppercase operator",
			spec: &Spec{
				Operator: "OR",
				Clauses:  []*Spec{{Condition: "isOwner"}, {Condition: "isOnCall"}},
			},
			want: Or{Clauses: []Node{
				ConditionNode{Tag: "isOwner"},
				ConditionNode{Tag: "isOnCall"},
			}},
		},
		{
			name:    "unknown operator",
			spec:    &Spec{Operator: "xor", Clauses: []*Spec{{Condition: "isOwner"}}},
			wantErr: true,
		},
		{
			name:    "operator without clauses",
			spec:    &Spec{Operator: "and"},
			wantErr: true,
		},
		{
			name:    "clauses without operator",
			spec:    &Spec{Clauses: []*Spec{{Condition: "isOwner"}}},
			wantErr: true,
		},
		{
			name:    "mixed shapes",
			spec:    &Spec{Action: "read", ResourceType: "report", Condition: "isOwner"},
			wantErr: true,
		},
		{
			name:    "partial leaf",
			spec:    &Spec{Action: "read"},
			wantErr: true,
		},
		{
			name:    "empty node",
			spec:    &Spec{},
			wantErr: true,
		},
		{
			name: "malformed nested clause",
			spec: &Spec{
				Operator: "and",
				Clauses:  []*Spec{{Condition: "isOwner"}, {}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			node, err := tt.spec.Compile()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, node)
		})
	}
}

func TestSpecUnmarshalYAML(t *testing.T) {
	t.Parallel()

	// A bare scalar is shorthand for a condition leaf.
	input := `
operator: or
clauses:
  - isOwner
  - operator: and
    clauses:
      - isOnCall
      - isBusinessHours
`
	var spec Spec
	require.NoError(t, yaml.Unmarshal([]byte(input), &spec))

	node, err := spec.Compile()
	require.NoError(t, err)

	assert.Equal(t, Or{Clauses: []Node{
		ConditionNode{Tag: "isOwner"},
		And{Clauses: []Node{
			ConditionNode{Tag: "isOnCall"},
			ConditionNode{Tag: "isBusinessHours"},
		}},
	}}, node)
}
