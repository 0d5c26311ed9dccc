package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/butterflysys/butterfly/internal/policy"
)

func validDefinition() *Definition {
	return &Definition{
		Name: "reports/acct-42",
		Descriptor: DescriptorSpec{
			Protocol:        "https",
			AddressTemplate: "https://reports.internal/{ownerId}",
		},
		Requirement: &policy.Spec{Action: "read", ResourceType: "report"},
	}
}

func TestDefinitionValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Definition)
		wantErr bool
	}{
		{
			name:    "valid requirement policy",
			mutate:  func(*Definition) {},
			wantErr: false,
		},
		{
			name: "valid vector policy",
			mutate: func(d *Definition) {
				d.Requirement = nil
				d.Vector = &policy.VectorPolicy{
					Dimensions: []policy.Dimension{{Name: "clearance", Type: policy.DimensionNumeric}},
					Position:   []float64{1},
					Threshold:  0.9,
				}
			},
			wantErr: false,
		},
		{
			name:    "missing name",
			mutate:  func(d *Definition) { d.Name = "" },
			wantErr: true,
		},
		{
			name:    "whitespace in name",
			mutate:  func(d *Definition) { d.Name = "reports/acct 42" },
			wantErr: true,
		},
		{
			name:    "missing protocol",
			mutate:  func(d *Definition) { d.Descriptor.Protocol = "" },
			wantErr: true,
		},
		{
			name:    "missing address template",
			mutate:  func(d *Definition) { d.Descriptor.AddressTemplate = "" },
			wantErr: true,
		},
		{
			name:    "no policy",
			mutate:  func(d *Definition) { d.Requirement = nil },
			wantErr: true,
		},
		{
			name: "both policies",
			mutate: func(d *Definition) {
				d.Vector = &policy.VectorPolicy{
					Dimensions: []policy.Dimension{{Name: "clearance", Type: policy.DimensionNumeric}},
					Position:   []float64{1},
				}
			},
			wantErr: true,
		},
		{
			name:    "malformed requirement",
			mutate:  func(d *Definition) { d.Requirement = &policy.Spec{Operator: "xor", Clauses: []*policy.Spec{{Condition: "isOwner"}}} },
			wantErr: true,
		},
		{
			name: "malformed vector",
			mutate: func(d *Definition) {
				d.Requirement = nil
				d.Vector = &policy.VectorPolicy{
					Dimensions: []policy.Dimension{{Name: "clearance", Type: policy.DimensionNumeric}},
					Position:   []float64{1, 2},
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := validDefinition()
			tt.mutate(d)
			err := d.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefinitionClone(t *testing.T) {
	t.Parallel()

	original := &Definition{
		Name: "models/acct-42",
		Descriptor: DescriptorSpec{
			Protocol:        "grpc",
			AddressTemplate: "models.internal:7443",
		},
		Requirement: &policy.Spec{
			Operator: "and",
			Clauses: []*policy.Spec{
				{Action: "read", ResourceType: "model"},
				{Condition: policy.ConditionIsOwner},
			},
		},
	}

	clone := original.Clone()
	clone.Requirement.Clauses[0].Action = "delete"
	assert.Equal(t, "read", original.Requirement.Clauses[0].Action)

	vectored := &Definition{
		Name:       "models/acct-42",
		Descriptor: DescriptorSpec{Protocol: "grpc", AddressTemplate: "models.internal:7443"},
		Vector: &policy.VectorPolicy{
			Dimensions: []policy.Dimension{
				{Name: "team", Type: policy.DimensionCategorical, Map: map[string]float64{"engineering": 1}},
			},
			Position:  []float64{1},
			Threshold: 0.9,
		},
	}

	clone = vectored.Clone()
	clone.Vector.Position[0] = 99
	clone.Vector.Dimensions[0].Map["engineering"] = 99
	assert.Equal(t, float64(1), vectored.Vector.Position[0])
	assert.Equal(t, float64(1), vectored.Vector.Dimensions[0].Map["engineering"])

	var nilDef *Definition
	assert.Nil(t, nilDef.Clone())
}

func TestOwnerID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "acct-42", OwnerID("reports/acct-42"))
	assert.Equal(t, "", OwnerID("reports"))
	assert.Equal(t, "", OwnerID(""))
}
