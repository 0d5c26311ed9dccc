package policy

import (
	"fmt"
	"math"
	"time"

	"github.com/butterflysys/butterfly/internal/observability"
)

// Dimension types understood by vector projection.
const (
	// DimensionNumeric projects a numeric attribute as-is.
	DimensionNumeric = "numeric"

	// DimensionCategorical maps a string attribute through the
	// dimension's value map.
	DimensionCategorical = "categorical"
)

// Dimension declares one axis of a vector policy's attribute space.
type Dimension struct {
	// Name is the caller attribute projected onto this axis.
	Name string `json:"name" yaml:"name"`

	// Type is "numeric" or "categorical".
	Type string `json:"type" yaml:"type"`

	// Map translates categorical values to numbers. Unmapped or
	// absent values project to 0.
	Map map[string]float64 `json:"map,omitempty" yaml:"map,omitempty"`
}

// VectorPolicy grants access when the caller's projected attribute
// vector is cosine-similar enough to a target position.
//
// Dimension order and meaning are an administrative contract: the
// evaluator cannot detect a policy whose dimensions were reordered or
// repurposed between updates, so operators must keep them stable for
// the lifetime of a definition.
type VectorPolicy struct {
	// Dimensions declares the attribute space, in order.
	Dimensions []Dimension `json:"dimensions" yaml:"dimensions"`

	// Position is the target vector, one component per dimension.
	Position []float64 `json:"position" yaml:"position"`

	// Threshold is the minimum cosine similarity (inclusive) that
	// grants access.
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// Clone returns a deep copy of the policy.
func (p *VectorPolicy) Clone() *VectorPolicy {
	if p == nil {
		return nil
	}
	out := *p
	if p.Position != nil {
		out.Position = append([]float64(nil), p.Position...)
	}
	if p.Dimensions != nil {
		out.Dimensions = make([]Dimension, len(p.Dimensions))
		for i, d := range p.Dimensions {
			out.Dimensions[i] = d
			if d.Map != nil {
				m := make(map[string]float64, len(d.Map))
				for k, v := range d.Map {
					m[k] = v
				}
				out.Dimensions[i].Map = m
			}
		}
	}
	return &out
}

// Validate checks structural soundness at registration time.
func (p *VectorPolicy) Validate() error {
	if len(p.Dimensions) == 0 {
		return fmt.Errorf("%w: vector policy has no dimensions", ErrMalformed)
	}
	if len(p.Position) != len(p.Dimensions) {
		return fmt.Errorf("%w: vector policy has %d dimensions but position has %d components",
			ErrMalformed, len(p.Dimensions), len(p.Position))
	}
	for i, d := range p.Dimensions {
		if d.Name == "" {
			return fmt.Errorf("%w: dimension %d has no name", ErrMalformed, i)
		}
		switch d.Type {
		case DimensionNumeric, DimensionCategorical:
		default:
			return fmt.Errorf("%w: dimension %q has unknown type %q", ErrMalformed, d.Name, d.Type)
		}
	}
	return nil
}

// EvaluateVector projects the caller's attributes into the policy's
// space and grants when cosine similarity to the target position meets
// the threshold. Every reason reports the similarity to 3 decimals; a
// zero-magnitude vector or a dimension mismatch denies.
func (e *Evaluator) EvaluateVector(p *VectorPolicy, ec *Context) Result {
	start := time.Now()

	result := e.evalVector(p, ec)

	e.metrics.RecordEvaluation(EngineVector, decisionLabel(result.Met), time.Since(start))
	e.logger.Debug("vector policy evaluated",
		observability.Bool("met", result.Met),
		observability.String("reason", result.Reason),
	)

	return result
}

func (e *Evaluator) evalVector(p *VectorPolicy, ec *Context) Result {
	if p == nil {
		return Result{Met: false, Reason: "malformed vector policy: nil"}
	}
	if len(p.Position) != len(p.Dimensions) {
		return Result{Met: false, Reason: fmt.Sprintf(
			"vector dimension mismatch: policy declares %d dimensions but position has %d components",
			len(p.Dimensions), len(p.Position))}
	}

	caller := p.project(ec)
	similarity, ok := cosineSimilarity(caller, p.Position)
	if !ok {
		return Result{Met: false, Reason: fmt.Sprintf(
			"similarity 0.000 below threshold %.3f: zero-magnitude vector", p.Threshold)}
	}

	if similarity >= p.Threshold {
		return Result{Met: true, Reason: fmt.Sprintf(
			"similarity %.3f meets threshold %.3f", similarity, p.Threshold)}
	}
	return Result{Met: false, Reason: fmt.Sprintf(
		"similarity %.3f below threshold %.3f", similarity, p.Threshold)}
}

// project maps the caller's attributes onto the policy's dimensions.
// Absent attributes, non-numeric values on numeric axes, and unmapped
// categorical values all project to 0.
func (p *VectorPolicy) project(ec *Context) []float64 {
	out := make([]float64, len(p.Dimensions))
	if ec == nil || ec.Attributes == nil {
		return out
	}
	for i, d := range p.Dimensions {
		value, ok := ec.Attributes[d.Name]
		if !ok {
			continue
		}
		switch d.Type {
		case DimensionNumeric:
			out[i] = toFloat(value)
		case DimensionCategorical:
			if s, ok := value.(string); ok {
				out[i] = d.Map[s]
			}
		}
	}
	return out
}

// toFloat coerces the numeric types JSON and YAML decoding produce.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}

// cosineSimilarity returns the cosine of the angle between a and b.
// ok is false when either vector has zero magnitude.
func cosineSimilarity(a, b []float64) (similarity float64, ok bool) {
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), true
}
