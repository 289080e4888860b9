package core

import (
	"fmt"

	"siting_service/internal/domain/model"
)

// Weights configures the composite suitability score. All coefficients are
// non-negative; the urban weight is applied as a subtractive penalty.
type Weights struct {
	Primary    float64
	Vegetation float64
	Urban      float64
}

// DefaultWeights returns the documented default weight configuration.
func DefaultWeights() Weights {
	return Weights{Primary: 0.5, Vegetation: 0.3, Urban: 0.2}
}

// Validate rejects negative coefficients.
func (w Weights) Validate() error {
	if w.Primary < 0 || w.Vegetation < 0 || w.Urban < 0 {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"score weights must be non-negative, got primary=%g vegetation=%g urban=%g",
			w.Primary, w.Vegetation, w.Urban)}
	}
	return nil
}

// CompositeScorer computes the deterministic weighted suitability score of a
// normalized sample. It has no side effects and is defined for all values the
// Normalizer produces.
type CompositeScorer struct {
	weights Weights
}

func NewCompositeScorer(weights Weights) (*CompositeScorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &CompositeScorer{weights: weights}, nil
}

// Score is wPrimary·primary + wVeg·vegetation − wUrban·urban.
func (s *CompositeScorer) Score(ns model.NormalizedSample) float64 {
	return s.weights.Primary*ns.Primary +
		s.weights.Vegetation*ns.Vegetation -
		s.weights.Urban*ns.Urban
}

// ScoreAll scores every sample, preserving input order. Predicted starts equal
// to the composite score until a regression model refines it.
func (s *CompositeScorer) ScoreAll(normalized []model.NormalizedSample) []model.ScoredSample {
	scored := make([]model.ScoredSample, len(normalized))
	for i, ns := range normalized {
		composite := s.Score(ns)
		scored[i] = model.ScoredSample{
			NormalizedSample: ns,
			Composite:        composite,
			Predicted:        composite,
		}
	}
	return scored
}
