package core

import (
	"fmt"
	"math"
	"strings"

	"siting_service/internal/domain/model"
)

// FeatureEngineer expands normalized features into polynomial interaction and
// power terms up to a fixed degree. Stateless and deterministic: the output
// ordering is reproducible across calls, so regression coefficients and
// importances stay interpretable.
type FeatureEngineer struct {
	degree int
}

// NewFeatureEngineer builds an engineer for the given polynomial degree.
func NewFeatureEngineer(degree int) (*FeatureEngineer, error) {
	if degree < 1 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("polynomial degree must be >= 1, got %d", degree)}
	}
	return &FeatureEngineer{degree: degree}, nil
}

// Schema returns the engineered feature names for the given base names, in the
// fixed order Transform emits values. For base {a, b} and degree 2 the schema is
// {a, b, a^2, a*b, b^2}; there is no bias term and no duplicated feature.
func (e *FeatureEngineer) Schema(base []string) []string {
	terms := e.terms(len(base))
	names := make([]string, len(terms))
	for i, term := range terms {
		names[i] = termName(base, term)
	}
	return names
}

// Transform expands one vector of base feature values (ordered as the base
// names) into the full polynomial feature vector.
func (e *FeatureEngineer) Transform(base []string, values []float64) model.FeatureVector {
	terms := e.terms(len(base))
	out := model.FeatureVector{
		Names:  make([]string, len(terms)),
		Values: make([]float64, len(terms)),
	}
	for i, term := range terms {
		out.Names[i] = termName(base, term)
		v := 1.0
		for j, exp := range term {
			if exp > 0 {
				v *= math.Pow(values[j], float64(exp))
			}
		}
		out.Values[i] = v
	}
	return out
}

// terms enumerates exponent vectors for all monomials of total degree 1..degree
// over n features, graded by degree and lexicographic within a degree.
func (e *FeatureEngineer) terms(n int) [][]int {
	var all [][]int
	for d := 1; d <= e.degree; d++ {
		for _, combo := range multisets(n, d) {
			exps := make([]int, n)
			for _, idx := range combo {
				exps[idx]++
			}
			all = append(all, exps)
		}
	}
	return all
}

// multisets returns all non-decreasing index tuples of length k over [0, n).
func multisets(n, k int) [][]int {
	var result [][]int
	combo := make([]int, k)
	var walk func(pos, start int)
	walk = func(pos, start int) {
		if pos == k {
			result = append(result, append([]int(nil), combo...))
			return
		}
		for i := start; i < n; i++ {
			combo[pos] = i
			walk(pos+1, i)
		}
	}
	walk(0, 0)
	return result
}

// termName renders an exponent vector as a readable feature name, e.g.
// "solar_radiation^2*vegetation".
func termName(base []string, exps []int) string {
	var parts []string
	for i, exp := range exps {
		switch {
		case exp == 1:
			parts = append(parts, base[i])
		case exp > 1:
			parts = append(parts, fmt.Sprintf("%s^%d", base[i], exp))
		}
	}
	return strings.Join(parts, "*")
}
