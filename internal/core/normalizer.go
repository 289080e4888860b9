package core

import (
	"gonum.org/v1/gonum/floats"

	"siting_service/internal/domain/model"
)

// Normalizer rescales raw sample features to a common [0,1] range over a single
// query's sample set. Ranges are recomputed from scratch on every call and never
// reused across queries, since feature ranges differ per region and time.
type Normalizer struct{}

// Normalize maps each raw value v to (v-min)/(max-min) over the full set. A
// constant feature normalizes to 0 for every sample instead of dividing by zero;
// such features are returned by name so callers can flag them as
// non-discriminating in diagnostics.
func (Normalizer) Normalize(samples []model.Sample, primaryName string) ([]model.NormalizedSample, []string) {
	if len(samples) == 0 {
		return nil, nil
	}

	primary := make([]float64, len(samples))
	vegetation := make([]float64, len(samples))
	urban := make([]float64, len(samples))
	for i, s := range samples {
		primary[i] = s.Primary
		vegetation[i] = s.Vegetation
		urban[i] = s.Urban
	}

	var constant []string
	scalePrimary, ok := makeScale(primary)
	if !ok {
		constant = append(constant, primaryName)
	}
	scaleVegetation, ok := makeScale(vegetation)
	if !ok {
		constant = append(constant, model.FeatureVegetation)
	}
	scaleUrban, ok := makeScale(urban)
	if !ok {
		constant = append(constant, model.FeatureUrban)
	}

	normalized := make([]model.NormalizedSample, len(samples))
	for i, s := range samples {
		normalized[i] = model.NormalizedSample{
			Lat:        s.Lat,
			Lon:        s.Lon,
			Primary:    scalePrimary(s.Primary),
			Vegetation: scaleVegetation(s.Vegetation),
			Urban:      scaleUrban(s.Urban),
		}
	}
	return normalized, constant
}

// makeScale builds a min-max scaling function for one feature. The second return
// value is false for a degenerate (constant) feature, whose scale maps every
// value to 0.
func makeScale(values []float64) (func(float64) float64, bool) {
	min := floats.Min(values)
	max := floats.Max(values)
	if max == min {
		return func(float64) float64 { return 0 }, false
	}
	span := max - min
	return func(v float64) float64 { return (v - min) / span }, true
}
