package core

import (
	"siting_service/internal/domain/model"
)

// defaultTieEpsilon is the score distance within which two samples count as tied.
const defaultTieEpsilon = 1e-9

// OptimalPointSelector picks the best-scoring sample with a deterministic
// tie-break: decision scores within Epsilon prefer the higher composite score,
// then the sample closest to the bounding box centroid, then the sample
// earliest in the input sequence. Tree-based predictions plateau across the
// samples sharing a leaf, so the composite stage keeps the argmax honest when
// the model cannot separate the top samples.
type OptimalPointSelector struct {
	Epsilon float64
}

// Select returns the sample with the maximum decision score as an OptimalPoint
// carrying the winner's normalized component breakdown.
func (sel OptimalPointSelector) Select(samples []model.ScoredSample, box model.BoundingBox) (model.OptimalPoint, error) {
	if len(samples) == 0 {
		return model.OptimalPoint{}, &EmptySetError{}
	}
	eps := sel.Epsilon
	if eps <= 0 {
		eps = defaultTieEpsilon
	}

	centLat, centLon := box.Centroid()
	best := 0
	bestDist := centroidDistSq(samples[0], centLat, centLon)
	for i := 1; i < len(samples); i++ {
		switch {
		case samples[i].Predicted > samples[best].Predicted+eps:
			best = i
			bestDist = centroidDistSq(samples[i], centLat, centLon)
		case samples[i].Predicted >= samples[best].Predicted-eps:
			// Tied within epsilon on the decision score: the higher composite
			// score wins, then the sample strictly closer to the centroid,
			// otherwise the earlier sample stands.
			switch {
			case samples[i].Composite > samples[best].Composite+eps:
				best = i
				bestDist = centroidDistSq(samples[i], centLat, centLon)
			case samples[i].Composite >= samples[best].Composite-eps:
				if d := centroidDistSq(samples[i], centLat, centLon); d < bestDist {
					best = i
					bestDist = d
				}
			}
		}
	}

	winner := samples[best]
	return model.OptimalPoint{
		Lat:   winner.Lat,
		Lon:   winner.Lon,
		Score: winner.Predicted,
		Breakdown: model.ComponentBreakdown{
			PrimaryValue: winner.Primary,
			Vegetation:   winner.Vegetation,
			UrbanPenalty: winner.Urban,
		},
		SampleCount: len(samples),
	}, nil
}

// centroidDistSq is the squared Euclidean distance in degrees; the square
// preserves ordering and avoids the root.
func centroidDistSq(s model.ScoredSample, lat, lon float64) float64 {
	dLat := s.Lat - lat
	dLon := s.Lon - lon
	return dLat*dLat + dLon*dLon
}
