package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siting_service/internal/domain/model"
)

func TestCompositeScoreFormula(t *testing.T) {
	scorer, err := NewCompositeScorer(Weights{Primary: 0.5, Vegetation: 0.3, Urban: 0.2})
	require.NoError(t, err)

	ns := model.NormalizedSample{Primary: 1.0, Vegetation: 0.5, Urban: 0.25}
	assert.InDelta(t, 0.5*1.0+0.3*0.5-0.2*0.25, scorer.Score(ns), 1e-12)

	// Urbanization is a cost: raising it lowers the score.
	more := ns
	more.Urban = 1.0
	assert.Less(t, scorer.Score(more), scorer.Score(ns))
}

func TestCompositeScoreDeterministic(t *testing.T) {
	scorer, err := NewCompositeScorer(DefaultWeights())
	require.NoError(t, err)

	ns := model.NormalizedSample{Primary: 0.7, Vegetation: 0.2, Urban: 0.9}
	assert.Equal(t, scorer.Score(ns), scorer.Score(ns))
}

func TestCompositeScoreWeightMonotonic(t *testing.T) {
	high := model.NormalizedSample{Primary: 0.9, Vegetation: 0.4, Urban: 0.1}
	low := model.NormalizedSample{Primary: 0.2, Vegetation: 0.4, Urban: 0.1}

	for _, wPrimary := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		scorer, err := NewCompositeScorer(Weights{Primary: wPrimary, Vegetation: 0.3, Urban: 0.2})
		require.NoError(t, err)
		// Increasing the primary weight never narrows the gap in favor of the
		// sample with the lower primary value.
		assert.Greater(t, scorer.Score(high), scorer.Score(low))
	}
}

func TestNegativeWeightsRejected(t *testing.T) {
	_, err := NewCompositeScorer(Weights{Primary: -0.1, Vegetation: 0.3, Urban: 0.2})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestScoreAllSeedsPredictedWithComposite(t *testing.T) {
	scorer, err := NewCompositeScorer(DefaultWeights())
	require.NoError(t, err)

	normalized := []model.NormalizedSample{
		{Primary: 0.1, Vegetation: 0.9, Urban: 0.0},
		{Primary: 0.8, Vegetation: 0.1, Urban: 0.5},
	}
	scored := scorer.ScoreAll(normalized)
	require.Len(t, scored, 2)
	for i, s := range scored {
		assert.Equal(t, normalized[i], s.NormalizedSample)
		assert.Equal(t, s.Composite, s.Predicted)
	}
}
