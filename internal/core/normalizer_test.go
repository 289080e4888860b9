package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siting_service/internal/domain/model"
)

func TestNormalizeMapsExtremesToUnitRange(t *testing.T) {
	samples := []model.Sample{
		{Lat: 1, Lon: 1, Primary: 3.0, Vegetation: 10, Urban: 5},
		{Lat: 2, Lon: 2, Primary: 7.5, Vegetation: 40, Urban: 0},
		{Lat: 3, Lon: 3, Primary: 5.0, Vegetation: 25, Urban: 2},
	}

	normalized, constant := Normalizer{}.Normalize(samples, "solar_radiation")
	require.Len(t, normalized, 3)
	assert.Empty(t, constant)

	for _, ns := range normalized {
		assert.GreaterOrEqual(t, ns.Primary, 0.0)
		assert.LessOrEqual(t, ns.Primary, 1.0)
		assert.GreaterOrEqual(t, ns.Vegetation, 0.0)
		assert.LessOrEqual(t, ns.Vegetation, 1.0)
		assert.GreaterOrEqual(t, ns.Urban, 0.0)
		assert.LessOrEqual(t, ns.Urban, 1.0)
	}

	// Raw minimum maps to 0, raw maximum to 1.
	assert.Equal(t, 0.0, normalized[0].Primary)
	assert.Equal(t, 1.0, normalized[1].Primary)
	assert.Equal(t, 1.0, normalized[0].Urban)
	assert.Equal(t, 0.0, normalized[1].Urban)
	assert.InDelta(t, 0.5, normalized[2].Vegetation, 1e-12)

	// Location passes through untouched.
	assert.Equal(t, 2.0, normalized[1].Lat)
	assert.Equal(t, 2.0, normalized[1].Lon)
}

func TestNormalizeConstantFeature(t *testing.T) {
	samples := []model.Sample{
		{Primary: 4, Vegetation: 7, Urban: 1},
		{Primary: 9, Vegetation: 7, Urban: 3},
	}

	normalized, constant := Normalizer{}.Normalize(samples, "wind_speed")
	require.Len(t, normalized, 2)
	assert.Equal(t, []string{model.FeatureVegetation}, constant)
	for _, ns := range normalized {
		assert.Equal(t, 0.0, ns.Vegetation)
	}
}

func TestNormalizeAllFeaturesConstant(t *testing.T) {
	samples := []model.Sample{
		{Primary: 2, Vegetation: 2, Urban: 2},
		{Primary: 2, Vegetation: 2, Urban: 2},
	}

	normalized, constant := Normalizer{}.Normalize(samples, "wind_speed")
	require.Len(t, normalized, 2)
	assert.Equal(t, []string{"wind_speed", model.FeatureVegetation, model.FeatureUrban}, constant)
	for _, ns := range normalized {
		assert.Equal(t, 0.0, ns.Primary)
		assert.Equal(t, 0.0, ns.Vegetation)
		assert.Equal(t, 0.0, ns.Urban)
	}
}

func TestNormalizeOrderIndependent(t *testing.T) {
	forward := []model.Sample{
		{Primary: 1, Vegetation: 5, Urban: 0},
		{Primary: 2, Vegetation: 6, Urban: 1},
		{Primary: 3, Vegetation: 7, Urban: 2},
	}
	reversed := []model.Sample{forward[2], forward[1], forward[0]}

	a, _ := Normalizer{}.Normalize(forward, "solar_radiation")
	b, _ := Normalizer{}.Normalize(reversed, "solar_radiation")

	// Same sample gets the same normalized values regardless of set order.
	assert.Equal(t, a[0], b[2])
	assert.Equal(t, a[1], b[1])
	assert.Equal(t, a[2], b[0])
}

func TestNormalizeEmptySet(t *testing.T) {
	normalized, constant := Normalizer{}.Normalize(nil, "solar_radiation")
	assert.Nil(t, normalized)
	assert.Nil(t, constant)
}
