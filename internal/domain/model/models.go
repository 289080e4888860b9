package model

import "time"

// PlantType selects which raw signal acts as the primary resource for a query.
type PlantType string

const (
	PlantSolar PlantType = "solar"
	PlantWind  PlantType = "wind"
)

// Valid reports whether the plant type is one of the supported kinds.
func (p PlantType) Valid() bool {
	return p == PlantSolar || p == PlantWind
}

// PrimaryLayer returns the raster layer carrying the primary resource signal.
func (p PlantType) PrimaryLayer() RasterLayer {
	if p == PlantWind {
		return LayerWindSpeed
	}
	return LayerSolarRadiation
}

// PrimaryFeature returns the feature name the primary signal is reported under,
// so importances stay traceable to the originating raw feature.
func (p PlantType) PrimaryFeature() string {
	if p == PlantWind {
		return "wind_speed"
	}
	return "solar_radiation"
}

// RasterLayer names one of the layers a raster provider can serve.
type RasterLayer string

const (
	LayerLandCover      RasterLayer = "landCover"
	LayerWindSpeed      RasterLayer = "windSpeed"
	LayerUrbanization   RasterLayer = "urbanization"
	LayerSolarRadiation RasterLayer = "solarRadiation"
)

// Secondary feature names shared by both plant types.
const (
	FeatureVegetation = "vegetation"
	FeatureUrban      = "urban"
)

// BoundingBox is a WGS84 rectangle. Valid when LonMin < LonMax and LatMin < LatMax.
type BoundingBox struct {
	LonMin float64 `json:"lonMin"`
	LatMin float64 `json:"latMin"`
	LonMax float64 `json:"lonMax"`
	LatMax float64 `json:"latMax"`
}

// Centroid returns the geometric center of the box in degrees.
func (b BoundingBox) Centroid() (lat, lon float64) {
	return (b.LatMin + b.LatMax) / 2, (b.LonMin + b.LonMax) / 2
}

// TimeRange is a calendar date interval. Valid when Start is before End.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// RasterPoint is one extracted sample of a single raster layer.
type RasterPoint struct {
	Lat   float64 `json:"lat" db:"lat"`
	Lon   float64 `json:"lon" db:"lon"`
	Value float64 `json:"value" db:"value"`
}

// Sample is one spatial point with the raw attributes of all layers joined.
// Samples keep their fetch order; duplicates by location are tolerated and
// weighted equally.
type Sample struct {
	Lat        float64
	Lon        float64
	Primary    float64
	Vegetation float64
	Urban      float64
}

// NormalizedSample is a Sample with every raw value rescaled to [0,1] over the
// current query's sample set.
type NormalizedSample struct {
	Lat        float64
	Lon        float64
	Primary    float64
	Vegetation float64
	Urban      float64
}

// ScoredSample carries the composite ground-truth score and the decision score
// used for selection. Predicted equals Composite when no model is available.
type ScoredSample struct {
	NormalizedSample
	Composite float64
	Predicted float64
}

// FeatureVector is an ordered, named sequence of engineered feature values.
type FeatureVector struct {
	Names  []string
	Values []float64
}

// Hyperparams is one gradient-boosting configuration from the search grid.
type Hyperparams struct {
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	Trees        int     `json:"trees"`
	Subsample    float64 `json:"subsample"`
}

// ComponentBreakdown reports the winning sample's normalized score components.
type ComponentBreakdown struct {
	PrimaryValue float64
	Vegetation   float64
	UrbanPenalty float64
}

// OptimalPoint is the selected site. Produced once per query, immutable.
type OptimalPoint struct {
	Lat         float64
	Lon         float64
	Score       float64
	Breakdown   ComponentBreakdown
	SampleCount int
}

// SitingRequest is a request for an optimal plant location.
type SitingRequest struct {
	Boundary  BoundingBox
	Time      TimeRange
	PlantType PlantType
}

// Diagnostics describes how the score was produced, including degraded mode
// when regression training was skipped or failed.
type Diagnostics struct {
	DegradedMode       bool
	ModelR2            float64
	Hyperparams        *Hyperparams
	FeatureImportances map[string]float64
	ConstantFeatures   []string
	ElapsedMS          int64
}

// SitingResult is the assembled response for one completed query.
type SitingResult struct {
	Optimal     OptimalPoint
	PlantType   PlantType
	Diagnostics Diagnostics
}
