package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"siting_service/internal/domain/model"
	"siting_service/internal/domain/repository"
)

const defaultPolynomialDegree = 2

// SitingConfig tunes the suitability engine. Zero values fall back to the
// documented defaults.
type SitingConfig struct {
	Weights          Weights
	PolynomialDegree int
	CVFolds          int
	TieEpsilon       float64
}

// SitingService drives the suitability pipeline end to end: request validation,
// concurrent layer fetches, normalization, composite scoring, regression
// refinement and optimal point selection.
type SitingService struct {
	provider    repository.RasterProvider
	recorder    repository.QueryRecorder
	saveHistory bool

	scorer     *CompositeScorer
	engineer   *FeatureEngineer
	regression *RegressionModel
	selector   OptimalPointSelector
	normalizer Normalizer
}

func NewSitingService(
	provider repository.RasterProvider,
	recorder repository.QueryRecorder,
	saveHistory bool,
	cfg SitingConfig,
) (*SitingService, error) {
	weights := cfg.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	scorer, err := NewCompositeScorer(weights)
	if err != nil {
		return nil, err
	}

	degree := cfg.PolynomialDegree
	if degree == 0 {
		degree = defaultPolynomialDegree
	}
	engineer, err := NewFeatureEngineer(degree)
	if err != nil {
		return nil, err
	}

	return &SitingService{
		provider:    provider,
		recorder:    recorder,
		saveHistory: saveHistory,
		scorer:      scorer,
		engineer:    engineer,
		regression:  NewRegressionModel(cfg.CVFolds),
		selector:    OptimalPointSelector{Epsilon: cfg.TieEpsilon},
	}, nil
}

// FindOptimalLocation runs the full pipeline for one request. Training failures
// from too little data are absorbed: the query completes in degraded mode with
// the composite score as the decision score. All other failures abort the
// request with no location in the result.
func (s *SitingService) FindOptimalLocation(ctx context.Context, req model.SitingRequest) (*model.SitingResult, error) {
	started := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	samples, err := s.fetchSamples(ctx, req)
	if err != nil {
		return nil, err
	}

	primaryName := req.PlantType.PrimaryFeature()
	normalized, constantFeatures := s.normalizer.Normalize(samples, primaryName)
	scored := s.scorer.ScoreAll(normalized)

	diag := model.Diagnostics{ConstantFeatures: constantFeatures}
	baseNames := []string{primaryName, model.FeatureVegetation, model.FeatureUrban}
	s.refineScores(ctx, baseNames, scored, &diag)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	optimal, err := s.selector.Select(scored, req.Boundary)
	if err != nil {
		return nil, err
	}

	diag.ElapsedMS = time.Since(started).Milliseconds()
	result := &model.SitingResult{
		Optimal:     optimal,
		PlantType:   req.PlantType,
		Diagnostics: diag,
	}

	if s.saveHistory && s.recorder != nil {
		s.recordQuery(ctx, req, result)
	}
	return result, nil
}

// refineScores trains the regression model on the composite scores and replaces
// each sample's decision score with the model prediction. Insufficient data or
// a failed search leaves the composite scores in place and flags degraded mode.
func (s *SitingService) refineScores(ctx context.Context, baseNames []string, scored []model.ScoredSample, diag *model.Diagnostics) {
	schema := s.engineer.Schema(baseNames)
	features := make([][]float64, len(scored))
	targets := make([]float64, len(scored))
	for i, sample := range scored {
		vec := s.engineer.Transform(baseNames, []float64{sample.Primary, sample.Vegetation, sample.Urban})
		features[i] = vec.Values
		targets[i] = sample.Composite
	}

	trained, err := s.regression.Train(ctx, schema, features, targets)
	if err != nil {
		// Cancellation is surfaced by the caller's ctx check; every other
		// training failure degrades to composite-only scoring.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		log.Printf("regression skipped, scoring in degraded mode: %v", err)
		diag.DegradedMode = true
		return
	}

	for i := range scored {
		scored[i].Predicted = trained.Predict(features[i])
	}
	params := trained.Hyperparams()
	diag.ModelR2 = trained.CVR2()
	diag.Hyperparams = &params
	diag.FeatureImportances = trained.FeatureImportances()
}

// fetchSamples issues the three required layer fetches concurrently, aborts on
// the first failure, and joins the layers into one sample per primary point.
func (s *SitingService) fetchSamples(ctx context.Context, req model.SitingRequest) ([]model.Sample, error) {
	primaryLayer := req.PlantType.PrimaryLayer()

	var primaryPts, vegetationPts, urbanPts []model.RasterPoint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		primaryPts, err = s.provider.FetchLayer(gctx, primaryLayer, req.Boundary, req.Time)
		if err != nil {
			return &UpstreamFetchError{Layer: primaryLayer, Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		vegetationPts, err = s.provider.FetchLayer(gctx, model.LayerLandCover, req.Boundary, req.Time)
		if err != nil {
			return &UpstreamFetchError{Layer: model.LayerLandCover, Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		urbanPts, err = s.provider.FetchLayer(gctx, model.LayerUrbanization, req.Boundary, req.Time)
		if err != nil {
			return &UpstreamFetchError{Layer: model.LayerUrbanization, Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch {
	case len(primaryPts) == 0:
		return nil, &NoDataError{Layer: primaryLayer}
	case len(vegetationPts) == 0:
		return nil, &NoDataError{Layer: model.LayerLandCover}
	case len(urbanPts) == 0:
		return nil, &NoDataError{Layer: model.LayerUrbanization}
	}

	// The primary layer defines the sample set; vegetation and urbanization are
	// joined by nearest point so co-registered and gridded layers both work.
	samples := make([]model.Sample, len(primaryPts))
	for i, p := range primaryPts {
		samples[i] = model.Sample{
			Lat:        p.Lat,
			Lon:        p.Lon,
			Primary:    p.Value,
			Vegetation: nearestValue(vegetationPts, p.Lat, p.Lon),
			Urban:      nearestValue(urbanPts, p.Lat, p.Lon),
		}
	}
	return samples, nil
}

// nearestValue returns the value of the point closest to (lat, lon) by squared
// degree distance, preferring the earlier point on exact ties.
func nearestValue(points []model.RasterPoint, lat, lon float64) float64 {
	best := 0
	bestDist := pointDistSq(points[0], lat, lon)
	for i := 1; i < len(points); i++ {
		if d := pointDistSq(points[i], lat, lon); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return points[best].Value
}

func pointDistSq(p model.RasterPoint, lat, lon float64) float64 {
	dLat := p.Lat - lat
	dLon := p.Lon - lon
	return dLat*dLat + dLon*dLon
}

func (s *SitingService) recordQuery(ctx context.Context, req model.SitingRequest, result *model.SitingResult) {
	rec := repository.QueryRecord{
		ID:          uuid.New().String(),
		PlantType:   req.PlantType,
		Boundary:    req.Boundary,
		Start:       req.Time.Start,
		End:         req.Time.End,
		Lat:         result.Optimal.Lat,
		Lon:         result.Optimal.Lon,
		Score:       result.Optimal.Score,
		SampleCount: result.Optimal.SampleCount,
		Degraded:    result.Diagnostics.DegradedMode,
		ModelR2:     result.Diagnostics.ModelR2,
	}
	if err := s.recorder.SaveQuery(ctx, rec); err != nil {
		log.Printf("Warning: failed to save query history: %v", err)
	}
}

// validateRequest enforces the request invariants before any external call.
func validateRequest(req model.SitingRequest) error {
	b := req.Boundary
	if b.LatMin < -90 || b.LatMin > 90 || b.LatMax < -90 || b.LatMax > 90 {
		return &ValidationError{Reason: "latitude out of range [-90, 90]"}
	}
	if b.LonMin < -180 || b.LonMin > 180 || b.LonMax < -180 || b.LonMax > 180 {
		return &ValidationError{Reason: "longitude out of range [-180, 180]"}
	}
	if b.LonMin >= b.LonMax {
		return &ValidationError{Reason: "lonMin must be less than lonMax"}
	}
	if b.LatMin >= b.LatMax {
		return &ValidationError{Reason: "latMin must be less than latMax"}
	}
	if !req.Time.Start.Before(req.Time.End) {
		return &ValidationError{Reason: "time range start must be before end"}
	}
	if !req.PlantType.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("unsupported plant type %q", req.PlantType)}
	}
	return nil
}
