package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siting_service/internal/core"
	"siting_service/internal/domain/model"
)

type stubProvider struct {
	layers map[model.RasterLayer][]model.RasterPoint
	err    error
}

func (s *stubProvider) FetchLayer(ctx context.Context, layer model.RasterLayer, box model.BoundingBox, tr model.TimeRange) ([]model.RasterPoint, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.layers[layer], nil
}

func newTestHandler(t *testing.T, provider *stubProvider) *Handler {
	t.Helper()
	service, err := core.NewSitingService(provider, nil, false, core.SitingConfig{})
	require.NoError(t, err)
	return NewHandler(service, nil)
}

func twoPointProvider() *stubProvider {
	points := func(v1, v2 float64) []model.RasterPoint {
		return []model.RasterPoint{
			{Lat: 40.5, Lon: -74.0, Value: v1},
			{Lat: 40.7, Lon: -73.9, Value: v2},
		}
	}
	return &stubProvider{layers: map[model.RasterLayer][]model.RasterPoint{
		model.LayerSolarRadiation: points(120, 180),
		model.LayerWindSpeed:      points(4, 9),
		model.LayerLandCover:      points(0, 0),
		model.LayerUrbanization:   points(0, 0),
	}}
}

func validBody() string {
	return `{
		"boundary": {"lonMin": -74.2591, "latMin": 40.4774, "lonMax": -73.7004, "latMax": 40.9176},
		"time": {"start": "2022-01-01", "end": "2022-12-31"},
		"plant_type": "solar"
	}`
}

func postOptimalLocation(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/optimal-location", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.OptimalLocation(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestOptimalLocationSuccess(t *testing.T) {
	h := newTestHandler(t, twoPointProvider())
	rec := postOptimalLocation(h, validBody())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp optimalLocationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 40.7, resp.OptimalPoint.Lat)
	assert.Equal(t, -73.9, resp.OptimalPoint.Lon)
	assert.Equal(t, "solar", resp.PlantType)
	assert.Equal(t, 2, resp.SampleCount)
	assert.InDelta(t, 0.5, resp.Score, 1e-12)

	// Two samples cannot train a model: degraded, no R² reported.
	assert.True(t, resp.Diagnostics.DegradedMode)
	assert.Nil(t, resp.Diagnostics.ModelR2)
	assert.Nil(t, resp.Diagnostics.Hyperparams)
}

func TestOptimalLocationPlantTypeCaseInsensitive(t *testing.T) {
	h := newTestHandler(t, twoPointProvider())
	body := strings.Replace(validBody(), `"solar"`, `"WIND"`, 1)
	rec := postOptimalLocation(h, body)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp optimalLocationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "wind", resp.PlantType)
}

func TestOptimalLocationMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, twoPointProvider())
	req := httptest.NewRequest(http.MethodGet, "/api/optimal-location", nil)
	rec := httptest.NewRecorder()
	h.OptimalLocation(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOptimalLocationInvalidJSON(t *testing.T) {
	h := newTestHandler(t, twoPointProvider())
	rec := postOptimalLocation(h, `{"boundary":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeError(t, rec))
}

func TestOptimalLocationMissingFields(t *testing.T) {
	h := newTestHandler(t, twoPointProvider())
	rec := postOptimalLocation(h, `{"time": {"start": "2022-01-01", "end": "2022-12-31"}}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	msg := decodeError(t, rec)
	assert.Contains(t, msg, "Missing required fields")
	assert.Contains(t, msg, "boundary")
	assert.Contains(t, msg, "plant_type")
	assert.NotContains(t, msg, "time")
}

func TestOptimalLocationBadDate(t *testing.T) {
	h := newTestHandler(t, twoPointProvider())
	body := strings.Replace(validBody(), "2022-01-01", "01/01/2022", 1)
	rec := postOptimalLocation(h, body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "YYYY-MM-DD")
}

func TestOptimalLocationValidationError(t *testing.T) {
	h := newTestHandler(t, twoPointProvider())
	body := strings.Replace(validBody(), `"solar"`, `"nuclear"`, 1)
	rec := postOptimalLocation(h, body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "nuclear")
}

func TestOptimalLocationNoData(t *testing.T) {
	provider := twoPointProvider()
	provider.layers[model.LayerSolarRadiation] = nil
	h := newTestHandler(t, provider)
	rec := postOptimalLocation(h, validBody())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeError(t, rec), "solarRadiation")
}

func TestOptimalLocationUpstreamFailure(t *testing.T) {
	h := newTestHandler(t, &stubProvider{err: errors.New("raster service down")})
	rec := postOptimalLocation(h, validBody())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHealthWithoutStorage(t *testing.T) {
	h := newTestHandler(t, twoPointProvider())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Empty(t, resp.Storage)
}

func TestHealthStorageStates(t *testing.T) {
	service, err := core.NewSitingService(twoPointProvider(), nil, false, core.SitingConfig{})
	require.NoError(t, err)

	t.Run("connected", func(t *testing.T) {
		h := NewHandler(service, stubPinger{})
		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "connected", resp.Storage)
	})

	t.Run("unreachable", func(t *testing.T) {
		h := NewHandler(service, stubPinger{err: errors.New("dial tcp: refused")})
		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Contains(t, resp.Storage, "refused")
	})
}
