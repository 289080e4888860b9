package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"siting_service/internal/core"
	"siting_service/internal/domain/model"
)

// Pinger reports connectivity of a backing store for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service *core.SitingService
	pinger  Pinger
	started time.Time
}

func NewHandler(service *core.SitingService, pinger Pinger) *Handler {
	return &Handler{
		service: service,
		pinger:  pinger,
		started: time.Now(),
	}
}

type boundaryPayload struct {
	LonMin float64 `json:"lonMin"`
	LatMin float64 `json:"latMin"`
	LonMax float64 `json:"lonMax"`
	LatMax float64 `json:"latMax"`
}

type timePayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type optimalLocationRequest struct {
	Boundary  *boundaryPayload `json:"boundary"`
	Time      *timePayload     `json:"time"`
	PlantType string           `json:"plant_type"`
}

type pointPayload struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type diagnosticsPayload struct {
	DegradedMode       bool               `json:"degraded_mode"`
	ModelR2            *float64           `json:"model_r2,omitempty"`
	Hyperparams        *model.Hyperparams `json:"hyperparams,omitempty"`
	FeatureImportances map[string]float64 `json:"feature_importances,omitempty"`
	ConstantFeatures   []string           `json:"constant_features,omitempty"`
	ElapsedMS          int64              `json:"elapsed_ms"`
}

type optimalLocationResponse struct {
	OptimalPoint pointPayload       `json:"optimal_point"`
	PlantType    string             `json:"plant_type"`
	Score        float64            `json:"score"`
	Value        float64            `json:"value"`
	Vegetation   float64            `json:"vegetation"`
	UrbanPenalty float64            `json:"urban_penalty"`
	SampleCount  int                `json:"sample_count"`
	Diagnostics  diagnosticsPayload `json:"diagnostics"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// OptimalLocation handles POST /api/optimal-location.
func (h *Handler) OptimalLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req optimalLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var missing []string
	if req.Boundary == nil {
		missing = append(missing, "boundary")
	}
	if req.Time == nil {
		missing = append(missing, "time")
	}
	if req.PlantType == "" {
		missing = append(missing, "plant_type")
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	start, err := time.Parse("2006-01-02", req.Time.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date format. Use YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", req.Time.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date format. Use YYYY-MM-DD")
		return
	}

	result, err := h.service.FindOptimalLocation(r.Context(), model.SitingRequest{
		Boundary: model.BoundingBox{
			LonMin: req.Boundary.LonMin,
			LatMin: req.Boundary.LatMin,
			LonMax: req.Boundary.LonMax,
			LatMax: req.Boundary.LatMax,
		},
		Time:      model.TimeRange{Start: start, End: end},
		PlantType: model.PlantType(strings.ToLower(req.PlantType)),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	diag := diagnosticsPayload{
		DegradedMode:       result.Diagnostics.DegradedMode,
		Hyperparams:        result.Diagnostics.Hyperparams,
		FeatureImportances: result.Diagnostics.FeatureImportances,
		ConstantFeatures:   result.Diagnostics.ConstantFeatures,
		ElapsedMS:          result.Diagnostics.ElapsedMS,
	}
	if !result.Diagnostics.DegradedMode {
		r2 := result.Diagnostics.ModelR2
		diag.ModelR2 = &r2
	}

	resp := optimalLocationResponse{
		OptimalPoint: pointPayload{Lat: result.Optimal.Lat, Lon: result.Optimal.Lon},
		PlantType:    string(result.PlantType),
		Score:        result.Optimal.Score,
		Value:        result.Optimal.Breakdown.PrimaryValue,
		Vegetation:   result.Optimal.Breakdown.Vegetation,
		UrbanPenalty: result.Optimal.Breakdown.UrbanPenalty,
		SampleCount:  result.Optimal.SampleCount,
		Diagnostics:  diag,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps the engine's error taxonomy onto HTTP statuses:
// validation to 400, no data to 404, upstream failures to 502, the rest to 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var validation *core.ValidationError
	var noData *core.NoDataError
	var upstream *core.UpstreamFetchError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &noData):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &upstream):
		log.Printf("upstream failure: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Storage       string `json:"storage,omitempty"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := healthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	status := http.StatusOK

	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Storage = err.Error()
			status = http.StatusInternalServerError
		} else {
			resp.Storage = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
