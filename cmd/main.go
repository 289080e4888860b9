package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"siting_service/internal/api"
	"siting_service/internal/core"
	"siting_service/internal/domain/model"
	"siting_service/internal/domain/repository"
	"siting_service/internal/infrastructure/rasterclient"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	// Remote raster service is the default backend for every layer.
	rasterClient := rasterclient.NewHTTPRasterClient(
		os.Getenv("RASTER_SERVICE_URL"),
		os.Getenv("RASTER_SERVICE_API_KEY"),
	)
	router := repository.NewLayerRouter(rasterClient)

	var pinger api.Pinger
	var recorder repository.QueryRecorder
	if connStr := os.Getenv("POSTGRES_URL"); connStr != "" {
		postgresRepo := repository.NewPostgresRepository(connStr)
		pinger = postgresRepo
		recorder = repository.NewPostgresQueryRecorder(postgresRepo.DB)
		if os.Getenv("RASTER_BACKEND") == "postgres" {
			router = repository.NewLayerRouter(postgresRepo)
		}
	}

	// Urbanization can come straight from OSM building density.
	if endpoint := os.Getenv("OVERPASS_URL"); endpoint != "" {
		router.Route(model.LayerUrbanization, repository.NewOverpassRepository(endpoint, 30*time.Second))
	}

	saveHistory := os.Getenv("SAVE_QUERY_HISTORY") == "true"
	service, err := core.NewSitingService(router, recorder, saveHistory, core.SitingConfig{
		Weights: core.Weights{
			Primary:    envFloat("WEIGHT_PRIMARY", 0.5),
			Vegetation: envFloat("WEIGHT_VEGETATION", 0.3),
			Urban:      envFloat("WEIGHT_URBAN", 0.2),
		},
	})
	if err != nil {
		log.Fatalf("Failed to create siting service: %v", err)
	}

	// Scheduled pruning of recorded queries.
	if days := envInt("HISTORY_RETENTION_DAYS", 0); days > 0 && recorder != nil {
		c := cron.New()
		_, err := c.AddFunc("@daily", func() {
			cutoff := time.Now().AddDate(0, 0, -days)
			pruned, err := recorder.PruneBefore(context.Background(), cutoff)
			if err != nil {
				log.Printf("Warning: failed to prune query history: %v", err)
				return
			}
			log.Printf("Pruned %d query history records older than %s", pruned, cutoff.Format("2006-01-02"))
		})
		if err != nil {
			log.Fatalf("Failed to schedule history pruning: %v", err)
		}
		c.Start()
	}

	handler := api.NewHandler(service, pinger)
	http.HandleFunc("/api/optimal-location", handler.OptimalLocation)
	http.HandleFunc("/health", handler.Health)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Starting server on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Fatalf("Invalid value for %s: %v", key, err)
	}
	return v
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("Invalid value for %s: %v", key, err)
	}
	return v
}
