package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"siting_service/internal/domain/model"
)

// PostGISRepository serves pre-ingested raster samples from Postgres. Each row
// of raster_samples is one observation of one layer at one point in time; the
// query averages observations per point over the requested range, mirroring the
// temporal mean the upstream pipelines apply.
type PostGISRepository struct {
	DB *sqlx.DB
}

func NewPostgresRepository(connStr string) *PostGISRepository {
	db := sqlx.MustConnect("postgres", connStr)
	return &PostGISRepository{DB: db}
}

func (r *PostGISRepository) FetchLayer(ctx context.Context, layer model.RasterLayer, box model.BoundingBox, tr model.TimeRange) ([]model.RasterPoint, error) {
	const query = `
		SELECT
			lat,
			lon,
			AVG(value) AS value
		FROM raster_samples
		WHERE layer = $1
		AND observed_at BETWEEN $2 AND $3
		AND ST_Intersects(geom, ST_MakeEnvelope($4, $5, $6, $7, 4326))
		GROUP BY lat, lon
		ORDER BY lat, lon`

	var points []model.RasterPoint
	err := r.DB.SelectContext(ctx, &points, query,
		string(layer),
		tr.Start, tr.End,
		box.LonMin, box.LatMin, box.LonMax, box.LatMax,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query raster samples: %w", err)
	}

	return points, nil
}

// Ping reports storage connectivity for health checks.
func (r *PostGISRepository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}
