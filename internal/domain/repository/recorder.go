package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"siting_service/internal/domain/model"
)

// QueryRecord is one completed siting query persisted for audit and for
// building retraining datasets.
type QueryRecord struct {
	ID          string
	PlantType   model.PlantType
	Boundary    model.BoundingBox
	Start       time.Time
	End         time.Time
	Lat         float64
	Lon         float64
	Score       float64
	SampleCount int
	Degraded    bool
	ModelR2     float64
}

// QueryRecorder persists completed queries and prunes old ones.
type QueryRecorder interface {
	SaveQuery(ctx context.Context, rec QueryRecord) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PostgresQueryRecorder struct {
	db *sqlx.DB
}

func NewPostgresQueryRecorder(db *sqlx.DB) *PostgresQueryRecorder {
	return &PostgresQueryRecorder{db: db}
}

func (r *PostgresQueryRecorder) SaveQuery(ctx context.Context, rec QueryRecord) error {
	const query = `
		INSERT INTO siting_queries (
			id, plant_type,
			lon_min, lat_min, lon_max, lat_max,
			range_start, range_end,
			lat, lon, score, sample_count,
			degraded_mode, model_r2, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW()
		)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, string(rec.PlantType),
		rec.Boundary.LonMin, rec.Boundary.LatMin, rec.Boundary.LonMax, rec.Boundary.LatMax,
		rec.Start, rec.End,
		rec.Lat, rec.Lon, rec.Score, rec.SampleCount,
		rec.Degraded, rec.ModelR2,
	)
	return err
}

// PruneBefore deletes records older than the cutoff and returns how many rows
// were removed.
func (r *PostgresQueryRecorder) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM siting_queries WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
