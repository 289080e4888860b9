package repository

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/serjvanilla/go-overpass"

	"siting_service/internal/domain/model"
)

// defaultCellSizeKM is the edge length of the density grid cells.
const defaultCellSizeKM = 2.0

// OverpassRepository derives the urbanization layer from OpenStreetMap building
// density: the bounding box is split into a grid of cells and each cell center
// becomes one sample whose value is the number of buildings inside the cell.
type OverpassRepository struct {
	client     *overpass.Client
	timeout    time.Duration
	cellSizeKM float64
}

func NewOverpassRepository(endpoint string, timeout time.Duration) *OverpassRepository {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 2, httpClient)
	return &OverpassRepository{
		client:     &client,
		timeout:    timeout,
		cellSizeKM: defaultCellSizeKM,
	}
}

// FetchLayer serves only the urbanization layer; route other layers elsewhere.
func (r *OverpassRepository) FetchLayer(ctx context.Context, layer model.RasterLayer, box model.BoundingBox, tr model.TimeRange) ([]model.RasterPoint, error) {
	if layer != model.LayerUrbanization {
		return nil, fmt.Errorf("overpass backend serves only %s, requested %s", model.LayerUrbanization, layer)
	}

	// Overpass bbox order is south,west,north,east. The attic date pins the
	// query to the end of the requested time range.
	bbox := fmt.Sprintf("%f,%f,%f,%f", box.LatMin, box.LonMin, box.LatMax, box.LonMax)
	query := fmt.Sprintf(`
		[out:json][date:"%s"];
		(
			node["building"](%s);
			way["building"](%s);
		);
		out body;
		>;
		out skel qt;
	`, tr.End.Format("2006-01-02T15:04:05Z"), bbox, bbox)

	result, err := r.executeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute building density query: %w", err)
	}

	return bucketBuildings(result, box, r.cellSizeKM), nil
}

func (r *OverpassRepository) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := r.client.Query(query)
	if err != nil {
		return nil, fmt.Errorf("overpass query failed: %w", err)
	}

	return &result, nil
}

// bucketBuildings counts tagged building elements per grid cell. Every cell is
// emitted, including empty ones, so rural regions still yield a full layer.
func bucketBuildings(result *overpass.Result, box model.BoundingBox, cellSizeKM float64) []model.RasterPoint {
	latCells, lonCells := gridShape(box, cellSizeKM)
	counts := make([]int, latCells*lonCells)

	latStep := (box.LatMax - box.LatMin) / float64(latCells)
	lonStep := (box.LonMax - box.LonMin) / float64(lonCells)

	record := func(lat, lon float64) {
		i := int((lat - box.LatMin) / latStep)
		j := int((lon - box.LonMin) / lonStep)
		if i < 0 || i >= latCells || j < 0 || j >= lonCells {
			return
		}
		counts[i*lonCells+j]++
	}

	for _, node := range result.Nodes {
		if node.Tags["building"] == "" {
			continue
		}
		record(node.Lat, node.Lon)
	}
	for _, way := range result.Ways {
		if way.Tags["building"] == "" {
			continue
		}
		// Ways are reduced to the centroid of their nodes.
		var lat, lon float64
		count := len(way.Nodes)
		if count == 0 {
			continue
		}
		for _, node := range way.Nodes {
			lat += node.Lat
			lon += node.Lon
		}
		record(lat/float64(count), lon/float64(count))
	}

	points := make([]model.RasterPoint, 0, len(counts))
	for i := 0; i < latCells; i++ {
		for j := 0; j < lonCells; j++ {
			points = append(points, model.RasterPoint{
				Lat:   box.LatMin + (float64(i)+0.5)*latStep,
				Lon:   box.LonMin + (float64(j)+0.5)*lonStep,
				Value: float64(counts[i*lonCells+j]),
			})
		}
	}
	return points
}

// gridShape sizes the density grid so cells are roughly cellSizeKM on a side.
func gridShape(box model.BoundingBox, cellSizeKM float64) (latCells, lonCells int) {
	latKM := (box.LatMax - box.LatMin) * 111.32
	lonKM := (box.LonMax - box.LonMin) * 111.32 * math.Cos(box.LatMin*math.Pi/180)

	latCells = int(math.Ceil(latKM / cellSizeKM))
	lonCells = int(math.Ceil(math.Abs(lonKM) / cellSizeKM))
	if latCells < 1 {
		latCells = 1
	}
	if lonCells < 1 {
		lonCells = 1
	}
	return latCells, lonCells
}
