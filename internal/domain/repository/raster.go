package repository

import (
	"context"
	"fmt"

	"siting_service/internal/domain/model"
)

// RasterProvider supplies already-extracted point samples of one raster layer,
// restricted to a bounding box and time range. Implementations must preserve
// fetch order and must support the four layers landCover, windSpeed,
// urbanization and solarRadiation, individually or via a LayerRouter.
type RasterProvider interface {
	FetchLayer(ctx context.Context, layer model.RasterLayer, box model.BoundingBox, tr model.TimeRange) ([]model.RasterPoint, error)
}

// LayerRouter dispatches layer fetches to per-layer backends, falling back to a
// default provider for layers without an explicit route.
type LayerRouter struct {
	routes   map[model.RasterLayer]RasterProvider
	fallback RasterProvider
}

func NewLayerRouter(fallback RasterProvider) *LayerRouter {
	return &LayerRouter{
		routes:   make(map[model.RasterLayer]RasterProvider),
		fallback: fallback,
	}
}

// Route binds one layer to a dedicated backend.
func (r *LayerRouter) Route(layer model.RasterLayer, provider RasterProvider) {
	r.routes[layer] = provider
}

func (r *LayerRouter) FetchLayer(ctx context.Context, layer model.RasterLayer, box model.BoundingBox, tr model.TimeRange) ([]model.RasterPoint, error) {
	if provider, ok := r.routes[layer]; ok {
		return provider.FetchLayer(ctx, layer, box, tr)
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("no backend configured for layer %s", layer)
	}
	return r.fallback.FetchLayer(ctx, layer, box, tr)
}
