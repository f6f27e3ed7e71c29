package geo

import (
	"context"
	"errors"

	orbgeo "github.com/paulmach/orb/geo"

	"wayfarer/pkg/model"
)

// ErrNotSupported marks operations an offline provider cannot serve.
var ErrNotSupported = errors.New("operation not supported by offline provider")

// walkSpeedMetersPerSecond approximates urban walking pace (4.5 km/h).
const walkSpeedMetersPerSecond = 4.5 * 1000 / 3600

// HaversineProvider estimates pairwise distances from great-circle geometry.
// It needs no network access or API key; place lookup is not available.
type HaversineProvider struct{}

// NewHaversineProvider returns the offline estimator.
func NewHaversineProvider() *HaversineProvider { return &HaversineProvider{} }

func (h *HaversineProvider) PlaceDetails(ctx context.Context, name, city string) (*PlaceDetails, error) {
	return nil, ErrNotSupported
}

func (h *HaversineProvider) Geocode(ctx context.Context, name, city string) (*model.GeoPoint, error) {
	return nil, ErrNotSupported
}

// DistanceMatrix estimates every pair from great-circle distance at walking
// pace. Non-walking modes are served with the same geometry; callers that
// need real transit times should use the Google provider.
func (h *HaversineProvider) DistanceMatrix(ctx context.Context, origins, destinations []model.GeoPoint, mode Mode) ([][]MatrixElement, error) {
	if len(origins) > MaxBatch || len(destinations) > MaxBatch {
		return nil, errors.New("matrix batch too large")
	}
	out := make([][]MatrixElement, len(origins))
	for i, o := range origins {
		out[i] = make([]MatrixElement, len(destinations))
		for j, d := range destinations {
			meters := orbgeo.Distance(o.Point(), d.Point())
			out[i][j] = MatrixElement{
				DurationSeconds: meters / walkSpeedMetersPerSecond,
				DistanceMeters:  meters,
				Status:          "OK",
			}
		}
	}
	return out, nil
}
