// Package geo defines the GeoProvider port consumed by the planner:
// coordinates, opening-hour periods, and pairwise travel times. The planner
// owns nothing here; implementations wrap external services.
package geo

import (
	"context"

	"wayfarer/pkg/model"
)

// Mode is a travel mode for the distance matrix.
type Mode string

const (
	ModeWalking Mode = "walking"
	ModeTransit Mode = "transit"
	ModeDriving Mode = "driving"
)

// MaxBatch is the largest origins/destinations dimension per matrix call.
const MaxBatch = 25

// PlaceDetails is the enrichment record for a named place.
type PlaceDetails struct {
	Coords     *model.GeoPoint
	Periods    []model.OpeningPeriod
	Address    string
	Phone      string
	Website    string
	Rating     float64
	PriceLevel int
	Types      []string
	Wheelchair bool
	PlaceID    string
}

// MatrixElement is one origin→destination cell of a distance-matrix call.
type MatrixElement struct {
	DurationSeconds float64
	DistanceMeters  float64
	Status          string // "OK" or a provider failure status
}

// OK reports whether the element carries usable values.
func (e MatrixElement) OK() bool { return e.Status == "OK" }

// Provider is the GeoProvider port.
type Provider interface {
	// PlaceDetails resolves a place by name within a city.
	PlaceDetails(ctx context.Context, name, city string) (*PlaceDetails, error)

	// Geocode resolves a free-form location to coordinates.
	Geocode(ctx context.Context, name, city string) (*model.GeoPoint, error)

	// DistanceMatrix returns len(origins)×len(destinations) elements.
	// Each dimension must be at most MaxBatch.
	DistanceMatrix(ctx context.Context, origins, destinations []model.GeoPoint, mode Mode) ([][]MatrixElement, error)
}
