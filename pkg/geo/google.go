package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wayfarer/pkg/model"
	"wayfarer/pkg/request"
)

const (
	placesTextSearchURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"
	placeDetailsURL     = "https://maps.googleapis.com/maps/api/place/details/json"
	geocodeURL          = "https://maps.googleapis.com/maps/api/geocode/json"
	distanceMatrixURL   = "https://maps.googleapis.com/maps/api/distancematrix/json"
)

// GoogleProvider implements Provider against the Google Maps web services.
type GoogleProvider struct {
	key string
	rc  *request.Client
}

// NewGoogleProvider creates a provider with the given API key.
func NewGoogleProvider(key string, rc *request.Client) *GoogleProvider {
	return &GoogleProvider{key: key, rc: rc}
}

type googleLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type textSearchResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID  string `json:"place_id"`
		Geometry struct {
			Location googleLatLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type placeDetailsResponse struct {
	Status string `json:"status"`
	Result struct {
		Name             string   `json:"name"`
		FormattedAddress string   `json:"formatted_address"`
		FormattedPhone   string   `json:"formatted_phone_number"`
		Website          string   `json:"website"`
		Rating           float64  `json:"rating"`
		PriceLevel       int      `json:"price_level"`
		Types            []string `json:"types"`
		Geometry         struct {
			Location googleLatLng `json:"location"`
		} `json:"geometry"`
		WheelchairAccessibleEntrance bool `json:"wheelchair_accessible_entrance"`
		OpeningHours                 struct {
			Periods []struct {
				Open struct {
					Day  int    `json:"day"`
					Time string `json:"time"`
				} `json:"open"`
				Close struct {
					Day  int    `json:"day"`
					Time string `json:"time"`
				} `json:"close"`
			} `json:"periods"`
		} `json:"opening_hours"`
	} `json:"result"`
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location googleLatLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type matrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Duration struct {
				Value float64 `json:"value"`
			} `json:"duration"`
			Distance struct {
				Value float64 `json:"value"`
			} `json:"distance"`
		} `json:"elements"`
	} `json:"rows"`
}

// PlaceDetails resolves a place via text search then the details endpoint.
func (g *GoogleProvider) PlaceDetails(ctx context.Context, name, city string) (*PlaceDetails, error) {
	q := url.Values{}
	q.Set("query", name+", "+city)
	q.Set("key", g.key)

	body, err := g.rc.Get(ctx, placesTextSearchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("places text search: %w", err)
	}
	var search textSearchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("places text search decode: %w", err)
	}
	if err := checkStatus(search.Status); err != nil {
		return nil, err
	}
	if len(search.Results) == 0 {
		return nil, fmt.Errorf("place %q not found in %s", name, city)
	}
	placeID := search.Results[0].PlaceID

	q = url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", "name,geometry,formatted_address,formatted_phone_number,website,rating,price_level,types,opening_hours,wheelchair_accessible_entrance")
	q.Set("key", g.key)

	body, err = g.rc.Get(ctx, placeDetailsURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("place details: %w", err)
	}
	var details placeDetailsResponse
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("place details decode: %w", err)
	}
	if err := checkStatus(details.Status); err != nil {
		return nil, err
	}

	r := details.Result
	out := &PlaceDetails{
		Coords: &model.GeoPoint{
			Lat:         r.Geometry.Location.Lat,
			Lon:         r.Geometry.Location.Lng,
			Source:      "api",
			CollectedAt: time.Now().UTC(),
		},
		Address:    r.FormattedAddress,
		Phone:      r.FormattedPhone,
		Website:    r.Website,
		Rating:     r.Rating,
		PriceLevel: r.PriceLevel,
		Types:      r.Types,
		Wheelchair: r.WheelchairAccessibleEntrance,
		PlaceID:    placeID,
	}
	for _, p := range r.OpeningHours.Periods {
		openT, err1 := strconv.Atoi(p.Open.Time)
		closeT, err2 := strconv.Atoi(p.Close.Time)
		if err1 != nil || err2 != nil {
			continue
		}
		out.Periods = append(out.Periods, model.OpeningPeriod{
			Day:   p.Open.Day,
			Open:  model.HHMM(openT),
			Close: model.HHMM(closeT),
		})
	}
	return out, nil
}

// Geocode resolves a free-form location within a city.
func (g *GoogleProvider) Geocode(ctx context.Context, name, city string) (*model.GeoPoint, error) {
	q := url.Values{}
	q.Set("address", name+", "+city)
	q.Set("key", g.key)

	body, err := g.rc.Get(ctx, geocodeURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}
	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("geocode decode: %w", err)
	}
	if err := checkStatus(resp.Status); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("location %q not found in %s", name, city)
	}
	loc := resp.Results[0].Geometry.Location
	return &model.GeoPoint{
		Lat:         loc.Lat,
		Lon:         loc.Lng,
		Source:      "geocoder",
		CollectedAt: time.Now().UTC(),
	}, nil
}

// DistanceMatrix issues one matrix call; both dimensions are capped at MaxBatch.
func (g *GoogleProvider) DistanceMatrix(ctx context.Context, origins, destinations []model.GeoPoint, mode Mode) ([][]MatrixElement, error) {
	if len(origins) == 0 || len(destinations) == 0 {
		return nil, nil
	}
	if len(origins) > MaxBatch || len(destinations) > MaxBatch {
		return nil, fmt.Errorf("matrix batch too large: %dx%d (max %d)", len(origins), len(destinations), MaxBatch)
	}

	q := url.Values{}
	q.Set("origins", encodeCoords(origins))
	q.Set("destinations", encodeCoords(destinations))
	q.Set("mode", string(mode))
	q.Set("key", g.key)

	body, err := g.rc.Get(ctx, distanceMatrixURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("distance matrix: %w", err)
	}
	var resp matrixResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("distance matrix decode: %w", err)
	}
	if err := checkStatus(resp.Status); err != nil {
		return nil, err
	}

	out := make([][]MatrixElement, len(resp.Rows))
	for i, row := range resp.Rows {
		out[i] = make([]MatrixElement, len(row.Elements))
		for j, el := range row.Elements {
			out[i][j] = MatrixElement{
				DurationSeconds: el.Duration.Value,
				DistanceMeters:  el.Distance.Value,
				Status:          el.Status,
			}
		}
	}
	return out, nil
}

func encodeCoords(points []model.GeoPoint) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
	}
	return strings.Join(parts, "|")
}

func checkStatus(status string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	default:
		return fmt.Errorf("google maps status %s", status)
	}
}
