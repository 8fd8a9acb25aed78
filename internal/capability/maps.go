package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	defaultGeocoderBaseURL = "https://nominatim.openstreetmap.org"
	defaultGeocoderTimeout = 10 * time.Second

	// Public Nominatim usage policy: at most one request per second.
	geocoderRateLimit = 1.0
)

// MapsConfig holds geocoder settings.
type MapsConfig struct {
	BaseURL   string `koanf:"base_url"`
	UserAgent string `koanf:"user_agent"`
}

// Maps resolves location expressions through an HTTP geocoding service
// and records opened places in the bridge.
type Maps struct {
	bridge     *Bridge
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewMaps creates the maps adapter.
func NewMaps(bridge *Bridge, cfg MapsConfig) *Maps {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeocoderBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "snipd"
	}
	return &Maps{
		bridge:     bridge,
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: defaultGeocoderTimeout},
		limiter:    rate.NewLimiter(rate.Limit(geocoderRateLimit), 1),
	}
}

func (m *Maps) CheckPermission(ctx context.Context) (AuthStatus, error) {
	return m.bridge.grantStatus(ctx, "maps")
}

func (m *Maps) RequestPermission(ctx context.Context) (AuthStatus, error) {
	return m.bridge.requestGrant(ctx, "maps")
}

// geocodeResult is the Nominatim-style search response element.
type geocodeResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search resolves a location query to places. Zero results is not an
// error here; the executor maps it to a notFound outcome.
func (m *Maps) Search(ctx context.Context, query string) ([]Place, error) {
	if query == "" {
		return nil, NewError(ErrKindInvalidInput, fmt.Errorf("search query is required"))
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, NewError(ErrKindSystemError, err)
	}

	u := fmt.Sprintf("%s/search?format=json&limit=5&q=%s", m.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, NewError(ErrKindSystemError, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, NewError(ErrKindSystemError, fmt.Errorf("geocoder request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(ErrKindSystemError, fmt.Errorf("failed to read geocoder response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(ErrKindSystemError, fmt.Errorf("geocoder error (%d): %s", resp.StatusCode, string(body)))
	}

	var results []geocodeResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, NewError(ErrKindSystemError, fmt.Errorf("failed to parse geocoder response: %w", err))
	}

	places := make([]Place, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		places = append(places, Place{Name: r.DisplayName, Lat: lat, Lon: lon})
	}
	return places, nil
}

// Open records the resolved place as a map lookup and returns its id.
func (m *Maps) Open(ctx context.Context, query string, place Place) (string, error) {
	id := uuid.NewString()
	_, err := m.bridge.db.ExecContext(ctx,
		`INSERT INTO map_lookups (id, query, name, lat, lon, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, query, place.Name, place.Lat, place.Lon, time.Now().Unix())
	if err != nil {
		return "", NewError(ErrKindSystemError, fmt.Errorf("failed to record map lookup: %w", err))
	}
	return id, nil
}

var _ MapsAdapter = (*Maps)(nil)
