package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"tawsil-backend/internal/geo"
	"tawsil-backend/internal/models"
)

// ErrRouteInfoUnavailable means the routing backend could not produce a
// result. Non-fatal: tracking views degrade to "N/A" and keep rendering.
var ErrRouteInfoUnavailable = errors.New("route info unavailable")

// RouteInfo is the human-readable distance/duration pair the tracking views show.
type RouteInfo struct {
	Distance string `json:"distance"`
	Duration string `json:"duration"`
}

// RouteInfoClient queries an OSRM-compatible routing service for
// driving distance and ETA between a driver fix and the drop-off point.
type RouteInfoClient struct {
	baseURL    string
	httpClient *http.Client
	cache      *routeInfoCache
}

// NewRouteInfoClient reads OSRM_BASE_URL (defaults to the public OSRM demo server).
func NewRouteInfoClient() *RouteInfoClient {
	baseURL := os.Getenv("OSRM_BASE_URL")
	if baseURL == "" {
		baseURL = "https://router.project-osrm.org"
	}

	return &RouteInfoClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: newRouteInfoCache(1000, 60*time.Second),
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

// Route returns distance/duration between origin and destination. Results are
// cached on a quantized-coordinate key so a crawling driver doesn't hammer
// the routing service every sample.
func (c *RouteInfoClient) Route(origin, destination models.Coordinate) (*RouteInfo, error) {
	key := fmt.Sprintf("%.4f,%.4f_%.4f,%.4f",
		geo.QuantizeCoord(origin.Lat), geo.QuantizeCoord(origin.Lng),
		geo.QuantizeCoord(destination.Lat), geo.QuantizeCoord(destination.Lng))

	if cached, found := c.cache.get(key); found {
		return cached, nil
	}

	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false",
		c.baseURL, origin.Lng, origin.Lat, destination.Lng, destination.Lat)

	resp, err := c.httpClient.Get(url)
	if err != nil {
		log.Printf("⚠️  Route info request failed: %v", err)
		return nil, ErrRouteInfoUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrRouteInfoUnavailable
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️  Route info backend returned status %d", resp.StatusCode)
		return nil, ErrRouteInfoUnavailable
	}

	var apiResp osrmResponse
	if err := json.Unmarshal(body, &apiResp); err != nil || apiResp.Code != "Ok" || len(apiResp.Routes) == 0 {
		log.Printf("⚠️  Route info backend returned no usable route (code=%q)", apiResp.Code)
		return nil, ErrRouteInfoUnavailable
	}

	info := &RouteInfo{
		Distance: formatDistance(apiResp.Routes[0].Distance),
		Duration: formatDuration(apiResp.Routes[0].Duration),
	}
	c.cache.set(key, info)
	return info, nil
}

func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

func formatDuration(seconds float64) string {
	mins := int(seconds/60 + 0.5)
	if mins < 1 {
		return "1 min"
	}
	if mins < 60 {
		return fmt.Sprintf("%d mins", mins)
	}
	return fmt.Sprintf("%dh %dm", mins/60, mins%60)
}
