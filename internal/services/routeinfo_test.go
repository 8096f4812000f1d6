package services

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"tawsil-backend/internal/models"
)

func TestRouteReturnsFormattedDistanceAndETA(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":5234.0,"duration":742.0}]}`))
	}))
	defer server.Close()
	t.Setenv("OSRM_BASE_URL", server.URL)

	client := NewRouteInfoClient()
	info, err := client.Route(
		models.Coordinate{Lat: 32.8872, Lng: 13.1913},
		models.Coordinate{Lat: 32.9000, Lng: 13.2000},
	)
	require.NoError(t, err)
	require.Equal(t, "5.2 km", info.Distance)
	require.Equal(t, "12 mins", info.Duration)
}

func TestRouteCachesNearbyOrigins(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":800.0,"duration":120.0}]}`))
	}))
	defer server.Close()
	t.Setenv("OSRM_BASE_URL", server.URL)

	client := NewRouteInfoClient()
	dest := models.Coordinate{Lat: 32.9000, Lng: 13.2000}

	_, err := client.Route(models.Coordinate{Lat: 32.88720, Lng: 13.19130}, dest)
	require.NoError(t, err)
	// Same quantized cell: a crawling driver must not re-query the backend.
	info, err := client.Route(models.Coordinate{Lat: 32.88722, Lng: 13.19133}, dest)
	require.NoError(t, err)

	require.Equal(t, "800 m", info.Distance)
	require.Equal(t, "2 mins", info.Duration)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRouteDegradesWhenBackendFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	t.Setenv("OSRM_BASE_URL", server.URL)

	client := NewRouteInfoClient()
	_, err := client.Route(models.Coordinate{Lat: 32.88, Lng: 13.19}, models.Coordinate{Lat: 32.90, Lng: 13.20})
	require.ErrorIs(t, err, ErrRouteInfoUnavailable)
}

func TestRouteRejectsNoRouteResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer server.Close()
	t.Setenv("OSRM_BASE_URL", server.URL)

	client := NewRouteInfoClient()
	_, err := client.Route(models.Coordinate{Lat: 32.88, Lng: 13.19}, models.Coordinate{Lat: 32.90, Lng: 13.20})
	require.ErrorIs(t, err, ErrRouteInfoUnavailable)
}

func TestFormatHelpers(t *testing.T) {
	require.Equal(t, "950 m", formatDistance(950))
	require.Equal(t, "1.5 km", formatDistance(1500))
	require.Equal(t, "1 min", formatDuration(20))
	require.Equal(t, "59 mins", formatDuration(59*60))
	require.Equal(t, "1h 30m", formatDuration(90*60))
}
