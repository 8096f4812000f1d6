package main

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"tawsil-backend/internal/models"
)

// envWatcher reads GPS fixes from GPS_FEED, a newline-delimited JSON file of
// {lat, lng, accuracy} objects, replayed at GPS_INTERVAL (default 5s). Stands
// in for a real positioning device on servers and in local testing.
type envWatcher struct {
	feedPath string
	interval time.Duration
}

func newEnvWatcher() *envWatcher {
	interval := 5 * time.Second
	if raw := os.Getenv("GPS_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			interval = parsed
		}
	}
	return &envWatcher{
		feedPath: envOr("GPS_FEED", "./gps-feed.jsonl"),
		interval: interval,
	}
}

func (w *envWatcher) WatchPosition(highAccuracy bool, onFix func(models.LocationSample), onError func(error)) (func(), error) {
	file, err := os.Open(w.feedPath)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer file.Close()
		decoder := json.NewDecoder(file)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				var fix struct {
					Lat      float64 `json:"lat"`
					Lng      float64 `json:"lng"`
					Accuracy float64 `json:"accuracy"`
				}
				if err := decoder.Decode(&fix); err != nil {
					log.Println("📡 GPS feed exhausted")
					return
				}
				onFix(models.LocationSample{
					Coordinate:     models.Coordinate{Lat: fix.Lat, Lng: fix.Lng},
					AccuracyMeters: fix.Accuracy,
					CapturedAt:     time.Now(),
				})
			}
		}
	}()

	stop := func() {
		select {
		case <-done:
		default:
			close(done)
		}
	}
	return stop, nil
}
