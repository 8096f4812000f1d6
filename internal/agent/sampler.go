package agent

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tawsil-backend/internal/models"
)

// SamplerConfig tunes the GPS accuracy gate.
type SamplerConfig struct {
	// AccuracyRejectionMeters rejects fixes with a wider error circle. The
	// 100 m default matches urban deployments; rural tiers raise it.
	AccuracyRejectionMeters float64
	// MaxSampleAge rejects fixes older than this (buffered hardware replays).
	MaxSampleAge time.Duration
	// HighAccuracy hints the underlying positioning API.
	HighAccuracy bool
}

// DefaultSamplerConfig returns the urban-tier defaults.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		AccuracyRejectionMeters: 100,
		MaxSampleAge:            30 * time.Second,
		HighAccuracy:            true,
	}
}

// PositionWatcher is the device positioning capability. Implementations wrap
// gpsd, a serial NMEA feed or a test fixture; the sampler only filters.
//
// WatchPosition delivers fixes to onFix until the returned stop function is
// called. A fatal positioning failure (permission denied, hardware gone,
// repeated timeout) is reported through onError, after which the watcher
// stops on its own.
type PositionWatcher interface {
	WatchPosition(highAccuracy bool, onFix func(models.LocationSample), onError func(error)) (stop func(), err error)
}

// SampleCallbacks receive the filtered stream. OnDegraded gets rejected fixes
// so the UI can show a waiting indicator without treating them as errors.
type SampleCallbacks struct {
	OnSample   func(models.LocationSample)
	OnDegraded func(models.LocationSample)
	OnError    func(error)
}

// CancelToken stops a running watch. Cancel is idempotent and takes effect
// immediately: a hardware fix already in flight is discarded, not delivered.
type CancelToken struct {
	once      sync.Once
	cancelled atomic.Bool
	stop      func()
}

func (t *CancelToken) Cancel() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		if t.stop != nil {
			t.stop()
		}
	})
}

// Cancelled reports whether the token has been cancelled.
func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}

// StartWatching begins a filtered watch on the given source. The sampler
// never restarts itself after a fatal error; the caller decides whether to
// retry. OnError fires at most once per watch.
func StartWatching(watcher PositionWatcher, cfg SamplerConfig, cb SampleCallbacks) (*CancelToken, error) {
	if cfg.AccuracyRejectionMeters <= 0 {
		cfg.AccuracyRejectionMeters = DefaultSamplerConfig().AccuracyRejectionMeters
	}
	if cfg.MaxSampleAge <= 0 {
		cfg.MaxSampleAge = DefaultSamplerConfig().MaxSampleAge
	}

	token := &CancelToken{}
	var errOnce sync.Once

	onFix := func(sample models.LocationSample) {
		if token.cancelled.Load() {
			return
		}

		if sample.AccuracyMeters > cfg.AccuracyRejectionMeters {
			log.Printf("⚠️ Low accuracy fix (%.0fm), waiting for better GPS signal", sample.AccuracyMeters)
			if cb.OnDegraded != nil {
				cb.OnDegraded(sample)
			}
			return
		}

		if age := time.Since(sample.CapturedAt); age > cfg.MaxSampleAge {
			log.Printf("⚠️ Stale fix (%s old), discarded", age.Round(time.Second))
			if cb.OnDegraded != nil {
				cb.OnDegraded(sample)
			}
			return
		}

		if cb.OnSample != nil {
			cb.OnSample(sample)
		}
	}

	onError := func(err error) {
		errOnce.Do(func() {
			if token.cancelled.Load() {
				return
			}
			// Fatal for this stream: stop and hand the decision to the caller.
			token.Cancel()
			if cb.OnError != nil {
				cb.OnError(err)
			}
		})
	}

	stop, err := watcher.WatchPosition(cfg.HighAccuracy, onFix, onError)
	if err != nil {
		return nil, err
	}
	token.stop = stop
	return token, nil
}
