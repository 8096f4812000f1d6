package agent

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tawsil-backend/internal/models"
)

// fakeWatcher lets tests push fixes and errors by hand.
type fakeWatcher struct {
	onFix      func(models.LocationSample)
	onError    func(error)
	stopped    bool
	watchCalls int
}

func (w *fakeWatcher) WatchPosition(highAccuracy bool, onFix func(models.LocationSample), onError func(error)) (func(), error) {
	w.watchCalls++
	w.onFix = onFix
	w.onError = onError
	return func() { w.stopped = true }, nil
}

func fix(accuracy float64) models.LocationSample {
	return models.LocationSample{
		Coordinate:     models.Coordinate{Lat: 32.88, Lng: 13.19},
		AccuracyMeters: accuracy,
		CapturedAt:     time.Now(),
	}
}

func TestSamplerFiltersByAccuracy(t *testing.T) {
	watcher := &fakeWatcher{}
	var samples, degraded []float64

	token, err := StartWatching(watcher, SamplerConfig{AccuracyRejectionMeters: 100}, SampleCallbacks{
		OnSample:   func(s models.LocationSample) { samples = append(samples, s.AccuracyMeters) },
		OnDegraded: func(s models.LocationSample) { degraded = append(degraded, s.AccuracyMeters) },
	})
	require.NoError(t, err)
	defer token.Cancel()

	for _, accuracy := range []float64{150, 40, 200, 10} {
		watcher.onFix(fix(accuracy))
	}

	require.Equal(t, []float64{40, 10}, samples)
	require.Equal(t, []float64{150, 200}, degraded)
}

func TestSamplerRejectsStaleFixes(t *testing.T) {
	watcher := &fakeWatcher{}
	var samples, degraded int

	_, err := StartWatching(watcher, DefaultSamplerConfig(), SampleCallbacks{
		OnSample:   func(models.LocationSample) { samples++ },
		OnDegraded: func(models.LocationSample) { degraded++ },
	})
	require.NoError(t, err)

	old := fix(10)
	old.CapturedAt = time.Now().Add(-time.Minute)
	watcher.onFix(old)
	watcher.onFix(fix(10))

	require.Equal(t, 1, samples)
	require.Equal(t, 1, degraded)
}

func TestCancelSilencesInFlightFixes(t *testing.T) {
	watcher := &fakeWatcher{}
	var samples int

	token, err := StartWatching(watcher, DefaultSamplerConfig(), SampleCallbacks{
		OnSample: func(models.LocationSample) { samples++ },
	})
	require.NoError(t, err)

	watcher.onFix(fix(10))
	token.Cancel()
	require.True(t, watcher.stopped)

	// A fix the hardware already had in flight is discarded.
	watcher.onFix(fix(10))
	require.Equal(t, 1, samples)

	// Cancel is idempotent.
	token.Cancel()
	require.True(t, token.Cancelled())
}

func TestWatchErrorFiresOnceAndStopsWatch(t *testing.T) {
	watcher := &fakeWatcher{}
	var gotErrs []error
	var samples int

	_, err := StartWatching(watcher, DefaultSamplerConfig(), SampleCallbacks{
		OnSample: func(models.LocationSample) { samples++ },
		OnError:  func(err error) { gotErrs = append(gotErrs, err) },
	})
	require.NoError(t, err)

	fatal := errors.New("permission denied")
	watcher.onError(fatal)
	watcher.onError(errors.New("hardware gone"))

	require.Equal(t, []error{fatal}, gotErrs)
	require.True(t, watcher.stopped)

	// No samples after the failure.
	watcher.onFix(fix(10))
	require.Zero(t, samples)
}

func TestZeroConfigFallsBackToDefaults(t *testing.T) {
	watcher := &fakeWatcher{}
	var degraded int

	_, err := StartWatching(watcher, SamplerConfig{}, SampleCallbacks{
		OnDegraded: func(models.LocationSample) { degraded++ },
	})
	require.NoError(t, err)

	watcher.onFix(fix(101))
	require.Equal(t, 1, degraded)
}
