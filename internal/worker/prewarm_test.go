package worker_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bahnmcp/bahnmcp/internal/clock"
	"github.com/bahnmcp/bahnmcp/internal/transit"
	"github.com/bahnmcp/bahnmcp/internal/worker"
)

type fakeFetcher struct {
	mu       sync.Mutex
	stations []string
	times    []time.Time
	calls    atomic.Int32
	failFor  map[string]error
}

func (f *fakeFetcher) GetDepartures(ctx context.Context, req transit.DepartureRequest) (*transit.Location, []*transit.Departure, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.stations = append(f.stations, req.Station)
	if req.At != nil {
		f.times = append(f.times, *req.At)
	}
	f.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		return nil, nil, errors.New("missing deadline")
	}
	if err := f.failFor[req.Station]; err != nil {
		return nil, nil, err
	}
	return &transit.Location{Name: req.Station}, nil, nil
}

func (f *fakeFetcher) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.stations...)
	sort.Strings(out)
	return out
}

func TestDefaultPrewarmConfig(t *testing.T) {
	cfg := worker.DefaultPrewarmConfig()

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Less(t, cfg.Interval, 90*time.Second)
	assert.Contains(t, cfg.Stations, "Frankfurt(Main)Hbf")
}

func TestPrewarmJob_Run(t *testing.T) {
	fetcher := &fakeFetcher{
		failFor: map[string]error{"Atlantis": &transit.StationNotFoundError{Query: "Atlantis"}},
	}
	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
		Config: worker.PrewarmConfig{
			Stations:    []string{"Köln Hbf", "Atlantis", "Bonn Hbf"},
			Concurrency: 2,
			Timeout:     time.Second,
		},
		Fetcher: fetcher,
		Logger:  zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Atlantis", result.Errors[0].Station)
	// Failing stations stop after the first board.
	assert.Equal(t, []string{"Atlantis", "Bonn Hbf", "Bonn Hbf", "Köln Hbf", "Köln Hbf"}, fetcher.seen())

	metrics := job.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalRuns)
	assert.Equal(t, int64(2), metrics.SuccessfulFetches)
	assert.Equal(t, int64(1), metrics.FailedFetches)
	assert.Equal(t, "Atlantis: Station not found: Atlantis", metrics.LastError)
	assert.NotZero(t, metrics.LastRunAt)
}

func TestPrewarmJob_Run_WarmsCurrentAndNextMinute(t *testing.T) {
	fetcher := &fakeFetcher{}
	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
		Config:  worker.PrewarmConfig{Stations: []string{"Köln Hbf"}},
		Fetcher: fetcher,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.Date(2026, 2, 24, 23, 59, 41, 0, clock.Berlin) },
	})

	result := job.Run(context.Background())
	require.Equal(t, 1, result.Successful)

	require.Len(t, fetcher.times, 2)
	assert.True(t, fetcher.times[0].Equal(time.Date(2026, 2, 24, 23, 59, 0, 0, clock.Berlin)))
	assert.True(t, fetcher.times[1].Equal(time.Date(2026, 2, 25, 0, 0, 0, 0, clock.Berlin)))
}

func TestPrewarmJob_EmptyConfigUsesDefaults(t *testing.T) {
	fetcher := &fakeFetcher{}
	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
		Fetcher: fetcher,
		Logger:  zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, len(worker.DefaultPrewarmStations()), result.Total)
	assert.Equal(t, result.Total, result.Successful)
}

func TestPrewarmJob_Run_ContextCancellation(t *testing.T) {
	fetcher := &fakeFetcher{}
	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
		Config:  worker.PrewarmConfig{Stations: []string{"A", "B", "C"}, Concurrency: 1},
		Fetcher: fetcher,
		Logger:  zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.Run(ctx)

	assert.Equal(t, 3, result.Failed)
	assert.Zero(t, fetcher.calls.Load())
}

func TestPrewarmJob_Start_StopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{}
	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
		Config: worker.PrewarmConfig{
			Stations: []string{"Köln Hbf"},
			Interval: 10 * time.Millisecond,
		},
		Fetcher: fetcher,
		Logger:  zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestPrewarmJob_MetricsSnapshot(t *testing.T) {
	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
		Config:  worker.PrewarmConfig{Stations: []string{"Köln Hbf"}},
		Fetcher: &fakeFetcher{},
		Logger:  zerolog.Nop(),
	})

	_ = job.Run(context.Background())

	snapshot := job.MetricsSnapshot()

	assert.Equal(t, 1, snapshot["stations"])
	assert.Equal(t, int64(1), snapshot["total_runs"])
	assert.Equal(t, int64(1), snapshot["successful_fetches"])
	assert.Contains(t, snapshot, "last_run_duration")
	assert.NotContains(t, snapshot, "last_error")
}
