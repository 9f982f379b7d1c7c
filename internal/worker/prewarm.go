package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bahnmcp/bahnmcp/internal/clock"
	"github.com/bahnmcp/bahnmcp/internal/transit"
)

// BoardFetcher loads a departure board. *transit.Service implements it.
type BoardFetcher interface {
	GetDepartures(ctx context.Context, req transit.DepartureRequest) (*transit.Location, []*transit.Departure, error)
}

// PrewarmJob periodically fetches the departure boards of a fixed station
// list so tool calls for those stations are served from cache.
type PrewarmJob struct {
	config  PrewarmConfig
	fetcher BoardFetcher
	logger  zerolog.Logger
	now     func() time.Time
	metrics *PrewarmMetrics
}

// PrewarmMetrics tracks prewarm job statistics.
type PrewarmMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns         int64
	SuccessfulFetches int64
	FailedFetches     int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration

	// LastError is the most recent fetch error, if any.
	LastError string
}

// PrewarmJobConfig holds configuration for creating a PrewarmJob.
type PrewarmJobConfig struct {
	Config  PrewarmConfig
	Fetcher BoardFetcher
	Logger  zerolog.Logger

	// Now supplies the board time (default: clock.Now). It must agree with
	// the fetcher's clock for warmed boards to be found again.
	Now func() time.Time
}

// NewPrewarmJob creates a new prewarm job.
func NewPrewarmJob(cfg PrewarmJobConfig) *PrewarmJob {
	now := cfg.Now
	if now == nil {
		now = clock.Now
	}

	return &PrewarmJob{
		config:  cfg.Config.withDefaults(),
		fetcher: cfg.Fetcher,
		logger:  cfg.Logger,
		now:     now,
		metrics: &PrewarmMetrics{},
	}
}

// PrewarmResult contains the result of a single prewarm pass.
type PrewarmResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Errors     []PrewarmError
}

// PrewarmError represents a failed board fetch.
type PrewarmError struct {
	Station string
	Error   string
}

// Start runs a prewarm pass immediately and then every Interval until ctx
// is cancelled.
func (j *PrewarmJob) Start(ctx context.Context) {
	j.logger.Info().
		Int("stations", len(j.config.Stations)).
		Dur("interval", j.config.Interval).
		Msg("board prewarm started")

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		j.Run(ctx)

		select {
		case <-ctx.Done():
			j.logger.Info().Msg("board prewarm stopped")
			return
		case <-ticker.C:
		}
	}
}

// Run executes one prewarm pass over all configured stations.
func (j *PrewarmJob) Run(ctx context.Context) *PrewarmResult {
	startTime := time.Now()
	result := &PrewarmResult{
		StartTime: startTime,
		Total:     len(j.config.Stations),
	}

	j.logger.Debug().
		Int("stations", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting board prewarm pass")

	// Create work channels
	stationsChan := make(chan string, len(j.config.Stations))
	resultsChan := make(chan stationResult, len(j.config.Stations))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.prewarmWorker(ctx, stationsChan, resultsChan)
		}()
	}

	for _, s := range j.config.Stations {
		stationsChan <- s
	}
	close(stationsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for sr := range resultsChan {
		if sr.err == nil {
			result.Successful++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, PrewarmError{
			Station: sr.station,
			Error:   sr.err.Error(),
		})
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	event := j.logger.Debug()
	if result.Failed > 0 {
		event = j.logger.Warn()
	}
	event.
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("board prewarm pass completed")

	return result
}

type stationResult struct {
	station string
	err     error
}

func (j *PrewarmJob) prewarmWorker(ctx context.Context, stations <-chan string, results chan<- stationResult) {
	for station := range stations {
		select {
		case <-ctx.Done():
			results <- stationResult{station: station, err: ctx.Err()}
		default:
			results <- stationResult{station: station, err: j.prewarmStation(ctx, station)}
		}
	}
}

// prewarmStation fetches the boards of the current and the next minute.
// Tool calls without a board time ask for the current minute; the next
// minute keeps the gap until the following pass covered.
func (j *PrewarmJob) prewarmStation(ctx context.Context, station string) error {
	stationCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	minute := j.now().Truncate(time.Minute)
	for _, at := range []time.Time{minute, minute.Add(time.Minute)} {
		at := at
		_, _, err := j.fetcher.GetDepartures(stationCtx, transit.DepartureRequest{Station: station, At: &at})
		if err != nil {
			j.logger.Debug().Err(err).Str("station", station).Time("at", at).Msg("board prewarm failed")
			return err
		}
	}
	return nil
}

func (j *PrewarmJob) updateMetrics(result *PrewarmResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulFetches += int64(result.Successful)
	j.metrics.FailedFetches += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
	if len(result.Errors) > 0 {
		last := result.Errors[len(result.Errors)-1]
		j.metrics.LastError = last.Station + ": " + last.Error
	}
}

// GetMetrics returns a copy of the current metrics.
func (j *PrewarmJob) GetMetrics() PrewarmMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return PrewarmMetrics{
		TotalRuns:         j.metrics.TotalRuns,
		SuccessfulFetches: j.metrics.SuccessfulFetches,
		FailedFetches:     j.metrics.FailedFetches,
		LastRunAt:         j.metrics.LastRunAt,
		LastRunDuration:   j.metrics.LastRunDuration,
		TotalDuration:     j.metrics.TotalDuration,
		LastError:         j.metrics.LastError,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *PrewarmJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	snapshot := map[string]any{
		"stations":           len(j.config.Stations),
		"total_runs":         m.TotalRuns,
		"successful_fetches": m.SuccessfulFetches,
		"failed_fetches":     m.FailedFetches,
		"last_run_at":        m.LastRunAt,
		"last_run_duration":  m.LastRunDuration.String(),
	}
	if m.LastError != "" {
		snapshot["last_error"] = m.LastError
	}
	return snapshot
}
