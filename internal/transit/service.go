package transit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bahnmcp/bahnmcp/internal/clock"
)

// Provider defines the interface for the upstream timetable gateway.
// Implementations return decoded wire records; mapping to domain types
// happens in the Service.
type Provider interface {
	// SearchStations runs a free-text location search.
	SearchStations(ctx context.Context, query string, limit int) ([]StationRecord, error)

	// Departures fetches the departure board of a station.
	Departures(ctx context.Context, q BoardQuery) (*BoardRecord, error)

	// Journey fetches the stop list of a journey.
	Journey(ctx context.Context, journeyID string) (*JourneyRecord, error)

	// NearbyStations lists stations around a coordinate.
	NearbyStations(ctx context.Context, lat, lon float64, radius, maxNo int) ([]StationRecord, error)

	// Name returns the provider name for logging.
	Name() string
}

// Service defaults.
const (
	DefaultSearchLimit  = 10
	DefaultMaxResults   = 20
	DefaultNearbyRadius = 9999
	DefaultNearbyMax    = 100
)

// ServiceConfig holds configuration for the departure service.
type ServiceConfig struct {
	// Provider is the upstream gateway.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// Clock supplies the board time when a request has none, truncated to
	// the minute (default: clock.System).
	Clock clock.Clock

	// SearchLimit caps station search results during resolution (default: 10).
	SearchLimit int

	// MaxResults is the departure cap when a request does not set one (default: 20).
	MaxResults int
}

// Service resolves stations and maps upstream boards and journeys to
// domain types. It holds no state of its own; caching happens in the
// provider on raw payloads.
type Service struct {
	provider    Provider
	logger      zerolog.Logger
	clock       clock.Clock
	searchLimit int
	maxResults  int
}

// NewService creates a new departure service.
func NewService(cfg ServiceConfig) *Service {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}

	searchLimit := cfg.SearchLimit
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	return &Service{
		provider:    cfg.Provider,
		logger:      cfg.Logger,
		clock:       clk,
		searchLimit: searchLimit,
		maxResults:  maxResults,
	}
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// ResolveStation resolves a free-text name to the best matching location.
// The first result of type "ST" wins; otherwise the first result is used.
func (s *Service) ResolveStation(ctx context.Context, name string) (*Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewValidationError("station_name", "Station name cannot be empty")
	}

	results, err := s.provider.SearchStations(ctx, name, s.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching stations: %w", err)
	}
	if len(results) == 0 {
		return nil, &StationNotFoundError{Query: name}
	}

	chosen := &results[0]
	for i := range results {
		if results[i].RawType() == LocationTypeStation {
			chosen = &results[i]
			break
		}
	}

	loc := toLocation(chosen)

	s.logger.Debug().
		Str("query", name).
		Str("station", loc.Name).
		Int64("eva", loc.EVA).
		Str("type", loc.Type).
		Int("candidates", len(results)).
		Msg("station resolved")

	return loc, nil
}

// GetDepartures resolves the station and returns its filtered departure board.
func (s *Service) GetDepartures(ctx context.Context, req DepartureRequest) (*Location, []*Departure, error) {
	loc, err := s.ResolveStation(ctx, req.Station)
	if err != nil {
		return nil, nil, err
	}

	// Boards without an explicit time are requested for the current minute,
	// so calls within the same minute share a cache entry.
	at := s.clock.Now().Truncate(time.Minute)
	if req.At != nil {
		at = *req.At
	}

	board, err := s.provider.Departures(ctx, BoardQuery{
		EVA:     loc.EVA,
		HafasID: loc.HafasID,
		Date:    clock.FormatDate(at),
		Time:    clock.FormatTime(at),
		Modes:   ModeStrings(req.Modes),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetching departures for %s: %w", loc.Name, err)
	}

	departures := make([]*Departure, 0, len(board.Entries))
	for i := range board.Entries {
		d, err := toDeparture(&board.Entries[i])
		if err != nil {
			return nil, nil, err
		}
		departures = append(departures, d)
	}

	if req.Destination != "" {
		departures = filterByDestination(departures, req.Destination)
	}

	limit := s.maxResults
	if req.MaxResults != nil {
		limit = max(*req.MaxResults, 0)
	}
	if len(departures) > limit {
		departures = departures[:limit]
	}

	s.logger.Debug().
		Str("station", loc.Name).
		Int("entries", len(board.Entries)).
		Int("returned", len(departures)).
		Str("destination_filter", req.Destination).
		Msg("departure board mapped")

	return loc, departures, nil
}

// GetJourney returns the stop list of a journey.
func (s *Service) GetJourney(ctx context.Context, journeyID string) (*Journey, error) {
	if strings.TrimSpace(journeyID) == "" {
		return nil, NewValidationError("journey_id", "Journey ID cannot be empty")
	}

	rec, err := s.provider.Journey(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("fetching journey: %w", err)
	}

	return toJourney(journeyID, rec), nil
}

// NearbyStations returns stations around a coordinate.
func (s *Service) NearbyStations(ctx context.Context, req NearbyRequest) ([]*Location, error) {
	if req.Lat < -90 || req.Lat > 90 {
		return nil, NewValidationError("lat", "Latitude must be between -90 and 90")
	}
	if req.Lon < -180 || req.Lon > 180 {
		return nil, NewValidationError("lon", "Longitude must be between -180 and 180")
	}

	radius := req.Radius
	if radius <= 0 {
		radius = DefaultNearbyRadius
	}
	maxNo := req.Max
	if maxNo <= 0 {
		maxNo = DefaultNearbyMax
	}

	results, err := s.provider.NearbyStations(ctx, req.Lat, req.Lon, radius, maxNo)
	if err != nil {
		return nil, fmt.Errorf("fetching nearby stations: %w", err)
	}

	locations := make([]*Location, 0, len(results))
	for i := range results {
		locations = append(locations, toLocation(&results[i]))
	}

	return locations, nil
}

// filterByDestination keeps departures whose destination or via stations
// contain needle, ignoring case.
func filterByDestination(departures []*Departure, needle string) []*Departure {
	needle = strings.ToLower(needle)

	filtered := departures[:0]
	for _, d := range departures {
		if matchesDestination(d, needle) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

func matchesDestination(d *Departure, needle string) bool {
	if strings.Contains(strings.ToLower(d.Destination), needle) {
		return true
	}
	for _, via := range d.Via {
		if strings.Contains(strings.ToLower(via), needle) {
			return true
		}
	}
	return false
}
